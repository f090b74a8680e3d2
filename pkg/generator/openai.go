package generator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"github.com/pario-ai/supportdesk/pkg/config"
	"github.com/pario-ai/supportdesk/pkg/models"
)

const systemPrompt = "You are a customer support assistant. Answer the user's question " +
	"using only the provided context. If the context does not contain the answer, " +
	"say that you don't know and suggest contacting the support team."

// ErrEmptyCompletion is returned when the model sends no choices.
var ErrEmptyCompletion = errors.New("empty completion")

// OpenAI calls an OpenAI-compatible chat completions endpoint.
type OpenAI struct {
	client      openai.Client
	model       string
	temperature float64
	maxTokens   int64
}

// NewOpenAI creates a hosted generator. Retries are left to the caller.
func NewOpenAI(cfg config.GeneratorConfig) *OpenAI {
	opts := []option.RequestOption{option.WithMaxRetries(0)}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.URL != "" {
		opts = append(opts, option.WithBaseURL(cfg.URL))
	}
	return &OpenAI{
		client:      openai.NewClient(opts...),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}
}

// Name implements Named.
func (*OpenAI) Name() string { return "openai" }

// Generate implements Generator.
func (o *OpenAI) Generate(ctx context.Context, query string, docs []models.Document) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(Prompt(query, docs)),
		},
		Temperature: openai.Float(o.temperature),
	}
	if o.maxTokens > 0 {
		params.MaxTokens = openai.Int(o.maxTokens)
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// Prompt renders the user message: numbered context documents followed by
// the question.
func Prompt(query string, docs []models.Document) string {
	var b strings.Builder
	b.WriteString("Context:\n")
	if len(docs) == 0 {
		b.WriteString("(no documents)\n")
	}
	for i, d := range docs {
		fmt.Fprintf(&b, "[%d] (%s)\n%s\n\n", i+1, d.Source, strings.TrimSpace(d.Content))
	}
	b.WriteString("\nQuestion: ")
	b.WriteString(query)
	return b.String()
}
