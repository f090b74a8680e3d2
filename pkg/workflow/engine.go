// Package workflow runs a support query through a small state machine:
// classify intent, retrieve documents, generate an answer, and escalate to a
// human when needed. Each run records a trace of the steps it took.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/pario-ai/supportdesk/pkg/models"
)

// Retriever finds documents relevant to a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]models.Document, error)
}

// Generator produces an answer from a query and supporting documents.
type Generator interface {
	Generate(ctx context.Context, query string, docs []models.Document) (string, error)
}

// TicketSink receives escalation tickets.
type TicketSink interface {
	Submit(ctx context.Context, ticket models.TicketRecord) error
}

// Collaborator failures. Errors returned by Run wrap one of these.
var (
	ErrRetrieval  = errors.New("retrieval failed")
	ErrGeneration = errors.New("generation failed")
)

// Step names a state of the machine.
type Step string

const (
	StepClassify           Step = "classify"
	StepRetrieve           Step = "retrieve"
	StepAnswer             Step = "answer"
	StepEscalateDirect     Step = "escalate_direct"
	StepEscalatePostAnswer Step = "escalate_post_answer"
	StepEnd                Step = "end"
)

// Intent is the classification of a query.
type Intent string

const (
	IntentAnswer   Intent = "answer"
	IntentEscalate Intent = "escalate"
)

const (
	// InsufficientInfoAnswer is returned when nothing was retrieved.
	InsufficientInfoAnswer = "I don't have enough information to answer this query."
	// TicketReason is stamped on every ticket.
	TicketReason = "User request or low confidence"

	noDocsConfidence   = 0.1
	ticketSubjectRunes = 100
	ticketContextDocs  = 3
	ticketDocRunes     = 500
)

var escalationKeywords = []string{"urgent", "escalate", "speak to human", "manager"}

// State is the outcome of one Run. Trace only ever grows.
type State struct {
	Query      string
	Intent     Intent
	Documents  []models.Document
	Answer     string
	Confidence float64
	Escalate   bool
	Ticket     *models.TicketRecord
	Trace      []string
	Path       []Step
}

func (s *State) trace(format string, args ...any) {
	s.Trace = append(s.Trace, fmt.Sprintf(format, args...))
}

// Engine sequences classification, retrieval, answering and escalation. It
// keeps no per-run state, so one Engine serves concurrent runs.
type Engine struct {
	retriever Retriever
	generator Generator
	sink      TicketSink
	logger    *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithTicketSink delivers escalation tickets to sink.
func WithTicketSink(sink TicketSink) Option {
	return func(e *Engine) { e.sink = sink }
}

// WithLogger sets the engine logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New creates an Engine.
func New(r Retriever, g Generator, opts ...Option) *Engine {
	e := &Engine{retriever: r, generator: g, logger: zap.NewNop()}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Run drives query from Classify to End. Retriever and generator errors stop
// the run and are returned wrapped in ErrRetrieval or ErrGeneration, along
// with the partial state.
func (e *Engine) Run(ctx context.Context, query string, topK int) (*State, error) {
	st := &State{Query: query}
	step := StepClassify

	for step != StepEnd {
		st.Path = append(st.Path, step)
		next, err := e.step(ctx, step, st, topK)
		if err != nil {
			return st, err
		}
		step = next
	}
	st.Path = append(st.Path, StepEnd)
	return st, nil
}

func (e *Engine) step(ctx context.Context, step Step, st *State, topK int) (Step, error) {
	switch step {
	case StepClassify:
		return e.classify(st), nil
	case StepRetrieve:
		return e.retrieve(ctx, st, topK)
	case StepAnswer:
		return e.answer(ctx, st)
	case StepEscalateDirect, StepEscalatePostAnswer:
		e.escalate(ctx, st)
		return StepEnd, nil
	}
	return StepEnd, fmt.Errorf("unknown workflow step %q", step)
}

func (e *Engine) classify(st *State) Step {
	lower := strings.ToLower(st.Query)
	for _, kw := range escalationKeywords {
		if strings.Contains(lower, kw) {
			st.Intent = IntentEscalate
			st.trace("Intent: escalate (urgent keywords detected)")
			return StepEscalateDirect
		}
	}
	st.Intent = IntentAnswer
	st.trace("Intent: answer (standard query)")
	return StepRetrieve
}

func (e *Engine) retrieve(ctx context.Context, st *State, topK int) (Step, error) {
	docs, err := e.retriever.Retrieve(ctx, st.Query, topK)
	if err != nil {
		return StepEnd, fmt.Errorf("%w: %w", ErrRetrieval, err)
	}
	st.Documents = docs
	st.trace("Retrieved %d documents", len(docs))
	return StepAnswer, nil
}

func (e *Engine) answer(ctx context.Context, st *State) (Step, error) {
	if len(st.Documents) == 0 {
		st.Answer = InsufficientInfoAnswer
		st.Confidence = noDocsConfidence
		st.Escalate = true
		st.trace("Answer: low confidence (no docs retrieved)")
		return StepEscalatePostAnswer, nil
	}

	ans, err := e.generator.Generate(ctx, st.Query, st.Documents)
	if err != nil {
		return StepEnd, fmt.Errorf("%w: %w", ErrGeneration, err)
	}
	st.Answer = ans
	st.Confidence, st.Escalate = AssessAnswer(ans)
	st.trace("Answer generated (confidence: %.2f)", st.Confidence)

	if st.Escalate {
		return StepEscalatePostAnswer, nil
	}
	return StepEnd, nil
}

func (e *Engine) escalate(ctx context.Context, st *State) {
	t := BuildTicket(st.Query, st.Documents)
	st.Ticket = &t
	st.trace("Escalation ticket created")

	if e.sink == nil {
		return
	}
	if err := e.sink.Submit(ctx, t); err != nil {
		e.logger.Warn("ticket delivery failed", zap.String("subject", t.Subject), zap.Error(err))
	}
}

// BuildTicket assembles a ticket from the query and the first few documents.
func BuildTicket(query string, docs []models.Document) models.TicketRecord {
	n := len(docs)
	if n > ticketContextDocs {
		n = ticketContextDocs
	}
	parts := make([]string, 0, n)
	for _, d := range docs[:n] {
		parts = append(parts, truncateRunes(d.Content, ticketDocRunes))
	}
	return models.TicketRecord{
		Subject: "Escalation: " + truncateRunes(query, ticketSubjectRunes),
		Query:   query,
		Context: strings.Join(parts, "\n\n"),
		Reason:  TicketReason,
	}
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
