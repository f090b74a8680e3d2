package mcp

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/pario-ai/supportdesk/pkg/memory"
	"github.com/pario-ai/supportdesk/pkg/models"
	"github.com/pario-ai/supportdesk/pkg/orchestrator"
)

const defaultPopularLimit = 10

type queryArgs struct {
	Query       string `json:"query"`
	SessionID   string `json:"session_id"`
	TopK        int    `json:"top_k"`
	UseWorkflow bool   `json:"use_workflow"`
}

type popularArgs struct {
	Limit int `json:"limit"`
}

type sessionArgs struct {
	SessionID string `json:"session_id"`
}

type toolHandler func(ctx context.Context, s *Server, args json.RawMessage) ToolCallResult

type tool struct {
	def    ToolDefinition
	handle toolHandler
}

// tools is the registry, in tools/list order.
var tools = []tool{
	{
		def: ToolDefinition{
			Name:        "support_query",
			Description: "Answer a customer support question from the knowledge base, with confidence and escalation advice.",
			InputSchema: object([]string{"query"}, map[string]Property{
				"query":        {Type: "string", Description: "The customer's question"},
				"session_id":   {Type: "string", Description: "Conversation to continue (optional, a new one is started when omitted)"},
				"top_k":        {Type: "integer", Description: "Documents to retrieve, 1-10 (optional, default 3)"},
				"use_workflow": {Type: "boolean", Description: "Route through the classify/retrieve/answer/escalate workflow"},
			}),
		},
		handle: handleQuery,
	},
	{
		def: ToolDefinition{
			Name:        "support_cache_stats",
			Description: "Show query cache statistics (size, hits, misses, hit rate).",
			InputSchema: object(nil, nil),
		},
		handle: handleCacheStats,
	},
	{
		def: ToolDefinition{
			Name:        "support_popular_queries",
			Description: "List the cached questions that have been reused most often.",
			InputSchema: object(nil, map[string]Property{
				"limit": {Type: "integer", Description: "How many queries to list (optional, default 10)"},
			}),
		},
		handle: handlePopularQueries,
	},
	{
		def: ToolDefinition{
			Name:        "support_session_history",
			Description: "Show the conversation kept for a session.",
			InputSchema: object([]string{"session_id"}, map[string]Property{
				"session_id": {Type: "string", Description: "The session ID to inspect"},
			}),
		},
		handle: handleSessionHistory,
	},
	{
		def: ToolDefinition{
			Name:        "support_feedback_stats",
			Description: "Summarize user ratings and suggest improvements.",
			InputSchema: object(nil, nil),
		},
		handle: handleFeedbackStats,
	},
}

func definitions() []ToolDefinition {
	defs := make([]ToolDefinition, len(tools))
	for i, t := range tools {
		defs[i] = t.def
	}
	return defs
}

func lookupTool(name string) (toolHandler, bool) {
	for _, t := range tools {
		if t.def.Name == name {
			return t.handle, true
		}
	}
	return nil, false
}

func textResult(text string) ToolCallResult {
	return ToolCallResult{
		Content: []ContentBlock{{Type: "text", Text: text}},
	}
}

func errorResult(text string) ToolCallResult {
	return ToolCallResult{
		Content: []ContentBlock{{Type: "text", Text: text}},
		IsError: true,
	}
}

func handleQuery(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	var args queryArgs
	if len(rawArgs) > 0 {
		_ = json.Unmarshal(rawArgs, &args)
	}
	resp, err := s.orch.Query(ctx, models.QueryRequest{
		Query:       args.Query,
		SessionID:   args.SessionID,
		TopK:        args.TopK,
		UseWorkflow: args.UseWorkflow,
	})
	if errors.Is(err, orchestrator.ErrEmptyQuery) {
		return errorResult("query is required")
	}
	if err != nil {
		return errorResult("Error answering query: " + err.Error())
	}
	return textResult(formatQueryResponse(resp))
}

func handleCacheStats(_ context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	return textResult(formatCacheStats(s.orch.CacheStats()))
}

func handlePopularQueries(_ context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	var args popularArgs
	if len(rawArgs) > 0 {
		_ = json.Unmarshal(rawArgs, &args)
	}
	if args.Limit <= 0 {
		args.Limit = defaultPopularLimit
	}
	return textResult(formatPopular(s.orch.PopularQueries(args.Limit)))
}

func handleSessionHistory(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	var args sessionArgs
	if len(rawArgs) > 0 {
		_ = json.Unmarshal(rawArgs, &args)
	}
	if args.SessionID == "" {
		return errorResult("session_id is required")
	}
	rec, err := s.orch.Session(ctx, args.SessionID)
	if errors.Is(err, memory.ErrSessionNotFound) {
		return textResult("Session not found.")
	}
	if err != nil {
		return errorResult("Error fetching session: " + err.Error())
	}
	return textResult(formatSession(rec))
}

func handleFeedbackStats(ctx context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	stats, err := s.orch.FeedbackStats(ctx)
	if errors.Is(err, orchestrator.ErrFeedbackDisabled) {
		return textResult("Feedback collection is not configured.")
	}
	if err != nil {
		return errorResult("Error fetching feedback stats: " + err.Error())
	}
	suggestions, err := s.orch.FeedbackSuggestions(ctx)
	if err != nil {
		return errorResult("Error building suggestions: " + err.Error())
	}
	return textResult(formatFeedback(stats, suggestions))
}
