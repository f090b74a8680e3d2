package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/pario-ai/supportdesk/pkg/memory"
	"github.com/pario-ai/supportdesk/pkg/models"
	"github.com/pario-ai/supportdesk/pkg/orchestrator"
)

// fakeOrchestrator implements Orchestrator for testing.
type fakeOrchestrator struct {
	lastQuery models.QueryRequest
	response  models.QueryResponse
	stats     models.CacheStats
	popular   []models.PopularQuery
	sessions  map[string]models.SessionRecord
	feedback  *models.FeedbackStats
}

func (f *fakeOrchestrator) Query(_ context.Context, req models.QueryRequest) (models.QueryResponse, error) {
	if strings.TrimSpace(req.Query) == "" {
		return models.QueryResponse{}, orchestrator.ErrEmptyQuery
	}
	f.lastQuery = req
	return f.response, nil
}

func (f *fakeOrchestrator) CacheStats() models.CacheStats { return f.stats }

func (f *fakeOrchestrator) PopularQueries(n int) []models.PopularQuery {
	if len(f.popular) > n {
		return f.popular[:n]
	}
	return f.popular
}

func (f *fakeOrchestrator) Session(_ context.Context, id string) (models.SessionRecord, error) {
	rec, ok := f.sessions[id]
	if !ok {
		return models.SessionRecord{}, memory.ErrSessionNotFound
	}
	return rec, nil
}

func (f *fakeOrchestrator) FeedbackStats(context.Context) (models.FeedbackStats, error) {
	if f.feedback == nil {
		return models.FeedbackStats{}, orchestrator.ErrFeedbackDisabled
	}
	return *f.feedback, nil
}

func (f *fakeOrchestrator) FeedbackSuggestions(context.Context) ([]string, error) {
	return []string{"Collect more feedback to get better insights."}, nil
}

func sendAndReceive(t *testing.T, srv *Server, req Request) Response {
	t.Helper()
	line, err := json.Marshal(req)
	if err != nil {
		t.Fatal(err)
	}
	line = append(line, '\n')

	var out bytes.Buffer
	if err := srv.Run(context.Background(), bytes.NewReader(line), &out); err != nil {
		t.Fatal(err)
	}

	var resp Response
	if err := json.Unmarshal(out.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v\nraw: %s", err, out.String())
	}
	return resp
}

func callTool(t *testing.T, srv *Server, name, args string) ToolCallResult {
	t.Helper()
	p := ToolCallParams{Name: name}
	if args != "" {
		p.Arguments = json.RawMessage(args)
	}
	params, _ := json.Marshal(p)
	resp := sendAndReceive(t, srv, Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`1`),
		Method:  "tools/call",
		Params:  params,
	})
	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error)
	}

	data, _ := json.Marshal(resp.Result)
	var result ToolCallResult
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatal(err)
	}
	if len(result.Content) == 0 {
		t.Fatal("expected content")
	}
	return result
}

func TestInitialize(t *testing.T) {
	srv := New(&fakeOrchestrator{}, "test", nil)
	resp := sendAndReceive(t, srv, Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`1`),
		Method:  "initialize",
	})

	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error)
	}

	data, _ := json.Marshal(resp.Result)
	var result InitializeResult
	json.Unmarshal(data, &result)

	if result.ProtocolVersion != ProtocolVersion {
		t.Errorf("protocol version = %s, want %s", result.ProtocolVersion, ProtocolVersion)
	}
	if result.ServerInfo.Name != "supportdesk" || result.ServerInfo.Version != "test" {
		t.Errorf("server info = %+v", result.ServerInfo)
	}
}

func TestToolsList(t *testing.T) {
	srv := New(&fakeOrchestrator{}, "test", nil)
	resp := sendAndReceive(t, srv, Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`2`),
		Method:  "tools/list",
	})

	data, _ := json.Marshal(resp.Result)
	var result ToolsListResult
	json.Unmarshal(data, &result)

	if len(result.Tools) != len(tools) {
		t.Errorf("got %d tools, want %d", len(result.Tools), len(tools))
	}
	for _, def := range result.Tools {
		if _, ok := lookupTool(def.Name); !ok {
			t.Errorf("listed tool %s has no handler", def.Name)
		}
		if def.InputSchema.Type != "object" || def.InputSchema.Properties == nil {
			t.Errorf("tool %s schema = %+v", def.Name, def.InputSchema)
		}
	}
	if got := result.Tools[0].InputSchema.Required; len(got) != 1 || got[0] != "query" {
		t.Errorf("support_query required = %v", got)
	}
}

func TestToolCallQuery(t *testing.T) {
	o := &fakeOrchestrator{response: models.QueryResponse{
		Answer:     "Open Settings and choose Security.",
		Confidence: 0.8,
		SessionID:  "session_1",
		Documents:  []models.Document{{Source: "account.md", ChunkIndex: 2}},
		Ticket:     &models.TicketRecord{Subject: "Escalation: reset"},
	}}
	srv := New(o, "test", nil)

	result := callTool(t, srv, "support_query", `{"query":"reset password","session_id":"s","top_k":5,"use_workflow":true}`)
	text := result.Content[0].Text
	for _, want := range []string{"Open Settings", "Confidence: 0.80", "account.md#2", "Escalation: reset"} {
		if !strings.Contains(text, want) {
			t.Errorf("missing %q in output:\n%s", want, text)
		}
	}
	want := models.QueryRequest{Query: "reset password", SessionID: "s", TopK: 5, UseWorkflow: true}
	if o.lastQuery != want {
		t.Errorf("request = %+v, want %+v", o.lastQuery, want)
	}
}

func TestToolCallQueryEmpty(t *testing.T) {
	srv := New(&fakeOrchestrator{}, "test", nil)
	result := callTool(t, srv, "support_query", `{}`)
	if !result.IsError {
		t.Error("expected isError=true for missing query")
	}
}

func TestToolCallCacheStats(t *testing.T) {
	o := &fakeOrchestrator{stats: models.CacheStats{Size: 42, MaxSize: 1000, Hits: 10, Misses: 5, HitRatePercent: 66.67, TTLMinutes: 60}}
	srv := New(o, "test", nil)

	text := callTool(t, srv, "support_cache_stats", "").Content[0].Text
	if !strings.Contains(text, "42 / 1000") || !strings.Contains(text, "66.67%") {
		t.Errorf("unexpected cache stats output: %s", text)
	}
}

func TestToolCallPopularQueries(t *testing.T) {
	o := &fakeOrchestrator{popular: []models.PopularQuery{
		{Query: "how do i reset my password", HitCount: 7},
		{Query: "where are my invoices", HitCount: 3},
	}}
	srv := New(o, "test", nil)

	text := callTool(t, srv, "support_popular_queries", `{"limit":1}`).Content[0].Text
	if !strings.Contains(text, "reset my password") || strings.Contains(text, "invoices") {
		t.Errorf("unexpected popular output: %s", text)
	}

	empty := New(&fakeOrchestrator{}, "test", nil)
	if text := callTool(t, empty, "support_popular_queries", "").Content[0].Text; !strings.Contains(text, "No cached queries") {
		t.Errorf("unexpected empty output: %s", text)
	}
}

func TestToolCallSessionHistory(t *testing.T) {
	ts := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	o := &fakeOrchestrator{sessions: map[string]models.SessionRecord{
		"abc": {
			SessionID: "abc",
			Messages: []models.Message{
				{Role: models.RoleUser, Content: "How do I reset my password?", Timestamp: ts},
				{Role: models.RoleAssistant, Content: "Open Settings.", Timestamp: ts},
			},
			Metadata: models.SessionMetadata{CreatedAt: ts, TotalMessages: 2},
		},
	}}
	srv := New(o, "test", nil)

	text := callTool(t, srv, "support_session_history", `{"session_id":"abc"}`).Content[0].Text
	if !strings.Contains(text, "reset my password") || !strings.Contains(text, "2 kept") {
		t.Errorf("unexpected session output: %s", text)
	}

	text = callTool(t, srv, "support_session_history", `{"session_id":"nope"}`).Content[0].Text
	if !strings.Contains(text, "not found") {
		t.Errorf("expected not found, got: %s", text)
	}

	if !callTool(t, srv, "support_session_history", `{}`).IsError {
		t.Error("expected isError=true for missing session_id")
	}
}

func TestToolCallFeedbackStats(t *testing.T) {
	srv := New(&fakeOrchestrator{}, "test", nil)
	if text := callTool(t, srv, "support_feedback_stats", "").Content[0].Text; !strings.Contains(text, "not configured") {
		t.Errorf("expected 'not configured', got: %s", text)
	}

	o := &fakeOrchestrator{feedback: &models.FeedbackStats{
		TotalFeedback: 4, AverageRating: 3.5, PositiveRate: 50,
		RatingDistribution: map[int]int{1: 1, 3: 1, 4: 1, 5: 1},
	}}
	text := callTool(t, New(o, "test", nil), "support_feedback_stats", "").Content[0].Text
	for _, want := range []string{"Total:    4", "3.50 / 5", "1:1 2:0 3:1", "Collect more feedback"} {
		if !strings.Contains(text, want) {
			t.Errorf("missing %q in output:\n%s", want, text)
		}
	}
}

func TestUnknownTool(t *testing.T) {
	srv := New(&fakeOrchestrator{}, "test", nil)
	if !callTool(t, srv, "support_delete_everything", "").IsError {
		t.Error("expected isError=true for unknown tool")
	}
}

func TestNotificationNoResponse(t *testing.T) {
	srv := New(&fakeOrchestrator{}, "test", nil)

	line, _ := json.Marshal(Request{
		JSONRPC: "2.0",
		Method:  "notifications/initialized",
	})
	line = append(line, '\n')

	var out bytes.Buffer
	_ = srv.Run(context.Background(), bytes.NewReader(line), &out)

	if out.Len() != 0 {
		t.Errorf("expected no output for notification, got: %s", out.String())
	}
}

func TestUnknownMethod(t *testing.T) {
	srv := New(&fakeOrchestrator{}, "test", nil)
	resp := sendAndReceive(t, srv, Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`9`),
		Method:  "unknown/method",
	})

	if resp.Error == nil {
		t.Fatal("expected error for unknown method")
	}
	if resp.Error.Code != CodeMethodNotFound {
		t.Errorf("error code = %d, want %d", resp.Error.Code, CodeMethodNotFound)
	}
}

func TestParseError(t *testing.T) {
	srv := New(&fakeOrchestrator{}, "test", nil)
	var out bytes.Buffer
	_ = srv.Run(context.Background(), strings.NewReader("{not json\n"), &out)

	var resp Response
	if err := json.Unmarshal(out.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Error == nil || resp.Error.Code != CodeParseError {
		t.Errorf("expected parse error, got %+v", resp)
	}
}
