// Package orchestrator answers support queries. It ties together the query
// cache, per-session conversation memory, retrieval, generation, the
// escalation policy and the workflow engine, and records user feedback.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pario-ai/supportdesk/pkg/cache"
	"github.com/pario-ai/supportdesk/pkg/config"
	"github.com/pario-ai/supportdesk/pkg/feedback"
	"github.com/pario-ai/supportdesk/pkg/memory"
	"github.com/pario-ai/supportdesk/pkg/metrics"
	"github.com/pario-ai/supportdesk/pkg/models"
	"github.com/pario-ai/supportdesk/pkg/policy"
	"github.com/pario-ai/supportdesk/pkg/workflow"
)

var (
	// ErrEmptyQuery is returned for blank queries.
	ErrEmptyQuery = errors.New("query must not be empty")
	// ErrFeedbackDisabled is returned when no feedback store is configured.
	ErrFeedbackDisabled = errors.New("feedback is not enabled")
)

// HandoffAnswer is returned when the workflow escalates without answering.
const HandoffAnswer = "Your request has been passed to a human support agent, who will follow up shortly."

const (
	defaultTopK = 3
	maxTopK     = 10

	sessionPrefix = "session_"
	sessionLocks  = 64
)

// FeedbackStore persists and analyses feedback.
type FeedbackStore interface {
	Record(ctx context.Context, e models.FeedbackEntry) (models.FeedbackEntry, error)
	Stats(ctx context.Context) (models.FeedbackStats, error)
	Suggestions(ctx context.Context) ([]string, error)
	Report(ctx context.Context) (models.FeedbackReport, error)
}

// Deps are the collaborators of a Service. Cache, Feedback and Tickets may
// be nil.
type Deps struct {
	Cache     *cache.QueryCache
	Sessions  memory.Store
	Retriever workflow.Retriever
	Generator workflow.Generator
	Policy    policy.Policy
	Feedback  FeedbackStore
	Tickets   workflow.TicketSink
	Logger    *zap.Logger
}

// Service is safe for concurrent use. Queries on the same session are
// serialized.
type Service struct {
	cache     *cache.QueryCache
	sessions  memory.Store
	retriever workflow.Retriever
	generator workflow.Generator
	policy    policy.Policy
	feedback  FeedbackStore
	engine    *workflow.Engine
	logger    *zap.Logger

	minConfidence float64
	contextTurns  int

	retrieverName string
	generatorName string
	breaker       stateReporter

	locks [sessionLocks]sync.Mutex
}

// New wires a Service from cfg and d.
func New(cfg *config.Config, d Deps) *Service {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	r := timedRetriever{next: d.Retriever, timeout: cfg.Timeouts.Retrieval}
	g := timedGenerator{next: d.Generator, timeout: cfg.Timeouts.Generation}

	opts := []workflow.Option{workflow.WithLogger(logger.Named("workflow"))}
	if d.Tickets != nil {
		opts = append(opts, workflow.WithTicketSink(d.Tickets))
	}

	return &Service{
		cache:         d.Cache,
		sessions:      d.Sessions,
		retriever:     r,
		generator:     g,
		policy:        d.Policy,
		feedback:      d.Feedback,
		engine:        workflow.New(r, g, opts...),
		logger:        logger,
		minConfidence: cfg.Cache.MinConfidence,
		contextTurns:  cfg.Session.ContextTurns,
		retrieverName: nameOf(d.Retriever, "retriever"),
		generatorName: nameOf(d.Generator, "generator"),
		breaker:       reporterOf(d.Generator),
	}
}

// lockSession serializes work on one session id across goroutines.
func (s *Service) lockSession(id string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	mu := &s.locks[h.Sum32()%sessionLocks]
	mu.Lock()
	return mu.Unlock
}

func clampTopK(k int) int {
	switch {
	case k <= 0:
		return defaultTopK
	case k > maxTopK:
		return maxTopK
	}
	return k
}

// NewSessionID mints a session id.
func NewSessionID() string {
	return sessionPrefix + uuid.NewString()
}

// Query answers req. The cache is keyed on the raw question. On the simple
// path follow-up questions retrieve with recent conversation context.
func (s *Service) Query(ctx context.Context, req models.QueryRequest) (models.QueryResponse, error) {
	start := time.Now()
	if strings.TrimSpace(req.Query) == "" {
		return models.QueryResponse{}, ErrEmptyQuery
	}
	topK := clampTopK(req.TopK)
	sid := req.SessionID
	if sid == "" {
		sid = NewSessionID()
	}

	unlock := s.lockSession(sid)
	defer unlock()

	conv, _, err := s.sessions.GetOrCreate(ctx, sid)
	if err != nil {
		return models.QueryResponse{}, fmt.Errorf("load session %s: %w", sid, err)
	}

	effective := req.Query
	followUp := conv.HasContext() && conv.IsFollowUp(req.Query)
	if followUp {
		effective = fmt.Sprintf("Context:\n%s\n\nCurrent question: %s", conv.Context(s.contextTurns), req.Query)
		s.logger.Debug("follow-up question, adding conversation context", zap.String("session", sid))
	}

	if s.cache != nil {
		if resp, ok := s.cache.Get(req.Query); ok {
			metrics.IncCacheLookup(true)
			return s.cachedAnswer(ctx, conv, req.Query, resp, start), nil
		}
		metrics.IncCacheLookup(false)
	}

	conv.AddMessage(models.RoleUser, req.Query, nil)

	times := &stageTimes{}
	ctx = withStageTimes(ctx, times)

	resp := models.QueryResponse{SessionID: sid}
	path := metrics.PathSimple
	answered := false
	if req.UseWorkflow {
		st, err := s.engine.Run(ctx, req.Query, topK)
		if err == nil {
			path = metrics.PathWorkflow
			answered = true
			resp.Answer = st.Answer
			resp.Confidence = st.Confidence
			resp.ShouldEscalate = st.Escalate || st.Ticket != nil
			if resp.Answer == "" {
				resp.Answer = HandoffAnswer
			}
			resp.Documents = st.Documents
			resp.Trace = st.Trace
			resp.Ticket = st.Ticket
		} else {
			s.logger.Error("workflow failed, falling back to simple path",
				zap.String("session", sid), zap.Error(err))
			metrics.IncFallback()
			resp.Metrics.FallbackUsed = true
		}
	}
	if !answered {
		if err := s.simpleAnswer(ctx, effective, req.Query, topK, &resp); err != nil {
			s.save(ctx, conv)
			return models.QueryResponse{}, err
		}
	}

	conv.AddMessage(models.RoleAssistant, resp.Answer, map[string]any{
		"confidence":    resp.Confidence,
		"escalate":      resp.ShouldEscalate,
		"num_documents": len(resp.Documents),
	})
	s.save(ctx, conv)

	resp.Metrics.RetrievalMs = millis(times.retrieval)
	resp.Metrics.GenerationMs = millis(times.generation)
	resp.Metrics.TotalMs = millis(time.Since(start))
	resp.Metrics.NumDocuments = len(resp.Documents)
	resp.Metrics.WorkflowUsed = req.UseWorkflow
	resp.Metrics.ConversationTurns = conv.Len()

	s.logger.Info("query answered",
		zap.String("session", sid),
		zap.String("path", path),
		zap.Int("documents", len(resp.Documents)),
		zap.Float64("confidence", resp.Confidence),
		zap.Bool("escalate", resp.ShouldEscalate),
		zap.Float64("retrieval_ms", resp.Metrics.RetrievalMs),
		zap.Float64("generation_ms", resp.Metrics.GenerationMs),
	)
	metrics.ObserveQuery(path, start, resp.ShouldEscalate)

	if s.cache != nil && resp.Confidence >= s.minConfidence && !resp.ShouldEscalate {
		s.cache.Set(req.Query, resp)
	}
	return resp, nil
}

// simpleAnswer retrieves with the context-augmented query and answers the
// raw one. A retrieval error is answered with no documents; only a
// generation error fails the request.
func (s *Service) simpleAnswer(ctx context.Context, query, raw string, topK int, resp *models.QueryResponse) error {
	docs, err := s.retriever.Retrieve(ctx, query, topK)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		s.logger.Warn("retrieval failed, answering without documents", zap.Error(err))
		metrics.IncRetrievalFailure()
		docs = nil
	}
	if len(docs) > topK {
		docs = docs[:topK]
	}
	ans, err := s.generator.Generate(ctx, raw, docs)
	if err != nil {
		return fmt.Errorf("%w: %w", workflow.ErrGeneration, err)
	}
	resp.Answer = ans
	resp.Documents = docs
	resp.Confidence = s.policy.Confidence(raw, ans)
	resp.ShouldEscalate = s.policy.ShouldEscalate(raw, ans)
	return nil
}

func (s *Service) cachedAnswer(ctx context.Context, conv *memory.Conversation, query string, resp models.QueryResponse, start time.Time) models.QueryResponse {
	conv.AddMessage(models.RoleUser, query, nil)
	conv.AddMessage(models.RoleAssistant, resp.Answer, map[string]any{
		"cached":     true,
		"confidence": resp.Confidence,
	})
	s.save(ctx, conv)

	resp.SessionID = conv.ID()
	resp.Cached = true
	resp.Metrics.RetrievalMs = 0
	resp.Metrics.GenerationMs = 0
	resp.Metrics.TotalMs = millis(time.Since(start))
	resp.Metrics.ConversationTurns = conv.Len()
	metrics.ObserveQuery(metrics.PathCache, start, resp.ShouldEscalate)
	return resp
}

func (s *Service) save(ctx context.Context, conv *memory.Conversation) {
	if err := s.sessions.Save(ctx, conv); err != nil {
		s.logger.Warn("session save failed", zap.String("session", conv.ID()), zap.Error(err))
	}
}

// CacheStats reports query cache counters. A disabled cache reports zeros.
func (s *Service) CacheStats() models.CacheStats {
	if s.cache == nil {
		return models.CacheStats{}
	}
	return s.cache.Stats()
}

// PopularQueries returns the n most reused cached queries.
func (s *Service) PopularQueries(n int) []models.PopularQuery {
	if s.cache == nil {
		return nil
	}
	return s.cache.Popular(n)
}

// ClearCache empties the query cache and returns how many entries it held.
func (s *Service) ClearCache() int {
	if s.cache == nil {
		return 0
	}
	n := s.cache.Len()
	s.cache.Clear()
	return n
}

// InvalidateCache drops cached queries whose normalized text contains substr.
func (s *Service) InvalidateCache(substr string) int {
	if s.cache == nil {
		return 0
	}
	return s.cache.InvalidateMatching(substr)
}

// SessionHistory returns the kept messages of a session, oldest first.
func (s *Service) SessionHistory(ctx context.Context, id string) ([]models.Message, error) {
	conv, err := s.sessions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return conv.History(), nil
}

// Session exports a session with its bookkeeping.
func (s *Service) Session(ctx context.Context, id string) (models.SessionRecord, error) {
	conv, err := s.sessions.Get(ctx, id)
	if err != nil {
		return models.SessionRecord{}, err
	}
	return conv.ToRecord(), nil
}

// DeleteSession forgets a session. Unknown ids are not an error.
func (s *Service) DeleteSession(ctx context.Context, id string) error {
	unlock := s.lockSession(id)
	defer unlock()
	return s.sessions.Delete(ctx, id)
}

// RecordFeedback validates and stores a rating.
func (s *Service) RecordFeedback(ctx context.Context, e models.FeedbackEntry) (models.FeedbackEntry, error) {
	if err := feedback.ValidateRating(e.Rating); err != nil {
		return e, err
	}
	if s.feedback == nil {
		return e, ErrFeedbackDisabled
	}
	e, err := s.feedback.Record(ctx, e)
	if err != nil {
		return e, err
	}
	metrics.ObserveRating(e.Rating)
	s.logger.Info("feedback recorded", zap.Int("rating", e.Rating), zap.String("session", e.SessionID))
	return e, nil
}

// FeedbackStats aggregates recorded feedback.
func (s *Service) FeedbackStats(ctx context.Context) (models.FeedbackStats, error) {
	if s.feedback == nil {
		return models.FeedbackStats{}, ErrFeedbackDisabled
	}
	return s.feedback.Stats(ctx)
}

// FeedbackSuggestions derives improvement hints from recorded feedback.
func (s *Service) FeedbackSuggestions(ctx context.Context) ([]string, error) {
	if s.feedback == nil {
		return nil, ErrFeedbackDisabled
	}
	return s.feedback.Suggestions(ctx)
}

// FeedbackReport bundles feedback analytics.
func (s *Service) FeedbackReport(ctx context.Context) (models.FeedbackReport, error) {
	if s.feedback == nil {
		return models.FeedbackReport{}, ErrFeedbackDisabled
	}
	return s.feedback.Report(ctx)
}
