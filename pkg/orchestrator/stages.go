package orchestrator

import (
	"context"
	"time"

	"github.com/pario-ai/supportdesk/pkg/metrics"
	"github.com/pario-ai/supportdesk/pkg/models"
	"github.com/pario-ai/supportdesk/pkg/workflow"
)

// Stage names used for timing.
const (
	stageRetrieval  = "retrieval"
	stageGeneration = "generation"
)

// stageTimes accumulates per-query collaborator time. One query runs on one
// goroutine, so no locking.
type stageTimes struct {
	retrieval  time.Duration
	generation time.Duration
}

type stageTimesKey struct{}

func withStageTimes(ctx context.Context, t *stageTimes) context.Context {
	return context.WithValue(ctx, stageTimesKey{}, t)
}

func stageTimesFrom(ctx context.Context) *stageTimes {
	t, _ := ctx.Value(stageTimesKey{}).(*stageTimes)
	return t
}

// timedRetriever applies the retrieval deadline and records how long it took.
type timedRetriever struct {
	next    workflow.Retriever
	timeout time.Duration
}

func (r timedRetriever) Retrieve(ctx context.Context, query string, topK int) ([]models.Document, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	start := time.Now()
	docs, err := r.next.Retrieve(ctx, query, topK)
	d := time.Since(start)
	metrics.ObserveStage(stageRetrieval, d)
	if t := stageTimesFrom(ctx); t != nil {
		t.retrieval += d
	}
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	return docs, err
}

// timedGenerator applies the generation deadline and records how long it took.
type timedGenerator struct {
	next    workflow.Generator
	timeout time.Duration
}

func (g timedGenerator) Generate(ctx context.Context, query string, docs []models.Document) (string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	start := time.Now()
	ans, err := g.next.Generate(ctx, query, docs)
	d := time.Since(start)
	metrics.ObserveStage(stageGeneration, d)
	if t := stageTimesFrom(ctx); t != nil {
		t.generation += d
	}
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	return ans, err
}

func millis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
