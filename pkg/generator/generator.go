// Package generator turns a query and retrieved documents into an answer.
// The backend is picked once at construction: a deterministic local
// heuristic, or a hosted OpenAI-compatible model behind a circuit breaker,
// optionally chained to the local heuristic as a fallback.
package generator

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/pario-ai/supportdesk/pkg/config"
	"github.com/pario-ai/supportdesk/pkg/models"
)

// Generator produces an answer for query from docs.
type Generator interface {
	Generate(ctx context.Context, query string, docs []models.Document) (string, error)
}

// Named generators report a short backend name for health output.
type Named interface {
	Name() string
}

// New builds the generator selected by cfg.Mode.
func New(cfg config.GeneratorConfig, logger *zap.Logger) (Generator, error) {
	switch cfg.Mode {
	case "", "local":
		return NewLocal(), nil
	case "openai":
		g := Generator(NewBreaker(NewOpenAI(cfg), cfg.Breaker, logger))
		switch cfg.Fallback {
		case "":
			return g, nil
		case "local":
			return NewChain(logger, g, NewLocal()), nil
		}
		return nil, fmt.Errorf("unknown generator fallback %q", cfg.Fallback)
	}
	return nil, fmt.Errorf("unknown generator mode %q", cfg.Mode)
}
