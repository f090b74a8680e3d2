package generator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/pario-ai/supportdesk/pkg/models"
)

// Chain tries generators in order and returns the first answer.
// Cancellation stops the chain immediately.
type Chain struct {
	gens   []Generator
	logger *zap.Logger
}

// NewChain returns a Chain over gens. It panics on an empty list.
func NewChain(logger *zap.Logger, gens ...Generator) *Chain {
	if len(gens) == 0 {
		panic("generator: empty chain")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Chain{gens: gens, logger: logger}
}

// Name lists member names in try order, e.g. "openai>local".
func (c *Chain) Name() string {
	names := make([]string, len(c.gens))
	for i, g := range c.gens {
		names[i] = nameOf(g)
	}
	return strings.Join(names, ">")
}

// State reports the breaker state of the first member that has one.
func (c *Chain) State() string {
	for _, g := range c.gens {
		if s, ok := g.(interface{ State() string }); ok {
			return s.State()
		}
	}
	return ""
}

// Generate implements Generator.
func (c *Chain) Generate(ctx context.Context, query string, docs []models.Document) (string, error) {
	var errs []error
	for i, g := range c.gens {
		answer, err := g.Generate(ctx, query, docs)
		if err == nil {
			return answer, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		errs = append(errs, fmt.Errorf("%s: %w", nameOf(g), err))
		if i < len(c.gens)-1 {
			c.logger.Warn("generator failed, trying next",
				zap.String("failed", nameOf(g)),
				zap.String("next", nameOf(c.gens[i+1])),
				zap.Error(err))
		}
	}
	return "", errors.Join(errs...)
}

func nameOf(g Generator) string {
	if n, ok := g.(Named); ok {
		return n.Name()
	}
	return "generator"
}
