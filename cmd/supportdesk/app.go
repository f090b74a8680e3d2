package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/pario-ai/supportdesk/pkg/cache"
	cachesqlite "github.com/pario-ai/supportdesk/pkg/cache/sqlite"
	"github.com/pario-ai/supportdesk/pkg/config"
	"github.com/pario-ai/supportdesk/pkg/feedback"
	"github.com/pario-ai/supportdesk/pkg/generator"
	"github.com/pario-ai/supportdesk/pkg/logging"
	"github.com/pario-ai/supportdesk/pkg/memory"
	"github.com/pario-ai/supportdesk/pkg/models"
	"github.com/pario-ai/supportdesk/pkg/orchestrator"
	"github.com/pario-ai/supportdesk/pkg/policy"
	"github.com/pario-ai/supportdesk/pkg/retriever/keyword"
	"github.com/pario-ai/supportdesk/pkg/retriever/vector"
	"github.com/pario-ai/supportdesk/pkg/workflow"
)

// app holds everything built from a config file.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	cache    *cache.QueryCache
	sessions memory.Store
	feedback *feedback.Store
	svc      *orchestrator.Service

	closers []func() error
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if problems := cfg.Validate(); len(problems) > 0 {
		return nil, fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return logger, nil
}

// buildApp wires the orchestrator and its collaborators from configPath.
func buildApp(ctx context.Context, configPath string) (*app, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	if cfg.Cache.Enabled {
		a.cache = cache.New(cfg.Cache.MaxSize, cfg.Cache.TTL)
		if err := loadSnapshot(ctx, cfg.Cache.SnapshotPath, a.cache); err != nil {
			logger.Warn("cache snapshot not restored", zap.String("path", cfg.Cache.SnapshotPath), zap.Error(err))
		} else if cfg.Cache.SnapshotPath != "" {
			logger.Info("cache snapshot restored", zap.Int("entries", a.cache.Len()))
		}
	}

	if a.sessions, err = openSessions(ctx, cfg, a); err != nil {
		return nil, err
	}

	ret, err := openRetriever(cfg)
	if err != nil {
		return nil, err
	}

	gen, err := generator.New(cfg.Generator, logger.Named("generator"))
	if err != nil {
		return nil, fmt.Errorf("init generator: %w", err)
	}

	if cfg.Feedback.DBPath != "" {
		a.feedback, err = feedback.New(cfg.Feedback, logger.Named("feedback"))
		if err != nil {
			return nil, fmt.Errorf("init feedback: %w", err)
		}
		a.closers = append(a.closers, a.feedback.Close)
	}

	deps := orchestrator.Deps{
		Cache:     a.cache,
		Sessions:  a.sessions,
		Retriever: ret,
		Generator: gen,
		Policy:    policy.New(cfg.Policy.EscalatePhrases...),
		Tickets:   logTickets{logger: logger.Named("tickets")},
		Logger:    logger.Named("orchestrator"),
	}
	if a.feedback != nil {
		deps.Feedback = a.feedback
	}
	a.svc = orchestrator.New(cfg, deps)

	ok = true
	return a, nil
}

func openSessions(ctx context.Context, cfg *config.Config, a *app) (memory.Store, error) {
	sc := cfg.Session
	if sc.Store == "redis" {
		client := redis.NewClient(&redis.Options{
			Addr:     sc.Redis.Addr,
			Password: sc.Redis.Password,
			DB:       sc.Redis.DB,
		})
		a.closers = append(a.closers, client.Close)
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("connect redis %s: %w", sc.Redis.Addr, err)
		}
		return memory.NewRedisStore(client, sc.Redis.KeyPrefix, sc.MaxMessages, sc.IdleTimeout), nil
	}

	store := memory.NewInMemoryStore(sc.MaxMessages, sc.IdleTimeout)
	if sc.IdleTimeout > 0 {
		store.StartJanitor(janitorInterval(sc.IdleTimeout))
	}
	a.closers = append(a.closers, store.Close)
	return store, nil
}

func openRetriever(cfg *config.Config) (workflow.Retriever, error) {
	rc := cfg.Retriever
	if rc.Type == "vector" {
		r, err := vector.Open(rc.PersistDir, rc.Collection, vector.EmbeddingFunc(rc.Embedding))
		if err != nil {
			return nil, fmt.Errorf("init vector retriever: %w", err)
		}
		return r, nil
	}
	r, err := keyword.FromDir(rc.DocsDir, rc.ChunkSize, rc.ChunkOverlap)
	if err != nil {
		return nil, fmt.Errorf("init keyword retriever: %w", err)
	}
	return r, nil
}

// Close persists the cache snapshot and releases resources in reverse order.
func (a *app) Close() {
	if a.cache != nil && a.cfg.Cache.SnapshotPath != "" {
		if err := saveSnapshot(context.Background(), a.cfg.Cache.SnapshotPath, a.cache); err != nil {
			a.logger.Error("cache snapshot not saved", zap.Error(err))
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close failed", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}

func isSQLitePath(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".sqlite", ".sqlite3":
		return true
	}
	return false
}

// loadSnapshot restores c from path. SQLite files use the table store,
// anything else is a JSON snapshot. An empty path is a no-op.
func loadSnapshot(ctx context.Context, path string, c *cache.QueryCache) error {
	if path == "" {
		return nil
	}
	if !isSQLitePath(path) {
		return c.LoadFile(path)
	}
	store, err := cachesqlite.New(path)
	if err != nil {
		return err
	}
	defer store.Close()
	snap, err := store.Load(ctx)
	if err != nil {
		return err
	}
	return c.Restore(snap)
}

func saveSnapshot(ctx context.Context, path string, c *cache.QueryCache) error {
	if !isSQLitePath(path) {
		return c.SaveFile(path)
	}
	store, err := cachesqlite.New(path)
	if err != nil {
		return err
	}
	defer store.Close()
	return store.Save(ctx, c.Snapshot())
}

// logTickets records escalation tickets in the log until a ticketing
// system is wired in.
type logTickets struct {
	logger *zap.Logger
}

func (l logTickets) Submit(_ context.Context, t models.TicketRecord) error {
	l.logger.Info("escalation ticket",
		zap.String("subject", t.Subject),
		zap.String("reason", t.Reason),
		zap.Int("context_chars", len(t.Context)))
	return nil
}

// janitorInterval sweeps idle sessions a few times per timeout, at most once a minute.
func janitorInterval(idle time.Duration) time.Duration {
	if d := idle / 4; d > time.Minute {
		return d
	}
	return time.Minute
}
