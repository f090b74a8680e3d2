package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all supportdesk configuration.
type Config struct {
	Listen    string          `yaml:"listen"`
	Log       LogConfig       `yaml:"log"`
	Cache     CacheConfig     `yaml:"cache"`
	Session   SessionConfig   `yaml:"session"`
	Policy    PolicyConfig    `yaml:"policy"`
	Retriever RetrieverConfig `yaml:"retriever"`
	Generator GeneratorConfig `yaml:"generator"`
	Feedback  FeedbackConfig  `yaml:"feedback"`
	Timeouts  TimeoutConfig   `yaml:"timeouts"`
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// CacheConfig controls the query cache and its optional snapshot file.
type CacheConfig struct {
	Enabled       bool          `yaml:"enabled"`
	MaxSize       int           `yaml:"max_size"`
	TTL           time.Duration `yaml:"ttl"`
	SnapshotPath  string        `yaml:"snapshot_path"`
	MinConfidence float64       `yaml:"min_confidence"` // lowest confidence still cached
}

// SessionConfig controls conversation memory.
// Store is "memory" (default) or "redis".
type SessionConfig struct {
	Store        string        `yaml:"store"`
	MaxMessages  int           `yaml:"max_messages"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
	ContextTurns int           `yaml:"context_turns"`
	Redis        RedisConfig   `yaml:"redis"`
}

// RedisConfig locates the Redis session store.
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// PolicyConfig tunes the escalation policy.
type PolicyConfig struct {
	EscalatePhrases []string `yaml:"escalate_phrases"`
}

// RetrieverConfig selects and configures the document retriever.
// Type is "keyword" (default) or "vector".
type RetrieverConfig struct {
	Type         string          `yaml:"type"`
	DocsDir      string          `yaml:"docs_dir"`
	PersistDir   string          `yaml:"persist_dir"`
	Collection   string          `yaml:"collection"`
	ChunkSize    int             `yaml:"chunk_size"`
	ChunkOverlap int             `yaml:"chunk_overlap"`
	TopK         int             `yaml:"top_k"`
	Embedding    EmbeddingConfig `yaml:"embedding"`
}

// EmbeddingConfig points the vector retriever at an embedding backend.
// Provider is "openai" (default, any OpenAI-compatible endpoint) or "ollama".
type EmbeddingConfig struct {
	Provider string `yaml:"provider"`
	URL      string `yaml:"url"`
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
}

// GeneratorConfig selects the answer generator.
// Mode is "local" (default) or "openai". In openai mode, Fallback "local"
// answers with the local heuristic when the hosted model fails.
type GeneratorConfig struct {
	Mode        string        `yaml:"mode"`
	Fallback    string        `yaml:"fallback"`
	URL         string        `yaml:"url"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	Temperature float64       `yaml:"temperature"`
	MaxTokens   int64         `yaml:"max_tokens"`
	Breaker     BreakerConfig `yaml:"breaker"`
}

// BreakerConfig controls the circuit breaker around the hosted generator.
type BreakerConfig struct {
	MaxFailures uint32        `yaml:"max_failures"`
	OpenTimeout time.Duration `yaml:"open_timeout"`
}

// FeedbackConfig controls feedback persistence.
type FeedbackConfig struct {
	DBPath        string `yaml:"db_path"`
	RetentionDays int    `yaml:"retention_days"`
}

// TimeoutConfig bounds calls to external collaborators. Zero disables a bound.
type TimeoutConfig struct {
	Retrieval  time.Duration `yaml:"retrieval"`
	Generation time.Duration `yaml:"generation"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Listen: ":8000",
		Log: LogConfig{
			Level: "info",
		},
		Cache: CacheConfig{
			Enabled:       true,
			MaxSize:       1000,
			TTL:           time.Hour,
			MinConfidence: 0.6,
		},
		Session: SessionConfig{
			Store:        "memory",
			MaxMessages:  10,
			IdleTimeout:  24 * time.Hour,
			ContextTurns: 3,
			Redis: RedisConfig{
				Addr:      "localhost:6379",
				KeyPrefix: "supportdesk:",
			},
		},
		Policy: PolicyConfig{
			EscalatePhrases: []string{"i don't know", "i am not sure", "i'm not sure"},
		},
		Retriever: RetrieverConfig{
			Type:         "keyword",
			DocsDir:      "data/docs",
			PersistDir:   ".chroma",
			Collection:   "support_docs",
			ChunkSize:    500,
			ChunkOverlap: 50,
			TopK:         3,
			Embedding: EmbeddingConfig{
				Provider: "openai",
				Model:    "text-embedding-3-small",
			},
		},
		Generator: GeneratorConfig{
			Mode:        "local",
			Model:       "gpt-4o-mini",
			Temperature: 0.7,
			MaxTokens:   512,
			Breaker: BreakerConfig{
				MaxFailures: 5,
				OpenTimeout: 30 * time.Second,
			},
		},
		Feedback: FeedbackConfig{
			DBPath:        "feedback.db",
			RetentionDays: 90,
		},
		Timeouts: TimeoutConfig{
			Retrieval:  10 * time.Second,
			Generation: 30 * time.Second,
		},
	}
}

// Load reads a YAML config file and expands environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault is Load, except a missing file yields Default().
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}
	return Load(path)
}

// Validate reports configuration problems. An empty result means the config is usable.
func (c *Config) Validate() []string {
	var issues []string

	if c.Cache.MaxSize <= 0 {
		issues = append(issues, "cache.max_size must be positive")
	}
	if c.Cache.TTL <= 0 {
		issues = append(issues, "cache.ttl must be positive")
	}
	if c.Session.MaxMessages <= 0 {
		issues = append(issues, "session.max_messages must be positive")
	}
	switch c.Session.Store {
	case "memory", "":
	case "redis":
		if c.Session.Redis.Addr == "" {
			issues = append(issues, "session.redis.addr is required for the redis store")
		}
	default:
		issues = append(issues, fmt.Sprintf("unknown session store %q", c.Session.Store))
	}

	switch c.Retriever.Type {
	case "keyword", "":
		if c.Retriever.DocsDir == "" {
			issues = append(issues, "retriever.docs_dir is required for the keyword retriever")
		}
	case "vector":
		if c.Retriever.PersistDir == "" {
			issues = append(issues, "retriever.persist_dir is required for the vector retriever")
		}
	default:
		issues = append(issues, fmt.Sprintf("unknown retriever type %q", c.Retriever.Type))
	}
	if c.Retriever.ChunkOverlap >= c.Retriever.ChunkSize {
		issues = append(issues, "retriever.chunk_overlap must be smaller than chunk_size")
	}
	if c.Retriever.TopK < 1 || c.Retriever.TopK > 10 {
		issues = append(issues, "retriever.top_k must be between 1 and 10")
	}

	switch c.Generator.Mode {
	case "local", "":
	case "openai":
		if c.Generator.APIKey == "" {
			issues = append(issues, "generator.api_key is required in openai mode")
		}
		if f := c.Generator.Fallback; f != "" && f != "local" {
			issues = append(issues, fmt.Sprintf("unknown generator fallback %q", f))
		}
	default:
		issues = append(issues, fmt.Sprintf("unknown generator mode %q", c.Generator.Mode))
	}
	if c.Generator.Temperature < 0 || c.Generator.Temperature > 2 {
		issues = append(issues, "generator.temperature must be between 0 and 2")
	}

	if c.Cache.MinConfidence < 0 || c.Cache.MinConfidence > 1 {
		issues = append(issues, "cache.min_confidence must be between 0 and 1")
	}

	return issues
}
