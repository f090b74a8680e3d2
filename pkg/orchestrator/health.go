package orchestrator

// Health describes the service for GET /health.
type Health struct {
	Status       string `json:"status"`
	Retriever    string `json:"retriever"`
	Generator    string `json:"generator"`
	BreakerState string `json:"breaker_state,omitempty"`
	CacheEnabled bool   `json:"cache_enabled"`
	CacheSize    int    `json:"cache_size"`
}

type named interface{ Name() string }

type stateReporter interface{ State() string }

func nameOf(v any, fallback string) string {
	if n, ok := v.(named); ok {
		return n.Name()
	}
	return fallback
}

func reporterOf(v any) stateReporter {
	r, _ := v.(stateReporter)
	return r
}

// Health reports "degraded" while the generator breaker is open.
func (s *Service) Health() Health {
	h := Health{
		Status:       "healthy",
		Retriever:    s.retrieverName,
		Generator:    s.generatorName,
		CacheEnabled: s.cache != nil,
	}
	if s.cache != nil {
		h.CacheSize = s.cache.Len()
	}
	if s.breaker != nil {
		h.BreakerState = s.breaker.State()
		if h.BreakerState == "open" {
			h.Status = "degraded"
		}
	}
	return h
}
