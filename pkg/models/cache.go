package models

// CacheStats reports query cache size and hit accounting.
type CacheStats struct {
	Size           int     `json:"size"`
	MaxSize        int     `json:"max_size"`
	Hits           int64   `json:"hits"`
	Misses         int64   `json:"misses"`
	TotalRequests  int64   `json:"total_requests"`
	HitRatePercent float64 `json:"hit_rate_percent"`
	TTLMinutes     float64 `json:"ttl_minutes"`
}

// PopularQuery is a cached query and how often it has been served from cache.
type PopularQuery struct {
	Query    string `json:"query"`
	HitCount int    `json:"hit_count"`
}
