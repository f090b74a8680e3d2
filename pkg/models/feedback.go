package models

import "time"

// FeedbackEntry is a user rating of one answer.
type FeedbackEntry struct {
	ID        int64          `json:"id"`
	SessionID string         `json:"session_id,omitempty"`
	Query     string         `json:"query"`
	Answer    string         `json:"answer"`
	Rating    int            `json:"rating"`
	Comment   string         `json:"comment,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// FeedbackStats aggregates all recorded feedback.
type FeedbackStats struct {
	TotalFeedback      int         `json:"total_feedback"`
	AverageRating      float64     `json:"average_rating"`
	RatingDistribution map[int]int `json:"rating_distribution"`
	PositiveRate       float64     `json:"positive_rate"`
	NegativeRate       float64     `json:"negative_rate"`
	WithComments       int         `json:"with_comments"`
}

// IssueCount is a frequent word among low-rated queries.
type IssueCount struct {
	Word  string `json:"word"`
	Count int    `json:"count"`
}

// FeedbackReport bundles feedback analytics for export.
type FeedbackReport struct {
	GeneratedAt      time.Time       `json:"generated_at"`
	Statistics       FeedbackStats   `json:"statistics"`
	LowRatedExamples []FeedbackEntry `json:"low_rated_examples"`
	CommonIssues     []IssueCount    `json:"common_issues"`
	Suggestions      []string        `json:"suggestions"`
}
