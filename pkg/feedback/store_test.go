package feedback

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/pario-ai/supportdesk/pkg/config"
	"github.com/pario-ai/supportdesk/pkg/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(config.FeedbackConfig{
		DBPath:        filepath.Join(t.TempDir(), "feedback_test.db"),
		RetentionDays: 90,
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func record(t *testing.T, s *Store, query string, rating int, comment string) models.FeedbackEntry {
	t.Helper()
	e, err := s.Record(context.Background(), models.FeedbackEntry{
		SessionID: "sess-1",
		Query:     query,
		Answer:    "answer to " + query,
		Rating:    rating,
		Comment:   comment,
	})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	return e
}

func TestRecordAndList(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	e, err := s.Record(ctx, models.FeedbackEntry{
		Query:    "reset password",
		Answer:   "Open Settings.",
		Rating:   5,
		Metadata: map[string]any{"confidence": 0.8},
	})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if e.ID == 0 || e.CreatedAt.IsZero() {
		t.Errorf("expected id and timestamp, got %+v", e)
	}

	entries, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	got := entries[0]
	if got.Query != "reset password" || got.Rating != 5 {
		t.Errorf("unexpected entry %+v", got)
	}
	if got.Metadata["confidence"] != 0.8 {
		t.Errorf("metadata = %v", got.Metadata)
	}
}

func TestRecordInvalidRating(t *testing.T) {
	s := newTestStore(t)
	for _, r := range []int{0, 6, -1} {
		_, err := s.Record(context.Background(), models.FeedbackEntry{Query: "q", Rating: r})
		if !errors.Is(err, ErrInvalidRating) {
			t.Errorf("rating %d: expected ErrInvalidRating, got %v", r, err)
		}
	}
	entries, _ := s.List(context.Background())
	if len(entries) != 0 {
		t.Errorf("invalid ratings must not be stored, got %d", len(entries))
	}
}

func TestLowAndHighRated(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for i, r := range []int{1, 2, 3, 4, 5} {
		record(t, s, "query "+string(rune('a'+i)), r, "")
	}

	low, err := s.LowRated(ctx, 3)
	if err != nil {
		t.Fatalf("LowRated: %v", err)
	}
	if len(low) != 3 {
		t.Errorf("low rated = %d, want 3", len(low))
	}
	high, err := s.HighRated(ctx, 4)
	if err != nil {
		t.Fatalf("HighRated: %v", err)
	}
	if len(high) != 2 {
		t.Errorf("high rated = %d, want 2", len(high))
	}
}

func TestStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.TotalFeedback != 0 || st.AverageRating != 0 || len(st.RatingDistribution) != 5 {
		t.Errorf("empty stats = %+v", st)
	}

	record(t, s, "a", 5, "great")
	record(t, s, "b", 4, "")
	record(t, s, "c", 1, "bad")

	st, err = s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.TotalFeedback != 3 {
		t.Errorf("total = %d", st.TotalFeedback)
	}
	if st.AverageRating != 3.33 {
		t.Errorf("average = %v, want 3.33", st.AverageRating)
	}
	if st.PositiveRate != 66.67 || st.NegativeRate != 33.33 {
		t.Errorf("rates = %v / %v", st.PositiveRate, st.NegativeRate)
	}
	if st.WithComments != 2 {
		t.Errorf("with comments = %d", st.WithComments)
	}
	if st.RatingDistribution[5] != 1 || st.RatingDistribution[1] != 1 || st.RatingDistribution[3] != 0 {
		t.Errorf("distribution = %v", st.RatingDistribution)
	}
}

func TestCommonIssues(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	record(t, s, "Billing invoice wrong", 1, "")
	record(t, s, "billing refund missing", 2, "")
	record(t, s, "refund billing", 3, "")
	record(t, s, "billing works", 5, "")

	issues, err := s.CommonIssues(ctx, 2)
	if err != nil {
		t.Fatalf("CommonIssues: %v", err)
	}
	if len(issues) != 2 {
		t.Fatalf("issues = %v", issues)
	}
	if issues[0] != (models.IssueCount{Word: "billing", Count: 3}) {
		t.Errorf("first issue = %+v", issues[0])
	}
	if issues[1] != (models.IssueCount{Word: "refund", Count: 2}) {
		t.Errorf("second issue = %+v", issues[1])
	}
}

func TestSuggestions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	record(t, s, "billing problem", 1, "")
	record(t, s, "billing again", 2, "")

	sugg, err := s.Suggestions(ctx)
	if err != nil {
		t.Fatalf("Suggestions: %v", err)
	}
	joined := strings.Join(sugg, "\n")
	for _, want := range []string{
		"Average rating is low (1.50/5.0)",
		"100.0% of feedback is negative",
		"Common topics in low-rated queries: billing.",
		"Collect more feedback",
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("suggestions missing %q:\n%s", want, joined)
		}
	}
	if strings.Contains(joined, "Great performance") {
		t.Errorf("unexpected praise:\n%s", joined)
	}
}

func TestSuggestGoodPerformance(t *testing.T) {
	st := models.FeedbackStats{TotalFeedback: 20, AverageRating: 4.5, PositiveRate: 90}
	got := suggest(st, nil)
	if len(got) != 1 || !strings.HasPrefix(got[0], "Great performance! 90.0% positive") {
		t.Errorf("suggest = %v", got)
	}
}

func TestReport(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for i := 0; i < 12; i++ {
		record(t, s, "terrible answer", 1, "")
	}
	record(t, s, "fine answer", 3, "")

	rep, err := s.Report(ctx)
	if err != nil {
		t.Fatalf("Report: %v", err)
	}
	if len(rep.LowRatedExamples) != reportExamples {
		t.Errorf("examples = %d, want %d", len(rep.LowRatedExamples), reportExamples)
	}
	if rep.Statistics.TotalFeedback != 13 {
		t.Errorf("total = %d", rep.Statistics.TotalFeedback)
	}
	if len(rep.CommonIssues) == 0 || rep.CommonIssues[0].Word != "answer" {
		t.Errorf("issues = %v", rep.CommonIssues)
	}
	if rep.GeneratedAt.IsZero() {
		t.Error("missing generated_at")
	}
}

func TestCleanup(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.Record(ctx, models.FeedbackEntry{
		Query: "old", Rating: 3, CreatedAt: time.Now().AddDate(0, 0, -100),
	}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	record(t, s, "new", 4, "")

	n, err := s.Cleanup(ctx, 90*24*time.Hour)
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if n != 1 {
		t.Errorf("deleted = %d, want 1", n)
	}
	entries, _ := s.List(ctx)
	if len(entries) != 1 || entries[0].Query != "new" {
		t.Errorf("remaining = %+v", entries)
	}
}
