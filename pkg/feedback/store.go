// Package feedback records user ratings of answers in SQLite and derives
// quality analytics from them.
package feedback

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/pario-ai/supportdesk/pkg/config"
	"github.com/pario-ai/supportdesk/pkg/models"
)

// ErrInvalidRating is returned for ratings outside 1..5.
var ErrInvalidRating = errors.New("rating must be between 1 and 5")

// Rating bands.
const (
	MinRating = 1
	MaxRating = 5

	PositiveRating = 4
	NegativeRating = 2
	LowRating      = 3

	reportExamples = 10
	issueWordRunes = 3
)

// Store writes and queries feedback in a dedicated SQLite database.
type Store struct {
	db        *sql.DB
	retention time.Duration
	logger    *zap.Logger
	done      chan struct{}
	wg        sync.WaitGroup
	once      sync.Once
}

// New opens the feedback database and creates the schema. With a positive
// retention it also starts an hourly cleanup loop.
func New(cfg config.FeedbackConfig, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := sql.Open("sqlite", cfg.DBPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open feedback db: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate feedback db: %w", err)
	}

	s := &Store{
		db:        db,
		retention: time.Duration(cfg.RetentionDays) * 24 * time.Hour,
		logger:    logger,
		done:      make(chan struct{}),
	}
	if s.retention > 0 {
		s.wg.Add(1)
		go s.retentionLoop()
	}
	return s, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS feedback (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT,
		query      TEXT NOT NULL,
		answer     TEXT NOT NULL,
		rating     INTEGER NOT NULL CHECK (rating BETWEEN 1 AND 5),
		comment    TEXT NOT NULL DEFAULT '',
		metadata   TEXT,
		created_at DATETIME NOT NULL
	)`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_feedback_rating ON feedback(rating)`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_feedback_created ON feedback(created_at)`)
	return err
}

// ValidateRating checks that r is within 1..5.
func ValidateRating(r int) error {
	if r < MinRating || r > MaxRating {
		return fmt.Errorf("%w: got %d", ErrInvalidRating, r)
	}
	return nil
}

// Record stores an entry and returns it with its id and timestamp set.
func (s *Store) Record(ctx context.Context, e models.FeedbackEntry) (models.FeedbackEntry, error) {
	if err := ValidateRating(e.Rating); err != nil {
		return e, err
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	e.CreatedAt = e.CreatedAt.UTC()

	var meta sql.NullString
	if len(e.Metadata) > 0 {
		b, err := json.Marshal(e.Metadata)
		if err != nil {
			return e, fmt.Errorf("encode feedback metadata: %w", err)
		}
		meta = sql.NullString{String: string(b), Valid: true}
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO feedback (session_id, query, answer, rating, comment, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.SessionID, e.Query, e.Answer, e.Rating, e.Comment, meta, e.CreatedAt)
	if err != nil {
		return e, fmt.Errorf("insert feedback: %w", err)
	}
	if e.ID, err = res.LastInsertId(); err != nil {
		return e, fmt.Errorf("feedback id: %w", err)
	}
	return e, nil
}

// List returns every entry in insertion order.
func (s *Store) List(ctx context.Context) ([]models.FeedbackEntry, error) {
	return s.query(ctx, "")
}

// LowRated returns entries rated at or below threshold.
func (s *Store) LowRated(ctx context.Context, threshold int) ([]models.FeedbackEntry, error) {
	return s.query(ctx, " WHERE rating <= ?", threshold)
}

// HighRated returns entries rated at or above threshold.
func (s *Store) HighRated(ctx context.Context, threshold int) ([]models.FeedbackEntry, error) {
	return s.query(ctx, " WHERE rating >= ?", threshold)
}

func (s *Store) query(ctx context.Context, where string, args ...any) ([]models.FeedbackEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, query, answer, rating, comment, metadata, created_at
		 FROM feedback`+where+` ORDER BY id`, args...)
	if err != nil {
		return nil, fmt.Errorf("query feedback: %w", err)
	}
	defer rows.Close()

	var entries []models.FeedbackEntry
	for rows.Next() {
		var (
			e       models.FeedbackEntry
			session sql.NullString
			meta    sql.NullString
		)
		if err := rows.Scan(&e.ID, &session, &e.Query, &e.Answer, &e.Rating,
			&e.Comment, &meta, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan feedback row: %w", err)
		}
		e.SessionID = session.String
		if meta.Valid && meta.String != "" {
			_ = json.Unmarshal([]byte(meta.String), &e.Metadata)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Stats aggregates every recorded entry. Rates are percentages.
func (s *Store) Stats(ctx context.Context) (models.FeedbackStats, error) {
	st := models.FeedbackStats{RatingDistribution: map[int]int{1: 0, 2: 0, 3: 0, 4: 0, 5: 0}}

	var (
		sum                          sql.NullInt64
		positive, negative, comments sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*), sum(rating),
			sum(CASE WHEN rating >= ? THEN 1 ELSE 0 END),
			sum(CASE WHEN rating <= ? THEN 1 ELSE 0 END),
			sum(CASE WHEN comment != '' THEN 1 ELSE 0 END)
		 FROM feedback`, PositiveRating, NegativeRating).
		Scan(&st.TotalFeedback, &sum, &positive, &negative, &comments)
	if err != nil {
		return st, fmt.Errorf("feedback stats: %w", err)
	}
	if st.TotalFeedback == 0 {
		return st, nil
	}

	n := float64(st.TotalFeedback)
	st.AverageRating = round2(float64(sum.Int64) / n)
	st.PositiveRate = round2(float64(positive.Int64) / n * 100)
	st.NegativeRate = round2(float64(negative.Int64) / n * 100)
	st.WithComments = int(comments.Int64)

	rows, err := s.db.QueryContext(ctx, `SELECT rating, count(*) FROM feedback GROUP BY rating`)
	if err != nil {
		return st, fmt.Errorf("rating distribution: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var rating, count int
		if err := rows.Scan(&rating, &count); err != nil {
			return st, fmt.Errorf("scan rating distribution: %w", err)
		}
		st.RatingDistribution[rating] = count
	}
	return st, rows.Err()
}

// CommonIssues counts words longer than three characters across low-rated
// queries and returns those seen at least minCount times, most frequent
// first. Equal counts keep first-seen order.
func (s *Store) CommonIssues(ctx context.Context, minCount int) ([]models.IssueCount, error) {
	low, err := s.LowRated(ctx, LowRating)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	var order []string
	for _, e := range low {
		for _, w := range strings.Fields(e.Query) {
			if len([]rune(w)) <= issueWordRunes {
				continue
			}
			w = strings.ToLower(w)
			if counts[w] == 0 {
				order = append(order, w)
			}
			counts[w]++
		}
	}

	var issues []models.IssueCount
	for _, w := range order {
		if counts[w] >= minCount {
			issues = append(issues, models.IssueCount{Word: w, Count: counts[w]})
		}
	}
	sort.SliceStable(issues, func(i, j int) bool { return issues[i].Count > issues[j].Count })
	return issues, nil
}

// Suggestions turns the current statistics into improvement hints.
func (s *Store) Suggestions(ctx context.Context) ([]string, error) {
	st, err := s.Stats(ctx)
	if err != nil {
		return nil, err
	}
	issues, err := s.CommonIssues(ctx, 2)
	if err != nil {
		return nil, err
	}
	return suggest(st, issues), nil
}

func suggest(st models.FeedbackStats, issues []models.IssueCount) []string {
	var out []string
	if st.AverageRating < 3.5 {
		out = append(out, fmt.Sprintf(
			"Average rating is low (%.2f/5.0). Review answer quality and relevance.", st.AverageRating))
	}
	if st.NegativeRate > 30 {
		out = append(out, fmt.Sprintf(
			"%.1f%% of feedback is negative. Analyze low-rated queries for common patterns.", st.NegativeRate))
	}
	if len(issues) > 0 {
		n := len(issues)
		if n > 3 {
			n = 3
		}
		words := make([]string, n)
		for i, is := range issues[:n] {
			words[i] = is.Word
		}
		out = append(out, fmt.Sprintf(
			"Common topics in low-rated queries: %s. Consider improving documentation in these areas.",
			strings.Join(words, ", ")))
	}
	if st.TotalFeedback < 10 {
		out = append(out, "Collect more feedback to get better insights. Encourage users to rate responses.")
	}
	if st.AverageRating >= 4.0 && st.PositiveRate >= 70 {
		out = append(out, fmt.Sprintf(
			"Great performance! %.1f%% positive feedback. Keep up the good work.", st.PositiveRate))
	}
	return out
}

// Report bundles statistics, the worst examples, common issues and suggestions.
func (s *Store) Report(ctx context.Context) (models.FeedbackReport, error) {
	rep := models.FeedbackReport{GeneratedAt: time.Now().UTC()}

	var err error
	if rep.Statistics, err = s.Stats(ctx); err != nil {
		return rep, err
	}
	low, err := s.LowRated(ctx, NegativeRating)
	if err != nil {
		return rep, err
	}
	if len(low) > reportExamples {
		low = low[:reportExamples]
	}
	rep.LowRatedExamples = low
	if rep.CommonIssues, err = s.CommonIssues(ctx, 2); err != nil {
		return rep, err
	}
	rep.Suggestions = suggest(rep.Statistics, rep.CommonIssues)
	return rep, nil
}

// Cleanup deletes entries older than olderThan.
func (s *Store) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan).UTC()
	res, err := s.db.ExecContext(ctx, `DELETE FROM feedback WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("feedback cleanup: %w", err)
	}
	return res.RowsAffected()
}

// Close stops the retention goroutine and closes the database.
func (s *Store) Close() error {
	s.once.Do(func() { close(s.done) })
	s.wg.Wait()
	return s.db.Close()
}

func (s *Store) retentionLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			n, err := s.Cleanup(context.Background(), s.retention)
			if err != nil {
				s.logger.Warn("feedback cleanup failed", zap.Error(err))
				continue
			}
			if n > 0 {
				s.logger.Info("feedback cleanup", zap.Int64("deleted", n))
			}
		}
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
