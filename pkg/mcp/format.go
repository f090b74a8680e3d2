package mcp

import (
	"fmt"
	"strings"

	"github.com/pario-ai/supportdesk/pkg/models"
)

const previewRunes = 60

func preview(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= previewRunes {
		return s
	}
	return string(r[:previewRunes-3]) + "..."
}

// formatQueryResponse renders an answer with its provenance.
func formatQueryResponse(resp models.QueryResponse) string {
	var b strings.Builder
	b.WriteString(resp.Answer)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "Session:    %s\n", resp.SessionID)
	fmt.Fprintf(&b, "Confidence: %.2f\n", resp.Confidence)
	fmt.Fprintf(&b, "Escalate:   %t\n", resp.ShouldEscalate)
	fmt.Fprintf(&b, "Cached:     %t\n", resp.Cached)
	if len(resp.Documents) > 0 {
		b.WriteString("Sources:\n")
		for _, d := range resp.Documents {
			fmt.Fprintf(&b, "  - %s#%d\n", d.Source, d.ChunkIndex)
		}
	}
	if resp.Ticket != nil {
		fmt.Fprintf(&b, "Ticket:     %s\n", resp.Ticket.Subject)
	}
	return b.String()
}

// formatCacheStats renders cache counters.
func formatCacheStats(stats models.CacheStats) string {
	return fmt.Sprintf("Cache Statistics\n"+
		"  Entries:  %d / %d\n"+
		"  Hits:     %d\n"+
		"  Misses:   %d\n"+
		"  Hit Rate: %.2f%%\n"+
		"  TTL:      %.0f min\n",
		stats.Size, stats.MaxSize, stats.Hits, stats.Misses, stats.HitRatePercent, stats.TTLMinutes)
}

// formatPopular renders popular cached queries as a table.
func formatPopular(rows []models.PopularQuery) string {
	if len(rows) == 0 {
		return "No cached queries yet."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%6s  %s\n", "Hits", "Query")
	b.WriteString(strings.Repeat("-", 70) + "\n")
	for _, r := range rows {
		fmt.Fprintf(&b, "%6d  %s\n", r.HitCount, preview(r.Query))
	}
	return b.String()
}

// formatSession renders a conversation transcript.
func formatSession(rec models.SessionRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Session %s (%d kept, %d total, started %s)\n",
		rec.SessionID, len(rec.Messages), rec.Metadata.TotalMessages,
		rec.Metadata.CreatedAt.Format("2006-01-02 15:04:05"))
	if len(rec.Messages) == 0 {
		b.WriteString("No messages.\n")
		return b.String()
	}
	b.WriteString(strings.Repeat("-", 70) + "\n")
	for _, m := range rec.Messages {
		fmt.Fprintf(&b, "%s  %-9s %s\n", m.Timestamp.Format("15:04:05"), m.Role, preview(m.Content))
	}
	return b.String()
}

// formatFeedback renders rating statistics and suggestions.
func formatFeedback(st models.FeedbackStats, suggestions []string) string {
	if st.TotalFeedback == 0 {
		return "No feedback recorded."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Feedback Statistics\n"+
		"  Total:    %d\n"+
		"  Average:  %.2f / 5\n"+
		"  Positive: %.1f%%\n"+
		"  Negative: %.1f%%\n"+
		"  Comments: %d\n",
		st.TotalFeedback, st.AverageRating, st.PositiveRate, st.NegativeRate, st.WithComments)
	b.WriteString("  Ratings: ")
	for r := 1; r <= 5; r++ {
		fmt.Fprintf(&b, " %d:%d", r, st.RatingDistribution[r])
	}
	b.WriteString("\n")
	if len(suggestions) > 0 {
		b.WriteString("Suggestions:\n")
		for _, s := range suggestions {
			fmt.Fprintf(&b, "  - %s\n", s)
		}
	}
	return b.String()
}
