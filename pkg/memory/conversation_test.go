package memory

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pario-ai/supportdesk/pkg/models"
)

func TestAddMessageBoundsHistory(t *testing.T) {
	c := NewConversation("s1", 4)
	for i := 0; i < 7; i++ {
		c.AddMessage(models.RoleUser, fmt.Sprintf("m%d", i), nil)
	}

	hist := c.History()
	require.Len(t, hist, 4)
	for i, m := range hist {
		assert.Equal(t, fmt.Sprintf("m%d", i+3), m.Content)
	}
	assert.Equal(t, 7, c.Metadata().TotalMessages)
}

func TestContext(t *testing.T) {
	c := NewConversation("s1", 10)
	assert.Equal(t, "", c.Context(3))

	c.AddMessage(models.RoleUser, "How do I reset my password?", nil)
	c.AddMessage(models.RoleAssistant, "Use the reset link.", nil)
	c.AddMessage(models.RoleUser, "And my username?", nil)
	c.AddMessage("agent", "Handing over.", nil)

	assert.Equal(t, "Assistant: Use the reset link.\nUser: And my username?\nAssistant: Handing over.", c.Context(3))
	assert.Equal(t, 4, len(splitLines(c.Context(10))))
	assert.Equal(t, "", c.Context(0))
}

func TestContextLabelsNonUserRolesAsAssistant(t *testing.T) {
	c := NewConversation("s1", 10)
	c.AddMessage("", "blank role", nil)
	c.AddMessage("éditeur", "accented role", nil)
	c.AddMessage(models.RoleUser, "thanks", nil)

	got := c.Context(3)
	assert.Equal(t, "Assistant: blank role\nAssistant: accented role\nUser: thanks", got)
	assert.True(t, utf8.ValidString(got))
}

func splitLines(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	return append(out, s[start:])
}

func TestIsFollowUp(t *testing.T) {
	c := NewConversation("s1", 10)

	tests := []struct {
		query string
		want  bool
	}{
		{"refund policy?", true},
		{"What about the enterprise tier pricing", true},
		{"Can I also export my invoices somewhere", true},
		{"Is there a mobile application available for download", true},
		{"How do I reset my password from the login page", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, c.IsFollowUp(tt.query), tt.query)
	}

	c.AddMessage(models.RoleAssistant, "Billing happens monthly.", map[string]any{"category": "Billing"})
	assert.True(t, c.IsFollowUp("When does the billing cycle start each month"))
	assert.False(t, c.IsFollowUp("How do I reset my password from the login page"))
}

func TestRecentTopicsWindow(t *testing.T) {
	c := NewConversation("s1", 20)
	c.AddMessage(models.RoleAssistant, "x", map[string]any{"category": "privacy"})
	for i := 0; i < 5; i++ {
		c.AddMessage(models.RoleUser, "filler", nil)
	}
	assert.False(t, c.IsFollowUp("Where is the privacy policy document located"))
}

func TestLastUserQueryAndHasContext(t *testing.T) {
	c := NewConversation("s1", 10)
	assert.False(t, c.HasContext())
	_, ok := c.LastUserQuery()
	assert.False(t, ok)

	c.AddMessage(models.RoleUser, "first", nil)
	c.AddMessage(models.RoleUser, "second", nil)
	c.AddMessage(models.RoleAssistant, "reply", nil)

	assert.True(t, c.HasContext())
	q, ok := c.LastUserQuery()
	require.True(t, ok)
	assert.Equal(t, "second", q)
}

func TestClearKeepsTotals(t *testing.T) {
	c := NewConversation("s1", 10)
	c.AddMessage(models.RoleUser, "a", nil)
	c.AddMessage(models.RoleUser, "b", nil)
	c.Clear()

	assert.False(t, c.HasContext())
	assert.Equal(t, 2, c.Metadata().TotalMessages)
}

func TestRecordRoundTrip(t *testing.T) {
	c := NewConversation("s1", 3)
	c.AddMessage(models.RoleUser, "q1", map[string]any{"category": "account"})
	c.AddMessage(models.RoleAssistant, "a1", map[string]any{"confidence": 0.8})
	c.AddMessage(models.RoleUser, "q2", nil)
	c.AddMessage(models.RoleAssistant, "a2", nil)

	data, err := json.Marshal(c.ToRecord())
	require.NoError(t, err)

	var rec models.SessionRecord
	require.NoError(t, json.Unmarshal(data, &rec))
	restored := FromRecord(rec, 10)

	assert.Equal(t, "s1", restored.ID())
	assert.Equal(t, c.Metadata().TotalMessages, restored.Metadata().TotalMessages)
	assert.True(t, c.Metadata().CreatedAt.Equal(restored.Metadata().CreatedAt))
	require.Len(t, restored.History(), 3)
	assert.Equal(t, c.Context(3), restored.Context(3))

	// The original limit travels with the record.
	restored.AddMessage(models.RoleUser, "q3", nil)
	assert.Equal(t, 3, restored.Len())
}

func TestConcurrentAppendsStayConsistent(t *testing.T) {
	c := NewConversation("s1", 50)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				c.AddMessage(models.RoleUser, fmt.Sprintf("%d-%d", i, j), nil)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 200, c.Metadata().TotalMessages)
	assert.Equal(t, 50, c.Len())

	// Per-writer order is preserved within the kept window.
	last := map[string]int{}
	for _, m := range c.History() {
		var w, seq int
		_, err := fmt.Sscanf(m.Content, "%d-%d", &w, &seq)
		require.NoError(t, err)
		key := fmt.Sprint(w)
		if prev, ok := last[key]; ok {
			assert.Greater(t, seq, prev)
		}
		last[key] = seq
	}
}

func TestLastActiveAdvances(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := newConversation("s1", 5, func() time.Time { return now })
	assert.True(t, c.LastActive().Equal(now))

	now = now.Add(time.Minute)
	c.AddMessage(models.RoleUser, "hi", nil)
	assert.True(t, c.LastActive().Equal(now))
}
