package generator

import (
	"context"
	"strings"

	"github.com/pario-ai/supportdesk/pkg/models"
)

var supportKeywords = []string{
	// account
	"account", "login", "password", "register", "signup", "sign up", "username",
	"email", "profile", "settings", "authentication", "2fa", "security",
	// billing
	"billing", "payment", "subscription", "plan", "invoice", "refund", "charge",
	"credit card", "upgrade", "downgrade", "price", "cost", "cancel", "renew",
	// technical
	"error", "bug", "issue", "problem", "not working", "broken", "crash", "slow",
	"troubleshoot", "fix", "help", "support", "technical", "connection", "browser",
	// product
	"feature", "how to", "tutorial", "guide", "documentation", "api", "integration",
	"mobile app", "chatbot", "ticket", "automation", "report", "export",
	// data and privacy
	"data", "privacy", "gdpr", "ccpa", "encryption", "delete",
	"download", "export data", "compliance", "breach",
	// contact
	"contact", "phone", "email us", "chat", "hours", "business hours", "support team",
	"address", "office", "response time",
}

var questionPatterns = []string{
	"how do i", "how can i", "how to", "what is", "where is", "when",
	"why", "can i", "do you", "does", "is there", "are there",
}

var outOfScope = []string{
	"weather", "joke", "story", "recipe", "restaurant", "movie", "music",
	"sports", "news", "stock", "celebrity", "game", "what time is it",
	"temperature", "forecast", "capital of", "who is", "when was",
	"calculate", "math", "translate", "definition of",
}

// Canned replies from the local generator.
const (
	OutOfScopeAnswer = "I'm a customer support assistant and can only help with questions related to our service. " +
		"This query appears to be outside my area of expertise. " +
		"Please ask questions about:\n" +
		"- Account management and login issues\n" +
		"- Billing, payments, and subscriptions\n" +
		"- Technical problems and troubleshooting\n" +
		"- Product features and how to use them\n" +
		"- Data privacy and security\n" +
		"- Contacting our support team\n\n" +
		"How can I help you with your account or our services today?"

	NoDocumentsAnswer = "I don't have information about that in my knowledge base. " +
		"Please contact our support team for assistance."
)

const (
	maxAnswerChars    = 600
	minSentenceCutoff = 300
	candidateDocs     = 3
)

// Local answers from the best matching document without calling a model.
type Local struct{}

// NewLocal returns the local generator.
func NewLocal() *Local { return &Local{} }

// Name implements Named.
func (*Local) Name() string { return "local" }

// IsRelevant reports whether query is about customer support: two keyword
// hits, or one hit plus a question pattern, and nothing clearly off-topic.
func IsRelevant(query string) bool {
	lower := strings.ToLower(query)

	hits := 0
	for _, k := range supportKeywords {
		if strings.Contains(lower, k) {
			hits++
		}
	}
	question := false
	for _, p := range questionPatterns {
		if strings.Contains(lower, p) {
			question = true
			break
		}
	}
	for _, o := range outOfScope {
		if strings.Contains(lower, o) {
			return false
		}
	}
	return hits >= 2 || (hits >= 1 && question)
}

// Generate implements Generator.
func (l *Local) Generate(ctx context.Context, query string, docs []models.Document) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !IsRelevant(query) {
		return OutOfScopeAnswer, nil
	}
	if len(docs) == 0 {
		return NoDocumentsAnswer, nil
	}
	return trimAnswer(tidy(bestDocument(query, docs).Content)), nil
}

// bestDocument picks the candidate containing the most query words longer
// than three characters. Ties go to the earlier document.
func bestDocument(query string, docs []models.Document) models.Document {
	var keywords []string
	for _, w := range strings.Fields(strings.ToLower(query)) {
		if len(w) > 3 {
			keywords = append(keywords, w)
		}
	}

	best, bestScore := docs[0], 0
	n := len(docs)
	if n > candidateDocs {
		n = candidateDocs
	}
	for _, d := range docs[:n] {
		content := strings.ToLower(d.Content)
		score := 0
		for _, k := range keywords {
			if strings.Contains(content, k) {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = d, score
		}
	}
	return best
}

// tidy drops blank lines and separates the rest by one blank line.
func tidy(content string) string {
	var lines []string
	for _, l := range strings.Split(strings.TrimSpace(content), "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	return strings.Join(lines, "\n\n")
}

// trimAnswer caps long content, ending at a sentence when one closes late enough.
func trimAnswer(content string) string {
	r := []rune(content)
	if len(r) <= maxAnswerChars {
		return content
	}
	cut := string(r[:maxAnswerChars])
	if i := strings.LastIndex(cut, "."); i >= 0 && len([]rune(cut[:i])) > minSentenceCutoff {
		return cut[:i+1]
	}
	return cut
}
