// Package policy scores answer confidence and decides when a query should be
// handed to a human. Everything here is a pure function of its inputs.
package policy

import (
	"strings"
	"unicode/utf8"
)

// Baseline and adjustments applied by Confidence.
const (
	BaselineConfidence  = 0.5
	UncertaintyPenalty  = 0.3
	DetailBonus         = 0.2
	SourcedBonus        = 0.1
	DetailedAnswerChars = 200 // runes

	// EscalationFloor is the confidence below which ShouldEscalate is true.
	EscalationFloor = 0.4
)

var (
	uncertaintyPhrases = []string{"i don't know", "i'm not sure", "unclear", "not able to find"}
	sourcePhrases      = []string{"based on", "according to"}

	// DefaultEscalatePhrases trigger escalation when found in an answer.
	DefaultEscalatePhrases = []string{"i don't know", "i am not sure", "i'm not sure"}

	// UrgentKeywords trigger escalation when found in a query.
	UrgentKeywords = []string{"manager", "supervisor", "urgent", "complaint", "legal", "lawsuit"}
)

// Confidence estimates how trustworthy answer is, in [0,1].
func Confidence(_ string, answer string) float64 {
	lower := strings.ToLower(answer)
	c := BaselineConfidence

	if containsAny(lower, uncertaintyPhrases) {
		c -= UncertaintyPenalty
	}
	if utf8.RuneCountInString(answer) > DetailedAnswerChars {
		c += DetailBonus
	}
	if containsAny(lower, sourcePhrases) {
		c += SourcedBonus
	}

	return clamp(c)
}

// Policy decides escalation. The zero value uses DefaultEscalatePhrases.
type Policy struct {
	EscalatePhrases []string
}

// New returns a Policy with the given answer phrases, or the defaults when
// none are given.
func New(phrases ...string) Policy {
	if len(phrases) == 0 {
		return Policy{}
	}
	lowered := make([]string, len(phrases))
	for i, p := range phrases {
		lowered[i] = strings.ToLower(p)
	}
	return Policy{EscalatePhrases: lowered}
}

func (p Policy) phrases() []string {
	if len(p.EscalatePhrases) == 0 {
		return DefaultEscalatePhrases
	}
	return p.EscalatePhrases
}

// Confidence is the package-level Confidence.
func (p Policy) Confidence(query, answer string) float64 {
	return Confidence(query, answer)
}

// ShouldEscalate reports whether query and answer warrant a human. Any one of
// an escalation phrase in the answer, an urgent keyword in the query, or low
// confidence is enough.
func (p Policy) ShouldEscalate(query, answer string) bool {
	if containsAny(strings.ToLower(answer), p.phrases()) {
		return true
	}
	if containsAny(strings.ToLower(query), UrgentKeywords) {
		return true
	}
	return Confidence(query, answer) < EscalationFloor
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

func clamp(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}
