package workflow

import "strings"

// Inline scores used by AssessAnswer.
const (
	AssessConfident = 0.8
	AssessUncertain = 0.3
)

var assessUncertainty = []string{"i don't know", "not sure", "unclear"}

// AssessAnswer is the coarse scoring applied inside the workflow's Answer
// step. It is separate from policy.Confidence: an answer is either
// uncertain (0.3, escalate) or not (0.8, no escalation).
func AssessAnswer(answer string) (confidence float64, escalate bool) {
	lower := strings.ToLower(answer)
	for _, p := range assessUncertainty {
		if strings.Contains(lower, p) {
			return AssessUncertain, true
		}
	}
	return AssessConfident, false
}
