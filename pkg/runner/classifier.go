package runner

import (
	"regexp"
	"strings"
)

// Classifier decides whether a plain text block is reasoning narration
// rather than an answer addressed to the user.
type Classifier func(text string) bool

var thinkingLeadIns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^(Let me|I'll|I need to|First|Now|Looking at|Analyzing|Checking)`),
	regexp.MustCompile(`(?i)^(Hmm|Okay|Alright|So,)`),
}

// DefaultClassifier matches the lead-in phrases models use when they
// narrate their next step. It is a heuristic; misclassification only
// affects which event type carries the text.
func DefaultClassifier(text string) bool {
	trimmed := strings.TrimSpace(text)
	for _, re := range thinkingLeadIns {
		if re.MatchString(trimmed) {
			return true
		}
	}
	return false
}
