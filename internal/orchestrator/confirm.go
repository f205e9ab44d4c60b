package orchestrator

import (
	"strings"

	"github.com/fyrsmithlabs/relay/internal/conversation"
)

// ConfirmationDetector recognises short affirmative replies to an agent question.
type ConfirmationDetector struct {
	tokens map[string]struct{}
}

// NewConfirmationDetector builds a detector over a closed token set.
func NewConfirmationDetector(tokens []string) *ConfirmationDetector {
	d := &ConfirmationDetector{tokens: make(map[string]struct{}, len(tokens))}
	for _, t := range tokens {
		if n := normalizeToken(t); n != "" {
			d.tokens[n] = struct{}{}
		}
	}
	return d
}

// IsConfirmation reports whether text is a confirmation token and the last
// agent message exists and asks a question.
func (d *ConfirmationDetector) IsConfirmation(text string, lastAgent *conversation.Message) bool {
	if lastAgent == nil || !LooksLikeQuestion(lastAgent.Content) {
		return false
	}
	_, ok := d.tokens[normalizeToken(text)]
	return ok
}

// LooksLikeQuestion reports whether s contains a question mark.
func LooksLikeQuestion(s string) bool {
	return strings.Contains(s, "?")
}

func normalizeToken(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
