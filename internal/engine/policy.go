package engine

import "strings"

// handoffPhrases are the escalation phrases the assistant volunteers when it
// wants a human to take over. The policy fires only on the model's own
// surface text; customer-initiated frustration is not detected unless the
// model echoes equivalent phrasing back.
var handoffPhrases = []string{
	"connect you with",
	"transfer you to",
	"speak with a person",
	"human agent",
	"specialist",
}

// EvaluateHandoff reports whether the generated reply text asks for a human
// handoff. It is a pure function over the reply text: total, case-insensitive,
// and independent of conversation history or customer data.
func EvaluateHandoff(reply string) bool {
	lower := strings.ToLower(reply)
	for _, phrase := range handoffPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}
