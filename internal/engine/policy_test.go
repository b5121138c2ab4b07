package engine

import "testing"

func TestEvaluateHandoff(t *testing.T) {
	tests := []struct {
		name     string
		reply    string
		expected bool
	}{
		{
			name:     "connect you with phrase",
			reply:    "I can connect you with a specialist who can help with that.",
			expected: true,
		},
		{
			name:     "transfer phrase",
			reply:    "Let me transfer you to someone on our underwriting team.",
			expected: true,
		},
		{
			name:     "speak with a person phrase",
			reply:    "It sounds like you'd prefer to speak with a person.",
			expected: true,
		},
		{
			name:     "human agent phrase",
			reply:    "A human agent will be with you shortly.",
			expected: true,
		},
		{
			name:     "specialist phrase alone",
			reply:    "Our specialist team handles jumbo loans.",
			expected: true,
		},
		{
			name:     "case insensitive",
			reply:    "I will CONNECT YOU WITH our team right away.",
			expected: true,
		},
		{
			name:     "ordinary reply",
			reply:    "Your rate is 6.5% for a 30-year fixed mortgage.",
			expected: false,
		},
		{
			name:     "empty reply",
			reply:    "",
			expected: false,
		},
		{
			name:     "near miss phrasing",
			reply:    "I can help you connect your bank account to the portal.",
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EvaluateHandoff(tt.reply); got != tt.expected {
				t.Errorf("EvaluateHandoff(%q) = %v, want %v", tt.reply, got, tt.expected)
			}
		})
	}
}
