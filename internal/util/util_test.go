package util

import (
	"os"
	"strings"
	"testing"
	"time"
)

func TestParseBoolEnv(t *testing.T) {
	tests := []struct {
		value        string
		defaultValue bool
		expected     bool
	}{
		{"true", false, true},
		{"1", false, true},
		{"yes", false, true},
		{"on", false, true},
		{"TRUE", false, true},
		{"false", true, false},
		{"0", true, false},
		{"no", true, false},
		{"off", true, false},
		{"", true, true},
		{"", false, false},
		{"maybe", true, true},
		{"maybe", false, false},
	}

	for _, tt := range tests {
		if tt.value == "" {
			os.Unsetenv("TEST_BOOL")
		} else {
			os.Setenv("TEST_BOOL", tt.value)
		}
		got := ParseBoolEnv("TEST_BOOL", tt.defaultValue)
		if got != tt.expected {
			t.Errorf("ParseBoolEnv(%q, %v) = %v, want %v", tt.value, tt.defaultValue, got, tt.expected)
		}
	}
	os.Unsetenv("TEST_BOOL")
}

func TestParseIntEnv(t *testing.T) {
	os.Setenv("TEST_INT", "42")
	defer os.Unsetenv("TEST_INT")
	if got := ParseIntEnv("TEST_INT", 7); got != 42 {
		t.Errorf("Expected 42, got %d", got)
	}

	os.Setenv("TEST_INT", "not-a-number")
	if got := ParseIntEnv("TEST_INT", 7); got != 7 {
		t.Errorf("Expected default 7 for invalid value, got %d", got)
	}

	os.Unsetenv("TEST_INT")
	if got := ParseIntEnv("TEST_INT", 7); got != 7 {
		t.Errorf("Expected default 7 for unset variable, got %d", got)
	}
}

func TestParseDurationEnv(t *testing.T) {
	os.Setenv("TEST_DURATION", "15m")
	defer os.Unsetenv("TEST_DURATION")
	if got := ParseDurationEnv("TEST_DURATION", time.Minute); got != 15*time.Minute {
		t.Errorf("Expected 15m, got %v", got)
	}

	os.Setenv("TEST_DURATION", "soon")
	if got := ParseDurationEnv("TEST_DURATION", time.Minute); got != time.Minute {
		t.Errorf("Expected default 1m for invalid value, got %v", got)
	}
}

func TestGenerateIDsHavePrefixes(t *testing.T) {
	if id := GenerateConversationID(); !strings.HasPrefix(id, "c_") {
		t.Errorf("Expected conversation ID prefix c_, got %q", id)
	}
	if id := GenerateMessageID(); !strings.HasPrefix(id, "m_") {
		t.Errorf("Expected message ID prefix m_, got %q", id)
	}
	if id := GenerateProfileID(); !strings.HasPrefix(id, "cp_") {
		t.Errorf("Expected profile ID prefix cp_, got %q", id)
	}
}

func TestGenerateIDsAreUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := GenerateConversationID()
		if seen[id] {
			t.Fatalf("Duplicate ID generated: %q", id)
		}
		seen[id] = true
	}
}
