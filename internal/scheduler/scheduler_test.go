package scheduler

import (
	"testing"
)

func TestAddJobValidExpression(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()

	if err := s.AddJob("*/5 * * * *", func() {}); err != nil {
		t.Errorf("Expected 5-field cron expression to be accepted: %v", err)
	}
}

func TestAddJobInvalidExpression(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()

	if err := s.AddJob("not a cron expression", func() {}); err == nil {
		t.Error("Expected error for invalid cron expression")
	}
	// 6-field (with seconds) expressions are not accepted by the 5-field parser.
	if err := s.AddJob("0 */5 * * * *", func() {}); err == nil {
		t.Error("Expected error for 6-field cron expression")
	}
}

func TestStopIsIdempotent(t *testing.T) {
	s := NewScheduler()
	s.Stop()
	s.Stop()
}
