package messaging

import (
	"context"
	"errors"
	"testing"

	"github.com/lendfront/supportline/internal/models"
	"github.com/lendfront/supportline/internal/twiliosupport"
)

func TestTwilioValidateAndCanonicalizeRecipient(t *testing.T) {
	service := NewTwilioService(twiliosupport.NewMockClient())

	tests := []struct {
		name      string
		recipient string
		expected  string
		wantErr   bool
	}{
		{
			name:      "plain number",
			recipient: "+15551234567",
			expected:  "+15551234567",
		},
		{
			name:      "whatsapp prefix stripped",
			recipient: "whatsapp:+15551234567",
			expected:  "+15551234567",
		},
		{
			name:      "formatting characters stripped",
			recipient: "+1 (555) 123-4567",
			expected:  "+15551234567",
		},
		{
			name:      "surrounding whitespace",
			recipient: "  +15551234567  ",
			expected:  "+15551234567",
		},
		{
			name:      "no plus",
			recipient: "15551234567",
			expected:  "15551234567",
		},
		{
			name:      "empty",
			recipient: "",
			wantErr:   true,
		},
		{
			name:      "no digits",
			recipient: "whatsapp:",
			wantErr:   true,
		},
		{
			name:      "too short",
			recipient: "+1234",
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := service.ValidateAndCanonicalizeRecipient(tt.recipient)
			if tt.wantErr {
				if err == nil {
					t.Errorf("Expected error for %q", tt.recipient)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error for %q: %v", tt.recipient, err)
			}
			if got != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestTwilioSendTextCanonicalizesRecipient(t *testing.T) {
	mock := twiliosupport.NewMockClient()
	service := NewTwilioService(mock)

	err := service.SendText(context.Background(), models.ChannelWhatsApp, "whatsapp:+1 (555) 123-4567", "hello")
	if err != nil {
		t.Fatalf("SendText failed: %v", err)
	}
	if len(mock.SentMessages) != 1 {
		t.Fatalf("Expected 1 sent message, got %d", len(mock.SentMessages))
	}
	sent := mock.SentMessages[0]
	if sent.To != "+15551234567" {
		t.Errorf("Expected canonical recipient, got %q", sent.To)
	}
	if sent.Channel != models.ChannelWhatsApp {
		t.Errorf("Expected whatsapp channel, got %q", sent.Channel)
	}
}

func TestTwilioSendTextInvalidRecipient(t *testing.T) {
	mock := twiliosupport.NewMockClient()
	service := NewTwilioService(mock)

	if err := service.SendText(context.Background(), models.ChannelSMS, "not-a-number", "hello"); err == nil {
		t.Error("Expected validation error")
	}
	if len(mock.SentMessages) != 0 {
		t.Error("Expected no message to be sent")
	}
}

func TestTwilioSendTextAfterStop(t *testing.T) {
	service := NewTwilioService(twiliosupport.NewMockClient())
	if err := service.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	err := service.SendText(context.Background(), models.ChannelSMS, "+15551234567", "hello")
	if !errors.Is(err, ErrServiceStopped) {
		t.Errorf("Expected ErrServiceStopped, got %v", err)
	}
}

func TestTwilioStartIsNoOp(t *testing.T) {
	service := NewTwilioService(twiliosupport.NewMockClient())
	if err := service.Start(context.Background()); err != nil {
		t.Errorf("Start failed: %v", err)
	}
}
