package messaging

import (
	"context"
	"testing"

	"github.com/lendfront/supportline/internal/models"
	"github.com/lendfront/supportline/internal/whatsapp"
)

func TestWhatsAppValidateAndCanonicalizeRecipient(t *testing.T) {
	service := NewWhatsAppService(whatsapp.NewMockClient())

	tests := []struct {
		name      string
		recipient string
		expected  string
		wantErr   bool
	}{
		{
			name:      "bare number",
			recipient: "+15551234567",
			expected:  "+15551234567",
		},
		{
			name:      "whatsapp prefix stripped",
			recipient: "whatsapp:+15551234567",
			expected:  "+15551234567",
		},
		{
			name:      "jid suffix stripped",
			recipient: "15551234567@" + whatsapp.JIDSuffix,
			expected:  "15551234567",
		},
		{
			name:      "empty",
			recipient: "",
			wantErr:   true,
		},
		{
			name:      "too short",
			recipient: "+123",
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

func TestWhatsAppSendTextOnlySupportsWhatsAppChannel(t *testing.T) {
	mock := whatsapp.NewMockClient()
	service := NewWhatsAppService(mock)

	if err := service.SendText(context.Background(), models.ChannelSMS, "+15551234567", "hello"); err == nil {
		t.Error("Expected error for sms channel on whatsapp service")
	}
	if len(mock.SentMessages) != 0 {
		t.Error("Expected no message to be sent")
	}

	if err := service.SendText(context.Background(), models.ChannelWhatsApp, "whatsapp:+15551234567", "hello"); err != nil {
		t.Fatalf("SendText failed: %v", err)
	}
	if len(mock.SentMessages) != 1 || mock.SentMessages[0].To != "+15551234567" {
		t.Errorf("Unexpected sent messages: %+v", mock.SentMessages)
	}
}

func TestWhatsAppStartWithMockClientSkipsEventHandling(t *testing.T) {
	service := NewWhatsAppService(whatsapp.NewMockClient())
	if err := service.Start(context.Background()); err != nil {
		t.Errorf("Start failed: %v", err)
	}
}

func TestWhatsAppInboundChannelClosedOnStop(t *testing.T) {
	service := NewWhatsAppService(whatsapp.NewMockClient())
	if err := service.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if _, open := <-service.Inbound(); open {
		t.Error("Expected inbound channel to be closed after Stop")
	}
}
