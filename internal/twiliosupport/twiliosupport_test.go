package twiliosupport

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"

	"github.com/lendfront/supportline/internal/models"
)

func clearTwilioEnv() {
	for _, key := range []string{
		"TWILIO_ACCOUNT_SID", "TWILIO_AUTH_TOKEN", "TWILIO_PHONE_NUMBER",
		"TWILIO_WHATSAPP_NUMBER", "TWILIO_FLEX_WORKSPACE_SID", "TWILIO_FLEX_WORKFLOW_SID",
	} {
		os.Unsetenv(key)
	}
}

func TestNewClientRequiresCredentials(t *testing.T) {
	clearTwilioEnv()
	if _, err := NewClient(); err == nil {
		t.Error("Expected error when credentials are not set")
	}
}

func TestNewClientRequiresFromNumber(t *testing.T) {
	clearTwilioEnv()
	_, err := NewClient(
		WithAccountSID("AC123"),
		WithAuthToken("token"),
	)
	if err == nil {
		t.Error("Expected error when SMS sender number is not set")
	}
}

func TestNewClientWithOptions(t *testing.T) {
	clearTwilioEnv()
	client, err := NewClient(
		WithAccountSID("AC123"),
		WithAuthToken("token"),
		WithFromNumber("+15550001111"),
		WithFromWhatsApp("whatsapp:+15550001111"),
		WithWorkspaceSID("WS123"),
		WithWorkflowSID("WW123"),
	)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if client.fromNumber != "+15550001111" {
		t.Errorf("Unexpected from number %q", client.fromNumber)
	}
	if client.workspaceSID != "WS123" || client.workflowSID != "WW123" {
		t.Error("Expected TaskRouter SIDs to be configured")
	}
}

func TestHandoffTaskAttributesJSONShape(t *testing.T) {
	attrs := handoffTaskAttributes{
		Type:           "ai_handoff",
		ConversationID: "c_1",
		CustomerPhone:  "+15551234567",
		CustomerName:   "Unknown",
		Channel:        "sms",
		HandoffReason:  "AI error",
		Priority:       HandoffTaskPriority,
	}
	data, err := json.Marshal(attrs)
	if err != nil {
		t.Fatalf("Failed to marshal attributes: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Failed to unmarshal attributes: %v", err)
	}
	// Flex agents consume these keys; they are camelCase by contract.
	for _, key := range []string{"type", "conversationId", "customerPhone", "customerName", "channel", "handoffReason", "priority"} {
		if _, ok := decoded[key]; !ok {
			t.Errorf("Expected attribute key %q in %s", key, data)
		}
	}
}

// stubProfiles implements profileLookup for notifier tests.
type stubProfiles struct {
	profile *models.CustomerProfile
	err     error
}

func (s *stubProfiles) GetCustomerProfile(phone string) (*models.CustomerProfile, error) {
	return s.profile, s.err
}

func TestHandoffNotifierForwardsRequest(t *testing.T) {
	mock := NewMockClient()
	name := "Alice"
	notifier := NewHandoffNotifier(mock, &stubProfiles{
		profile: &models.CustomerProfile{Phone: "+15551234567", Name: &name},
	})

	req := models.HandoffRequest{
		ConversationID: "c_1",
		CustomerPhone:  "+15551234567",
		Channel:        models.ChannelSMS,
		Reason:         "Customer requested human assistance",
	}
	if err := notifier.CreateHandoffTask(context.Background(), req); err != nil {
		t.Fatalf("CreateHandoffTask failed: %v", err)
	}
	if len(mock.HandoffTasks) != 1 || mock.HandoffTasks[0].ConversationID != "c_1" {
		t.Errorf("Unexpected recorded tasks: %+v", mock.HandoffTasks)
	}
}

func TestHandoffNotifierSurvivesProfileLookupFailure(t *testing.T) {
	mock := NewMockClient()
	notifier := NewHandoffNotifier(mock, &stubProfiles{err: errors.New("db down")})

	req := models.HandoffRequest{ConversationID: "c_1", CustomerPhone: "+15551234567", Channel: models.ChannelVoice}
	if err := notifier.CreateHandoffTask(context.Background(), req); err != nil {
		t.Fatalf("Expected task creation to proceed without profile, got %v", err)
	}
	if len(mock.HandoffTasks) != 1 {
		t.Errorf("Expected 1 task, got %d", len(mock.HandoffTasks))
	}
}

func TestHandoffNotifierPropagatesSenderError(t *testing.T) {
	mock := NewMockClient()
	mock.TaskErr = errors.New("taskrouter unavailable")
	notifier := NewHandoffNotifier(mock, &stubProfiles{})

	req := models.HandoffRequest{ConversationID: "c_1", CustomerPhone: "+15551234567", Channel: models.ChannelSMS}
	if err := notifier.CreateHandoffTask(context.Background(), req); err == nil {
		t.Error("Expected sender error to propagate")
	}
}

func TestMockClientRecordsMessages(t *testing.T) {
	mock := NewMockClient()
	if err := mock.SendText(context.Background(), models.ChannelSMS, "+15551234567", "hello"); err != nil {
		t.Fatalf("SendText failed: %v", err)
	}
	if len(mock.SentMessages) != 1 {
		t.Fatalf("Expected 1 sent message, got %d", len(mock.SentMessages))
	}
	sent := mock.SentMessages[0]
	if sent.Channel != models.ChannelSMS || sent.To != "+15551234567" || sent.Body != "hello" {
		t.Errorf("Unexpected sent message: %+v", sent)
	}

	mock.SendErr = errors.New("boom")
	if err := mock.SendText(context.Background(), models.ChannelSMS, "+15551234567", "again"); err == nil {
		t.Error("Expected configured send error")
	}
}
