package models

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestIsValidChannel(t *testing.T) {
	valid := []Channel{ChannelVoice, ChannelSMS, ChannelWhatsApp}
	for _, c := range valid {
		if !IsValidChannel(c) {
			t.Errorf("Expected channel %q to be valid", c)
		}
	}
	invalid := []Channel{"", "email", "telegram", "SMS"}
	for _, c := range invalid {
		if IsValidChannel(c) {
			t.Errorf("Expected channel %q to be invalid", c)
		}
	}
}

func TestIsValidConversationStatus(t *testing.T) {
	valid := []ConversationStatus{ConversationStatusActive, ConversationStatusHandedOff, ConversationStatusCompleted}
	for _, s := range valid {
		if !IsValidConversationStatus(s) {
			t.Errorf("Expected status %q to be valid", s)
		}
	}
	if IsValidConversationStatus("closed") {
		t.Error("Expected status \"closed\" to be invalid")
	}
}

func TestIsValidMessageRole(t *testing.T) {
	valid := []MessageRole{MessageRoleUser, MessageRoleAssistant, MessageRoleSystem}
	for _, r := range valid {
		if !IsValidMessageRole(r) {
			t.Errorf("Expected role %q to be valid", r)
		}
	}
	if IsValidMessageRole("bot") {
		t.Error("Expected role \"bot\" to be invalid")
	}
}

func TestInboundEventValidate(t *testing.T) {
	tests := []struct {
		name    string
		event   InboundEvent
		wantErr error
	}{
		{
			name:  "valid sms event",
			event: InboundEvent{CustomerPhone: "+15551234567", Channel: ChannelSMS, Text: "hello"},
		},
		{
			name:  "valid voice event with speech",
			event: InboundEvent{CustomerPhone: "+15551234567", Channel: ChannelVoice, Text: "what are your rates"},
		},
		{
			name:  "voice event without text is the initial contact",
			event: InboundEvent{CustomerPhone: "+15551234567", Channel: ChannelVoice},
		},
		{
			name:    "missing phone",
			event:   InboundEvent{Channel: ChannelSMS, Text: "hello"},
			wantErr: ErrEmptyCustomerPhone,
		},
		{
			name:    "invalid channel",
			event:   InboundEvent{CustomerPhone: "+15551234567", Channel: "email", Text: "hello"},
			wantErr: ErrInvalidChannel,
		},
		{
			name:    "empty text on sms",
			event:   InboundEvent{CustomerPhone: "+15551234567", Channel: ChannelSMS},
			wantErr: ErrEmptyMessageContent,
		},
		{
			name:    "empty text on whatsapp",
			event:   InboundEvent{CustomerPhone: "+15551234567", Channel: ChannelWhatsApp},
			wantErr: ErrEmptyMessageContent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.event.Validate()
			if tt.wantErr == nil && err != nil {
				t.Errorf("Expected no error, got %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Expected error %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestAPIResponseConstructors(t *testing.T) {
	ok := Success(map[string]string{"key": "value"})
	if ok.Status != string(APIStatusOK) {
		t.Errorf("Expected status %q, got %q", APIStatusOK, ok.Status)
	}
	if ok.Result == nil {
		t.Error("Expected result to be set")
	}

	withMsg := SuccessWithMessage("done", nil)
	if withMsg.Status != string(APIStatusOK) || withMsg.Message != "done" {
		t.Errorf("Unexpected success response: %+v", withMsg)
	}

	errResp := Error("boom")
	if errResp.Status != string(APIStatusError) || errResp.Message != "boom" {
		t.Errorf("Unexpected error response: %+v", errResp)
	}
}

func TestAPIResponseJSONShape(t *testing.T) {
	data, err := json.Marshal(Error("boom"))
	if err != nil {
		t.Fatalf("Failed to marshal response: %v", err)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}
	if decoded["status"] != "error" || decoded["message"] != "boom" {
		t.Errorf("Unexpected JSON shape: %s", data)
	}
	if _, present := decoded["result"]; present {
		t.Error("Expected result to be omitted for error responses")
	}
}
