// Package models defines the core data structures for Supportline.
//
// It includes the conversation, message, and customer profile entities, the
// inbound/outbound event types exchanged with channel adapters, and shared
// API response envelopes.
package models

import (
	"errors"
	"time"
)

// Channel identifies the transport medium of a conversation.
type Channel string

const (
	// ChannelVoice is an inbound phone call with transcribed speech.
	ChannelVoice Channel = "voice"
	// ChannelSMS is a plain text message.
	ChannelSMS Channel = "sms"
	// ChannelWhatsApp is a WhatsApp message (via the Twilio bridge or the direct client).
	ChannelWhatsApp Channel = "whatsapp"
)

// IsValidChannel checks if the given channel is supported.
func IsValidChannel(c Channel) bool {
	switch c {
	case ChannelVoice, ChannelSMS, ChannelWhatsApp:
		return true
	default:
		return false
	}
}

// ConversationStatus tracks the lifecycle of a conversation.
type ConversationStatus string

const (
	// ConversationStatusActive means the AI is handling the conversation.
	ConversationStatusActive ConversationStatus = "active"
	// ConversationStatusHandedOff means a human agent has taken over.
	ConversationStatusHandedOff ConversationStatus = "handed_off"
	// ConversationStatusCompleted means the conversation is closed.
	ConversationStatusCompleted ConversationStatus = "completed"
)

// IsValidConversationStatus checks if the given status is supported.
func IsValidConversationStatus(s ConversationStatus) bool {
	switch s {
	case ConversationStatusActive, ConversationStatusHandedOff, ConversationStatusCompleted:
		return true
	default:
		return false
	}
}

// MessageRole identifies the author of a transcript message.
type MessageRole string

const (
	// MessageRoleUser is a message authored by the customer.
	MessageRoleUser MessageRole = "user"
	// MessageRoleAssistant is a message authored by the AI assistant.
	MessageRoleAssistant MessageRole = "assistant"
	// MessageRoleSystem is an internal annotation; never replayed to the model.
	MessageRoleSystem MessageRole = "system"
)

// IsValidMessageRole checks if the given role is supported.
func IsValidMessageRole(r MessageRole) bool {
	switch r {
	case MessageRoleUser, MessageRoleAssistant, MessageRoleSystem:
		return true
	default:
		return false
	}
}

// Error variables for better error handling and testability
var (
	ErrEmptyCustomerPhone  = errors.New("customer phone cannot be empty")
	ErrInvalidChannel      = errors.New("invalid channel")
	ErrInvalidRole         = errors.New("invalid message role")
	ErrInvalidStatus       = errors.New("invalid conversation status")
	ErrEmptyMessageContent = errors.New("message content cannot be empty")
	ErrEmptyConversationID = errors.New("conversation ID cannot be empty")
)

// Conversation is one bounded exchange between a customer and the assistant.
// At most one conversation per customer phone may be active at a time; the
// store enforces this with a uniqueness constraint.
type Conversation struct {
	ID            string             `json:"id"`
	CustomerPhone string             `json:"customer_phone"` // bare E.164-style identifier, no channel prefix
	Channel       Channel            `json:"channel"`        // channel the conversation was opened on
	Status        ConversationStatus `json:"status"`
	AIEnabled     bool               `json:"ai_enabled"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

// Message is one turn of a conversation transcript. Messages are append-only
// and totally ordered by the store's append sequence.
type Message struct {
	ID             string      `json:"id"`
	ConversationID string      `json:"conversation_id"`
	Role           MessageRole `json:"role"`
	Content        string      `json:"content"`
	CreatedAt      time.Time   `json:"created_at"`
}

// CustomerProfile holds out-of-band customer details keyed by phone number.
// Optional fields are nil when unknown; the profile is created lazily on
// first contact.
type CustomerProfile struct {
	ID        string    `json:"id"`
	Phone     string    `json:"phone"`
	Name      *string   `json:"name,omitempty"`
	Email     *string   `json:"email,omitempty"`
	Notes     *string   `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PromptTurn is one transcript entry in the shape the response generator
// consumes: a role plus content, stripped of storage identifiers.
type PromptTurn struct {
	Role    MessageRole `json:"role"`
	Content string      `json:"content"`
}

// InboundEvent is a channel-normalized inbound customer contact delivered by
// a channel adapter. Text is empty only for the initial voice contact where
// no speech has been gathered yet.
type InboundEvent struct {
	CustomerPhone string  `json:"customer_phone"`
	Channel       Channel `json:"channel"`
	Text          string  `json:"text"`
}

// Validate checks an inbound event before the engine processes it.
func (e *InboundEvent) Validate() error {
	if e.CustomerPhone == "" {
		return ErrEmptyCustomerPhone
	}
	if !IsValidChannel(e.Channel) {
		return ErrInvalidChannel
	}
	// Only the first voice contact may arrive without text.
	if e.Text == "" && e.Channel != ChannelVoice {
		return ErrEmptyMessageContent
	}
	return nil
}

// TurnResult is the engine's output for one inbound turn, handed back to the
// channel adapter for delivery.
type TurnResult struct {
	ConversationID  string `json:"conversation_id"`
	ReplyText       string `json:"reply_text"`
	ShouldHandoff   bool   `json:"should_handoff"`
	HandoffReason   string `json:"handoff_reason,omitempty"`
	InitialGreeting bool   `json:"-"` // true for the voice first-contact greeting turn
}

// HandoffRequest is emitted to the human-handoff collaborator when a
// conversation escalates.
type HandoffRequest struct {
	ConversationID string  `json:"conversation_id"`
	CustomerPhone  string  `json:"customer_phone"`
	Channel        Channel `json:"channel"`
	Reason         string  `json:"reason"`
}

// DeliveryReceipt records a Twilio message status callback.
type DeliveryReceipt struct {
	MessageSID   string    `json:"message_sid"`
	Status       string    `json:"status"`
	ErrorCode    string    `json:"error_code,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	ReceivedAt   time.Time `json:"received_at"`
}

// ConversationSummary is a conversation plus its message count, as shown on
// the dashboard.
type ConversationSummary struct {
	Conversation
	MessageCount int `json:"message_count"`
}

// DashboardStats aggregates conversation outcomes for the dashboard.
type DashboardStats struct {
	Active           int `json:"active"`
	HandedOffToday   int `json:"handed_off_today"`
	AIResolutionRate int `json:"ai_resolution_rate"` // percent of terminal conversations resolved without handoff
}

// APIStatus represents the status field of an API response.
type APIStatus string

const (
	// APIStatusOK indicates a successful API call.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates a failed API call.
	APIStatusError APIStatus = "error"
)

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string      `json:"status"`            // status of the API response
	Message string      `json:"message,omitempty"` // optional message for error responses or additional info
	Result  interface{} `json:"result,omitempty"`  // optional result data for successful responses
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Result: result}
}

// SuccessWithMessage creates a successful API response with a message and optional result data.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Message: message, Result: result}
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return APIResponse{Status: string(APIStatusError), Message: message}
}
