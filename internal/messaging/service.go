// Package messaging provides pluggable delivery services for engine replies:
// Twilio-backed SMS/WhatsApp and a direct whatsmeow-backed WhatsApp client.
package messaging

import (
	"context"
	"errors"

	"github.com/lendfront/supportline/internal/models"
)

// ErrServiceStopped is returned when a send is attempted after Stop.
var ErrServiceStopped = errors.New("messaging service stopped")

// Service defines a pluggable message delivery abstraction.
type Service interface {
	// ValidateAndCanonicalizeRecipient validates and canonicalizes a recipient
	// identifier. Each service implements its own recipient rules.
	ValidateAndCanonicalizeRecipient(recipient string) (string, error)

	// SendText sends a text message to a recipient over the given channel.
	SendText(ctx context.Context, channel models.Channel, to, body string) error

	// Start begins any background processing (e.g., inbound event handling).
	Start(ctx context.Context) error

	// Stop stops background processing and cleans up resources.
	Stop() error
}
