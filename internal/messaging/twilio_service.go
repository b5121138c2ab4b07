package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"github.com/lendfront/supportline/internal/models"
	"github.com/lendfront/supportline/internal/twiliosupport"
)

// MinPhoneDigits is the minimum number of digits a recipient must contain.
const MinPhoneDigits = 6

// phoneNumberRegex strips everything except digits and a leading plus.
var phoneNumberRegex = regexp.MustCompile(`[^0-9+]`)

// TwilioService implements Service using the Twilio REST API for SMS and
// Twilio-bridged WhatsApp.
type TwilioService struct {
	client  twiliosupport.Sender
	mu      sync.RWMutex
	stopped bool
}

// NewTwilioService creates a TwilioService around the given sender
// (real Twilio client or mock).
func NewTwilioService(client twiliosupport.Sender) *TwilioService {
	return &TwilioService{client: client}
}

// ValidateAndCanonicalizeRecipient strips the Twilio "whatsapp:" prefix and
// any formatting characters, and validates the remaining digits.
func (s *TwilioService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	if recipient == "" {
		return "", fmt.Errorf("recipient cannot be empty")
	}

	canonical := strings.TrimPrefix(strings.TrimSpace(recipient), "whatsapp:")
	canonical = phoneNumberRegex.ReplaceAllString(canonical, "")
	// A plus sign is only meaningful as the first character.
	if len(canonical) > 1 {
		canonical = canonical[:1] + strings.ReplaceAll(canonical[1:], "+", "")
	}

	digits := strings.TrimPrefix(canonical, "+")
	if digits == "" {
		return "", fmt.Errorf("invalid phone number: no digits found in recipient %q", recipient)
	}
	if len(digits) < MinPhoneDigits {
		return "", fmt.Errorf("invalid phone number: %q is too short (minimum %d digits required)", digits, MinPhoneDigits)
	}

	if canonical != recipient {
		slog.Debug("TwilioService canonicalized recipient", "original", recipient, "canonical", canonical)
	}
	return canonical, nil
}

// SendText sends a message via Twilio.
func (s *TwilioService) SendText(ctx context.Context, channel models.Channel, to, body string) error {
	s.mu.RLock()
	if s.stopped {
		s.mu.RUnlock()
		return ErrServiceStopped
	}
	s.mu.RUnlock()

	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		slog.Error("TwilioService SendText validation error", "error", err, "to", to)
		return err
	}
	return s.client.SendText(ctx, channel, canonicalTo, body)
}

// Start is a no-op: Twilio inbound traffic arrives via webhooks.
func (s *TwilioService) Start(ctx context.Context) error {
	return nil
}

// Stop marks the service stopped; subsequent sends fail fast.
func (s *TwilioService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	return nil
}
