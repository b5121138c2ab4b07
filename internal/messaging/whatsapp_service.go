package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lendfront/supportline/internal/models"
	"github.com/lendfront/supportline/internal/whatsapp"
	"go.mau.fi/whatsmeow/types/events"
)

// Constants for WhatsAppService configuration
const (
	// DefaultChannelBufferSize defines the buffer size for the inbound event channel.
	DefaultChannelBufferSize = 100
	// DefaultChannelTimeout defines the timeout for non-blocking channel operations.
	DefaultChannelTimeout = 1 * time.Second
)

// WhatsAppService implements Service using the whatsmeow-based whatsapp
// client. Inbound messages are surfaced as engine-ready InboundEvents on the
// Inbound channel.
type WhatsAppService struct {
	client   whatsapp.Sender
	waClient *whatsapp.Client // underlying client for event handling, nil for mocks
	inbound  chan models.InboundEvent
	done     chan struct{}
}

// NewWhatsAppService creates a WhatsAppService wrapping the given sender.
func NewWhatsAppService(client whatsapp.Sender) *WhatsAppService {
	service := &WhatsAppService{
		client:  client,
		inbound: make(chan models.InboundEvent, DefaultChannelBufferSize),
		done:    make(chan struct{}),
	}

	if waClient, ok := client.(*whatsapp.Client); ok {
		service.waClient = waClient
		slog.Debug("WhatsAppService created with full client for event handling")
	} else {
		slog.Debug("WhatsAppService created with interface client (likely mock)")
	}

	return service
}

// ValidateAndCanonicalizeRecipient validates a WhatsApp recipient: bare
// digits, no JID suffix.
func (s *WhatsAppService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	canonical := strings.TrimPrefix(strings.TrimSpace(recipient), "whatsapp:")
	canonical = strings.TrimSuffix(canonical, "@"+whatsapp.JIDSuffix)
	if canonical == "" {
		return "", fmt.Errorf("recipient cannot be empty")
	}
	if len(strings.TrimPrefix(canonical, "+")) < MinPhoneDigits {
		return "", fmt.Errorf("invalid phone number: %q is too short (minimum %d digits required)", canonical, MinPhoneDigits)
	}
	return canonical, nil
}

// SendText sends a message over the direct WhatsApp connection. Only the
// whatsapp channel is supported.
func (s *WhatsAppService) SendText(ctx context.Context, channel models.Channel, to, body string) error {
	if channel != models.ChannelWhatsApp {
		return fmt.Errorf("whatsapp service cannot deliver on channel %q", channel)
	}
	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		slog.Error("WhatsAppService SendText validation error", "error", err, "to", to)
		return err
	}
	return s.client.SendMessage(ctx, canonicalTo, body)
}

// Inbound returns the channel of inbound customer messages.
func (s *WhatsAppService) Inbound() <-chan models.InboundEvent {
	return s.inbound
}

// Start registers the whatsmeow event handler feeding the inbound channel.
func (s *WhatsAppService) Start(ctx context.Context) error {
	if s.waClient == nil || s.waClient.GetClient() == nil {
		slog.Debug("WhatsAppService no full client available, skipping event handling")
		return nil
	}

	s.waClient.GetClient().AddEventHandler(func(evt interface{}) {
		if msg, ok := evt.(*events.Message); ok {
			s.handleIncomingMessage(msg)
		}
	})
	slog.Debug("WhatsAppService event handler registered")
	return nil
}

// Stop closes the inbound channel and disconnects the client.
func (s *WhatsAppService) Stop() error {
	close(s.done)
	close(s.inbound)
	if s.waClient != nil {
		s.waClient.Disconnect()
	}
	slog.Info("WhatsAppService stopped")
	return nil
}

// handleIncomingMessage converts a whatsmeow message event into an engine-ready
// inbound event. Non-text messages (images, audio, stickers) are skipped.
func (s *WhatsAppService) handleIncomingMessage(evt *events.Message) {
	if evt.Message == nil {
		return
	}

	var messageText string
	if evt.Message.Conversation != nil {
		messageText = *evt.Message.Conversation
	} else if evt.Message.ExtendedTextMessage != nil && evt.Message.ExtendedTextMessage.Text != nil {
		messageText = *evt.Message.ExtendedTextMessage.Text
	} else {
		slog.Debug("WhatsAppService ignoring non-text message", "from", evt.Info.Sender.String())
		return
	}
	if messageText == "" {
		return
	}

	// Convert the JID user part to a phone-style identifier.
	fromNumber := evt.Info.Sender.User
	if !strings.HasPrefix(fromNumber, "+") {
		fromNumber = "+" + fromNumber
	}

	event := models.InboundEvent{
		CustomerPhone: fromNumber,
		Channel:       models.ChannelWhatsApp,
		Text:          messageText,
	}

	select {
	case <-s.done:
		slog.Warn("WhatsAppService dropping inbound message (service stopped)", "from", event.CustomerPhone)
	case s.inbound <- event:
		slog.Debug("WhatsAppService inbound message forwarded", "from", event.CustomerPhone)
	case <-time.After(DefaultChannelTimeout):
		slog.Warn("WhatsAppService inbound channel blocked, dropping message", "from", event.CustomerPhone)
	}
}
