// Package engine implements the conversation-continuity and handoff-decision
// engine: it maps inbound customer contacts to durable conversation threads,
// maintains ordered transcripts, assembles bounded prompt context for the
// response generator, and decides when to escalate to a human agent.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lendfront/supportline/internal/models"
	"github.com/lendfront/supportline/internal/store"
)

const (
	// FallbackReply is sent verbatim whenever the response generator fails;
	// the customer is never shown a raw provider error.
	FallbackReply = "I apologize, but I encountered an error. Let me connect you with a human agent."
	// HandoffReasonAIError marks escalations forced by a generator failure.
	HandoffReasonAIError = "AI error"
	// HandoffReasonRequested marks escalations volunteered by the assistant.
	HandoffReasonRequested = "Customer requested human assistance"
	// VoiceGreeting is recorded as the assistant's opening turn on a voice
	// call before any speech has been gathered.
	VoiceGreeting = "Hello! I'm Sarah, your AI mortgage assistant. How can I help you today?"
	// DefaultStaleThreshold is how long an active voice conversation may sit
	// untouched before the sweep completes it.
	DefaultStaleThreshold = 10 * time.Minute
	// DefaultHistoryLimit replays the full transcript to the generator.
	// A non-negative value caps the replay to the last N messages.
	DefaultHistoryLimit = -1
)

// DefaultPersona is the fixed system prompt sent as the only system-role
// message on every completion call.
const DefaultPersona = `You are Sarah, a helpful AI assistant for a mortgage lending company.
You help customers with:
- General mortgage questions
- Application status inquiries
- Document requirements
- Interest rate information
- Pre-qualification questions

Be professional, friendly, and concise. If a question requires human expertise or is outside
your knowledge, offer to connect the customer with a human agent.`

// ReplyGenerator is the response-generator collaborator: conversation in,
// generated text out. Retry and rate-limit policy belong to the
// implementation, not the engine.
type ReplyGenerator interface {
	Complete(ctx context.Context, systemPrompt string, turns []models.PromptTurn) (string, error)
}

// HandoffNotifier is the human-handoff collaborator. The engine only needs to
// know the task creation was attempted; failures are logged, not propagated.
type HandoffNotifier interface {
	CreateHandoffTask(ctx context.Context, req models.HandoffRequest) error
}

// Opts holds configuration options for the engine.
type Opts struct {
	Persona      string
	HistoryLimit int
	Notifier     HandoffNotifier
}

// Option defines a configuration option for the engine.
type Option func(*Opts)

// WithPersona overrides the fixed system persona prompt.
func WithPersona(persona string) Option {
	return func(o *Opts) { o.Persona = persona }
}

// WithHistoryLimit caps the number of transcript messages replayed to the
// generator per turn. Negative means no limit, zero means no history.
func WithHistoryLimit(limit int) Option {
	return func(o *Opts) { o.HistoryLimit = limit }
}

// WithHandoffNotifier sets the human-handoff collaborator invoked on escalation.
func WithHandoffNotifier(n HandoffNotifier) Option {
	return func(o *Opts) { o.Notifier = n }
}

// Engine orchestrates one inbound turn: resolve conversation, record the
// inbound message, generate a reply, apply the handoff policy, record the
// outbound message, and transition status. It holds no state between turns;
// every turn re-reads from the store.
type Engine struct {
	st           store.Store
	generator    ReplyGenerator
	notifier     HandoffNotifier
	persona      string
	historyLimit int
}

// NewEngine creates an engine with the given store and response generator.
func NewEngine(st store.Store, generator ReplyGenerator, opts ...Option) *Engine {
	cfg := Opts{
		Persona:      DefaultPersona,
		HistoryLimit: DefaultHistoryLimit,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("Engine.NewEngine: engine created", "history_limit", cfg.HistoryLimit, "has_notifier", cfg.Notifier != nil)
	return &Engine{
		st:           st,
		generator:    generator,
		notifier:     cfg.Notifier,
		persona:      cfg.Persona,
		historyLimit: cfg.HistoryLimit,
	}
}

// TurnContext carries everything GenerateReply needs for one turn.
type TurnContext struct {
	ConversationID string
	CustomerPhone  string
	Channel        models.Channel
	Messages       []models.Message
}

// Reply is the outcome of one generation attempt after the handoff policy has
// been applied.
type Reply struct {
	Message       string
	ShouldHandoff bool
	HandoffReason string
}

// ResolveConversation ensures a customer profile exists and returns the
// customer's active conversation, creating one on the given channel if none
// exists. The lookup is by phone alone: a customer switching channel while a
// conversation is active resumes that conversation under its original channel.
func (e *Engine) ResolveConversation(phone string, channel models.Channel) (*models.Conversation, error) {
	if err := e.st.EnsureCustomerProfile(phone); err != nil {
		return nil, fmt.Errorf("failed to ensure customer profile: %w", err)
	}
	conv, created, err := e.st.FindOrCreateActiveConversation(phone, channel)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve conversation: %w", err)
	}
	if created {
		slog.Info("Engine.ResolveConversation: conversation created", "conversation_id", conv.ID, "phone", phone, "channel", channel)
	} else if conv.Channel != channel {
		slog.Info("Engine.ResolveConversation: resuming conversation across channels",
			"conversation_id", conv.ID, "conversation_channel", conv.Channel, "inbound_channel", channel)
	}
	return conv, nil
}

// RecordMessage appends one transcript message. Storage failures propagate to
// the caller; nothing fails silently.
func (e *Engine) RecordMessage(conversationID string, role models.MessageRole, content string) error {
	if _, err := e.st.AppendMessage(conversationID, role, content); err != nil {
		return fmt.Errorf("failed to record %s message: %w", role, err)
	}
	return nil
}

// FetchHistory returns the conversation transcript in append order.
func (e *Engine) FetchHistory(conversationID string) ([]models.Message, error) {
	msgs, err := e.st.ListMessages(conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch history: %w", err)
	}
	return msgs, nil
}

// GenerateReply builds the prompt context for one turn, invokes the response
// generator, and applies the handoff policy to the result. On any generator
// failure it degrades to the fixed fallback reply with a forced handoff; it
// never surfaces a raw provider error.
func (e *Engine) GenerateReply(ctx context.Context, tc TurnContext) Reply {
	turns := e.buildTurns(tc.Messages)
	text, err := e.generator.Complete(ctx, e.persona, turns)
	if err != nil {
		slog.Error("Engine.GenerateReply: generator failed, forcing handoff",
			"error", err, "conversation_id", tc.ConversationID, "channel", tc.Channel)
		return Reply{
			Message:       FallbackReply,
			ShouldHandoff: true,
			HandoffReason: HandoffReasonAIError,
		}
	}
	if EvaluateHandoff(text) {
		slog.Info("Engine.GenerateReply: assistant volunteered handoff", "conversation_id", tc.ConversationID)
		return Reply{
			Message:       text,
			ShouldHandoff: true,
			HandoffReason: HandoffReasonRequested,
		}
	}
	return Reply{Message: text}
}

// buildTurns maps the transcript to generator turns, applying the configured
// history window. System-role entries are dropped from the replay; only the
// persona prompt is ever sent as system role.
func (e *Engine) buildTurns(msgs []models.Message) []models.PromptTurn {
	replayable := make([]models.PromptTurn, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == models.MessageRoleSystem {
			continue
		}
		replayable = append(replayable, models.PromptTurn{Role: m.Role, Content: m.Content})
	}
	if e.historyLimit >= 0 && len(replayable) > e.historyLimit {
		dropped := len(replayable) - e.historyLimit
		replayable = replayable[dropped:]
		slog.Debug("Engine.buildTurns: history window applied", "limit", e.historyLimit, "dropped", dropped)
	}
	return replayable
}

// MarkHandedOff transitions the conversation to handed_off. Setting the same
// status twice is harmless.
func (e *Engine) MarkHandedOff(conversationID string) error {
	if err := e.st.SetConversationStatus(conversationID, models.ConversationStatusHandedOff); err != nil {
		return fmt.Errorf("failed to mark conversation handed off: %w", err)
	}
	slog.Info("Engine.MarkHandedOff: conversation handed off", "conversation_id", conversationID)
	return nil
}

// SweepStaleVoice completes every active voice conversation untouched for
// longer than the threshold and returns the number affected.
func (e *Engine) SweepStaleVoice(now time.Time, threshold time.Duration) (int64, error) {
	cutoff := now.Add(-threshold)
	n, err := e.st.CompleteStaleConversations(models.ChannelVoice, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep stale voice conversations: %w", err)
	}
	if n > 0 {
		slog.Info("Engine.SweepStaleVoice: stale voice conversations completed", "count", n, "cutoff", cutoff)
	}
	return n, nil
}

// HandleInbound processes one inbound customer turn end to end and returns
// the result for the channel adapter to deliver. Store failures abort the
// turn and propagate; generator failures degrade to the fallback reply.
func (e *Engine) HandleInbound(ctx context.Context, event models.InboundEvent) (*models.TurnResult, error) {
	if err := event.Validate(); err != nil {
		return nil, err
	}

	conv, err := e.ResolveConversation(event.CustomerPhone, event.Channel)
	if err != nil {
		return nil, err
	}

	// First voice contact: there is no speech yet, so record the greeting as
	// an assistant turn and skip reply generation entirely.
	if event.Text == "" {
		if err := e.RecordMessage(conv.ID, models.MessageRoleAssistant, VoiceGreeting); err != nil {
			return nil, err
		}
		slog.Debug("Engine.HandleInbound: initial voice greeting recorded", "conversation_id", conv.ID)
		return &models.TurnResult{
			ConversationID:  conv.ID,
			ReplyText:       VoiceGreeting,
			InitialGreeting: true,
		}, nil
	}

	if err := e.RecordMessage(conv.ID, models.MessageRoleUser, event.Text); err != nil {
		return nil, err
	}

	history, err := e.FetchHistory(conv.ID)
	if err != nil {
		return nil, err
	}

	reply := e.GenerateReply(ctx, TurnContext{
		ConversationID: conv.ID,
		CustomerPhone:  event.CustomerPhone,
		Channel:        event.Channel,
		Messages:       history,
	})

	if err := e.RecordMessage(conv.ID, models.MessageRoleAssistant, reply.Message); err != nil {
		return nil, err
	}

	if reply.ShouldHandoff {
		if e.notifier != nil {
			req := models.HandoffRequest{
				ConversationID: conv.ID,
				CustomerPhone:  event.CustomerPhone,
				Channel:        event.Channel,
				Reason:         reply.HandoffReason,
			}
			if err := e.notifier.CreateHandoffTask(ctx, req); err != nil {
				// The engine only needs to know creation was attempted.
				slog.Error("Engine.HandleInbound: handoff task creation failed", "error", err, "conversation_id", conv.ID)
			}
		}
		if err := e.MarkHandedOff(conv.ID); err != nil {
			return nil, err
		}
	}

	slog.Info("Engine.HandleInbound: turn completed",
		"conversation_id", conv.ID, "channel", event.Channel, "should_handoff", reply.ShouldHandoff)
	return &models.TurnResult{
		ConversationID: conv.ID,
		ReplyText:      reply.Message,
		ShouldHandoff:  reply.ShouldHandoff,
		HandoffReason:  reply.HandoffReason,
	}, nil
}
