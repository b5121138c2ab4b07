// Package twiliosupport wraps the Twilio API for Supportline: outbound
// SMS/WhatsApp messages, TaskRouter handoff tasks for human agents, and
// webhook signature validation.
package twiliosupport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/lendfront/supportline/internal/models"
	"github.com/twilio/twilio-go"
	twilioclient "github.com/twilio/twilio-go/client"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
	taskrouterApi "github.com/twilio/twilio-go/rest/taskrouter/v1"
)

// HandoffTaskPriority is the TaskRouter priority assigned to AI handoff tasks.
const HandoffTaskPriority = 1

// Sender is the outbound surface consumed by the messaging layer and the
// handoff notifier (real client or mock).
type Sender interface {
	SendText(ctx context.Context, channel models.Channel, to, body string) error
	CreateHandoffTask(ctx context.Context, req models.HandoffRequest, profile *models.CustomerProfile) (string, error)
}

// Opts holds configuration options for the Twilio client.
type Opts struct {
	AccountSID   string
	AuthToken    string
	FromNumber   string // SMS sender number
	FromWhatsApp string // WhatsApp sender in "whatsapp:+1234567890" format
	WorkspaceSID string // TaskRouter workspace for handoff tasks
	WorkflowSID  string // TaskRouter workflow for handoff tasks
}

// Option defines a configuration option for the Twilio client.
type Option func(*Opts)

// WithAccountSID sets the Twilio account SID.
func WithAccountSID(sid string) Option {
	return func(o *Opts) { o.AccountSID = sid }
}

// WithAuthToken sets the Twilio auth token.
func WithAuthToken(token string) Option {
	return func(o *Opts) { o.AuthToken = token }
}

// WithFromNumber sets the SMS sender number.
func WithFromNumber(from string) Option {
	return func(o *Opts) { o.FromNumber = from }
}

// WithFromWhatsApp sets the WhatsApp sender number.
func WithFromWhatsApp(from string) Option {
	return func(o *Opts) { o.FromWhatsApp = from }
}

// WithWorkspaceSID sets the TaskRouter workspace SID.
func WithWorkspaceSID(sid string) Option {
	return func(o *Opts) { o.WorkspaceSID = sid }
}

// WithWorkflowSID sets the TaskRouter workflow SID.
func WithWorkflowSID(sid string) Option {
	return func(o *Opts) { o.WorkflowSID = sid }
}

// Client wraps the Twilio REST API for messaging and TaskRouter.
type Client struct {
	client       *twilio.RestClient
	fromNumber   string
	fromWhatsApp string
	workspaceSID string
	workflowSID  string
}

// NewClient creates a Twilio client, falling back to environment variables
// for any option not provided.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccountSID == "" {
		cfg.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	}
	if cfg.AuthToken == "" {
		cfg.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	}
	if cfg.FromNumber == "" {
		cfg.FromNumber = os.Getenv("TWILIO_PHONE_NUMBER")
	}
	if cfg.FromWhatsApp == "" {
		cfg.FromWhatsApp = os.Getenv("TWILIO_WHATSAPP_NUMBER")
	}
	if cfg.WorkspaceSID == "" {
		cfg.WorkspaceSID = os.Getenv("TWILIO_FLEX_WORKSPACE_SID")
	}
	if cfg.WorkflowSID == "" {
		cfg.WorkflowSID = os.Getenv("TWILIO_FLEX_WORKFLOW_SID")
	}
	slog.Debug("Twilio client config loaded",
		"AccountSID_set", cfg.AccountSID != "",
		"AuthToken_set", cfg.AuthToken != "",
		"FromNumber_set", cfg.FromNumber != "",
		"FromWhatsApp_set", cfg.FromWhatsApp != "",
		"Workspace_set", cfg.WorkspaceSID != "")

	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("account SID and auth token must be provided")
	}
	if cfg.FromNumber == "" {
		return nil, fmt.Errorf("SMS sender number must be provided")
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})

	return &Client{
		client:       client,
		fromNumber:   cfg.FromNumber,
		fromWhatsApp: cfg.FromWhatsApp,
		workspaceSID: cfg.WorkspaceSID,
		workflowSID:  cfg.WorkflowSID,
	}, nil
}

// SendText sends a text message over the given channel. WhatsApp recipients
// are addressed with the "whatsapp:" prefix Twilio expects.
func (c *Client) SendText(ctx context.Context, channel models.Channel, to, body string) error {
	params := &twilioApi.CreateMessageParams{}
	switch channel {
	case models.ChannelWhatsApp:
		if c.fromWhatsApp == "" {
			return fmt.Errorf("WhatsApp sender number not configured")
		}
		params.SetTo("whatsapp:" + to)
		params.SetFrom(c.fromWhatsApp)
	default:
		params.SetTo(to)
		params.SetFrom(c.fromNumber)
	}
	params.SetBody(body)

	_, err := c.client.Api.CreateMessage(params)
	if err != nil {
		slog.Error("Twilio SendText failed", "to", to, "channel", channel, "error", err)
		return fmt.Errorf("failed to send message to %s: %w", to, err)
	}
	slog.Debug("Twilio message sent", "to", to, "channel", channel)
	return nil
}

// handoffTaskAttributes is the task attribute payload agents see in Flex.
type handoffTaskAttributes struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversationId"`
	CustomerPhone  string `json:"customerPhone"`
	CustomerName   string `json:"customerName"`
	CustomerEmail  string `json:"customerEmail"`
	Channel        string `json:"channel"`
	HandoffReason  string `json:"handoffReason"`
	Priority       int    `json:"priority"`
}

// CreateHandoffTask creates a TaskRouter task routing the conversation to a
// human agent and returns the task SID. The profile may be nil when the
// customer is unknown.
func (c *Client) CreateHandoffTask(ctx context.Context, req models.HandoffRequest, profile *models.CustomerProfile) (string, error) {
	if c.workspaceSID == "" || c.workflowSID == "" {
		return "", fmt.Errorf("TaskRouter workspace and workflow SIDs must be configured for handoff")
	}

	attrs := handoffTaskAttributes{
		Type:           "ai_handoff",
		ConversationID: req.ConversationID,
		CustomerPhone:  req.CustomerPhone,
		CustomerName:   "Unknown",
		Channel:        string(req.Channel),
		HandoffReason:  req.Reason,
		Priority:       HandoffTaskPriority,
	}
	if attrs.HandoffReason == "" {
		attrs.HandoffReason = "Customer requested human assistance"
	}
	if profile != nil {
		if profile.Name != nil {
			attrs.CustomerName = *profile.Name
		}
		if profile.Email != nil {
			attrs.CustomerEmail = *profile.Email
		}
	}
	attrJSON, err := json.Marshal(attrs)
	if err != nil {
		return "", fmt.Errorf("failed to marshal task attributes: %w", err)
	}

	taskChannel := "chat"
	if req.Channel == models.ChannelVoice {
		taskChannel = "voice"
	}

	params := &taskrouterApi.CreateTaskParams{}
	params.SetWorkflowSid(c.workflowSID)
	params.SetTaskChannel(taskChannel)
	params.SetAttributes(string(attrJSON))
	params.SetPriority(HandoffTaskPriority)

	task, err := c.client.TaskrouterV1.CreateTask(c.workspaceSID, params)
	if err != nil {
		slog.Error("Twilio CreateHandoffTask failed", "conversation_id", req.ConversationID, "error", err)
		return "", fmt.Errorf("failed to create handoff task for %s: %w", req.ConversationID, err)
	}

	taskSID := ""
	if task.Sid != nil {
		taskSID = *task.Sid
	}
	slog.Info("Twilio handoff task created", "task_sid", taskSID, "conversation_id", req.ConversationID, "task_channel", taskChannel)
	return taskSID, nil
}

// WebhookValidator verifies X-Twilio-Signature headers on inbound webhooks.
type WebhookValidator struct {
	validator twilioclient.RequestValidator
}

// NewWebhookValidator creates a validator for the given auth token.
func NewWebhookValidator(authToken string) *WebhookValidator {
	v := twilioclient.NewRequestValidator(authToken)
	return &WebhookValidator{validator: v}
}

// Validate reports whether the signature matches the request URL and form parameters.
func (v *WebhookValidator) Validate(url string, params map[string]string, signature string) bool {
	return v.validator.Validate(url, params, signature)
}

// profileLookup is the minimal store surface the handoff notifier needs.
type profileLookup interface {
	GetCustomerProfile(phone string) (*models.CustomerProfile, error)
}

// HandoffNotifier adapts the Twilio client to the engine's handoff
// collaborator contract, enriching tasks with customer profile details.
type HandoffNotifier struct {
	sender   Sender
	profiles profileLookup
}

// NewHandoffNotifier creates a notifier backed by the given sender and profile lookup.
func NewHandoffNotifier(sender Sender, profiles profileLookup) *HandoffNotifier {
	return &HandoffNotifier{sender: sender, profiles: profiles}
}

// CreateHandoffTask looks up the customer profile and creates the TaskRouter task.
func (n *HandoffNotifier) CreateHandoffTask(ctx context.Context, req models.HandoffRequest) error {
	profile, err := n.profiles.GetCustomerProfile(req.CustomerPhone)
	if err != nil {
		// Task creation proceeds without profile enrichment.
		slog.Warn("HandoffNotifier profile lookup failed", "error", err, "phone", req.CustomerPhone)
		profile = nil
	}
	_, err = n.sender.CreateHandoffTask(ctx, req, profile)
	return err
}

// MockClient implements Sender for tests without touching the Twilio API.
type MockClient struct {
	SentMessages []SentMessage
	HandoffTasks []models.HandoffRequest
	SendErr      error
	TaskErr      error
}

// SentMessage records one SendText call.
type SentMessage struct {
	Channel models.Channel
	To      string
	Body    string
}

// NewMockClient creates an empty mock client.
func NewMockClient() *MockClient {
	return &MockClient{}
}

// SendText records the message.
func (m *MockClient) SendText(ctx context.Context, channel models.Channel, to, body string) error {
	if m.SendErr != nil {
		return m.SendErr
	}
	m.SentMessages = append(m.SentMessages, SentMessage{Channel: channel, To: to, Body: body})
	return nil
}

// CreateHandoffTask records the handoff request.
func (m *MockClient) CreateHandoffTask(ctx context.Context, req models.HandoffRequest, profile *models.CustomerProfile) (string, error) {
	if m.TaskErr != nil {
		return "", m.TaskErr
	}
	m.HandoffTasks = append(m.HandoffTasks, req)
	return "WT_mock", nil
}
