// Package genai wraps the OpenAI chat completions API as the response
// generator consumed by the continuity engine.
package genai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/lendfront/supportline/internal/models"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Model parameters are fixed configuration, not per-call tunable.
const (
	// DefaultModel is the completion model used for replies.
	DefaultModel = openai.ChatModelGPT4o
	// DefaultTemperature is the sampling temperature for replies.
	DefaultTemperature = 0.7
	// DefaultMaxTokens bounds the generated reply length.
	DefaultMaxTokens = 500
	// DefaultTimeout bounds a single completion call. A timeout is treated by
	// the engine like any other generator failure.
	DefaultTimeout = 30 * time.Second
)

// Error variables for better error handling and testability
var (
	ErrNoChoicesReturned = errors.New("no choices returned")
	ErrEmptyCompletion   = errors.New("empty completion content")
)

// chatService defines the minimal interface for chat completions.
type chatService interface {
	New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// Opts holds configuration options for the GenAI client.
type Opts struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int64
	Timeout     time.Duration
}

// Option defines a configuration option for the GenAI client.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithBaseURL points the client at an alternative completion endpoint.
func WithBaseURL(url string) Option {
	return func(o *Opts) { o.BaseURL = url }
}

// WithModel overrides the completion model.
func WithModel(model string) Option {
	return func(o *Opts) { o.Model = model }
}

// WithTimeout overrides the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *Opts) { o.Timeout = d }
}

// Client wraps the OpenAI chat completion service for generating replies.
type Client struct {
	chat        chatService
	model       string
	temperature float64
	maxTokens   int64
	timeout     time.Duration
}

// NewClient initializes a new GenAI client. The API key falls back to the
// OPENAI_API_KEY environment variable when not provided via options.
func NewClient(opts ...Option) (*Client, error) {
	cfg := Opts{
		Model:       DefaultModel,
		Temperature: DefaultTemperature,
		MaxTokens:   DefaultMaxTokens,
		Timeout:     DefaultTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}
	cli := openai.NewClient(reqOpts...)
	slog.Debug("genai.NewClient: client created", "model", cfg.Model, "timeout", cfg.Timeout, "base_url_set", cfg.BaseURL != "")
	return &Client{
		chat:        &cli.Chat.Completions,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		timeout:     cfg.Timeout,
	}, nil
}

// Complete sends the persona prompt followed by the conversation turns to the
// completion API and returns the generated text. History entries with the
// system role are dropped; only the persona prompt is sent as system role.
func (c *Client) Complete(ctx context.Context, systemPrompt string, turns []models.PromptTurn) (string, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(turns)+1)
	messages = append(messages, openai.SystemMessage(systemPrompt))
	for _, t := range turns {
		switch t.Role {
		case models.MessageRoleUser:
			messages = append(messages, openai.UserMessage(t.Content))
		case models.MessageRoleAssistant:
			messages = append(messages, openai.AssistantMessage(t.Content))
		default:
			// System-role history entries are never replayed.
			slog.Debug("genai.Complete: dropping non-replayable turn", "role", t.Role)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.chat.New(ctx, openai.ChatCompletionNewParams{
		Model:       c.model,
		Messages:    messages,
		Temperature: openai.Float(c.temperature),
		MaxTokens:   openai.Int(c.maxTokens),
	})
	if err != nil {
		slog.Error("genai.Complete: completion call failed", "error", err)
		return "", fmt.Errorf("completion call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		slog.Error("genai.Complete: no choices returned")
		return "", ErrNoChoicesReturned
	}
	content := resp.Choices[0].Message.Content
	if content == "" {
		slog.Error("genai.Complete: empty completion content")
		return "", ErrEmptyCompletion
	}
	slog.Debug("genai.Complete: completion succeeded", "turns", len(turns), "reply_length", len(content))
	return content, nil
}
