package genai

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/lendfront/supportline/internal/models"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// mockChatService implements chatService with a programmable completion.
type mockChatService struct {
	completion *openai.ChatCompletion
	err        error
	lastParams openai.ChatCompletionNewParams
}

func (m *mockChatService) New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error) {
	m.lastParams = params
	if m.err != nil {
		return nil, m.err
	}
	return m.completion, nil
}

func newTestClient(chat chatService) *Client {
	return &Client{
		chat:        chat,
		model:       DefaultModel,
		temperature: DefaultTemperature,
		maxTokens:   DefaultMaxTokens,
		timeout:     DefaultTimeout,
	}
}

func completionWithContent(content string) *openai.ChatCompletion {
	return &openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: content}},
		},
	}
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	os.Unsetenv("OPENAI_API_KEY")
	if _, err := NewClient(); err == nil {
		t.Error("Expected error when API key is not set")
	}
}

func TestNewClientWithAPIKey(t *testing.T) {
	os.Unsetenv("OPENAI_API_KEY")
	client, err := NewClient(WithAPIKey("sk-test"))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if client.model != DefaultModel {
		t.Errorf("Expected default model %q, got %q", DefaultModel, client.model)
	}
}

func TestCompleteReturnsContent(t *testing.T) {
	mock := &mockChatService{completion: completionWithContent("Your rate is 6.5%.")}
	client := newTestClient(mock)

	got, err := client.Complete(context.Background(), "You are Sarah.", []models.PromptTurn{
		{Role: models.MessageRoleUser, Content: "What are your rates?"},
	})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if got != "Your rate is 6.5%." {
		t.Errorf("Unexpected completion: %q", got)
	}

	// System prompt first, then the user turn.
	if len(mock.lastParams.Messages) != 2 {
		t.Fatalf("Expected 2 messages, got %d", len(mock.lastParams.Messages))
	}
	if mock.lastParams.Model != DefaultModel {
		t.Errorf("Expected model %q, got %q", DefaultModel, mock.lastParams.Model)
	}
}

func TestCompleteMapsTurnRoles(t *testing.T) {
	mock := &mockChatService{completion: completionWithContent("ok")}
	client := newTestClient(mock)

	turns := []models.PromptTurn{
		{Role: models.MessageRoleUser, Content: "hello"},
		{Role: models.MessageRoleAssistant, Content: "hi"},
		{Role: models.MessageRoleSystem, Content: "internal note"},
		{Role: models.MessageRoleUser, Content: "rates?"},
	}
	if _, err := client.Complete(context.Background(), "persona", turns); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	// Persona + 3 replayable turns; the system-role history entry is dropped.
	if len(mock.lastParams.Messages) != 4 {
		t.Errorf("Expected 4 messages after dropping system history, got %d", len(mock.lastParams.Messages))
	}
}

func TestCompletePropagatesCallError(t *testing.T) {
	mock := &mockChatService{err: errors.New("rate limited")}
	client := newTestClient(mock)

	if _, err := client.Complete(context.Background(), "persona", nil); err == nil {
		t.Error("Expected error from failed completion call")
	}
}

func TestCompleteNoChoices(t *testing.T) {
	mock := &mockChatService{completion: &openai.ChatCompletion{}}
	client := newTestClient(mock)

	_, err := client.Complete(context.Background(), "persona", nil)
	if !errors.Is(err, ErrNoChoicesReturned) {
		t.Errorf("Expected ErrNoChoicesReturned, got %v", err)
	}
}

func TestCompleteEmptyContent(t *testing.T) {
	mock := &mockChatService{completion: completionWithContent("")}
	client := newTestClient(mock)

	_, err := client.Complete(context.Background(), "persona", nil)
	if !errors.Is(err, ErrEmptyCompletion) {
		t.Errorf("Expected ErrEmptyCompletion, got %v", err)
	}
}
