// Package store provides storage backends for Supportline.
//
// It defines the conversation store contract consumed by the continuity
// engine and implements it for SQLite, PostgreSQL, and in-memory (tests).
package store

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/lendfront/supportline/internal/models"
	"github.com/lendfront/supportline/internal/util"
)

// Store is the conversation store contract. All mutations are scoped to a
// single conversation or customer; no operation requires cross-conversation
// coordination.
type Store interface {
	// EnsureCustomerProfile creates a profile with empty optional fields if
	// none exists for the phone number.
	EnsureCustomerProfile(phone string) error

	// GetCustomerProfile returns the profile for the phone number, or nil if absent.
	GetCustomerProfile(phone string) (*models.CustomerProfile, error)

	// FindActiveConversation returns the active conversation for the customer,
	// or nil if there is none. Lookup is by phone alone, not by channel.
	FindActiveConversation(phone string) (*models.Conversation, error)

	// FindOrCreateActiveConversation returns the customer's active conversation,
	// creating one on the given channel if none exists. The creation is atomic
	// with respect to concurrent callers: at most one active conversation per
	// phone can ever exist. The bool reports whether a conversation was created.
	FindOrCreateActiveConversation(phone string, channel models.Channel) (*models.Conversation, bool, error)

	// AppendMessage appends a message to the conversation transcript and
	// touches the conversation's updated_at timestamp.
	AppendMessage(conversationID string, role models.MessageRole, content string) (*models.Message, error)

	// ListMessages returns the full transcript in append order.
	ListMessages(conversationID string) ([]models.Message, error)

	// SetConversationStatus transitions the conversation to the given status.
	SetConversationStatus(conversationID string, status models.ConversationStatus) error

	// CompleteStaleConversations transitions every active conversation on the
	// channel whose updated_at is older than the cutoff to completed, and
	// returns the number of conversations affected.
	CompleteStaleConversations(channel models.Channel, olderThan time.Time) (int64, error)

	// ListRecentConversations returns up to limit conversations, newest first,
	// each with its message count.
	ListRecentConversations(limit int) ([]models.ConversationSummary, error)

	// AddDeliveryReceipt records a message delivery status callback.
	AddDeliveryReceipt(r models.DeliveryReceipt) error

	// Close releases the underlying storage resources.
	Close() error
}

// Opts holds configuration options for store constructors.
type Opts struct {
	DSN string
}

// Option defines a configuration option for store constructors.
type Option func(*Opts)

// WithDSN sets the database connection string.
func WithDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType reports "postgres" for PostgreSQL-style connection strings
// and "sqlite" for everything else (file paths).
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}

// InMemoryStore is a Store backed by process memory. It is used in tests and
// mirrors the SQL backends' semantics, including the single-active-conversation
// guarantee.
type InMemoryStore struct {
	mu            sync.Mutex
	profiles      map[string]models.CustomerProfile
	conversations map[string]models.Conversation
	messages      map[string][]models.Message // conversation ID -> transcript in append order
	receipts      []models.DeliveryReceipt
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		profiles:      make(map[string]models.CustomerProfile),
		conversations: make(map[string]models.Conversation),
		messages:      make(map[string][]models.Message),
	}
}

// EnsureCustomerProfile creates a profile if none exists for the phone number.
func (s *InMemoryStore) EnsureCustomerProfile(phone string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[phone]; ok {
		return nil
	}
	now := time.Now()
	s.profiles[phone] = models.CustomerProfile{
		ID:        util.GenerateProfileID(),
		Phone:     phone,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return nil
}

// GetCustomerProfile returns the profile for the phone number, or nil if absent.
func (s *InMemoryStore) GetCustomerProfile(phone string) (*models.CustomerProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[phone]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

// FindActiveConversation returns the active conversation for the customer, or nil.
func (s *InMemoryStore) FindActiveConversation(phone string) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findActiveLocked(phone), nil
}

func (s *InMemoryStore) findActiveLocked(phone string) *models.Conversation {
	for _, c := range s.conversations {
		if c.CustomerPhone == phone && c.Status == models.ConversationStatusActive {
			conv := c
			return &conv
		}
	}
	return nil
}

// FindOrCreateActiveConversation returns the active conversation, creating one if needed.
func (s *InMemoryStore) FindOrCreateActiveConversation(phone string, channel models.Channel) (*models.Conversation, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing := s.findActiveLocked(phone); existing != nil {
		return existing, false, nil
	}
	now := time.Now()
	conv := models.Conversation{
		ID:            util.GenerateConversationID(),
		CustomerPhone: phone,
		Channel:       channel,
		Status:        models.ConversationStatusActive,
		AIEnabled:     true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	s.conversations[conv.ID] = conv
	return &conv, true, nil
}

// AppendMessage appends a message and touches the conversation timestamp.
func (s *InMemoryStore) AppendMessage(conversationID string, role models.MessageRole, content string) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[conversationID]
	if !ok {
		return nil, fmt.Errorf("conversation not found: %s", conversationID)
	}
	msg := models.Message{
		ID:             util.GenerateMessageID(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		CreatedAt:      time.Now(),
	}
	s.messages[conversationID] = append(s.messages[conversationID], msg)
	conv.UpdatedAt = msg.CreatedAt
	s.conversations[conversationID] = conv
	return &msg, nil
}

// ListMessages returns the transcript in append order.
func (s *InMemoryStore) ListMessages(conversationID string) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.messages[conversationID]
	out := make([]models.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

// SetConversationStatus transitions the conversation to the given status.
func (s *InMemoryStore) SetConversationStatus(conversationID string, status models.ConversationStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[conversationID]
	if !ok {
		return fmt.Errorf("conversation not found: %s", conversationID)
	}
	conv.Status = status
	conv.UpdatedAt = time.Now()
	s.conversations[conversationID] = conv
	return nil
}

// CompleteStaleConversations completes active conversations on the channel
// untouched since the cutoff.
func (s *InMemoryStore) CompleteStaleConversations(channel models.Channel, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, c := range s.conversations {
		if c.Channel == channel && c.Status == models.ConversationStatusActive && c.UpdatedAt.Before(olderThan) {
			c.Status = models.ConversationStatusCompleted
			c.UpdatedAt = time.Now()
			s.conversations[id] = c
			n++
		}
	}
	return n, nil
}

// ListRecentConversations returns up to limit conversations, newest first.
func (s *InMemoryStore) ListRecentConversations(limit int) ([]models.ConversationSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := make([]models.ConversationSummary, 0, len(s.conversations))
	for id, c := range s.conversations {
		all = append(all, models.ConversationSummary{Conversation: c, MessageCount: len(s.messages[id])})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// AddDeliveryReceipt records a delivery status callback.
func (s *InMemoryStore) AddDeliveryReceipt(r models.DeliveryReceipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.receipts = append(s.receipts, r)
	return nil
}

// Backdate rewrites a conversation's updated_at timestamp (test helper).
func (s *InMemoryStore) Backdate(conversationID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[conversationID]
	if !ok {
		return fmt.Errorf("conversation not found: %s", conversationID)
	}
	conv.UpdatedAt = at
	s.conversations[conversationID] = conv
	return nil
}

// DeliveryReceipts returns all recorded delivery receipts (test helper).
func (s *InMemoryStore) DeliveryReceipts() []models.DeliveryReceipt {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.DeliveryReceipt, len(s.receipts))
	copy(out, s.receipts)
	return out
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}
