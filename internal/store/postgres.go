// Package store provides storage backends for Supportline.
//
// This file implements the PostgreSQL-backed conversation store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/lendfront/supportline/internal/models"
	"github.com/lendfront/supportline/internal/util"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore implements Store on top of PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")

	return &PostgresStore{db: db}, nil
}

// EnsureCustomerProfile creates a profile if none exists for the phone number.
func (s *PostgresStore) EnsureCustomerProfile(phone string) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(
		`INSERT INTO customer_profiles (id, phone, created_at, updated_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (phone) DO NOTHING`,
		util.GenerateProfileID(), phone, now, now)
	if err != nil {
		slog.Error("PostgresStore EnsureCustomerProfile failed", "error", err, "phone", phone)
		return fmt.Errorf("failed to ensure customer profile for %s: %w", phone, err)
	}
	return nil
}

// GetCustomerProfile returns the profile for the phone number, or nil if absent.
func (s *PostgresStore) GetCustomerProfile(phone string) (*models.CustomerProfile, error) {
	row := s.db.QueryRow(
		`SELECT id, phone, name, email, notes, created_at, updated_at FROM customer_profiles WHERE phone = $1`,
		phone)
	p, err := scanProfileRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetCustomerProfile failed", "error", err, "phone", phone)
		return nil, fmt.Errorf("failed to get customer profile for %s: %w", phone, err)
	}
	return p, nil
}

// FindActiveConversation returns the active conversation for the customer, or nil.
func (s *PostgresStore) FindActiveConversation(phone string) (*models.Conversation, error) {
	row := s.db.QueryRow(
		`SELECT id, customer_phone, channel, status, ai_enabled, created_at, updated_at
		 FROM conversations WHERE customer_phone = $1 AND status = $2`,
		phone, models.ConversationStatusActive)
	c, err := scanConversationRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore FindActiveConversation failed", "error", err, "phone", phone)
		return nil, fmt.Errorf("failed to find active conversation for %s: %w", phone, err)
	}
	return c, nil
}

// FindOrCreateActiveConversation returns the customer's active conversation,
// creating one atomically if none exists.
func (s *PostgresStore) FindOrCreateActiveConversation(phone string, channel models.Channel) (*models.Conversation, bool, error) {
	for attempt := 0; attempt < 2; attempt++ {
		now := time.Now().UTC()
		id := util.GenerateConversationID()
		res, err := s.db.Exec(
			`INSERT INTO conversations (id, customer_phone, channel, status, ai_enabled, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 ON CONFLICT DO NOTHING`,
			id, phone, channel, models.ConversationStatusActive, true, now, now)
		if err != nil {
			slog.Error("PostgresStore FindOrCreateActiveConversation insert failed", "error", err, "phone", phone)
			return nil, false, fmt.Errorf("failed to create conversation for %s: %w", phone, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			slog.Debug("PostgresStore created conversation", "id", id, "phone", phone, "channel", channel)
			return &models.Conversation{
				ID:            id,
				CustomerPhone: phone,
				Channel:       channel,
				Status:        models.ConversationStatusActive,
				AIEnabled:     true,
				CreatedAt:     now,
				UpdatedAt:     now,
			}, true, nil
		}
		existing, err := s.FindActiveConversation(phone)
		if err != nil {
			return nil, false, err
		}
		if existing != nil {
			return existing, false, nil
		}
	}
	return nil, false, fmt.Errorf("failed to find or create active conversation for %s", phone)
}

// AppendMessage appends a message to the transcript and touches the
// conversation's updated_at so the staleness sweep sees recent activity.
func (s *PostgresStore) AppendMessage(conversationID string, role models.MessageRole, content string) (*models.Message, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	msg := models.Message{
		ID:             util.GenerateMessageID(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		CreatedAt:      time.Now().UTC(),
	}
	if _, err := tx.Exec(
		`INSERT INTO messages (id, conversation_id, role, content, created_at) VALUES ($1, $2, $3, $4, $5)`,
		msg.ID, msg.ConversationID, msg.Role, msg.Content, msg.CreatedAt); err != nil {
		slog.Error("PostgresStore AppendMessage insert failed", "error", err, "conversation_id", conversationID)
		return nil, fmt.Errorf("failed to append message to %s: %w", conversationID, err)
	}
	res, err := tx.Exec(
		`UPDATE conversations SET updated_at = $1 WHERE id = $2`,
		msg.CreatedAt, conversationID)
	if err != nil {
		slog.Error("PostgresStore AppendMessage touch failed", "error", err, "conversation_id", conversationID)
		return nil, fmt.Errorf("failed to touch conversation %s: %w", conversationID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("conversation not found: %s", conversationID)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit message append: %w", err)
	}
	slog.Debug("PostgresStore AppendMessage succeeded", "conversation_id", conversationID, "role", role)
	return &msg, nil
}

// ListMessages returns the full transcript in append order.
func (s *PostgresStore) ListMessages(conversationID string) ([]models.Message, error) {
	rows, err := s.db.Query(
		`SELECT id, conversation_id, role, content, created_at FROM messages
		 WHERE conversation_id = $1 ORDER BY seq ASC`,
		conversationID)
	if err != nil {
		slog.Error("PostgresStore ListMessages query failed", "error", err, "conversation_id", conversationID)
		return nil, fmt.Errorf("failed to list messages for %s: %w", conversationID, err)
	}
	defer rows.Close()
	return collectMessages(rows)
}

// SetConversationStatus transitions the conversation to the given status.
func (s *PostgresStore) SetConversationStatus(conversationID string, status models.ConversationStatus) error {
	res, err := s.db.Exec(
		`UPDATE conversations SET status = $1, updated_at = $2 WHERE id = $3`,
		status, time.Now().UTC(), conversationID)
	if err != nil {
		slog.Error("PostgresStore SetConversationStatus failed", "error", err, "conversation_id", conversationID, "status", status)
		return fmt.Errorf("failed to set status of %s: %w", conversationID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("conversation not found: %s", conversationID)
	}
	slog.Debug("PostgresStore SetConversationStatus succeeded", "conversation_id", conversationID, "status", status)
	return nil
}

// CompleteStaleConversations completes active conversations on the channel
// untouched since the cutoff.
func (s *PostgresStore) CompleteStaleConversations(channel models.Channel, olderThan time.Time) (int64, error) {
	res, err := s.db.Exec(
		`UPDATE conversations SET status = $1, updated_at = $2
		 WHERE channel = $3 AND status = $4 AND updated_at < $5`,
		models.ConversationStatusCompleted, time.Now().UTC(), channel, models.ConversationStatusActive, olderThan)
	if err != nil {
		slog.Error("PostgresStore CompleteStaleConversations failed", "error", err, "channel", channel)
		return 0, fmt.Errorf("failed to complete stale %s conversations: %w", channel, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count completed conversations: %w", err)
	}
	slog.Debug("PostgresStore CompleteStaleConversations succeeded", "channel", channel, "count", n)
	return n, nil
}

// ListRecentConversations returns up to limit conversations, newest first,
// each with its message count.
func (s *PostgresStore) ListRecentConversations(limit int) ([]models.ConversationSummary, error) {
	rows, err := s.db.Query(
		`SELECT c.id, c.customer_phone, c.channel, c.status, c.ai_enabled, c.created_at, c.updated_at, COUNT(m.seq)
		 FROM conversations c
		 LEFT JOIN messages m ON m.conversation_id = c.id
		 GROUP BY c.id
		 ORDER BY c.created_at DESC
		 LIMIT $1`,
		limit)
	if err != nil {
		slog.Error("PostgresStore ListRecentConversations query failed", "error", err)
		return nil, fmt.Errorf("failed to list recent conversations: %w", err)
	}
	defer rows.Close()
	return collectSummaries(rows)
}

// AddDeliveryReceipt records a message delivery status callback.
func (s *PostgresStore) AddDeliveryReceipt(r models.DeliveryReceipt) error {
	_, err := s.db.Exec(
		`INSERT INTO delivery_receipts (message_sid, status, error_code, error_message, received_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		r.MessageSID, r.Status, nilIfEmpty(r.ErrorCode), nilIfEmpty(r.ErrorMessage), r.ReceivedAt)
	if err != nil {
		slog.Error("PostgresStore AddDeliveryReceipt failed", "error", err, "message_sid", r.MessageSID)
		return fmt.Errorf("failed to insert delivery receipt for %s: %w", r.MessageSID, err)
	}
	return nil
}

// Close closes the underlying database handle.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
