// Package store provides storage backends for Supportline.
//
// This file implements the SQLite-backed conversation store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/lendfront/supportline/internal/models"
	"github.com/lendfront/supportline/internal/util"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore implements Store on top of a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

// EnsureCustomerProfile creates a profile if none exists for the phone number.
func (s *SQLiteStore) EnsureCustomerProfile(phone string) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(
		`INSERT INTO customer_profiles (id, phone, created_at, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (phone) DO NOTHING`,
		util.GenerateProfileID(), phone, now, now)
	if err != nil {
		slog.Error("SQLiteStore EnsureCustomerProfile failed", "error", err, "phone", phone)
		return fmt.Errorf("failed to ensure customer profile for %s: %w", phone, err)
	}
	return nil
}

// GetCustomerProfile returns the profile for the phone number, or nil if absent.
func (s *SQLiteStore) GetCustomerProfile(phone string) (*models.CustomerProfile, error) {
	row := s.db.QueryRow(
		`SELECT id, phone, name, email, notes, created_at, updated_at FROM customer_profiles WHERE phone = ?`,
		phone)
	p, err := scanProfileRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetCustomerProfile failed", "error", err, "phone", phone)
		return nil, fmt.Errorf("failed to get customer profile for %s: %w", phone, err)
	}
	return p, nil
}

// FindActiveConversation returns the active conversation for the customer, or nil.
func (s *SQLiteStore) FindActiveConversation(phone string) (*models.Conversation, error) {
	row := s.db.QueryRow(
		`SELECT id, customer_phone, channel, status, ai_enabled, created_at, updated_at
		 FROM conversations WHERE customer_phone = ? AND status = ?`,
		phone, models.ConversationStatusActive)
	c, err := scanConversationRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore FindActiveConversation failed", "error", err, "phone", phone)
		return nil, fmt.Errorf("failed to find active conversation for %s: %w", phone, err)
	}
	return c, nil
}

// FindOrCreateActiveConversation returns the customer's active conversation,
// creating one atomically if none exists. The partial unique index on
// (customer_phone) WHERE status='active' makes concurrent creations collapse
// into a single row.
func (s *SQLiteStore) FindOrCreateActiveConversation(phone string, channel models.Channel) (*models.Conversation, bool, error) {
	// Two attempts cover the window where a competing conversation is closed
	// between our failed insert and the follow-up lookup.
	for attempt := 0; attempt < 2; attempt++ {
		now := time.Now().UTC()
		id := util.GenerateConversationID()
		res, err := s.db.Exec(
			`INSERT INTO conversations (id, customer_phone, channel, status, ai_enabled, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT DO NOTHING`,
			id, phone, channel, models.ConversationStatusActive, true, now, now)
		if err != nil {
			slog.Error("SQLiteStore FindOrCreateActiveConversation insert failed", "error", err, "phone", phone)
			return nil, false, fmt.Errorf("failed to create conversation for %s: %w", phone, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			slog.Debug("SQLiteStore created conversation", "id", id, "phone", phone, "channel", channel)
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
func (s *SQLiteStore) AppendMessage(conversationID string, role models.MessageRole, content string) (*models.Message, error) {
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
		`INSERT INTO messages (id, conversation_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		msg.ID, msg.ConversationID, msg.Role, msg.Content, msg.CreatedAt); err != nil {
		slog.Error("SQLiteStore AppendMessage insert failed", "error", err, "conversation_id", conversationID)
		return nil, fmt.Errorf("failed to append message to %s: %w", conversationID, err)
	}
	res, err := tx.Exec(
		`UPDATE conversations SET updated_at = ? WHERE id = ?`,
		msg.CreatedAt, conversationID)
	if err != nil {
		slog.Error("SQLiteStore AppendMessage touch failed", "error", err, "conversation_id", conversationID)
		return nil, fmt.Errorf("failed to touch conversation %s: %w", conversationID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("conversation not found: %s", conversationID)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit message append: %w", err)
	}
	slog.Debug("SQLiteStore AppendMessage succeeded", "conversation_id", conversationID, "role", role)
	return &msg, nil
}

// ListMessages returns the full transcript in append order.
func (s *SQLiteStore) ListMessages(conversationID string) ([]models.Message, error) {
	rows, err := s.db.Query(
		`SELECT id, conversation_id, role, content, created_at FROM messages
		 WHERE conversation_id = ? ORDER BY seq ASC`,
		conversationID)
	if err != nil {
		slog.Error("SQLiteStore ListMessages query failed", "error", err, "conversation_id", conversationID)
		return nil, fmt.Errorf("failed to list messages for %s: %w", conversationID, err)
	}
	defer rows.Close()
	return collectMessages(rows)
}

// SetConversationStatus transitions the conversation to the given status.
func (s *SQLiteStore) SetConversationStatus(conversationID string, status models.ConversationStatus) error {
	res, err := s.db.Exec(
		`UPDATE conversations SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now().UTC(), conversationID)
	if err != nil {
		slog.Error("SQLiteStore SetConversationStatus failed", "error", err, "conversation_id", conversationID, "status", status)
		return fmt.Errorf("failed to set status of %s: %w", conversationID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("conversation not found: %s", conversationID)
	}
	slog.Debug("SQLiteStore SetConversationStatus succeeded", "conversation_id", conversationID, "status", status)
	return nil
}

// CompleteStaleConversations completes active conversations on the channel
// untouched since the cutoff.
func (s *SQLiteStore) CompleteStaleConversations(channel models.Channel, olderThan time.Time) (int64, error) {
	res, err := s.db.Exec(
		`UPDATE conversations SET status = ?, updated_at = ?
		 WHERE channel = ? AND status = ? AND updated_at < ?`,
		models.ConversationStatusCompleted, time.Now().UTC(), channel, models.ConversationStatusActive, olderThan)
	if err != nil {
		slog.Error("SQLiteStore CompleteStaleConversations failed", "error", err, "channel", channel)
		return 0, fmt.Errorf("failed to complete stale %s conversations: %w", channel, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count completed conversations: %w", err)
	}
	slog.Debug("SQLiteStore CompleteStaleConversations succeeded", "channel", channel, "count", n)
	return n, nil
}

// ListRecentConversations returns up to limit conversations, newest first,
// each with its message count.
func (s *SQLiteStore) ListRecentConversations(limit int) ([]models.ConversationSummary, error) {
	rows, err := s.db.Query(
		`SELECT c.id, c.customer_phone, c.channel, c.status, c.ai_enabled, c.created_at, c.updated_at, COUNT(m.seq)
		 FROM conversations c
		 LEFT JOIN messages m ON m.conversation_id = c.id
		 GROUP BY c.id
		 ORDER BY c.created_at DESC
		 LIMIT ?`,
		limit)
	if err != nil {
		slog.Error("SQLiteStore ListRecentConversations query failed", "error", err)
		return nil, fmt.Errorf("failed to list recent conversations: %w", err)
	}
	defer rows.Close()
	return collectSummaries(rows)
}

// AddDeliveryReceipt records a message delivery status callback.
func (s *SQLiteStore) AddDeliveryReceipt(r models.DeliveryReceipt) error {
	_, err := s.db.Exec(
		`INSERT INTO delivery_receipts (message_sid, status, error_code, error_message, received_at)
		 VALUES (?, ?, ?, ?, ?)`,
		r.MessageSID, r.Status, nilIfEmpty(r.ErrorCode), nilIfEmpty(r.ErrorMessage), r.ReceivedAt)
	if err != nil {
		slog.Error("SQLiteStore AddDeliveryReceipt failed", "error", err, "message_sid", r.MessageSID)
		return fmt.Errorf("failed to insert delivery receipt for %s: %w", r.MessageSID, err)
	}
	return nil
}

// Close closes the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
