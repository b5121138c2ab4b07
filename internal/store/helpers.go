package store

import (
	"database/sql"
	"fmt"

	"github.com/lendfront/supportline/internal/models"
)

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// scanProfileRow scans a CustomerProfile from a single sql.Row.
func scanProfileRow(row *sql.Row) (*models.CustomerProfile, error) {
	var p models.CustomerProfile
	var name, email, notes sql.NullString
	err := row.Scan(&p.ID, &p.Phone, &name, &email, &notes, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if name.Valid {
		p.Name = &name.String
	}
	if email.Valid {
		p.Email = &email.String
	}
	if notes.Valid {
		p.Notes = &notes.String
	}
	return &p, nil
}

// scanConversationRow scans a Conversation from a single sql.Row.
func scanConversationRow(row *sql.Row) (*models.Conversation, error) {
	var c models.Conversation
	err := row.Scan(&c.ID, &c.CustomerPhone, &c.Channel, &c.Status, &c.AIEnabled, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// collectMessages drains rows of messages into a slice.
func collectMessages(rows *sql.Rows) ([]models.Message, error) {
	var msgs []models.Message
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate message rows: %w", err)
	}
	return msgs, nil
}

// collectSummaries drains rows of conversation summaries into a slice.
func collectSummaries(rows *sql.Rows) ([]models.ConversationSummary, error) {
	var out []models.ConversationSummary
	for rows.Next() {
		var s models.ConversationSummary
		if err := rows.Scan(&s.ID, &s.CustomerPhone, &s.Channel, &s.Status, &s.AIEnabled, &s.CreatedAt, &s.UpdatedAt, &s.MessageCount); err != nil {
			return nil, fmt.Errorf("failed to scan conversation summary row: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate conversation summary rows: %w", err)
	}
	return out, nil
}
