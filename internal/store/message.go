package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Message is a row of the messages table.
type Message struct {
	MessageID int32     `db:"message_id"`
	Name      string    `db:"name"`
	Message   string    `db:"message"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// CreateMessageParams represents parameters for inserting a message
type CreateMessageParams struct {
	MessageID int32
	Name      string
	Message   string
}

// UpdateMessageParams represents parameters for updating a message
type UpdateMessageParams struct {
	MessageID int32
	Name      string
	Message   string
}

const sqlCreateMessage = `
INSERT INTO messages (message_id, name, message)
VALUES ($1, $2, $3)
ON CONFLICT (message_id) DO NOTHING`

// CreateMessage inserts a row. An existing row with the same id is left untouched and
// zero rows are reported.
func (s *Store) CreateMessage(ctx context.Context, params CreateMessageParams) (int64, error) {
	result, err := s.db.ExecContext(ctx, sqlCreateMessage, params.MessageID, params.Name, params.Message)
	if err != nil {
		return 0, fmt.Errorf("failed to insert message: %w", err)
	}
	return rowsAffected(result)
}

const sqlUpdateMessage = `
UPDATE messages
SET name = $1, message = $2, updated_at = NOW()
WHERE message_id = $3`

// UpdateMessage sets name and message on the matching row. A missing row is not an error.
func (s *Store) UpdateMessage(ctx context.Context, params UpdateMessageParams) (int64, error) {
	result, err := s.db.ExecContext(ctx, sqlUpdateMessage, params.Name, params.Message, params.MessageID)
	if err != nil {
		return 0, fmt.Errorf("failed to update message: %w", err)
	}
	return rowsAffected(result)
}

const sqlDeleteMessage = `
DELETE FROM messages WHERE message_id = $1`

// DeleteMessage removes the matching row. A missing row is not an error.
func (s *Store) DeleteMessage(ctx context.Context, messageID int32) (int64, error) {
	result, err := s.db.ExecContext(ctx, sqlDeleteMessage, messageID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete message: %w", err)
	}
	return rowsAffected(result)
}

const sqlGetMessage = `
SELECT message_id, name, message, created_at, updated_at FROM messages WHERE message_id = $1`

func (s *Store) GetMessage(ctx context.Context, messageID int32) (Message, error) {
	var message Message
	err := s.db.GetContext(ctx, &message, sqlGetMessage, messageID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Message{}, ErrNotFound
		}
		s.logger.Error(ctx, "failed to get message", err)
		return Message{}, fmt.Errorf("failed to get message: %w", err)
	}
	return message, nil
}

const sqlCountMessages = `SELECT COUNT(*) FROM messages`

func (s *Store) CountMessages(ctx context.Context) (int, error) {
	var count int
	if err := s.db.GetContext(ctx, &count, sqlCountMessages); err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return count, nil
}

func rowsAffected(result sql.Result) (int64, error) {
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}
