// Package messages persists direct messages. Content is stored exactly as
// produced by the message codec; this layer never sees plaintext.
package messages

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/sealchat/internal/common"
	"github.com/dmitrijs2005/sealchat/internal/dbx"
	"github.com/dmitrijs2005/sealchat/internal/server/models"
)

const selectMessage = `
	SELECT m.id, m.sender_id, m.receiver_id, s.username, r.username,
	       m.content, m.is_encrypted, m.attachment_key, m.original_filename,
	       m.attachment_content_type, m.timestamp
	FROM messages m
	JOIN users s ON s.id = m.sender_id
	JOIN users r ON r.id = m.receiver_id
`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts m and fills in the assigned ID and Timestamp.
func (r *PostgresRepository) Create(ctx context.Context, m *models.Message) (*models.Message, error) {
	query := `
		INSERT INTO messages (sender_id, receiver_id, content, is_encrypted,
			attachment_key, original_filename, attachment_content_type)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, timestamp
	`
	err := r.db.QueryRowContext(ctx, query,
		m.SenderID, m.ReceiverID, m.Content, m.IsEncrypted,
		m.AttachmentKey, m.OriginalFilename, m.AttachmentContentType,
	).Scan(&m.ID, &m.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return m, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (*models.Message, error) {
	m, err := scan(r.db.QueryRowContext(ctx, selectMessage+` WHERE m.id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return m, nil
}

// ListConversation returns the messages exchanged between a and b, oldest first.
func (r *PostgresRepository) ListConversation(ctx context.Context, a, b int64) ([]*models.Message, error) {
	query := selectMessage + `
		WHERE (m.sender_id = $1 AND m.receiver_id = $2) OR (m.sender_id = $2 AND m.receiver_id = $1)
		ORDER BY m.timestamp, m.id
	`
	return r.list(ctx, query, a, b)
}

// ListForUser returns every message userID sent or received, newest first.
func (r *PostgresRepository) ListForUser(ctx context.Context, userID int64) ([]*models.Message, error) {
	query := selectMessage + `
		WHERE m.sender_id = $1 OR m.receiver_id = $1
		ORDER BY m.timestamp DESC, m.id DESC
	`
	return r.list(ctx, query, userID)
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]*models.Message, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.Message
	for rows.Next() {
		m, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(s scanner) (*models.Message, error) {
	m := &models.Message{}
	err := s.Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.SenderUsername, &m.ReceiverUsername,
		&m.Content, &m.IsEncrypted, &m.AttachmentKey, &m.OriginalFilename,
		&m.AttachmentContentType, &m.Timestamp)
	if err != nil {
		return nil, err
	}
	return m, nil
}
