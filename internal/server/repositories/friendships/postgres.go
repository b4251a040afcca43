// Package friendships stores friend requests and answers the question the
// messaging layer cares about: may these two users talk.
package friendships

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/sealchat/internal/common"
	"github.com/dmitrijs2005/sealchat/internal/dbx"
	"github.com/dmitrijs2005/sealchat/internal/server/models"
	"github.com/jackc/pgx/v5/pgconn"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// AreFriends is symmetric: an accepted request in either direction counts.
func (r *PostgresRepository) AreFriends(ctx context.Context, a, b int64) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM friendships
			WHERE status = 'accepted'
			  AND ((sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1))
		)
	`
	var ok bool
	if err := r.db.QueryRowContext(ctx, query, a, b).Scan(&ok); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return ok, nil
}

// Request records a pending request from senderID to receiverID.
func (r *PostgresRepository) Request(ctx context.Context, senderID, receiverID int64) (*models.Friendship, error) {
	query := `
		INSERT INTO friendships (sender_id, receiver_id, status)
		VALUES ($1, $2, 'pending')
		RETURNING id, created_at
	`
	f := &models.Friendship{SenderID: senderID, ReceiverID: receiverID, Status: models.FriendshipPending}
	if err := r.db.QueryRowContext(ctx, query, senderID, receiverID).Scan(&f.ID, &f.CreatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, common.ErrorAlreadyExists
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return f, nil
}

// Respond moves a pending request from senderID to receiverID into status.
// Only pending requests can be answered.
func (r *PostgresRepository) Respond(ctx context.Context, senderID, receiverID int64, status string) error {
	query := `
		UPDATE friendships SET status = $3
		WHERE sender_id = $1 AND receiver_id = $2 AND status = 'pending'
	`
	res, err := r.db.ExecContext(ctx, query, senderID, receiverID, status)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

// ListForUser returns every request userID sent or received, in any
// status, newest first.
func (r *PostgresRepository) ListForUser(ctx context.Context, userID int64) ([]*models.Friendship, error) {
	query := `
		SELECT f.id, f.sender_id, s.username, f.receiver_id, rc.username, f.status, f.created_at
		FROM friendships f
		JOIN users s ON s.id = f.sender_id
		JOIN users rc ON rc.id = f.receiver_id
		WHERE f.sender_id = $1 OR f.receiver_id = $1
		ORDER BY f.created_at DESC, f.id DESC
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []*models.Friendship
	for rows.Next() {
		f := &models.Friendship{}
		if err := rows.Scan(&f.ID, &f.SenderID, &f.SenderUsername, &f.ReceiverID, &f.ReceiverUsername, &f.Status, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}
