// Package chatgroups persists chat groups, their membership and their
// messages. Message content arrives already encrypted.
package chatgroups

import (
	"context"
	"database/sql"
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

// Create inserts the group row and fills in ID and CreatedAt. Members are
// added separately with AddMember.
func (r *PostgresRepository) Create(ctx context.Context, g *models.ChatGroup) (*models.ChatGroup, error) {
	query := `
		INSERT INTO chat_groups (name, created_by)
		VALUES ($1, $2)
		RETURNING id, created_at
	`
	if err := r.db.QueryRowContext(ctx, query, g.Name, g.CreatedBy).Scan(&g.ID, &g.CreatedAt); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return g, nil
}

// AddMember is idempotent. An unknown user or group yields common.ErrorNotFound.
func (r *PostgresRepository) AddMember(ctx context.Context, groupID, userID int64) error {
	query := `
		INSERT INTO chat_group_members (group_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`
	if _, err := r.db.ExecContext(ctx, query, groupID, userID); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return common.ErrorNotFound
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (*models.ChatGroup, error) {
	query := `
		SELECT id, name, created_by, created_at
		FROM chat_groups
		WHERE id = $1
	`
	g := &models.ChatGroup{}
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&g.ID, &g.Name, &g.CreatedBy, &g.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	members, err := r.members(ctx, `
		SELECT group_id, user_id
		FROM chat_group_members
		WHERE group_id = $1
		ORDER BY user_id
	`, id)
	if err != nil {
		return nil, err
	}
	g.MemberIDs = members[id]
	return g, nil
}

// ListForUser returns the groups userID belongs to, newest first, each
// with its full member list.
func (r *PostgresRepository) ListForUser(ctx context.Context, userID int64) ([]*models.ChatGroup, error) {
	query := `
		SELECT g.id, g.name, g.created_by, g.created_at
		FROM chat_groups g
		JOIN chat_group_members me ON me.group_id = g.id AND me.user_id = $1
		ORDER BY g.created_at DESC, g.id DESC
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []*models.ChatGroup
	for rows.Next() {
		g := &models.ChatGroup{}
		if err := rows.Scan(&g.ID, &g.Name, &g.CreatedBy, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	if len(out) == 0 {
		return out, nil
	}

	members, err := r.members(ctx, `
		SELECT m.group_id, m.user_id
		FROM chat_group_members m
		JOIN chat_group_members me ON me.group_id = m.group_id AND me.user_id = $1
		ORDER BY m.group_id, m.user_id
	`, userID)
	if err != nil {
		return nil, err
	}
	for _, g := range out {
		g.MemberIDs = members[g.ID]
	}
	return out, nil
}

// members runs a (group_id, user_id) query and groups the rows by group.
func (r *PostgresRepository) members(ctx context.Context, query string, args ...any) (map[int64][]int64, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	out := map[int64][]int64{}
	for rows.Next() {
		var groupID, userID int64
		if err := rows.Scan(&groupID, &userID); err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		out[groupID] = append(out[groupID], userID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) IsMember(ctx context.Context, groupID, userID int64) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM chat_group_members WHERE group_id = $1 AND user_id = $2
		)
	`
	var ok bool
	if err := r.db.QueryRowContext(ctx, query, groupID, userID).Scan(&ok); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return ok, nil
}

// CreateMessage inserts m and fills in ID and Timestamp.
func (r *PostgresRepository) CreateMessage(ctx context.Context, m *models.GroupMessage) (*models.GroupMessage, error) {
	query := `
		INSERT INTO chat_group_messages (group_id, sender_id, content)
		VALUES ($1, $2, $3)
		RETURNING id, timestamp
	`
	if err := r.db.QueryRowContext(ctx, query, m.GroupID, m.SenderID, m.Content).Scan(&m.ID, &m.Timestamp); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return m, nil
}

// ListMessages returns the messages of groupID, oldest first.
func (r *PostgresRepository) ListMessages(ctx context.Context, groupID int64) ([]*models.GroupMessage, error) {
	query := `
		SELECT m.id, m.group_id, m.sender_id, u.username, m.content, m.timestamp
		FROM chat_group_messages m
		JOIN users u ON u.id = m.sender_id
		WHERE m.group_id = $1
		ORDER BY m.timestamp, m.id
	`
	rows, err := r.db.QueryContext(ctx, query, groupID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []*models.GroupMessage
	for rows.Next() {
		m := &models.GroupMessage{}
		if err := rows.Scan(&m.ID, &m.GroupID, &m.SenderID, &m.SenderUsername, &m.Content, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}
