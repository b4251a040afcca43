// Package keypairs persists each user's RSA key pair.
package keypairs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/sealchat/internal/common"
	"github.com/dmitrijs2005/sealchat/internal/dbx"
	"github.com/dmitrijs2005/sealchat/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Get returns the stored pair; missing halves come back as empty strings.
// A user without any row yields common.ErrorNotFound.
func (r *PostgresRepository) Get(ctx context.Context, userID int64) (*models.KeyPair, error) {
	query := `
		SELECT COALESCE(public_key, ''), COALESCE(private_key, '')
		FROM key_pairs
		WHERE user_id = $1
	`
	kp := &models.KeyPair{UserID: userID}
	if err := r.db.QueryRowContext(ctx, query, userID).Scan(&kp.PublicKey, &kp.PrivateKey); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return kp, nil
}

// StoreIfMissing writes kp only when the user has no pair yet or one of its
// halves is still empty. A populated pair is never overwritten, so
// concurrent writers converge on whichever pair landed first. The result
// reports whether kp was written.
func (r *PostgresRepository) StoreIfMissing(ctx context.Context, kp *models.KeyPair) (bool, error) {
	query := `
		INSERT INTO key_pairs (user_id, public_key, private_key)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE
		SET public_key = EXCLUDED.public_key, private_key = EXCLUDED.private_key
		WHERE COALESCE(key_pairs.public_key, '') = '' OR COALESCE(key_pairs.private_key, '') = ''
	`
	res, err := r.db.ExecContext(ctx, query, kp.UserID, kp.PublicKey, kp.PrivateKey)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected error: %w", err)
	}
	return n == 1, nil
}
