package refreshtokens

import (
	"context"
	"time"

	"github.com/dmitrijs2005/sealchat/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, userID int64, token string, expiresAt time.Time) error
	Find(ctx context.Context, token string) (*models.RefreshToken, error)
	Delete(ctx context.Context, token string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
