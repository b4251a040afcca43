package keypairs

import (
	"context"

	"github.com/dmitrijs2005/sealchat/internal/server/models"
)

type Repository interface {
	Get(ctx context.Context, userID int64) (*models.KeyPair, error)
	StoreIfMissing(ctx context.Context, kp *models.KeyPair) (bool, error)
}
