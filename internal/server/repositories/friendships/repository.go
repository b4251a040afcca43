package friendships

import (
	"context"

	"github.com/dmitrijs2005/sealchat/internal/server/models"
)

type Repository interface {
	AreFriends(ctx context.Context, a, b int64) (bool, error)
	Request(ctx context.Context, senderID, receiverID int64) (*models.Friendship, error)
	Respond(ctx context.Context, senderID, receiverID int64, status string) error
	ListForUser(ctx context.Context, userID int64) ([]*models.Friendship, error)
}
