package messages

import (
	"context"

	"github.com/dmitrijs2005/sealchat/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, m *models.Message) (*models.Message, error)
	GetByID(ctx context.Context, id int64) (*models.Message, error)
	ListConversation(ctx context.Context, a, b int64) ([]*models.Message, error)
	ListForUser(ctx context.Context, userID int64) ([]*models.Message, error)
}
