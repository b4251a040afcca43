package chatgroups

import (
	"context"

	"github.com/dmitrijs2005/sealchat/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, g *models.ChatGroup) (*models.ChatGroup, error)
	AddMember(ctx context.Context, groupID, userID int64) error
	GetByID(ctx context.Context, id int64) (*models.ChatGroup, error)
	ListForUser(ctx context.Context, userID int64) ([]*models.ChatGroup, error)
	IsMember(ctx context.Context, groupID, userID int64) (bool, error)
	CreateMessage(ctx context.Context, m *models.GroupMessage) (*models.GroupMessage, error)
	ListMessages(ctx context.Context, groupID int64) ([]*models.GroupMessage, error)
}
