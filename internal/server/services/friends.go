package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/sealchat/internal/common"
	"github.com/dmitrijs2005/sealchat/internal/logging"
	"github.com/dmitrijs2005/sealchat/internal/server/models"
	"github.com/dmitrijs2005/sealchat/internal/server/repositories/repomanager"
)

var ErrSelfFriendship = fmt.Errorf("%w: cannot befriend yourself", common.ErrValidationFailed)

// FriendService manages the friend requests that gate direct messaging.
type FriendService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	logger      logging.Logger
}

func NewFriendService(db *sql.DB, m repomanager.RepositoryManager, logger logging.Logger) *FriendService {
	return &FriendService{db: db, repomanager: m, logger: logger.With("module", "friends")}
}

// Request records a pending request from senderID to receiverID. The
// receiver must exist; a repeated request yields common.ErrorAlreadyExists.
func (s *FriendService) Request(ctx context.Context, senderID, receiverID int64) (*models.Friendship, error) {
	if senderID == receiverID {
		return nil, ErrSelfFriendship
	}
	if _, err := s.repomanager.Users(s.db).GetByID(ctx, receiverID); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("error loading user: %w", err)
	}

	f, err := s.repomanager.Friendships(s.db).Request(ctx, senderID, receiverID)
	if err != nil {
		if errors.Is(err, common.ErrorAlreadyExists) {
			return nil, common.ErrorAlreadyExists
		}
		return nil, fmt.Errorf("error creating friend request: %w", err)
	}
	s.logger.Info(ctx, "friend request sent", "sender_id", senderID, "receiver_id", receiverID)
	return f, nil
}

// Accept answers the pending request that requesterID sent to receiverID.
func (s *FriendService) Accept(ctx context.Context, receiverID, requesterID int64) error {
	return s.respond(ctx, receiverID, requesterID, models.FriendshipAccepted)
}

// Reject declines the pending request that requesterID sent to receiverID.
func (s *FriendService) Reject(ctx context.Context, receiverID, requesterID int64) error {
	return s.respond(ctx, receiverID, requesterID, models.FriendshipRejected)
}

func (s *FriendService) respond(ctx context.Context, receiverID, requesterID int64, status string) error {
	err := s.repomanager.Friendships(s.db).Respond(ctx, requesterID, receiverID, status)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrorNotFound
		}
		return fmt.Errorf("error answering friend request: %w", err)
	}
	s.logger.Info(ctx, "friend request answered", "sender_id", requesterID, "receiver_id", receiverID, "status", status)
	return nil
}

// List returns every friend request userID sent or received, in any status.
func (s *FriendService) List(ctx context.Context, userID int64) ([]*models.Friendship, error) {
	out, err := s.repomanager.Friendships(s.db).ListForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error listing friendships: %w", err)
	}
	if out == nil {
		out = []*models.Friendship{}
	}
	return out, nil
}
