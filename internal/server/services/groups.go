package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/dmitrijs2005/sealchat/internal/common"
	"github.com/dmitrijs2005/sealchat/internal/cryptox"
	"github.com/dmitrijs2005/sealchat/internal/dbx"
	"github.com/dmitrijs2005/sealchat/internal/logging"
	"github.com/dmitrijs2005/sealchat/internal/server/config"
	"github.com/dmitrijs2005/sealchat/internal/server/models"
	"github.com/dmitrijs2005/sealchat/internal/server/ratelimit"
	"github.com/dmitrijs2005/sealchat/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/sealchat/internal/timex"
)

// MaxGroupNameLength matches the chat_groups.name column.
const MaxGroupNameLength = 255

var (
	ErrGroupNameRequired = fmt.Errorf("%w: group name is required", common.ErrValidationFailed)
	ErrGroupNameTooLong  = fmt.Errorf("%w: group name too long", common.ErrValidationFailed)
	ErrInvalidMember     = fmt.Errorf("%w: unknown group member", common.ErrValidationFailed)
)

// GroupView is a chat group as shown to one of its members.
type GroupView struct {
	ID           int64   `json:"id"`
	Name         string  `json:"name"`
	Members      []int64 `json:"members"`
	CreatedBy    int64   `json:"created_by"`
	CreatedAt    string  `json:"created_at"`
	MembersCount int     `json:"members_count"`
}

// GroupMessageView is a group message rendered for members. It is also the
// live payload fanned out on send.
type GroupMessageView struct {
	ID               int64  `json:"id"`
	GroupID          int64  `json:"chat_group"`
	SenderID         int64  `json:"sender"`
	SenderUsername   string `json:"sender_username"`
	DecryptedContent string `json:"decrypted_content"`
	Timestamp        string `json:"timestamp"`
}

// GroupNotifier delivers a group message to live connections in rooms.
type GroupNotifier interface {
	NotifyGroupMessage(ctx context.Context, rooms []string, msg *GroupMessageView) error
}

// GroupSendRequest is one outgoing group message.
type GroupSendRequest struct {
	SenderID       int64
	SenderUsername string
	GroupID        int64
	Text           string
}

// GroupService manages chat groups. Group message bodies use the
// process-wide symmetric cipher only; there is no per-receiver envelope.
// Everything about a group is visible to its members only; to anyone
// else the group does not exist.
type GroupService struct {
	db               *sql.DB
	repomanager      repomanager.RepositoryManager
	cipher           *cryptox.SymmetricCipher
	limiter          ratelimit.Limiter
	notifier         GroupNotifier
	logger           logging.Logger
	maxMessageLength int
}

func NewGroupService(db *sql.DB, m repomanager.RepositoryManager, cipher *cryptox.SymmetricCipher, limiter ratelimit.Limiter,
	notifier GroupNotifier, cfg *config.Config, logger logging.Logger) *GroupService {
	return &GroupService{
		db:               db,
		repomanager:      m,
		cipher:           cipher,
		limiter:          limiter,
		notifier:         notifier,
		logger:           logger.With("module", "groups"),
		maxMessageLength: cfg.MaxMessageLength,
	}
}

// Create stores a group named name with creatorID and memberIDs as members.
// The creator is always added; duplicates are ignored. Unknown members
// yield ErrInvalidMember and nothing is stored.
func (s *GroupService) Create(ctx context.Context, creatorID int64, name string, memberIDs []int64) (*GroupView, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrGroupNameRequired
	}
	if utf8.RuneCountInString(name) > MaxGroupNameLength {
		return nil, ErrGroupNameTooLong
	}

	members := append([]int64{creatorID}, memberIDs...)
	slices.Sort(members)
	members = slices.Compact(members)
	if members[0] <= 0 {
		return nil, ErrInvalidMember
	}

	g, err := dbx.WithTxValue(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) (*models.ChatGroup, error) {
		repo := s.repomanager.ChatGroups(tx)
		g, err := repo.Create(ctx, &models.ChatGroup{Name: name, CreatedBy: creatorID})
		if err != nil {
			return nil, fmt.Errorf("error creating group: %w", err)
		}
		for _, id := range members {
			if err := repo.AddMember(ctx, g.ID, id); err != nil {
				if errors.Is(err, common.ErrorNotFound) {
					return nil, ErrInvalidMember
				}
				return nil, fmt.Errorf("error adding group member: %w", err)
			}
		}
		g.MemberIDs = members
		return g, nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "group created", "group_id", g.ID, "created_by", creatorID, "members", len(members))
	return groupView(g), nil
}

// List returns the groups requester belongs to, newest first.
func (s *GroupService) List(ctx context.Context, requester int64) ([]*GroupView, error) {
	groups, err := s.repomanager.ChatGroups(s.db).ListForUser(ctx, requester)
	if err != nil {
		return nil, fmt.Errorf("error loading groups: %w", err)
	}
	out := make([]*GroupView, 0, len(groups))
	for _, g := range groups {
		out = append(out, groupView(g))
	}
	return out, nil
}

// Get returns group id, or common.ErrorNotFound when requester is not a member.
func (s *GroupService) Get(ctx context.Context, requester, id int64) (*GroupView, error) {
	g, err := s.repomanager.ChatGroups(s.db).GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("error loading group: %w", err)
	}
	if !g.HasMember(requester) {
		return nil, common.ErrorNotFound
	}
	return groupView(g), nil
}

// Send checks, in order: rate limit, length, emptiness, membership. It then
// stores the sanitized text encrypted and fans it out to every member's
// room. Once checks pass, persistence and fan-out are not cancelled by ctx.
func (s *GroupService) Send(ctx context.Context, req GroupSendRequest) (*GroupMessageView, error) {
	if req.SenderID <= 0 {
		return nil, common.ErrAuthenticationRequired
	}

	allowed, err := s.limiter.Allow(ctx, req.SenderID)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, common.ErrRateLimited
	}

	if utf8.RuneCountInString(req.Text) > s.maxMessageLength {
		return nil, ErrMessageTooLong
	}
	text := Sanitize(req.Text)
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyMessage
	}

	g, err := s.Get(ctx, req.SenderID, req.GroupID)
	if err != nil {
		return nil, err
	}

	ctx = context.WithoutCancel(ctx)

	token, err := s.cipher.Encrypt([]byte(text))
	if err != nil {
		return nil, err
	}
	saved, err := s.repomanager.ChatGroups(s.db).CreateMessage(ctx, &models.GroupMessage{
		GroupID:  g.ID,
		SenderID: req.SenderID,
		Content:  string(token),
	})
	if err != nil {
		return nil, fmt.Errorf("error saving group message: %w", err)
	}

	live := &GroupMessageView{
		ID:               saved.ID,
		GroupID:          g.ID,
		SenderID:         req.SenderID,
		SenderUsername:   req.SenderUsername,
		DecryptedContent: text,
		Timestamp:        timex.FormatISO(saved.Timestamp),
	}

	rooms := make([]string, 0, len(g.Members))
	for _, id := range g.Members {
		rooms = append(rooms, common.RoomName(id))
	}
	if err := s.notifier.NotifyGroupMessage(ctx, rooms, live); err != nil {
		s.logger.Error(ctx, "group fan-out failed", "group_id", g.ID, "message_id", saved.ID, "error", err)
	}

	return live, nil
}

// Messages returns the messages of group id, oldest first. Bodies that fail
// to decrypt render as common.DecryptionErrorSentinel.
func (s *GroupService) Messages(ctx context.Context, requester, id int64) ([]*GroupMessageView, error) {
	if _, err := s.Get(ctx, requester, id); err != nil {
		return nil, err
	}

	msgs, err := s.repomanager.ChatGroups(s.db).ListMessages(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("error loading group messages: %w", err)
	}

	out := make([]*GroupMessageView, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, &GroupMessageView{
			ID:               m.ID,
			GroupID:          m.GroupID,
			SenderID:         m.SenderID,
			SenderUsername:   m.SenderUsername,
			DecryptedContent: s.render(ctx, m),
			Timestamp:        timex.FormatISO(m.Timestamp),
		})
	}
	return out, nil
}

func (s *GroupService) render(ctx context.Context, m *models.GroupMessage) string {
	plain, err := s.cipher.Decrypt([]byte(m.Content))
	if err != nil {
		s.logger.Warn(ctx, "group message decryption failed", "message_id", m.ID, "group_id", m.GroupID, "error", err)
		return common.DecryptionErrorSentinel
	}
	return string(plain)
}

func groupView(g *models.ChatGroup) *GroupView {
	members := g.MemberIDs
	if members == nil {
		members = []int64{}
	}
	return &GroupView{
		ID:           g.ID,
		Name:         g.Name,
		Members:      members,
		CreatedBy:    g.CreatedBy,
		CreatedAt:    timex.FormatISO(g.CreatedAt),
		MembersCount: len(members),
	}
}
