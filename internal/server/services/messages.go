package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/dmitrijs2005/sealchat/internal/common"
	"github.com/dmitrijs2005/sealchat/internal/logging"
	"github.com/dmitrijs2005/sealchat/internal/server/config"
	"github.com/dmitrijs2005/sealchat/internal/server/models"
	"github.com/dmitrijs2005/sealchat/internal/server/ratelimit"
	"github.com/dmitrijs2005/sealchat/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/sealchat/internal/timex"
)

// AllowedAttachmentExtensions lists the accepted upload types.
var AllowedAttachmentExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".mp4", ".webm", ".ogg"}

var (
	ErrMessageTooLong        = fmt.Errorf("%w: message too long", common.ErrValidationFailed)
	ErrInvalidReceiver       = fmt.Errorf("%w: invalid receiver", common.ErrValidationFailed)
	ErrEmptyMessage          = fmt.Errorf("%w: message has neither text nor attachment", common.ErrValidationFailed)
	ErrUnsupportedAttachment = fmt.Errorf("%w: unsupported file extension", common.ErrValidationFailed)
	ErrAttachmentTooLarge    = fmt.Errorf("%w: attachment too large", common.ErrValidationFailed)
	ErrNotFriends            = fmt.Errorf("%w: you can only message friends", common.ErrAuthorizationDenied)
)

// ChatMessage is the live payload delivered to both participants' rooms.
type ChatMessage struct {
	ID                    int64  `json:"id"`
	SenderID              int64  `json:"sender_id"`
	SenderUsername        string `json:"sender_username"`
	ReceiverID            int64  `json:"receiver_id"`
	Content               string `json:"content"`
	Timestamp             string `json:"timestamp"`
	HasAttachment         bool   `json:"has_attachment,omitempty"`
	AttachmentURL         string `json:"attachment_url,omitempty"`
	AttachmentContentType string `json:"attachment_content_type,omitempty"`
}

// MessageView is a stored message rendered for its participants.
type MessageView struct {
	ID                    int64   `json:"id"`
	SenderID              int64   `json:"sender"`
	SenderUsername        string  `json:"sender_username"`
	ReceiverID            int64   `json:"receiver"`
	ReceiverUsername      string  `json:"receiver_username"`
	DecryptedContent      string  `json:"decrypted_content"`
	HasAttachment         bool    `json:"has_attachment"`
	AttachmentURL         *string `json:"attachment_url"`
	AttachmentContentType *string `json:"attachment_content_type"`
	Timestamp             string  `json:"timestamp"`
}

// Notifier delivers a chat message to live connections in rooms.
type Notifier interface {
	NotifyChatMessage(ctx context.Context, rooms []string, msg *ChatMessage) error
}

// SendRequest is one outgoing direct message.
type SendRequest struct {
	SenderID       int64
	SenderUsername string
	ReceiverID     int64
	Content        Content
	Attachment     *Upload
}

// MessageService runs the send pipeline shared by the realtime gateway and
// the HTTP API, and renders stored messages.
type MessageService struct {
	db                *sql.DB
	repomanager       repomanager.RepositoryManager
	codec             *MessageCodec
	limiter           ratelimit.Limiter
	notifier          Notifier
	logger            logging.Logger
	maxMessageLength  int
	maxAttachmentSize int64
}

func NewMessageService(db *sql.DB, m repomanager.RepositoryManager, codec *MessageCodec, limiter ratelimit.Limiter,
	notifier Notifier, cfg *config.Config, logger logging.Logger) *MessageService {
	return &MessageService{
		db:                db,
		repomanager:       m,
		codec:             codec,
		limiter:           limiter,
		notifier:          notifier,
		logger:            logger.With("module", "messages"),
		maxMessageLength:  cfg.MaxMessageLength,
		maxAttachmentSize: cfg.MaxAttachmentSize,
	}
}

// MaxMessageLength is the configured limit in characters.
func (s *MessageService) MaxMessageLength() int { return s.maxMessageLength }

// Send checks, in order: rate limit, length, attachment, friendship. It
// then stores the sanitized text encrypted and fans the sanitized text out
// to the sender's and the receiver's rooms. Once checks pass, persistence
// and fan-out are not cancelled by ctx.
func (s *MessageService) Send(ctx context.Context, req SendRequest) (*ChatMessage, error) {
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

	text, hasText := req.Content.Value()
	if utf8.RuneCountInString(text) > s.maxMessageLength {
		return nil, ErrMessageTooLong
	}
	if req.ReceiverID <= 0 {
		return nil, ErrInvalidReceiver
	}
	if !hasText && req.Attachment == nil {
		return nil, ErrEmptyMessage
	}
	if req.Attachment != nil {
		if err := s.validateAttachment(req.Attachment); err != nil {
			return nil, err
		}
	}

	friends, err := s.repomanager.Friendships(s.db).AreFriends(ctx, req.SenderID, req.ReceiverID)
	if err != nil {
		return nil, fmt.Errorf("error checking friendship: %w", err)
	}
	if !friends {
		return nil, ErrNotFriends
	}

	content := req.Content
	if hasText {
		content = Text(Sanitize(text))
	}

	ctx = context.WithoutCancel(ctx)

	msg, err := s.persist(ctx, req, content)
	if err != nil {
		return nil, err
	}

	live := &ChatMessage{
		ID:             msg.ID,
		SenderID:       req.SenderID,
		SenderUsername: req.SenderUsername,
		ReceiverID:     req.ReceiverID,
		Content:        msg.sanitized,
		Timestamp:      timex.FormatISO(msg.Timestamp),
	}
	if msg.HasAttachment() {
		live.HasAttachment = true
		live.AttachmentURL = AttachmentURL(msg.ID)
		live.AttachmentContentType = msg.AttachmentContentType
	}

	rooms := []string{common.RoomName(req.SenderID), common.RoomName(req.ReceiverID)}
	if err := s.notifier.NotifyChatMessage(ctx, rooms, live); err != nil {
		// the message is stored; recipients will see it on next load
		s.logger.Error(ctx, "fan-out failed", "message_id", msg.ID, "error", err)
	}

	return live, nil
}

type persisted struct {
	*models.Message
	sanitized string
}

func (s *MessageService) persist(ctx context.Context, req SendRequest, content Content) (*persisted, error) {
	enc, err := s.codec.EncryptContent(ctx, req.ReceiverID, content)
	if err != nil {
		return nil, err
	}

	m := &models.Message{
		SenderID:    req.SenderID,
		ReceiverID:  req.ReceiverID,
		Content:     enc.Ciphertext,
		IsEncrypted: enc.Enveloped,
	}

	if req.Attachment != nil {
		sealed, err := s.codec.SealAttachment(ctx, *req.Attachment)
		if err != nil {
			return nil, err
		}
		m.AttachmentKey = sealed.Key
		m.OriginalFilename = sealed.OriginalFilename
		m.AttachmentContentType = sealed.ContentType
	}

	saved, err := s.repomanager.Messages(s.db).Create(ctx, m)
	if err != nil {
		if m.AttachmentKey != "" {
			s.codec.DiscardAttachment(ctx, m.AttachmentKey)
		}
		return nil, fmt.Errorf("error saving message: %w", err)
	}

	text, _ := content.Value()
	return &persisted{Message: saved, sanitized: text}, nil
}

func (s *MessageService) validateAttachment(up *Upload) error {
	ext := strings.ToLower(filepath.Ext(up.Filename))
	if !slices.Contains(AllowedAttachmentExtensions, ext) {
		return ErrUnsupportedAttachment
	}
	if int64(len(up.Data)) > s.maxAttachmentSize {
		return ErrAttachmentTooLarge
	}
	return nil
}

// Conversation returns the messages between requester and other, oldest first.
func (s *MessageService) Conversation(ctx context.Context, requester, other int64) ([]*MessageView, error) {
	msgs, err := s.repomanager.Messages(s.db).ListConversation(ctx, requester, other)
	if err != nil {
		return nil, fmt.Errorf("error loading conversation: %w", err)
	}
	return s.render(ctx, msgs), nil
}

// Inbox returns every message requester sent or received, newest first.
func (s *MessageService) Inbox(ctx context.Context, requester int64) ([]*MessageView, error) {
	msgs, err := s.repomanager.Messages(s.db).ListForUser(ctx, requester)
	if err != nil {
		return nil, fmt.Errorf("error loading messages: %w", err)
	}
	return s.render(ctx, msgs), nil
}

// Get returns one message, or common.ErrorNotFound when requester is not a participant.
func (s *MessageService) Get(ctx context.Context, requester, id int64) (*MessageView, error) {
	m, err := s.load(ctx, requester, id)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, m), nil
}

// Attachment returns the decrypted attachment of message id. Non-participants
// and messages without attachments get common.ErrorNotFound; storage or
// decryption failures wrap common.ErrAttachmentUnavailable.
func (s *MessageService) Attachment(ctx context.Context, requester, id int64) (*Attachment, error) {
	m, err := s.load(ctx, requester, id)
	if err != nil {
		return nil, err
	}
	if !m.HasAttachment() {
		return nil, common.ErrorNotFound
	}

	att, err := s.codec.OpenAttachment(ctx, m)
	if err != nil {
		s.logger.Error(ctx, "attachment unavailable", "message_id", id, "error", err)
		return nil, err
	}
	return att, nil
}

func (s *MessageService) load(ctx context.Context, requester, id int64) (*models.Message, error) {
	m, err := s.repomanager.Messages(s.db).GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("error loading message: %w", err)
	}
	if !m.Involves(requester) {
		return nil, common.ErrorNotFound
	}
	return m, nil
}

func (s *MessageService) render(ctx context.Context, msgs []*models.Message) []*MessageView {
	out := make([]*MessageView, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, s.view(ctx, m))
	}
	return out
}

func (s *MessageService) view(ctx context.Context, m *models.Message) *MessageView {
	v := &MessageView{
		ID:               m.ID,
		SenderID:         m.SenderID,
		SenderUsername:   m.SenderUsername,
		ReceiverID:       m.ReceiverID,
		ReceiverUsername: m.ReceiverUsername,
		DecryptedContent: s.codec.RenderContent(ctx, m),
		HasAttachment:    m.HasAttachment(),
		Timestamp:        timex.FormatISO(m.Timestamp),
	}
	if m.HasAttachment() {
		url := AttachmentURL(m.ID)
		ct := m.AttachmentContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		v.AttachmentURL = &url
		v.AttachmentContentType = &ct
	}
	return v
}

// AttachmentURL is the path serving the decrypted attachment of message id.
func AttachmentURL(id int64) string {
	return fmt.Sprintf("/api/messages/%d/attachment", id)
}
