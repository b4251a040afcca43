package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/sealchat/internal/common"
	"github.com/dmitrijs2005/sealchat/internal/cryptox"
	"github.com/dmitrijs2005/sealchat/internal/logging"
	"github.com/dmitrijs2005/sealchat/internal/server/blobstore"
	"github.com/dmitrijs2005/sealchat/internal/server/models"
	"github.com/google/uuid"
)

// attachmentPrefix is the blob key namespace for message attachments.
const attachmentPrefix = "message_attachments/"

// Content is the optional text body of a new message. NoText and Text("")
// are both stored as an empty string, but only Text marks the sender as
// having typed something.
type Content struct {
	text    string
	present bool
}

// NoText is the body of an attachment-only message.
func NoText() Content {
	return Content{}
}

// Text wraps a typed message body.
func Text(s string) Content {
	return Content{text: s, present: true}
}

// Value returns the text and whether any was given.
func (c Content) Value() (string, bool) {
	return c.text, c.present
}

// EncryptedContent is what gets persisted for a message body. Enveloped
// tells whether Ciphertext is RSA-wrapped (receiver key) or a bare Fernet
// token (legacy scheme).
type EncryptedContent struct {
	Ciphertext string
	Enveloped  bool
}

// Upload is an attachment as received from a client.
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// SealedAttachment describes an encrypted blob that has been stored.
type SealedAttachment struct {
	Key              string
	OriginalFilename string
	ContentType      string
}

// Attachment is a decrypted attachment ready to be served.
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// keySource is the part of the key vault the codec needs.
type keySource interface {
	PublicKey(ctx context.Context, userID int64) (string, bool, error)
	PrivateKey(ctx context.Context, userID int64) (string, error)
}

// MessageCodec implements the two content schemes: enveloped (Fernet then
// RSA-OAEP with the receiver's public key) and legacy (Fernet only). The
// scheme is recorded per row and never inferred from the ciphertext.
type MessageCodec struct {
	cipher *cryptox.SymmetricCipher
	keys   keySource
	blobs  blobstore.Store
	logger logging.Logger
}

func NewMessageCodec(cipher *cryptox.SymmetricCipher, keys keySource, blobs blobstore.Store, logger logging.Logger) *MessageCodec {
	return &MessageCodec{cipher: cipher, keys: keys, blobs: blobs, logger: logger.With("module", "codec")}
}

// EncryptContent encrypts c for receiverID. A receiver without a public
// key gets the legacy scheme. So does a token longer than the key's OAEP
// payload bound, and a failed key lookup or envelope, each logged with
// its reason.
func (c *MessageCodec) EncryptContent(ctx context.Context, receiverID int64, content Content) (EncryptedContent, error) {
	text, ok := content.Value()
	if !ok || text == "" {
		return EncryptedContent{}, nil
	}

	token, err := c.cipher.Encrypt([]byte(text))
	if err != nil {
		return EncryptedContent{}, err
	}
	legacy := EncryptedContent{Ciphertext: string(token)}

	pub, found, err := c.keys.PublicKey(ctx, receiverID)
	switch {
	case err != nil:
		c.logger.Warn(ctx, "public key lookup failed, storing legacy ciphertext", "receiver_id", receiverID, "error", err)
		return legacy, nil
	case !found:
		c.logger.Debug(ctx, "receiver has no public key, storing legacy ciphertext", "receiver_id", receiverID)
		return legacy, nil
	}

	limit, err := cryptox.MaxEnvelopePayload(pub)
	if err != nil {
		c.logger.Warn(ctx, "receiver public key unusable, storing legacy ciphertext", "receiver_id", receiverID, "error", err)
		return legacy, nil
	}
	if len(token) > limit {
		c.logger.Debug(ctx, "token exceeds envelope payload, storing legacy ciphertext", "receiver_id", receiverID, "token_len", len(token), "limit", limit)
		return legacy, nil
	}

	wrapped, err := cryptox.EncryptWithPublicKey(token, pub)
	if err != nil {
		c.logger.Warn(ctx, "envelope encryption failed, storing legacy ciphertext", "receiver_id", receiverID, "token_len", len(token), "error", err)
		return legacy, nil
	}
	return EncryptedContent{Ciphertext: wrapped, Enveloped: true}, nil
}

// DecryptContent recovers the plaintext of a stored message. Every failure
// wraps common.ErrDecryption. Attachment-only messages decrypt to "".
func (c *MessageCodec) DecryptContent(ctx context.Context, m *models.Message) (string, error) {
	if m.Content == "" {
		if m.HasAttachment() {
			return "", nil
		}
		return "", fmt.Errorf("%w: empty content", common.ErrDecryption)
	}

	token := []byte(m.Content)
	if m.IsEncrypted {
		priv, err := c.keys.PrivateKey(ctx, m.ReceiverID)
		if err != nil {
			return "", fmt.Errorf("%w: receiver key: %v", common.ErrDecryption, err)
		}
		token, err = cryptox.DecryptWithPrivateKey(m.Content, priv)
		if err != nil {
			return "", err
		}
	}

	plain, err := c.cipher.Decrypt(token)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

// RenderContent is the read path shown to users: decryption failures become
// common.DecryptionErrorSentinel, or "" when the message has an attachment.
func (c *MessageCodec) RenderContent(ctx context.Context, m *models.Message) string {
	text, err := c.DecryptContent(ctx, m)
	if err == nil {
		return text
	}
	c.logger.Warn(ctx, "message decryption failed", "message_id", m.ID, "error", err)
	if m.HasAttachment() {
		return ""
	}
	return common.DecryptionErrorSentinel
}

// SealAttachment encrypts the upload and stores it under a random key that
// keeps only the lower-cased original extension.
func (c *MessageCodec) SealAttachment(ctx context.Context, up Upload) (*SealedAttachment, error) {
	token, err := c.cipher.Encrypt(up.Data)
	if err != nil {
		return nil, err
	}

	key := attachmentPrefix + strings.ReplaceAll(uuid.NewString(), "-", "") + strings.ToLower(filepath.Ext(up.Filename))
	if err := c.blobs.Put(ctx, key, token, "application/octet-stream"); err != nil {
		return nil, fmt.Errorf("error storing attachment: %w", err)
	}

	return &SealedAttachment{
		Key:              key,
		OriginalFilename: filepath.Base(up.Filename),
		ContentType:      up.ContentType,
	}, nil
}

// OpenAttachment fetches and decrypts the attachment of m. Every failure
// wraps common.ErrAttachmentUnavailable.
func (c *MessageCodec) OpenAttachment(ctx context.Context, m *models.Message) (*Attachment, error) {
	if !m.HasAttachment() {
		return nil, fmt.Errorf("%w: message has no attachment", common.ErrAttachmentUnavailable)
	}

	blob, err := c.blobs.Get(ctx, m.AttachmentKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrAttachmentUnavailable, err)
	}

	data, err := c.cipher.Decrypt(blob)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrAttachmentUnavailable, err)
	}

	name := m.OriginalFilename
	if name == "" {
		name = filepath.Base(m.AttachmentKey)
	}
	return &Attachment{Filename: name, ContentType: m.AttachmentContentType, Data: data}, nil
}

// DiscardAttachment removes a stored blob whose message row was never written.
func (c *MessageCodec) DiscardAttachment(ctx context.Context, key string) {
	if err := c.blobs.Delete(ctx, key); err != nil && !errors.Is(err, common.ErrorNotFound) {
		c.logger.Warn(ctx, "orphan attachment not removed", "key", key, "error", err)
	}
}
