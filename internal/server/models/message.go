package models

import "time"

// Message is a persisted direct message.
//
// Content holds the stored ciphertext: a Fernet token when IsEncrypted is
// false, base64 RSA-OAEP over a Fernet token when it is true. Empty
// Content means the message carries an attachment only.
type Message struct {
	ID                    int64
	SenderID              int64
	ReceiverID            int64
	SenderUsername        string
	ReceiverUsername      string
	Content               string
	IsEncrypted           bool
	AttachmentKey         string
	OriginalFilename      string
	AttachmentContentType string
	Timestamp             time.Time
}

// HasAttachment reports whether an encrypted blob is stored for the message.
func (m *Message) HasAttachment() bool { return m.AttachmentKey != "" }

// Involves reports whether userID is the sender or the receiver.
func (m *Message) Involves(userID int64) bool {
	return m.SenderID == userID || m.ReceiverID == userID
}
