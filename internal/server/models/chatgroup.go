package models

import (
	"slices"
	"time"
)

// ChatGroup is a named conversation among its members. The creator is
// always a member.
type ChatGroup struct {
	ID        int64
	Name      string
	CreatedBy int64
	CreatedAt time.Time
	MemberIDs []int64
}

// HasMember reports whether userID belongs to the group.
func (g *ChatGroup) HasMember(userID int64) bool {
	return slices.Contains(g.MemberIDs, userID)
}

// GroupMessage is a persisted group message. Content is a Fernet token.
type GroupMessage struct {
	ID             int64
	GroupID        int64
	SenderID       int64
	SenderUsername string
	Content        string
	Timestamp      time.Time
}
