package models

import "time"

const (
	FriendshipPending  = "pending"
	FriendshipAccepted = "accepted"
	FriendshipRejected = "rejected"
)

// Friendship is a directed friend request. Once accepted it relates both
// users symmetrically. The usernames are filled by listing queries only.
type Friendship struct {
	ID               int64
	SenderID         int64
	SenderUsername   string
	ReceiverID       int64
	ReceiverUsername string
	Status           string
	CreatedAt        time.Time
}
