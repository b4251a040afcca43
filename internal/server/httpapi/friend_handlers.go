package httpapi

import (
	"context"
	"net/http"

	"github.com/dmitrijs2005/sealchat/internal/server/models"
	"github.com/dmitrijs2005/sealchat/internal/timex"
	"github.com/gin-gonic/gin"
)

type friendshipJSON struct {
	ID               int64  `json:"id"`
	SenderID         int64  `json:"sender"`
	SenderUsername   string `json:"sender_username"`
	ReceiverID       int64  `json:"receiver"`
	ReceiverUsername string `json:"receiver_username"`
	Status           string `json:"status"`
	CreatedAt        string `json:"created_at"`
}

func friendshipView(f *models.Friendship) friendshipJSON {
	var created string
	if !f.CreatedAt.IsZero() {
		created = timex.FormatISO(f.CreatedAt)
	}
	return friendshipJSON{
		ID:               f.ID,
		SenderID:         f.SenderID,
		SenderUsername:   f.SenderUsername,
		ReceiverID:       f.ReceiverID,
		ReceiverUsername: f.ReceiverUsername,
		Status:           f.Status,
		CreatedAt:        created,
	}
}

// listFriends returns every request the caller sent or received, in any status.
func (h *handlers) listFriends(c *gin.Context) {
	list, err := h.Friends.List(c.Request.Context(), identity(c).UserID)
	if err != nil {
		h.fail(c, err)
		return
	}
	out := make([]friendshipJSON, 0, len(list))
	for _, f := range list {
		out = append(out, friendshipView(f))
	}
	c.JSON(http.StatusOK, out)
}

func (h *handlers) requestFriend(c *gin.Context) {
	other, ok := pathID(c, "userID")
	if !ok {
		return
	}
	f, err := h.Friends.Request(c.Request.Context(), identity(c).UserID, other)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": f.ID, "sender": f.SenderID, "receiver": f.ReceiverID, "status": f.Status})
}

func (h *handlers) acceptFriend(c *gin.Context) {
	h.answerFriend(c, h.Friends.Accept)
}

func (h *handlers) rejectFriend(c *gin.Context) {
	h.answerFriend(c, h.Friends.Reject)
}

func (h *handlers) answerFriend(c *gin.Context, answer func(ctx context.Context, receiverID, requesterID int64) error) {
	requester, ok := pathID(c, "userID")
	if !ok {
		return
	}
	if err := answer(c.Request.Context(), identity(c).UserID, requester); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
