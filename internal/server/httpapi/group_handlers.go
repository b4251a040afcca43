package httpapi

import (
	"net/http"

	"github.com/dmitrijs2005/sealchat/internal/server/services"
	"github.com/gin-gonic/gin"
)

type createGroupRequest struct {
	Name    string  `json:"name"`
	Members []int64 `json:"members"`
}

type groupMessageRequest struct {
	Content string `json:"content"`
}

func (h *handlers) listGroups(c *gin.Context) {
	groups, err := h.Groups.List(c.Request.Context(), identity(c).UserID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, groups)
}

// createGroup makes the caller the creator and a member of the new group.
func (h *handlers) createGroup(c *gin.Context) {
	var req createGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request data")
		return
	}
	g, err := h.Groups.Create(c.Request.Context(), identity(c).UserID, req.Name, req.Members)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, g)
}

func (h *handlers) group(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	g, err := h.Groups.Get(c.Request.Context(), identity(c).UserID, id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, g)
}

func (h *handlers) groupMessages(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	msgs, err := h.Groups.Messages(c.Request.Context(), identity(c).UserID, id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, msgs)
}

func (h *handlers) sendGroupMessage(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req groupMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request data")
		return
	}
	me := identity(c)
	msg, err := h.Groups.Send(c.Request.Context(), services.GroupSendRequest{
		SenderID:       me.UserID,
		SenderUsername: me.Username,
		GroupID:        id,
		Text:           req.Content,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}
