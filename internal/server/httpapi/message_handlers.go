package httpapi

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/sealchat/internal/common"
	"github.com/dmitrijs2005/sealchat/internal/server/services"
	"github.com/gin-gonic/gin"
)

// sendMessage accepts multipart/form-data with receiver_id, an optional
// content field and an optional attachment file.
func (h *handlers) sendMessage(c *gin.Context) {
	me := identity(c)

	limit := h.cfg.MaxAttachmentSize + 1<<20
	if c.Request.ContentLength > limit {
		h.fail(c, services.ErrAttachmentTooLarge)
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
	if err := c.Request.ParseMultipartForm(limit); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			h.fail(c, services.ErrAttachmentTooLarge)
			return
		}
		badRequest(c, "Invalid request data")
		return
	}

	receiverID, err := strconv.ParseInt(c.PostForm("receiver_id"), 10, 64)
	if err != nil || receiverID <= 0 {
		badRequest(c, "Invalid receiver")
		return
	}

	content := services.NoText()
	if text, ok := c.GetPostForm("content"); ok {
		content = services.Text(text)
	}

	upload, err := h.readUpload(c)
	if err != nil {
		h.fail(c, err)
		return
	}

	msg, err := h.Messages.Send(c.Request.Context(), services.SendRequest{
		SenderID:       me.UserID,
		SenderUsername: me.Username,
		ReceiverID:     receiverID,
		Content:        content,
		Attachment:     upload,
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, msg)
}

// readUpload returns nil when the form carries no attachment. At most one
// byte more than the size limit is read, enough for the pipeline to reject it.
func (h *handlers) readUpload(c *gin.Context) (*services.Upload, error) {
	fh, err := c.FormFile("attachment")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", common.ErrValidationFailed, err)
	}

	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("error opening upload: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, h.cfg.MaxAttachmentSize+1))
	if err != nil {
		return nil, fmt.Errorf("error reading upload: %w", err)
	}

	return &services.Upload{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

func (h *handlers) conversation(c *gin.Context) {
	other, ok := pathID(c, "userID")
	if !ok {
		return
	}
	msgs, err := h.Messages.Conversation(c.Request.Context(), identity(c).UserID, other)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, msgs)
}

func (h *handlers) inbox(c *gin.Context) {
	msgs, err := h.Messages.Inbox(c.Request.Context(), identity(c).UserID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, msgs)
}

func (h *handlers) message(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	msg, err := h.Messages.Get(c.Request.Context(), identity(c).UserID, id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

// attachment serves the decrypted file inline. Every failure, including
// storage and decryption errors, looks like a missing file to the client.
func (h *handlers) attachment(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	att, err := h.Messages.Attachment(c.Request.Context(), identity(c).UserID, id)
	if err != nil {
		if !errors.Is(err, common.ErrorNotFound) && !errors.Is(err, common.ErrAttachmentUnavailable) {
			h.logger.Error(c.Request.Context(), "attachment lookup failed", "message_id", id, "error", err)
		}
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "Not found"})
		return
	}

	contentType := att.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Content-Disposition", fmt.Sprintf(`inline; filename="%s"`, headerSafe(att.Filename)))
	c.Header("X-Content-Type-Options", "nosniff")
	c.Data(http.StatusOK, contentType, att.Data)
}

var headerReplacer = strings.NewReplacer(`"`, "", `\`, "", "\r", "", "\n", "")

func headerSafe(s string) string {
	return headerReplacer.Replace(s)
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "Not found"})
		return 0, false
	}
	return id, true
}
