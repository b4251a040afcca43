package httpapi

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/dmitrijs2005/sealchat/internal/common"
	"github.com/dmitrijs2005/sealchat/internal/server/services"
	"github.com/gin-gonic/gin"
)

// statusFor maps the error taxonomy onto an HTTP status and a client-safe text.
func (h *handlers) statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, services.ErrMessageTooLong):
		return http.StatusBadRequest, fmt.Sprintf("Message too long (maximum %d characters)", h.Messages.MaxMessageLength())
	case errors.Is(err, services.ErrNotFriends):
		return http.StatusForbidden, "You can only message friends"
	case errors.Is(err, services.ErrInvalidReceiver):
		return http.StatusBadRequest, "Invalid receiver"
	case errors.Is(err, services.ErrUnsupportedAttachment):
		return http.StatusBadRequest, "Unsupported file type"
	case errors.Is(err, services.ErrAttachmentTooLarge):
		return http.StatusRequestEntityTooLarge, "Attachment too large"
	case errors.Is(err, services.ErrEmptyMessage):
		return http.StatusBadRequest, "Message must have content or an attachment"
	case errors.Is(err, services.ErrGroupNameRequired):
		return http.StatusBadRequest, "Group name is required"
	case errors.Is(err, services.ErrGroupNameTooLong):
		return http.StatusBadRequest, fmt.Sprintf("Group name too long (maximum %d characters)", services.MaxGroupNameLength)
	case errors.Is(err, services.ErrInvalidMember):
		return http.StatusBadRequest, "Invalid group member"
	case errors.Is(err, services.ErrSelfFriendship):
		return http.StatusBadRequest, "You cannot befriend yourself"
	case errors.Is(err, services.ErrInvalidCredentials):
		return http.StatusBadRequest, "Username and password are required"
	case errors.Is(err, common.ErrValidationFailed):
		return http.StatusBadRequest, "Invalid request"
	case errors.Is(err, common.ErrRateLimited):
		return http.StatusTooManyRequests, "Rate limit exceeded. Please try again shortly."
	case errors.Is(err, common.ErrAuthenticationRequired),
		errors.Is(err, common.ErrorUnauthorized):
		return http.StatusUnauthorized, "Authentication required"
	case errors.Is(err, common.ErrRefreshTokenExpired):
		return http.StatusUnauthorized, "Refresh token expired"
	case errors.Is(err, common.ErrAuthorizationDenied):
		return http.StatusForbidden, "Forbidden"
	case errors.Is(err, common.ErrorNotFound):
		return http.StatusNotFound, "Not found"
	case errors.Is(err, common.ErrorAlreadyExists):
		return http.StatusConflict, "Already exists"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

func (h *handlers) fail(c *gin.Context, err error) {
	status, text := h.statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(c.Request.Context(), "request failed", "path", c.FullPath(), "error", err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": text})
}

func badRequest(c *gin.Context, text string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": text})
}
