package httpapi

import (
	"net/http"
	"time"

	"github.com/dmitrijs2005/sealchat/internal/server/auth"
	"github.com/gin-gonic/gin"
)

// resolveIdentity attaches the cookie identity to the request context.
// Unresolvable tokens yield the anonymous identity, never an error.
func (h *handlers) resolveIdentity(c *gin.Context) {
	id := h.Resolver.Resolve(c.Request.Context(), c.Request)
	c.Request = c.Request.WithContext(auth.WithIdentity(c.Request.Context(), id))
	c.Next()
}

func requireIdentity(c *gin.Context) {
	if !identity(c).Authenticated() {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}
	c.Next()
}

func identity(c *gin.Context) auth.Identity {
	return auth.FromContext(c.Request.Context())
}

func (h *handlers) logRequests(c *gin.Context) {
	start := time.Now()
	c.Next()

	h.logger.Info(c.Request.Context(), "request",
		"method", c.Request.Method,
		"path", c.FullPath(),
		"status", c.Writer.Status(),
		"duration", time.Since(start),
		"user_id", identity(c).UserID,
	)
}
