// Package httpapi exposes the REST endpoints and mounts the realtime
// gateway on a gin engine.
package httpapi

import (
	"context"
	"net/http"
	"time"

	ratelimit "github.com/JGLTechnologies/gin-rate-limit"
	"github.com/dmitrijs2005/sealchat/internal/logging"
	"github.com/dmitrijs2005/sealchat/internal/server/auth"
	"github.com/dmitrijs2005/sealchat/internal/server/config"
	"github.com/dmitrijs2005/sealchat/internal/server/models"
	"github.com/dmitrijs2005/sealchat/internal/server/services"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

type UserService interface {
	Register(ctx context.Context, username, email, password string) (*models.User, error)
	Login(ctx context.Context, username, password string) (*services.TokenPair, error)
	RefreshToken(ctx context.Context, refreshToken string) (*services.TokenPair, error)
	Logout(ctx context.Context, refreshToken string) error
}

type MessageService interface {
	Send(ctx context.Context, req services.SendRequest) (*services.ChatMessage, error)
	Conversation(ctx context.Context, requester, other int64) ([]*services.MessageView, error)
	Inbox(ctx context.Context, requester int64) ([]*services.MessageView, error)
	Get(ctx context.Context, requester, id int64) (*services.MessageView, error)
	Attachment(ctx context.Context, requester, id int64) (*services.Attachment, error)
	MaxMessageLength() int
}

type FriendService interface {
	Request(ctx context.Context, senderID, receiverID int64) (*models.Friendship, error)
	Accept(ctx context.Context, receiverID, requesterID int64) error
	Reject(ctx context.Context, receiverID, requesterID int64) error
	List(ctx context.Context, userID int64) ([]*models.Friendship, error)
}

type GroupService interface {
	Create(ctx context.Context, creatorID int64, name string, memberIDs []int64) (*services.GroupView, error)
	List(ctx context.Context, requester int64) ([]*services.GroupView, error)
	Get(ctx context.Context, requester, id int64) (*services.GroupView, error)
	Send(ctx context.Context, req services.GroupSendRequest) (*services.GroupMessageView, error)
	Messages(ctx context.Context, requester, id int64) ([]*services.GroupMessageView, error)
}

type IdentityResolver interface {
	Resolve(ctx context.Context, r *http.Request) auth.Identity
}

// Pinger reports database health; *sql.DB satisfies it.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Deps groups everything the router serves.
type Deps struct {
	Users    UserService
	Messages MessageService
	Friends  FriendService
	Groups   GroupService
	Resolver IdentityResolver
	Gateway  http.Handler
	DB       Pinger
}

type handlers struct {
	Deps
	cfg    *config.Config
	logger logging.Logger
}

// NewRouter builds the gin engine with all routes.
func NewRouter(deps Deps, cfg *config.Config, logger logging.Logger) *gin.Engine {
	h := &handlers{Deps: deps, cfg: cfg, logger: logger.With("module", "http")}

	r := gin.New()
	r.MaxMultipartMemory = cfg.MaxAttachmentSize + 1<<20
	r.Use(gin.Recovery(), h.logRequests, h.resolveIdentity)
	if len(cfg.AllowedOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.AllowedOrigins,
			AllowMethods:     []string{http.MethodGet, http.MethodPost},
			AllowHeaders:     []string{"Content-Type"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	r.GET("/healthz", h.health)
	r.GET("/ws/messages/", gin.WrapH(deps.Gateway))

	api := r.Group("/api")

	authLimit := ratelimit.RateLimiter(
		ratelimit.InMemoryStore(&ratelimit.InMemoryOptions{
			Rate:  cfg.AuthRateLimitWindow,
			Limit: uint(cfg.AuthRateLimit),
		}),
		&ratelimit.Options{
			ErrorHandler: rateLimitErrorHandler,
			KeyFunc:      clientIPKey,
		},
	)
	api.POST("/register", authLimit, h.register)
	api.POST("/login", authLimit, h.login)
	api.POST("/token/refresh", authLimit, h.refresh)
	api.POST("/logout", h.logout)

	authed := api.Group("", requireIdentity)
	authed.POST("/messages", h.sendMessage)
	authed.GET("/messages", h.inbox)
	authed.GET("/messages/:id", h.message)
	authed.GET("/messages/:id/attachment", h.attachment)
	authed.GET("/conversations/:userID", h.conversation)
	authed.GET("/friends", h.listFriends)
	authed.POST("/friends/:userID", h.requestFriend)
	authed.POST("/friends/:userID/accept", h.acceptFriend)
	authed.POST("/friends/:userID/reject", h.rejectFriend)
	authed.GET("/groups", h.listGroups)
	authed.POST("/groups", h.createGroup)
	authed.GET("/groups/:id", h.group)
	authed.GET("/groups/:id/messages", h.groupMessages)
	authed.POST("/groups/:id/messages", h.sendGroupMessage)

	return r
}

func clientIPKey(c *gin.Context) string {
	return c.ClientIP()
}

func rateLimitErrorHandler(c *gin.Context, info ratelimit.Info) {
	c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests. Try again in " + time.Until(info.ResetTime).Round(time.Second).String()})
}

func (h *handlers) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := h.DB.PingContext(ctx); err != nil {
		h.logger.Error(ctx, "health check failed", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
