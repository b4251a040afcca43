package realtime

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dmitrijs2005/sealchat/internal/common"
	"github.com/dmitrijs2005/sealchat/internal/logging"
	"github.com/dmitrijs2005/sealchat/internal/server/auth"
	"github.com/dmitrijs2005/sealchat/internal/server/services"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Sender is the message pipeline the gateway feeds chat frames into.
type Sender interface {
	Send(ctx context.Context, req services.SendRequest) (*services.ChatMessage, error)
	MaxMessageLength() int
}

type GatewayOptions struct {
	// AllowAnonymous keeps unauthenticated connections open without a room.
	AllowAnonymous bool
	// AllowedOrigins lists accepted Origin values; empty means same host only.
	AllowedOrigins []string
}

// Gateway upgrades HTTP requests to chat connections. The caller's
// identity must already be on the request context (see auth.WithIdentity).
type Gateway struct {
	hub      *Hub
	sender   Sender
	opts     GatewayOptions
	upgrader websocket.Upgrader
	logger   logging.Logger
}

func NewGateway(hub *Hub, sender Sender, opts GatewayOptions, logger logging.Logger) *Gateway {
	g := &Gateway{
		hub:    hub,
		sender: sender,
		opts:   opts,
		logger: logger.With("module", "gateway"),
	}
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     g.checkOrigin,
	}
	return g
}

func (g *Gateway) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	if len(g.opts.AllowedOrigins) == 0 {
		return strings.EqualFold(u.Host, r.Host)
	}
	for _, allowed := range g.opts.AllowedOrigins {
		if strings.EqualFold(strings.TrimRight(strings.TrimSpace(allowed), "/"), origin) {
			return true
		}
	}
	return false
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	identity := auth.FromContext(r.Context())

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn(r.Context(), "websocket upgrade failed", "error", err)
		return
	}

	if !identity.Authenticated() && !g.opts.AllowAnonymous {
		msg := websocket.FormatCloseMessage(closeAuthCode, closeAuthLabel)
		conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		conn.Close()
		g.logger.Info(r.Context(), "rejected anonymous connection")
		return
	}

	var room string
	if identity.Authenticated() {
		room = common.RoomName(identity.UserID)
	}
	c := newClient(uuid.NewString(), conn, identity, room)

	// the connection outlives the upgrade request
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	if room != "" {
		g.hub.Join(room, c)
	}
	g.logger.Info(ctx, "connected", "conn_id", c.id, "user_id", identity.UserID)

	go c.writePump()
	c.readPump(func(data []byte) { g.handleFrame(ctx, c, data) })

	if room != "" {
		g.hub.Leave(room, c)
	}
	c.close()
	g.logger.Info(ctx, "disconnected", "conn_id", c.id, "user_id", identity.UserID)
}

// handleFrame never lets a failure escape: every outcome is either silence
// or a frame on the same connection.
func (g *Gateway) handleFrame(ctx context.Context, c *Client, data []byte) {
	defer func() {
		if p := recover(); p != nil {
			g.logger.Error(ctx, "frame handler panic", "conn_id", c.id, "panic", fmt.Sprint(p))
			g.reply(c, errorFrame(errorText(nil, 0)))
		}
	}()

	f, err := parseFrame(data)
	if err != nil {
		g.logger.Debug(ctx, "malformed frame", "conn_id", c.id, "error", err)
		g.reply(c, errorFrame(errorText(err, 0)))
		return
	}

	switch f.Type {
	case FrameAuthenticate:
		// identity is fixed when the connection is accepted
	case FramePing:
		g.reply(c, pongFrame())
	case FrameChatMessage:
		g.handleChat(ctx, c, f)
	default:
		g.logger.Debug(ctx, "unknown frame type ignored", "conn_id", c.id, "type", f.Type)
	}
}

func (g *Gateway) handleChat(ctx context.Context, c *Client, f inboundFrame) {
	if !c.identity.Authenticated() {
		g.reply(c, errorFrame(errorText(common.ErrAuthenticationRequired, 0)))
		return
	}

	_, err := g.sender.Send(ctx, services.SendRequest{
		SenderID:       c.identity.UserID,
		SenderUsername: c.identity.Username,
		ReceiverID:     int64(f.ReceiverID),
		Content:        services.Text(f.Message),
	})
	if err == nil {
		return
	}

	if expected(err) {
		g.logger.Warn(ctx, "chat message rejected", "conn_id", c.id, "user_id", c.identity.UserID, "error", err)
	} else {
		g.logger.Error(ctx, "chat message failed", "conn_id", c.id, "user_id", c.identity.UserID, "error", err)
	}
	g.reply(c, errorFrame(errorText(err, g.sender.MaxMessageLength())))
}

func (g *Gateway) reply(c *Client, payload []byte) {
	if !c.enqueue(payload) {
		c.close()
	}
}
