// Package ws serves live guild chat over WebSocket.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/kasuganosora/lifequest/server/cache"
	"github.com/kasuganosora/lifequest/server/config"
	"github.com/kasuganosora/lifequest/server/game/apperr"
	"github.com/kasuganosora/lifequest/server/game/guild"
	mw "github.com/kasuganosora/lifequest/server/middleware"
	"github.com/kasuganosora/lifequest/server/model"
)

const (
	historySize     = 50
	presenceTimeout = 2 * time.Second
)

// Frame types.
const (
	FrameHistory  = "history"
	FrameChat     = "chat"
	FramePresence = "presence"
	FrameError    = "error"
)

// GuildChat is the part of the guild service the chat socket needs.
type GuildChat interface {
	IsMember(ctx context.Context, guildID, userID string) (bool, error)
	Messages(ctx context.Context, guildID string, limit int) ([]model.GuildChatMessage, error)
	PostMessage(ctx context.Context, userID, guildID, text string) (*model.GuildChatMessage, error)
}

// OnlineKey is the cache set of users connected to a guild's chat.
func OnlineKey(guildID string) string { return "guild:" + guildID + ":online" }

// Handler is the Gin handler for GET /ws/guilds/:id.
type Handler struct {
	guilds   GuildChat
	cache    cache.Cache
	pubsub   cache.PubSub
	sec      config.SecurityConfig
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewHandler creates a new WebSocket Handler.
// sec.AllowedOrigins controls which WebSocket origins are accepted.
// An empty slice permits all origins (development only).
func NewHandler(guilds GuildChat, c cache.Cache, ps cache.PubSub, sec config.SecurityConfig, logger *zap.Logger) *Handler {
	allowed := sec.AllowedOrigins
	return &Handler{
		guilds: guilds,
		cache:  c,
		pubsub: ps,
		sec:    sec,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return len(allowed) == 0 || slices.Contains(allowed, r.Header.Get("Origin"))
			},
		},
	}
}

// ServeGuildChat handles GET /ws/guilds/:id?token=<jwt>.
func (h *Handler) ServeGuildChat(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}
	claims, ok := mw.VerifySession(c.Request.Context(), h.cache, h.sec, token)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "session expired"})
		return
	}
	guildID := c.Param("id")
	member, err := h.guilds.IsMember(c.Request.Context(), guildID, claims.UserID)
	if err != nil {
		h.logger.Error("ws membership check failed", zap.String("guild_id", guildID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": apperr.Message(guild.ErrNotMember)})
		return
	}

	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	ws.SetReadLimit(maxFrameBytes)

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	conn := newConn(ws, claims.UserID, h.logger)
	defer conn.Close()

	msgCh, unsub, err := h.pubsub.Subscribe(ctx, guild.ChatChannel(guildID))
	if err != nil {
		h.logger.Error("ws subscribe failed", zap.String("guild_id", guildID), zap.Error(err))
		conn.Send(Frame{Type: FrameError, Error: "internal error"})
		return
	}
	defer unsub()
	go relay(ctx, msgCh, conn)

	history, err := h.guilds.Messages(ctx, guildID, historySize)
	if err != nil {
		h.logger.Error("ws history failed", zap.String("guild_id", guildID), zap.Error(err))
	}
	if history == nil {
		history = []model.GuildChatMessage{}
	}
	conn.Send(Frame{Type: FrameHistory, Messages: history})

	h.setOnline(ctx, guildID, claims.UserID, true)
	defer h.setOnline(context.WithoutCancel(ctx), guildID, claims.UserID, false)

	h.logger.Info("guild chat connected", zap.String("guild_id", guildID), zap.String("user_id", claims.UserID))
	h.readPump(ctx, conn, guildID)
	h.logger.Info("guild chat disconnected", zap.String("guild_id", guildID), zap.String("user_id", claims.UserID))
}

// readPump posts inbound chat frames until the peer goes away.
func (h *Handler) readPump(ctx context.Context, c *conn, guildID string) {
	c.setReadDeadline()
	c.ws.SetPongHandler(func(string) error {
		c.setReadDeadline()
		return nil
	})
	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure,
				websocket.CloseNoStatusReceived) {
				h.logger.Warn("ws unexpected close", zap.String("user_id", c.userID), zap.Error(err))
			}
			return
		}
		c.setReadDeadline()

		var f Frame
		if err := json.Unmarshal(raw, &f); err != nil || f.Type != FrameChat {
			c.Send(Frame{Type: FrameError, Error: "unsupported frame"})
			continue
		}
		// The posted line comes back through the relay like everyone else's.
		if _, err := h.guilds.PostMessage(ctx, c.userID, guildID, f.Text); err != nil {
			msg := apperr.Message(err)
			if msg == "" {
				h.logger.Error("ws post failed", zap.String("guild_id", guildID), zap.Error(err))
				msg = "internal error"
			}
			c.Send(Frame{Type: FrameError, Error: msg})
		}
	}
}

// setOnline updates the presence set and tells the guild who is connected.
func (h *Handler) setOnline(ctx context.Context, guildID, userID string, online bool) {
	ctx, cancel := context.WithTimeout(ctx, presenceTimeout)
	defer cancel()
	key := OnlineKey(guildID)
	var err error
	if online {
		err = h.cache.SAdd(ctx, key, userID)
	} else {
		err = h.cache.SRem(ctx, key, userID)
	}
	if err != nil {
		h.logger.Warn("guild presence update failed", zap.String("guild_id", guildID), zap.Error(err))
		return
	}
	users, err := h.cache.SMembers(ctx, key)
	if err != nil {
		h.logger.Warn("guild presence read failed", zap.String("guild_id", guildID), zap.Error(err))
		return
	}
	slices.Sort(users)
	b, _ := json.Marshal(Frame{Type: FramePresence, Online: users})
	if err := h.pubsub.Publish(ctx, guild.ChatChannel(guildID), string(b)); err != nil {
		h.logger.Warn("guild presence publish failed", zap.String("guild_id", guildID), zap.Error(err))
	}
}

func relay(ctx context.Context, msgCh <-chan *cache.Message, c *conn) {
	for {
		select {
		case msg, ok := <-msgCh:
			if !ok {
				return
			}
			c.SendRaw([]byte(msg.Payload))
		case <-ctx.Done():
			return
		}
	}
}
