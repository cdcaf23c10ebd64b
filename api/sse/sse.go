// Package sse streams per-user game events and global announcements to
// browsers over server-sent events.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/kasuganosora/lifequest/server/cache"
	"github.com/kasuganosora/lifequest/server/config"
	"github.com/kasuganosora/lifequest/server/game/notify"
	mw "github.com/kasuganosora/lifequest/server/middleware"
)

const keepaliveEvery = 30 * time.Second

// Handler handles the SSE endpoint.
type Handler struct {
	pubsub cache.PubSub
	c      cache.Cache
	sec    config.SecurityConfig
	logger *zap.Logger
}

// NewHandler creates a new SSE Handler.
func NewHandler(pubsub cache.PubSub, c cache.Cache, sec config.SecurityConfig, logger *zap.Logger) *Handler {
	return &Handler{pubsub: pubsub, c: c, sec: sec, logger: logger}
}

// ServeSSE handles GET /sse?token=<jwt>.
// Events published for the token's user arrive under their own event type;
// announcements arrive as "announce".
func (h *Handler) ServeSSE(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}
	claims, ok := mw.VerifySession(c.Request.Context(), h.c, h.sec, token)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "session expired"})
		return
	}

	msgCh, unsub, err := h.pubsub.Subscribe(c.Request.Context(),
		notify.UserChannel(claims.UserID), notify.AnnounceChannel)
	if err != nil {
		h.logger.Error("sse subscribe failed", zap.String("user_id", claims.UserID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	defer unsub()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	writeEvent(c, "connected", "{}")

	ticker := time.NewTicker(keepaliveEvery)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-msgCh:
			if !ok {
				return
			}
			event, data := frame(msg)
			writeEvent(c, event, data)

		case <-ticker.C:
			fmt.Fprint(c.Writer, ": keepalive\n\n")
			c.Writer.Flush()

		case <-c.Request.Context().Done():
			return
		}
	}
}

// frame maps a pub/sub message to an SSE event name and a single-line payload.
func frame(msg *cache.Message) (string, string) {
	if msg.Channel == notify.AnnounceChannel {
		b, _ := json.Marshal(gin.H{"message": msg.Payload})
		return "announce", string(b)
	}
	var ev notify.Event
	if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil || ev.Type == "" {
		return "message", msg.Payload
	}
	return ev.Type, msg.Payload
}

func writeEvent(c *gin.Context, event, data string) {
	fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", event, data)
	c.Writer.Flush()
}
