package rest

import (
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/kasuganosora/lifequest/server/ai"
	"github.com/kasuganosora/lifequest/server/game/apperr"
	mw "github.com/kasuganosora/lifequest/server/middleware"
)

const maxCoachMessage = 1000

var errCoachMessage = apperr.Invalid("Message must be between 1 and 1000 characters.")

// CoachHandler serves the AI coach conversation.
type CoachHandler struct {
	coach  *ai.Coach
	logger *zap.Logger
}

// NewCoachHandler creates a CoachHandler.
func NewCoachHandler(coach *ai.Coach, logger *zap.Logger) *CoachHandler {
	return &CoachHandler{coach: coach, logger: logger}
}

// History handles GET /api/coach/history.
func (h *CoachHandler) History(c *gin.Context) {
	msgs, err := h.coach.History(c.Request.Context(), mw.GetUserID(c))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// Chat handles POST /api/coach/chat.
func (h *CoachHandler) Chat(c *gin.Context) {
	var req struct {
		Message string `json:"message"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	msg := strings.TrimSpace(req.Message)
	if msg == "" || utf8.RuneCountInString(msg) > maxCoachMessage {
		fail(c, h.logger, errCoachMessage)
		return
	}
	reply, err := h.coach.Ask(c.Request.Context(), mw.GetUserID(c), msg)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reply": reply})
}

// Reset handles DELETE /api/coach/history.
func (h *CoachHandler) Reset(c *gin.Context) {
	if err := h.coach.Reset(c.Request.Context(), mw.GetUserID(c)); err != nil {
		fail(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}
