package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/kasuganosora/lifequest/server/game/quest"
	mw "github.com/kasuganosora/lifequest/server/middleware"
)

// QuestHandler serves the personal quest board.
type QuestHandler struct {
	quests *quest.Service
	logger *zap.Logger
}

// NewQuestHandler creates a QuestHandler.
func NewQuestHandler(quests *quest.Service, logger *zap.Logger) *QuestHandler {
	return &QuestHandler{quests: quests, logger: logger}
}

// List handles GET /api/quests.
func (h *QuestHandler) List(c *gin.Context) {
	qs, err := h.quests.List(c.Request.Context(), mw.GetUserID(c))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"quests": qs})
}

// Refresh handles POST /api/quests/refresh.
func (h *QuestHandler) Refresh(c *gin.Context) {
	var req struct {
		Skills []string `json:"skills"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	res, err := h.quests.Refresh(c.Request.Context(), mw.GetUserID(c), req.Skills)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Start handles POST /api/quests/:id/start.
func (h *QuestHandler) Start(c *gin.Context) {
	q, err := h.quests.Start(c.Request.Context(), mw.GetUserID(c), c.Param("id"))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"quest": q})
}

// Complete handles POST /api/quests/:id/complete.
func (h *QuestHandler) Complete(c *gin.Context) {
	res, err := h.quests.Complete(c.Request.Context(), mw.GetUserID(c), c.Param("id"))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
