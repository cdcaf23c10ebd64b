package rest

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/kasuganosora/lifequest/server/game/guild"
	mw "github.com/kasuganosora/lifequest/server/middleware"
)

// GuildHandler handles guild REST endpoints.
type GuildHandler struct {
	guilds *guild.Service
	logger *zap.Logger
}

// NewGuildHandler creates a GuildHandler.
func NewGuildHandler(guilds *guild.Service, logger *zap.Logger) *GuildHandler {
	return &GuildHandler{guilds: guilds, logger: logger}
}

// List handles GET /api/guilds.
func (h *GuildHandler) List(c *gin.Context) {
	gs, err := h.guilds.List(c.Request.Context())
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"guilds": gs})
}

// Detail handles GET /api/guilds/:id.
func (h *GuildHandler) Detail(c *gin.Context) {
	d, err := h.guilds.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"guild": d})
}

// Create handles POST /api/guilds.
func (h *GuildHandler) Create(c *gin.Context) {
	var req struct {
		Name        string `json:"name" binding:"required"`
		Description string `json:"description"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	d, err := h.guilds.Create(c.Request.Context(), mw.GetUserID(c), req.Name, req.Description)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"guild": d})
}

// Join handles POST /api/guilds/:id/join.
func (h *GuildHandler) Join(c *gin.Context) {
	d, err := h.guilds.Join(c.Request.Context(), mw.GetUserID(c), c.Param("id"))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"guild": d})
}

// Leave handles POST /api/guilds/:id/leave.
func (h *GuildHandler) Leave(c *gin.Context) {
	if err := h.guilds.Leave(c.Request.Context(), mw.GetUserID(c), c.Param("id")); err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "You have left the guild."})
}

// Contribute handles POST /api/guilds/:id/contribute.
func (h *GuildHandler) Contribute(c *gin.Context) {
	res, err := h.guilds.Contribute(c.Request.Context(), mw.GetUserID(c), c.Param("id"))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Chat handles GET /api/guilds/:id/chat?limit=50 for members.
func (h *GuildHandler) Chat(c *gin.Context) {
	ctx := c.Request.Context()
	guildID := c.Param("id")
	ok, err := h.guilds.IsMember(ctx, guildID, mw.GetUserID(c))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	if !ok {
		fail(c, h.logger, guild.ErrNotMember)
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	msgs, err := h.guilds.Messages(ctx, guildID, limit)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// PostMessage handles POST /api/guilds/:id/chat.
func (h *GuildHandler) PostMessage(c *gin.Context) {
	var req struct {
		Text string `json:"text"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	msg, err := h.guilds.PostMessage(c.Request.Context(), mw.GetUserID(c), c.Param("id"), req.Text)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": msg})
}
