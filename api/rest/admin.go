package rest

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/kasuganosora/lifequest/server/cache"
	"github.com/kasuganosora/lifequest/server/game/account"
	mw "github.com/kasuganosora/lifequest/server/middleware"
	"github.com/kasuganosora/lifequest/server/model"
	"github.com/kasuganosora/lifequest/server/scheduler"
)

// Announcer broadcasts to every connected client.
type Announcer interface {
	Announce(ctx context.Context, message string) error
}

// BoardAdmin is the maintenance side of the leaderboard.
type BoardAdmin interface {
	Rebuild(ctx context.Context) error
	Remove(ctx context.Context, userID string)
}

// TaskLister reports background jobs.
type TaskLister interface {
	ListTickers() []scheduler.TaskStatus
}

// AdminHandler handles admin-only REST endpoints.
// Routes should be protected by AdminAuth middleware.
type AdminHandler struct {
	db        *gorm.DB
	accounts  *account.Service
	cache     cache.Cache
	board     BoardAdmin
	announcer Announcer
	sched     TaskLister
	logger    *zap.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(
	db *gorm.DB,
	accounts *account.Service,
	c cache.Cache,
	board BoardAdmin,
	announcer Announcer,
	sched TaskLister,
	logger *zap.Logger,
) *AdminHandler {
	return &AdminHandler{db: db, accounts: accounts, cache: c, board: board, announcer: announcer, sched: sched, logger: logger}
}

// Metrics returns headline counts and scheduler health.
// GET /api/admin/metrics
func (h *AdminHandler) Metrics(c *gin.Context) {
	db := h.db.WithContext(c.Request.Context())
	var users, premium, banned, guilds, openQuests int64
	counts := []struct {
		q   *gorm.DB
		dst *int64
	}{
		{db.Model(&model.User{}), &users},
		{db.Model(&model.User{}).Where("is_premium = ?", true), &premium},
		{db.Model(&model.User{}).Where("status = ?", model.UserStatusBanned), &banned},
		{db.Model(&model.Guild{}), &guilds},
		{db.Model(&model.Quest{}).Where("is_completed = ?", false), &openQuests},
	}
	for _, ct := range counts {
		if err := ct.q.Count(ct.dst).Error; err != nil {
			fail(c, h.logger, err)
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"users":           users,
		"premium_users":   premium,
		"banned_users":    banned,
		"guilds":          guilds,
		"open_quests":     openQuests,
		"scheduler_tasks": h.sched.ListTickers(),
	})
}

// BanUser bans or unbans a user. A banned user is signed out and leaves the
// leaderboard until the next rebuild.
// POST /api/admin/users/:id/ban
func (h *AdminHandler) BanUser(c *gin.Context) {
	var req struct {
		Ban bool `json:"ban"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	ctx := c.Request.Context()
	userID := c.Param("id")

	status := model.UserStatusNormal
	if req.Ban {
		status = model.UserStatusBanned
	}
	if err := h.accounts.SetStatus(ctx, userID, status); err != nil {
		fail(c, h.logger, err)
		return
	}
	if req.Ban {
		h.board.Remove(ctx, userID)
		if err := mw.DropUserSessions(ctx, h.cache, userID); err != nil {
			h.logger.Warn("ban: drop sessions", zap.String("user_id", userID), zap.Error(err))
		}
	}
	h.logger.Info("admin changed user status", zap.String("user_id", userID), zap.Bool("ban", req.Ban))
	c.JSON(http.StatusOK, gin.H{"ok": true, "status": status})
}

// Announce pushes a message to every SSE subscriber.
// POST /api/admin/announce
func (h *AdminHandler) Announce(c *gin.Context) {
	var req struct {
		Message string `json:"message" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.announcer.Announce(c.Request.Context(), strings.TrimSpace(req.Message)); err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// RebuildLeaderboard repopulates the ranking set from the database.
// POST /api/admin/leaderboard/rebuild
func (h *AdminHandler) RebuildLeaderboard(c *gin.Context) {
	if err := h.board.Rebuild(c.Request.Context()); err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// AdminAuth returns a middleware that checks the X-Admin-Key header.
// With an empty adminKey every admin endpoint answers 503.
func AdminAuth(adminKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if adminKey == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable,
				gin.H{"error": "admin endpoints disabled: set server.admin_key in config"})
			return
		}
		if c.GetHeader("X-Admin-Key") != adminKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}
