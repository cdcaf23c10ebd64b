package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/kasuganosora/lifequest/server/cache"
	"github.com/kasuganosora/lifequest/server/game/account"
	"github.com/kasuganosora/lifequest/server/game/apperr"
	mw "github.com/kasuganosora/lifequest/server/middleware"
)

var errPasswordMismatch = apperr.Invalid("New passwords do not match.")

// MeHandler serves the signed-in user's own account.
type MeHandler struct {
	accounts *account.Service
	cache    cache.Cache
	logger   *zap.Logger
}

// NewMeHandler creates a MeHandler.
func NewMeHandler(accounts *account.Service, c cache.Cache, logger *zap.Logger) *MeHandler {
	return &MeHandler{accounts: accounts, cache: c, logger: logger}
}

// Get handles GET /api/me.
func (h *MeHandler) Get(c *gin.Context) {
	u, err := h.accounts.Get(c.Request.Context(), mw.GetUserID(c))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": u})
}

// CheckIn handles POST /api/me/check-in. The first call of a day applies the
// streak; later calls return the user unchanged.
func (h *MeHandler) CheckIn(c *gin.Context) {
	u, bonus, err := h.accounts.CheckIn(c.Request.Context(), mw.GetUserID(c))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": u, "streak_bonus": bonus})
}

// UpdateProfile handles PUT /api/me/profile.
func (h *MeHandler) UpdateProfile(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Email    string `json:"email" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	u, err := h.accounts.UpdateProfile(c.Request.Context(), mw.GetUserID(c), req.Username, req.Email)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": u})
}

// UpdateAvatar handles PUT /api/me/avatar.
func (h *MeHandler) UpdateAvatar(c *gin.Context) {
	var req struct {
		AvatarURL string `json:"avatar_url" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	u, err := h.accounts.UpdateAvatar(c.Request.Context(), mw.GetUserID(c), req.AvatarURL)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": u})
}

// ChangePassword handles PUT /api/me/password.
func (h *MeHandler) ChangePassword(c *gin.Context) {
	var req struct {
		CurrentPassword string `json:"current_password" binding:"required"`
		NewPassword     string `json:"new_password" binding:"required"`
		ConfirmPassword string `json:"confirm_password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if req.NewPassword != req.ConfirmPassword {
		fail(c, h.logger, errPasswordMismatch)
		return
	}
	if err := h.accounts.ChangePassword(c.Request.Context(), mw.GetUserID(c), req.CurrentPassword, req.NewPassword); err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Password updated."})
}

// Delete handles DELETE /api/me. Every session of the user ends with it.
func (h *MeHandler) Delete(c *gin.Context) {
	ctx := c.Request.Context()
	userID := mw.GetUserID(c)
	if err := h.accounts.Delete(ctx, userID); err != nil {
		fail(c, h.logger, err)
		return
	}
	if err := mw.DropUserSessions(ctx, h.cache, userID); err != nil {
		h.logger.Warn("delete account: drop sessions", zap.String("user_id", userID), zap.Error(err))
	}
	c.JSON(http.StatusOK, gin.H{"message": "Account deleted."})
}

// Skills handles GET /api/me/skills.
func (h *MeHandler) Skills(c *gin.Context) {
	skills, err := h.accounts.Skills(c.Request.Context(), mw.GetUserID(c))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"skills": skills})
}
