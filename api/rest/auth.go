package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/kasuganosora/lifequest/server/cache"
	"github.com/kasuganosora/lifequest/server/config"
	"github.com/kasuganosora/lifequest/server/game/account"
	mw "github.com/kasuganosora/lifequest/server/middleware"
	"github.com/kasuganosora/lifequest/server/model"
)

// AuthHandler handles sign-up, sign-in and session endpoints.
type AuthHandler struct {
	accounts *account.Service
	cache    cache.Cache
	sec      config.SecurityConfig
	logger   *zap.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(accounts *account.Service, c cache.Cache, sec config.SecurityConfig, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{accounts: accounts, cache: c, sec: sec, logger: logger}
}

type registerRequest struct {
	Username   string `json:"username" binding:"required"`
	Email      string `json:"email" binding:"required"`
	Password   string `json:"password" binding:"required"`
	AvatarURL  string `json:"avatar_url"`
	RememberMe bool   `json:"remember_me"`
}

type loginRequest struct {
	// Identifier is a username or an email address.
	Identifier string `json:"identifier" binding:"required"`
	Password   string `json:"password" binding:"required"`
	RememberMe bool   `json:"remember_me"`
}

type sessionResponse struct {
	Token string      `json:"token"`
	User  *model.User `json:"user"`
}

// Register handles POST /api/auth/register.
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	u, err := h.accounts.Register(c.Request.Context(), req.Username, req.Email, req.Password, req.AvatarURL)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	h.startSession(c, http.StatusCreated, u, req.RememberMe)
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	u, err := h.accounts.Authenticate(c.Request.Context(), req.Identifier, req.Password)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	h.startSession(c, http.StatusOK, u, req.RememberMe)
}

func (h *AuthHandler) startSession(c *gin.Context, status int, u *model.User, remember bool) {
	token, err := mw.IssueSession(c.Request.Context(), h.cache, h.sec, u.ID, remember)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.Set(mw.UserIDKey, u.ID)
	c.JSON(status, sessionResponse{Token: token, User: u})
}

// Logout handles POST /api/auth/logout.
func (h *AuthHandler) Logout(c *gin.Context) {
	if err := mw.DropSession(c.Request.Context(), h.cache, mw.GetUserID(c), mw.GetToken(c)); err != nil {
		h.logger.Warn("logout: drop session", zap.Error(err))
	}
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// Refresh handles POST /api/auth/refresh. The old token stops working.
func (h *AuthHandler) Refresh(c *gin.Context) {
	ctx := c.Request.Context()
	userID := mw.GetUserID(c)
	token, err := mw.IssueSession(ctx, h.cache, h.sec, userID, c.GetBool(mw.RememberKey))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	if err := mw.DropSession(ctx, h.cache, userID, mw.GetToken(c)); err != nil {
		h.logger.Warn("refresh: drop old session", zap.Error(err))
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

// PasswordReset handles POST /api/auth/password-reset. The answer never says
// whether the address is registered.
func (h *AuthHandler) PasswordReset(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	h.accounts.RequestPasswordReset(c.Request.Context(), req.Email)
	c.JSON(http.StatusOK, gin.H{"message": "If an account exists for that email, a reset link has been sent."})
}
