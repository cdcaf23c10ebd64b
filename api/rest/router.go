package rest

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/kasuganosora/lifequest/server/audit"
)

// Handlers bundles every REST handler.
type Handlers struct {
	Auth        *AuthHandler
	Me          *MeHandler
	Quest       *QuestHandler
	Guild       *GuildHandler
	Shop        *ShopHandler
	Leaderboard *LeaderboardHandler
	Coach       *CoachHandler
	Admin       *AdminHandler
	Logger      *zap.Logger
}

// Routes registers the REST API under api. requireAuth guards user routes,
// adminGuard guards /admin.
func Routes(api *gin.RouterGroup, h *Handlers, requireAuth gin.HandlerFunc, adminGuard gin.HandlersChain, trail audit.Logger) {
	authG := api.Group("/auth")
	authG.POST("/register", Audited(trail, "auth.register"), h.Auth.Register)
	authG.POST("/login", Audited(trail, "auth.login"), h.Auth.Login)
	authG.POST("/password-reset", Audited(trail, "auth.password_reset"), h.Auth.PasswordReset)
	authG.POST("/logout", requireAuth, h.Auth.Logout)
	authG.POST("/refresh", requireAuth, h.Auth.Refresh)

	api.GET("/leaderboard", h.Leaderboard.Top)
	api.GET("/shop/perks", h.Shop.Perks)
	api.POST("/client-error", ClientError(h.Logger))

	meG := api.Group("/me", requireAuth)
	meG.GET("", h.Me.Get)
	meG.DELETE("", Audited(trail, "account.delete"), h.Me.Delete)
	meG.POST("/check-in", h.Me.CheckIn)
	meG.PUT("/profile", Audited(trail, "account.profile"), h.Me.UpdateProfile)
	meG.PUT("/avatar", h.Me.UpdateAvatar)
	meG.PUT("/password", Audited(trail, "account.password"), h.Me.ChangePassword)
	meG.GET("/skills", h.Me.Skills)

	questG := api.Group("/quests", requireAuth)
	questG.GET("", h.Quest.List)
	questG.POST("/refresh", h.Quest.Refresh)
	questG.POST("/:id/start", h.Quest.Start)
	questG.POST("/:id/complete", h.Quest.Complete)

	guildG := api.Group("/guilds", requireAuth)
	guildG.GET("", h.Guild.List)
	guildG.POST("", Audited(trail, "guild.create"), h.Guild.Create)
	guildG.GET("/:id", h.Guild.Detail)
	guildG.POST("/:id/join", h.Guild.Join)
	guildG.POST("/:id/leave", h.Guild.Leave)
	guildG.POST("/:id/contribute", h.Guild.Contribute)
	guildG.GET("/:id/chat", h.Guild.Chat)
	guildG.POST("/:id/chat", h.Guild.PostMessage)

	shopG := api.Group("/shop", requireAuth)
	shopG.GET("/items", h.Shop.Items)
	shopG.POST("/items/:id/buy", Audited(trail, "shop.buy"), h.Shop.Buy)
	shopG.POST("/premium", Audited(trail, "shop.premium"), h.Shop.Premium)
	shopG.POST("/restore", Audited(trail, "shop.restore"), h.Shop.Restore)
	shopG.POST("/watch-ad", h.Shop.WatchAd)

	coachG := api.Group("/coach", requireAuth)
	coachG.GET("/history", h.Coach.History)
	coachG.POST("/chat", h.Coach.Chat)
	coachG.DELETE("/history", h.Coach.Reset)

	adminG := api.Group("/admin", adminGuard...)
	adminG.GET("/metrics", h.Admin.Metrics)
	adminG.POST("/users/:id/ban", Audited(trail, "admin.ban"), h.Admin.BanUser)
	adminG.POST("/announce", Audited(trail, "admin.announce"), h.Admin.Announce)
	adminG.POST("/leaderboard/rebuild", h.Admin.RebuildLeaderboard)
}
