package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kasuganosora/lifequest/server/ai"
	"github.com/kasuganosora/lifequest/server/api/rest"
	"github.com/kasuganosora/lifequest/server/api/sse"
	"github.com/kasuganosora/lifequest/server/api/ws"
	"github.com/kasuganosora/lifequest/server/audit"
	"github.com/kasuganosora/lifequest/server/cache"
	"github.com/kasuganosora/lifequest/server/config"
	dbadapter "github.com/kasuganosora/lifequest/server/db"
	"github.com/kasuganosora/lifequest/server/game/account"
	"github.com/kasuganosora/lifequest/server/game/guild"
	"github.com/kasuganosora/lifequest/server/game/notify"
	"github.com/kasuganosora/lifequest/server/game/quest"
	"github.com/kasuganosora/lifequest/server/game/ranking"
	"github.com/kasuganosora/lifequest/server/game/shop"
	mw "github.com/kasuganosora/lifequest/server/middleware"
	"github.com/kasuganosora/lifequest/server/model"
	"github.com/kasuganosora/lifequest/server/scheduler"
)

const (
	shutdownTimeout = 10 * time.Second
	warmupDelay     = time.Second
)

// app is a fully wired server.
type app struct {
	router  *gin.Engine
	closers []func(context.Context)
}

// close releases resources in reverse order of acquisition.
func (a *app) close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i](ctx)
	}
}

// newApp opens storage, builds the services and mounts every route.
// Background goroutines stop when ctx is done or close is called.
func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			a.close(context.Background())
		}
	}()

	if cfg.Server.AdminKey == "" {
		logger.Warn("server.admin_key is not set; admin endpoints are disabled")
	}
	if cfg.Security.JWTSecret == "" {
		return nil, errors.New("security.jwt_secret must be set")
	}

	// ---- Database ----
	db, err := dbadapter.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("db: %w", err)
	}
	a.closers = append(a.closers, func(context.Context) {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := model.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("db migrate: %w", err)
	}
	logger.Info("DB initialized", zap.String("mode", cfg.Database.Mode))

	// ---- Cache / PubSub ----
	cacheConfig := cache.CacheConfig{
		RedisAddr:       cfg.Cache.RedisAddr,
		RedisPassword:   cfg.Cache.RedisPassword,
		RedisDB:         cfg.Cache.RedisDB,
		LocalGCInterval: cfg.Cache.LocalGCInterval,
		LocalPubSubBuf:  cfg.Cache.LocalPubSubBuf,
	}
	c, err := cache.NewCache(cacheConfig)
	if err != nil {
		return nil, fmt.Errorf("cache: %w", err)
	}
	a.closers = append(a.closers, func(context.Context) { _ = c.Close() })
	pubsub, err := cache.NewPubSub(cacheConfig)
	if err != nil {
		return nil, fmt.Errorf("pubsub: %w", err)
	}
	logger.Info("Cache initialized", zap.Bool("redis", cfg.Cache.RedisAddr != ""))

	// ---- Audit ----
	trail := audit.New(db, logger)
	a.closers = append(a.closers, trail.Stop)

	// ---- Services ----
	gen, err := ai.New(ctx, cfg.AI, logger)
	if err != nil {
		return nil, fmt.Errorf("ai: %w", err)
	}
	board := ranking.NewBoard(db, c, logger)
	notifier := notify.NewPubSub(pubsub, logger)
	accounts := account.NewService(db, cfg.Game, board, notifier, logger)
	quests := quest.NewService(db, c, gen, cfg.Game, board, notifier, logger)
	guilds := guild.NewService(db, pubsub, cfg.Game, board, notifier, logger)
	shops := shop.NewService(db, cfg.Game, board, notifier, logger)
	coach := ai.NewCoach(gen, c, cfg.AI.HistorySize, logger)

	// ---- Scheduler ----
	sched := scheduler.New(logger)
	a.closers = append(a.closers, func(context.Context) { sched.Stop() })
	registerTasks(sched, cfg.Game, quests, guilds, board, logger)

	// ---- Gin HTTP Server ----
	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(mw.TraceID(), mw.Logger(logger), mw.Recovery(logger))
	r.Use(mw.RateLimit(ctx, rate.Limit(cfg.Security.RateLimitRPS), cfg.Security.RateLimitBurst))

	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	h := &rest.Handlers{
		Auth:        rest.NewAuthHandler(accounts, c, cfg.Security, logger),
		Me:          rest.NewMeHandler(accounts, c, logger),
		Quest:       rest.NewQuestHandler(quests, logger),
		Guild:       rest.NewGuildHandler(guilds, logger),
		Shop:        rest.NewShopHandler(shops, logger),
		Leaderboard: rest.NewLeaderboardHandler(board, logger),
		Coach:       rest.NewCoachHandler(coach, logger),
		Admin:       rest.NewAdminHandler(db, accounts, c, board, notifier, sched, logger),
		Logger:      logger,
	}
	adminGuard := gin.HandlersChain{mw.IPWhitelist(cfg.Server.AdminIPs), rest.AdminAuth(cfg.Server.AdminKey)}
	rest.Routes(r.Group("/api"), h, mw.Auth(cfg.Security, c), adminGuard, trail)

	// ---- SSE ----
	r.GET("/sse", sse.NewHandler(pubsub, c, cfg.Security, logger).ServeSSE)

	// ---- WebSocket ----
	r.GET("/ws/guilds/:id", ws.NewHandler(guilds, c, pubsub, cfg.Security, logger).ServeGuildChat)

	a.router = r
	return a, nil
}

// registerTasks schedules the periodic maintenance jobs.
func registerTasks(sched *scheduler.Scheduler, game config.GameConfig,
	quests *quest.Service, guilds *guild.Service, board *ranking.Board, logger *zap.Logger) {
	sched.AddTicker("quest_expiry", game.ExpirySweepEvery, func(ctx context.Context) error {
		n, err := quests.SweepExpired(ctx, time.Now().UTC())
		if n > 0 {
			logger.Info("expired quests removed", zap.Int64("count", n))
		}
		return err
	})
	sched.AddTicker("guild_quest_renewal", game.ExpirySweepEvery, func(ctx context.Context) error {
		n, err := guilds.RenewExpiredQuests(ctx, time.Now().UTC())
		if n > 0 {
			logger.Info("guild quests renewed", zap.Int64("count", n))
		}
		return err
	})
	sched.AddTicker("leaderboard_rebuild", game.RankingRebuild, board.Rebuild)
	sched.AddDelay("leaderboard_warmup", warmupDelay, board.Rebuild)
}

// serve runs the server until SIGINT or SIGTERM, then drains it.
func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server listening", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err = <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err = srv.Shutdown(shutdownCtx)
		a.close(shutdownCtx)
		return err
	}
	a.close(context.Background())
	return err
}
