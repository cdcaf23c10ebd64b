package rest_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/kasuganosora/lifequest/server/ai"
	"github.com/kasuganosora/lifequest/server/api/rest"
	"github.com/kasuganosora/lifequest/server/audit"
	"github.com/kasuganosora/lifequest/server/cache"
	"github.com/kasuganosora/lifequest/server/config"
	"github.com/kasuganosora/lifequest/server/game/account"
	"github.com/kasuganosora/lifequest/server/game/guild"
	"github.com/kasuganosora/lifequest/server/game/notify"
	"github.com/kasuganosora/lifequest/server/game/quest"
	"github.com/kasuganosora/lifequest/server/game/ranking"
	"github.com/kasuganosora/lifequest/server/game/shop"
	mw "github.com/kasuganosora/lifequest/server/middleware"
	"github.com/kasuganosora/lifequest/server/scheduler"
	"github.com/kasuganosora/lifequest/server/testutil"
)

const (
	testAdminKey = "admin-secret"
	testPassword = "Secret123!"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type trail struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (t *trail) Log(e audit.Entry) {
	t.mu.Lock()
	t.entries = append(t.entries, e)
	t.mu.Unlock()
}

func (t *trail) actions() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.entries))
	for i, e := range t.entries {
		out[i] = e.Action
	}
	return out
}

type testServer struct {
	r     *gin.Engine
	db    *gorm.DB
	cache cache.Cache
	ps    cache.PubSub
	trail *trail
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db := testutil.SetupTestDB(t)
	c, ps := testutil.SetupTestCache(t)
	logger := testutil.Logger()
	game := config.DefaultGame()
	sec := config.SecurityConfig{JWTSecret: "test-secret", JWTTTLH: 72 * time.Hour, ShortTTL: time.Hour}

	board := ranking.NewBoard(db, c, logger)
	notifier := notify.NewPubSub(ps, logger)
	gen := ai.NewTemplates()

	accounts := account.NewService(db, game, board, notifier, logger, account.WithPasswordCost(bcrypt.MinCost))
	quests := quest.NewService(db, c, gen, game, board, notifier, logger)
	guilds := guild.NewService(db, ps, game, board, notifier, logger)
	shops := shop.NewService(db, game, board, notifier, logger)
	sched := scheduler.New(logger)
	t.Cleanup(sched.Stop)

	h := &rest.Handlers{
		Auth:        rest.NewAuthHandler(accounts, c, sec, logger),
		Me:          rest.NewMeHandler(accounts, c, logger),
		Quest:       rest.NewQuestHandler(quests, logger),
		Guild:       rest.NewGuildHandler(guilds, logger),
		Shop:        rest.NewShopHandler(shops, logger),
		Leaderboard: rest.NewLeaderboardHandler(board, logger),
		Coach:       rest.NewCoachHandler(ai.NewCoach(gen, c, 20, logger), logger),
		Admin:       rest.NewAdminHandler(db, accounts, c, board, notifier, sched, logger),
		Logger:      logger,
	}
	tr := &trail{}
	r := gin.New()
	r.Use(mw.TraceID(), mw.Recovery(logger))
	rest.Routes(r.Group("/api"), h, mw.Auth(sec, c), gin.HandlersChain{rest.AdminAuth(testAdminKey)}, tr)
	return &testServer{r: r, db: db, cache: c, ps: ps, trail: tr}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.r.ServeHTTP(w, req)
	return w
}

func (s *testServer) admin(t *testing.T, method, path, key string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("X-Admin-Key", key)
	}
	w := httptest.NewRecorder()
	s.r.ServeHTTP(w, req)
	return w
}

type session struct {
	Token string `json:"token"`
	User  struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	} `json:"user"`
}

// register signs up username and returns its session.
func (s *testServer) register(t *testing.T, username string) session {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/auth/register", "", gin.H{
		"username": username,
		"email":    username + "@example.com",
		"password": testPassword,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var out session
	decode(t, w, &out)
	require.NotEmpty(t, out.Token)
	return out
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func errorOf(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	decode(t, w, &body)
	return body.Error
}
