package integration

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"github.com/kasuganosora/lifequest/server/ai"
	apirest "github.com/kasuganosora/lifequest/server/api/rest"
	"github.com/kasuganosora/lifequest/server/api/sse"
	apiws "github.com/kasuganosora/lifequest/server/api/ws"
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

// AdminKey unlocks /api/admin on the test server.
const AdminKey = "integration-admin"

// Password is used for every account the harness registers.
const Password = "Integration1!"

// TestServer wraps a real HTTP server with every LifeQuest subsystem wired together.
type TestServer struct {
	DB     *gorm.DB
	Cache  cache.Cache
	PubSub cache.PubSub
	Audit  *audit.Service
	Server *httptest.Server
	URL    string // http://127.0.0.1:<port>
	WSURL  string // ws://127.0.0.1:<port>
	Sec    config.SecurityConfig
}

// NewTestServer creates a fully wired server for integration testing.
// It mirrors the dependency wiring in server.go.
func NewTestServer(t *testing.T) *TestServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	// ---- Infrastructure ----
	db := testutil.SetupTestDB(t)
	c, pubsub := testutil.SetupTestCache(t)
	logger := zap.NewNop()
	game := config.DefaultGame()

	sec := config.SecurityConfig{
		JWTSecret:      "integration-test-secret",
		JWTTTLH:        72 * time.Hour,
		ShortTTL:       time.Hour,
		RateLimitRPS:   1000,
		RateLimitBurst: 2000,
		AllowedOrigins: []string{}, // allow all origins
	}

	// ---- Services ----
	gen := ai.NewTemplates()
	board := ranking.NewBoard(db, c, logger)
	notifier := notify.NewPubSub(pubsub, logger)
	accounts := account.NewService(db, game, board, notifier, logger, account.WithPasswordCost(bcrypt.MinCost))
	quests := quest.NewService(db, c, gen, game, board, notifier, logger)
	guilds := guild.NewService(db, pubsub, game, board, notifier, logger)
	shops := shop.NewService(db, game, board, notifier, logger)
	trail := audit.New(db, logger)
	sched := scheduler.New(logger)

	// ---- Gin HTTP Server ----
	ctx, cancel := context.WithCancel(context.Background())
	r := gin.New()
	r.Use(mw.TraceID(), mw.Recovery(logger))
	r.Use(mw.RateLimit(ctx, rate.Limit(sec.RateLimitRPS), sec.RateLimitBurst))

	h := &apirest.Handlers{
		Auth:        apirest.NewAuthHandler(accounts, c, sec, logger),
		Me:          apirest.NewMeHandler(accounts, c, logger),
		Quest:       apirest.NewQuestHandler(quests, logger),
		Guild:       apirest.NewGuildHandler(guilds, logger),
		Shop:        apirest.NewShopHandler(shops, logger),
		Leaderboard: apirest.NewLeaderboardHandler(board, logger),
		Coach:       apirest.NewCoachHandler(ai.NewCoach(gen, c, 20, logger), logger),
		Admin:       apirest.NewAdminHandler(db, accounts, c, board, notifier, sched, logger),
		Logger:      logger,
	}
	apirest.Routes(r.Group("/api"), h, mw.Auth(sec, c), gin.HandlersChain{apirest.AdminAuth(AdminKey)}, trail)
	r.GET("/sse", sse.NewHandler(pubsub, c, sec, logger).ServeSSE)
	r.GET("/ws/guilds/:id", apiws.NewHandler(guilds, c, pubsub, sec, logger).ServeGuildChat)

	server := httptest.NewServer(r)
	ts := &TestServer{
		DB:     db,
		Cache:  c,
		PubSub: pubsub,
		Audit:  trail,
		Server: server,
		URL:    server.URL,
		WSURL:  "ws" + strings.TrimPrefix(server.URL, "http"),
		Sec:    sec,
	}
	t.Cleanup(func() {
		server.Close()
		cancel()
		sched.Stop()
		trail.Stop(context.Background())
	})
	return ts
}

// --- HTTP helpers ---

// Do sends a request with an optional JSON body and Bearer token.
func (ts *TestServer) Do(t *testing.T, method, path string, body any, token string) *http.Response {
	t.Helper()
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		bodyReader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, ts.URL+path, bodyReader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

// PostJSON sends a POST request with JSON body and optional Bearer token.
func (ts *TestServer) PostJSON(t *testing.T, path string, body any, token string) *http.Response {
	t.Helper()
	return ts.Do(t, http.MethodPost, path, body, token)
}

// Get sends a GET request with optional Bearer token.
func (ts *TestServer) Get(t *testing.T, path string, token string) *http.Response {
	t.Helper()
	return ts.Do(t, http.MethodGet, path, nil, token)
}

// Admin sends a request to an admin endpoint with the harness key.
func (ts *TestServer) Admin(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		bodyReader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, ts.URL+path, bodyReader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Admin-Key", AdminKey)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

// ReadJSON reads and decodes a JSON response body into the given target.
func ReadJSON(t *testing.T, resp *http.Response, target any) {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, target), "body: %s", string(data))
}

// --- Auth helpers ---

// Account is a registered user and its session token.
type Account struct {
	ID       string
	Username string
	Token    string
}

type sessionBody struct {
	Token string `json:"token"`
	User  struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	} `json:"user"`
}

// Register signs up a new user with Password.
func (ts *TestServer) Register(t *testing.T, username string) Account {
	t.Helper()
	resp := ts.PostJSON(t, "/api/auth/register", map[string]any{
		"username": username,
		"email":    strings.ToLower(username) + "@example.com",
		"password": Password,
	}, "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var body sessionBody
	ReadJSON(t, resp, &body)
	require.NotEmpty(t, body.Token)
	return Account{ID: body.User.ID, Username: body.User.Username, Token: body.Token}
}

// Login signs in with a username or email and returns the new token.
func (ts *TestServer) Login(t *testing.T, identifier string, remember bool) string {
	t.Helper()
	resp := ts.PostJSON(t, "/api/auth/login", map[string]any{
		"identifier":  identifier,
		"password":    Password,
		"remember_me": remember,
	}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body sessionBody
	ReadJSON(t, resp, &body)
	return body.Token
}

// --- WebSocket helpers ---

// WSClient is a guild chat connection with a background reader.
type WSClient struct {
	Conn   *websocket.Conn
	t      *testing.T
	readCh chan readResult
}

type readResult struct {
	data []byte
	err  error
}

// ConnectGuildChat dials the chat socket of guildID.
func (ts *TestServer) ConnectGuildChat(t *testing.T, token, guildID string) *WSClient {
	t.Helper()
	conn, resp, err := websocketDial(ts, token, guildID)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	require.NoError(t, err, "WS dial failed")
	wc := &WSClient{Conn: conn, t: t, readCh: make(chan readResult, 256)}
	go wc.readLoop()
	t.Cleanup(wc.Close)
	return wc
}

// websocketDial attempts the chat handshake and returns the raw outcome.
func websocketDial(ts *TestServer, token, guildID string) (*websocket.Conn, *http.Response, error) {
	return websocket.DefaultDialer.Dial(ts.WSURL+"/ws/guilds/"+guildID+"?token="+token, nil)
}

// readLoop continuously reads from the websocket in a dedicated goroutine.
func (wc *WSClient) readLoop() {
	for {
		_, data, err := wc.Conn.ReadMessage()
		wc.readCh <- readResult{data, err}
		if err != nil {
			return
		}
	}
}

// Say posts a chat line.
func (wc *WSClient) Say(text string) {
	wc.t.Helper()
	require.NoError(wc.t, wc.Conn.WriteJSON(apiws.Frame{Type: apiws.FrameChat, Text: text}))
}

// RecvType reads frames until one with the given type arrives.
func (wc *WSClient) RecvType(frameType string, timeout time.Duration) map[string]any {
	wc.t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case res := <-wc.readCh:
			require.NoError(wc.t, res.err, "WS recv failed while waiting for %q", frameType)
			var f map[string]any
			require.NoError(wc.t, json.Unmarshal(res.data, &f))
			if f["type"] == frameType {
				return f
			}
		case <-deadline:
			wc.t.Fatalf("timed out waiting for frame type %q", frameType)
			return nil
		}
	}
}

// Close closes the WebSocket connection.
func (wc *WSClient) Close() {
	_ = wc.Conn.Close()
}

// --- SSE helpers ---

// SSEClient reads server-sent events.
type SSEClient struct {
	t      *testing.T
	cancel context.CancelFunc
	events chan [2]string
}

// ConnectSSE opens the event stream for token and waits for "connected".
func (ts *TestServer) ConnectSSE(t *testing.T, token string) *SSEClient {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/sse?token="+token, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	sc := &SSEClient{t: t, cancel: cancel, events: make(chan [2]string, 64)}
	go func() {
		defer resp.Body.Close()
		defer close(sc.events)
		r := bufio.NewReader(resp.Body)
		var event, data string
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			line = strings.TrimRight(line, "\n")
			switch {
			case line == "" && event != "":
				sc.events <- [2]string{event, data}
				event, data = "", ""
			case strings.HasPrefix(line, "event: "):
				event = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				data = strings.TrimPrefix(line, "data: ")
			}
		}
	}()
	t.Cleanup(cancel)
	sc.Recv("connected", 5*time.Second)
	return sc
}

// Recv waits for the next event named name and returns its data.
func (sc *SSEClient) Recv(name string, timeout time.Duration) string {
	sc.t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case ev, ok := <-sc.events:
			require.True(sc.t, ok, "event stream closed while waiting for %q", name)
			if ev[0] == name {
				return ev[1]
			}
		case <-deadline:
			sc.t.Fatalf("timed out waiting for event %q", name)
			return ""
		}
	}
}

// UniqueID returns a short unique string suitable for usernames and guild names.
var testCounter uint64

func UniqueID(prefix string) string {
	n := atomic.AddUint64(&testCounter, 1)
	return fmt.Sprintf("%s_%d_%d", prefix, time.Now().UnixNano()%100000, n)
}
