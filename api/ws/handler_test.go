package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kasuganosora/lifequest/server/cache"
	"github.com/kasuganosora/lifequest/server/config"
	"github.com/kasuganosora/lifequest/server/game/guild"
	"github.com/kasuganosora/lifequest/server/game/progression"
	mw "github.com/kasuganosora/lifequest/server/middleware"
	"github.com/kasuganosora/lifequest/server/model"
	"github.com/kasuganosora/lifequest/server/testutil"
)

func init() { gin.SetMode(gin.TestMode) }

type inbound struct {
	Type     string                   `json:"type"`
	Error    string                   `json:"error"`
	Online   []string                 `json:"online"`
	Messages []model.GuildChatMessage `json:"messages"`
	Message  *model.GuildChatMessage  `json:"message"`
}

type env struct {
	srv     *httptest.Server
	c       cache.Cache
	sec     config.SecurityConfig
	guildID string
}

func setup(t *testing.T, origins ...string) *env {
	t.Helper()
	db := testutil.SetupTestDB(t)
	c, ps := testutil.SetupTestCache(t)
	for _, id := range []string{"alice", "bob"} {
		u := &model.User{ID: id, Username: id, Email: id + "@example.com", Status: model.UserStatusNormal}
		progression.ApplyStats(u)
		require.NoError(t, db.Create(u).Error)
	}
	guilds := guild.NewService(db, ps, config.DefaultGame(), &testutil.Scores{}, &testutil.Events{}, testutil.Logger())
	d, err := guilds.Create(context.Background(), "alice", "Night Owls", "")
	require.NoError(t, err)

	sec := config.SecurityConfig{JWTSecret: "secret", JWTTTLH: time.Hour, AllowedOrigins: origins}
	r := gin.New()
	r.GET("/ws/guilds/:id", NewHandler(guilds, c, ps, sec, testutil.Logger()).ServeGuildChat)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &env{srv: srv, c: c, sec: sec, guildID: d.ID}
}

func (e *env) token(t *testing.T, userID string) string {
	t.Helper()
	tok, err := mw.IssueSession(context.Background(), e.c, e.sec, userID, false)
	require.NoError(t, err)
	return tok
}

func (e *env) dial(t *testing.T, token string, header http.Header) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/ws/guilds/" + e.guildID + "?token=" + token
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	if conn != nil {
		t.Cleanup(func() { _ = conn.Close() })
	}
	return conn, resp, err
}

func read(t *testing.T, conn *websocket.Conn) inbound {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var f inbound
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

func TestServeGuildChat_Rejects(t *testing.T) {
	e := setup(t)

	_, resp, err := e.dial(t, "", nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = e.dial(t, "garbage", nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = e.dial(t, e.token(t, "bob"), nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestServeGuildChat_OriginCheck(t *testing.T) {
	e := setup(t, "https://lifequest.example")

	_, resp, err := e.dial(t, e.token(t, "alice"), http.Header{"Origin": {"https://evil.example"}})
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn, _, err := e.dial(t, e.token(t, "alice"), http.Header{"Origin": {"https://lifequest.example"}})
	require.NoError(t, err)
	assert.Equal(t, FrameHistory, read(t, conn).Type)
}

func TestServeGuildChat_HistoryPresenceAndChat(t *testing.T) {
	e := setup(t)
	conn, _, err := e.dial(t, e.token(t, "alice"), nil)
	require.NoError(t, err)

	history := read(t, conn)
	require.Equal(t, FrameHistory, history.Type)
	require.Len(t, history.Messages, 1)
	assert.Equal(t, guild.BotUsername, history.Messages[0].Username)

	presence := read(t, conn)
	assert.Equal(t, FramePresence, presence.Type)
	assert.Equal(t, []string{"alice"}, presence.Online)

	require.NoError(t, conn.WriteJSON(Frame{Type: FrameChat, Text: "  hello owls "}))
	chat := read(t, conn)
	require.Equal(t, FrameChat, chat.Type)
	require.NotNil(t, chat.Message)
	assert.Equal(t, "hello owls", chat.Message.Text)
	assert.Equal(t, "alice", chat.Message.UserID)

	require.NoError(t, conn.WriteJSON(Frame{Type: FrameChat, Text: "   "}))
	bad := read(t, conn)
	assert.Equal(t, FrameError, bad.Type)
	assert.Equal(t, "Message must be between 1 and 500 characters.", bad.Error)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"dance"}`)))
	assert.Equal(t, "unsupported frame", read(t, conn).Error)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool {
		users, err := e.c.SMembers(context.Background(), OnlineKey(e.guildID))
		return err == nil && len(users) == 0
	}, 2*time.Second, 10*time.Millisecond)
}
