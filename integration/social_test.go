package integration

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createGuild(t *testing.T, ts *TestServer, token string) string {
	t.Helper()
	resp := ts.PostJSON(t, "/api/guilds", map[string]any{
		"name":        UniqueID("owls"),
		"description": "We study late.",
	}, token)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var body struct {
		Guild struct {
			ID string `json:"id"`
		} `json:"guild"`
	}
	ReadJSON(t, resp, &body)
	require.NotEmpty(t, body.Guild.ID)
	return body.Guild.ID
}

func TestGuildChatBetweenMembers(t *testing.T) {
	ts := NewTestServer(t)
	alice := ts.Register(t, UniqueID("alice"))
	bob := ts.Register(t, UniqueID("bob"))
	guildID := createGuild(t, ts, alice.Token)

	// Bob cannot listen in before joining.
	_, resp, err := websocketDial(ts, bob.Token, guildID)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	require.Equal(t, http.StatusOK, ts.PostJSON(t, "/api/guilds/"+guildID+"/join", nil, bob.Token).StatusCode)

	aliceWS := ts.ConnectGuildChat(t, alice.Token, guildID)
	history := aliceWS.RecvType("history", 5*time.Second)
	msgs, ok := history["messages"].([]any)
	require.True(t, ok)
	assert.NotEmpty(t, msgs)
	aliceWS.RecvType("presence", 5*time.Second)

	bobWS := ts.ConnectGuildChat(t, bob.Token, guildID)
	bobWS.RecvType("history", 5*time.Second)
	presence := aliceWS.RecvType("presence", 5*time.Second)
	assert.ElementsMatch(t, []any{alice.ID, bob.ID}, presence["online"])

	// A line over the socket reaches both members.
	bobWS.Say("hi owls")
	for _, ws := range []*WSClient{aliceWS, bobWS} {
		chat := ws.RecvType("chat", 5*time.Second)
		msg := chat["message"].(map[string]any)
		assert.Equal(t, "hi owls", msg["text"])
		assert.Equal(t, bob.Username, msg["username"])
	}

	// A line posted over REST is relayed too.
	resp = ts.PostJSON(t, "/api/guilds/"+guildID+"/chat", map[string]any{"text": "hello bob"}, alice.Token)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	chat := bobWS.RecvType("chat", 5*time.Second)
	assert.Equal(t, "hello bob", chat["message"].(map[string]any)["text"])

	// Leaving the socket updates presence for the others.
	bobWS.Close()
	presence = aliceWS.RecvType("presence", 5*time.Second)
	assert.ElementsMatch(t, []any{alice.ID}, presence["online"])
}

func TestGuildContribution(t *testing.T) {
	ts := NewTestServer(t)
	alice := ts.Register(t, UniqueID("alice"))
	guildID := createGuild(t, ts, alice.Token)

	// Nothing to contribute before finishing a quest.
	resp := ts.PostJSON(t, "/api/guilds/"+guildID+"/contribute", nil, alice.Token)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	finishQuest(t, ts, alice.Token)
	resp = ts.PostJSON(t, "/api/guilds/"+guildID+"/contribute", nil, alice.Token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var res struct {
		Quest struct {
			Progress int `json:"progress"`
		} `json:"quest"`
		QuestCompleted bool `json:"quest_completed"`
	}
	ReadJSON(t, resp, &res)
	assert.Equal(t, 1, res.Quest.Progress)
	assert.False(t, res.QuestCompleted)

	// The daily allowance is used up.
	resp = ts.PostJSON(t, "/api/guilds/"+guildID+"/contribute", nil, alice.Token)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
