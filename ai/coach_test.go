package ai

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kasuganosora/lifequest/server/testutil"
)

type echoGenerator struct {
	Templates
	seen []int
}

func (g *echoGenerator) Chat(_ context.Context, history []ChatMessage, message string) (string, error) {
	g.seen = append(g.seen, len(history))
	return "echo " + message, nil
}

func TestCoach_RecordsAndCapsHistory(t *testing.T) {
	c, _ := testutil.SetupTestCache(t)
	gen := &echoGenerator{}
	co := NewCoach(gen, c, 2, testutil.Logger())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		reply, err := co.Ask(ctx, "u1", fmt.Sprintf(" msg %d ", i))
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("echo msg %d", i), reply)
	}
	assert.Equal(t, []int{0, 2, 4}, gen.seen)

	h, err := co.History(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, h, 4, "two turns kept")
	assert.Equal(t, ChatMessage{Role: RoleUser, Text: "msg 1"}, h[0])
	assert.Equal(t, ChatMessage{Role: RoleBot, Text: "echo msg 2"}, h[3])

	other, err := co.History(ctx, "u2")
	require.NoError(t, err)
	assert.Empty(t, other)

	require.NoError(t, co.Reset(ctx, "u1"))
	h, err = co.History(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, h)
}

func TestCoach_FallbackOnFailure(t *testing.T) {
	c, _ := testutil.SetupTestCache(t)
	co := NewCoach(errGenerator{}, c, 0, testutil.Logger())
	ctx := context.Background()

	reply, err := co.Ask(ctx, "u1", "hello")
	require.NoError(t, err)
	assert.Equal(t, ChatFallback, reply)

	h, err := co.History(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, h, "failed turns are not recorded")
}

func TestCoach_DefaultKeepsTwentyTurns(t *testing.T) {
	c, _ := testutil.SetupTestCache(t)
	co := NewCoach(&echoGenerator{}, c, 0, testutil.Logger())
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		_, err := co.Ask(ctx, "u1", fmt.Sprintf("msg %d", i))
		require.NoError(t, err)
	}
	h, err := co.History(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, h, 40)
	assert.Equal(t, ChatMessage{Role: RoleUser, Text: "msg 5"}, h[0])
	assert.Equal(t, ChatMessage{Role: RoleBot, Text: "echo msg 24"}, h[39])
}
