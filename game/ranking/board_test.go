package ranking

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/kasuganosora/lifequest/server/cache"
	"github.com/kasuganosora/lifequest/server/model"
	"github.com/kasuganosora/lifequest/server/testutil"
)

func seedUser(t *testing.T, db *gorm.DB, id, name string, xp int64) {
	t.Helper()
	require.NoError(t, db.Create(&model.User{
		ID: id, Username: name, Email: name + "@example.com", TotalXP: xp, Level: 1,
		Status: model.UserStatusNormal,
	}).Error)
}

func TestBoard_TopRebuildsFromDB(t *testing.T) {
	db := testutil.SetupTestDB(t)
	c, _ := testutil.SetupTestCache(t)
	seedUser(t, db, "a", "alice", 500)
	seedUser(t, db, "b", "bob", 1500)
	seedUser(t, db, "c", "carol", 900)

	b := NewBoard(db, c, testutil.Logger())
	entries, err := b.Top(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "bob", entries[0].Username)
	assert.Equal(t, 1, entries[0].Rank)
	assert.Equal(t, "carol", entries[1].Username)
	assert.Equal(t, "alice", entries[2].Username)
	assert.Equal(t, 3, entries[2].Rank)
}

func TestBoard_UpdateAndRemove(t *testing.T) {
	db := testutil.SetupTestDB(t)
	c, _ := testutil.SetupTestCache(t)
	seedUser(t, db, "a", "alice", 500)
	seedUser(t, db, "b", "bob", 1500)
	ctx := context.Background()

	b := NewBoard(db, c, testutil.Logger())
	require.NoError(t, b.Rebuild(ctx))

	b.Update(ctx, "a", 2000)
	entries, err := b.Top(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "a", entries[0].UserID)
	assert.Equal(t, int64(2000), entries[0].TotalXP, "score comes from the user row")

	b.Remove(ctx, "a")
	entries, err = b.Top(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "b", entries[0].UserID)
}

func TestBoard_SkipsDeletedUsers(t *testing.T) {
	db := testutil.SetupTestDB(t)
	c, _ := testutil.SetupTestCache(t)
	seedUser(t, db, "a", "alice", 500)
	seedUser(t, db, "b", "bob", 100)
	ctx := context.Background()

	b := NewBoard(db, c, testutil.Logger())
	require.NoError(t, b.Rebuild(ctx))
	require.NoError(t, db.Delete(&model.User{}, "id = ?", "a").Error)

	entries, err := b.Top(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 1, entries[0].Rank)
	assert.Equal(t, "bob", entries[0].Username)

	n, err := c.ZCard(ctx, zKey)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

type brokenCache struct{ cache.Cache }

var errDown = errors.New("cache down")

func (brokenCache) ZCard(context.Context, string) (int64, error) { return 0, errDown }
func (brokenCache) Del(context.Context, ...string) error         { return errDown }
func (brokenCache) ZRevRangeWithScores(context.Context, string, int64, int64) ([]cache.ScoredMember, error) {
	return nil, errDown
}

func TestBoard_FallsBackToDB(t *testing.T) {
	db := testutil.SetupTestDB(t)
	c, _ := testutil.SetupTestCache(t)
	seedUser(t, db, "a", "alice", 500)
	seedUser(t, db, "b", "bob", 1500)

	b := NewBoard(db, brokenCache{c}, testutil.Logger())
	entries, err := b.Top(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "bob", entries[0].Username)
}

func TestBoard_LimitClamped(t *testing.T) {
	db := testutil.SetupTestDB(t)
	c, _ := testutil.SetupTestCache(t)
	for i := 0; i < 3; i++ {
		seedUser(t, db, string(rune('a'+i)), "user"+string(rune('a'+i)), int64(i))
	}
	b := NewBoard(db, c, testutil.Logger())
	entries, err := b.Top(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}
