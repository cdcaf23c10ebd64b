package guild

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/kasuganosora/lifequest/server/cache"
	"github.com/kasuganosora/lifequest/server/config"
	"github.com/kasuganosora/lifequest/server/game/progression"
	"github.com/kasuganosora/lifequest/server/model"
	"github.com/kasuganosora/lifequest/server/testutil"
)

type fixture struct {
	svc    *Service
	db     *gorm.DB
	ps     cache.PubSub
	clock  *testutil.Clock
	events *testutil.Events
	scores *testutil.Scores
}

func newFixture(t *testing.T, game config.GameConfig) *fixture {
	t.Helper()
	_, ps := testutil.SetupTestCache(t)
	f := &fixture{
		db:     testutil.SetupTestDB(t),
		ps:     ps,
		clock:  testutil.NewClock(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)),
		events: &testutil.Events{},
		scores: &testutil.Scores{},
	}
	f.svc = NewService(f.db, ps, game, f.scores, f.events, testutil.Logger(), WithClock(f.clock.Now))
	return f
}

func (f *fixture) seedUser(t *testing.T, id string, completedToday int) *model.User {
	t.Helper()
	u := &model.User{
		ID: id, Username: id, Email: id + "@example.com", Status: model.UserStatusNormal,
		LastLoginDate: "2024-05-01", CurrentStreak: 1, LongestStreak: 1,
		QuestsCompletedToday: completedToday,
	}
	progression.ApplyStats(u)
	require.NoError(t, f.db.Create(u).Error)
	return u
}

func (f *fixture) user(t *testing.T, id string) *model.User {
	t.Helper()
	var u model.User
	require.NoError(t, f.db.First(&u, "id = ?", id).Error)
	return &u
}

func TestCreate(t *testing.T) {
	f := newFixture(t, config.DefaultGame())
	f.seedUser(t, "alice", 0)

	d, err := f.svc.Create(context.Background(), "alice", "  Night Owls ", "We study late.")
	require.NoError(t, err)
	assert.Equal(t, "Night Owls", d.Name)
	assert.Equal(t, "https://picsum.photos/seed/Night%20Owls/200/200", d.ImageURL)
	assert.Equal(t, 50, d.MaxMembers)
	assert.Equal(t, "alice", d.LeaderID)
	assert.Equal(t, 1, d.MemberCount)
	require.Len(t, d.Members, 1)
	assert.True(t, d.Members[0].IsLeader)

	require.Len(t, d.Chat, 1)
	assert.Equal(t, BotUsername, d.Chat[0].Username)
	assert.Equal(t, "Welcome to Night Owls!", d.Chat[0].Text)

	require.NotNil(t, d.Quest)
	assert.Equal(t, "Community Growth", d.Quest.Title)
	assert.Equal(t, "Work together to complete 100 quests as a guild!", d.Quest.Description)
	assert.Equal(t, model.SkillSocial, d.Quest.Type)
	assert.Equal(t, model.DifficultyHard, d.Quest.Difficulty)
	assert.Equal(t, int64(10000), d.Quest.XPReward)
	assert.Equal(t, 100, d.Quest.Target)
	assert.Equal(t, 30*24*60, d.Quest.DurationMinutes)
	assert.True(t, d.Quest.ExpiresAt.Equal(f.clock.Now().Add(30*24*time.Hour)))
	assert.JSONEq(t, `[]`, string(d.Quest.Contributors))
}

func TestCreate_Validation(t *testing.T) {
	f := newFixture(t, config.DefaultGame())
	ctx := context.Background()
	f.seedUser(t, "alice", 0)

	_, err := f.svc.Create(ctx, "alice", "Owls", "")
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, "alice", "OWLS", "")
	assert.ErrorIs(t, err, ErrGuildNameTaken)
	_, err = f.svc.Create(ctx, "alice", "ab", "")
	assert.ErrorIs(t, err, ErrInvalidName)
	_, err = f.svc.Create(ctx, "ghost", "Ghosts", "")
	assert.Error(t, err)
}

func TestList_CountsMembers(t *testing.T) {
	f := newFixture(t, config.DefaultGame())
	ctx := context.Background()
	f.seedUser(t, "alice", 0)
	f.seedUser(t, "bob", 0)

	first, err := f.svc.Create(ctx, "alice", "First", "")
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	_, err = f.svc.Create(ctx, "bob", "Second", "")
	require.NoError(t, err)
	_, err = f.svc.Join(ctx, "bob", first.ID)
	require.NoError(t, err)

	guilds, err := f.svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, guilds, 2)
	assert.Equal(t, "Second", guilds[0].Name)
	assert.Equal(t, 1, guilds[0].MemberCount)
	assert.Equal(t, "First", guilds[1].Name)
	assert.Equal(t, 2, guilds[1].MemberCount)
}

func TestJoin(t *testing.T) {
	game := config.DefaultGame()
	game.GuildMaxMembers = 2
	f := newFixture(t, game)
	ctx := context.Background()
	f.seedUser(t, "alice", 0)
	f.seedUser(t, "bob", 0)
	f.seedUser(t, "carol", 0)

	g, err := f.svc.Create(ctx, "alice", "Owls", "")
	require.NoError(t, err)

	f.clock.Advance(time.Second)
	d, err := f.svc.Join(ctx, "bob", g.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, d.MemberCount)
	require.Len(t, d.Chat, 2)
	assert.Equal(t, "bob has joined the guild!", d.Chat[1].Text)

	_, err = f.svc.Join(ctx, "bob", g.ID)
	assert.ErrorIs(t, err, ErrAlreadyMember)
	_, err = f.svc.Join(ctx, "carol", g.ID)
	assert.ErrorIs(t, err, ErrGuildFull)
	_, err = f.svc.Join(ctx, "carol", "nope")
	assert.ErrorIs(t, err, ErrGuildNotFound)
}

func TestLeave_TransfersLeadershipAndDissolves(t *testing.T) {
	f := newFixture(t, config.DefaultGame())
	ctx := context.Background()
	f.seedUser(t, "alice", 0)
	f.seedUser(t, "bob", 0)

	g, err := f.svc.Create(ctx, "alice", "Owls", "")
	require.NoError(t, err)
	f.clock.Advance(time.Second)
	_, err = f.svc.Join(ctx, "bob", g.ID)
	require.NoError(t, err)

	f.clock.Advance(time.Second)
	require.NoError(t, f.svc.Leave(ctx, "alice", g.ID))
	d, err := f.svc.Get(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, "bob", d.LeaderID)
	require.Len(t, d.Members, 1)
	last := d.Chat[len(d.Chat)-2:]
	assert.Equal(t, "alice has left the guild.", last[0].Text)
	assert.Equal(t, "bob is now the guild leader.", last[1].Text)

	assert.ErrorIs(t, f.svc.Leave(ctx, "alice", g.ID), ErrNotMember)

	require.NoError(t, f.svc.Leave(ctx, "bob", g.ID))
	_, err = f.svc.Get(ctx, g.ID)
	assert.ErrorIs(t, err, ErrGuildNotFound)
	var n int64
	f.db.Model(&model.GuildQuest{}).Where("guild_id = ?", g.ID).Count(&n)
	assert.Zero(t, n)
}

func TestContribute(t *testing.T) {
	f := newFixture(t, config.DefaultGame())
	ctx := context.Background()
	f.seedUser(t, "alice", 2)
	f.seedUser(t, "bob", 0)
	g, err := f.svc.Create(ctx, "alice", "Owls", "")
	require.NoError(t, err)

	_, err = f.svc.Contribute(ctx, "bob", g.ID)
	assert.ErrorIs(t, err, ErrNotMember)

	res, err := f.svc.Contribute(ctx, "alice", g.ID)
	require.NoError(t, err)
	assert.Equal(t, "Contribution successful! You earned 50 XP.", res.Message)
	assert.Equal(t, 1, res.Quest.Progress)
	assert.Equal(t, int64(50), res.User.TotalXP)
	assert.Equal(t, 1, res.User.QuestsContributedToGuildToday)

	res, err = f.svc.Contribute(ctx, "alice", g.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Quest.Progress)
	assert.JSONEq(t, `["alice"]`, string(res.Quest.Contributors), "contributor listed once")

	_, err = f.svc.Contribute(ctx, "alice", g.ID)
	assert.ErrorIs(t, err, ErrNothingToContribute)

	_, err = f.svc.Join(ctx, "bob", g.ID)
	require.NoError(t, err)
	_, err = f.svc.Contribute(ctx, "bob", g.ID)
	assert.ErrorIs(t, err, ErrNothingToContribute)
}

func TestContribute_CompletionPaysEveryMemberOnce(t *testing.T) {
	game := config.DefaultGame()
	game.GuildQuestTarget = 2
	game.GuildQuestXPReward = 1000
	f := newFixture(t, game)
	ctx := context.Background()
	f.seedUser(t, "alice", 1)
	f.seedUser(t, "bob", 1)
	f.seedUser(t, "carol", 0)
	f.seedUser(t, "outsider", 0)

	g, err := f.svc.Create(ctx, "alice", "Owls", "")
	require.NoError(t, err)
	for _, id := range []string{"bob", "carol"} {
		_, err = f.svc.Join(ctx, id, g.ID)
		require.NoError(t, err)
	}

	_, err = f.svc.Contribute(ctx, "alice", g.ID)
	require.NoError(t, err)
	res, err := f.svc.Contribute(ctx, "bob", g.ID)
	require.NoError(t, err)
	assert.True(t, res.QuestCompleted)
	assert.True(t, res.Quest.IsCompleted)
	assert.Equal(t, "You completed the final quest for the guild! All members received 1,000 XP!", res.Message)
	assert.Equal(t, int64(1050), res.User.TotalXP)
	assert.True(t, res.LeveledUp)

	assert.Equal(t, int64(1050), f.user(t, "alice").TotalXP)
	assert.Equal(t, int64(1050), f.user(t, "bob").TotalXP)
	assert.Equal(t, int64(1000), f.user(t, "carol").TotalXP)
	assert.Equal(t, int64(0), f.user(t, "outsider").TotalXP)
	assert.Contains(t, f.events.Types("carol"), "guild_quest_completed")
	assert.Contains(t, f.events.Types("carol"), "level_up")
	score, _ := f.scores.Get("carol")
	assert.Equal(t, int64(1000), score)

	require.NoError(t, f.db.Model(&model.User{}).Where("id = ?", "carol").Update("quests_completed_today", 1).Error)
	_, err = f.svc.Contribute(ctx, "carol", g.ID)
	assert.ErrorIs(t, err, ErrQuestCompleted)
}

func TestContribute_ExpiredAndRenewed(t *testing.T) {
	f := newFixture(t, config.DefaultGame())
	ctx := context.Background()
	f.seedUser(t, "alice", 0)
	g, err := f.svc.Create(ctx, "alice", "Owls", "")
	require.NoError(t, err)
	require.NoError(t, f.db.Model(&model.GuildQuest{}).Where("guild_id = ?", g.ID).
		Updates(map[string]any{"progress": 7, "contributors": `["alice"]`}).Error)

	f.clock.Advance(31 * 24 * time.Hour)
	require.NoError(t, f.db.Model(&model.User{}).Where("id = ?", "alice").
		Updates(map[string]any{"quests_completed_today": 1, "last_login_date": progression.Today(f.clock.Now(), nil)}).Error)
	_, err = f.svc.Contribute(ctx, "alice", g.ID)
	assert.ErrorIs(t, err, ErrQuestExpired)

	n, err := f.svc.RenewExpiredQuests(ctx, f.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	d, err := f.svc.Get(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, d.Quest.Progress)
	assert.JSONEq(t, `[]`, string(d.Quest.Contributors))
	assert.True(t, d.Quest.ExpiresAt.After(f.clock.Now()))

	res, err := f.svc.Contribute(ctx, "alice", g.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Quest.Progress)
}

func TestPostMessage(t *testing.T) {
	f := newFixture(t, config.DefaultGame())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.seedUser(t, "alice", 0)
	f.seedUser(t, "bob", 0)
	g, err := f.svc.Create(ctx, "alice", "Owls", "")
	require.NoError(t, err)

	ch, unsub, err := f.ps.Subscribe(ctx, ChatChannel(g.ID))
	require.NoError(t, err)
	defer unsub()

	_, err = f.svc.PostMessage(ctx, "bob", g.ID, "hi")
	assert.ErrorIs(t, err, ErrNotMember)
	_, err = f.svc.PostMessage(ctx, "alice", g.ID, "   ")
	assert.ErrorIs(t, err, ErrInvalidMessage)

	f.clock.Advance(time.Second)
	msg, err := f.svc.PostMessage(ctx, "alice", g.ID, "  hello owls  ")
	require.NoError(t, err)
	assert.Equal(t, "hello owls", msg.Text)
	assert.Equal(t, "alice", msg.Username)

	select {
	case m := <-ch:
		var ev ChatEvent
		require.NoError(t, json.Unmarshal([]byte(m.Payload), &ev))
		assert.Equal(t, "chat", ev.Type)
		assert.Equal(t, msg.ID, ev.Message.ID)
	case <-time.After(time.Second):
		t.Fatal("chat line not published")
	}

	msgs, err := f.svc.Messages(ctx, g.ID, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "Welcome to Owls!", msgs[0].Text)
	assert.Equal(t, "hello owls", msgs[1].Text)
}

func TestContribute_ConcurrentFinishersPayOnce(t *testing.T) {
	game := config.DefaultGame()
	game.GuildQuestTarget = 1
	game.GuildQuestXPReward = 500
	f := newFixture(t, game)
	ctx := context.Background()
	f.seedUser(t, "alice", 1)
	f.seedUser(t, "bob", 1)
	g, err := f.svc.Create(ctx, "alice", "Owls", "")
	require.NoError(t, err)
	_, err = f.svc.Join(ctx, "bob", g.ID)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, id := range []string{"alice", "bob"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.svc.Contribute(ctx, id, g.ID)
		}()
	}
	wg.Wait()

	var succeeded int
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, ErrQuestCompleted)
	}
	assert.Equal(t, 1, succeeded)

	total := f.user(t, "alice").TotalXP + f.user(t, "bob").TotalXP
	assert.Equal(t, int64(2*500+game.ContributionXP), total, "each member paid once, one contribution bonus")
}

func TestJoin_ConcurrentJoinsRespectCapacity(t *testing.T) {
	game := config.DefaultGame()
	game.GuildMaxMembers = 2
	f := newFixture(t, game)
	ctx := context.Background()
	f.seedUser(t, "alice", 0)
	f.seedUser(t, "bob", 0)
	f.seedUser(t, "carol", 0)
	g, err := f.svc.Create(ctx, "alice", "Owls", "")
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, id := range []string{"bob", "carol"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.svc.Join(ctx, id, g.ID)
		}()
	}
	wg.Wait()

	var joined int
	for _, err := range errs {
		if err == nil {
			joined++
			continue
		}
		assert.ErrorIs(t, err, ErrGuildFull)
	}
	assert.Equal(t, 1, joined)
	var n int64
	require.NoError(t, f.db.Model(&model.GuildMember{}).Where("guild_id = ?", g.ID).Count(&n).Error)
	assert.Equal(t, int64(2), n)
}

func TestForUpdate_LocksRowsOnMySQL(t *testing.T) {
	db, err := gorm.Open(mysql.New(mysql.Config{
		DSN:                       "lifequest:secret@tcp(127.0.0.1:3306)/lifequest?parseTime=true",
		SkipInitializeWithVersion: true,
	}), &gorm.Config{DryRun: true, DisableAutomaticPing: true})
	require.NoError(t, err)

	var q model.GuildQuest
	stmt := forUpdate(db).First(&q, "guild_id = ?", "g1").Statement
	assert.Contains(t, stmt.SQL.String(), "FOR UPDATE")

	var g model.Guild
	stmt = forUpdate(db).First(&g, "id = ?", "g1").Statement
	assert.Contains(t, stmt.SQL.String(), "FOR UPDATE")
}

func TestContribute_BannedMembersStayOffLeaderboard(t *testing.T) {
	game := config.DefaultGame()
	game.GuildQuestTarget = 1
	game.GuildQuestXPReward = 300
	f := newFixture(t, game)
	ctx := context.Background()
	f.seedUser(t, "alice", 1)
	f.seedUser(t, "mallory", 0)
	g, err := f.svc.Create(ctx, "alice", "Owls", "")
	require.NoError(t, err)
	_, err = f.svc.Join(ctx, "mallory", g.ID)
	require.NoError(t, err)
	require.NoError(t, f.db.Model(&model.User{}).Where("id = ?", "mallory").
		Update("status", model.UserStatusBanned).Error)

	res, err := f.svc.Contribute(ctx, "alice", g.ID)
	require.NoError(t, err)
	require.True(t, res.QuestCompleted)

	assert.Equal(t, int64(300), f.user(t, "mallory").TotalXP)
	_, ok := f.scores.Get("mallory")
	assert.False(t, ok)
	score, ok := f.scores.Get("alice")
	require.True(t, ok)
	assert.Equal(t, res.User.TotalXP, score)
}
