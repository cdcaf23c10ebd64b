package shop

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/kasuganosora/lifequest/server/config"
	"github.com/kasuganosora/lifequest/server/game/account"
	"github.com/kasuganosora/lifequest/server/game/progression"
	"github.com/kasuganosora/lifequest/server/model"
	"github.com/kasuganosora/lifequest/server/testutil"
)

type fixture struct {
	svc    *Service
	db     *gorm.DB
	clock  *testutil.Clock
	scores *testutil.Scores
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		db:     testutil.SetupTestDB(t),
		clock:  testutil.NewClock(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)),
		scores: &testutil.Scores{},
	}
	opts = append([]Option{WithClock(f.clock.Now)}, opts...)
	f.svc = NewService(f.db, config.DefaultGame(), f.scores, &testutil.Events{}, testutil.Logger(), opts...)
	return f
}

func (f *fixture) seedUser(t *testing.T, id string, coins int64) {
	t.Helper()
	u := &model.User{
		ID: id, Username: id, Email: id + "@example.com", Status: model.UserStatusNormal,
		LastLoginDate: "2024-05-01", CurrentStreak: 1, LongestStreak: 1, Coins: coins,
	}
	progression.ApplyStats(u)
	require.NoError(t, f.db.Create(u).Error)
}

func (f *fixture) user(t *testing.T, id string) *model.User {
	t.Helper()
	var u model.User
	require.NoError(t, f.db.First(&u, "id = ?", id).Error)
	return &u
}

func TestPerksAndCatalog(t *testing.T) {
	f := newFixture(t)
	names := make([]string, 0, 4)
	for _, p := range f.svc.Perks() {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{
		"Ad-Free Experience", "Unlimited Quest Refreshes", "Exclusive Avatar Badge", "Priority AI Coach",
	}, names)
	assert.Len(t, f.svc.Catalog(), 3)

	// Callers cannot mutate the shared tables.
	f.svc.Catalog()[0].Price = 0
	it, ok := findItem(ItemExtraRefresh)
	require.True(t, ok)
	assert.Equal(t, int64(50), it.Price)
}

func TestProcessPayment_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedUser(t, "u1", 0)

	res, err := f.svc.ProcessPayment(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, res.User.IsPremium)

	_, err = f.svc.ProcessPayment(ctx, "u1")
	require.NoError(t, err)

	var purchases []model.Purchase
	require.NoError(t, f.db.Where("user_id = ?", "u1").Find(&purchases).Error)
	require.Len(t, purchases, 1)
	assert.Equal(t, int64(PremiumPriceCents), purchases[0].Amount)
	assert.Equal(t, model.CurrencyUSDCents, purchases[0].Currency)

	_, err = f.svc.ProcessPayment(ctx, "ghost")
	assert.ErrorIs(t, err, account.ErrUserNotFound)
}

func TestRestorePurchases(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedUser(t, "paid", 0)
	f.seedUser(t, "free", 0)
	require.NoError(t, f.db.Create(&model.Purchase{ID: "p1", UserID: "paid", Kind: model.PurchaseKindPremium}).Error)
	require.NoError(t, f.db.Model(&model.User{}).Where("id = ?", "free").Update("is_premium", true).Error)

	u, err := f.svc.RestorePurchases(ctx, "paid")
	require.NoError(t, err)
	assert.True(t, u.IsPremium)

	u, err = f.svc.RestorePurchases(ctx, "free")
	require.NoError(t, err)
	assert.False(t, u.IsPremium)
	assert.False(t, f.user(t, "free").IsPremium)
}

func TestWatchAd(t *testing.T) {
	var asked []int
	f := newFixture(t, WithRand(func(n int) int {
		asked = append(asked, n)
		return n - 1
	}))
	f.seedUser(t, "u1", 0)

	res, err := f.svc.WatchAd(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, []int{51}, asked)
	assert.Equal(t, int64(100), res.XPGained)
	assert.Equal(t, int64(100), res.User.TotalXP)
	assert.Equal(t, int64(100), f.user(t, "u1").TotalXP)
	score, _ := f.scores.Get("u1")
	assert.Equal(t, int64(100), score)
}

func TestWatchAd_RangeWithDefaultRand(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "u1", 0)
	for i := 0; i < 20; i++ {
		res, err := f.svc.WatchAd(context.Background(), "u1")
		require.NoError(t, err)
		assert.GreaterOrEqual(t, res.XPGained, int64(50))
		assert.LessOrEqual(t, res.XPGained, int64(100))
	}
}

func TestBuy_Cosmetic(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedUser(t, "u1", 350)

	res, err := f.svc.Buy(ctx, "u1", ItemGoldenBadge)
	require.NoError(t, err)
	assert.Equal(t, int64(50), res.User.Coins)

	_, err = f.svc.Buy(ctx, "u1", ItemGoldenBadge)
	assert.ErrorIs(t, err, ErrAlreadyOwned)

	_, err = f.svc.Buy(ctx, "u1", ItemCoachTheme)
	assert.ErrorIs(t, err, ErrNotEnoughCoins)

	owned, err := f.svc.Owned(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, owned, 1)
	assert.Equal(t, ItemGoldenBadge, owned[0].ItemID)
	assert.Equal(t, int64(50), f.user(t, "u1").Coins)

	_, err = f.svc.Buy(ctx, "u1", "dragon")
	assert.ErrorIs(t, err, ErrItemNotFound)
}

func TestBuy_ExtraRefresh(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedUser(t, "u1", 1000)

	for i := 0; i < maxBonusRefreshes; i++ {
		_, err := f.svc.Buy(ctx, "u1", ItemExtraRefresh)
		require.NoError(t, err)
	}
	_, err := f.svc.Buy(ctx, "u1", ItemExtraRefresh)
	assert.ErrorIs(t, err, ErrRefreshCap)

	u := f.user(t, "u1")
	assert.Equal(t, maxBonusRefreshes, u.BonusRefreshesToday)
	assert.Equal(t, int64(1000-50*maxBonusRefreshes), u.Coins)

	// Bought refreshes do not carry over.
	f.clock.Advance(24 * time.Hour)
	res, err := f.svc.Buy(ctx, "u1", ItemExtraRefresh)
	require.NoError(t, err)
	assert.Equal(t, 1, res.User.BonusRefreshesToday)

	require.NoError(t, f.db.Model(&model.User{}).Where("id = ?", "u1").Update("is_premium", true).Error)
	_, err = f.svc.Buy(ctx, "u1", ItemExtraRefresh)
	assert.ErrorIs(t, err, ErrPremiumUnlimited)
}
