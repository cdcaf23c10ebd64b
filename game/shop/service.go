// Package shop sells the Adventure Pass and coin-priced items, and rewards
// watched ads.
package shop

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/kasuganosora/lifequest/server/config"
	"github.com/kasuganosora/lifequest/server/game/account"
	"github.com/kasuganosora/lifequest/server/game/notify"
	"github.com/kasuganosora/lifequest/server/game/progression"
	"github.com/kasuganosora/lifequest/server/game/ranking"
	"github.com/kasuganosora/lifequest/server/model"
)

const (
	adMinXP = 50
	adMaxXP = 100
)

// Option customises a Service.
type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithRand replaces the random source; intN returns a value in [0, n).
func WithRand(intN func(n int) int) Option {
	return func(s *Service) { s.intN = intN }
}

// Service handles shop operations.
type Service struct {
	db       *gorm.DB
	loc      *time.Location
	board    ranking.Recorder
	notifier notify.Notifier
	logger   *zap.Logger
	now      func() time.Time
	intN     func(n int) int
}

// NewService creates a shop Service.
func NewService(db *gorm.DB, game config.GameConfig, board ranking.Recorder, n notify.Notifier, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		db:       db,
		loc:      game.Location(),
		board:    board,
		notifier: n,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
		intN:     rand.IntN,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) today() string { return progression.Today(s.now(), s.loc) }

// Perks lists the Adventure Pass benefits.
func (s *Service) Perks() []Perk { return append([]Perk(nil), perks...) }

// Catalog lists the coin shop.
func (s *Service) Catalog() []Item { return append([]Item(nil), catalog...) }

// Owned lists the cosmetics the user owns.
func (s *Service) Owned(ctx context.Context, userID string) ([]model.UserItem, error) {
	var items []model.UserItem
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// UserResult carries an updated user and what happened to their progress.
type UserResult struct {
	User *model.User `json:"user"`
	account.Progress
}

// ProcessPayment grants the Adventure Pass. Paying twice records nothing new.
func (s *Service) ProcessPayment(ctx context.Context, userID string) (*UserResult, error) {
	res := &UserResult{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		u, bonus, up, err := account.LoadForUpdate(tx, userID, s.today())
		if err != nil {
			return err
		}
		res.User = u
		res.Progress = account.Progress{LeveledUp: up, StreakBonus: bonus}
		if u.IsPremium {
			return nil
		}
		u.IsPremium = true
		if err := tx.Model(u).Update("is_premium", true).Error; err != nil {
			return err
		}
		return tx.Create(&model.Purchase{
			ID:        uuid.NewString(),
			UserID:    userID,
			Kind:      model.PurchaseKindPremium,
			Amount:    PremiumPriceCents,
			Currency:  model.CurrencyUSDCents,
			CreatedAt: s.now(),
		}).Error
	})
	if err != nil {
		return nil, err
	}
	account.Broadcast(ctx, s.board, s.notifier, res.User, res.Progress)
	s.logger.Info("premium granted", zap.String("user_id", userID))
	return res, nil
}

// RestorePurchases sets is_premium from the user's purchase history.
func (s *Service) RestorePurchases(ctx context.Context, userID string) (*model.User, error) {
	var u *model.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		u, _, _, err = account.LoadForUpdate(tx, userID, s.today())
		if err != nil {
			return err
		}
		var n int64
		if err := tx.Model(&model.Purchase{}).
			Where("user_id = ? AND kind = ?", userID, model.PurchaseKindPremium).
			Count(&n).Error; err != nil {
			return err
		}
		u.IsPremium = n > 0
		return tx.Model(u).Update("is_premium", u.IsPremium).Error
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

// AdResult is returned by WatchAd.
type AdResult struct {
	XPGained int64 `json:"xp_gained"`
	UserResult
}

// WatchAd grants 50-100 XP.
func (s *Service) WatchAd(ctx context.Context, userID string) (*AdResult, error) {
	res := &AdResult{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		u, bonus, up, err := account.LoadForUpdate(tx, userID, s.today())
		if err != nil {
			return err
		}
		res.User = u
		res.Progress = account.Progress{LeveledUp: up, StreakBonus: bonus}
		res.XPGained = int64(adMinXP + s.intN(adMaxXP-adMinXP+1))
		if progression.AddXP(u, res.XPGained) {
			res.LeveledUp = true
		}
		return tx.Save(u).Error
	})
	if err != nil {
		return nil, err
	}
	account.Broadcast(ctx, s.board, s.notifier, res.User, res.Progress)
	return res, nil
}

// BuyResult is returned by Buy.
type BuyResult struct {
	Item Item        `json:"item"`
	User *model.User `json:"user"`
}

// Buy spends coins on a catalog item.
func (s *Service) Buy(ctx context.Context, userID, itemID string) (*BuyResult, error) {
	item, ok := findItem(itemID)
	if !ok {
		return nil, ErrItemNotFound
	}
	res := &BuyResult{Item: item}
	var progress account.Progress
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		u, bonus, up, err := account.LoadForUpdate(tx, userID, s.today())
		if err != nil {
			return err
		}
		res.User = u
		progress = account.Progress{LeveledUp: up, StreakBonus: bonus}

		switch item.Kind {
		case KindConsumable:
			if u.IsPremium {
				return ErrPremiumUnlimited
			}
			if u.BonusRefreshesToday >= maxBonusRefreshes {
				return ErrRefreshCap
			}
		case KindCosmetic:
			var n int64
			if err := tx.Model(&model.UserItem{}).Where("user_id = ? AND item_id = ?", userID, item.ID).Count(&n).Error; err != nil {
				return err
			}
			if n > 0 {
				return ErrAlreadyOwned
			}
		}
		if u.Coins < item.Price {
			return ErrNotEnoughCoins
		}

		u.Coins -= item.Price
		updates := map[string]any{"coins": u.Coins}
		if item.Kind == KindConsumable {
			u.BonusRefreshesToday++
			updates["bonus_refreshes_today"] = u.BonusRefreshesToday
		} else if err := tx.Create(&model.UserItem{UserID: userID, ItemID: item.ID, Qty: 1, CreatedAt: s.now()}).Error; err != nil {
			return err
		}
		if err := tx.Model(u).Updates(updates).Error; err != nil {
			return err
		}
		return tx.Create(&model.Purchase{
			ID:        uuid.NewString(),
			UserID:    userID,
			Kind:      item.ID,
			Amount:    item.Price,
			Currency:  model.CurrencyCoins,
			CreatedAt: s.now(),
		}).Error
	})
	if err != nil {
		return nil, err
	}
	account.Broadcast(ctx, s.board, s.notifier, res.User, progress)
	s.logger.Info("item bought", zap.String("user_id", userID), zap.String("item_id", item.ID), zap.Int64("price", item.Price))
	return res, nil
}
