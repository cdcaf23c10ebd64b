// Package ranking maintains the XP leaderboard.
package ranking

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/kasuganosora/lifequest/server/cache"
	"github.com/kasuganosora/lifequest/server/model"
)

const (
	zKey       = "leaderboard:xp"
	MaxLimit   = 100
	defaultTop = 50
)

// Entry is one leaderboard row.
type Entry struct {
	Rank      int    `json:"rank"`
	UserID    string `json:"user_id"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatar_url"`
	Level     int    `json:"level"`
	RankTitle string `json:"rank_title"`
	TotalXP   int64  `json:"total_xp"`
}

// Recorder receives XP changes from the services.
type Recorder interface {
	Update(ctx context.Context, userID string, totalXP int64)
	Remove(ctx context.Context, userID string)
}

// Board is a sorted-set projection of users.total_xp. The database stays
// authoritative; the set is rebuilt from it when empty.
type Board struct {
	db     *gorm.DB
	c      cache.Cache
	logger *zap.Logger
}

// NewBoard creates a Board.
func NewBoard(db *gorm.DB, c cache.Cache, logger *zap.Logger) *Board {
	return &Board{db: db, c: c, logger: logger}
}

// Update records a user's new total XP.
func (b *Board) Update(ctx context.Context, userID string, totalXP int64) {
	if err := b.c.ZAdd(ctx, zKey, float64(totalXP), userID); err != nil {
		b.logger.Warn("leaderboard update failed", zap.String("user_id", userID), zap.Error(err))
	}
}

// Remove drops a user from the board.
func (b *Board) Remove(ctx context.Context, userID string) {
	if err := b.c.ZRem(ctx, zKey, userID); err != nil {
		b.logger.Warn("leaderboard remove failed", zap.String("user_id", userID), zap.Error(err))
	}
}

// Rebuild repopulates the set from the database.
func (b *Board) Rebuild(ctx context.Context) error {
	var rows []struct {
		ID      string
		TotalXP int64
	}
	if err := b.db.WithContext(ctx).Model(&model.User{}).
		Where("status = ?", model.UserStatusNormal).
		Select("id, total_xp").Find(&rows).Error; err != nil {
		return fmt.Errorf("leaderboard rebuild: %w", err)
	}
	if err := b.c.Del(ctx, zKey); err != nil {
		return fmt.Errorf("leaderboard rebuild: %w", err)
	}
	for _, r := range rows {
		if err := b.c.ZAdd(ctx, zKey, float64(r.TotalXP), r.ID); err != nil {
			return fmt.Errorf("leaderboard rebuild: %w", err)
		}
	}
	b.logger.Debug("leaderboard rebuilt", zap.Int("users", len(rows)))
	return nil
}

// Top returns the first limit users by total XP, best first.
func (b *Board) Top(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = defaultTop
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	n, err := b.c.ZCard(ctx, zKey)
	if err != nil || n == 0 {
		if err := b.Rebuild(ctx); err != nil {
			b.logger.Warn("leaderboard cache unavailable, reading database", zap.Error(err))
			return b.topFromDB(ctx, limit)
		}
	}
	members, err := b.c.ZRevRangeWithScores(ctx, zKey, 0, int64(limit-1))
	if err != nil {
		return b.topFromDB(ctx, limit)
	}
	if len(members) == 0 {
		return []Entry{}, nil
	}

	ids := make([]string, len(members))
	for i, m := range members {
		ids[i] = m.Member
	}
	var users []model.User
	if err := b.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, fmt.Errorf("leaderboard: %w", err)
	}
	byID := make(map[string]*model.User, len(users))
	for i := range users {
		byID[users[i].ID] = &users[i]
	}

	entries := make([]Entry, 0, len(members))
	for _, m := range members {
		u, ok := byID[m.Member]
		if !ok {
			// Deleted since the set was written.
			b.Remove(ctx, m.Member)
			continue
		}
		entries = append(entries, entryOf(len(entries)+1, u))
	}
	return entries, nil
}

func (b *Board) topFromDB(ctx context.Context, limit int) ([]Entry, error) {
	var users []model.User
	if err := b.db.WithContext(ctx).
		Where("status = ?", model.UserStatusNormal).
		Order("total_xp DESC").Order("username ASC").
		Limit(limit).Find(&users).Error; err != nil {
		return nil, fmt.Errorf("leaderboard: %w", err)
	}
	entries := make([]Entry, len(users))
	for i := range users {
		entries[i] = entryOf(i+1, &users[i])
	}
	return entries, nil
}

func entryOf(rank int, u *model.User) Entry {
	return Entry{
		Rank:      rank,
		UserID:    u.ID,
		Username:  u.Username,
		AvatarURL: u.AvatarURL,
		Level:     u.Level,
		RankTitle: u.RankTitle,
		TotalXP:   u.TotalXP,
	}
}
