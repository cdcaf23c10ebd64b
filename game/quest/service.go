// Package quest runs the personal quest loop: AI-drafted refreshes, timed
// starts, completion rewards and expiry.
package quest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/kasuganosora/lifequest/server/ai"
	"github.com/kasuganosora/lifequest/server/cache"
	"github.com/kasuganosora/lifequest/server/config"
	"github.com/kasuganosora/lifequest/server/game/account"
	"github.com/kasuganosora/lifequest/server/game/notify"
	"github.com/kasuganosora/lifequest/server/game/progression"
	"github.com/kasuganosora/lifequest/server/game/ranking"
	"github.com/kasuganosora/lifequest/server/model"
)

const refreshLockTTL = 2 * time.Minute

// Option customises a Service.
type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service handles quest operations.
type Service struct {
	db       *gorm.DB
	cache    cache.Cache
	gen      ai.Generator
	game     config.GameConfig
	loc      *time.Location
	board    ranking.Recorder
	notifier notify.Notifier
	logger   *zap.Logger
	now      func() time.Time
}

// NewService creates a quest Service.
func NewService(db *gorm.DB, c cache.Cache, gen ai.Generator, game config.GameConfig,
	board ranking.Recorder, n notify.Notifier, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		db:       db,
		cache:    c,
		gen:      gen,
		game:     game,
		loc:      game.Location(),
		board:    board,
		notifier: n,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) today() string { return progression.Today(s.now(), s.loc) }

// RefreshResult is returned by Refresh.
type RefreshResult struct {
	User   *model.User   `json:"user"`
	Quests []model.Quest `json:"quests"`
	account.Progress
}

// CompleteResult is returned by Complete.
type CompleteResult struct {
	Quest       *model.Quest `json:"quest"`
	User        *model.User  `json:"user"`
	CoinsEarned int64        `json:"coins_earned"`
	Skill       *model.Skill `json:"skill,omitempty"`
	account.Progress
}

// List returns the user's open quests, oldest first.
func (s *Service) List(ctx context.Context, userID string) ([]model.Quest, error) {
	var quests []model.Quest
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND is_completed = ?", userID, false).
		Order("created_at ASC").Order("id ASC").
		Find(&quests).Error
	if err != nil {
		return nil, err
	}
	return quests, nil
}

// refreshAllowance is the number of refreshes u may use today; -1 means unlimited.
func (s *Service) refreshAllowance(u *model.User) int {
	if u.IsPremium {
		return -1
	}
	return s.game.DailyRefreshLimit + u.BonusRefreshesToday
}

func (s *Service) canRefresh(u *model.User) bool {
	allowed := s.refreshAllowance(u)
	return allowed < 0 || u.RefreshesUsedToday < allowed
}

// Refresh replaces the user's quests with a freshly generated set for skills.
// The refresh counter only moves when generation succeeds.
func (s *Service) Refresh(ctx context.Context, userID string, skills []string) (*RefreshResult, error) {
	skills, err := normaliseSkills(skills)
	if err != nil {
		return nil, err
	}

	// The allowance is checked against a rolled-over copy. The rollover is only
	// persisted by the transaction that spends the refresh.
	var current model.User
	if err := s.db.WithContext(ctx).First(&current, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, account.ErrUserNotFound
		}
		return nil, err
	}
	progression.Rollover(&current, s.today())
	if !s.canRefresh(&current) {
		return nil, ErrRefreshLimit
	}

	lockKey := "quest:refresh:" + userID
	ok, err := s.cache.SetNX(ctx, lockKey, "1", refreshLockTTL)
	if err != nil {
		return nil, fmt.Errorf("refresh lock: %w", err)
	}
	if !ok {
		return nil, ErrRefreshInProgress
	}
	defer func() {
		if err := s.cache.Del(context.WithoutCancel(ctx), lockKey); err != nil {
			s.logger.Warn("release refresh lock failed", zap.String("user_id", userID), zap.Error(err))
		}
	}()

	drafts, err := s.gen.GenerateQuests(ctx, skills)
	if err != nil {
		s.logger.Error("quest generation failed", zap.String("user_id", userID), zap.Error(err))
		return nil, ErrGeneration
	}
	drafts = ai.FilterValid(drafts, skills)
	if len(drafts) == 0 {
		s.logger.Warn("quest generation returned no usable drafts", zap.String("user_id", userID))
		return nil, ErrGeneration
	}

	res := &RefreshResult{}
	var progress account.Progress
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		u, bonus, up, err := account.LoadForUpdate(tx, userID, s.today())
		if err != nil {
			return err
		}
		progress = account.Progress{LeveledUp: up, StreakBonus: bonus}
		if !s.canRefresh(u) {
			return ErrRefreshLimit
		}
		u.RefreshesUsedToday++
		if err := tx.Model(u).Update("refreshes_used_today", u.RefreshesUsedToday).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", userID).Delete(&model.Quest{}).Error; err != nil {
			return err
		}
		quests := questsFromDrafts(userID, drafts, s.now())
		if err := tx.Create(&quests).Error; err != nil {
			return err
		}
		res.User = u
		res.Quests = quests
		return nil
	})
	if err != nil {
		return nil, err
	}
	res.Progress = progress
	account.Broadcast(ctx, s.board, s.notifier, res.User, progress)
	s.logger.Info("quests refreshed",
		zap.String("user_id", userID),
		zap.Int("count", len(res.Quests)),
		zap.Int("refreshes_used_today", res.User.RefreshesUsedToday))
	return res, nil
}

func normaliseSkills(skills []string) ([]string, error) {
	if len(skills) == 0 {
		return nil, ErrNoSkills
	}
	seen := make(map[string]bool, len(skills))
	out := make([]string, 0, len(skills))
	for _, name := range skills {
		if !model.IsSkillName(name) {
			return nil, ErrUnknownSkill
		}
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	return out, nil
}

func questsFromDrafts(userID string, drafts []ai.QuestDraft, now time.Time) []model.Quest {
	quests := make([]model.Quest, len(drafts))
	for i, d := range drafts {
		q := model.Quest{
			ID:          uuid.NewString(),
			UserID:      userID,
			Title:       d.Title,
			Description: d.Description,
			Type:        d.Type,
			Difficulty:  d.Difficulty,
			XPReward:    d.XPReward,
			// Keep creation order stable for List.
			CreatedAt: now.Add(time.Duration(i) * time.Millisecond),
		}
		if d.DurationMinutes > 0 {
			minutes := d.DurationMinutes
			q.DurationMinutes = &minutes
		}
		quests[i] = q
	}
	return quests
}

func findQuest(tx *gorm.DB, userID, questID string) (*model.Quest, error) {
	var q model.Quest
	err := tx.First(&q, "id = ? AND user_id = ?", questID, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrQuestNotFound
	}
	if err != nil {
		return nil, err
	}
	return &q, nil
}

// Start begins the quest's timer.
func (s *Service) Start(ctx context.Context, userID, questID string) (*model.Quest, error) {
	var q *model.Quest
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		q, err = findQuest(tx, userID, questID)
		if err != nil {
			return err
		}
		if q.StartAt != nil {
			return ErrAlreadyStarted
		}
		if q.DurationMinutes == nil || *q.DurationMinutes <= 0 {
			return ErrNoDuration
		}
		start := s.now()
		expires := start.Add(time.Duration(*q.DurationMinutes) * time.Minute)
		q.StartAt = &start
		q.ExpiresAt = &expires
		return tx.Model(q).Updates(map[string]any{"start_at": start, "expires_at": expires}).Error
	})
	if err != nil {
		return nil, err
	}
	return q, nil
}

// Complete finishes a started quest and pays its rewards. Completing an
// already completed quest returns it unchanged. A quest past its expiry is
// closed as expired and ErrQuestExpired is returned.
func (s *Service) Complete(ctx context.Context, userID, questID string) (*CompleteResult, error) {
	res := &CompleteResult{}
	expired := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		u, bonus, up, err := account.LoadForUpdate(tx, userID, s.today())
		if err != nil {
			return err
		}
		res.User = u
		res.Progress = account.Progress{LeveledUp: up, StreakBonus: bonus}

		if u.QuestsCompletedToday >= s.game.DailyCompletionLimit {
			return ErrCompletionLimit
		}
		q, err := findQuest(tx, userID, questID)
		if errors.Is(err, ErrQuestNotFound) {
			return ErrNothingToComplete
		}
		if err != nil {
			return err
		}
		res.Quest = q
		if q.IsCompleted {
			return nil
		}
		if q.StartAt == nil {
			return ErrNotStarted
		}

		now := s.now()
		q.IsCompleted = true
		q.CompletedAt = &now
		if q.ExpiresAt != nil && now.After(*q.ExpiresAt) {
			expired = true
			q.IsExpired = true
			return tx.Save(q).Error
		}
		if err := tx.Save(q).Error; err != nil {
			return err
		}

		if progression.AddXP(u, q.XPReward) {
			res.LeveledUp = true
		}
		res.CoinsEarned = progression.CoinsForQuest(q.XPReward)
		u.Coins += res.CoinsEarned
		u.QuestsCompleted++
		u.QuestsCompletedToday++
		if err := tx.Save(u).Error; err != nil {
			return err
		}

		var sk model.Skill
		err = tx.First(&sk, "user_id = ? AND name = ?", userID, q.Type).Error
		switch {
		case err == nil:
			progression.AddSkillXP(&sk, q.XPReward)
			if err := tx.Save(&sk).Error; err != nil {
				return err
			}
			res.Skill = &sk
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	account.Broadcast(ctx, s.board, s.notifier, res.User, res.Progress)
	if expired {
		return res, ErrQuestExpired
	}
	return res, nil
}

// SweepExpired closes every started quest whose timer ran out before now.
func (s *Service) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Model(&model.Quest{}).
		Where("is_completed = ? AND start_at IS NOT NULL AND expires_at < ?", false, now).
		Updates(map[string]any{"is_completed": true, "is_expired": true})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected > 0 {
		s.logger.Info("expired quests swept", zap.Int64("count", res.RowsAffected))
	}
	return res.RowsAffected, nil
}
