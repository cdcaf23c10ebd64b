// Package account owns LifeQuest users: registration, login, profile edits,
// the daily check-in and cascading account deletion.
package account

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/kasuganosora/lifequest/server/config"
	"github.com/kasuganosora/lifequest/server/game/notify"
	"github.com/kasuganosora/lifequest/server/game/progression"
	"github.com/kasuganosora/lifequest/server/game/ranking"
	"github.com/kasuganosora/lifequest/server/model"
)

const defaultPasswordCost = 12

// Option customises a Service.
type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithPasswordCost sets the bcrypt cost used for new hashes.
func WithPasswordCost(cost int) Option {
	return func(s *Service) { s.cost = cost }
}

// Service handles account operations.
type Service struct {
	db       *gorm.DB
	loc      *time.Location
	board    ranking.Recorder
	notifier notify.Notifier
	logger   *zap.Logger
	now      func() time.Time
	cost     int
}

// NewService creates an account Service.
func NewService(db *gorm.DB, game config.GameConfig, board ranking.Recorder, n notify.Notifier, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		db:       db,
		loc:      game.Location(),
		board:    board,
		notifier: n,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
		cost:     defaultPasswordCost,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) today() string { return progression.Today(s.now(), s.loc) }

// Register creates a user with the seven default skills.
func (s *Service) Register(ctx context.Context, username, email, password, avatarURL string) (*model.User, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	avatarURL = strings.TrimSpace(avatarURL)

	if err := ValidatePassword(password); err != nil {
		return nil, err
	}
	if err := validateUsername(username); err != nil {
		return nil, err
	}
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if err := validateAvatar(avatarURL); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.now()
	u := &model.User{
		ID:            uuid.NewString(),
		Username:      username,
		Email:         email,
		PasswordHash:  string(hash),
		AvatarURL:     avatarURL,
		Status:        model.UserStatusNormal,
		LastLoginDate: s.today(),
		CurrentStreak: 1,
		LongestStreak: 1,
		CreatedAt:     now,
		LastLoginAt:   &now,
	}
	progression.ApplyStats(u)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := checkUnique(tx, "", username, email); err != nil {
			return err
		}
		if err := tx.Create(u).Error; err != nil {
			if isUniqueViolation(err) {
				return ErrUsernameTaken
			}
			return err
		}
		skills := DefaultSkills(u.ID)
		return tx.Create(&skills).Error
	})
	if err != nil {
		return nil, err
	}
	s.board.Update(ctx, u.ID, u.TotalXP)
	s.logger.Info("user registered", zap.String("user_id", u.ID), zap.String("username", u.Username))
	return u, nil
}

// DefaultSkills builds the starting skill tracks of a user.
func DefaultSkills(userID string) []model.Skill {
	skills := make([]model.Skill, len(model.SkillNames))
	for i, name := range model.SkillNames {
		skills[i] = model.Skill{
			ID:             fmt.Sprintf("skill_%d_%s", i+1, userID),
			UserID:         userID,
			Name:           name,
			Level:          1,
			XP:             0,
			XPForNextLevel: progression.SkillXPForLevel(1),
		}
	}
	return skills
}

// checkUnique rejects a username or email already used by another user.
func checkUnique(tx *gorm.DB, selfID, username, email string) error {
	var n int64
	q := tx.Model(&model.User{}).Where("LOWER(username) = ?", strings.ToLower(username))
	if selfID != "" {
		q = q.Where("id <> ?", selfID)
	}
	if err := q.Count(&n).Error; err != nil {
		return err
	}
	if n > 0 {
		return ErrUsernameTaken
	}
	q = tx.Model(&model.User{}).Where("LOWER(email) = ?", strings.ToLower(email))
	if selfID != "" {
		q = q.Where("id <> ?", selfID)
	}
	if err := q.Count(&n).Error; err != nil {
		return err
	}
	if n > 0 {
		return ErrEmailTaken
	}
	return nil
}

// Authenticate matches usernameOrEmail case-insensitively and verifies the
// password.
func (s *Service) Authenticate(ctx context.Context, usernameOrEmail, password string) (*model.User, error) {
	key := strings.ToLower(strings.TrimSpace(usernameOrEmail))
	if key == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	var u model.User
	err := s.db.WithContext(ctx).
		Where("LOWER(username) = ? OR LOWER(email) = ?", key, key).
		First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	if u.Status == model.UserStatusBanned {
		return nil, ErrBanned
	}

	now := s.now()
	u.LastLoginAt = &now
	if err := s.db.WithContext(ctx).Model(&u).Update("last_login_at", now).Error; err != nil {
		s.logger.Warn("record last login failed", zap.String("user_id", u.ID), zap.Error(err))
	}
	return &u, nil
}

// Get returns the user.
func (s *Service) Get(ctx context.Context, userID string) (*model.User, error) {
	var u model.User
	err := s.db.WithContext(ctx).First(&u, "id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// CheckIn applies the daily rollover. The bonus is nil unless this call
// extended the streak.
func (s *Service) CheckIn(ctx context.Context, userID string) (*model.User, *progression.StreakBonus, error) {
	var (
		u     *model.User
		bonus *progression.StreakBonus
		up    bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		u, bonus, up, err = LoadForUpdate(tx, userID, s.today())
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	Broadcast(ctx, s.board, s.notifier, u, Progress{LeveledUp: up, StreakBonus: bonus})
	return u, bonus, nil
}

// Skills lists the user's skill tracks in display order.
func (s *Service) Skills(ctx context.Context, userID string) ([]model.Skill, error) {
	if _, err := s.Get(ctx, userID); err != nil {
		return nil, err
	}
	var skills []model.Skill
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Find(&skills).Error; err != nil {
		return nil, err
	}
	order := make(map[string]int, len(model.SkillNames))
	for i, n := range model.SkillNames {
		order[n] = i
	}
	slices.SortFunc(skills, func(a, b model.Skill) int {
		return cmp.Compare(order[a.Name], order[b.Name])
	})
	return skills, nil
}

// UpdateProfile changes username and email, keeping both unique.
func (s *Service) UpdateProfile(ctx context.Context, userID, username, email string) (*model.User, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	if err := validateUsername(username); err != nil {
		return nil, err
	}
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	var u model.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&u, "id = ?", userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return err
		}
		if err := checkUnique(tx, userID, username, email); err != nil {
			return err
		}
		u.Username = username
		u.Email = email
		return tx.Model(&u).Updates(map[string]any{"username": username, "email": email}).Error
	})
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// UpdateAvatar sets the avatar URL. An empty URL clears it.
func (s *Service) UpdateAvatar(ctx context.Context, userID, avatarURL string) (*model.User, error) {
	avatarURL = strings.TrimSpace(avatarURL)
	if err := validateAvatar(avatarURL); err != nil {
		return nil, err
	}
	u, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(u).Update("avatar_url", avatarURL).Error; err != nil {
		return nil, err
	}
	u.AvatarURL = avatarURL
	return u, nil
}

// ChangePassword replaces the password after verifying the current one.
func (s *Service) ChangePassword(ctx context.Context, userID, current, next string) error {
	u, err := s.Get(ctx, userID)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(current)); err != nil {
		return ErrWrongPassword
	}
	if err := ValidatePassword(next); err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(next), s.cost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return s.db.WithContext(ctx).Model(u).Update("password_hash", string(hash)).Error
}

// RequestPasswordReset always succeeds so callers cannot probe which
// addresses are registered.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) {
	email = strings.ToLower(strings.TrimSpace(email))
	var n int64
	if err := s.db.WithContext(ctx).Model(&model.User{}).Where("LOWER(email) = ?", email).Count(&n).Error; err != nil {
		s.logger.Error("password reset lookup failed", zap.String("email", email), zap.Error(err))
		return
	}
	s.logger.Info("password reset requested", zap.String("email", email), zap.Bool("known", n > 0))
}

// Delete removes the user and everything owned by them. Guild chat lines
// and guild quest contributor names stay as history unless the guild is left
// empty.
func (s *Service) Delete(ctx context.Context, userID string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&model.User{}, "id = ?", userID)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrUserNotFound
		}
		var guildIDs []string
		if err := tx.Model(&model.GuildMember{}).Where("user_id = ?", userID).Pluck("guild_id", &guildIDs).Error; err != nil {
			return err
		}
		for _, m := range []any{&model.Skill{}, &model.Quest{}, &model.UserItem{}, &model.Purchase{}, &model.GuildMember{}} {
			if err := tx.Where("user_id = ?", userID).Delete(m).Error; err != nil {
				return err
			}
		}
		for _, gid := range guildIDs {
			if _, _, err := SettleGuild(tx, gid, userID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.board.Remove(ctx, userID)
	s.logger.Info("user deleted", zap.String("user_id", userID))
	return nil
}

// SetStatus bans or unbans a user.
func (s *Service) SetStatus(ctx context.Context, userID string, status int) error {
	res := s.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", userID).Update("status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// LoadForUpdate reads the user row inside tx, locking it where the database
// supports row locks, and persists the daily rollover for today if one is due.
func LoadForUpdate(tx *gorm.DB, userID, today string) (*model.User, *progression.StreakBonus, bool, error) {
	var u model.User
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&u, "id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, false, ErrUserNotFound
	}
	if err != nil {
		return nil, nil, false, err
	}
	before := u.Level
	changed, bonus := progression.Rollover(&u, today)
	if !changed {
		return &u, nil, false, nil
	}
	if err := tx.Save(&u).Error; err != nil {
		return nil, nil, false, err
	}
	return &u, bonus, u.Level > before, nil
}

// SettleGuild fixes up a guild after departed has left it. An empty guild is
// dissolved along with its quest and chat. A guild whose leader left is
// handed to the longest-standing member, whose ID is returned.
func SettleGuild(tx *gorm.DB, guildID, departed string) (newLeader string, dissolved bool, err error) {
	var g model.Guild
	if err := tx.First(&g, "id = ?", guildID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	var next model.GuildMember
	err = tx.Where("guild_id = ?", guildID).Order("joined_at ASC").Order("user_id ASC").First(&next).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		for _, m := range []any{&model.GuildQuest{}, &model.GuildChatMessage{}} {
			if err := tx.Where("guild_id = ?", guildID).Delete(m).Error; err != nil {
				return "", false, err
			}
		}
		return "", true, tx.Delete(&g).Error
	}
	if err != nil {
		return "", false, err
	}
	if g.LeaderID != departed {
		return "", false, nil
	}
	if err := tx.Model(&g).Update("leader_id", next.UserID).Error; err != nil {
		return "", false, err
	}
	return next.UserID, false, nil
}

// isUniqueViolation detects duplicate-key errors from common database drivers.
func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") ||
		strings.Contains(msg, "duplicate")
}
