// Package guild manages guilds: membership, the shared chat log and the
// cooperative guild quest.
package guild

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/kasuganosora/lifequest/server/cache"
	"github.com/kasuganosora/lifequest/server/config"
	"github.com/kasuganosora/lifequest/server/game/account"
	"github.com/kasuganosora/lifequest/server/game/notify"
	"github.com/kasuganosora/lifequest/server/game/progression"
	"github.com/kasuganosora/lifequest/server/game/ranking"
	"github.com/kasuganosora/lifequest/server/model"
)

// Guild bot identity used for system lines in chat.
const (
	BotUsername  = "Guild Bot"
	BotAvatarURL = "/static/guild-bot.svg"
)

const (
	chatTail       = 50
	maxMessageLen  = 500
	maxNameLen     = 40
	maxDescription = 500
)

// Option customises a Service.
type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service handles guild operations.
type Service struct {
	db       *gorm.DB
	ps       cache.PubSub
	game     config.GameConfig
	loc      *time.Location
	board    ranking.Recorder
	notifier notify.Notifier
	logger   *zap.Logger
	now      func() time.Time
	printer  *message.Printer
}

// NewService creates a guild Service.
func NewService(db *gorm.DB, ps cache.PubSub, game config.GameConfig,
	board ranking.Recorder, n notify.Notifier, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		db:       db,
		ps:       ps,
		game:     game,
		loc:      game.Location(),
		board:    board,
		notifier: n,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
		printer:  message.NewPrinter(language.English),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ChatChannel is the pub/sub channel carrying a guild's live chat.
func ChatChannel(guildID string) string { return "guild:" + guildID }

// ChatEvent is published on ChatChannel for every new line.
type ChatEvent struct {
	Type    string                  `json:"type"`
	Message *model.GuildChatMessage `json:"message"`
}

// Member is a roster entry.
type Member struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	AvatarURL string    `json:"avatar_url"`
	Level     int       `json:"level"`
	IsLeader  bool      `json:"is_leader"`
	JoinedAt  time.Time `json:"joined_at"`
}

// Detail is a guild with its roster, recent chat and quest.
type Detail struct {
	model.Guild
	Members []Member                 `json:"members"`
	Chat    []model.GuildChatMessage `json:"chat"`
	Quest   *model.GuildQuest        `json:"quest"`
}

// ContributeResult is returned by Contribute.
type ContributeResult struct {
	Message        string            `json:"message"`
	User           *model.User       `json:"user"`
	Quest          *model.GuildQuest `json:"quest"`
	QuestCompleted bool              `json:"quest_completed"`
	account.Progress
}

type payout struct {
	user      *model.User
	leveledUp bool
}

// List returns every guild, newest first, with member counts.
func (s *Service) List(ctx context.Context) ([]model.Guild, error) {
	var guilds []model.Guild
	if err := s.db.WithContext(ctx).Order("created_at DESC").Order("name ASC").Find(&guilds).Error; err != nil {
		return nil, err
	}
	var counts []struct {
		GuildID string
		N       int
	}
	if err := s.db.WithContext(ctx).Model(&model.GuildMember{}).
		Select("guild_id, COUNT(*) AS n").Group("guild_id").Scan(&counts).Error; err != nil {
		return nil, err
	}
	byGuild := make(map[string]int, len(counts))
	for _, c := range counts {
		byGuild[c.GuildID] = c.N
	}
	for i := range guilds {
		guilds[i].MemberCount = byGuild[guilds[i].ID]
	}
	return guilds, nil
}

// Get returns the guild with roster, chat tail and quest.
func (s *Service) Get(ctx context.Context, guildID string) (*Detail, error) {
	return s.detail(s.db.WithContext(ctx), guildID)
}

func (s *Service) detail(tx *gorm.DB, guildID string) (*Detail, error) {
	g, err := findGuild(tx, guildID)
	if err != nil {
		return nil, err
	}
	d := &Detail{Guild: *g}

	var rows []struct {
		model.User
		JoinedAt time.Time
	}
	err = tx.Table("guild_members").
		Select("users.*, guild_members.joined_at AS joined_at").
		Joins("JOIN users ON users.id = guild_members.user_id").
		Where("guild_members.guild_id = ?", guildID).
		Order("guild_members.joined_at ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	d.Members = make([]Member, len(rows))
	for i, r := range rows {
		d.Members[i] = Member{
			ID:        r.ID,
			Username:  r.Username,
			AvatarURL: r.AvatarURL,
			Level:     r.Level,
			IsLeader:  r.ID == g.LeaderID,
			JoinedAt:  r.JoinedAt,
		}
	}
	d.MemberCount = len(d.Members)

	if d.Chat, err = chatTailOf(tx, guildID, chatTail); err != nil {
		return nil, err
	}

	var q model.GuildQuest
	err = tx.First(&q, "guild_id = ?", guildID).Error
	switch {
	case err == nil:
		d.Quest = &q
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, err
	}
	return d, nil
}

// Messages returns the last limit chat lines, oldest first.
func (s *Service) Messages(ctx context.Context, guildID string, limit int) ([]model.GuildChatMessage, error) {
	if limit <= 0 || limit > chatTail {
		limit = chatTail
	}
	return chatTailOf(s.db.WithContext(ctx), guildID, limit)
}

func chatTailOf(tx *gorm.DB, guildID string, limit int) ([]model.GuildChatMessage, error) {
	var msgs []model.GuildChatMessage
	err := tx.Where("guild_id = ?", guildID).
		Order("created_at DESC").Order("id DESC").
		Limit(limit).Find(&msgs).Error
	if err != nil {
		return nil, err
	}
	slices.Reverse(msgs)
	return msgs, nil
}

// IsMember reports whether userID belongs to guildID.
func (s *Service) IsMember(ctx context.Context, guildID, userID string) (bool, error) {
	return isMember(s.db.WithContext(ctx), guildID, userID)
}

func isMember(tx *gorm.DB, guildID, userID string) (bool, error) {
	var n int64
	err := tx.Model(&model.GuildMember{}).Where("guild_id = ? AND user_id = ?", guildID, userID).Count(&n).Error
	return n > 0, err
}

// forUpdate locks the rows read through tx where the database supports it.
func forUpdate(tx *gorm.DB) *gorm.DB {
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

func findGuild(tx *gorm.DB, guildID string) (*model.Guild, error) {
	var g model.Guild
	err := tx.First(&g, "id = ?", guildID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrGuildNotFound
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func findUser(tx *gorm.DB, userID string) (*model.User, error) {
	var u model.User
	err := tx.First(&u, "id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, account.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Service) botLine(guildID, text string) model.GuildChatMessage {
	return model.GuildChatMessage{
		ID:        uuid.Must(uuid.NewV7()).String(),
		GuildID:   guildID,
		Username:  BotUsername,
		AvatarURL: BotAvatarURL,
		Text:      text,
		CreatedAt: s.now(),
	}
}

// publish fans committed chat lines out to live subscribers.
func (s *Service) publish(ctx context.Context, msgs ...model.GuildChatMessage) {
	for i := range msgs {
		b, err := json.Marshal(ChatEvent{Type: "chat", Message: &msgs[i]})
		if err != nil {
			continue
		}
		if err := s.ps.Publish(ctx, ChatChannel(msgs[i].GuildID), string(b)); err != nil {
			s.logger.Warn("guild chat publish failed", zap.String("guild_id", msgs[i].GuildID), zap.Error(err))
		}
	}
}

// Create founds a guild led by userID.
func (s *Service) Create(ctx context.Context, userID, name, description string) (*Detail, error) {
	name = strings.TrimSpace(name)
	description = strings.TrimSpace(description)
	if n := utf8.RuneCountInString(name); n < 3 || n > maxNameLen {
		return nil, ErrInvalidName
	}
	if utf8.RuneCountInString(description) > maxDescription {
		return nil, ErrDescriptionTooLong
	}

	var (
		d       *Detail
		welcome model.GuildChatMessage
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := findUser(tx, userID); err != nil {
			return err
		}
		var n int64
		if err := tx.Model(&model.Guild{}).Where("LOWER(name) = ?", strings.ToLower(name)).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return ErrGuildNameTaken
		}

		now := s.now()
		g := &model.Guild{
			ID:          uuid.NewString(),
			Name:        name,
			Description: description,
			ImageURL:    "https://picsum.photos/seed/" + url.PathEscape(name) + "/200/200",
			MaxMembers:  s.game.GuildMaxMembers,
			LeaderID:    userID,
			CreatedAt:   now,
		}
		if err := tx.Create(g).Error; err != nil {
			return err
		}
		if err := tx.Create(&model.GuildMember{GuildID: g.ID, UserID: userID, JoinedAt: now}).Error; err != nil {
			return err
		}
		welcome = s.botLine(g.ID, fmt.Sprintf("Welcome to %s!", name))
		if err := tx.Create(&welcome).Error; err != nil {
			return err
		}
		gq := s.newQuest(g.ID, now)
		if err := tx.Create(gq).Error; err != nil {
			return err
		}
		var err error
		d, err = s.detail(tx, g.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, welcome)
	s.logger.Info("guild created", zap.String("guild_id", d.ID), zap.String("name", d.Name), zap.String("leader_id", userID))
	return d, nil
}

func (s *Service) newQuest(guildID string, now time.Time) *model.GuildQuest {
	return &model.GuildQuest{
		ID:              uuid.NewString(),
		GuildID:         guildID,
		Title:           "Community Growth",
		Description:     fmt.Sprintf("Work together to complete %d quests as a guild!", s.game.GuildQuestTarget),
		Type:            model.SkillSocial,
		Difficulty:      model.DifficultyHard,
		XPReward:        s.game.GuildQuestXPReward,
		Target:          s.game.GuildQuestTarget,
		Contributors:    datatypes.JSON("[]"),
		DurationMinutes: int(s.game.GuildQuestDuration / time.Minute),
		ExpiresAt:       now.Add(s.game.GuildQuestDuration),
		CreatedAt:       now,
	}
}

// Join adds userID to the guild's roster.
func (s *Service) Join(ctx context.Context, userID, guildID string) (*Detail, error) {
	var (
		d     *Detail
		hello model.GuildChatMessage
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		u, err := findUser(tx, userID)
		if err != nil {
			return err
		}
		// Joins to the same guild queue on the guild row so the count holds.
		g, err := findGuild(forUpdate(tx), guildID)
		if err != nil {
			return err
		}
		member, err := isMember(tx, guildID, userID)
		if err != nil {
			return err
		}
		if member {
			return ErrAlreadyMember
		}
		var n int64
		if err := tx.Model(&model.GuildMember{}).Where("guild_id = ?", guildID).Count(&n).Error; err != nil {
			return err
		}
		if int(n) >= g.MaxMembers {
			return ErrGuildFull
		}
		if err := tx.Create(&model.GuildMember{GuildID: guildID, UserID: userID, JoinedAt: s.now()}).Error; err != nil {
			return err
		}
		hello = s.botLine(guildID, u.Username+" has joined the guild!")
		if err := tx.Create(&hello).Error; err != nil {
			return err
		}
		d, err = s.detail(tx, guildID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, hello)
	return d, nil
}

// Leave removes userID from the guild. Leadership passes to the
// longest-standing member and an emptied guild is dissolved.
func (s *Service) Leave(ctx context.Context, userID, guildID string) error {
	var lines []model.GuildChatMessage
	dissolved := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		u, err := findUser(tx, userID)
		if err != nil {
			return err
		}
		if _, err := findGuild(tx, guildID); err != nil {
			return err
		}
		res := tx.Where("guild_id = ? AND user_id = ?", guildID, userID).Delete(&model.GuildMember{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotMember
		}

		lines = append(lines, s.botLine(guildID, u.Username+" has left the guild."))
		var leader string
		leader, dissolved, err = account.SettleGuild(tx, guildID, userID)
		if err != nil {
			return err
		}
		if dissolved {
			lines = nil
			return nil
		}
		if leader != "" {
			nu, err := findUser(tx, leader)
			if err != nil {
				return err
			}
			lines = append(lines, s.botLine(guildID, nu.Username+" is now the guild leader."))
		}
		return tx.Create(&lines).Error
	})
	if err != nil {
		return err
	}
	s.publish(ctx, lines...)
	s.logger.Info("guild left", zap.String("guild_id", guildID), zap.String("user_id", userID), zap.Bool("dissolved", dissolved))
	return nil
}

// Contribute converts one of the user's completed quests today into guild
// quest progress. Reaching the target pays every member the quest reward.
func (s *Service) Contribute(ctx context.Context, userID, guildID string) (*ContributeResult, error) {
	res := &ContributeResult{}
	var payouts []payout
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := findGuild(tx, guildID); err != nil {
			return err
		}
		// The quest row is locked before any user row: contributors to one
		// guild run one at a time, and the payout below locks members after it.
		var q model.GuildQuest
		if err := forUpdate(tx).First(&q, "guild_id = ?", guildID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrGuildNotFound
			}
			return err
		}

		u, bonus, up, err := account.LoadForUpdate(tx, userID, progression.Today(s.now(), s.loc))
		if err != nil {
			return err
		}
		res.User = u
		res.Progress = account.Progress{LeveledUp: up, StreakBonus: bonus}

		member, err := isMember(tx, guildID, userID)
		if err != nil {
			return err
		}
		if !member {
			return ErrNotMember
		}
		if u.QuestsContributedToGuildToday >= u.QuestsCompletedToday {
			return ErrNothingToContribute
		}
		if q.IsCompleted {
			return ErrQuestCompleted
		}
		if s.now().After(q.ExpiresAt) {
			return ErrQuestExpired
		}

		q.Progress++
		names, err := contributors(q.Contributors)
		if err != nil {
			return err
		}
		if !slices.Contains(names, u.Username) {
			names = append(names, u.Username)
		}
		if q.Contributors, err = json.Marshal(names); err != nil {
			return err
		}

		u.QuestsContributedToGuildToday++
		if progression.AddXP(u, s.game.ContributionXP) {
			res.LeveledUp = true
		}

		if q.Progress >= q.Target {
			q.IsCompleted = true
			res.QuestCompleted = true
			if payouts, err = s.payMembers(tx, guildID, u, q.XPReward); err != nil {
				return err
			}
			for _, p := range payouts {
				if p.user == u && p.leveledUp {
					res.LeveledUp = true
				}
			}
		}
		if err := tx.Save(&q).Error; err != nil {
			return err
		}
		if err := tx.Save(u).Error; err != nil {
			return err
		}
		res.Quest = &q
		return nil
	})
	if err != nil {
		return nil, err
	}

	if res.QuestCompleted {
		res.Message = s.printer.Sprintf("You completed the final quest for the guild! All members received %d XP!", res.Quest.XPReward)
		for _, p := range payouts {
			s.notifier.Notify(ctx, p.user.ID, notify.EventGuildQuestCompleted, map[string]any{
				"guild_id": guildID,
				"xp":       res.Quest.XPReward,
			})
			if p.user != res.User {
				account.Broadcast(ctx, s.board, s.notifier, p.user, account.Progress{LeveledUp: p.leveledUp})
			}
		}
		s.logger.Info("guild quest completed", zap.String("guild_id", guildID), zap.Int("members_paid", len(payouts)))
	} else {
		res.Message = fmt.Sprintf("Contribution successful! You earned %d XP.", s.game.ContributionXP)
	}
	account.Broadcast(ctx, s.board, s.notifier, res.User, res.Progress)
	return res, nil
}

// payMembers credits xp to every member of the guild exactly once. The
// contributor's in-flight row is credited in memory and saved by the caller.
func (s *Service) payMembers(tx *gorm.DB, guildID string, contributor *model.User, xp int64) ([]payout, error) {
	var ids []string
	if err := tx.Model(&model.GuildMember{}).Where("guild_id = ?", guildID).Pluck("user_id", &ids).Error; err != nil {
		return nil, err
	}
	out := make([]payout, 0, len(ids))
	for _, id := range ids {
		if id == contributor.ID {
			out = append(out, payout{user: contributor, leveledUp: progression.AddXP(contributor, xp)})
			continue
		}
		m, err := findUser(forUpdate(tx), id)
		if err != nil {
			return nil, err
		}
		up := progression.AddXP(m, xp)
		if err := tx.Save(m).Error; err != nil {
			return nil, err
		}
		out = append(out, payout{user: m, leveledUp: up})
	}
	return out, nil
}

func contributors(raw datatypes.JSON) ([]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var names []string
	if err := json.Unmarshal(raw, &names); err != nil {
		return nil, fmt.Errorf("decode contributors: %w", err)
	}
	return names, nil
}

// PostMessage appends a member's chat line and publishes it.
func (s *Service) PostMessage(ctx context.Context, userID, guildID, text string) (*model.GuildChatMessage, error) {
	text = strings.TrimSpace(text)
	if n := utf8.RuneCountInString(text); n == 0 || n > maxMessageLen {
		return nil, ErrInvalidMessage
	}
	var msg model.GuildChatMessage
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		u, err := findUser(tx, userID)
		if err != nil {
			return err
		}
		if _, err := findGuild(tx, guildID); err != nil {
			return err
		}
		member, err := isMember(tx, guildID, userID)
		if err != nil {
			return err
		}
		if !member {
			return ErrNotMember
		}
		msg = model.GuildChatMessage{
			ID:        uuid.Must(uuid.NewV7()).String(),
			GuildID:   guildID,
			UserID:    userID,
			Username:  u.Username,
			AvatarURL: u.AvatarURL,
			Text:      text,
			CreatedAt: s.now(),
		}
		return tx.Create(&msg).Error
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, msg)
	return &msg, nil
}

// RenewExpiredQuests restarts every guild quest that ran out unfinished.
func (s *Service) RenewExpiredQuests(ctx context.Context, now time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Model(&model.GuildQuest{}).
		Where("is_completed = ? AND expires_at < ?", false, now).
		Updates(map[string]any{
			"progress":         0,
			"contributors":     datatypes.JSON("[]"),
			"expires_at":       now.Add(s.game.GuildQuestDuration),
			"duration_minutes": int(s.game.GuildQuestDuration / time.Minute),
		})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected > 0 {
		s.logger.Info("guild quests renewed", zap.Int64("count", res.RowsAffected))
	}
	return res.RowsAffected, nil
}
