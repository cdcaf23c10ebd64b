package model

import "time"

// UserStatus values.
const (
	UserStatusBanned = 0
	UserStatusNormal = 1
)

// User is a LifeQuest account together with its progression counters.
// Level, XP, XPForNextLevel and RankTitle are derived from TotalXP and are
// recomputed whenever TotalXP changes.
type User struct {
	ID           string `gorm:"primaryKey;size:36" json:"id"`
	Username     string `gorm:"uniqueIndex;size:32;not null" json:"username"`
	Email        string `gorm:"uniqueIndex;size:128;not null" json:"email"`
	PasswordHash string `gorm:"size:64;not null" json:"-"`
	AvatarURL    string `gorm:"size:512" json:"avatar_url"`
	Status       int    `gorm:"default:1" json:"-"`

	Level          int    `gorm:"default:1" json:"level"`
	XP             int64  `gorm:"default:0" json:"xp"`
	TotalXP        int64  `gorm:"index:idx_user_total_xp;default:0" json:"total_xp"`
	XPForNextLevel int64  `gorm:"default:800" json:"xp_for_next_level"`
	RankTitle      string `gorm:"size:64" json:"rank_title"`
	Coins          int64  `gorm:"default:0" json:"coins"`
	IsPremium      bool   `gorm:"default:false" json:"is_premium"`

	QuestsCompleted               int `gorm:"default:0" json:"quests_completed"`
	QuestsCompletedToday          int `gorm:"default:0" json:"quests_completed_today"`
	RefreshesUsedToday            int `gorm:"default:0" json:"refreshes_used_today"`
	BonusRefreshesToday           int `gorm:"default:0" json:"bonus_refreshes_today"`
	QuestsContributedToGuildToday int `gorm:"default:0" json:"quests_contributed_to_guild_today"`

	// LastLoginDate is the calendar day (YYYY-MM-DD) of the last rollover.
	LastLoginDate string `gorm:"size:10" json:"last_login_date"`
	CurrentStreak int    `gorm:"default:1" json:"current_streak"`
	LongestStreak int    `gorm:"default:1" json:"longest_streak"`

	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"-"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}
