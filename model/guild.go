package model

import (
	"time"

	"gorm.io/datatypes"
)

// Guild is a group with a shared chat and one cooperative quest.
// MemberCount is not stored; it is filled from guild_members on read.
type Guild struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	Name        string    `gorm:"uniqueIndex;size:64;not null" json:"name"`
	Description string    `gorm:"type:text" json:"description"`
	ImageURL    string    `gorm:"size:512" json:"image_url"`
	MaxMembers  int       `gorm:"default:50" json:"max_members"`
	IsPrivate   bool      `gorm:"default:false" json:"is_private"`
	LeaderID    string    `gorm:"size:36" json:"leader_id"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`

	MemberCount int `gorm:"-" json:"member_count"`
}

// GuildMember links a user to a guild.
type GuildMember struct {
	GuildID  string    `gorm:"primaryKey;size:36" json:"guild_id"`
	UserID   string    `gorm:"primaryKey;size:36;index:idx_member_user" json:"user_id"`
	JoinedAt time.Time `gorm:"autoCreateTime" json:"joined_at"`
}

// GuildQuest is the cooperative quest of a guild. Contributors holds the
// usernames that have contributed at least once, in first-contribution order.
type GuildQuest struct {
	ID              string          `gorm:"primaryKey;size:36" json:"id"`
	GuildID         string          `gorm:"uniqueIndex;size:36;not null" json:"guild_id"`
	Title           string          `gorm:"size:200" json:"title"`
	Description     string          `gorm:"type:text" json:"description"`
	Type            SkillName       `gorm:"size:32" json:"type"`
	Difficulty      QuestDifficulty `gorm:"size:16" json:"difficulty"`
	XPReward        int64           `json:"xp_reward"`
	Progress        int             `gorm:"default:0" json:"progress"`
	Target          int             `json:"target"`
	Contributors    datatypes.JSON  `json:"contributors"`
	IsCompleted     bool            `gorm:"default:false" json:"is_completed"`
	DurationMinutes int             `json:"duration_minutes"`
	ExpiresAt       time.Time       `gorm:"index:idx_gquest_expiry" json:"expires_at"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

// GuildChatMessage is one line of guild chat. UserID is empty for bot messages.
type GuildChatMessage struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	GuildID   string    `gorm:"index:idx_guild_chat;size:36;not null" json:"guild_id"`
	UserID    string    `gorm:"size:36" json:"user_id,omitempty"`
	Username  string    `gorm:"size:32" json:"username"`
	AvatarURL string    `gorm:"size:512" json:"avatar_url"`
	Text      string    `gorm:"type:text" json:"text"`
	CreatedAt time.Time `gorm:"index:idx_guild_chat;autoCreateTime:milli" json:"timestamp"`
}
