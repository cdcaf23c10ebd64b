package model

import "time"

// QuestDifficulty is the coarse effort band of a quest.
type QuestDifficulty = string

const (
	DifficultyEasy   QuestDifficulty = "easy"
	DifficultyMedium QuestDifficulty = "medium"
	DifficultyHard   QuestDifficulty = "hard"
)

// IsDifficulty reports whether d is a known difficulty.
func IsDifficulty(d string) bool {
	return d == DifficultyEasy || d == DifficultyMedium || d == DifficultyHard
}

// Quest is a unit of user-assigned work carrying an XP reward and optional timer.
type Quest struct {
	ID              string          `gorm:"primaryKey;size:36" json:"id"`
	UserID          string          `gorm:"index:idx_user_quest;size:36;not null" json:"user_id"`
	Title           string          `gorm:"size:200;not null" json:"title"`
	Description     string          `gorm:"type:text" json:"description"`
	Type            SkillName       `gorm:"size:32" json:"type"`
	Difficulty      QuestDifficulty `gorm:"size:16" json:"difficulty"`
	XPReward        int64           `json:"xp_reward"`
	IsCompleted     bool            `gorm:"index:idx_user_quest;default:false" json:"is_completed"`
	IsExpired       bool            `gorm:"default:false" json:"is_expired"`
	DurationMinutes *int            `json:"duration_minutes,omitempty"`
	StartAt         *time.Time      `json:"start_at,omitempty"`
	ExpiresAt       *time.Time      `gorm:"index:idx_quest_expiry" json:"expires_at,omitempty"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
}
