package model

// SkillName is one of the fixed progress tracks every user owns.
type SkillName = string

const (
	SkillFitness      SkillName = "Fitness"
	SkillLearning     SkillName = "Learning"
	SkillSocial       SkillName = "Social"
	SkillProductivity SkillName = "Productivity"
	SkillCreativity   SkillName = "Creativity"
	SkillMindfulness  SkillName = "Mindfulness"
	SkillFinance      SkillName = "Finance"
)

// SkillNames lists the skill templates in display order.
var SkillNames = []SkillName{
	SkillFitness,
	SkillLearning,
	SkillSocial,
	SkillProductivity,
	SkillCreativity,
	SkillMindfulness,
	SkillFinance,
}

// IsSkillName reports whether name is one of the skill templates.
func IsSkillName(name string) bool {
	for _, n := range SkillNames {
		if n == name {
			return true
		}
	}
	return false
}

// Skill is a per-user named progress track.
type Skill struct {
	ID             string    `gorm:"primaryKey;size:64" json:"id"`
	UserID         string    `gorm:"index:idx_user_skill;size:36;not null" json:"user_id"`
	Name           SkillName `gorm:"size:32;not null" json:"name"`
	Level          int       `gorm:"default:1" json:"level"`
	XP             int64     `gorm:"default:0" json:"xp"`
	XPForNextLevel int64     `gorm:"default:100" json:"xp_for_next_level"`
}
