// Package progression holds the pure rules of LifeQuest advancement: the
// levelling curve, rank titles, skill tracks and the daily rollover.
package progression

import (
	"math"

	"github.com/kasuganosora/lifequest/server/model"
)

const (
	baseXP   = 800
	exponent = 1.5

	skillBaseXP = 100
)

type rankThreshold struct {
	level int
	title string
}

// Ascending by level.
var rankTitles = []rankThreshold{
	{1, "Novice Adventurer"},
	{10, "Apprentice Quester"},
	{20, "Seasoned Explorer"},
	{30, "Elite Vanguard"},
	{40, "Quest Master"},
	{50, "Legend of the Realm"},
}

// XPForLevel is the XP needed to advance from level to level+1.
func XPForLevel(level int) int64 {
	return int64(math.Floor(baseXP * math.Pow(float64(level), exponent)))
}

// LevelFromXP converts lifetime XP into a level, the XP earned inside that
// level and the size of the level.
func LevelFromXP(totalXP int64) (level int, currentLevelXP, xpForNextLevel int64) {
	level = 1
	next := XPForLevel(level)
	var cumulative int64
	for totalXP >= cumulative+next {
		cumulative += next
		level++
		next = XPForLevel(level)
	}
	return level, totalXP - cumulative, next
}

// RankTitle returns the highest title whose threshold the level has reached.
func RankTitle(level int) string {
	title := rankTitles[0].title
	for _, r := range rankTitles {
		if level >= r.level {
			title = r.title
		}
	}
	return title
}

// ApplyStats recomputes the derived fields of u from TotalXP and reports
// whether the level went up.
func ApplyStats(u *model.User) (leveledUp bool) {
	before := u.Level
	level, cur, next := LevelFromXP(u.TotalXP)
	u.Level = level
	u.XP = cur
	u.XPForNextLevel = next
	u.RankTitle = RankTitle(level)
	return before > 0 && level > before
}

// AddXP credits xp to the user and recomputes stats.
func AddXP(u *model.User, xp int64) (leveledUp bool) {
	if xp > 0 {
		u.TotalXP += xp
	}
	return ApplyStats(u)
}

// SkillXPForLevel is the size of a skill level.
func SkillXPForLevel(level int) int64 {
	return int64(skillBaseXP * level)
}

// AddSkillXP credits xp to a skill track, carrying overflow into further levels.
func AddSkillXP(s *model.Skill, xp int64) (levelsGained int) {
	if xp <= 0 {
		return 0
	}
	if s.Level < 1 {
		s.Level = 1
	}
	s.XP += xp
	for s.XP >= SkillXPForLevel(s.Level) {
		s.XP -= SkillXPForLevel(s.Level)
		s.Level++
		levelsGained++
	}
	s.XPForNextLevel = SkillXPForLevel(s.Level)
	return levelsGained
}

// CoinsForQuest is the coin payout for completing a quest worth xpReward.
func CoinsForQuest(xpReward int64) int64 {
	if xpReward <= 0 {
		return 0
	}
	return xpReward / 10
}
