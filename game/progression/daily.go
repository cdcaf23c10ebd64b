package progression

import (
	"time"

	"github.com/kasuganosora/lifequest/server/model"
)

// DateLayout is the storage format of calendar days.
const DateLayout = "2006-01-02"

// StreakBonusPerDay is multiplied by the new streak length on a consecutive day.
const StreakBonusPerDay = 10

// StreakBonus describes XP granted for keeping a streak alive.
type StreakBonus struct {
	XP     int64 `json:"xp"`
	Streak int   `json:"streak"`
}

// Today formats now as a calendar day in loc.
func Today(now time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return now.In(loc).Format(DateLayout)
}

// DayDifference returns the number of calendar days from one date to another.
func DayDifference(from, to string) (int, error) {
	a, err := time.ParseInLocation(DateLayout, from, time.UTC)
	if err != nil {
		return 0, err
	}
	b, err := time.ParseInLocation(DateLayout, to, time.UTC)
	if err != nil {
		return 0, err
	}
	return int(b.Sub(a).Hours() / 24), nil
}

// Rollover applies the first-action-of-a-new-day rules to u for the calendar
// day today. It reports whether anything changed and the streak bonus, if one
// was earned. Daily counters reset once per elapsed day; the streak grows only
// across an exactly-one-day gap and falls back to 1 otherwise.
func Rollover(u *model.User, today string) (changed bool, bonus *StreakBonus) {
	diff, err := DayDifference(u.LastLoginDate, today)
	if err != nil {
		// Unknown last date: start fresh as if the streak was broken.
		diff = 2
	}
	if diff <= 0 {
		return false, nil
	}

	u.QuestsCompletedToday = 0
	u.RefreshesUsedToday = 0
	u.BonusRefreshesToday = 0
	u.QuestsContributedToGuildToday = 0

	if diff == 1 {
		if u.CurrentStreak < 1 {
			u.CurrentStreak = 1
		}
		u.CurrentStreak++
		if u.CurrentStreak > u.LongestStreak {
			u.LongestStreak = u.CurrentStreak
		}
		xp := int64(u.CurrentStreak * StreakBonusPerDay)
		u.TotalXP += xp
		bonus = &StreakBonus{XP: xp, Streak: u.CurrentStreak}
	} else {
		u.CurrentStreak = 1
		if u.LongestStreak < 1 {
			u.LongestStreak = 1
		}
	}
	u.LastLoginDate = today
	ApplyStats(u)
	return true, bonus
}
