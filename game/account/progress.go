package account

import (
	"context"

	"github.com/kasuganosora/lifequest/server/game/notify"
	"github.com/kasuganosora/lifequest/server/game/progression"
	"github.com/kasuganosora/lifequest/server/game/ranking"
	"github.com/kasuganosora/lifequest/server/model"
)

// Progress is what a mutation did to a user's advancement.
type Progress struct {
	LeveledUp   bool                     `json:"leveled_up"`
	StreakBonus *progression.StreakBonus `json:"streak_bonus,omitempty"`
}

// Broadcast pushes a committed user change to the leaderboard and to the
// user's event stream. Banned users stay off the leaderboard.
func Broadcast(ctx context.Context, board ranking.Recorder, n notify.Notifier, u *model.User, p Progress) {
	if u == nil {
		return
	}
	if u.Status != model.UserStatusBanned {
		board.Update(ctx, u.ID, u.TotalXP)
	}
	if p.StreakBonus != nil {
		n.Notify(ctx, u.ID, notify.EventStreakBonus, p.StreakBonus)
	}
	if p.LeveledUp {
		n.Notify(ctx, u.ID, notify.EventLevelUp, map[string]any{
			"level":      u.Level,
			"rank_title": u.RankTitle,
		})
	}
}
