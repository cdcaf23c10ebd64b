package quest

import "github.com/kasuganosora/lifequest/server/game/apperr"

var (
	ErrQuestNotFound     = apperr.NotFound("Quest not found.")
	ErrNothingToComplete = apperr.NotFound("Quest not found")
	ErrAlreadyStarted    = apperr.Conflict("Quest has already been started.")
	ErrNoDuration        = apperr.Invalid("Cannot start a quest with no duration.")
	ErrNotStarted        = apperr.Invalid("Quest has not been started yet.")
	ErrQuestExpired      = apperr.Invalid("Quest has expired!")
	ErrCompletionLimit   = apperr.Limit("Daily quest completion limit reached. Come back tomorrow!")
	ErrRefreshLimit      = apperr.Limit("Daily refresh limit reached. Come back tomorrow!")
	ErrRefreshInProgress = apperr.Conflict("A quest refresh is already in progress.")
	ErrNoSkills          = apperr.Invalid("Select at least one skill.")
	ErrUnknownSkill      = apperr.Invalid("Unknown skill selected.")
	ErrGeneration        = apperr.Unavailable("Failed to generate quests from AI. Please try again.")
)
