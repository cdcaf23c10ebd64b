package guild

import "github.com/kasuganosora/lifequest/server/game/apperr"

var (
	ErrGuildNotFound       = apperr.NotFound("Guild not found.")
	ErrGuildNameTaken      = apperr.Conflict("A guild with that name already exists.")
	ErrInvalidName         = apperr.Invalid("Guild name must be 3-40 characters.")
	ErrDescriptionTooLong  = apperr.Invalid("Guild description must be at most 500 characters.")
	ErrGuildFull           = apperr.Conflict("Guild is full.")
	ErrAlreadyMember       = apperr.Conflict("You are already a member of this guild.")
	ErrNotMember           = apperr.Forbidden("You are not a member of this guild.")
	ErrNothingToContribute = apperr.Invalid("You have no completed quests to contribute today. Complete more quests first!")
	ErrQuestCompleted      = apperr.Conflict("The guild quest is already completed!")
	ErrQuestExpired        = apperr.Invalid("The guild quest has expired. A new one will begin soon.")
	ErrInvalidMessage      = apperr.Invalid("Message must be between 1 and 500 characters.")
)
