package account

import "github.com/kasuganosora/lifequest/server/game/apperr"

var (
	ErrUserNotFound       = apperr.NotFound("User not found.")
	ErrUsernameTaken      = apperr.Conflict("Username already taken.")
	ErrEmailTaken         = apperr.Conflict("Email already registered.")
	ErrInvalidCredentials = apperr.Unauthorized("Invalid username/email or password.")
	ErrBanned             = apperr.Forbidden("This account has been banned.")
	ErrWrongPassword      = apperr.Invalid("Current password is incorrect.")
	ErrInvalidUsername    = apperr.Invalid("Username must be 3-32 letters, digits, underscores or dashes.")
	ErrInvalidEmail       = apperr.Invalid("Please enter a valid email address.")
	ErrInvalidAvatar      = apperr.Invalid("Avatar must be an http(s) URL.")

	ErrPasswordTooShort = apperr.Invalid("Password must be at least 8 characters long.")
	ErrPasswordNoUpper  = apperr.Invalid("Password must contain at least one uppercase letter.")
	ErrPasswordNoNumber = apperr.Invalid("Password must contain at least one number.")
	ErrPasswordNoSymbol = apperr.Invalid("Password must contain at least one symbol.")
)
