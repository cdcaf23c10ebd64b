package account

import (
	"net/mail"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{3,32}$`)

// ValidatePassword checks the password policy, reporting the first rule broken.
func ValidatePassword(password string) error {
	if utf8.RuneCountInString(password) < 8 {
		return ErrPasswordTooShort
	}
	var upper, digit, symbol bool
	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= '0' && r <= '9':
			digit = true
		case r >= 'a' && r <= 'z':
		default:
			symbol = true
		}
	}
	switch {
	case !upper:
		return ErrPasswordNoUpper
	case !digit:
		return ErrPasswordNoNumber
	case !symbol:
		return ErrPasswordNoSymbol
	}
	return nil
}

func validateUsername(name string) error {
	if !usernamePattern.MatchString(name) {
		return ErrInvalidUsername
	}
	return nil
}

func validateEmail(email string) error {
	if len(email) > 128 {
		return ErrInvalidEmail
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email, "@") {
		return ErrInvalidEmail
	}
	return nil
}

func validateAvatar(raw string) error {
	if raw == "" {
		return nil
	}
	if len(raw) > 512 {
		return ErrInvalidAvatar
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ErrInvalidAvatar
	}
	return nil
}
