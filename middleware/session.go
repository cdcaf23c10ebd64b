package middleware

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kasuganosora/lifequest/server/cache"
	"github.com/kasuganosora/lifequest/server/config"
)

const sessionTimeout = 2 * time.Second

func newTokenID() string { return uuid.NewString() }

// SessionKey is the cache key that keeps a token alive.
func SessionKey(token string) string { return "session:" + token }

func userSessionsKey(userID string) string { return "sessions:" + userID }

// SessionTTL picks the session lifetime for a login.
func SessionTTL(sec config.SecurityConfig, remember bool) time.Duration {
	if remember || sec.ShortTTL <= 0 {
		return sec.JWTTTLH
	}
	return sec.ShortTTL
}

// IssueSession signs a token for userID and stores its session.
func IssueSession(ctx context.Context, c cache.Cache, sec config.SecurityConfig, userID string, remember bool) (string, error) {
	ttl := SessionTTL(sec, remember)
	token, err := GenerateToken(userID, remember, sec.JWTSecret, ttl)
	if err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(ctx, sessionTimeout)
	defer cancel()
	if err := c.Set(ctx, SessionKey(token), userID, ttl); err != nil {
		return "", err
	}
	if err := c.SAdd(ctx, userSessionsKey(userID), token); err != nil {
		return "", err
	}
	return token, nil
}

// DropSession forgets token. Dropping an unknown token is not an error.
func DropSession(ctx context.Context, c cache.Cache, userID, token string) error {
	ctx, cancel := context.WithTimeout(ctx, sessionTimeout)
	defer cancel()
	if err := c.Del(ctx, SessionKey(token)); err != nil {
		return err
	}
	return c.SRem(ctx, userSessionsKey(userID), token)
}

// DropUserSessions signs userID out everywhere.
func DropUserSessions(ctx context.Context, c cache.Cache, userID string) error {
	ctx, cancel := context.WithTimeout(ctx, sessionTimeout)
	defer cancel()
	tokens, err := c.SMembers(ctx, userSessionsKey(userID))
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(tokens)+1)
	for _, t := range tokens {
		keys = append(keys, SessionKey(t))
	}
	keys = append(keys, userSessionsKey(userID))
	return c.Del(ctx, keys...)
}

// Reasons a token is refused.
var (
	ErrInvalidToken   = errors.New("invalid token")
	ErrSessionExpired = errors.New("session expired")
)

// CheckSession parses token and checks that its session is still live and
// belongs to the token's user. Failures other than ErrInvalidToken and
// ErrSessionExpired come from the session store.
func CheckSession(ctx context.Context, c cache.Cache, sec config.SecurityConfig, token string) (*Claims, error) {
	claims, err := ParseToken(token, sec.JWTSecret)
	if err != nil {
		return nil, ErrInvalidToken
	}
	ctx, cancel := context.WithTimeout(ctx, sessionTimeout)
	defer cancel()
	owner, err := c.Get(ctx, SessionKey(token))
	if cache.IsNotFound(err) {
		return nil, ErrSessionExpired
	}
	if err != nil {
		return nil, fmt.Errorf("session lookup: %w", err)
	}
	if owner != claims.UserID {
		return nil, ErrSessionExpired
	}
	return claims, nil
}

// VerifySession reports whether token carries a live session. It is shared by
// the query-token streams, which do not tell the two failures apart.
func VerifySession(ctx context.Context, c cache.Cache, sec config.SecurityConfig, token string) (*Claims, bool) {
	claims, err := CheckSession(ctx, c, sec, token)
	return claims, err == nil
}
