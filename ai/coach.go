package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/kasuganosora/lifequest/server/cache"
)

const defaultHistorySize = 20

// Coach keeps per-user conversations in the cache and forwards turns to a
// Generator.
type Coach struct {
	gen    Generator
	c      cache.Cache
	size   int
	logger *zap.Logger
}

// NewCoach creates a Coach keeping the last historySize turns per user. A
// turn is one user message and the coach's reply.
func NewCoach(gen Generator, c cache.Cache, historySize int, logger *zap.Logger) *Coach {
	if historySize <= 0 {
		historySize = defaultHistorySize
	}
	return &Coach{gen: gen, c: c, size: historySize, logger: logger}
}

func historyKey(userID string) string { return "coach:" + userID }

// History returns the stored conversation, oldest first.
func (co *Coach) History(ctx context.Context, userID string) ([]ChatMessage, error) {
	raw, err := co.c.LRange(ctx, historyKey(userID), 0, -1)
	if err != nil {
		return nil, fmt.Errorf("coach history: %w", err)
	}
	out := make([]ChatMessage, 0, len(raw))
	for _, r := range raw {
		var m ChatMessage
		if err := json.Unmarshal([]byte(r), &m); err != nil {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

// Ask sends message to the coach and records both turns. A generator failure
// yields ChatFallback, which is not recorded.
func (co *Coach) Ask(ctx context.Context, userID, message string) (string, error) {
	message = strings.TrimSpace(message)
	history, err := co.History(ctx, userID)
	if err != nil {
		return "", err
	}
	reply, err := co.gen.Chat(ctx, history, message)
	if err != nil || reply == "" {
		co.logger.Warn("coach reply failed", zap.String("user_id", userID), zap.Error(err))
		return ChatFallback, nil
	}

	key := historyKey(userID)
	u, _ := json.Marshal(ChatMessage{Role: RoleUser, Text: message})
	b, _ := json.Marshal(ChatMessage{Role: RoleBot, Text: reply})
	if err := co.c.RPush(ctx, key, string(u), string(b)); err != nil {
		return "", fmt.Errorf("coach history: %w", err)
	}
	if err := co.c.LTrim(ctx, key, int64(-2*co.size), -1); err != nil {
		return "", fmt.Errorf("coach history: %w", err)
	}
	return reply, nil
}

// Reset forgets the user's conversation.
func (co *Coach) Reset(ctx context.Context, userID string) error {
	return co.c.Del(ctx, historyKey(userID))
}
