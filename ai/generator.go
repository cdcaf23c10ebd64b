// Package ai wraps the generative collaborator that drafts quests and powers
// the LifeQuest coach.
package ai

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/kasuganosora/lifequest/server/config"
)

// ErrGeneration is returned when no usable quests could be produced.
var ErrGeneration = errors.New("Failed to generate quests from AI. Please try again.")

// ChatFallback is the coach reply used when the model cannot be reached.
const ChatFallback = "I'm having a little trouble connecting right now. Let's try again in a moment!"

// Chat roles.
const (
	RoleUser = "user"
	RoleBot  = "bot"
)

// QuestDraft is a generated quest before it is assigned to a user.
type QuestDraft struct {
	Title           string `json:"title"`
	Description     string `json:"description"`
	Type            string `json:"type"`
	Difficulty      string `json:"difficulty"`
	XPReward        int64  `json:"xpReward"`
	DurationMinutes int    `json:"durationMinutes"`
}

// ChatMessage is one turn of a coach conversation.
type ChatMessage struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// Generator produces quests and coach replies.
type Generator interface {
	GenerateQuests(ctx context.Context, skills []string) ([]QuestDraft, error)
	Chat(ctx context.Context, history []ChatMessage, message string) (string, error)
}

// New picks the Gemini generator when an API key is configured and the
// offline templates otherwise.
func New(ctx context.Context, cfg config.AIConfig, logger *zap.Logger) (Generator, error) {
	if cfg.APIKey == "" {
		logger.Info("ai: no api key configured, using offline quest templates")
		return NewTemplates(), nil
	}
	g, err := NewGemini(ctx, cfg)
	if err != nil {
		return nil, err
	}
	logger.Info("ai: using gemini", zap.String("model", g.model))
	return g, nil
}
