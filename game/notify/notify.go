// Package notify pushes per-user events and global announcements onto the
// cache pub/sub bus, where the SSE endpoint picks them up.
package notify

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/kasuganosora/lifequest/server/cache"
)

// AnnounceChannel carries announcements for every connected client.
const AnnounceChannel = "announce"

// Event types delivered to a single user.
const (
	EventLevelUp             = "level_up"
	EventStreakBonus         = "streak_bonus"
	EventGuildQuestCompleted = "guild_quest_completed"
)

// UserChannel is the pub/sub channel for userID's events.
func UserChannel(userID string) string { return "user:" + userID }

// Event is the JSON envelope published on a user channel.
type Event struct {
	Type string    `json:"type"`
	Data any       `json:"data,omitempty"`
	At   time.Time `json:"at"`
}

// Notifier delivers events to users.
type Notifier interface {
	Notify(ctx context.Context, userID, eventType string, data any)
}

// Nop drops every event.
type Nop struct{}

func (Nop) Notify(context.Context, string, string, any) {}

// PubSub publishes events through a cache.PubSub.
type PubSub struct {
	ps     cache.PubSub
	logger *zap.Logger
}

// NewPubSub creates a Notifier over ps.
func NewPubSub(ps cache.PubSub, logger *zap.Logger) *PubSub {
	return &PubSub{ps: ps, logger: logger}
}

// Notify publishes the event; delivery failures are logged and dropped.
func (n *PubSub) Notify(ctx context.Context, userID, eventType string, data any) {
	b, err := json.Marshal(Event{Type: eventType, Data: data, At: time.Now()})
	if err != nil {
		n.logger.Warn("notify marshal failed", zap.String("type", eventType), zap.Error(err))
		return
	}
	if err := n.ps.Publish(ctx, UserChannel(userID), string(b)); err != nil {
		n.logger.Warn("notify publish failed",
			zap.String("user_id", userID), zap.String("type", eventType), zap.Error(err))
	}
}

// Announce broadcasts a plain-text message to every subscriber.
func (n *PubSub) Announce(ctx context.Context, message string) error {
	return n.ps.Publish(ctx, AnnounceChannel, message)
}
