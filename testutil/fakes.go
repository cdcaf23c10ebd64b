package testutil

import (
	"context"
	"sync"
	"time"
)

// Clock is a settable time source.
type Clock struct {
	mu sync.Mutex
	t  time.Time
}

// NewClock returns a Clock stopped at t.
func NewClock(t time.Time) *Clock { return &Clock{t: t} }

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// Event is a recorded notification.
type Event struct {
	UserID string
	Type   string
	Data   any
}

// Events records notifications in memory.
type Events struct {
	mu   sync.Mutex
	list []Event
}

func (e *Events) Notify(_ context.Context, userID, eventType string, data any) {
	e.mu.Lock()
	e.list = append(e.list, Event{UserID: userID, Type: eventType, Data: data})
	e.mu.Unlock()
}

// Types returns the event types sent to userID, in order.
func (e *Events) Types(userID string) []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []string
	for _, ev := range e.list {
		if ev.UserID == userID {
			out = append(out, ev.Type)
		}
	}
	return out
}

// Scores records leaderboard updates in memory.
type Scores struct {
	mu     sync.Mutex
	totals map[string]int64
}

func (s *Scores) Update(_ context.Context, userID string, totalXP int64) {
	s.mu.Lock()
	if s.totals == nil {
		s.totals = make(map[string]int64)
	}
	s.totals[userID] = totalXP
	s.mu.Unlock()
}

func (s *Scores) Remove(_ context.Context, userID string) {
	s.mu.Lock()
	delete(s.totals, userID)
	s.mu.Unlock()
}

// Get returns the last score recorded for userID.
func (s *Scores) Get(userID string) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.totals[userID]
	return v, ok
}
