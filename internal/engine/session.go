package engine

import (
	"time"

	"github.com/google/uuid"
)

// Session is the per-run state of the live engine. It is read and written
// only by the dispatch loop.
type Session struct {
	ID           string
	StartedAt    time.Time
	PositionOpen bool

	Ticks    int
	Brackets int
}

// NewSession starts a session with a fresh id.
func NewSession(now time.Time) *Session {
	return &Session{ID: uuid.NewString(), StartedAt: now}
}
