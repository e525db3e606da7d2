package activity

import (
	"context"
	"errors"
	"sync"
	"time"
)

// MemoryRecorder keeps the most recent events per user in memory.
type MemoryRecorder struct {
	mu      sync.Mutex
	events  map[string][]Event
	perUser int
	nextID  int64
	now     func() time.Time
}

// NewMemoryRecorder keeps up to perUser events for each user.
func NewMemoryRecorder(perUser int) *MemoryRecorder {
	if perUser <= 0 {
		perUser = 200
	}
	return &MemoryRecorder{
		events:  make(map[string][]Event),
		perUser: perUser,
		now:     time.Now,
	}
}

// Record implements Recorder.
func (m *MemoryRecorder) Record(_ context.Context, e Event) error {
	if e.UserID == "" || e.Action == "" {
		return errors.New("activity event needs a user and an action")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	e.ID = m.nextID
	if e.CreatedAt.IsZero() {
		e.CreatedAt = m.now()
	}
	events := append(m.events[e.UserID], e)
	if len(events) > m.perUser {
		events = events[len(events)-m.perUser:]
	}
	m.events[e.UserID] = events
	return nil
}

// Recent implements Recorder. Newest events come first.
func (m *MemoryRecorder) Recent(_ context.Context, userID string, limit int) ([]Event, error) {
	limit = normalizeLimit(limit)

	m.mu.Lock()
	defer m.mu.Unlock()

	events := m.events[userID]
	out := make([]Event, 0, min(limit, len(events)))
	for i := len(events) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, events[i])
	}
	return out, nil
}

// Close implements Recorder.
func (m *MemoryRecorder) Close() {}
