package generation

import (
	"sync"
	"time"
)

// QuotaGate is a global switch tripped when the provider reports the
// project quota as exhausted. While active every prompt falls back without
// touching the dispatcher.
type QuotaGate struct {
	mu       sync.Mutex
	until    time.Time
	coolDown time.Duration
	now      func() time.Time
}

func NewQuotaGate(coolDown time.Duration, now func() time.Time) *QuotaGate {
	if coolDown <= 0 {
		coolDown = time.Hour
	}
	if now == nil {
		now = time.Now
	}
	return &QuotaGate{coolDown: coolDown, now: now}
}

// Active reports whether the gate is closed.
func (q *QuotaGate) Active() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.until.IsZero() {
		return false
	}
	if !q.now().Before(q.until) {
		q.until = time.Time{}
		return false
	}
	return true
}

// Trip closes the gate for the cool-down period.
func (q *QuotaGate) Trip() {
	q.mu.Lock()
	q.until = q.now().Add(q.coolDown)
	q.mu.Unlock()
}
