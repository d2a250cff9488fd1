package generation

import (
	"context"
	"sync"
	"time"

	"sciencenova/internal/domain"
)

// Breaker tracks remote failures per prompt key.
type Breaker interface {
	IsBlocked(ctx context.Context, key domain.PromptKey) bool
	RecordFailure(ctx context.Context, key domain.PromptKey)
}

// FailureRecord is the per-key state kept by CircuitBreaker.
type FailureRecord struct {
	FailureCount  int
	LastFailureAt time.Time
}

// BreakerOptions configures a CircuitBreaker. Zero values take the defaults.
type BreakerOptions struct {
	MaxFailures int
	CoolDown    time.Duration
	Now         func() time.Time
}

const (
	DefaultMaxFailures = 5
	DefaultCoolDown    = 180 * time.Second
)

// CircuitBreaker is the process-local Breaker. A key is blocked once it has
// MaxFailures failures and the last one is younger than CoolDown. Records
// older than CoolDown are dropped lazily, and RecordFailure sweeps them at
// most once per CoolDown so keys that never come back do not accumulate.
type CircuitBreaker struct {
	mu          sync.Mutex
	records     map[domain.PromptKey]*FailureRecord
	maxFailures int
	coolDown    time.Duration
	now         func() time.Time
	lastSweep   time.Time
}

func NewCircuitBreaker(opts BreakerOptions) *CircuitBreaker {
	if opts.MaxFailures <= 0 {
		opts.MaxFailures = DefaultMaxFailures
	}
	if opts.CoolDown <= 0 {
		opts.CoolDown = DefaultCoolDown
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &CircuitBreaker{
		records:     make(map[domain.PromptKey]*FailureRecord),
		maxFailures: opts.MaxFailures,
		coolDown:    opts.CoolDown,
		now:         opts.Now,
		lastSweep:   opts.Now(),
	}
}

func (b *CircuitBreaker) IsBlocked(_ context.Context, key domain.PromptKey) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	rec, ok := b.records[key]
	if !ok {
		return false
	}
	if b.expired(rec) {
		delete(b.records, key)
		return false
	}
	return rec.FailureCount >= b.maxFailures
}

func (b *CircuitBreaker) RecordFailure(_ context.Context, key domain.PromptKey) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	if now.Sub(b.lastSweep) >= b.coolDown {
		b.sweep()
		b.lastSweep = now
	}

	rec, ok := b.records[key]
	if !ok || b.expired(rec) {
		rec = &FailureRecord{}
		b.records[key] = rec
	}
	rec.FailureCount++
	rec.LastFailureAt = now
}

// sweep drops every expired record. Callers hold b.mu.
func (b *CircuitBreaker) sweep() {
	for k, rec := range b.records {
		if b.expired(rec) {
			delete(b.records, k)
		}
	}
}

// Reset forgets any failures recorded for key.
func (b *CircuitBreaker) Reset(key domain.PromptKey) {
	b.mu.Lock()
	delete(b.records, key)
	b.mu.Unlock()
}

// Snapshot returns a copy of the live records.
func (b *CircuitBreaker) Snapshot() map[domain.PromptKey]FailureRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[domain.PromptKey]FailureRecord, len(b.records))
	for k, rec := range b.records {
		if !b.expired(rec) {
			out[k] = *rec
		}
	}
	return out
}

func (b *CircuitBreaker) expired(rec *FailureRecord) bool {
	return b.now().Sub(rec.LastFailureAt) >= b.coolDown
}

var _ Breaker = (*CircuitBreaker)(nil)
