package generation

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"sciencenova/internal/metrics"
)

// ErrNotAdmitted wraps the context error of a Submit that gave up waiting.
var ErrNotAdmitted = errors.New("dispatcher: task not admitted")

const (
	DefaultMaxConcurrent = 3
	DefaultMinInterval   = 800 * time.Millisecond
)

// DispatcherOptions configures a Dispatcher. Zero values take the defaults;
// a negative MinInterval disables spacing.
type DispatcherOptions struct {
	MaxConcurrent int
	MinInterval   time.Duration
}

// Dispatcher throttles calls to the remote generator. At most MaxConcurrent
// tasks run at once and task starts are at least MinInterval apart.
//
// Admission is FIFO: a submitter first takes the single admission permit,
// then waits for a slot and the spacing gate while holding it, and hands
// the permit to the next submitter once its own task starts. Both
// semaphores queue waiters in arrival order.
type Dispatcher struct {
	admission *semaphore.Weighted
	slots     *semaphore.Weighted
	limiter   *rate.Limiter
	max       int
	inFlight  atomic.Int64
}

func NewDispatcher(opts DispatcherOptions) *Dispatcher {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = DefaultMaxConcurrent
	}
	if opts.MinInterval == 0 {
		opts.MinInterval = DefaultMinInterval
	}
	limit := rate.Inf
	if opts.MinInterval > 0 {
		limit = rate.Every(opts.MinInterval)
	}
	return &Dispatcher{
		admission: semaphore.NewWeighted(1),
		slots:     semaphore.NewWeighted(int64(opts.MaxConcurrent)),
		limiter:   rate.NewLimiter(limit, 1),
		max:       opts.MaxConcurrent,
	}
}

// Submit runs task once a slot and the spacing gate allow it. The slot is
// released when task returns, whatever the outcome, and task's error is
// returned unchanged. If ctx ends while waiting, task never runs and the
// returned error wraps ErrNotAdmitted.
func (d *Dispatcher) Submit(ctx context.Context, task func(ctx context.Context) error) error {
	waitStart := time.Now()
	if err := d.acquire(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrNotAdmitted, err)
	}
	metrics.DispatcherWaitSeconds.Observe(time.Since(waitStart).Seconds())

	d.inFlight.Add(1)
	metrics.DispatcherInFlight.Inc()
	defer func() {
		d.inFlight.Add(-1)
		metrics.DispatcherInFlight.Dec()
		d.slots.Release(1)
	}()

	return task(ctx)
}

func (d *Dispatcher) acquire(ctx context.Context) error {
	if err := d.admission.Acquire(ctx, 1); err != nil {
		return err
	}
	defer d.admission.Release(1)

	if err := d.slots.Acquire(ctx, 1); err != nil {
		return err
	}
	if err := d.limiter.Wait(ctx); err != nil {
		d.slots.Release(1)
		return err
	}
	return nil
}

// InFlight reports the number of tasks currently holding a slot.
func (d *Dispatcher) InFlight() int {
	return int(d.inFlight.Load())
}

// MaxConcurrent reports the slot count.
func (d *Dispatcher) MaxConcurrent() int {
	return d.max
}

// Dispatch is Submit for tasks that produce a value.
func Dispatch[T any](ctx context.Context, d *Dispatcher, task func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := d.Submit(ctx, func(ctx context.Context) error {
		v, err := task(ctx)
		out = v
		return err
	})
	return out, err
}
