package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"sciencenova/internal/domain"
	"sciencenova/internal/infra"
)

// ErrShuttingDown is returned by Launch once Shutdown has begun.
var ErrShuttingDown = errors.New("jobs: launcher is shutting down")

// Launcher hands a created job to something that will run it. ctx only
// bounds the hand-off; the run itself outlives the caller.
type Launcher interface {
	Launch(ctx context.Context, job *domain.Job) error
}

// JobRunner is the part of Runner the launchers depend on.
type JobRunner interface {
	Run(ctx context.Context, job *domain.Job) error
	MarkFailed(jobID string, cause error)
}

// InlineLauncher runs each job on its own goroutine inside this process.
type InlineLauncher struct {
	runner JobRunner
	logger zerolog.Logger

	base     context.Context
	stopBase context.CancelFunc

	mu      sync.Mutex
	closed  bool
	running map[string]context.CancelFunc
	wg      sync.WaitGroup
}

func NewInlineLauncher(runner JobRunner, logger *infra.Logger) *InlineLauncher {
	base, stop := context.WithCancel(context.Background())
	return &InlineLauncher{
		runner:   runner,
		logger:   infra.LoggerOrNop(logger),
		base:     base,
		stopBase: stop,
		running:  make(map[string]context.CancelFunc),
	}
}

// Launch starts job in the background and returns immediately.
func (l *InlineLauncher) Launch(_ context.Context, job *domain.Job) error {
	if job == nil || job.ID == "" {
		return fmt.Errorf("jobs: %w: missing id", domain.ErrInvalidJob)
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrShuttingDown
	}
	if _, ok := l.running[job.ID]; ok {
		l.mu.Unlock()
		return fmt.Errorf("jobs: job %s already running", job.ID)
	}
	ctx, cancel := context.WithCancel(l.base)
	l.running[job.ID] = cancel
	l.wg.Add(1)
	l.mu.Unlock()

	go l.supervise(ctx, cancel, job)
	return nil
}

func (l *InlineLauncher) supervise(ctx context.Context, cancel context.CancelFunc, job *domain.Job) {
	defer l.wg.Done()
	defer func() {
		l.mu.Lock()
		delete(l.running, job.ID)
		l.mu.Unlock()
		cancel()
	}()
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error().Str("job_id", job.ID).Interface("panic", r).Msg("jobs: runner panicked")
			l.runner.MarkFailed(job.ID, fmt.Errorf("jobs: runner panic: %v", r))
		}
	}()

	if err := l.runner.Run(ctx, job); err != nil {
		l.logger.Warn().Err(err).Str("job_id", job.ID).Msg("jobs: run ended with error")
	}
}

// Cancel stops a running job. It reports false when the job is not running here.
func (l *InlineLauncher) Cancel(jobID string) bool {
	l.mu.Lock()
	cancel, ok := l.running[jobID]
	l.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// Running returns the number of jobs currently in flight.
func (l *InlineLauncher) Running() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.running)
}

// Wait blocks until every launched job has returned.
func (l *InlineLauncher) Wait() {
	l.wg.Wait()
}

// Shutdown refuses new jobs and waits for running ones. When ctx expires first
// the remaining jobs are cancelled, which marks them failed, and Shutdown
// waits for them to record it.
func (l *InlineLauncher) Shutdown(ctx context.Context) error {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		l.stopBase()
		return nil
	case <-ctx.Done():
		l.stopBase()
		<-done
		return ctx.Err()
	}
}
