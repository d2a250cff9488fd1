package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"sciencenova/internal/domain"
	"sciencenova/internal/generation"
	"sciencenova/internal/infra"
	"sciencenova/internal/metrics"
)

// DefaultInterPageDelay spaces consecutive pages of one batch.
const DefaultInterPageDelay = 5 * time.Second

// finalWriteTimeout bounds the terminal status write once the run context is gone.
const finalWriteTimeout = 10 * time.Second

// Generator produces an image or a placeholder for one prompt.
type Generator interface {
	GenerateOrFallback(ctx context.Context, req generation.Request) domain.GenerationResult
}

// PageSink persists generated page images.
type PageSink interface {
	SavePageImage(ctx context.Context, jobID, pageID string, img domain.Image) (string, error)
}

// RunnerOptions wires a Runner. Sink is optional.
type RunnerOptions struct {
	Store          domain.JobStore
	Generator      Generator
	Sink           PageSink
	InterPageDelay time.Duration
	AspectRatio    string
	Sleep          func(ctx context.Context, d time.Duration) error
	Now            func() time.Time
	Logger         *infra.Logger
}

// Runner walks the pages of a job in order and records progress after each one.
type Runner struct {
	store     domain.JobStore
	generator Generator
	sink      PageSink
	delay     time.Duration
	aspect    string
	sleep     func(ctx context.Context, d time.Duration) error
	now       func() time.Time
	logger    zerolog.Logger
}

func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Store == nil {
		return nil, errors.New("jobs: store is required")
	}
	if opts.Generator == nil {
		return nil, errors.New("jobs: generator is required")
	}
	delay := opts.InterPageDelay
	if delay < 0 {
		delay = 0
	}
	aspect := opts.AspectRatio
	if aspect == "" {
		aspect = generation.DefaultAspectRatio
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Runner{
		store:     opts.Store,
		generator: opts.Generator,
		sink:      opts.Sink,
		delay:     delay,
		aspect:    aspect,
		sleep:     sleep,
		now:       now,
		logger:    infra.LoggerOrNop(opts.Logger),
	}, nil
}

// Run processes job to a terminal status. Page failures only raise the error
// count; a store failure or cancellation marks the job failed and is returned.
// A job that already made progress resumes at its next page.
func (r *Runner) Run(ctx context.Context, job *domain.Job) error {
	if job == nil {
		return fmt.Errorf("jobs: %w: nil job", domain.ErrInvalidJob)
	}
	if job.Status.IsTerminal() {
		r.logger.Info().Str("job_id", job.ID).Str("status", string(job.Status)).Msg("jobs: job already finished, skipping")
		return nil
	}

	metrics.JobsRunning.Inc()
	defer metrics.JobsRunning.Dec()

	log := r.logger.With().Str("job_id", job.ID).Str("batch", job.BatchKey).Logger()
	log.Info().Int("pages", len(job.Pages)).Int("progress", job.Progress).Msg("jobs: batch started")

	if err := r.transition(ctx, job.ID, domain.JobStatusProcessing, nil); err != nil {
		return r.fail(job.ID, log, err)
	}

	failed := job.FailedImages
	for i := job.Progress; i < len(job.Pages); i++ {
		if err := ctx.Err(); err != nil {
			return r.fail(job.ID, log, domain.ErrJobCancelled)
		}
		page := job.Pages[i]

		res := r.generator.GenerateOrFallback(ctx, generation.Request{
			Prompt:      page.PromptText,
			AspectRatio: r.aspect,
			GradeLevel:  job.GradeLevel,
		})
		if res.IsFallback() {
			failed++
			metrics.JobPagesTotal.WithLabelValues(string(domain.ResultFallback)).Inc()
			log.Warn().Str("page_id", page.PageID).Str("reason", string(res.Reason)).Msg("jobs: page fell back to placeholder")
		} else {
			metrics.JobPagesTotal.WithLabelValues(string(domain.ResultAIGenerated)).Inc()
			r.savePage(ctx, log, job.ID, page.PageID, res.Image)
		}

		progress := i + 1
		failedSoFar := failed
		update := domain.JobUpdate{Progress: &progress, FailedImages: &failedSoFar, UpdatedAt: r.now()}
		if err := r.store.UpdateJob(ctx, job.ID, update); err != nil {
			if ctx.Err() != nil {
				return r.fail(job.ID, log, domain.ErrJobCancelled)
			}
			return r.fail(job.ID, log, fmt.Errorf("jobs: update progress: %w", err))
		}
		job.Progress = progress
		job.FailedImages = failed

		if progress == len(job.Pages) {
			break
		}
		if err := r.sleep(ctx, r.delay); err != nil {
			return r.fail(job.ID, log, domain.ErrJobCancelled)
		}
	}

	status := domain.JobStatusCompleted
	var msg *string
	if failed > 0 {
		status = domain.JobStatusCompletedWithErrors
		m := fmt.Sprintf("%d images failed to generate", failed)
		msg = &m
	}
	at := r.now()
	update := domain.JobUpdate{Status: &status, ErrorMessage: msg, UpdatedAt: at, CompletedAt: &at}
	if err := r.store.UpdateJob(ctx, job.ID, update); err != nil {
		return r.fail(job.ID, log, fmt.Errorf("jobs: complete job: %w", err))
	}
	metrics.JobTransitionsTotal.WithLabelValues(string(status)).Inc()
	job.Status = status
	log.Info().Str("status", string(status)).Int("failed", failed).Msg("jobs: batch finished")
	return nil
}

// MarkFailed records a terminal failure for jobID outside of Run, for example
// after a recovered panic.
func (r *Runner) MarkFailed(jobID string, cause error) {
	r.fail(jobID, r.logger.With().Str("job_id", jobID).Logger(), cause)
}

func (r *Runner) transition(ctx context.Context, id string, status domain.JobStatus, msg *string) error {
	update := domain.StatusUpdate(status, r.now())
	update.ErrorMessage = msg
	if err := r.store.UpdateJob(ctx, id, update); err != nil {
		return fmt.Errorf("jobs: set %s: %w", status, err)
	}
	metrics.JobTransitionsTotal.WithLabelValues(string(status)).Inc()
	return nil
}

// fail writes the Failed status on a context detached from the run, so a
// cancelled job still reaches a terminal state.
func (r *Runner) fail(id string, log zerolog.Logger, cause error) error {
	msg := cause.Error()
	ctx, cancel := context.WithTimeout(context.Background(), finalWriteTimeout)
	defer cancel()
	if err := r.transition(ctx, id, domain.JobStatusFailed, &msg); err != nil {
		log.Error().Err(err).Str("cause", msg).Msg("jobs: could not record failure")
	} else {
		log.Warn().Str("cause", msg).Msg("jobs: batch failed")
	}
	return cause
}

func (r *Runner) savePage(ctx context.Context, log zerolog.Logger, jobID, pageID string, img *domain.Image) {
	if r.sink == nil || img == nil {
		return
	}
	key, err := r.sink.SavePageImage(ctx, jobID, pageID, *img)
	if err != nil {
		log.Warn().Err(err).Str("page_id", pageID).Msg("jobs: persist page image failed")
		return
	}
	log.Debug().Str("page_id", pageID).Str("key", key).Msg("jobs: page image stored")
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
