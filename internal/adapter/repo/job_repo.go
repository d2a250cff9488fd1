package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"sciencenova/internal/domain"
	"sciencenova/internal/infra"
	"sciencenova/internal/sqlinline"
)

// JobRepositoryPG implements domain.JobStore on PostgreSQL.
type JobRepositoryPG struct {
	db  infra.SQLExecutor
	now func() time.Time
}

// NewJobRepository creates a job repository backed by a marked-SQL executor.
func NewJobRepository(db infra.SQLExecutor) *JobRepositoryPG {
	return &JobRepositoryPG{db: db, now: time.Now}
}

// NewJobID returns a time-ordered identifier for a new job.
func NewJobID(at time.Time) string {
	return ulid.MustNew(ulid.Timestamp(at), ulid.DefaultEntropy()).String()
}

// CreateJob inserts a pending job.
func (r *JobRepositoryPG) CreateJob(ctx context.Context, params domain.NewJobParams) (*domain.Job, error) {
	if err := validateNewJob(params); err != nil {
		return nil, err
	}
	pages, err := json.Marshal(params.Pages)
	if err != nil {
		return nil, fmt.Errorf("encode pages: %w", err)
	}
	now := r.now().UTC()
	row := r.db.QueryRow(ctx, sqlinline.QInsertImageJob,
		NewJobID(now),
		params.BatchKey,
		pages,
		len(params.Pages),
		params.GradeLevel,
		now,
	)
	job, err := scanJob(row)
	if err != nil {
		return nil, fmt.Errorf("insert image job: %w", err)
	}
	return job, nil
}

// UpdateJob applies a partial update.
func (r *JobRepositoryPG) UpdateJob(ctx context.Context, jobID string, update domain.JobUpdate) error {
	var status *string
	if update.Status != nil {
		s := string(*update.Status)
		status = &s
	}
	updatedAt := update.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = r.now()
	}
	tag, err := r.db.Exec(ctx, sqlinline.QUpdateImageJob,
		jobID,
		status,
		update.Progress,
		update.ErrorMessage,
		update.CompletedAt,
		updatedAt.UTC(),
		update.FailedImages,
	)
	if err != nil {
		return fmt.Errorf("update image job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetJob fetches a job by its identifier.
func (r *JobRepositoryPG) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	job, err := scanJob(r.db.QueryRow(ctx, sqlinline.QGetImageJob, jobID))
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get image job: %w", err)
	}
	return job, nil
}

// GetLatestJobForBatch returns the most recently created job of a batch.
func (r *JobRepositoryPG) GetLatestJobForBatch(ctx context.Context, batchKey string) (*domain.Job, error) {
	job, err := scanJob(r.db.QueryRow(ctx, sqlinline.QGetLatestImageJobForBatch, batchKey))
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get latest image job: %w", err)
	}
	return job, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*domain.Job, error) {
	var (
		job    domain.Job
		pages  []byte
		status string
	)
	if err := row.Scan(
		&job.ID,
		&job.BatchKey,
		&pages,
		&status,
		&job.Progress,
		&job.FailedImages,
		&job.TotalImages,
		&job.GradeLevel,
		&job.ErrorMessage,
		&job.CreatedAt,
		&job.UpdatedAt,
		&job.CompletedAt,
	); err != nil {
		return nil, err
	}
	job.Status = domain.JobStatus(status)
	if len(pages) > 0 {
		if err := json.Unmarshal(pages, &job.Pages); err != nil {
			return nil, fmt.Errorf("decode pages: %w", err)
		}
	}
	return &job, nil
}

func validateNewJob(params domain.NewJobParams) error {
	if strings.TrimSpace(params.BatchKey) == "" {
		return fmt.Errorf("%w: batch key is required", domain.ErrInvalidJob)
	}
	if len(params.Pages) == 0 {
		return fmt.Errorf("%w: at least one page is required", domain.ErrInvalidJob)
	}
	return nil
}

var _ domain.JobStore = (*JobRepositoryPG)(nil)
