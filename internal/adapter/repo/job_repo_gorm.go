package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"sciencenova/internal/domain"
)

// imageJobRow is the GORM mapping of the image_jobs table.
type imageJobRow struct {
	ID           string     `gorm:"primaryKey;size:26"` // ULID length
	BatchKey     string     `gorm:"size:191;not null;index:idx_image_jobs_batch_created,priority:1"`
	Pages        string     `gorm:"type:text;not null"`
	Status       string     `gorm:"size:32;not null;index"`
	Progress     int        `gorm:"not null;default:0"`
	FailedImages int        `gorm:"not null;default:0"`
	TotalImages  int        `gorm:"not null;default:0"`
	GradeLevel   *int
	ErrorMessage *string    `gorm:"type:text"`
	CreatedAt    time.Time  `gorm:"autoCreateTime:false;not null;index:idx_image_jobs_batch_created,priority:2"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime:false;not null"`
	CompletedAt  *time.Time
}

func (imageJobRow) TableName() string { return "image_jobs" }

// JobRepositoryGorm implements domain.JobStore on sqlite or mysql.
type JobRepositoryGorm struct {
	db  *gorm.DB
	now func() time.Time
}

func NewJobRepositoryGorm(db *gorm.DB) *JobRepositoryGorm {
	return &JobRepositoryGorm{db: db, now: time.Now}
}

// Migrate creates or updates the image_jobs table.
func (r *JobRepositoryGorm) Migrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&imageJobRow{})
}

func (r *JobRepositoryGorm) CreateJob(ctx context.Context, params domain.NewJobParams) (*domain.Job, error) {
	if err := validateNewJob(params); err != nil {
		return nil, err
	}
	pages, err := json.Marshal(params.Pages)
	if err != nil {
		return nil, fmt.Errorf("encode pages: %w", err)
	}
	now := r.now().UTC()
	row := imageJobRow{
		ID:          NewJobID(now),
		BatchKey:    params.BatchKey,
		Pages:       string(pages),
		Status:      string(domain.JobStatusPending),
		TotalImages: len(params.Pages),
		GradeLevel:  params.GradeLevel,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return nil, fmt.Errorf("insert image job: %w", err)
	}
	return row.toDomain()
}

func (r *JobRepositoryGorm) UpdateJob(ctx context.Context, jobID string, update domain.JobUpdate) error {
	updatedAt := update.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = r.now()
	}
	fields := map[string]any{"updated_at": updatedAt.UTC()}
	if update.Status != nil {
		fields["status"] = string(*update.Status)
	}
	if update.Progress != nil {
		fields["progress"] = *update.Progress
	}
	if update.FailedImages != nil {
		fields["failed_images"] = *update.FailedImages
	}
	if update.ErrorMessage != nil {
		fields["error_message"] = *update.ErrorMessage
	}
	if update.CompletedAt != nil {
		fields["completed_at"] = update.CompletedAt.UTC()
	}

	res := r.db.WithContext(ctx).Model(&imageJobRow{}).Where("id = ?", jobID).Updates(fields)
	if res.Error != nil {
		return fmt.Errorf("update image job: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *JobRepositoryGorm) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	var row imageJobRow
	if err := r.db.WithContext(ctx).First(&row, "id = ?", jobID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get image job: %w", err)
	}
	return row.toDomain()
}

func (r *JobRepositoryGorm) GetLatestJobForBatch(ctx context.Context, batchKey string) (*domain.Job, error) {
	var row imageJobRow
	err := r.db.WithContext(ctx).
		Where("batch_key = ?", batchKey).
		Order("created_at desc").
		Order("id desc").
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get latest image job: %w", err)
	}
	return row.toDomain()
}

func (row imageJobRow) toDomain() (*domain.Job, error) {
	job := &domain.Job{
		ID:           row.ID,
		BatchKey:     row.BatchKey,
		Status:       domain.JobStatus(row.Status),
		Progress:     row.Progress,
		FailedImages: row.FailedImages,
		TotalImages:  row.TotalImages,
		GradeLevel:   row.GradeLevel,
		ErrorMessage: row.ErrorMessage,
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
		CompletedAt:  row.CompletedAt,
	}
	if row.Pages != "" {
		if err := json.Unmarshal([]byte(row.Pages), &job.Pages); err != nil {
			return nil, fmt.Errorf("decode pages: %w", err)
		}
	}
	return job, nil
}

var _ domain.JobStore = (*JobRepositoryGorm)(nil)
