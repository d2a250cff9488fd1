package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"sciencenova/internal/domain"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	return db
}

func newGormRepo(t *testing.T) *JobRepositoryGorm {
	t.Helper()
	r := NewJobRepositoryGorm(openTestDB(t))
	if err := r.Migrate(context.Background()); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return r
}

func TestGormCreateAndGetJob(t *testing.T) {
	ctx := context.Background()
	r := newGormRepo(t)
	grade := 5

	job, err := r.CreateJob(ctx, domain.NewJobParams{
		BatchKey:   "adventure-1",
		Pages:      []domain.PagePrompt{{PageID: "p1", PromptText: "space"}, {PageID: "p2", PromptText: "ocean"}},
		GradeLevel: &grade,
	})
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if job.Status != domain.JobStatusPending || job.Progress != 0 || job.TotalImages != 2 {
		t.Fatalf("new job = %+v, want pending/0/2", job)
	}
	if len(job.ID) != 26 {
		t.Fatalf("job id = %q, want ULID", job.ID)
	}

	got, err := r.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if len(got.Pages) != 2 || got.Pages[1].PromptText != "ocean" {
		t.Fatalf("pages = %+v", got.Pages)
	}
	if got.GradeLevel == nil || *got.GradeLevel != 5 {
		t.Fatalf("grade level = %v, want 5", got.GradeLevel)
	}
	if got.CompletedAt != nil || got.ErrorMessage != nil {
		t.Fatalf("optional fields should be empty: %+v", got)
	}
}

func TestGormUpdateJobPartial(t *testing.T) {
	ctx := context.Background()
	r := newGormRepo(t)
	job, err := r.CreateJob(ctx, domain.NewJobParams{BatchKey: "b", Pages: []domain.PagePrompt{{PageID: "p1", PromptText: "x"}}})
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	now := time.Now().UTC()
	if err := r.UpdateJob(ctx, job.ID, domain.StatusUpdate(domain.JobStatusProcessing, now)); err != nil {
		t.Fatalf("UpdateJob status: %v", err)
	}
	progress, failed := 1, 1
	if err := r.UpdateJob(ctx, job.ID, domain.JobUpdate{Progress: &progress, FailedImages: &failed, UpdatedAt: now}); err != nil {
		t.Fatalf("UpdateJob progress: %v", err)
	}

	got, err := r.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.Status != domain.JobStatusProcessing {
		t.Fatalf("status = %q, want processing", got.Status)
	}
	if got.Progress != 1 || got.FailedImages != 1 {
		t.Fatalf("progress = %d failed = %d, want 1 and 1", got.Progress, got.FailedImages)
	}

	msg := "1 images failed to generate"
	status := domain.JobStatusCompletedWithErrors
	if err := r.UpdateJob(ctx, job.ID, domain.JobUpdate{Status: &status, ErrorMessage: &msg, CompletedAt: &now, UpdatedAt: now}); err != nil {
		t.Fatalf("UpdateJob final: %v", err)
	}
	got, _ = r.GetJob(ctx, job.ID)
	if got.Progress != 1 || got.FailedImages != 1 {
		t.Fatalf("counters changed by unrelated update: progress=%d failed=%d", got.Progress, got.FailedImages)
	}
	if got.ErrorMessage == nil || *got.ErrorMessage != msg {
		t.Fatalf("error message = %v, want %q", got.ErrorMessage, msg)
	}
	if got.CompletedAt == nil {
		t.Fatalf("completed_at not set")
	}
}

func TestGormNotFound(t *testing.T) {
	ctx := context.Background()
	r := newGormRepo(t)

	if _, err := r.GetJob(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("GetJob err = %v, want ErrNotFound", err)
	}
	if _, err := r.GetLatestJobForBatch(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("GetLatestJobForBatch err = %v, want ErrNotFound", err)
	}
	if err := r.UpdateJob(ctx, "missing", domain.StatusUpdate(domain.JobStatusFailed, time.Now())); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("UpdateJob err = %v, want ErrNotFound", err)
	}
}

func TestGormLatestJobForBatch(t *testing.T) {
	ctx := context.Background()
	r := newGormRepo(t)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var ids []string
	for i := 0; i < 3; i++ {
		at := base.Add(time.Duration(i) * time.Minute)
		r.now = func() time.Time { return at }
		job, err := r.CreateJob(ctx, domain.NewJobParams{BatchKey: "story", Pages: []domain.PagePrompt{{PageID: "p", PromptText: "t"}}})
		if err != nil {
			t.Fatalf("CreateJob: %v", err)
		}
		ids = append(ids, job.ID)
	}
	if _, err := r.CreateJob(ctx, domain.NewJobParams{BatchKey: "other", Pages: []domain.PagePrompt{{PageID: "p", PromptText: "t"}}}); err != nil {
		t.Fatalf("CreateJob other: %v", err)
	}

	got, err := r.GetLatestJobForBatch(ctx, "story")
	if err != nil {
		t.Fatalf("GetLatestJobForBatch: %v", err)
	}
	if got.ID != ids[2] {
		t.Fatalf("latest id = %s, want %s", got.ID, ids[2])
	}
}

func TestGormCreateJobValidates(t *testing.T) {
	r := newGormRepo(t)
	if _, err := r.CreateJob(context.Background(), domain.NewJobParams{BatchKey: "b"}); !errors.Is(err, domain.ErrInvalidJob) {
		t.Fatalf("err = %v, want ErrInvalidJob", err)
	}
}
