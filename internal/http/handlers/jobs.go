package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"sciencenova/internal/domain"
)

type jobPageRequest struct {
	PageID        string `json:"pageId"`
	PromptText    string `json:"promptText"`
	ExistingImage string `json:"existingImage"`
}

type jobCreateRequest struct {
	JobBatchID string           `json:"jobBatchId"`
	Pages      []jobPageRequest `json:"pages"`
	GradeLevel *int             `json:"gradeLevel"`
}

type jobCreateResponse struct {
	Success        bool    `json:"success"`
	JobID          *string `json:"jobId"`
	TotalImages    int     `json:"totalImages,omitempty"`
	Message        string  `json:"message,omitempty"`
	QuotaExhausted bool    `json:"quotaExhausted,omitempty"`
}

type jobView struct {
	ID           string     `json:"id"`
	JobBatchID   string     `json:"jobBatchId"`
	Status       string     `json:"status"`
	Progress     int        `json:"progress"`
	FailedImages int        `json:"failedImages"`
	TotalImages  int        `json:"totalImages"`
	ErrorMessage *string    `json:"errorMessage"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
	CompletedAt  *time.Time `json:"completedAt"`
}

// quotaReporter is implemented by generation.Service.
type quotaReporter interface {
	QuotaExhausted() bool
}

// JobsCreate stores a job for the pages that still need an image and starts
// it without waiting.
func (a *App) JobsCreate(w http.ResponseWriter, r *http.Request) {
	var req jobCreateRequest
	if !a.decode(w, r, &req) {
		return
	}
	req.JobBatchID = strings.TrimSpace(req.JobBatchID)
	if req.JobBatchID == "" || req.Pages == nil {
		a.error(w, http.StatusBadRequest, "bad_request", "jobBatchId and pages are required")
		return
	}

	pending := pagesToGenerate(req.Pages)
	if len(pending) == 0 {
		a.json(w, http.StatusOK, jobCreateResponse{Success: true, Message: "No images to generate"})
		return
	}
	if q, ok := a.Images.(quotaReporter); ok && q.QuotaExhausted() {
		a.json(w, http.StatusOK, jobCreateResponse{Success: true, Message: "Quota exhausted - using direct fallbacks", QuotaExhausted: true})
		return
	}

	job, err := a.Jobs.CreateJob(r.Context(), domain.NewJobParams{
		BatchKey:   req.JobBatchID,
		Pages:      pending,
		GradeLevel: req.GradeLevel,
	})
	if err != nil {
		a.Logger.Error().Err(err).Str("batch", req.JobBatchID).Msg("jobs: create failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to create job")
		return
	}

	if err := a.Launcher.Launch(r.Context(), job); err != nil {
		a.Logger.Error().Err(err).Str("job_id", job.ID).Msg("jobs: launch failed")
		a.markLaunchFailed(job.ID, err)
		a.error(w, http.StatusServiceUnavailable, "unavailable", "failed to start job")
		return
	}

	a.Logger.Info().Str("job_id", job.ID).Str("batch", job.BatchKey).Int("total", job.TotalImages).Msg("jobs: created")
	id := job.ID
	a.json(w, http.StatusOK, jobCreateResponse{Success: true, JobID: &id, TotalImages: job.TotalImages})
}

// JobsGet looks a job up by jobId, or the newest job of jobBatchId.
func (a *App) JobsGet(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	jobID := strings.TrimSpace(q.Get("jobId"))
	batchID := strings.TrimSpace(q.Get("jobBatchId"))

	var (
		job *domain.Job
		err error
	)
	switch {
	case jobID != "":
		job, err = a.Jobs.GetJob(r.Context(), jobID)
	case batchID != "":
		job, err = a.Jobs.GetLatestJobForBatch(r.Context(), batchID)
	default:
		a.error(w, http.StatusBadRequest, "bad_request", "jobId or jobBatchId is required")
		return
	}
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "Job not found")
			return
		}
		a.Logger.Error().Err(err).Msg("jobs: lookup failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load job")
		return
	}
	a.json(w, http.StatusOK, map[string]any{"success": true, "job": toJobView(job)})
}

// JobsCancel stops a job running in this process.
func (a *App) JobsCancel(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if a.Canceller == nil || !a.Canceller.Cancel(jobID) {
		a.error(w, http.StatusNotFound, "not_found", "job is not running")
		return
	}
	a.json(w, http.StatusAccepted, map[string]any{"success": true, "jobId": jobID})
}

func (a *App) markLaunchFailed(jobID string, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	status := domain.JobStatusFailed
	msg := "failed to start job: " + cause.Error()
	update := domain.JobUpdate{Status: &status, ErrorMessage: &msg, UpdatedAt: time.Now().UTC()}
	if err := a.Jobs.UpdateJob(ctx, jobID, update); err != nil {
		a.Logger.Error().Err(err).Str("job_id", jobID).Msg("jobs: could not mark launch failure")
	}
}

func pagesToGenerate(pages []jobPageRequest) []domain.PagePrompt {
	out := make([]domain.PagePrompt, 0, len(pages))
	for _, p := range pages {
		if strings.TrimSpace(p.ExistingImage) != "" {
			continue
		}
		prompt := strings.TrimSpace(p.PromptText)
		if prompt == "" {
			continue
		}
		out = append(out, domain.PagePrompt{PageID: p.PageID, PromptText: prompt})
	}
	return out
}

func toJobView(j *domain.Job) jobView {
	return jobView{
		ID:           j.ID,
		JobBatchID:   j.BatchKey,
		Status:       string(j.Status),
		Progress:     j.Progress,
		FailedImages: j.FailedImages,
		TotalImages:  j.TotalImages,
		ErrorMessage: j.ErrorMessage,
		CreatedAt:    j.CreatedAt,
		UpdatedAt:    j.UpdatedAt,
		CompletedAt:  j.CompletedAt,
	}
}
