package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"sciencenova/internal/domain"
	"sciencenova/internal/storage"
	"sciencenova/pkg/zip"
)

// PageImages lists the stored images of a job. storage.FileStore implements it.
type PageImages interface {
	JobPageImages(jobID string) ([]storage.File, error)
}

// JobArchive downloads every stored page image of a job as a zip.
func (a *App) JobArchive(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if a.Pages == nil {
		a.error(w, http.StatusNotFound, "not_found", "no stored images")
		return
	}
	if _, err := a.Jobs.GetJob(r.Context(), jobID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "Job not found")
			return
		}
		a.error(w, http.StatusInternalServerError, "internal", "failed to load job")
		return
	}

	files, err := a.Pages.JobPageImages(jobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "no stored images")
			return
		}
		a.Logger.Error().Err(err).Str("job_id", jobID).Msg("archive: list failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to read images")
		return
	}

	entries := make([]zip.Entry, 0, len(files))
	for _, f := range files {
		entries = append(entries, zip.Entry{Name: f.Name, Data: f.Data, Modified: f.Modified})
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="job-%s.zip"`, jobID))
	if err := zip.Write(w, entries); err != nil {
		a.Logger.Warn().Err(err).Str("job_id", jobID).Msg("archive: stream interrupted")
	}
}
