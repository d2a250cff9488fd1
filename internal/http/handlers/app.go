package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"sciencenova/internal/domain"
	"sciencenova/internal/generation"
	"sciencenova/internal/infra"
	"sciencenova/internal/jobs"
)

// maxBodyBytes bounds request payloads; a story rarely exceeds a few hundred pages.
const maxBodyBytes = 1 << 20

// Generator is the synchronous generation entry point.
type Generator interface {
	GenerateOrFallback(ctx context.Context, req generation.Request) domain.GenerationResult
}

// Canceller stops a running job. InlineLauncher implements it.
type Canceller interface {
	Cancel(jobID string) bool
}

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

type App struct {
	Images   Generator
	Jobs     domain.JobStore
	Launcher jobs.Launcher
	// Canceller is nil when jobs run in another process.
	Canceller Canceller
	Pages     PageImages
	Checks    map[string]HealthCheck
	Logger    zerolog.Logger
}

type Options struct {
	Images    Generator
	Jobs      domain.JobStore
	Launcher  jobs.Launcher
	Canceller Canceller
	Pages     PageImages
	Checks    map[string]HealthCheck
	Logger    *infra.Logger
}

func NewApp(opts Options) *App {
	return &App{
		Images:    opts.Images,
		Jobs:      opts.Jobs,
		Launcher:  opts.Launcher,
		Canceller: opts.Canceller,
		Pages:     opts.Pages,
		Checks:    opts.Checks,
		Logger:    infra.LoggerOrNop(opts.Logger),
	}
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, errCode, message string) {
	a.json(w, code, errorResponse{Success: false, Error: errCode, Message: message})
}

func (a *App) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return false
	}
	return true
}
