package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidPrompt = errors.New("invalid prompt")
	ErrInvalidJob    = errors.New("invalid job")
	ErrJobCancelled  = errors.New("job cancelled")
)

// Failures reported by image generation providers.
var (
	ErrNotConfigured   = errors.New("image provider not configured")
	ErrUnauthenticated = errors.New("image provider rejected credentials")
	ErrRateLimited     = errors.New("image provider rate limited")
	ErrQuotaExhausted  = errors.New("image provider quota exhausted")
	ErrRemote          = errors.New("image provider request failed")
	ErrEmptyResponse   = errors.New("image provider returned no image")
)

// ClassifyFailure maps a provider error onto a FailureKind. Unknown errors,
// timeouts included, count as remote failures.
func ClassifyFailure(err error) FailureKind {
	switch {
	case errors.Is(err, ErrNotConfigured):
		return FailureNotConfigured
	case errors.Is(err, ErrUnauthenticated):
		return FailureUnauthenticated
	case errors.Is(err, ErrQuotaExhausted):
		return FailureQuotaExhausted
	case errors.Is(err, ErrRateLimited):
		return FailureRateLimited
	case errors.Is(err, ErrEmptyResponse):
		return FailureEmptyResponse
	default:
		return FailureRemote
	}
}
