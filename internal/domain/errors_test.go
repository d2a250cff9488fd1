package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestClassifyFailure(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want FailureKind
	}{
		{name: "not configured", err: ErrNotConfigured, want: FailureNotConfigured},
		{name: "unauthenticated wrapped", err: fmt.Errorf("imagen: token: %w", ErrUnauthenticated), want: FailureUnauthenticated},
		{name: "rate limited", err: ErrRateLimited, want: FailureRateLimited},
		{name: "quota wins over rate limit", err: fmt.Errorf("%w: %w", ErrQuotaExhausted, ErrRateLimited), want: FailureQuotaExhausted},
		{name: "empty", err: ErrEmptyResponse, want: FailureEmptyResponse},
		{name: "timeout", err: fmt.Errorf("imagen: %w", context.DeadlineExceeded), want: FailureRemote},
		{name: "unknown", err: errors.New("boom"), want: FailureRemote},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifyFailure(tc.err); got != tc.want {
				t.Fatalf("ClassifyFailure() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestImageDataURL(t *testing.T) {
	img := Image{Data: []byte("hi")}
	if got, want := img.DataURL(), "data:image/png;base64,aGk="; got != want {
		t.Fatalf("DataURL() = %q, want %q", got, want)
	}
}

func TestJobStatusTerminal(t *testing.T) {
	for _, s := range []JobStatus{JobStatusCompleted, JobStatusCompletedWithErrors, JobStatusFailed} {
		if !s.IsTerminal() {
			t.Fatalf("%s should be terminal", s)
		}
	}
	for _, s := range []JobStatus{JobStatusPending, JobStatusProcessing} {
		if s.IsTerminal() {
			t.Fatalf("%s should not be terminal", s)
		}
	}
}
