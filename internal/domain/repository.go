package domain

import "context"

// JobStore persists batch jobs. Lookups of unknown jobs return ErrNotFound.
type JobStore interface {
	CreateJob(ctx context.Context, params NewJobParams) (*Job, error)
	UpdateJob(ctx context.Context, jobID string, update JobUpdate) error
	GetJob(ctx context.Context, jobID string) (*Job, error)
	GetLatestJobForBatch(ctx context.Context, batchKey string) (*Job, error)
}

// ImageCache stores successful generations keyed by a request hash.
type ImageCache interface {
	Lookup(ctx context.Context, key string) (*Image, error)
	Store(ctx context.Context, key string, img Image) error
}
