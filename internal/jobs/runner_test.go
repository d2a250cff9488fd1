package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"sciencenova/internal/domain"
	"sciencenova/internal/generation"
)

type memoryStore struct {
	mu        sync.Mutex
	jobs      map[string]*domain.Job
	progress  []int
	statuses  []domain.JobStatus
	failAfter int // fail the n-th UpdateJob call, 0 disables
	calls     int
}

func newMemoryStore(jobs ...*domain.Job) *memoryStore {
	s := &memoryStore{jobs: make(map[string]*domain.Job)}
	for _, j := range jobs {
		cp := *j
		s.jobs[j.ID] = &cp
	}
	return s
}

func (s *memoryStore) CreateJob(ctx context.Context, params domain.NewJobParams) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j := &domain.Job{ID: "job-new", BatchKey: params.BatchKey, Pages: params.Pages, Status: domain.JobStatusPending, TotalImages: len(params.Pages)}
	s.jobs[j.ID] = j
	cp := *j
	return &cp, nil
}

func (s *memoryStore) UpdateJob(ctx context.Context, id string, u domain.JobUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failAfter > 0 && s.calls == s.failAfter {
		return errors.New("connection reset by peer")
	}
	j, ok := s.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	if u.Status != nil {
		j.Status = *u.Status
		s.statuses = append(s.statuses, *u.Status)
	}
	if u.Progress != nil {
		j.Progress = *u.Progress
		s.progress = append(s.progress, *u.Progress)
	}
	if u.FailedImages != nil {
		j.FailedImages = *u.FailedImages
	}
	if u.ErrorMessage != nil {
		j.ErrorMessage = u.ErrorMessage
	}
	if u.CompletedAt != nil {
		j.CompletedAt = u.CompletedAt
	}
	j.UpdatedAt = u.UpdatedAt
	return nil
}

func (s *memoryStore) GetJob(ctx context.Context, id string) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (s *memoryStore) GetLatestJobForBatch(ctx context.Context, batch string) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.jobs {
		if j.BatchKey == batch {
			cp := *j
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *memoryStore) snapshot(id string) domain.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.jobs[id]
}

type okClient struct{}

func (okClient) Configured() bool { return true }

func (okClient) Generate(ctx context.Context, prompt, aspectRatio string) (*domain.Image, error) {
	return &domain.Image{Data: []byte("png:" + prompt), MIMEType: "image/png"}, nil
}

type recordingSink struct {
	mu    sync.Mutex
	pages []string
}

func (s *recordingSink) SavePageImage(ctx context.Context, jobID, pageID string, img domain.Image) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages = append(s.pages, pageID)
	return "generated/jobs/" + jobID + "/" + pageID + ".png", nil
}

type scriptedGenerator struct {
	mu      sync.Mutex
	prompts []string
	onCall  func(n int)
}

func (g *scriptedGenerator) GenerateOrFallback(ctx context.Context, req generation.Request) domain.GenerationResult {
	g.mu.Lock()
	g.prompts = append(g.prompts, req.Prompt)
	n := len(g.prompts)
	g.mu.Unlock()
	if g.onCall != nil {
		g.onCall(n)
	}
	return domain.AIGenerated(domain.Image{Data: []byte("x")})
}

func noSleep(ctx context.Context, d time.Duration) error { return ctx.Err() }

func pendingJob(pages ...string) *domain.Job {
	job := &domain.Job{ID: "job-1", BatchKey: "story-1", Status: domain.JobStatusPending, TotalImages: len(pages)}
	for i, p := range pages {
		job.Pages = append(job.Pages, domain.PagePrompt{PageID: string(rune('a' + i)), PromptText: p})
	}
	return job
}

func TestRunnerBatchWithBlockedPage(t *testing.T) {
	ctx := context.Background()
	job := pendingJob("a lighthouse by the sea", "a cave full of glowing crystals", "a rainforest canopy")
	store := newMemoryStore(job)

	breaker := generation.NewCircuitBreaker(generation.BreakerOptions{MaxFailures: 5})
	key := generation.PrefixKey(generation.DefaultKeyPrefix)(job.Pages[1].PromptText)
	for i := 0; i < 5; i++ {
		breaker.RecordFailure(ctx, key)
	}
	svc, err := generation.NewService(generation.ServiceOptions{
		Client:     okClient{},
		Breaker:    breaker,
		Dispatcher: generation.NewDispatcher(generation.DispatcherOptions{MaxConcurrent: 3, MinInterval: -1}),
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	sink := &recordingSink{}
	var slept []time.Duration
	runner, err := NewRunner(RunnerOptions{
		Store:          store,
		Generator:      svc,
		Sink:           sink,
		InterPageDelay: 5 * time.Second,
		Sleep: func(ctx context.Context, d time.Duration) error {
			slept = append(slept, d)
			return nil
		},
	})
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}

	if err := runner.Run(ctx, job); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got := store.snapshot(job.ID)
	if got.Status != domain.JobStatusCompletedWithErrors {
		t.Fatalf("status = %q, want completed_with_errors", got.Status)
	}
	if got.ErrorMessage == nil || *got.ErrorMessage != "1 images failed to generate" {
		t.Fatalf("error message = %v", got.ErrorMessage)
	}
	if got.FailedImages != 1 {
		t.Fatalf("failed images = %d, want 1", got.FailedImages)
	}
	if got.CompletedAt == nil {
		t.Fatalf("completedAt not set")
	}
	if want := []int{1, 2, 3}; !equalInts(store.progress, want) {
		t.Fatalf("progress writes = %v, want %v", store.progress, want)
	}
	wantStatuses := []domain.JobStatus{domain.JobStatusProcessing, domain.JobStatusCompletedWithErrors}
	if len(store.statuses) != 2 || store.statuses[0] != wantStatuses[0] || store.statuses[1] != wantStatuses[1] {
		t.Fatalf("status writes = %v, want %v", store.statuses, wantStatuses)
	}
	if len(sink.pages) != 2 || sink.pages[0] != "a" || sink.pages[1] != "c" {
		t.Fatalf("stored pages = %v, want [a c]", sink.pages)
	}
	if len(slept) != 2 || slept[0] != 5*time.Second {
		t.Fatalf("delays = %v, want two 5s pauses between pages", slept)
	}
}

func TestRunnerAllPagesSucceed(t *testing.T) {
	job := pendingJob("desert", "ocean")
	store := newMemoryStore(job)
	gen := &scriptedGenerator{}
	runner, err := NewRunner(RunnerOptions{Store: store, Generator: gen, Sleep: noSleep})
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}

	if err := runner.Run(context.Background(), job); err != nil {
		t.Fatalf("Run: %v", err)
	}
	got := store.snapshot(job.ID)
	if got.Status != domain.JobStatusCompleted || got.ErrorMessage != nil {
		t.Fatalf("job = %+v, want completed without message", got)
	}
	if len(gen.prompts) != 2 || gen.prompts[0] != "desert" || gen.prompts[1] != "ocean" {
		t.Fatalf("pages generated out of order: %v", gen.prompts)
	}
}

func TestRunnerStoreFailureMarksFailed(t *testing.T) {
	job := pendingJob("one", "two", "three")
	store := newMemoryStore(job)
	store.failAfter = 3 // processing, progress 1, then progress 2 fails
	runner, err := NewRunner(RunnerOptions{Store: store, Generator: &scriptedGenerator{}, Sleep: noSleep})
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}

	if err := runner.Run(context.Background(), job); err == nil {
		t.Fatalf("Run should report the store failure")
	}
	got := store.snapshot(job.ID)
	if got.Status != domain.JobStatusFailed {
		t.Fatalf("status = %q, want failed", got.Status)
	}
	if got.ErrorMessage == nil || *got.ErrorMessage == "" {
		t.Fatalf("failed job should carry the store error")
	}
	if got.Progress != 1 {
		t.Fatalf("progress = %d, want 1", got.Progress)
	}
}

func TestRunnerCancellationMarksFailed(t *testing.T) {
	job := pendingJob("one", "two", "three")
	store := newMemoryStore(job)
	ctx, cancel := context.WithCancel(context.Background())
	gen := &scriptedGenerator{onCall: func(n int) {
		if n == 1 {
			cancel()
		}
	}}
	runner, err := NewRunner(RunnerOptions{Store: store, Generator: gen, InterPageDelay: time.Hour})
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}

	err = runner.Run(ctx, job)
	if !errors.Is(err, domain.ErrJobCancelled) {
		t.Fatalf("err = %v, want ErrJobCancelled", err)
	}
	got := store.snapshot(job.ID)
	if got.Status != domain.JobStatusFailed || got.ErrorMessage == nil || *got.ErrorMessage != "job cancelled" {
		t.Fatalf("job = %+v, want failed with job cancelled", got)
	}
	if len(gen.prompts) != 1 {
		t.Fatalf("pages generated after cancel: %v", gen.prompts)
	}
}

func TestRunnerResumesFromProgress(t *testing.T) {
	job := pendingJob("one", "two", "three")
	job.Status = domain.JobStatusProcessing
	job.Progress = 2
	store := newMemoryStore(job)
	gen := &scriptedGenerator{}
	runner, err := NewRunner(RunnerOptions{Store: store, Generator: gen, Sleep: noSleep})
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}

	if err := runner.Run(context.Background(), job); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(gen.prompts) != 1 || gen.prompts[0] != "three" {
		t.Fatalf("generated %v, want only the remaining page", gen.prompts)
	}
	if !equalInts(store.progress, []int{3}) {
		t.Fatalf("progress writes = %v, want [3]", store.progress)
	}
	if got := store.snapshot(job.ID); got.Status != domain.JobStatusCompleted {
		t.Fatalf("status = %q, want completed", got.Status)
	}
}

func TestRunnerResumeKeepsEarlierFailures(t *testing.T) {
	job := pendingJob("one", "two", "three")
	job.Status = domain.JobStatusProcessing
	job.Progress = 1
	job.FailedImages = 1
	store := newMemoryStore(job)
	gen := &scriptedGenerator{}
	runner, err := NewRunner(RunnerOptions{Store: store, Generator: gen, Sleep: noSleep})
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}

	if err := runner.Run(context.Background(), job); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(gen.prompts) != 2 {
		t.Fatalf("generated %v, want the two remaining pages", gen.prompts)
	}
	got := store.snapshot(job.ID)
	if got.Status != domain.JobStatusCompletedWithErrors {
		t.Fatalf("status = %q, want completed_with_errors", got.Status)
	}
	if got.ErrorMessage == nil || *got.ErrorMessage != "1 images failed to generate" {
		t.Fatalf("error message = %v", got.ErrorMessage)
	}
	if got.FailedImages != 1 {
		t.Fatalf("failed images = %d, want 1", got.FailedImages)
	}
}

func TestRunnerSkipsTerminalJob(t *testing.T) {
	job := pendingJob("one")
	job.Status = domain.JobStatusCompleted
	store := newMemoryStore(job)
	gen := &scriptedGenerator{}
	runner, err := NewRunner(RunnerOptions{Store: store, Generator: gen, Sleep: noSleep})
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	if err := runner.Run(context.Background(), job); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(gen.prompts) != 0 || store.calls != 0 {
		t.Fatalf("terminal job was processed again")
	}
}

func TestSleepContextHonoursCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	if err := sleepContext(ctx, time.Minute); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if time.Since(start) > time.Second {
		t.Fatalf("sleep ignored cancellation")
	}
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
