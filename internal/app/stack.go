// Package app assembles the job store, the generation pipeline and the batch
// runner from configuration. Both binaries build the same stack.
package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"

	"sciencenova/internal/adapter/repo"
	"sciencenova/internal/domain"
	"sciencenova/internal/generation"
	"sciencenova/internal/infra"
	"sciencenova/internal/jobs"
	"sciencenova/internal/providers/imagen"
	"sciencenova/internal/storage"
)

// Stack holds the long-lived collaborators of a process.
type Stack struct {
	Store   domain.JobStore
	Service *generation.Service
	Runner  *jobs.Runner
	Files   *storage.FileStore
	// Checks are dependency probes for the health endpoint.
	Checks map[string]func(ctx context.Context) error

	closers []func()
}

// Build connects every backend named in cfg. On error, anything already
// opened is closed.
func Build(ctx context.Context, cfg *infra.Config, logger infra.Logger) (_ *Stack, err error) {
	s := &Stack{Checks: make(map[string]func(ctx context.Context) error)}
	defer func() {
		if err != nil {
			s.Close()
		}
	}()

	cache, err := s.openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	breaker, err := s.openBreaker(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	client := imagen.NewClient(imagen.Options{
		ProjectID:    cfg.GoogleProjectID,
		Location:     cfg.ImagenLocation,
		Model:        cfg.ImagenModel,
		ClientEmail:  cfg.GoogleClientEmail,
		PrivateKey:   cfg.GooglePrivateKey,
		PrivateKeyID: cfg.GooglePrivateKeyID,
		BaseURL:      cfg.ImagenBaseURL,
		HTTPClient:   &http.Client{Timeout: cfg.ImagenTimeout},
		Logger:       &logger,
	})
	if !client.Configured() {
		logger.Warn().Str("model", client.Model()).Msg("app: imagen credentials missing, every image will be a placeholder")
	}

	s.Service, err = generation.NewService(generation.ServiceOptions{
		Client:  client,
		Breaker: breaker,
		Dispatcher: generation.NewDispatcher(generation.DispatcherOptions{
			MaxConcurrent: cfg.DispatchMaxInFlight,
			MinInterval:   cfg.DispatchMinInterval,
		}),
		Quota:   generation.NewQuotaGate(cfg.QuotaCoolDown, nil),
		KeyFunc: generation.KeyFuncFor(cfg.PromptKeyStrategy),
		Cache:   cache,
		Logger:  &logger,
	})
	if err != nil {
		return nil, err
	}

	s.Files, err = storage.NewFileStore(cfg.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("app: storage: %w", err)
	}

	s.Runner, err = jobs.NewRunner(jobs.RunnerOptions{
		Store:          s.Store,
		Generator:      s.Service,
		Sink:           s.Files,
		InterPageDelay: cfg.BatchInterPageDelay,
		AspectRatio:    generation.DefaultAspectRatio,
		Logger:         &logger,
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// openStore selects the job store. The image cache is only offered on
// postgres, where its table lives.
func (s *Stack) openStore(ctx context.Context, cfg *infra.Config, logger infra.Logger) (domain.ImageCache, error) {
	if cfg.JobStoreDriver == infra.StoreDriverPostgres {
		pool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, pool.Close)
		s.Checks["database"] = pool.Ping

		runner := infra.NewSQLRunner(pool, logger)
		s.Store = repo.NewJobRepository(runner)
		if cfg.ImageCacheEnabled {
			return repo.NewImageCache(runner), nil
		}
		return nil, nil
	}

	db, err := infra.NewGormDB(cfg)
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("app: gorm handle: %w", err)
	}
	s.closers = append(s.closers, func() { _ = sqlDB.Close() })
	s.Checks["database"] = sqlDB.PingContext

	store := repo.NewJobRepositoryGorm(db)
	if err := store.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("app: migrate job store: %w", err)
	}
	s.Store = store
	if cfg.ImageCacheEnabled {
		logger.Info().Str("driver", cfg.JobStoreDriver).Msg("app: image cache needs postgres, disabled")
	}
	return nil, nil
}

func (s *Stack) openBreaker(ctx context.Context, cfg *infra.Config, logger infra.Logger) (generation.Breaker, error) {
	if cfg.BreakerBackend != infra.BreakerBackendRedis {
		return generation.NewCircuitBreaker(generation.BreakerOptions{
			MaxFailures: cfg.BreakerMaxFailures,
			CoolDown:    cfg.BreakerCoolDown,
		}), nil
	}

	client, err := infra.NewRedisClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, func() { _ = client.Close() })
	s.Checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }

	return generation.NewRedisBreaker(generation.RedisBreakerOptions{
		Client:      redis.Cmdable(client),
		MaxFailures: cfg.BreakerMaxFailures,
		CoolDown:    cfg.BreakerCoolDown,
		Logger:      &logger,
	})
}

// Close releases backends in reverse order of opening.
func (s *Stack) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}
