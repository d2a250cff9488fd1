package generation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"sciencenova/internal/domain"
	"sciencenova/internal/infra"
	"sciencenova/internal/metrics"
)

// ImageGenerator performs one remote generation call.
type ImageGenerator interface {
	Configured() bool
	Generate(ctx context.Context, prompt, aspectRatio string) (*domain.Image, error)
}

// DefaultAspectRatio is used when a request leaves the ratio empty.
const DefaultAspectRatio = "16:9"

// Request is a single generate-or-fallback call.
type Request struct {
	Prompt      string
	AspectRatio string
	GradeLevel  *int
	// SkipCache bypasses the lookup; a success is still stored.
	SkipCache bool
}

// ServiceOptions wires the collaborators of a Service. Breaker and
// Dispatcher are shared process-wide; Quota and Cache are optional.
type ServiceOptions struct {
	Client     ImageGenerator
	Breaker    Breaker
	Dispatcher *Dispatcher
	Quota      *QuotaGate
	KeyFunc    KeyFunc
	Cache      domain.ImageCache
	Logger     *infra.Logger
}

// Service turns a prompt into an AI image or a placeholder. It never fails.
type Service struct {
	client     ImageGenerator
	breaker    Breaker
	dispatcher *Dispatcher
	quota      *QuotaGate
	keyFunc    KeyFunc
	cache      domain.ImageCache
	logger     zerolog.Logger
}

func NewService(opts ServiceOptions) (*Service, error) {
	if opts.Client == nil {
		return nil, errors.New("generation: client is required")
	}
	if opts.Breaker == nil {
		return nil, errors.New("generation: breaker is required")
	}
	if opts.Dispatcher == nil {
		return nil, errors.New("generation: dispatcher is required")
	}
	if opts.KeyFunc == nil {
		opts.KeyFunc = PrefixKey(DefaultKeyPrefix)
	}
	return &Service{
		client:     opts.Client,
		breaker:    opts.Breaker,
		dispatcher: opts.Dispatcher,
		quota:      opts.Quota,
		keyFunc:    opts.KeyFunc,
		cache:      opts.Cache,
		logger:     infra.LoggerOrNop(opts.Logger),
	}, nil
}

// GenerateOrFallback checks configuration, the quota gate and the breaker
// before spending a dispatch slot. Every failure past that point is recorded
// against the prompt key and answered with a placeholder.
func (s *Service) GenerateOrFallback(ctx context.Context, req Request) domain.GenerationResult {
	start := time.Now()
	if req.AspectRatio == "" {
		req.AspectRatio = DefaultAspectRatio
	}
	result := s.generate(ctx, req)
	result.Duration = time.Since(start)

	metrics.GenerationResultsTotal.WithLabelValues(string(result.Kind), string(result.Reason)).Inc()
	return result
}

func (s *Service) generate(ctx context.Context, req Request) domain.GenerationResult {
	cacheKey := ""
	if s.cache != nil {
		cacheKey = CacheKey(req.Prompt, req.AspectRatio, req.GradeLevel)
		if !req.SkipCache {
			if img := s.lookupCache(ctx, cacheKey); img != nil {
				res := domain.AIGenerated(*img)
				res.FromCache = true
				return res
			}
		}
	}

	if !s.client.Configured() {
		return s.fallback(req.Prompt, domain.FailureNotConfigured)
	}

	if s.quota != nil && s.quota.Active() {
		return s.fallback(req.Prompt, domain.FailureQuotaExhausted)
	}

	key := s.keyFunc(req.Prompt)
	if s.breaker.IsBlocked(ctx, key) {
		metrics.BreakerShortCircuitsTotal.Inc()
		s.logger.Debug().Str("prompt_key", string(key)).Msg("generation: key blocked, using fallback")
		return s.fallback(req.Prompt, domain.FailureRateLimited)
	}

	img, err := Dispatch(ctx, s.dispatcher, func(ctx context.Context) (img *domain.Image, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%w: panic: %v", domain.ErrRemote, r)
			}
		}()
		callStart := time.Now()
		img, err = s.client.Generate(ctx, req.Prompt, req.AspectRatio)
		outcome := "ok"
		if err != nil {
			outcome = string(domain.ClassifyFailure(err))
		}
		metrics.RemoteCallSeconds.WithLabelValues(outcome).Observe(time.Since(callStart).Seconds())
		return img, err
	})
	if err == nil && (img == nil || len(img.Data) == 0) {
		err = domain.ErrEmptyResponse
	}
	if err != nil {
		if errors.Is(err, ErrNotAdmitted) || ctx.Err() != nil {
			// The caller went away; the remote is not at fault.
			s.logger.Debug().Err(err).Str("prompt_key", string(key)).Msg("generation: caller gone, not counted against prompt")
			return s.fallback(req.Prompt, domain.FailureRemote)
		}
		kind := domain.ClassifyFailure(err)
		if kind != domain.FailureNotConfigured {
			s.breaker.RecordFailure(ctx, key)
		}
		if kind == domain.FailureQuotaExhausted && s.quota != nil {
			s.quota.Trip()
		}
		s.logger.Warn().Err(err).Str("reason", string(kind)).Str("prompt_key", string(key)).Msg("generation: remote call failed, using fallback")
		return s.fallback(req.Prompt, kind)
	}

	if s.cache != nil {
		if err := s.cache.Store(ctx, cacheKey, *img); err != nil {
			s.logger.Warn().Err(err).Msg("generation: cache store failed")
		}
	}
	return domain.AIGenerated(*img)
}

// QuotaExhausted reports whether the project quota gate is currently closed.
func (s *Service) QuotaExhausted() bool {
	return s.quota != nil && s.quota.Active()
}

func (s *Service) lookupCache(ctx context.Context, key string) *domain.Image {
	img, err := s.cache.Lookup(ctx, key)
	switch {
	case err == nil && img != nil:
		metrics.ImageCacheLookupsTotal.WithLabelValues("hit").Inc()
		return img
	case err == nil || errors.Is(err, domain.ErrNotFound):
		metrics.ImageCacheLookupsTotal.WithLabelValues("miss").Inc()
	default:
		metrics.ImageCacheLookupsTotal.WithLabelValues("error").Inc()
		s.logger.Warn().Err(err).Msg("generation: cache lookup failed")
	}
	return nil
}

func (s *Service) fallback(prompt string, reason domain.FailureKind) domain.GenerationResult {
	return domain.Fallback(RenderFallback(prompt), reason)
}
