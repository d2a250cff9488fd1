package generation

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"sciencenova/internal/domain"
	"sciencenova/internal/infra"
)

// RedisBreaker shares breaker state between instances. Each key is a
// counter whose TTL is pushed out to CoolDown on every failure, so the
// record disappears exactly CoolDown after the last failure. Redis errors
// fail open.
type RedisBreaker struct {
	client      redis.Cmdable
	prefix      string
	maxFailures int
	coolDown    time.Duration
	logger      zerolog.Logger
}

// RedisBreakerOptions configures a RedisBreaker.
type RedisBreakerOptions struct {
	Client      redis.Cmdable
	Prefix      string
	MaxFailures int
	CoolDown    time.Duration
	Logger      *infra.Logger
}

func NewRedisBreaker(opts RedisBreakerOptions) (*RedisBreaker, error) {
	if opts.Client == nil {
		return nil, errors.New("breaker: redis client is required")
	}
	if opts.Prefix == "" {
		opts.Prefix = "sciencenova:breaker:"
	}
	if opts.MaxFailures <= 0 {
		opts.MaxFailures = DefaultMaxFailures
	}
	if opts.CoolDown <= 0 {
		opts.CoolDown = DefaultCoolDown
	}
	return &RedisBreaker{
		client:      opts.Client,
		prefix:      opts.Prefix,
		maxFailures: opts.MaxFailures,
		coolDown:    opts.CoolDown,
		logger:      infra.LoggerOrNop(opts.Logger),
	}, nil
}

func (b *RedisBreaker) IsBlocked(ctx context.Context, key domain.PromptKey) bool {
	n, err := b.client.Get(ctx, b.redisKey(key)).Int()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			b.logger.Warn().Err(err).Msg("breaker: redis read failed")
		}
		return false
	}
	return n >= b.maxFailures
}

func (b *RedisBreaker) RecordFailure(ctx context.Context, key domain.PromptKey) {
	rk := b.redisKey(key)
	pipe := b.client.TxPipeline()
	pipe.Incr(ctx, rk)
	pipe.Expire(ctx, rk, b.coolDown)
	if _, err := pipe.Exec(ctx); err != nil {
		b.logger.Warn().Err(err).Msg("breaker: redis write failed")
	}
}

func (b *RedisBreaker) redisKey(key domain.PromptKey) string {
	return b.prefix + string(HashKey(string(key)))
}

var _ Breaker = (*RedisBreaker)(nil)
