package generation

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// fakeRedis implements the few commands RedisBreaker issues. Any other
// command panics on the nil embedded interface.
type fakeRedis struct {
	redis.Cmdable
	mu     sync.Mutex
	counts map[string]int
	ttls   map[string]time.Duration
	err    error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{counts: make(map[string]int), ttls: make(map[string]time.Duration)}
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewStringResult("", f.err)
	}
	n, ok := f.counts[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(strconv.Itoa(n), nil)
}

func (f *fakeRedis) TxPipeline() redis.Pipeliner {
	return &fakePipeline{r: f}
}

type fakePipeline struct {
	redis.Pipeliner
	r   *fakeRedis
	ops []func()
}

func (p *fakePipeline) Incr(ctx context.Context, key string) *redis.IntCmd {
	p.ops = append(p.ops, func() { p.r.counts[key]++ })
	return redis.NewIntResult(0, nil)
}

func (p *fakePipeline) Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	p.ops = append(p.ops, func() { p.r.ttls[key] = expiration })
	return redis.NewBoolResult(true, nil)
}

func (p *fakePipeline) Exec(ctx context.Context) ([]redis.Cmder, error) {
	p.r.mu.Lock()
	defer p.r.mu.Unlock()
	if p.r.err != nil {
		return nil, p.r.err
	}
	for _, op := range p.ops {
		op()
	}
	return nil, nil
}

func TestRedisBreakerBlocksAfterMaxFailures(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRedis()
	b, err := NewRedisBreaker(RedisBreakerOptions{Client: fake, MaxFailures: 3, CoolDown: time.Minute})
	if err != nil {
		t.Fatalf("NewRedisBreaker: %v", err)
	}

	if b.IsBlocked(ctx, "volcano") {
		t.Fatalf("unknown key reported blocked")
	}
	for i := 1; i <= 3; i++ {
		if b.IsBlocked(ctx, "volcano") {
			t.Fatalf("blocked after %d failures, want 3", i-1)
		}
		b.RecordFailure(ctx, "volcano")
	}
	if !b.IsBlocked(ctx, "volcano") {
		t.Fatalf("key not blocked after 3 failures")
	}
	if b.IsBlocked(ctx, "ocean") {
		t.Fatalf("other keys must not be affected")
	}

	rk := b.redisKey("volcano")
	if fake.counts[rk] != 3 || fake.ttls[rk] != time.Minute {
		t.Fatalf("count=%d ttl=%s, want 3 and 1m", fake.counts[rk], fake.ttls[rk])
	}
}

func TestRedisBreakerFailsOpen(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRedis()
	b, err := NewRedisBreaker(RedisBreakerOptions{Client: fake, MaxFailures: 1})
	if err != nil {
		t.Fatalf("NewRedisBreaker: %v", err)
	}
	b.RecordFailure(ctx, "desert")
	if !b.IsBlocked(ctx, "desert") {
		t.Fatalf("key not blocked after one failure")
	}

	fake.err = errors.New("dial tcp 127.0.0.1:6379: connect: connection refused")
	if b.IsBlocked(ctx, "desert") {
		t.Fatalf("redis outage must not block prompts")
	}
	b.RecordFailure(ctx, "arctic")
	fake.err = nil
	if b.IsBlocked(ctx, "arctic") {
		t.Fatalf("failed write should not have been applied")
	}
}

func TestNewRedisBreakerRequiresClient(t *testing.T) {
	if _, err := NewRedisBreaker(RedisBreakerOptions{}); err == nil {
		t.Fatalf("expected error without a client")
	}
}
