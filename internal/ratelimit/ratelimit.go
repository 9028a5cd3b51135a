// internal/ratelimit/ratelimit.go
//
// Per-client request limits.
//
// Context
// -------
// Two limiters share one interface:
//
//   • Redis  – fixed-window counters per minute and per hour, shared by all
//     API replicas.  Keys expire with their window.
//   • Memory – one token bucket per client (RATE_LIMIT_REQUESTS_PER_MINUTE
//     refill, RATE_LIMIT_BURST_SIZE depth), kept in an LRU so a flood of
//     distinct clients cannot grow memory without bound.
//
// Fallback chains them: Redis first, Memory whenever Redis errors.
//
// Notes
// -----
// • A zero limit disables that window.

package ratelimit

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/mindmap-platform/mindmap-api/internal/config"
)

// MaxClients bounds the in-memory limiter table.
const MaxClients = 10_000

// Limits holds the configured ceilings.
type Limits struct {
	PerMinute int
	PerHour   int
	Burst     int
}

// LimitsFromSettings reads the rate-limit section.
func LimitsFromSettings(s *config.Settings) Limits {
	return Limits{
		PerMinute: s.RequestsPerMinute,
		PerHour:   s.RequestsPerHour,
		Burst:     s.BurstSize,
	}
}

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Limiter decides whether the client identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// ── Redis ────────────────────────────────────────────────

// Redis is a fixed-window limiter backed by a shared store.
type Redis struct {
	client *redis.Client
	limits Limits
	prefix string
	now    func() time.Time
}

// NewRedis returns a Redis limiter.  Keys are "<prefix>:<client>:<window>".
func NewRedis(c *redis.Client, l Limits, prefix string) *Redis {
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &Redis{client: c, limits: l, prefix: prefix, now: time.Now}
}

// Allow increments both windows in one pipeline.
func (rl *Redis) Allow(ctx context.Context, key string) (Decision, error) {
	now := rl.now()
	minStart := now.Truncate(time.Minute)
	hourStart := now.Truncate(time.Hour)
	minKey := fmt.Sprintf("%s:%s:m:%d", rl.prefix, key, minStart.Unix())
	hourKey := fmt.Sprintf("%s:%s:h:%d", rl.prefix, key, hourStart.Unix())

	pipe := rl.client.TxPipeline()
	minN := pipe.Incr(ctx, minKey)
	pipe.Expire(ctx, minKey, time.Minute)
	hourN := pipe.Incr(ctx, hourKey)
	pipe.Expire(ctx, hourKey, time.Hour)
	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{Allowed: true}, fmt.Errorf("ratelimit: redis: %w", err)
	}

	d := Decision{Allowed: true, Limit: rl.limits.PerMinute, Remaining: math.MaxInt}
	check := func(n int64, limit int, reset time.Time) {
		if limit <= 0 {
			return
		}
		left := limit - int(n)
		if left < d.Remaining {
			d.Remaining, d.Limit = max(left, 0), limit
		}
		if int(n) > limit {
			d.Allowed = false
			d.RetryAfter = max(d.RetryAfter, reset.Sub(now))
		}
	}
	check(minN.Val(), rl.limits.PerMinute, minStart.Add(time.Minute))
	check(hourN.Val(), rl.limits.PerHour, hourStart.Add(time.Hour))
	if d.Remaining == math.MaxInt {
		d.Remaining = 0
	}
	return d, nil
}

// ── Memory ───────────────────────────────────────────────

// Memory is a per-process token-bucket limiter.
type Memory struct {
	mu      sync.Mutex
	clients *lru.Cache[string, *rate.Limiter]
	limit   rate.Limit
	burst   int
}

// NewMemory returns a Memory limiter holding at most size clients.
func NewMemory(l Limits, size int) (*Memory, error) {
	if size <= 0 {
		size = MaxClients
	}
	c, err := lru.New[string, *rate.Limiter](size)
	if err != nil {
		return nil, fmt.Errorf("ratelimit: %w", err)
	}
	lim := rate.Inf
	if l.PerMinute > 0 {
		lim = rate.Limit(float64(l.PerMinute) / 60)
	}
	return &Memory{clients: c, limit: lim, burst: max(l.Burst, 1)}, nil
}

func (m *Memory) limiter(key string) *rate.Limiter {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l, ok := m.clients.Get(key); ok {
		return l
	}
	l := rate.NewLimiter(m.limit, m.burst)
	m.clients.Add(key, l)
	return l
}

// Allow never errors.
func (m *Memory) Allow(_ context.Context, key string) (Decision, error) {
	l := m.limiter(key)
	now := time.Now()
	r := l.ReserveN(now, 1)
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return Decision{Limit: m.burst, RetryAfter: delay}, nil
	}
	return Decision{
		Allowed:   true,
		Limit:     m.burst,
		Remaining: int(l.TokensAt(now)),
	}, nil
}

// ── Fallback ─────────────────────────────────────────────

// Fallback consults Primary and, when it errors, Secondary.
type Fallback struct {
	Primary   Limiter
	Secondary Limiter
	Log       *zap.SugaredLogger
}

// Allow implements Limiter.
func (f *Fallback) Allow(ctx context.Context, key string) (Decision, error) {
	d, err := f.Primary.Allow(ctx, key)
	if err == nil {
		return d, nil
	}
	if f.Log != nil {
		f.Log.Warnw("rate limiter degraded", "error", err)
	}
	return f.Secondary.Allow(ctx, key)
}

// New picks the limiter for the runtime: Redis with in-memory fallback when
// a client is available, Memory alone otherwise.
func New(l Limits, rc *redis.Client, log *zap.SugaredLogger) (Limiter, error) {
	mem, err := NewMemory(l, MaxClients)
	if err != nil {
		return nil, err
	}
	if rc == nil {
		return mem, nil
	}
	return &Fallback{Primary: NewRedis(rc, l, ""), Secondary: mem, Log: log}, nil
}
