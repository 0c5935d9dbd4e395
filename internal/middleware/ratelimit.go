package middleware

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/workmandi/backend/internal/apperr"
	"github.com/workmandi/backend/internal/logger"
)

// Limiter decides whether the caller identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (ok bool, retryAfter time.Duration, err error)
}

// RateLimit throttles mutating requests per caller. Reads pass through.
// A limiter error lets the request through and is logged.
func RateLimit(l Limiter, log *zap.Logger) func(http.Handler) http.Handler {
	log = logger.OrNop(log)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}
			key := r.RemoteAddr
			if id, ok := IdentityFromCtx(r.Context()); ok {
				key = id.UserID.String()
			}
			ok, wait, err := l.Allow(r.Context(), key)
			if err != nil {
				log.Warn("rate limiter unavailable", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}
			if !ok {
				apperr.Write(w, log, apperr.RateLimited("rate_limited", "too many requests", wait))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

const (
	localIdleTTL       = 10 * time.Minute
	localSweepInterval = time.Minute
)

// LocalLimiter is a token bucket per key held in process memory. Buckets
// unused for localIdleTTL are dropped; an idle bucket is full anyway, so
// dropping it does not change any decision.
type LocalLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*localBucket
	rps       rate.Limit
	burst     int
	idleTTL   time.Duration
	lastSweep time.Time
	now       func() time.Time
}

type localBucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

func NewLocalLimiter(rps float64, burst int) *LocalLimiter {
	if burst <= 0 {
		burst = 1
	}
	ttl := localIdleTTL
	if rps > 0 {
		if refill := time.Duration(float64(burst) / rps * float64(time.Second)); refill > ttl {
			ttl = refill
		}
	}
	return &LocalLimiter{
		limiters: make(map[string]*localBucket),
		rps:      rate.Limit(rps),
		burst:    burst,
		idleTTL:  ttl,
		now:      time.Now,
	}
}

func (l *LocalLimiter) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	l.mu.Lock()
	now := l.now()
	l.sweep(now)
	b, ok := l.limiters[key]
	if !ok {
		b = &localBucket{lim: rate.NewLimiter(l.rps, l.burst)}
		l.limiters[key] = b
	}
	b.lastSeen = now
	l.mu.Unlock()

	res := b.lim.Reserve()
	if !res.OK() {
		return false, time.Second, nil
	}
	if d := res.Delay(); d > 0 {
		res.Cancel()
		return false, d, nil
	}
	return true, 0, nil
}

// sweep drops idle buckets at most once per localSweepInterval. l.mu must be held.
func (l *LocalLimiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < localSweepInterval {
		return
	}
	l.lastSweep = now
	for key, b := range l.limiters {
		if now.Sub(b.lastSeen) > l.idleTTL {
			delete(l.limiters, key)
		}
	}
}

// size reports how many buckets are held.
func (l *LocalLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

// RedisLimiter is a fixed-window counter shared by every API instance.
// Each window admits burst requests and lasts burst/rps seconds.
type RedisLimiter struct {
	rdb    *redis.Client
	limit  int64
	window time.Duration
	now    func() time.Time
}

func NewRedisLimiter(rdb *redis.Client, rps float64, burst int) *RedisLimiter {
	if burst <= 0 {
		burst = 1
	}
	window := time.Second
	if rps > 0 {
		window = time.Duration(float64(burst) / rps * float64(time.Second))
	}
	return &RedisLimiter{rdb: rdb, limit: int64(burst), window: window, now: time.Now}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	now := l.now()
	slot := now.UnixNano() / int64(l.window)
	k := "ratelimit:" + key + ":" + strconv.FormatInt(slot, 10)

	var incr *redis.IntCmd
	_, err := l.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, k)
		p.Expire(ctx, k, l.window)
		return nil
	})
	if err != nil {
		return false, 0, errors.Wrap(err, "redis rate limit")
	}
	if incr.Val() > l.limit {
		next := time.Unix(0, (slot+1)*int64(l.window))
		return false, next.Sub(now), nil
	}
	return true, 0, nil
}
