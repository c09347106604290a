// Package cache provides a memoizing wrapper for upstream lookups with per-call TTLs.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	// keyPrefix namespaces cache keys, mostly for the shared Redis tier
	keyPrefix = "muse:"
	// defaultSize is used when a non-positive size is requested
	defaultSize = 1024
	// defaultFetchTimeout bounds a shared producer call, which outlives its callers' cancellation
	defaultFetchTimeout = 30 * time.Second
)

// Store is a second-tier cache that survives restarts (Redis).
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration)
}

type entry struct {
	value     any
	expiresAt time.Time
}

// envelope is the L2 encoding; expiresAt keeps L1 copies from outliving the L2 entry.
type envelope struct {
	ExpiresAt time.Time       `json:"expires_at"`
	Value     json.RawMessage `json:"value"`
}

// Provider memoizes producer results keyed by producer name and arguments.
// Concurrent misses on the same key share one upstream call.
type Provider struct {
	l1           *lru.Cache[string, entry]
	l2           Store
	group        singleflight.Group
	now          func() time.Time
	fetchTimeout time.Duration
	logger       *zap.Logger
	hits   atomic.Int64
	misses atomic.Int64
}

type Option func(*Provider)

// WithStore enables a second cache tier.
func WithStore(store Store) Option {
	return func(p *Provider) {
		p.l2 = store
	}
}

// WithClock overrides the time source used for expiry.
func WithClock(now func() time.Time) Option {
	return func(p *Provider) {
		p.now = now
	}
}

// WithFetchTimeout bounds how long a producer may run.
func WithFetchTimeout(timeout time.Duration) Option {
	return func(p *Provider) {
		if timeout > 0 {
			p.fetchTimeout = timeout
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(p *Provider) {
		p.logger = logger
	}
}

// New creates a provider holding at most size entries in memory.
func New(size int, opts ...Option) *Provider {
	if size <= 0 {
		size = defaultSize
	}
	l1, _ := lru.New[string, entry](size)

	p := &Provider{
		l1:           l1,
		now:          time.Now,
		fetchTimeout: defaultFetchTimeout,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Key derives the cache key for a producer name and its arguments.
func Key(name string, args ...any) string {
	data, err := json.Marshal(args)
	if err != nil {
		data = []byte(fmt.Sprint(args...))
	}

	h := sha256.New()
	h.Write([]byte(name))
	h.Write([]byte{'|'})
	h.Write(data)
	return keyPrefix + hex.EncodeToString(h.Sum(nil)[:16])
}

// Wrap returns the cached result of fn for (name, args) if it is still fresh,
// otherwise calls fn and caches a successful result for ttl. Errors are never cached.
// A nil provider disables caching.
//
// Concurrent callers of the same key share one call of fn. It runs detached
// from any single caller's cancellation, bounded by the fetch timeout; each
// caller still stops waiting when its own ctx is done.
func Wrap[T any](
	ctx context.Context,
	p *Provider,
	name string,
	fn func(ctx context.Context) (T, error),
	ttl time.Duration,
	args ...any,
) (T, error) {
	var zero T
	if p == nil {
		return fn(ctx)
	}

	key := Key(name, args...)

	if v, ok := p.load(key); ok {
		if typed, ok := v.(T); ok {
			p.hits.Add(1)
			return typed, nil
		}
	}

	if out, ok := loadL2[T](ctx, p, key); ok {
		p.hits.Add(1)
		return out, nil
	}

	p.misses.Add(1)
	ch := p.group.DoChan(key, func() (any, error) {
		// A flight that completed between our miss and this call already stored it.
		if v, ok := p.load(key); ok {
			return v, nil
		}

		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.fetchTimeout)
		defer cancel()

		out, err := fn(fetchCtx)
		if err != nil {
			return nil, err
		}

		expiresAt := p.now().Add(ttl)
		p.storeL1(key, out, expiresAt)
		p.storeL2(fetchCtx, key, out, expiresAt, ttl)
		return out, nil
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		return zero, res.Err
	}
	if res.Shared {
		p.logger.Debug("Shared in-flight lookup", zap.String("name", name))
	}

	typed, ok := res.Val.(T)
	if !ok {
		return zero, fmt.Errorf("cache: unexpected value type %T for %s", res.Val, name)
	}
	return typed, nil
}

// loadL2 reads a still-fresh entry from the second tier and warms L1 with
// the entry's remaining lifetime.
func loadL2[T any](ctx context.Context, p *Provider, key string) (T, bool) {
	var out T
	if p.l2 == nil {
		return out, false
	}
	data, ok := p.l2.Get(ctx, key)
	if !ok {
		return out, false
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil || json.Unmarshal(env.Value, &out) != nil {
		p.logger.Debug("Discarding undecodable L2 entry", zap.String("key", key))
		return out, false
	}
	if !p.now().Before(env.ExpiresAt) {
		return out, false
	}

	p.storeL1(key, out, env.ExpiresAt)
	return out, true
}

func (p *Provider) storeL2(ctx context.Context, key string, value any, expiresAt time.Time, ttl time.Duration) {
	if p.l2 == nil {
		return
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	data, err := json.Marshal(envelope{ExpiresAt: expiresAt, Value: raw})
	if err != nil {
		return
	}
	p.l2.Set(ctx, key, data, ttl)
}

// Stats returns hit and miss counters.
func (p *Provider) Stats() (hits, misses int64) {
	return p.hits.Load(), p.misses.Load()
}

// Len returns the number of in-memory entries, including expired ones not yet evicted.
func (p *Provider) Len() int {
	return p.l1.Len()
}

func (p *Provider) load(key string) (any, bool) {
	e, ok := p.l1.Get(key)
	if !ok {
		return nil, false
	}
	if !p.now().Before(e.expiresAt) {
		p.l1.Remove(key)
		return nil, false
	}
	return e.value, true
}

func (p *Provider) storeL1(key string, value any, expiresAt time.Time) {
	p.l1.Add(key, entry{
		value:     value,
		expiresAt: expiresAt,
	})
}
