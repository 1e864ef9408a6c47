package config

import (
	"context"
	"strconv"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

// Runtime configuration keys.
const (
	KeyGatewayEnabled   = "gateway.enabled"
	KeyAuthLimitMax     = "gateway.rate_limit.auth.max"
	KeyAuthLimitWindow  = "gateway.rate_limit.auth.window"
	KeyAnonLimitMax     = "gateway.rate_limit.anon.max"
	KeyAnonLimitWindow  = "gateway.rate_limit.anon.window"
)

// Source is a key→value lookup for dynamic settings. Implementations may
// read from a database, a control plane, or the environment.
type Source interface {
	Lookup(ctx context.Context, key string) (string, bool, error)
}

// SourceFunc adapts a plain function to the Source interface.
type SourceFunc func(ctx context.Context, key string) (string, bool, error)

// Lookup implements Source.
func (f SourceFunc) Lookup(ctx context.Context, key string) (string, bool, error) {
	return f(ctx, key)
}

// StaticSource serves values from a fixed map. Used in tests and as the
// fallback when no dynamic source is wired.
type StaticSource map[string]string

// Lookup implements Source.
func (s StaticSource) Lookup(_ context.Context, key string) (string, bool, error) {
	v, ok := s[key]
	return v, ok, nil
}

// Runtime wraps a Source with a TTL cache so the gateway can consult
// settings on every request without hammering the backing store. Lookup
// failures fall back to the static defaults from Config: the gateway keeps
// serving with its boot-time settings during a source outage.
type Runtime struct {
	source Source
	cache  *gocache.Cache
	logger *zap.Logger
	ttl    time.Duration
}

// NewRuntime creates a Runtime over the given source.
func NewRuntime(source Source, ttl time.Duration, logger *zap.Logger) *Runtime {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Runtime{
		source: source,
		cache:  gocache.New(ttl, 2*ttl),
		logger: logger,
		ttl:    ttl,
	}
}

// Bool returns the setting as a boolean, or def when absent or invalid.
func (r *Runtime) Bool(ctx context.Context, key string, def bool) bool {
	raw, ok := r.get(ctx, key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return b
}

// Int returns the setting as an integer, or def when absent or invalid.
func (r *Runtime) Int(ctx context.Context, key string, def int) int {
	raw, ok := r.get(ctx, key)
	if !ok {
		return def
	}
	i, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return i
}

// Duration returns the setting as a duration, or def when absent or invalid.
func (r *Runtime) Duration(ctx context.Context, key string, def time.Duration) time.Duration {
	raw, ok := r.get(ctx, key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}

// Invalidate drops a cached key so the next read hits the source.
func (r *Runtime) Invalidate(key string) {
	r.cache.Delete(key)
}

func (r *Runtime) get(ctx context.Context, key string) (string, bool) {
	if cached, found := r.cache.Get(key); found {
		if s, ok := cached.(string); ok {
			return s, true
		}
	}

	raw, found, err := r.source.Lookup(ctx, key)
	if err != nil {
		r.logger.Warn("runtime config lookup failed", zap.String("key", key), zap.Error(err))
		return "", false
	}
	if !found {
		return "", false
	}

	r.cache.Set(key, raw, r.ttl)
	return raw, true
}
