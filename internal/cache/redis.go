// Package cache builds the Redis client shared by response caching and
// distributed rate limiting.  Options come from config.CacheStoreOptions;
// the URL carries host, port, TLS (rediss://), and optionally the DB index.
//
// When Connect fails callers are expected to degrade, e.g. fall back to the
// in-memory limiter, rather than abort startup.
package cache

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/mindmap-platform/mindmap-api/internal/config"
)

// timeoutRetries is used when RetryOnTimeout is set.
const timeoutRetries = 3

// Options translates the settings view into go-redis options.  A DB index
// in the URL path wins over REDIS_DB; REDIS_PASSWORD wins over a URL
// password.
func Options(o config.CacheStoreOptions) (*redis.Options, error) {
	opt, err := redis.ParseURL(o.URL)
	if err != nil {
		return nil, fmt.Errorf("cache: parse REDIS_URL: %w", err)
	}
	if o.Password != "" {
		opt.Password = o.Password
	}
	if !urlHasDB(o.URL) {
		opt.DB = o.DB
	}
	opt.DialTimeout = o.ConnectTimeout
	opt.ReadTimeout = o.SocketTimeout
	opt.WriteTimeout = o.SocketTimeout
	if o.RetryOnTimeout {
		opt.MaxRetries = timeoutRetries
	} else {
		opt.MaxRetries = -1
	}
	return opt, nil
}

func urlHasDB(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return strings.Trim(u.Path, "/") != ""
}

// NewClient returns an unconnected client.
func NewClient(o config.CacheStoreOptions) (*redis.Client, error) {
	opt, err := Options(o)
	if err != nil {
		return nil, err
	}
	return redis.NewClient(opt), nil
}

// Connect returns a client that answered PING, or an error.  The client is
// closed on failure.
func Connect(ctx context.Context, o config.CacheStoreOptions, log *zap.SugaredLogger) (*redis.Client, error) {
	c, err := NewClient(o)
	if err != nil {
		return nil, err
	}
	pctx, cancel := context.WithTimeout(ctx, o.ConnectTimeout)
	defer cancel()
	if err := c.Ping(pctx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("cache: ping %s: %w", c.Options().Addr, err)
	}
	log.Infow("redis connected", "addr", c.Options().Addr, "db", c.Options().DB)
	return c, nil
}
