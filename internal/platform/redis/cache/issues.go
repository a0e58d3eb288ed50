// Package issuescache decorates the issue repository with a Redis cache
// for public feed lists. Invalidation is by version key: every write
// bumps the version, abandoning all cached lists at once.
package issuescache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	appissues "github.com/civictrack/civictrack-service/internal/app/issues"
	"github.com/civictrack/civictrack-service/internal/domain/issues"
)

type Logger interface {
	Info(ctx context.Context, msg string, args ...any)
	Error(ctx context.Context, msg string, args ...any)
}

type Option func(*CachedRepository)

func WithTTL(ttl time.Duration) Option {
	return func(c *CachedRepository) { c.ttl = ttl }
}

func WithLogger(log Logger) Option {
	return func(c *CachedRepository) { c.log = log }
}

type CachedRepository struct {
	appissues.Repository

	rdb *redis.Client
	ttl time.Duration
	log Logger
}

func New(rdb *redis.Client, next appissues.Repository, opts ...Option) *CachedRepository {
	c := &CachedRepository{
		Repository: next,
		rdb:        rdb,
		ttl:        60 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// List caches only public queries; admin views that include hidden
// issues always hit the store.
func (c *CachedRepository) List(ctx context.Context, q appissues.ListQuery) ([]issues.Issue, error) {
	if q.IncludeHidden {
		return c.Repository.List(ctx, q)
	}

	ver := c.version(ctx)
	key := fmt.Sprintf("issues:list:v%s:cat:%s:status:%s", ver, q.Category, q.Status)

	if b, err := c.rdb.Get(ctx, key).Bytes(); err == nil {
		var cached []issues.Issue
		if err := json.Unmarshal(b, &cached); err == nil {
			return cached, nil
		}
	}

	items, err := c.Repository.List(ctx, q)
	if err != nil {
		return nil, err
	}

	if b, err := json.Marshal(items); err == nil {
		if err := c.rdb.Set(ctx, key, b, c.ttl).Err(); err != nil && c.log != nil {
			c.log.Error(ctx, "issue list cache set failed", "error", err)
		}
	}

	return items, nil
}

// Invalidate bumps the version key; stale entries expire via TTL.
func (c *CachedRepository) Invalidate(ctx context.Context) {
	const key = "issues:list:version"
	if err := c.rdb.Incr(ctx, key).Err(); err != nil && c.log != nil {
		c.log.Error(ctx, "issue list cache invalidate failed", "error", err)
	}
}

func (c *CachedRepository) version(ctx context.Context) string {
	const key = "issues:list:version"
	val, err := c.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		_ = c.rdb.SetNX(ctx, key, "1", 0).Err()
		return "1"
	}
	if err != nil {
		if c.log != nil {
			c.log.Error(ctx, "issue list cache version get failed", "error", err)
		}
		return "0"
	}
	return val
}
