package profile

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// CachedLoader wraps a Loader with a Redis cache.  A nil client disables
// caching and every call falls through to the underlying loader, so the
// bot keeps working when Redis is unreachable at startup.  Cache failures
// are logged and ignored; the API remains the source of truth.
type CachedLoader struct {
	inner  Loader
	client *redis.Client
	ttl    time.Duration
}

// NewCachedLoader returns a CachedLoader over inner.  client may be nil.
func NewCachedLoader(inner Loader, client *redis.Client, ttl time.Duration) *CachedLoader {
	return &CachedLoader{inner: inner, client: client, ttl: ttl}
}

func cacheKey(username string) string { return "profile:" + username }

// Fetch returns the cached profile when present, otherwise loads it from
// the underlying loader and stores the result.
func (l *CachedLoader) Fetch(ctx context.Context, username string) (Profile, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	if l.client != nil {
		raw, err := l.client.Get(ctx, cacheKey(username)).Result()
		if err == nil {
			var p Profile
			if err := json.Unmarshal([]byte(raw), &p); err == nil {
				return p, nil
			}
			// Corrupt entry; drop it and refetch.
			_ = l.client.Del(ctx, cacheKey(username)).Err()
		} else if err != redis.Nil {
			log.Printf("profile: cache read failed for %s: %v", username, err)
		}
	}
	p, err := l.inner.Fetch(ctx, username)
	if err != nil {
		return Profile{}, err
	}
	if l.client != nil {
		if raw, err := json.Marshal(p); err == nil {
			if err := l.client.Set(ctx, cacheKey(username), raw, l.ttl).Err(); err != nil {
				log.Printf("profile: cache write failed for %s: %v", username, err)
			}
		}
	}
	return p, nil
}
