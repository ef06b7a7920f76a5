package gitdir

import (
	"fmt"
	"path/filepath"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/zjrosen/gitdir/internal/log"
)

// CachedResolver remembers resolutions per start directory and Config.
// Both found and not-found outcomes are kept; errors never are. A ttl of
// zero keeps entries until Invalidate is called.
//
// The cache trades freshness for speed: callers that watch the filesystem
// should Invalidate on change.
type CachedResolver struct {
	resolver *Resolver
	entries  *gocache.Cache
}

// NewCachedResolver wraps r with a result cache.
func NewCachedResolver(r *Resolver, ttl time.Duration) *CachedResolver {
	return &CachedResolver{
		resolver: r,
		entries:  gocache.New(ttl, 2*ttl),
	}
}

// ResolveSync returns the cached result for dir and arg, resolving and
// storing it on a miss.
func (c *CachedResolver) ResolveSync(dir string, arg Arg) (string, error) {
	cfg := normalize(arg)
	if dir == "" {
		dir = "."
	}
	start, err := filepath.Abs(dir)
	if err != nil {
		return c.resolver.ResolveSync(dir, cfg)
	}

	key := cacheKey(start, cfg)
	if cached, ok := c.entries.Get(key); ok {
		log.Debug(log.CatCache, "hit", "start", start)
		return cached.(string), nil
	}

	path, err := c.resolver.ResolveSync(start, cfg)
	if err != nil {
		return "", err
	}
	c.entries.SetDefault(key, path)
	log.Debug(log.CatCache, "stored", "start", start, "path", path)
	return path, nil
}

// Invalidate drops every cached result.
func (c *CachedResolver) Invalidate() {
	c.entries.Flush()
	log.Debug(log.CatCache, "invalidated")
}

// Len reports the number of cached results, including expired ones that
// have not been evicted yet.
func (c *CachedResolver) Len() int {
	return c.entries.ItemCount()
}

func cacheKey(start string, cfg Config) string {
	return fmt.Sprintf("%s\x00roam=%t\x00common=%t", start, cfg.Roam, cfg.Common)
}
