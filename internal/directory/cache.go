package directory

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

// CachedDirectory remembers successful lookups for ttl. Misses and errors are
// not cached. Concurrent lookups of the same uid share one backend call.
type CachedDirectory struct {
	next  Directory
	cache *expirable.LRU[string, Profile]
	group singleflight.Group
}

func NewCachedDirectory(next Directory, size int, ttl time.Duration) *CachedDirectory {
	return &CachedDirectory{
		next:  next,
		cache: expirable.NewLRU[string, Profile](size, nil, ttl),
	}
}

func (d *CachedDirectory) Lookup(ctx context.Context, uid string) (*Profile, error) {
	if p, ok := d.cache.Get(uid); ok {
		return &p, nil
	}
	v, err, _ := d.group.Do(uid, func() (interface{}, error) {
		p, err := d.next.Lookup(ctx, uid)
		if err != nil {
			return nil, err
		}
		d.cache.Add(uid, *p)
		return *p, nil
	})
	if err != nil {
		return nil, err
	}
	p := v.(Profile)
	return &p, nil
}
