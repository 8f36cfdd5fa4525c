// Package cache memoizes DSO to organization resolution with an in-process ristretto cache.
// A DSO never changes owner, so positive results are safe to keep until the TTL; misses are never cached.
package cache

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"golang.org/x/sync/singleflight"
)

// loadTimeout bounds a shared lookup, which outlives the caller that started it.
const loadTimeout = 5 * time.Second

// OrgResolver resolves a DSO id to its owning org id ("" when the DSO does not exist).
type OrgResolver interface {
	GetOwningOrg(ctx context.Context, dsoID string) (string, error)
}

// Resolver is an OrgResolver backed by a ristretto cache. Concurrent misses for one DSO share a single lookup.
type Resolver struct {
	next  OrgResolver
	c     *ristretto.Cache[string, string]
	ttl   time.Duration
	group singleflight.Group
}

// New wraps next with a cache holding up to maxItems entries for ttl each.
func New(next OrgResolver, maxItems int64, ttl time.Duration) (*Resolver, error) {
	if maxItems <= 0 {
		maxItems = 1
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, string]{
		NumCounters: maxItems * 10,
		MaxCost:     maxItems,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Resolver{next: next, c: c, ttl: ttl}, nil
}

// GetOwningOrg returns the cached org id for dsoID, consulting next on a miss.
func (r *Resolver) GetOwningOrg(ctx context.Context, dsoID string) (string, error) {
	if orgID, ok := r.c.Get(dsoID); ok {
		return orgID, nil
	}
	v, err, _ := r.group.Do(dsoID, func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
		defer cancel()
		orgID, err := r.next.GetOwningOrg(loadCtx, dsoID)
		if err != nil || orgID == "" {
			return orgID, err
		}
		r.c.SetWithTTL(dsoID, orgID, 1, r.ttl)
		r.c.Wait()
		return orgID, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Close shuts down the cache and releases resources.
func (r *Resolver) Close() {
	r.c.Close()
}
