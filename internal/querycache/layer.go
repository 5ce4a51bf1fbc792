package querycache

import (
	"context"

	"github.com/hox/hox/internal/activitylog"
	"github.com/hox/hox/internal/vcs"
)

// CachingGateway decorates a Gateway with a cache-aside Query: a
// result is trusted only as long as the oplog position it was
// computed at matches the repository's current position (spec §4.3
// "Caching"). Every other Gateway method passes straight through.
type CachingGateway struct {
	vcs.Gateway
	cache *Cache
}

// Wrap returns a CachingGateway over gw backed by cache.
func Wrap(gw vcs.Gateway, cache *Cache) *CachingGateway {
	return &CachingGateway{Gateway: gw, cache: cache}
}

var _ vcs.Gateway = (*CachingGateway)(nil)

// Query overrides the embedded Gateway's Query for the default
// template only — custom per-call templates aren't memoised, since
// two callers asking for different fields at the same position would
// otherwise collide in the cache key.
func (g *CachingGateway) Query(ctx context.Context, expr string, template string) ([]vcs.Record, error) {
	if template != "" {
		return g.Gateway.Query(ctx, expr, template)
	}

	pos, err := g.currentPosition(ctx)
	if err != nil {
		// Fail open: caching is an optimisation, never a dependency.
		activitylog.Warn(activitylog.CategoryRevset, "querycache: could not read oplog position, bypassing cache: %v", err)
		return g.Gateway.Query(ctx, expr, template)
	}

	if records, ok, err := g.cache.Get(ctx, expr, pos); err == nil && ok {
		return records, nil
	}

	records, err := g.Gateway.Query(ctx, expr, template)
	if err != nil {
		return nil, err
	}
	if err := g.cache.Put(ctx, expr, pos, records); err != nil {
		activitylog.Warn(activitylog.CategoryRevset, "querycache: failed to store result: %v", err)
	}
	return records, nil
}

func (g *CachingGateway) currentPosition(ctx context.Context) (vcs.OperationID, error) {
	ops, err := g.Gateway.OpLog(ctx, 1, "")
	if err != nil {
		return "", err
	}
	if len(ops) == 0 {
		return "", nil
	}
	return ops[0].ID, nil
}
