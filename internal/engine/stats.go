package engine

import (
	"context"

	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/imamik/leasehold/internal/platform/cache"
	"github.com/imamik/leasehold/internal/platform/hypervisor"
	"github.com/imamik/leasehold/internal/store"
)

const platformStatsKey = "stats:platform"

func resourceStatsKey(id string) string {
	return "stats:resource:" + id
}

// ResourceStats returns the live hypervisor status of a resource, cached for
// a few seconds.
func (e *Engine) ResourceStats(ctx context.Context, resourceID string) (hypervisor.ContainerStatus, error) {
	res, err := e.store.GetResource(ctx, resourceID)
	if err != nil {
		return hypervisor.ContainerStatus{}, err
	}
	return cache.GetOrLoad(ctx, e.cache, resourceStatsKey(res.ID), e.cfg.Cache.ResourceStatsTTL,
		func(ctx context.Context) (hypervisor.ContainerStatus, error) {
			st, err := e.hv.Status(ctx, res.HypervisorID)
			if err != nil {
				return hypervisor.ContainerStatus{}, err
			}
			return *st, nil
		})
}

// PlatformStats returns datastore-wide aggregates, cached briefly.
func (e *Engine) PlatformStats(ctx context.Context) (store.Stats, error) {
	return cache.GetOrLoad(ctx, e.cache, platformStatsKey, e.cfg.Cache.PlatformStatsTTL, e.store.Stats)
}

func (e *Engine) invalidateStats(ctx context.Context, resourceID string) {
	if e.cache == nil {
		return
	}
	if err := e.cache.Delete(ctx, resourceStatsKey(resourceID), platformStatsKey); err != nil {
		log.FromContext(ctx).Error(err, "failed to invalidate cached stats", "resource", resourceID)
	}
}
