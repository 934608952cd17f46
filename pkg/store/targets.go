package store

import (
	"context"
	"sort"
	"sync"
	"time"

	// Packages
	schema "github.com/mutablelogic/go-conddb/pkg/schema"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// targets is a periodically refreshed snapshot of the replication target ids,
// so uploads do not walk the backend registry on every request
type targets struct {
	mu          sync.Mutex
	ids         []int64
	lastRefresh time.Time
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

// replicationTargets returns the current replication target ids, refreshing
// the snapshot when it is older than the refresh interval
func (manager *Manager) replicationTargets() []int64 {
	manager.targets.mu.Lock()
	defer manager.targets.mu.Unlock()

	now := manager.now()
	if now.Sub(manager.targets.lastRefresh) >= manager.refresh || manager.targets.lastRefresh.IsZero() {
		ids := make([]int64, 0, len(manager.backends))
		for replica := range manager.backends {
			if replica != schema.LocalReplica {
				ids = append(ids, replica)
			}
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		manager.targets.ids = ids
		manager.targets.lastRefresh = now
	}
	return manager.targets.ids
}

// logf reports a background worker failure through the configured logger
func (manager *Manager) logf(ctx context.Context, format string, args ...any) {
	if manager.logger != nil {
		manager.logger.Printf(ctx, format, args...)
	}
}
