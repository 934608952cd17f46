package store

import (
	"context"
	"sync"

	// Packages
	schema "github.com/mutablelogic/go-conddb/pkg/schema"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

type replicationItem struct {
	id          schema.ObjectId
	contentType string
	target      int64
}

// replicator is the single-consumer replication queue. Enqueue never blocks
// and never fails the triggering request; a failed copy is logged and the
// item dropped, leaving the object served from its existing replicas.
type replicator struct {
	mu    sync.Mutex
	queue []replicationItem
	wake  chan struct{}
	wg    sync.WaitGroup
}

////////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

func newReplicator() *replicator {
	return &replicator{
		wake: make(chan struct{}, 1),
	}
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

func (r *replicator) enqueue(id schema.ObjectId, contentType string, target int64) {
	r.wg.Add(1)
	r.mu.Lock()
	r.queue = append(r.queue, replicationItem{id: id, contentType: contentType, target: target})
	r.mu.Unlock()

	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *replicator) pop() (replicationItem, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.queue) == 0 {
		return replicationItem{}, false
	}
	item := r.queue[0]
	r.queue = r.queue[1:]
	return item, true
}

func (r *replicator) run(ctx context.Context, manager *Manager) error {
	for {
		item, ok := r.pop()
		if !ok {
			select {
			case <-ctx.Done():
				return nil
			case <-r.wake:
				continue
			}
		}
		r.process(ctx, manager, item)
		r.wg.Done()
	}
}

// process copies the local bytes to the target backend and records success
// by appending to the replica set through a targeted field update, so
// concurrent metadata edits are never clobbered
func (r *replicator) process(ctx context.Context, manager *Manager, item replicationItem) {
	key := StorageKey(item.id)

	local := manager.backends[schema.LocalReplica]
	if local == nil {
		manager.logf(ctx, "replicate %v to %d: no local backend", item.id, item.target)
		return
	}
	target := manager.backends[item.target]
	if target == nil {
		manager.logf(ctx, "replicate %v to %d: no such backend", item.id, item.target)
		return
	}

	reader, err := local.Get(ctx, key, 0, -1)
	if err != nil {
		manager.logf(ctx, "replicate %v to %d: %v", item.id, item.target, err)
		return
	}
	defer reader.Close()

	if _, err := target.Put(ctx, key, reader, item.contentType); err != nil {
		manager.logf(ctx, "replicate %v to %d: %v", item.id, item.target, err)
		return
	}

	// Record the new replica
	if err := manager.conn.With("id", item.id.String()).With("replica", item.target).Exec(ctx, schema.ObjectReplicaAppend); err != nil {
		manager.logf(ctx, "replicate %v to %d: %v", item.id, item.target, err)
	}
}
