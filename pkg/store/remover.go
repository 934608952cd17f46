package store

import (
	"context"
	"sync"

	// Packages
	schema "github.com/mutablelogic/go-conddb/pkg/schema"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

type removalItem struct {
	id       schema.ObjectId
	replicas []int64
}

// remover is the single-consumer queue deleting physical replicas of
// logically-deleted objects. Per-replica failures are logged and do not
// abort processing of the remaining replicas.
type remover struct {
	mu    sync.Mutex
	queue []removalItem
	wake  chan struct{}
	wg    sync.WaitGroup
}

////////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

func newRemover() *remover {
	return &remover{
		wake: make(chan struct{}, 1),
	}
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

func (r *remover) enqueue(id schema.ObjectId, replicas []int64) {
	r.wg.Add(1)
	r.mu.Lock()
	r.queue = append(r.queue, removalItem{id: id, replicas: replicas})
	r.mu.Unlock()

	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *remover) pop() (removalItem, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.queue) == 0 {
		return removalItem{}, false
	}
	item := r.queue[0]
	r.queue = r.queue[1:]
	return item, true
}

func (r *remover) run(ctx context.Context, manager *Manager) error {
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

func (r *remover) process(ctx context.Context, manager *Manager, item removalItem) {
	key := StorageKey(item.id)
	for _, replica := range item.replicas {
		backend := manager.backends[replica]
		if backend == nil {
			manager.logf(ctx, "remove %v replica %d: no such backend", item.id, replica)
			continue
		}
		if err := backend.Delete(ctx, key); err != nil {
			manager.logf(ctx, "remove %v replica %d: %v", item.id, replica, err)
		}
	}
}
