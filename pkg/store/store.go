// Package store implements the temporal object store: persistent object
// versions with half-open validity intervals, interned path/metadata/content
// type dictionaries, matching queries, and asynchronous replication and
// removal of physical replicas.
package store

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"io"

	// Packages
	pg "github.com/mutablelogic/go-pg"
	otel "github.com/mutablelogic/go-client/pkg/otel"
	conddb "github.com/mutablelogic/go-conddb"
	dictionary "github.com/mutablelogic/go-conddb/pkg/dictionary"
	schema "github.com/mutablelogic/go-conddb/pkg/schema"
	httpresponse "github.com/mutablelogic/go-server/pkg/httpresponse"
	errgroup "golang.org/x/sync/errgroup"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

type Manager struct {
	opts
	conn         pg.PoolConn
	paths        conddb.Dictionary
	metakeys     conddb.Dictionary
	contenttypes conddb.Dictionary
	replicator   *replicator
	remover      *remover
	targets      targets
}

var _ conddb.Store = (*Manager)(nil)

////////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

// NewManager creates the store over a connection pool: it bootstraps the
// schema, creates the three dictionary caches and the background workers.
// The workers do not consume until Run is called.
func NewManager(ctx context.Context, conn pg.PoolConn, opt ...Opt) (*Manager, error) {
	self := new(Manager)

	// Apply options
	if opts, err := applyOpts(opt...); err != nil {
		return nil, err
	} else {
		self.opts = opts
	}

	// Connection
	if conn == nil {
		return nil, httpresponse.ErrInternalError.With("connection is nil")
	} else {
		self.conn = conn.With("schema", schema.SchemaName).(pg.PoolConn)
	}

	// Bootstrap the schema
	if err := self.conn.Tx(ctx, func(conn pg.Conn) error {
		return schema.Bootstrap(ctx, conn)
	}); err != nil {
		return nil, err
	}

	// Dictionary caches
	var err error
	if self.paths, err = dictionary.New(self.conn, schema.DictPath); err != nil {
		return nil, err
	}
	if self.metakeys, err = dictionary.New(self.conn, schema.DictMetaKey); err != nil {
		return nil, err
	}
	if self.contenttypes, err = dictionary.New(self.conn, schema.DictContentType); err != nil {
		return nil, err
	}

	// Background workers
	self.replicator = newReplicator()
	self.remover = newRemover()

	// Return success
	return self, nil
}

// Run consumes replication and removal work until the context is cancelled
func (manager *Manager) Run(ctx context.Context) error {
	var wg errgroup.Group
	wg.Go(func() error {
		return manager.replicator.run(ctx, manager)
	})
	wg.Go(func() error {
		return manager.remover.run(ctx, manager)
	})
	return wg.Wait()
}

// Drain blocks until all queued replication and removal work has been
// processed. Run must be active for this to return.
func (manager *Manager) Drain() {
	manager.replicator.wg.Wait()
	manager.remover.wg.Wait()
}

// Close all backends
func (manager *Manager) Close() error {
	var result error
	for _, backend := range manager.backends {
		result = errors.Join(result, backend.Close())
	}
	return result
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// Backend returns the backend registered for a replica id
func (manager *Manager) Backend(replica int64) conddb.Backend {
	return manager.backends[replica]
}

// ReadObject reads object content from a backend holding a replica,
// preferring the local one. Offset and length select a sub-range of the
// content; length < 0 reads to the end.
func (manager *Manager) ReadObject(ctx context.Context, object *schema.Object, offset, length int64) (io.ReadCloser, error) {
	var result error
	child, endFunc := otel.StartSpan(manager.tracer, ctx, spanName("ReadObject"))
	defer func() { endFunc(result) }()

	backend, err := manager.backendForObject(object)
	if err != nil {
		result = err
		return nil, err
	}
	r, err := backend.Get(child, StorageKey(object.Id), offset, length)
	if err != nil {
		result = err
		return nil, err
	}
	return r, nil
}

// ReadObjectFrom reads object content from a specific replica. The replica
// must be in the object's replica set and have a registered backend.
func (manager *Manager) ReadObjectFrom(ctx context.Context, object *schema.Object, replica, offset, length int64) (io.ReadCloser, error) {
	var result error
	child, endFunc := otel.StartSpan(manager.tracer, ctx, spanName("ReadObjectFrom"))
	defer func() { endFunc(result) }()

	var found bool
	for _, candidate := range object.Replicas {
		if candidate == replica {
			found = true
			break
		}
	}
	if !found {
		result = httpresponse.ErrNotFound.Withf("object %q has no replica %d", object.Id, replica)
		return nil, result
	}
	backend := manager.backends[replica]
	if backend == nil {
		result = httpresponse.ErrNotFound.Withf("no backend registered for replica %d", replica)
		return nil, result
	}
	r, err := backend.Get(child, StorageKey(object.Id), offset, length)
	if err != nil {
		result = err
		return nil, err
	}
	return r, nil
}

// ListPaths enumerates interned paths under a prefix with their aggregate
// object count and size
func (manager *Manager) ListPaths(ctx context.Context, req schema.PathListRequest) (*schema.PathList, error) {
	var list schema.PathList
	if err := manager.conn.List(ctx, &list, req); err != nil {
		return nil, httperr(err)
	}
	return &list, nil
}

// StorageKey returns the backend key for an object id: a two-level fan-out
// folder derived from a stable hash of the id, plus the id as filename, so
// directory width stays bounded independent of object count.
func StorageKey(id schema.ObjectId) string {
	h := fnv.New32a()
	h.Write(id[:])
	sum := h.Sum32()
	return fmt.Sprintf("%02d/%02d/%s", sum%100, (sum/100)%100, id.String())
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

// backendForObject picks a registered backend holding a replica of the
// object, preferring the local one
func (manager *Manager) backendForObject(object *schema.Object) (conddb.Backend, error) {
	replicas := object.Replicas
	for _, replica := range replicas {
		if replica == schema.LocalReplica {
			if backend := manager.backends[replica]; backend != nil {
				return backend, nil
			}
		}
	}
	for _, replica := range replicas {
		if backend := manager.backends[replica]; backend != nil {
			return backend, nil
		}
	}
	return nil, httpresponse.ErrNotFound.Withf("no backend holds a replica of %q", object.Id)
}

// resolve fills the human-readable path, content type and metadata from the
// dictionary caches
func (manager *Manager) resolve(ctx context.Context, object *schema.Object) error {
	path, err := manager.paths.Value(ctx, object.PathId)
	if err != nil {
		return err
	}
	object.Path = path

	if object.ContentTypeId != 0 {
		contentType, err := manager.contenttypes.Value(ctx, object.ContentTypeId)
		if err != nil {
			return err
		}
		object.ContentType = contentType
	}

	if len(object.Metadata) > 0 {
		object.Meta = make(map[string]string, len(object.Metadata))
		for keyId, value := range object.Metadata {
			key, err := manager.metakeys.Value(ctx, keyId)
			if err != nil {
				return err
			}
			object.Meta[key] = value
		}
	}

	// Return success
	return nil
}

func spanName(op string) string {
	return "conddb.store." + op
}

func httperr(err error) error {
	if errors.Is(err, pg.ErrNotFound) {
		return httpresponse.ErrNotFound.With("not found")
	}
	return err
}
