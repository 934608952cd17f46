package store

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"io"
	"strings"

	// Packages
	pg "github.com/mutablelogic/go-pg"
	otel "github.com/mutablelogic/go-client/pkg/otel"
	schema "github.com/mutablelogic/go-conddb/pkg/schema"
	httpresponse "github.com/mutablelogic/go-server/pkg/httpresponse"
)

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// GetObject fetches an object by id, bypassing path resolution
func (manager *Manager) GetObject(ctx context.Context, id schema.ObjectId) (*schema.Object, error) {
	var object schema.Object
	if err := manager.conn.Get(ctx, &object, schema.ObjectKey(id)); err != nil {
		return nil, httperr(err)
	}
	if err := manager.resolve(ctx, &object); err != nil {
		return nil, err
	}
	return &object, nil
}

// CreateObject streams the body to the local backend computing size and
// content hash, interns the path, content type and metadata keys, inserts
// the row, and queues replication to every configured target. A failed
// insert removes the partial local file so the operation is treated as not
// having happened.
func (manager *Manager) CreateObject(ctx context.Context, req schema.CreateObjectRequest) (*schema.Object, error) {
	var result error
	child, endFunc := otel.StartSpan(manager.tracer, ctx, spanName("CreateObject"))
	defer func() { endFunc(result) }()

	// Validate the request
	path, err := validPath(req.Path)
	if err != nil {
		result = err
		return nil, err
	}
	if req.Body == nil {
		result = httpresponse.ErrBadRequest.With("missing body")
		return nil, result
	}
	if req.ValidUntil <= req.ValidFrom {
		result = httpresponse.ErrBadRequest.Withf("invalid validity interval [%d, %d)", req.ValidFrom, req.ValidUntil)
		return nil, result
	}
	local := manager.backends[schema.LocalReplica]
	if local == nil {
		result = httpresponse.ErrInternalError.With("no local backend")
		return nil, result
	}

	// Stream the body to the local backend, hashing as we go
	id := schema.NewObjectId(req.UploadedFrom)
	key := StorageKey(id)
	hash := md5.New()
	size, err := local.Put(child, key, io.TeeReader(req.Body, hash), req.ContentType)
	if err != nil {
		result = err
		return nil, err
	}

	// Intern path, content type and metadata keys
	object := schema.Object{
		Id:           id,
		ValidFrom:    req.ValidFrom,
		ValidUntil:   req.ValidUntil,
		CreateTime:   manager.now().UnixMilli(),
		Size:         size,
		Checksum:     hex.EncodeToString(hash.Sum(nil)),
		FileName:     req.FileName,
		UploadedFrom: req.UploadedFrom,
		Replicas:     replicasWithLocal(req.Replicas),
	}
	if object.PathId, err = manager.paths.Id(child, path, true); err != nil {
		result = err
		return nil, err
	}
	if req.ContentType != "" {
		if object.ContentTypeId, err = manager.contenttypes.Id(child, req.ContentType, true); err != nil {
			result = err
			return nil, err
		}
	}
	if len(req.Meta) > 0 {
		object.Metadata = make(map[int64]string, len(req.Meta))
		for key, value := range req.Meta {
			keyId, err := manager.metakeys.Id(child, key, true)
			if err != nil {
				result = err
				return nil, err
			}
			object.Metadata[keyId] = value
		}
	}

	// Insert the row and bump the path statistics in one transaction. When
	// this fails the local file is removed: no partial state.
	var inserted schema.Object
	if err := manager.conn.Tx(child, func(conn pg.Conn) error {
		if err := conn.Insert(ctx, &inserted, object); err != nil {
			return err
		}
		return conn.With("pathid", object.PathId).With("size", size).Exec(ctx, schema.PathStatIncr)
	}); err != nil {
		local.Delete(child, key)
		result = httperr(err)
		return nil, result
	}

	// Queue replication to every configured target
	for _, target := range manager.replicationTargets() {
		manager.replicator.enqueue(inserted.Id, req.ContentType, target)
	}

	// Return success
	if err := manager.resolve(child, &inserted); err != nil {
		result = err
		return nil, err
	}
	return &inserted, nil
}

// UpdateObject applies metadata values (an empty value removes the key) and
// optionally moves the validity limit. Returns whether anything effectively
// changed; an untainted object is not written.
func (manager *Manager) UpdateObject(ctx context.Context, id schema.ObjectId, req schema.UpdateObjectRequest) (*schema.Object, bool, error) {
	var object schema.Object
	if err := manager.conn.Get(ctx, &object, schema.ObjectKey(id)); err != nil {
		return nil, false, httperr(err)
	}

	for key, value := range req.Meta {
		keyId, err := manager.metakeys.Id(ctx, key, true)
		if err != nil {
			return nil, false, err
		}
		object.SetProperty(keyId, value)
	}
	if req.ValidUntil != nil {
		object.SetValidityLimit(*req.ValidUntil)
	}

	if !object.Tainted() {
		if err := manager.resolve(ctx, &object); err != nil {
			return nil, false, err
		}
		return &object, false, nil
	}

	object.LastModified = manager.now().UnixMilli()
	var updated schema.Object
	if err := manager.conn.Update(ctx, &updated, schema.ObjectKey(id), object); err != nil {
		return nil, false, httperr(err)
	}
	if err := manager.resolve(ctx, &updated); err != nil {
		return nil, false, err
	}
	return &updated, true, nil
}

// DeleteObject removes the row, decrements the path statistics, removes the
// path dictionary entry when no objects reference it anymore, and queues
// physical replica removal
func (manager *Manager) DeleteObject(ctx context.Context, id schema.ObjectId) (*schema.Object, error) {
	var object schema.Object
	if err := manager.conn.Tx(ctx, func(conn pg.Conn) error {
		if err := conn.Delete(ctx, &object, schema.ObjectKey(id)); err != nil {
			return err
		}
		return conn.With("pathid", object.PathId).With("size", object.Size).Exec(ctx, schema.PathStatDecr)
	}); err != nil {
		return nil, httperr(err)
	}

	// Resolve before the path entry can be garbage-collected
	if err := manager.resolve(ctx, &object); err != nil {
		return nil, err
	}
	manager.gcPath(ctx, object.PathId)

	// Queue physical removal of all replicas
	manager.remover.enqueue(object.Id, append([]int64(nil), object.Replicas...))

	// Return success
	return &object, nil
}

// TruncateObjects deletes every object matching the constraints and returns
// the deleted objects
func (manager *Manager) TruncateObjects(ctx context.Context, constraints schema.RequestConstraints) (*schema.ObjectList, error) {
	list, err := manager.GetAllMatchingObjects(ctx, constraints)
	if err != nil {
		return nil, err
	}

	deleted := schema.ObjectList{
		Body: make([]*schema.Object, 0, len(list.Body)),
	}
	for _, object := range list.Body {
		object, err := manager.DeleteObject(ctx, object.Id)
		if err != nil {
			return nil, err
		}
		deleted.Body = append(deleted.Body, object)
	}
	deleted.Count = uint64(len(deleted.Body))

	// Return success
	return &deleted, nil
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

// gcPath removes the path dictionary entry when the last referencing object
// is deleted. Failures are ignored: a stale dictionary entry is harmless.
func (manager *Manager) gcPath(ctx context.Context, pathId int64) {
	var stat schema.PathStat
	if err := manager.conn.Get(ctx, &stat, schema.PathStatKey(pathId)); err != nil {
		return
	}
	if stat.Count <= 0 {
		manager.paths.Remove(ctx, pathId)
	}
}

// validPath normalizes and validates a logical object path
func validPath(path string) (string, error) {
	path = strings.Trim(path, schema.PathSeparator)
	if path == "" {
		return "", httpresponse.ErrBadRequest.With("missing path")
	}
	if strings.ContainsAny(path, "*%") {
		return "", httpresponse.ErrBadRequest.Withf("invalid path: %q", path)
	}
	if strings.Count(path, schema.PathSeparator) >= schema.MaxPathSegments {
		return "", httpresponse.ErrBadRequest.Withf("too many path segments: %q", path)
	}
	return path, nil
}

// replicasWithLocal prepends the local replica to any caller-declared set
func replicasWithLocal(replicas []int64) []int64 {
	result := []int64{schema.LocalReplica}
	for _, replica := range replicas {
		if replica != schema.LocalReplica {
			result = append(result, replica)
		}
	}
	return result
}
