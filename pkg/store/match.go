package store

import (
	"context"
	"errors"
	"sort"

	// Packages
	pg "github.com/mutablelogic/go-pg"
	otel "github.com/mutablelogic/go-client/pkg/otel"
	schema "github.com/mutablelogic/go-conddb/pkg/schema"
	httpresponse "github.com/mutablelogic/go-server/pkg/httpresponse"
)

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// GetMatchingObject returns the single best match for the constraints: among
// the versions whose validity interval contains the requested time, the one
// created last wins. Returns ErrNotFound when nothing matches.
func (manager *Manager) GetMatchingObject(ctx context.Context, constraints schema.RequestConstraints) (*schema.Object, error) {
	var result error
	child, endFunc := otel.StartSpan(manager.tracer, ctx, spanName("GetMatchingObject"))
	defer func() { endFunc(result) }()

	req, ok, err := manager.matchRequest(child, constraints)
	if err != nil {
		result = err
		return nil, err
	}
	if !ok {
		result = httpresponse.ErrNotFound.With("not found")
		return nil, result
	}

	var object schema.Object
	if err := manager.conn.Get(child, &object, req); err != nil {
		result = httperr(err)
		return nil, result
	}
	if err := manager.resolve(child, &object); err != nil {
		result = err
		return nil, err
	}
	return &object, nil
}

// GetAllMatchingObjects returns every version matching the constraints, newest
// first, or only the best match per path when the constraints ask for the
// latest. An unresolvable path or metadata key yields an empty list, not an
// error.
func (manager *Manager) GetAllMatchingObjects(ctx context.Context, constraints schema.RequestConstraints) (*schema.ObjectList, error) {
	var result error
	child, endFunc := otel.StartSpan(manager.tracer, ctx, spanName("GetAllMatchingObjects"))
	defer func() { endFunc(result) }()

	req, ok, err := manager.matchRequest(child, constraints)
	if err != nil {
		result = err
		return nil, err
	}
	if !ok {
		return new(schema.ObjectList), nil
	}

	var list schema.ObjectList
	if err := manager.conn.List(child, &list, req); err != nil {
		result = httperr(err)
		return nil, result
	}
	for _, object := range list.Body {
		if err := manager.resolve(child, object); err != nil {
			result = err
			return nil, err
		}
	}
	return &list, nil
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

// matchRequest resolves the string constraints into interned ids. The second
// return value is false when a path or metadata key is not in its dictionary,
// in which case no object can match and no query needs to run.
func (manager *Manager) matchRequest(ctx context.Context, constraints schema.RequestConstraints) (schema.ObjectMatchRequest, bool, error) {
	req := schema.ObjectMatchRequest{
		Uuid:         constraints.Uuid,
		StartTime:    constraints.StartTime,
		StartTimeSet: constraints.StartTimeSet,
		NotAfter:     constraints.NotAfter,
		Latest:       constraints.Latest,
	}

	// Resolve the path, without creating dictionary entries
	switch {
	case constraints.Wildcard && constraints.Pattern != nil:
		matched, err := manager.paths.Match(ctx, constraints.Pattern.String())
		if err != nil {
			return req, false, err
		}
		if len(matched) == 0 {
			return req, false, nil
		}
		for pathId := range matched {
			req.PathIds = append(req.PathIds, pathId)
		}
		sort.Slice(req.PathIds, func(i, j int) bool { return req.PathIds[i] < req.PathIds[j] })
	case constraints.Path != "":
		pathId, err := manager.paths.Id(ctx, constraints.Path, false)
		if errors.Is(err, httpresponse.ErrNotFound) || errors.Is(err, pg.ErrNotFound) {
			return req, false, nil
		} else if err != nil {
			return req, false, err
		}
		req.PathIds = []int64{pathId}
	}

	// Resolve metadata keys. A key nothing has ever carried cannot be
	// matched by any object.
	if len(constraints.Flags) > 0 {
		req.Flags = make(map[int64]string, len(constraints.Flags))
		for key, value := range constraints.Flags {
			keyId, err := manager.metakeys.Id(ctx, key, false)
			if errors.Is(err, httpresponse.ErrNotFound) || errors.Is(err, pg.ErrNotFound) {
				return req, false, nil
			} else if err != nil {
				return req, false, err
			}
			req.Flags[keyId] = value
		}
	}

	// Return success
	return req, true, nil
}
