package handler

import (
	"context"
	"io"
	"net/http"
	"strconv"

	// Packages
	conddb "github.com/mutablelogic/go-conddb"
	schema "github.com/mutablelogic/go-conddb/pkg/schema"
	httpresponse "github.com/mutablelogic/go-server/pkg/httpresponse"
	openapi "github.com/mutablelogic/go-server/pkg/openapi/schema"
	types "github.com/mutablelogic/go-server/pkg/types"
)

///////////////////////////////////////////////////////////////////////////////
// GLOBALS

const (
	// Query parameter selecting the replica to read from
	queryReplica = "replica"
)

///////////////////////////////////////////////////////////////////////////////
// HANDLER FUNCTIONS

// Path: /download/{uuid}
// GET streams object content by id with byte-range support, bypassing path
// resolution. HEAD returns the headers without a body.
func DownloadHandler(store conddb.Store) (string, http.HandlerFunc, *openapi.PathItem) {
	return "/download/{uuid}", func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead:
				_ = download(w, r, store)
			default:
				_ = httpresponse.Error(w, httpresponse.Err(http.StatusMethodNotAllowed), r.Method)
			}
		}, types.Ptr(openapi.PathItem{
			Get: &openapi.Operation{
				Description: "Download object content by id",
			},
			Head: &openapi.Operation{
				Description: "Get object headers by id without body",
			},
		})
}

///////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

func download(w http.ResponseWriter, r *http.Request, store conddb.Store) error {
	id, err := schema.ParseObjectId(r.PathValue("uuid"))
	if err != nil {
		return httpresponse.Error(w, httpresponse.ErrBadRequest.Withf("invalid object id: %q", r.PathValue("uuid")))
	}

	object, err := store.GetObject(r.Context(), id)
	if err != nil {
		return httpresponse.Error(w, err)
	}

	// A replica query parameter reads from that replica; without one the
	// preferred replica is used. Membership is checked before the response
	// status is committed.
	if value := r.URL.Query().Get(queryReplica); value != "" {
		replica, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return httpresponse.Error(w, httpresponse.ErrBadRequest.Withf("invalid %q: %q", queryReplica, value))
		}
		var found bool
		for _, candidate := range object.Replicas {
			if candidate == replica {
				found = true
				break
			}
		}
		if !found {
			return httpresponse.Error(w, httpresponse.ErrNotFound.Withf("object %q has no replica %d", id, replica))
		}
		return serveObjectContent(w, r, object, func(ctx context.Context, offset, length int64) (io.ReadCloser, error) {
			return store.ReadObjectFrom(ctx, object, replica, offset, length)
		})
	}
	return serveObject(w, r, store, object)
}
