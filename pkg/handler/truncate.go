package handler

import (
	"net/http"

	// Packages
	conddb "github.com/mutablelogic/go-conddb"
	parser "github.com/mutablelogic/go-conddb/pkg/parser"
	httprequest "github.com/mutablelogic/go-server/pkg/httprequest"
	httpresponse "github.com/mutablelogic/go-server/pkg/httpresponse"
	openapi "github.com/mutablelogic/go-server/pkg/openapi/schema"
	types "github.com/mutablelogic/go-server/pkg/types"
)

///////////////////////////////////////////////////////////////////////////////
// HANDLER FUNCTIONS

// Path: /truncate/{path...}
// GET deletes every object version matching the path and constraints,
// queueing physical replica removal, and returns the deleted versions.
func TruncateHandler(store conddb.Store) (string, http.HandlerFunc, *openapi.PathItem) {
	return "/truncate/{path...}", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				_ = httpresponse.Error(w, httpresponse.Err(http.StatusMethodNotAllowed), r.Method)
				return
			}
			_ = truncate(w, r, store)
		}, types.Ptr(openapi.PathItem{
			Get: &openapi.Operation{
				Description: "Delete every object version matching the path and constraints",
			},
		})
}

///////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

func truncate(w http.ResponseWriter, r *http.Request, store conddb.Store) error {
	constraints := parser.Parse(r.PathValue("path"), parser.WithBrowsing(), parser.WithHeader(r.Header))
	if !constraints.OK {
		return httpresponse.Error(w, httpresponse.ErrBadRequest.With(usageBrowse))
	}
	constraints.Latest = false

	deleted, err := store.TruncateObjects(r.Context(), constraints)
	if err != nil {
		return httpresponse.Error(w, err)
	}
	return httpresponse.JSON(w, http.StatusOK, httprequest.Indent(r), deleted)
}
