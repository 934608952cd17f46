// Package handler registers the HTTP surface of the temporal object store:
// resolving reads with byte-range support, uploads, metadata updates, browse
// listings, bulk truncation and direct downloads by object id.
package handler

import (
	"errors"
	"net/http"

	// Packages
	conddb "github.com/mutablelogic/go-conddb"
	openapi "github.com/mutablelogic/go-server/pkg/openapi/schema"
)

///////////////////////////////////////////////////////////////////////////////
// TYPES

// Router is the interface required to register HTTP handlers.
type Router interface {
	RegisterFunc(path string, handler http.HandlerFunc, middleware bool, spec *openapi.PathItem) error
}

///////////////////////////////////////////////////////////////////////////////
// GLOBALS

const (
	usageResolve = "usage: {path}/{time}[/{key=value}...][/{endtime}][/{uuid}]"
	usageBrowse  = "usage: {path}[/{time}][/{key=value}...][/{endtime}][/{uuid}]"
	usageCreate  = "usage: {path}/{starttime}[/{endtime}][/{key=value}...]"
)

///////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// RegisterHandlers registers all HTTP handlers on the provided router.
func RegisterHandlers(store conddb.Store, router Router) error {
	var result error
	register := func(path string, handler http.HandlerFunc, spec *openapi.PathItem) {
		result = errors.Join(result, router.RegisterFunc(path, handler, true, spec))
	}
	register(ObjectHandler(store))
	register(BrowseHandler(store))
	register(LatestHandler(store))
	register(TruncateHandler(store))
	register(DownloadHandler(store))
	return result
}
