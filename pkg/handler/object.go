package handler

import (
	"context"
	"io"
	"mime"
	"net"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	// Packages
	conddb "github.com/mutablelogic/go-conddb"
	httprange "github.com/mutablelogic/go-conddb/pkg/httprange"
	parser "github.com/mutablelogic/go-conddb/pkg/parser"
	schema "github.com/mutablelogic/go-conddb/pkg/schema"
	httprequest "github.com/mutablelogic/go-server/pkg/httprequest"
	httpresponse "github.com/mutablelogic/go-server/pkg/httpresponse"
	openapi "github.com/mutablelogic/go-server/pkg/openapi/schema"
	types "github.com/mutablelogic/go-server/pkg/types"
)

///////////////////////////////////////////////////////////////////////////////
// GLOBALS

const (
	// Metadata request headers are X-Meta-{key}
	metaHeaderPrefix = "X-Meta-"

	// Query parameter moving the validity limit on update
	queryEndTime = "endTime"
)

///////////////////////////////////////////////////////////////////////////////
// HANDLER FUNCTIONS

// Path: /o/{path...}
// GET resolves the best matching object version and streams its content with
// byte-range support, HEAD returns the resolved headers without a body, POST
// uploads a new version, PUT updates metadata and the validity limit, DELETE
// removes the resolved version.
func ObjectHandler(store conddb.Store) (string, http.HandlerFunc, *openapi.PathItem) {
	return "/o/{path...}", func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead:
				_ = objectGet(w, r, store)
			case http.MethodPost:
				_ = objectCreate(w, r, store)
			case http.MethodPut:
				_ = objectUpdate(w, r, store)
			case http.MethodDelete:
				_ = objectDelete(w, r, store)
			case http.MethodOptions:
				_ = objectOptions(w, r, store)
			default:
				_ = httpresponse.Error(w, httpresponse.Err(http.StatusMethodNotAllowed), r.Method)
			}
		}, types.Ptr(openapi.PathItem{
			Get: &openapi.Operation{
				Description: "Resolve and download the best matching object version",
			},
			Head: &openapi.Operation{
				Description: "Resolve the best matching object version without body",
			},
			Post: &openapi.Operation{
				Description: "Upload a new object version under a path",
			},
			Put: &openapi.Operation{
				Description: "Update metadata and validity of the resolved version",
			},
			Delete: &openapi.Operation{
				Description: "Delete the resolved object version",
			},
		})
}

///////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

func objectGet(w http.ResponseWriter, r *http.Request, store conddb.Store) error {
	constraints := parser.Parse(r.PathValue("path"), parser.WithHeader(r.Header))
	if !constraints.OK {
		return httpresponse.Error(w, httpresponse.ErrBadRequest.With(usageResolve))
	}

	object, err := store.GetMatchingObject(r.Context(), constraints)
	if err != nil {
		return httpresponse.Error(w, err)
	}

	// When the client already holds the resolved version there is nothing
	// to transfer
	if constraints.CachedValue != nil && *constraints.CachedValue == object.Id {
		writeObjectHeaders(w, object)
		w.WriteHeader(http.StatusNotModified)
		return nil
	}

	return serveObject(w, r, store, object)
}

func objectCreate(w http.ResponseWriter, r *http.Request, store conddb.Store) error {
	constraints := parser.Parse(r.PathValue("path"))
	if !constraints.OK || constraints.Uuid != nil {
		return httpresponse.Error(w, httpresponse.ErrBadRequest.With(usageCreate))
	}

	// The start time becomes the validity interval start and the end time
	// its limit; without an end-time token the interval covers the single
	// instant [start, start+1)
	req := schema.CreateObjectRequest{
		Path:         constraints.Path,
		ValidFrom:    constraints.StartTime,
		ValidUntil:   constraints.EndTime,
		Meta:         constraints.Flags,
		UploadedFrom: remoteHost(r),
	}

	// Validity headers override the values taken from the path
	if value, ok := timeHeader(r.Header, schema.HeaderValidFrom); ok {
		req.ValidFrom = value
	}
	if value, ok := timeHeader(r.Header, schema.HeaderValidUntil); ok {
		req.ValidUntil = value
	}

	// Metadata headers merge over the key=value path tokens
	for key, value := range extractMeta(r.Header) {
		if req.Meta == nil {
			req.Meta = make(map[string]string, 1)
		}
		req.Meta[key] = value
	}

	// The body is either a single multipart file or the raw request body
	if mediatype, _, _ := mime.ParseMediaType(r.Header.Get(types.ContentTypeHeader)); mediatype == types.ContentTypeFormData {
		var form struct {
			Files []types.File `json:"file"`
		}
		if err := httprequest.Read(r, &form); err != nil {
			return httpresponse.Error(w, httpresponse.ErrBadRequest.With(err.Error()))
		} else if len(form.Files) != 1 {
			return httpresponse.Error(w, httpresponse.ErrBadRequest.Withf(`expected exactly one "file" form field, got %d`, len(form.Files)))
		}
		file := form.Files[0]
		defer file.Body.Close()
		req.Body = file.Body
		req.FileName = filepath.Base(file.Path)
		req.ContentType = file.ContentType
	} else {
		req.Body = r.Body
		req.FileName = r.URL.Query().Get("filename")
		req.ContentType = r.Header.Get(types.ContentTypeHeader)
	}

	object, err := store.CreateObject(r.Context(), req)
	if err != nil {
		return httpresponse.Error(w, err)
	}

	w.Header().Set("Location", downloadLocation(object.Id, schema.LocalReplica))
	return httpresponse.JSON(w, http.StatusCreated, httprequest.Indent(r), object)
}

func objectUpdate(w http.ResponseWriter, r *http.Request, store conddb.Store) error {
	constraints := parser.Parse(r.PathValue("path"), parser.WithHeader(r.Header))
	if !constraints.OK {
		return httpresponse.Error(w, httpresponse.ErrBadRequest.With(usageResolve))
	}

	object, err := store.GetMatchingObject(r.Context(), constraints)
	if err != nil {
		return httpresponse.Error(w, err)
	}

	// Query parameters become metadata updates; an empty value removes the
	// key and endTime moves the validity limit
	var req schema.UpdateObjectRequest
	for key, values := range r.URL.Query() {
		if len(values) == 0 {
			continue
		}
		if key == queryEndTime {
			value, err := strconv.ParseInt(values[0], 10, 64)
			if err != nil {
				return httpresponse.Error(w, httpresponse.ErrBadRequest.Withf("invalid %q: %q", queryEndTime, values[0]))
			}
			req.ValidUntil = types.Ptr(value)
			continue
		}
		if req.Meta == nil {
			req.Meta = make(map[string]string, 1)
		}
		req.Meta[key] = values[0]
	}

	if _, changed, err := store.UpdateObject(r.Context(), object.Id, req); err != nil {
		return httpresponse.Error(w, err)
	} else if changed {
		w.WriteHeader(http.StatusNoContent)
	} else {
		w.WriteHeader(http.StatusNotModified)
	}
	return nil
}

func objectDelete(w http.ResponseWriter, r *http.Request, store conddb.Store) error {
	constraints := parser.Parse(r.PathValue("path"), parser.WithHeader(r.Header))
	if !constraints.OK {
		return httpresponse.Error(w, httpresponse.ErrBadRequest.With(usageResolve))
	}

	object, err := store.GetMatchingObject(r.Context(), constraints)
	if err != nil {
		return httpresponse.Error(w, err)
	}
	if _, err := store.DeleteObject(r.Context(), object.Id); err != nil {
		return httpresponse.Error(w, err)
	}

	w.WriteHeader(http.StatusNoContent)
	return nil
}

func objectOptions(w http.ResponseWriter, r *http.Request, store conddb.Store) error {
	w.Header().Set("Allow", "GET, HEAD, POST, PUT, DELETE, OPTIONS")

	// When the path resolves, dump the headers a GET would carry
	if constraints := parser.Parse(r.PathValue("path"), parser.WithHeader(r.Header)); constraints.OK {
		if object, err := store.GetMatchingObject(r.Context(), constraints); err == nil {
			writeObjectHeaders(w, object)
		}
	}

	w.WriteHeader(http.StatusOK)
	return nil
}

///////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS - HELPER FUNCTIONS

// serveObject streams object content from the preferred replica honoring
// any Range header
func serveObject(w http.ResponseWriter, r *http.Request, store conddb.Store, object *schema.Object) error {
	return serveObjectContent(w, r, object, func(ctx context.Context, offset, length int64) (io.ReadCloser, error) {
		return store.ReadObject(ctx, object, offset, length)
	})
}

// serveObjectContent streams object content from an open function honoring
// any Range header
func serveObjectContent(w http.ResponseWriter, r *http.Request, object *schema.Object, open func(context.Context, int64, int64) (io.ReadCloser, error)) error {
	writeObjectHeaders(w, object)
	return httprange.Serve(w, r, httprange.Content{
		Size:        object.Size,
		ContentType: object.ContentType,
		FileName:    object.FileName,
		Checksum:    object.Checksum,
		Open:        open,
	})
}

// writeObjectHeaders sets the validity, creation and identity headers of a
// resolved object, with one Content-Location per replica holding its content
func writeObjectHeaders(w http.ResponseWriter, object *schema.Object) {
	header := w.Header()
	header.Set(schema.HeaderValidFrom, strconv.FormatInt(object.ValidFrom, 10))
	header.Set(schema.HeaderValidUntil, strconv.FormatInt(object.ValidUntil, 10))
	header.Set(schema.HeaderCreated, strconv.FormatInt(object.CreateTime, 10))
	header.Set(schema.HeaderLastModified, time.UnixMilli(object.LastModified).UTC().Format(http.TimeFormat))
	header.Set("ETag", `"`+object.Id.String()+`"`)
	for _, replica := range object.Replicas {
		header.Add(schema.HeaderContentLocation, downloadLocation(object.Id, replica))
	}
}

func downloadLocation(id schema.ObjectId, replica int64) string {
	location := schema.APIPrefix + "/download/" + id.String()
	if replica != schema.LocalReplica {
		location += "?replica=" + strconv.FormatInt(replica, 10)
	}
	return location
}

// extractMeta builds a metadata map from X-Meta-{key} headers, lowercasing
// keys. Returns nil if no matching headers are found.
func extractMeta(h http.Header) map[string]string {
	var meta map[string]string
	for key, values := range h {
		if after, ok := strings.CutPrefix(key, metaHeaderPrefix); ok && len(values) > 0 {
			if meta == nil {
				meta = make(map[string]string)
			}
			meta[strings.ToLower(after)] = values[0]
		}
	}
	return meta
}

// timeHeader reads an epoch-millisecond header value
func timeHeader(h http.Header, name string) (int64, bool) {
	value := h.Get(name)
	if value == "" {
		return 0, false
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, false
	}
	return parsed, true
}

// remoteHost returns the client address without the port
func remoteHost(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
