package handler

import (
	"encoding/xml"
	"fmt"
	"html"
	"net/http"
	"sort"
	"strings"

	// Packages
	conddb "github.com/mutablelogic/go-conddb"
	parser "github.com/mutablelogic/go-conddb/pkg/parser"
	schema "github.com/mutablelogic/go-conddb/pkg/schema"
	httprequest "github.com/mutablelogic/go-server/pkg/httprequest"
	httpresponse "github.com/mutablelogic/go-server/pkg/httpresponse"
	openapi "github.com/mutablelogic/go-server/pkg/openapi/schema"
	types "github.com/mutablelogic/go-server/pkg/types"
)

///////////////////////////////////////////////////////////////////////////////
// TYPES

// BrowseResponse is the listing for a path prefix: matching object versions,
// immediate sub-paths, and aggregate statistics when requested.
type BrowseResponse struct {
	Path     string            `json:"path,omitempty"`
	Count    uint64            `json:"count"`
	Objects  []*schema.Object  `json:"objects,omitempty"`
	Children []string          `json:"children,omitempty"`
	Report   []schema.PathStat `json:"report,omitempty"`
}

type xmlObject struct {
	Id         string `xml:"id,attr"`
	Path       string `xml:"path,attr"`
	ValidFrom  int64  `xml:"validfrom,attr"`
	ValidUntil int64  `xml:"validuntil,attr"`
	Size       int64  `xml:"size,attr"`
}

type xmlListing struct {
	XMLName  xml.Name    `xml:"listing"`
	Path     string      `xml:"path,attr,omitempty"`
	Children []string    `xml:"child,omitempty"`
	Objects  []xmlObject `xml:"object,omitempty"`
}

///////////////////////////////////////////////////////////////////////////////
// GLOBALS

const (
	contentTypeText = "text/plain"
	contentTypeHTML = "text/html"
	contentTypeXML  = "text/xml"
)

///////////////////////////////////////////////////////////////////////////////
// HANDLER FUNCTIONS

// Path: /browse/{path...}
// GET enumerates every object version matching the path and constraints,
// content negotiated between plain text, HTML, XML and JSON.
func BrowseHandler(store conddb.Store) (string, http.HandlerFunc, *openapi.PathItem) {
	return "/browse/{path...}", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				_ = httpresponse.Error(w, httpresponse.Err(http.StatusMethodNotAllowed), r.Method)
				return
			}
			_ = browse(w, r, store, false)
		}, types.Ptr(openapi.PathItem{
			Get: &openapi.Operation{
				Description: "List every object version matching the path and constraints",
			},
		})
}

// Path: /latest/{path...}
// GET enumerates the newest object version per path, content negotiated as
// for browse.
func LatestHandler(store conddb.Store) (string, http.HandlerFunc, *openapi.PathItem) {
	return "/latest/{path...}", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				_ = httpresponse.Error(w, httpresponse.Err(http.StatusMethodNotAllowed), r.Method)
				return
			}
			_ = browse(w, r, store, true)
		}, types.Ptr(openapi.PathItem{
			Get: &openapi.Operation{
				Description: "List the newest object version per path",
			},
		})
}

///////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

func browse(w http.ResponseWriter, r *http.Request, store conddb.Store, latest bool) error {
	var query struct {
		Report bool `json:"report"`
	}
	if err := httprequest.Query(r.URL.Query(), &query); err != nil {
		return httpresponse.Error(w, httpresponse.ErrBadRequest.With(err.Error()))
	}

	constraints := parser.Parse(r.PathValue("path"), parser.WithBrowsing(), parser.WithHeader(r.Header))
	if !constraints.OK {
		return httpresponse.Error(w, httpresponse.ErrBadRequest.With(usageBrowse))
	}
	constraints.Latest = latest

	list, err := store.GetAllMatchingObjects(r.Context(), constraints)
	if err != nil {
		return httpresponse.Error(w, err)
	}
	response := BrowseResponse{
		Path:    constraints.Path,
		Count:   list.Count,
		Objects: list.Body,
	}

	// Sub-paths and aggregate statistics come from the path dictionary
	if !constraints.Wildcard {
		paths, err := store.ListPaths(r.Context(), schema.PathListRequest{Prefix: constraints.Path, Report: query.Report})
		if err != nil {
			return httpresponse.Error(w, err)
		}
		response.Children = childSegments(constraints.Path, paths.Body)
		if query.Report {
			response.Report = paths.Body
		}
	}

	accept, _ := types.AcceptContentType(r)
	switch accept {
	case types.ContentTypeJSON:
		return httpresponse.JSON(w, http.StatusOK, httprequest.Indent(r), response)
	case contentTypeHTML:
		return browseHTML(w, response)
	case contentTypeXML, "application/xml":
		return browseXML(w, response)
	default:
		return browseText(w, response)
	}
}

// childSegments returns the sorted immediate sub-path segments under a prefix
func childSegments(prefix string, paths []schema.PathStat) []string {
	seen := make(map[string]bool, len(paths))
	var children []string
	for _, stat := range paths {
		remainder := stat.Path
		if prefix != "" {
			if remainder == prefix {
				continue
			}
			remainder = strings.TrimPrefix(remainder, prefix+schema.PathSeparator)
			if remainder == stat.Path {
				continue
			}
		}
		segment, _, _ := strings.Cut(remainder, schema.PathSeparator)
		if segment != "" && !seen[segment] {
			seen[segment] = true
			children = append(children, segment)
		}
	}
	sort.Strings(children)
	return children
}

func browseText(w http.ResponseWriter, response BrowseResponse) error {
	w.Header().Set(types.ContentTypeHeader, contentTypeText)
	w.WriteHeader(http.StatusOK)
	for _, child := range response.Children {
		fmt.Fprintf(w, "%s/\n", child)
	}
	for _, object := range response.Objects {
		fmt.Fprintf(w, "%s %s [%d, %d)\n", object.Id, object.Path, object.ValidFrom, object.ValidUntil)
	}
	for _, stat := range response.Report {
		fmt.Fprintf(w, "# %s objects=%d size=%d\n", stat.Path, stat.Count, stat.Size)
	}
	return nil
}

func browseHTML(w http.ResponseWriter, response BrowseResponse) error {
	w.Header().Set(types.ContentTypeHeader, contentTypeHTML)
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "<html><head><title>%s</title></head><body><ul>\n", html.EscapeString(response.Path))
	for _, child := range response.Children {
		fmt.Fprintf(w, "<li><a href=%q>%s/</a></li>\n", html.EscapeString(child)+"/", html.EscapeString(child))
	}
	for _, object := range response.Objects {
		fmt.Fprintf(w, "<li><a href=%q>%s</a> [%d, %d)</li>\n",
			downloadLocation(object.Id, schema.LocalReplica), html.EscapeString(object.Path), object.ValidFrom, object.ValidUntil)
	}
	_, err := fmt.Fprint(w, "</ul></body></html>\n")
	return err
}

func browseXML(w http.ResponseWriter, response BrowseResponse) error {
	listing := xmlListing{
		Path:     response.Path,
		Children: response.Children,
	}
	for _, object := range response.Objects {
		listing.Objects = append(listing.Objects, xmlObject{
			Id:         object.Id.String(),
			Path:       object.Path,
			ValidFrom:  object.ValidFrom,
			ValidUntil: object.ValidUntil,
			Size:       object.Size,
		})
	}
	w.Header().Set(types.ContentTypeHeader, contentTypeXML)
	w.WriteHeader(http.StatusOK)
	if _, err := fmt.Fprint(w, xml.Header); err != nil {
		return err
	}
	return xml.NewEncoder(w).Encode(listing)
}
