package httprange

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	// Packages
	uuid "github.com/google/uuid"
	httpresponse "github.com/mutablelogic/go-server/pkg/httpresponse"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// Content is a resolved object served with byte-range semantics. Open
// returns a positioned reader over the payload; length < 0 reads to the end.
type Content struct {
	Size        int64
	ContentType string
	FileName    string
	Checksum    string
	Open        func(ctx context.Context, offset, length int64) (io.ReadCloser, error)
}

////////////////////////////////////////////////////////////////////////////////
// GLOBALS

const (
	// Copy granularity for streaming range slices
	chunkSize = 4096

	contentTypeDefault   = "application/octet-stream"
	contentTypeMultipart = "multipart/byteranges; boundary="
	headerAcceptRanges   = "Accept-Ranges"
	headerContentRange   = "Content-Range"
	headerContentMD5     = "Content-MD5"
	headerContentDisp    = "Content-Disposition"
	headerContentType    = "Content-Type"
	headerContentLength  = "Content-Length"
)

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// Serve streams the content honoring any Range header on the request: the
// whole payload, a single range with its descriptor, or a multipart body for
// several ranges. HEAD requests receive headers only. A failed range parse
// responds "not satisfiable" with the total size so the caller can
// self-correct.
func Serve(w http.ResponseWriter, r *http.Request, content Content) error {
	ranges, err := Parse(r.Header.Get("Range"), content.Size)
	if err != nil {
		w.Header().Set(headerContentRange, fmt.Sprintf("%s */%d", rangeUnit, content.Size))
		return httpresponse.Error(w, err)
	}

	contentType := content.ContentType
	if contentType == "" {
		contentType = contentTypeDefault
	}

	// Common response metadata
	w.Header().Set(headerAcceptRanges, rangeUnit)
	if content.Checksum != "" {
		w.Header().Set(headerContentMD5, content.Checksum)
	}
	if content.FileName != "" {
		w.Header().Set(headerContentDisp, `attachment; filename="`+content.FileName+`"`)
	}

	switch {
	case len(ranges) == 0:
		w.Header().Set(headerContentType, contentType)
		w.Header().Set(headerContentLength, strconv.FormatInt(content.Size, 10))
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodHead {
			return nil
		}
		return copyRange(r.Context(), w, content, 0, content.Size)
	case len(ranges) == 1:
		w.Header().Set(headerContentType, contentType)
		w.Header().Set(headerContentRange, ranges[0].ContentRange(content.Size))
		w.Header().Set(headerContentLength, strconv.FormatInt(ranges[0].Length(), 10))
		w.WriteHeader(http.StatusPartialContent)
		if r.Method == http.MethodHead {
			return nil
		}
		return copyRange(r.Context(), w, content, ranges[0].Start, ranges[0].Length())
	default:
		return serveMultipart(w, r, content, contentType, ranges)
	}
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

// serveMultipart synthesizes a multipart/byteranges body. The total length
// is the sum of the part header texts and slice lengths plus the closing
// boundary, computed before streaming begins so a single accurate
// Content-Length precedes the body.
func serveMultipart(w http.ResponseWriter, r *http.Request, content Content, contentType string, ranges []Range) error {
	boundary := strings.ReplaceAll(uuid.NewString(), "-", "")

	headers := make([]string, len(ranges))
	var length int64
	for i, rng := range ranges {
		headers[i] = "\r\n--" + boundary + "\r\n" +
			headerContentType + ": " + contentType + "\r\n" +
			headerContentRange + ": " + rng.ContentRange(content.Size) + "\r\n\r\n"
		length += int64(len(headers[i])) + rng.Length()
	}
	terminator := "\r\n--" + boundary + "--\r\n"
	length += int64(len(terminator))

	w.Header().Set(headerContentType, contentTypeMultipart+boundary)
	w.Header().Set(headerContentLength, strconv.FormatInt(length, 10))
	w.WriteHeader(http.StatusPartialContent)
	if r.Method == http.MethodHead {
		return nil
	}

	for i, rng := range ranges {
		if _, err := io.WriteString(w, headers[i]); err != nil {
			return err
		}
		if err := copyRange(r.Context(), w, content, rng.Start, rng.Length()); err != nil {
			return err
		}
	}
	_, err := io.WriteString(w, terminator)
	return err
}

// copyRange streams one slice in fixed-size chunks through a positioned read
func copyRange(ctx context.Context, w io.Writer, content Content, offset, length int64) error {
	reader, err := content.Open(ctx, offset, length)
	if err != nil {
		return err
	}
	defer reader.Close()

	buf := make([]byte, chunkSize)
	_, err = io.CopyBuffer(w, reader, buf)
	return err
}
