package client

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	// Packages
	client "github.com/mutablelogic/go-client"
	schema "github.com/mutablelogic/go-conddb/pkg/schema"
)

///////////////////////////////////////////////////////////////////////////////
// TYPES

// readUnmarshaler reconstructs the object metadata from the response headers
// and streams the body to fn in chunks. fn may be nil when only the metadata
// is needed. The slice passed to fn is reused across calls.
type readUnmarshaler struct {
	object *schema.Object
	fn     func([]byte) error
}

var _ client.Unmarshaler = (*readUnmarshaler)(nil)

///////////////////////////////////////////////////////////////////////////////
// INTERFACE IMPLEMENTATION

func (u *readUnmarshaler) Unmarshal(header http.Header, reader io.Reader) error {
	u.object = objectFromHeaders(header)

	if u.fn == nil {
		return nil
	}
	buf := make([]byte, 32*1024)
	for {
		n, err := reader.Read(buf)
		if n > 0 {
			if fnErr := u.fn(buf[:n]); fnErr != nil {
				return fnErr
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

///////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

// objectFromHeaders rebuilds the object identity and validity from the
// response headers a resolving GET carries
func objectFromHeaders(header http.Header) *schema.Object {
	var object schema.Object
	if id, err := schema.ParseObjectId(header.Get("ETag")); err == nil {
		object.Id = id
	}
	object.ValidFrom = headerInt(header, schema.HeaderValidFrom)
	object.ValidUntil = headerInt(header, schema.HeaderValidUntil)
	object.CreateTime = headerInt(header, schema.HeaderCreated)
	if t, err := http.ParseTime(header.Get(schema.HeaderLastModified)); err == nil {
		object.LastModified = t.UnixMilli()
	}
	object.Checksum = header.Get(schema.HeaderContentMD5)
	if size, err := strconv.ParseInt(header.Get("Content-Length"), 10, 64); err == nil {
		object.Size = size
	}
	if contentType := header.Get("Content-Type"); !strings.HasPrefix(contentType, "multipart/") {
		object.ContentType = contentType
	}
	return &object
}

func headerInt(header http.Header, name string) int64 {
	value, err := strconv.ParseInt(header.Get(name), 10, 64)
	if err != nil {
		return 0
	}
	return value
}
