package conddb

import (
	"context"
	"io"
	"net/url"

	// Packages
	schema "github.com/mutablelogic/go-conddb/pkg/schema"
)

////////////////////////////////////////////////////////////////////////////////
// INTERFACES

// Store is the interface for the temporal object store. An object version is
// the authoritative answer for its path during the half-open interval
// [ValidFrom, ValidUntil). Matching returns the newest version satisfying all
// constraints.
type Store interface {
	// Resolve the single best match for the constraints, or ErrNotFound
	GetMatchingObject(context.Context, schema.RequestConstraints) (*schema.Object, error)

	// Resolve every match for the constraints, newest first. When the
	// Latest flag is set only the newest version per path is returned.
	GetAllMatchingObjects(context.Context, schema.RequestConstraints) (*schema.ObjectList, error)

	// Fetch an object by id, bypassing path resolution
	GetObject(context.Context, schema.ObjectId) (*schema.Object, error)

	// Create a new object version from a byte stream. The content hash and
	// size are computed while the body is streamed to the local backend, and
	// replication to the configured targets is queued on success.
	CreateObject(context.Context, schema.CreateObjectRequest) (*schema.Object, error)

	// Update metadata and optionally the validity limit of an existing
	// object. Returns the object and whether anything changed.
	UpdateObject(context.Context, schema.ObjectId, schema.UpdateObjectRequest) (*schema.Object, bool, error)

	// Delete an object row and queue physical replica removal. Returns the
	// deleted object, or ErrNotFound when no row existed.
	DeleteObject(context.Context, schema.ObjectId) (*schema.Object, error)

	// Delete every object matching the constraints and garbage-collect
	// path dictionary entries left with zero objects.
	TruncateObjects(context.Context, schema.RequestConstraints) (*schema.ObjectList, error)

	// Read object content from a backend holding a replica. The offset and
	// length select a sub-range of the content; length < 0 reads to the end.
	ReadObject(context.Context, *schema.Object, int64, int64) (io.ReadCloser, error)

	// Read object content from a specific replica, which must be in the
	// object's replica set and have a registered backend. The trailing
	// arguments are the offset and length of the sub-range to read.
	ReadObjectFrom(context.Context, *schema.Object, int64, int64, int64) (io.ReadCloser, error)

	// Enumerate immediate sub-paths of a path prefix, with aggregate
	// object count and size statistics when requested.
	ListPaths(context.Context, schema.PathListRequest) (*schema.PathList, error)
}

// Backend is the interface for a physical replica location. Backend 0 is the
// local filesystem; other backends are remote targets objects are replicated to.
type Backend interface {
	io.Closer

	// Name returns the name of the backend
	Name() string

	// URL returns the backend destination URL
	URL() *url.URL

	// Write content under a storage key
	Put(context.Context, string, io.Reader, string) (int64, error)

	// Read content under a storage key. Offset and length select a
	// sub-range; length < 0 reads to the end of the content.
	Get(context.Context, string, int64, int64) (io.ReadCloser, error)

	// Remove content under a storage key
	Delete(context.Context, string) error
}

// Dictionary is a bidirectional mapping between frequently-repeated strings
// and small integer surrogate keys, backed by a persistent table.
type Dictionary interface {
	// Id returns the id for a string, creating an entry when create is set.
	// Returns ErrNotFound when the string is not interned and create is not set.
	Id(context.Context, string, bool) (int64, error)

	// Value returns the string for an id
	Value(context.Context, int64) (string, error)

	// Match returns the ids of all interned strings matching the expression
	Match(context.Context, string) (map[int64]string, error)

	// Remove deletes an entry from the dictionary and the cache
	Remove(context.Context, int64) error
}
