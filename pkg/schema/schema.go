package schema

import (
	"context"

	// Packages
	pg "github.com/mutablelogic/go-pg"
)

////////////////////////////////////////////////////////////////////////////////
// GLOBALS

const (
	SchemaName = "conddb"
	APIPrefix  = "/conddb/v1"

	// PathSeparator separates segments of a logical object path
	PathSeparator = "/"

	// MaxPathSegments bounds the number of path segments accepted by the
	// request grammar
	MaxPathSegments = 10

	// ObjectListLimit is the maximum number of objects returned in a single
	// listing call
	ObjectListLimit = 1000

	// LocalReplica is the replica id denoting this node's local backend
	LocalReplica int64 = 0
)

// HTTP headers carried on object responses
const (
	HeaderValidFrom       = "Valid-From"
	HeaderValidUntil      = "Valid-Until"
	HeaderCreated         = "Created"
	HeaderLastModified    = "Last-Modified"
	HeaderContentMD5      = "Content-MD5"
	HeaderContentLocation = "Content-Location"
	HeaderIfNotAfter      = "If-Not-After"
)

// Dictionary table names
const (
	DictPath        = "path"
	DictMetaKey     = "metakey"
	DictContentType = "contenttype"
)

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// Bootstrap creates the schema, dictionary tables, object table and the
// denormalized path statistics table.
func Bootstrap(ctx context.Context, conn pg.Conn) error {
	// Create the schema
	if exists, err := pg.SchemaExists(ctx, conn, SchemaName); err != nil {
		return err
	} else if !exists {
		if err := pg.SchemaCreate(ctx, conn, SchemaName); err != nil {
			return err
		}
	}

	// Dictionaries first, the object table references them
	if err := bootstrapDict(ctx, conn); err != nil {
		return err
	}
	if err := bootstrapObject(ctx, conn); err != nil {
		return err
	}
	if err := bootstrapPathStat(ctx, conn); err != nil {
		return err
	}

	// Return success
	return nil
}
