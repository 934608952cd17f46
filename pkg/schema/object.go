package schema

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	// Packages
	pg "github.com/mutablelogic/go-pg"
	uuid "github.com/google/uuid"
	httpresponse "github.com/mutablelogic/go-server/pkg/httpresponse"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// Object is one stored object version. Times are epoch milliseconds and the
// validity interval is half-open: the version answers for its path during
// [ValidFrom, ValidUntil).
type Object struct {
	Id              ObjectId          `json:"id"`
	Path            string            `json:"path,omitempty"` // resolved from PathId, not stored on the row
	PathId          int64             `json:"-"`
	ValidFrom       int64             `json:"valid_from"`
	ValidUntil      int64             `json:"valid_until"`
	InitialValidity int64             `json:"initial_validity,omitempty"`
	CreateTime      int64             `json:"create_time"`
	LastModified    int64             `json:"last_modified"`
	Size            int64             `json:"size"`
	Checksum        string            `json:"checksum,omitempty"`
	FileName        string            `json:"filename,omitempty"`
	ContentType     string            `json:"content_type,omitempty"` // resolved from ContentTypeId
	ContentTypeId   int64             `json:"-"`
	UploadedFrom    string            `json:"uploaded_from,omitempty"`
	Metadata        map[int64]string  `json:"-"` // keyed by interned metadata-key id
	Meta            map[string]string `json:"meta,omitempty"`
	Replicas        []int64           `json:"replicas"`

	existing bool // row is persisted
	tainted  bool // in-memory fields differ from the persisted row
}

// ObjectKey selects a single object row by id
type ObjectKey ObjectId

// ObjectMatchRequest carries resolved constraints for matching queries. The
// path and metadata keys have already been interned: an empty PathIds set or
// a missing flag key means no row can match.
type ObjectMatchRequest struct {
	PathIds      []int64
	Uuid         *ObjectId
	StartTime    int64
	StartTimeSet bool
	NotAfter     int64
	Flags        map[int64]string
	Latest       bool
	pg.OffsetLimit
}

type ObjectList struct {
	Count uint64    `json:"count"`
	Body  []*Object `json:"body,omitempty"`
}

////////////////////////////////////////////////////////////////////////////////
// STRINGIFY

func (o Object) String() string {
	data, err := json.MarshalIndent(o, "", "  ")
	if err != nil {
		return err.Error()
	}
	return string(data)
}

func (l ObjectList) String() string {
	data, err := json.MarshalIndent(l, "", "  ")
	if err != nil {
		return err.Error()
	}
	return string(data)
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// Existing reports whether the object row is persisted
func (o *Object) Existing() bool {
	return o.existing
}

// Tainted reports whether in-memory fields differ from the persisted row
func (o *Object) Tainted() bool {
	return o.tainted
}

// SetExisting marks the object as persisted and untainted
func (o *Object) SetExisting() {
	o.existing = true
	o.tainted = false
}

// SetProperty sets or removes a metadata value for an interned key id. An
// empty value removes the key. Returns true when the effective value changed,
// which also taints the object.
func (o *Object) SetProperty(keyId int64, value string) bool {
	previous, exists := o.Metadata[keyId]
	if value == "" {
		if !exists {
			return false
		}
		delete(o.Metadata, keyId)
		o.tainted = true
		return true
	}
	if exists && previous == value {
		return false
	}
	if o.Metadata == nil {
		o.Metadata = make(map[int64]string, 1)
	}
	o.Metadata[keyId] = value
	o.tainted = true
	return true
}

// SetValidityLimit moves the end of the validity interval. The limit only
// changes when it differs from the current one and keeps the interval
// non-empty. Returns true when the limit changed.
func (o *Object) SetValidityLimit(validUntil int64) bool {
	if validUntil == o.ValidUntil || validUntil <= o.ValidFrom {
		return false
	}
	o.ValidUntil = validUntil
	o.tainted = true
	return true
}

////////////////////////////////////////////////////////////////////////////////
// SELECTOR

func (k ObjectKey) Select(bind *pg.Bind, op pg.Op) (string, error) {
	if uuid.UUID(k) == uuid.Nil {
		return "", httpresponse.ErrBadRequest.With("invalid object id")
	}
	bind.Set("id", uuid.UUID(k).String())

	switch op {
	case pg.Get:
		return objectGet, nil
	case pg.Update:
		return objectUpdate, nil
	case pg.Delete:
		return objectDelete, nil
	default:
		return "", httpresponse.ErrNotImplemented.Withf("ObjectKey operation: %q", op)
	}
}

func (r ObjectMatchRequest) Select(bind *pg.Bind, op pg.Op) (string, error) {
	// Filters: path, id, interval, snapshot cutoff, metadata equality
	where := []string{}
	if r.Uuid != nil {
		bind.Set("uuid", r.Uuid.String())
		where = append(where, `"id" = @uuid`)
	}
	if len(r.PathIds) > 0 {
		bind.Set("pathids", r.PathIds)
		where = append(where, `"pathid" = ANY(@pathids)`)
	}
	if r.StartTimeSet {
		bind.Set("start", r.StartTime)
		where = append(where, `"validfrom" <= @start AND "validuntil" > @start`)
	}
	if r.NotAfter > 0 {
		bind.Set("notafter", r.NotAfter)
		where = append(where, `"createtime" <= @notafter`)
	}
	i := 0
	for key, value := range r.Flags {
		k, v := "flagk"+strconv.Itoa(i), "flagv"+strconv.Itoa(i)
		bind.Set(k, strconv.FormatInt(key, 10))
		bind.Set(v, value)
		where = append(where, `"metadata"->>@`+k+` = @`+v)
		i++
	}
	if len(where) > 0 {
		bind.Set("where", "WHERE "+strings.Join(where, " AND "))
	} else {
		bind.Set("where", "")
	}
	bind.Set("orderby", `ORDER BY "createtime" DESC, "id" DESC`)

	// Bind offset and limit
	r.OffsetLimit.Bind(bind, ObjectListLimit)

	switch op {
	case pg.Get:
		return objectMatch, nil
	case pg.List:
		if r.Latest {
			return objectListLatest, nil
		}
		return objectList, nil
	default:
		return "", httpresponse.ErrNotImplemented.Withf("ObjectMatchRequest operation: %q", op)
	}
}

////////////////////////////////////////////////////////////////////////////////
// READER

func (o *Object) Scan(row pg.Row) error {
	var id string
	var metadata map[string]string
	if err := row.Scan(&id, &o.PathId, &o.ValidFrom, &o.ValidUntil, &o.InitialValidity, &o.CreateTime, &o.LastModified,
		&o.Size, &o.Checksum, &o.FileName, &o.ContentTypeId, &o.UploadedFrom, &metadata, &o.Replicas); err != nil {
		return err
	}
	if parsed, err := uuid.Parse(id); err != nil {
		return err
	} else {
		o.Id = parsed
	}
	o.Metadata = make(map[int64]string, len(metadata))
	for key, value := range metadata {
		if keyId, err := strconv.ParseInt(key, 10, 64); err == nil {
			o.Metadata[keyId] = value
		}
	}
	o.existing = true
	o.tainted = false
	return nil
}

func (l *ObjectList) Scan(row pg.Row) error {
	var object Object
	if err := object.Scan(row); err != nil {
		return err
	}
	l.Body = append(l.Body, &object)
	return nil
}

func (l *ObjectList) ScanCount(row pg.Row) error {
	return row.Scan(&l.Count)
}

////////////////////////////////////////////////////////////////////////////////
// WRITER

// Insert binds a new object row. The initial validity is stamped from the
// live interval end so the original intent survives later extensions.
func (o Object) Insert(bind *pg.Bind) (string, error) {
	if uuid.UUID(o.Id) == uuid.Nil {
		return "", httpresponse.ErrBadRequest.With("invalid object id")
	}
	if o.PathId == 0 {
		return "", httpresponse.ErrBadRequest.With("invalid path id")
	}
	if o.ValidUntil <= o.ValidFrom {
		return "", httpresponse.ErrBadRequest.Withf("invalid validity interval [%d, %d)", o.ValidFrom, o.ValidUntil)
	}
	bind.Set("id", o.Id.String())
	bind.Set("pathid", o.PathId)
	bind.Set("validfrom", o.ValidFrom)
	bind.Set("validuntil", o.ValidUntil)
	bind.Set("initialvalidity", o.ValidUntil)
	bind.Set("createtime", o.CreateTime)
	bind.Set("lastmodified", o.CreateTime)
	bind.Set("size", o.Size)
	bind.Set("checksum", o.Checksum)
	bind.Set("filename", o.FileName)
	bind.Set("contenttypeid", o.ContentTypeId)
	bind.Set("uploadedfrom", o.UploadedFrom)
	bind.Set("metadata", marshalMetadata(o.Metadata))
	if o.Replicas == nil {
		bind.Set("replicas", []int64{})
	} else {
		bind.Set("replicas", o.Replicas)
	}
	return objectInsert, nil
}

// Update binds the mutable fields: validity limit, metadata and the
// last-modified stamp. Everything else is immutable after creation.
func (o Object) Update(bind *pg.Bind) error {
	if o.ValidUntil <= o.ValidFrom {
		return httpresponse.ErrBadRequest.Withf("invalid validity interval [%d, %d)", o.ValidFrom, o.ValidUntil)
	}
	bind.Set("validuntil", o.ValidUntil)
	bind.Set("lastmodified", o.LastModified)
	bind.Set("metadata", marshalMetadata(o.Metadata))
	return nil
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

func marshalMetadata(metadata map[int64]string) map[string]string {
	result := make(map[string]string, len(metadata))
	for keyId, value := range metadata {
		result[strconv.FormatInt(keyId, 10)] = value
	}
	return result
}

////////////////////////////////////////////////////////////////////////////////
// SQL

// Create objects in the schema
func bootstrapObject(ctx context.Context, conn pg.Conn) error {
	q := []string{
		objectCreateTable,
		objectCreateIndex,
	}
	for _, query := range q {
		if err := conn.Exec(ctx, query); err != nil {
			return err
		}
	}
	return nil
}

const (
	objectCreateTable = `
		CREATE TABLE IF NOT EXISTS ${"schema"}."object" (
			"id"              TEXT PRIMARY KEY,                         -- Time-ordered identifier
			"pathid"          BIGINT NOT NULL REFERENCES ${"schema"}."path" ("id"),
			"validfrom"       BIGINT NOT NULL,                          -- Inclusive, epoch ms
			"validuntil"      BIGINT NOT NULL,                          -- Exclusive, epoch ms
			"initialvalidity" BIGINT NOT NULL,                          -- validuntil as recorded at creation
			"createtime"      BIGINT NOT NULL,
			"lastmodified"    BIGINT NOT NULL,
			"size"            BIGINT NOT NULL DEFAULT 0,
			"checksum"        TEXT NOT NULL DEFAULT '',
			"filename"        TEXT NOT NULL DEFAULT '',
			"contenttypeid"   BIGINT NOT NULL DEFAULT 0,
			"uploadedfrom"    TEXT NOT NULL DEFAULT '',
			"metadata"        JSONB NOT NULL DEFAULT '{}',              -- interned key id -> value
			"replicas"        BIGINT[] NOT NULL DEFAULT '{}',
			CHECK ("validuntil" > "validfrom")
		)
	`
	objectCreateIndex = `
		CREATE INDEX IF NOT EXISTS "object_pathid_validity" ON ${"schema"}."object" ("pathid", "validfrom", "validuntil")
	`
	objectSelect = `
		SELECT
			"id", "pathid", "validfrom", "validuntil", "initialvalidity", "createtime", "lastmodified",
			"size", "checksum", "filename", "contenttypeid", "uploadedfrom", "metadata", "replicas"
		FROM ${"schema"}."object"
	`
	objectGet   = objectSelect + ` WHERE "id" = @id`
	objectMatch = `WITH q AS (` + objectSelect + `) SELECT * FROM q ${where} ${orderby} LIMIT 1`
	objectList  = `WITH q AS (` + objectSelect + `) SELECT * FROM q ${where} ${orderby}`
	// Latest keeps only the newest version per path before ordering
	objectListLatest = `
		WITH q AS (` + objectSelect + `)
		SELECT * FROM (
			SELECT DISTINCT ON ("pathid") * FROM q ${where} ORDER BY "pathid", "createtime" DESC, "id" DESC
		) r ORDER BY "createtime" DESC, "id" DESC
	`
	objectInsert = `
		INSERT INTO ${"schema"}."object" (
			"id", "pathid", "validfrom", "validuntil", "initialvalidity", "createtime", "lastmodified",
			"size", "checksum", "filename", "contenttypeid", "uploadedfrom", "metadata", "replicas"
		) VALUES (
			@id, @pathid, @validfrom, @validuntil, @initialvalidity, @createtime, @lastmodified,
			@size, @checksum, @filename, @contenttypeid, @uploadedfrom, @metadata, @replicas
		) RETURNING
			"id", "pathid", "validfrom", "validuntil", "initialvalidity", "createtime", "lastmodified",
			"size", "checksum", "filename", "contenttypeid", "uploadedfrom", "metadata", "replicas"
	`
	objectUpdate = `
		UPDATE ${"schema"}."object" SET
			"validuntil" = @validuntil, "lastmodified" = @lastmodified, "metadata" = @metadata
		WHERE "id" = @id
		RETURNING
			"id", "pathid", "validfrom", "validuntil", "initialvalidity", "createtime", "lastmodified",
			"size", "checksum", "filename", "contenttypeid", "uploadedfrom", "metadata", "replicas"
	`
	objectDelete = `
		DELETE FROM ${"schema"}."object" WHERE "id" = @id
		RETURNING
			"id", "pathid", "validfrom", "validuntil", "initialvalidity", "createtime", "lastmodified",
			"size", "checksum", "filename", "contenttypeid", "uploadedfrom", "metadata", "replicas"
	`

	// Targeted replica-set updates. Append is conditional so concurrent
	// replication appends and metadata saves cannot clobber each other.
	ObjectReplicaAppend = `
		UPDATE ${"schema"}."object" SET "replicas" = array_append("replicas", @replica)
		WHERE "id" = @id AND NOT (@replica = ANY("replicas"))
	`
	ObjectReplicaRemove = `
		UPDATE ${"schema"}."object" SET "replicas" = array_remove("replicas", @replica)
		WHERE "id" = @id
	`
)
