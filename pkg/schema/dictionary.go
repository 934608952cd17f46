package schema

import (
	"context"
	"encoding/json"

	// Packages
	pg "github.com/mutablelogic/go-pg"
	httpresponse "github.com/mutablelogic/go-server/pkg/httpresponse"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// DictEntry is one interned string with its integer surrogate key. Three
// dictionary tables share this shape: path, metakey and contenttype. The
// table is selected by binding "dict" on the connection.
type DictEntry struct {
	Id   int64  `json:"id"`
	Name string `json:"name"`
}

// DictName selects or inserts an entry by its string value
type DictName string

// DictId selects an entry by its surrogate key
type DictId int64

// DictPattern selects every entry whose string matches a regular expression
type DictPattern string

type DictEntryList struct {
	Count uint64      `json:"count"`
	Body  []DictEntry `json:"body,omitempty"`
}

////////////////////////////////////////////////////////////////////////////////
// STRINGIFY

func (e DictEntry) String() string {
	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return err.Error()
	}
	return string(data)
}

////////////////////////////////////////////////////////////////////////////////
// SELECTOR

func (n DictName) Select(bind *pg.Bind, op pg.Op) (string, error) {
	if n == "" {
		return "", httpresponse.ErrBadRequest.With("empty dictionary value")
	}
	bind.Set("name", string(n))

	switch op {
	case pg.Get:
		return dictGet, nil
	default:
		return "", httpresponse.ErrNotImplemented.Withf("DictName operation: %q", op)
	}
}

func (i DictId) Select(bind *pg.Bind, op pg.Op) (string, error) {
	if i == 0 {
		return "", httpresponse.ErrBadRequest.Withf("invalid dictionary id: %v", i)
	}
	bind.Set("id", int64(i))

	switch op {
	case pg.Get:
		return dictGetId, nil
	case pg.Delete:
		return dictDelete, nil
	default:
		return "", httpresponse.ErrNotImplemented.Withf("DictId operation: %q", op)
	}
}

func (p DictPattern) Select(bind *pg.Bind, op pg.Op) (string, error) {
	bind.Set("where", `WHERE "name" ~ @pattern`)
	bind.Set("orderby", `ORDER BY "name" ASC`)
	bind.Set("pattern", string(p))

	switch op {
	case pg.List:
		return dictList, nil
	default:
		return "", httpresponse.ErrNotImplemented.Withf("DictPattern operation: %q", op)
	}
}

////////////////////////////////////////////////////////////////////////////////
// READER

func (e *DictEntry) Scan(row pg.Row) error {
	return row.Scan(&e.Id, &e.Name)
}

func (l *DictEntryList) Scan(row pg.Row) error {
	var entry DictEntry
	if err := entry.Scan(row); err != nil {
		return err
	}
	l.Body = append(l.Body, entry)
	return nil
}

func (l *DictEntryList) ScanCount(row pg.Row) error {
	return row.Scan(&l.Count)
}

////////////////////////////////////////////////////////////////////////////////
// WRITER

// Insert is a get-or-create: the ON CONFLICT clause returns the existing id
// so concurrent callers converge on a single surrogate key per string.
func (n DictName) Insert(bind *pg.Bind) (string, error) {
	if n == "" {
		return "", httpresponse.ErrBadRequest.With("empty dictionary value")
	}
	bind.Set("name", string(n))
	return dictUpsert, nil
}

func (n DictName) Update(bind *pg.Bind) error {
	return httpresponse.ErrNotImplemented
}

////////////////////////////////////////////////////////////////////////////////
// SQL

// Create the three dictionary tables
func bootstrapDict(ctx context.Context, conn pg.Conn) error {
	for _, dict := range []string{DictPath, DictMetaKey, DictContentType} {
		if err := conn.With("dict", dict).Exec(ctx, dictCreateTable); err != nil {
			return err
		}
	}
	return nil
}

const (
	dictCreateTable = `
		CREATE TABLE IF NOT EXISTS ${"schema"}.${"dict"} (
			"id"   BIGSERIAL PRIMARY KEY, -- Surrogate key
			"name" TEXT NOT NULL,         -- Interned string
			UNIQUE("name")
		)
	`
	dictUpsert = `
		INSERT INTO ${"schema"}.${"dict"} ("name") VALUES (@name)
		ON CONFLICT ("name") DO UPDATE SET "name" = EXCLUDED."name"
		RETURNING "id", "name"
	`
	dictSelect = `SELECT "id", "name" FROM ${"schema"}.${"dict"}`
	dictGet    = dictSelect + ` WHERE "name" = @name`
	dictGetId  = dictSelect + ` WHERE "id" = @id`
	dictList   = `WITH q AS (` + dictSelect + `) SELECT * FROM q ${where} ${orderby}`
	dictDelete = `DELETE FROM ${"schema"}.${"dict"} WHERE "id" = @id RETURNING "id", "name"`
)
