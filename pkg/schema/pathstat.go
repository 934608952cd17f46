package schema

import (
	"context"
	"encoding/json"
	"strings"

	// Packages
	pg "github.com/mutablelogic/go-pg"
	httpresponse "github.com/mutablelogic/go-server/pkg/httpresponse"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// PathStat is the denormalized per-path object count and total size,
// maintained incrementally on insert and delete for fast aggregate reporting.
type PathStat struct {
	PathId int64  `json:"-"`
	Path   string `json:"path"`
	Count  int64  `json:"count"`
	Size   int64  `json:"size"`
}

// PathStatKey selects the statistics row for one path id
type PathStatKey int64

// PathListRequest enumerates paths under a prefix. When Report is set the
// aggregate statistics are included in the response.
type PathListRequest struct {
	Prefix string `json:"prefix,omitempty"`
	Report bool   `json:"report,omitempty"`
}

type PathList struct {
	Count uint64     `json:"count"`
	Body  []PathStat `json:"body,omitempty"`
}

////////////////////////////////////////////////////////////////////////////////
// STRINGIFY

func (s PathStat) String() string {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err.Error()
	}
	return string(data)
}

func (l PathList) String() string {
	data, err := json.MarshalIndent(l, "", "  ")
	if err != nil {
		return err.Error()
	}
	return string(data)
}

////////////////////////////////////////////////////////////////////////////////
// SELECTOR

func (k PathStatKey) Select(bind *pg.Bind, op pg.Op) (string, error) {
	if k == 0 {
		return "", httpresponse.ErrBadRequest.Withf("invalid path id: %v", k)
	}
	bind.Set("pathid", int64(k))

	switch op {
	case pg.Get:
		return pathStatGet, nil
	default:
		return "", httpresponse.ErrNotImplemented.Withf("PathStatKey operation: %q", op)
	}
}

func (r PathListRequest) Select(bind *pg.Bind, op pg.Op) (string, error) {
	if prefix := strings.Trim(r.Prefix, PathSeparator); prefix == "" {
		bind.Set("where", "")
	} else {
		bind.Set("where", `WHERE p."name" = @prefix OR p."name" LIKE @prefix || '/%'`)
		bind.Set("prefix", prefix)
	}
	bind.Set("orderby", `ORDER BY p."name" ASC`)

	switch op {
	case pg.List:
		return pathStatList, nil
	default:
		return "", httpresponse.ErrNotImplemented.Withf("PathListRequest operation: %q", op)
	}
}

////////////////////////////////////////////////////////////////////////////////
// READER

func (s *PathStat) Scan(row pg.Row) error {
	return row.Scan(&s.PathId, &s.Path, &s.Count, &s.Size)
}

func (l *PathList) Scan(row pg.Row) error {
	var stat PathStat
	if err := stat.Scan(row); err != nil {
		return err
	}
	l.Body = append(l.Body, stat)
	return nil
}

func (l *PathList) ScanCount(row pg.Row) error {
	return row.Scan(&l.Count)
}

////////////////////////////////////////////////////////////////////////////////
// SQL

func bootstrapPathStat(ctx context.Context, conn pg.Conn) error {
	return conn.Exec(ctx, pathStatCreateTable)
}

const (
	pathStatCreateTable = `
		CREATE TABLE IF NOT EXISTS ${"schema"}."pathstat" (
			"pathid" BIGINT PRIMARY KEY REFERENCES ${"schema"}."path" ("id") ON DELETE CASCADE,
			"count"  BIGINT NOT NULL DEFAULT 0,
			"size"   BIGINT NOT NULL DEFAULT 0
		)
	`
	pathStatSelect = `
		SELECT p."id", p."name", COALESCE(s."count", 0), COALESCE(s."size", 0)
		FROM ${"schema"}."path" p
		LEFT JOIN ${"schema"}."pathstat" s ON s."pathid" = p."id"
	`
	pathStatGet  = pathStatSelect + ` WHERE p."id" = @pathid`
	pathStatList = pathStatSelect + ` ${where} ${orderby}`

	// Incremental maintenance on object insert and delete
	PathStatIncr = `
		INSERT INTO ${"schema"}."pathstat" ("pathid", "count", "size") VALUES (@pathid, 1, @size)
		ON CONFLICT ("pathid") DO UPDATE SET "count" = "pathstat"."count" + 1, "size" = "pathstat"."size" + @size
	`
	PathStatDecr = `
		UPDATE ${"schema"}."pathstat" SET "count" = "count" - 1, "size" = "size" - @size WHERE "pathid" = @pathid
	`
)
