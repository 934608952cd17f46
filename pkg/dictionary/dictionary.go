// Package dictionary provides a bidirectional, lazily-populated mapping
// between frequently-repeated strings and small integer surrogate keys,
// backed by a persistent table. Entries are interned on first use and the
// cache grows monotonically; the only removal is an explicit Remove when the
// last referencing row is deleted.
package dictionary

import (
	"context"
	"errors"
	"sync"

	// Packages
	pg "github.com/mutablelogic/go-pg"
	conddb "github.com/mutablelogic/go-conddb"
	schema "github.com/mutablelogic/go-conddb/pkg/schema"
	httpresponse "github.com/mutablelogic/go-server/pkg/httpresponse"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

type cache struct {
	conn pg.Conn

	// The lock serializes reads and inserts so two callers cannot create
	// two different ids for the same string. Every forward entry has
	// exactly one reverse entry; both maps are only written at insert().
	mu      sync.Mutex
	forward map[string]int64
	reverse map[int64]string
}

var _ conddb.Dictionary = (*cache)(nil)

////////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

// New returns a dictionary cache over one of the dictionary tables
// (schema.DictPath, schema.DictMetaKey or schema.DictContentType)
func New(conn pg.Conn, table string) (*cache, error) {
	switch table {
	case schema.DictPath, schema.DictMetaKey, schema.DictContentType:
		// Valid dictionary table
	default:
		return nil, httpresponse.ErrInternalError.Withf("invalid dictionary table: %q", table)
	}

	self := new(cache)
	self.conn = conn.With("dict", table)
	self.forward = make(map[string]int64)
	self.reverse = make(map[int64]string)
	return self, nil
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// Id returns the surrogate key for a string. When create is set a missing
// entry is interned through an upsert, so concurrent callers converge on a
// single id; otherwise ErrNotFound is returned for strings never interned.
func (c *cache) Id(ctx context.Context, name string, create bool) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if id, exists := c.forward[name]; exists {
		return id, nil
	}

	var entry schema.DictEntry
	if create {
		if err := c.conn.Insert(ctx, &entry, schema.DictName(name)); err != nil {
			return 0, httperr(err)
		}
	} else if err := c.conn.Get(ctx, &entry, schema.DictName(name)); err != nil {
		return 0, httperr(err)
	}

	c.insert(entry)
	return entry.Id, nil
}

// Value returns the string for a surrogate key
func (c *cache) Value(ctx context.Context, id int64) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if name, exists := c.reverse[id]; exists {
		return name, nil
	}

	var entry schema.DictEntry
	if err := c.conn.Get(ctx, &entry, schema.DictId(id)); err != nil {
		return "", httperr(err)
	}

	c.insert(entry)
	return entry.Name, nil
}

// Match returns every interned entry whose string matches the expression
func (c *cache) Match(ctx context.Context, pattern string) (map[int64]string, error) {
	var list schema.DictEntryList
	if err := c.conn.List(ctx, &list, schema.DictPattern(pattern)); err != nil {
		return nil, httperr(err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	result := make(map[int64]string, len(list.Body))
	for _, entry := range list.Body {
		c.insert(entry)
		result[entry.Id] = entry.Name
	}
	return result, nil
}

// Remove deletes an entry from the table and both cache directions
func (c *cache) Remove(ctx context.Context, id int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var entry schema.DictEntry
	if err := c.conn.Delete(ctx, &entry, schema.DictId(id)); err != nil {
		return httperr(err)
	}

	delete(c.forward, entry.Name)
	delete(c.reverse, id)
	return nil
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

// insert is the single point where both cache directions are written
func (c *cache) insert(entry schema.DictEntry) {
	c.forward[entry.Name] = entry.Id
	c.reverse[entry.Id] = entry.Name
}

func httperr(err error) error {
	if errors.Is(err, pg.ErrNotFound) {
		return httpresponse.ErrNotFound.With("not found")
	}
	return err
}
