package dictionary_test

import (
	"context"
	"testing"

	// Packages
	pg "github.com/mutablelogic/go-pg"
	test "github.com/mutablelogic/go-pg/pkg/test"
	dictionary "github.com/mutablelogic/go-conddb/pkg/dictionary"
	schema "github.com/mutablelogic/go-conddb/pkg/schema"
	httpresponse "github.com/mutablelogic/go-server/pkg/httpresponse"
	assert "github.com/stretchr/testify/assert"
)

// Global connection variable
var conn test.Conn

// Start up a container and test the pool
func TestMain(m *testing.M) {
	test.Main(m, &conn)
}

/////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

func Test_Dictionary_001(t *testing.T) {
	assertouter := assert.New(t)
	conn := conn.Begin(t)
	defer conn.Close()

	// Bootstrap the schema
	sconn := conn.With("schema", schema.SchemaName)
	if !assertouter.NoError(sconn.Tx(context.TODO(), func(conn pg.Conn) error {
		return schema.Bootstrap(context.TODO(), conn)
	})) {
		t.FailNow()
	}

	// Create a dictionary cache over the path table
	dict, err := dictionary.New(sconn, schema.DictPath)
	if !assertouter.NoError(err) {
		t.FailNow()
	}
	assertouter.NotNil(dict)

	t.Run("InvalidTable", func(t *testing.T) {
		assert := assert.New(t)
		_, err := dictionary.New(sconn, "nosuchtable")
		assert.Error(err)
	})

	t.Run("Create", func(t *testing.T) {
		assert := assert.New(t)
		id, err := dict.Id(context.TODO(), "detector/ecl/gains", true)
		if !assert.NoError(err) {
			t.FailNow()
		}
		assert.NotZero(id)

		// Interning the same string again returns the same id
		id2, err := dict.Id(context.TODO(), "detector/ecl/gains", true)
		if !assert.NoError(err) {
			t.FailNow()
		}
		assert.Equal(id, id2)
	})

	t.Run("Miss", func(t *testing.T) {
		assert := assert.New(t)
		_, err := dict.Id(context.TODO(), "never/interned", false)
		assert.ErrorIs(err, httpresponse.ErrNotFound)
	})

	t.Run("Value", func(t *testing.T) {
		assert := assert.New(t)
		id, err := dict.Id(context.TODO(), "detector/ecl/timing", true)
		if !assert.NoError(err) {
			t.FailNow()
		}

		name, err := dict.Value(context.TODO(), id)
		if !assert.NoError(err) {
			t.FailNow()
		}
		assert.Equal("detector/ecl/timing", name)
	})

	t.Run("ValueMiss", func(t *testing.T) {
		assert := assert.New(t)
		_, err := dict.Value(context.TODO(), 9999999999)
		assert.ErrorIs(err, httpresponse.ErrNotFound)
	})

	t.Run("Match", func(t *testing.T) {
		assert := assert.New(t)
		a, err := dict.Id(context.TODO(), "detector/klm/gains", true)
		if !assert.NoError(err) {
			t.FailNow()
		}
		_, err = dict.Id(context.TODO(), "magnet/field", true)
		if !assert.NoError(err) {
			t.FailNow()
		}

		matches, err := dict.Match(context.TODO(), "detector/[^/]+/gains")
		if !assert.NoError(err) {
			t.FailNow()
		}
		assert.Contains(matches, a)
		for _, name := range matches {
			assert.Regexp("^detector/", name)
		}
	})

	t.Run("Remove", func(t *testing.T) {
		assert := assert.New(t)
		id, err := dict.Id(context.TODO(), "transient/path", true)
		if !assert.NoError(err) {
			t.FailNow()
		}
		if !assert.NoError(dict.Remove(context.TODO(), id)) {
			t.FailNow()
		}
		_, err = dict.Id(context.TODO(), "transient/path", false)
		assert.ErrorIs(err, httpresponse.ErrNotFound)
	})
}
