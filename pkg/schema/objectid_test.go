package schema_test

import (
	"sort"
	"testing"

	// Packages
	schema "github.com/mutablelogic/go-conddb/pkg/schema"
	assert "github.com/stretchr/testify/assert"
)

func Test_ObjectId_001(t *testing.T) {
	assert := assert.New(t)

	t.Run("Unique", func(t *testing.T) {
		a, b := schema.NewObjectId(""), schema.NewObjectId("")
		assert.NotEqual(a, b)
	})

	t.Run("LexicalOrder", func(t *testing.T) {
		// Sequentially created ids sort in creation order
		ids := make([]string, 10)
		for i := range ids {
			ids[i] = schema.NewObjectId("").String()
		}
		assert.True(sort.StringsAreSorted(ids))
	})

	t.Run("UploadedFrom", func(t *testing.T) {
		id := schema.NewObjectId("192.168.1.10:8080")
		assert.Equal([]byte{192, 168, 1, 10}, []byte(id[12:16]))
	})

	t.Run("UploadedFromInvalid", func(t *testing.T) {
		// A non-address uploader still yields a valid id
		id := schema.NewObjectId("not-an-address")
		assert.True(schema.IsObjectId(id.String()))
	})
}

func Test_ObjectId_002(t *testing.T) {
	assert := assert.New(t)

	t.Run("Parse", func(t *testing.T) {
		id := schema.NewObjectId("")
		parsed, err := schema.ParseObjectId(id.String())
		assert.NoError(err)
		assert.Equal(id, parsed)
	})

	t.Run("ParseQuoted", func(t *testing.T) {
		id := schema.NewObjectId("")
		parsed, err := schema.ParseObjectId(`"` + id.String() + `"`)
		assert.NoError(err)
		assert.Equal(id, parsed)
	})

	t.Run("ParseInvalid", func(t *testing.T) {
		_, err := schema.ParseObjectId("not-a-uuid")
		assert.Error(err)
	})

	t.Run("IsObjectId", func(t *testing.T) {
		assert.True(schema.IsObjectId(schema.NewObjectId("").String()))
		assert.False(schema.IsObjectId("detector"))
		assert.False(schema.IsObjectId("100"))
	})
}
