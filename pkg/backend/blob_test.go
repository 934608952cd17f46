package backend

import (
	"context"
	"io"
	"strings"
	"testing"

	// Packages
	httpresponse "github.com/mutablelogic/go-server/pkg/httpresponse"
	assert "github.com/stretchr/testify/assert"
)

func TestBlobBackendStorageKey(t *testing.T) {
	assert := assert.New(t)

	tests := []struct {
		name       string
		backendURL string
		key        string
		want       string
	}{
		{
			name:       "mem no prefix",
			backendURL: "mem://local",
			key:        "01/02/abc",
			want:       "01/02/abc",
		},
		{
			name:       "mem with prefix",
			backendURL: "mem://local/objects",
			key:        "01/02/abc",
			want:       "objects/01/02/abc",
		},
		{
			name:       "mem leading slash",
			backendURL: "mem://local/objects",
			key:        "/01/02/abc",
			want:       "objects/01/02/abc",
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			b, err := NewBlobBackend(context.Background(), test.backendURL)
			if !assert.NoError(err) {
				t.FailNow()
			}
			defer b.Close()
			assert.Equal(test.want, b.storageKey(test.key))
		})
	}
}

func TestBlobBackendName(t *testing.T) {
	assert := assert.New(t)

	b, err := NewBlobBackend(context.Background(), "mem://local")
	if !assert.NoError(err) {
		t.FailNow()
	}
	defer b.Close()
	assert.Equal("local", b.Name())

	// The backend name must be a valid identifier
	_, err = NewBlobBackend(context.Background(), "mem://not a name")
	assert.Error(err)
}

func TestBlobBackendIO(t *testing.T) {
	assert := assert.New(t)

	b, err := NewBlobBackend(context.Background(), "mem://local")
	if !assert.NoError(err) {
		t.FailNow()
	}
	defer b.Close()

	t.Run("Put", func(t *testing.T) {
		n, err := b.Put(context.Background(), "01/02/abc", strings.NewReader("hello world"), "text/plain")
		assert.NoError(err)
		assert.Equal(int64(11), n)
	})

	t.Run("Get", func(t *testing.T) {
		r, err := b.Get(context.Background(), "01/02/abc", 0, -1)
		if !assert.NoError(err) {
			t.FailNow()
		}
		defer r.Close()
		data, err := io.ReadAll(r)
		assert.NoError(err)
		assert.Equal("hello world", string(data))
	})

	t.Run("GetRange", func(t *testing.T) {
		r, err := b.Get(context.Background(), "01/02/abc", 6, 5)
		if !assert.NoError(err) {
			t.FailNow()
		}
		defer r.Close()
		data, err := io.ReadAll(r)
		assert.NoError(err)
		assert.Equal("world", string(data))
	})

	t.Run("GetMissing", func(t *testing.T) {
		_, err := b.Get(context.Background(), "99/99/missing", 0, -1)
		assert.ErrorIs(err, httpresponse.ErrNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		assert.NoError(b.Delete(context.Background(), "01/02/abc"))
		_, err := b.Get(context.Background(), "01/02/abc", 0, -1)
		assert.ErrorIs(err, httpresponse.ErrNotFound)
	})
}
