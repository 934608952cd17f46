package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	// Packages
	test "github.com/mutablelogic/go-pg/pkg/test"
	backend "github.com/mutablelogic/go-conddb/pkg/backend"
	handler "github.com/mutablelogic/go-conddb/pkg/handler"
	schema "github.com/mutablelogic/go-conddb/pkg/schema"
	store "github.com/mutablelogic/go-conddb/pkg/store"
	openapi "github.com/mutablelogic/go-server/pkg/openapi/schema"
	assert "github.com/stretchr/testify/assert"
)

// Global connection variable
var conn test.Conn

// Start up a container and test the pool
func TestMain(m *testing.M) {
	test.Main(m, &conn)
}

///////////////////////////////////////////////////////////////////////////////
// MOCK ROUTER

type mockRouter struct {
	paths  []string
	retErr error
}

func (m *mockRouter) RegisterFunc(path string, handler http.HandlerFunc, middleware bool, spec *openapi.PathItem) error {
	m.paths = append(m.paths, path)
	return m.retErr
}

///////////////////////////////////////////////////////////////////////////////
// HELPERS

// newTestManager creates a store manager over a transaction and an in-memory
// local backend
func newTestManager(t *testing.T, conn test.Conn) *store.Manager {
	t.Helper()
	local, err := backend.NewBlobBackend(context.TODO(), "mem://local")
	if err != nil {
		t.Fatalf("failed to create backend: %v", err)
	}
	t.Cleanup(func() { local.Close() })

	manager, err := store.NewManager(context.TODO(), conn,
		store.WithLocalBackend(local),
		store.WithClock(func() time.Time { return time.UnixMilli(1700000000000) }),
	)
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}
	return manager
}

// serveMux creates an http.ServeMux with all handler routes registered
func serveMux(manager *store.Manager) *http.ServeMux {
	mux := http.NewServeMux()
	path, fn, _ := handler.ObjectHandler(manager)
	mux.HandleFunc(path, fn)
	path, fn, _ = handler.BrowseHandler(manager)
	mux.HandleFunc(path, fn)
	path, fn, _ = handler.LatestHandler(manager)
	mux.HandleFunc(path, fn)
	path, fn, _ = handler.TruncateHandler(manager)
	mux.HandleFunc(path, fn)
	path, fn, _ = handler.DownloadHandler(manager)
	mux.HandleFunc(path, fn)
	return mux
}

// upload posts a raw body with the validity interval encoded in the request
// path and returns the created object
func upload(t *testing.T, mux *http.ServeMux, path, body string, validFrom, validUntil int64) *schema.Object {
	t.Helper()
	target := fmt.Sprintf("/o/%s/%d/%d", path, validFrom, validUntil)
	if base, query, found := strings.Cut(path, "?"); found {
		target = fmt.Sprintf("/o/%s/%d/%d?%s", base, validFrom, validUntil, query)
	}
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	r.Header.Set("Content-Type", "application/octet-stream")
	mux.ServeHTTP(w, r)
	if w.Code != http.StatusCreated {
		t.Fatalf("upload %q: expected 201, got %d: %s", path, w.Code, w.Body.String())
	}
	var object schema.Object
	if err := json.Unmarshal(w.Body.Bytes(), &object); err != nil {
		t.Fatalf("upload %q: %v", path, err)
	}
	return &object
}

///////////////////////////////////////////////////////////////////////////////
// TESTS

func Test_Register_001(t *testing.T) {
	assert := assert.New(t)
	conn := conn.Begin(t)
	defer conn.Close()
	manager := newTestManager(t, conn)

	t.Run("Register", func(t *testing.T) {
		router := &mockRouter{}
		assert.NoError(handler.RegisterHandlers(manager, router))
		assert.Len(router.paths, 5)
	})

	t.Run("RegisterError", func(t *testing.T) {
		router := &mockRouter{retErr: fmt.Errorf("router error")}
		assert.Error(handler.RegisterHandlers(manager, router))
	})
}

func Test_Object_001(t *testing.T) {
	assert := assert.New(t)
	conn := conn.Begin(t)
	defer conn.Close()
	mux := serveMux(newTestManager(t, conn))

	object := upload(t, mux, "detector/ecl/gains?filename=gains.dat", "hello world", 1000, 2000)
	assert.Equal("detector/ecl/gains", object.Path)
	assert.Equal(int64(11), object.Size)
	assert.Equal("gains.dat", object.FileName)

	t.Run("Get", func(t *testing.T) {
		assert := assert.New(t)
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/o/detector/ecl/gains/1500", nil))
		assert.Equal(http.StatusOK, w.Code)
		assert.Equal("hello world", w.Body.String())
		assert.Equal(`"`+object.Id.String()+`"`, w.Header().Get("ETag"))
		assert.Equal("1000", w.Header().Get(schema.HeaderValidFrom))
		assert.Equal("2000", w.Header().Get(schema.HeaderValidUntil))
		assert.NotEmpty(w.Header().Get(schema.HeaderContentLocation))
	})

	t.Run("Head", func(t *testing.T) {
		assert := assert.New(t)
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest(http.MethodHead, "/o/detector/ecl/gains/1500", nil))
		assert.Equal(http.StatusOK, w.Code)
		assert.Zero(w.Body.Len())
		assert.Equal(`"`+object.Id.String()+`"`, w.Header().Get("ETag"))
	})

	t.Run("Range", func(t *testing.T) {
		assert := assert.New(t)
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/o/detector/ecl/gains/1500", nil)
		r.Header.Set("Range", "bytes=6-10")
		mux.ServeHTTP(w, r)
		assert.Equal(http.StatusPartialContent, w.Code)
		assert.Equal("bytes 6-10/11", w.Header().Get("Content-Range"))
		assert.Equal("world", w.Body.String())
	})

	t.Run("NotModified", func(t *testing.T) {
		assert := assert.New(t)
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/o/detector/ecl/gains/1500", nil)
		r.Header.Set("If-None-Match", `"`+object.Id.String()+`"`)
		mux.ServeHTTP(w, r)
		assert.Equal(http.StatusNotModified, w.Code)
		assert.Zero(w.Body.Len())
	})

	t.Run("OutsideValidity", func(t *testing.T) {
		assert := assert.New(t)
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/o/detector/ecl/gains/5000", nil))
		assert.Equal(http.StatusNotFound, w.Code)
	})

	t.Run("BadGrammar", func(t *testing.T) {
		assert := assert.New(t)
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/o/detector/ecl/gains", nil))
		assert.Equal(http.StatusBadRequest, w.Code)
	})

	t.Run("Options", func(t *testing.T) {
		assert := assert.New(t)
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/o/detector/ecl/gains/1500", nil))
		assert.Equal(http.StatusOK, w.Code)
		assert.Contains(w.Header().Get("Allow"), http.MethodPost)
		assert.Equal(`"`+object.Id.String()+`"`, w.Header().Get("ETag"))
	})

	t.Run("MethodNotAllowed", func(t *testing.T) {
		assert := assert.New(t)
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest(http.MethodPatch, "/o/detector/ecl/gains/1500", nil))
		assert.Equal(http.StatusMethodNotAllowed, w.Code)
	})
}

func Test_Object_002(t *testing.T) {
	conn := conn.Begin(t)
	defer conn.Close()
	mux := serveMux(newTestManager(t, conn))

	t.Run("CreateMissingTime", func(t *testing.T) {
		assert := assert.New(t)
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/o/detector/ecl/gains", strings.NewReader("x")))
		assert.Equal(http.StatusBadRequest, w.Code)
	})

	t.Run("CreateWithMeta", func(t *testing.T) {
		assert := assert.New(t)
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/o/detector/ecl/gains/1000/2000", strings.NewReader("payload"))
		r.Header.Set("X-Meta-Tag", "v2")
		mux.ServeHTTP(w, r)
		assert.Equal(http.StatusCreated, w.Code)
		assert.NotEmpty(w.Header().Get("Location"))

		var object schema.Object
		if assert.NoError(json.Unmarshal(w.Body.Bytes(), &object)) {
			assert.Equal("v2", object.Meta["tag"])
		}
	})

	t.Run("CreateMultipart", func(t *testing.T) {
		assert := assert.New(t)
		var buf bytes.Buffer
		form := multipart.NewWriter(&buf)
		part, err := form.CreateFormFile("file", "calib.dat")
		if !assert.NoError(err) {
			t.FailNow()
		}
		part.Write([]byte("multipart payload"))
		form.Close()

		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/o/detector/ecl/calib/1000/2000", &buf)
		r.Header.Set("Content-Type", form.FormDataContentType())
		mux.ServeHTTP(w, r)
		assert.Equal(http.StatusCreated, w.Code)

		var object schema.Object
		if assert.NoError(json.Unmarshal(w.Body.Bytes(), &object)) {
			assert.Equal("calib.dat", object.FileName)
			assert.Equal(int64(len("multipart payload")), object.Size)
		}
	})

	t.Run("Update", func(t *testing.T) {
		assert := assert.New(t)
		upload(t, mux, "detector/ecl/timing", "payload", 1000, 2000)

		w := httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest(http.MethodPut, "/o/detector/ecl/timing/1500?tag=v3&endTime=2500", nil))
		assert.Equal(http.StatusNoContent, w.Code)

		// The same update again changes nothing
		w = httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest(http.MethodPut, "/o/detector/ecl/timing/1500?tag=v3&endTime=2500", nil))
		assert.Equal(http.StatusNotModified, w.Code)

		// The moved validity limit answers later queries
		w = httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/o/detector/ecl/timing/2400", nil))
		assert.Equal(http.StatusOK, w.Code)
	})

	t.Run("Delete", func(t *testing.T) {
		assert := assert.New(t)
		upload(t, mux, "detector/ecl/noise", "payload", 1000, 2000)

		w := httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/o/detector/ecl/noise/1500", nil))
		assert.Equal(http.StatusNoContent, w.Code)

		w = httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/o/detector/ecl/noise/1500", nil))
		assert.Equal(http.StatusNotFound, w.Code)
	})
}

func Test_Object_003(t *testing.T) {
	conn := conn.Begin(t)
	defer conn.Close()
	mux := serveMux(newTestManager(t, conn))

	t.Run("RoundTrip", func(t *testing.T) {
		assert := assert.New(t)
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/o/A/B/1000", strings.NewReader("hello"))
		mux.ServeHTTP(w, r)
		assert.Equal(http.StatusCreated, w.Code)

		var object schema.Object
		if assert.NoError(json.Unmarshal(w.Body.Bytes(), &object)) {
			assert.Equal("A/B", object.Path)
			assert.Equal(int64(1000), object.ValidFrom)
			assert.Equal(int64(1001), object.ValidUntil)
		}

		// The same path resolves the version it created
		w = httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/o/A/B/1000", nil))
		assert.Equal(http.StatusOK, w.Code)
		assert.Equal("hello", w.Body.String())
		assert.Equal("1000", w.Header().Get(schema.HeaderValidFrom))
	})

	t.Run("CreateWithEndTimeAndFlags", func(t *testing.T) {
		assert := assert.New(t)
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/o/A/C/1000/2000/tag=v1", strings.NewReader("flagged"))
		mux.ServeHTTP(w, r)
		assert.Equal(http.StatusCreated, w.Code)

		var object schema.Object
		if assert.NoError(json.Unmarshal(w.Body.Bytes(), &object)) {
			assert.Equal("A/C", object.Path)
			assert.Equal(int64(2000), object.ValidUntil)
			assert.Equal("v1", object.Meta["tag"])
		}

		w = httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/o/A/C/1500/tag=v1", nil))
		assert.Equal(http.StatusOK, w.Code)
		assert.Equal("flagged", w.Body.String())
	})

	t.Run("CreateHeaderOverride", func(t *testing.T) {
		assert := assert.New(t)
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/o/A/D/1000", strings.NewReader("override"))
		r.Header.Set(schema.HeaderValidUntil, "5000")
		mux.ServeHTTP(w, r)
		assert.Equal(http.StatusCreated, w.Code)

		var object schema.Object
		if assert.NoError(json.Unmarshal(w.Body.Bytes(), &object)) {
			assert.Equal(int64(1000), object.ValidFrom)
			assert.Equal(int64(5000), object.ValidUntil)
		}
	})

	t.Run("CreateWithUuid", func(t *testing.T) {
		assert := assert.New(t)
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/o/A/B/1000/"+schema.NewObjectId("").String(), strings.NewReader("x"))
		mux.ServeHTTP(w, r)
		assert.Equal(http.StatusBadRequest, w.Code)
	})
}

func Test_Browse_001(t *testing.T) {
	conn := conn.Begin(t)
	defer conn.Close()
	mux := serveMux(newTestManager(t, conn))

	upload(t, mux, "detector/ecl/gains", "version one", 1000, 2000)
	v2 := upload(t, mux, "detector/ecl/gains", "version two", 1500, 2500)
	upload(t, mux, "detector/klm/gains", "klm", 1000, 2000)

	t.Run("Browse", func(t *testing.T) {
		assert := assert.New(t)
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/browse/detector?report=true", nil)
		r.Header.Set("Accept", "application/json")
		mux.ServeHTTP(w, r)
		assert.Equal(http.StatusOK, w.Code)

		// The prefix itself is not an interned path so there are no direct
		// versions, only children and the aggregate report
		var listing handler.BrowseResponse
		if assert.NoError(json.Unmarshal(w.Body.Bytes(), &listing)) {
			assert.Empty(listing.Objects)
			assert.ElementsMatch([]string{"ecl", "klm"}, listing.Children)
			assert.Len(listing.Report, 2)
		}
	})

	t.Run("BrowseText", func(t *testing.T) {
		assert := assert.New(t)
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/browse/detector/ecl/gains", nil))
		assert.Equal(http.StatusOK, w.Code)
		assert.Contains(w.Body.String(), "detector/ecl/gains")
	})

	t.Run("Latest", func(t *testing.T) {
		assert := assert.New(t)
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/latest/detector/ecl/gains", nil)
		r.Header.Set("Accept", "application/json")
		mux.ServeHTTP(w, r)
		assert.Equal(http.StatusOK, w.Code)

		var listing handler.BrowseResponse
		if assert.NoError(json.Unmarshal(w.Body.Bytes(), &listing)) {
			if assert.Len(listing.Objects, 1) {
				assert.Equal(v2.Id, listing.Objects[0].Id)
			}
		}
	})

	t.Run("Wildcard", func(t *testing.T) {
		assert := assert.New(t)
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/browse/detector/*/gains", nil)
		r.Header.Set("Accept", "application/json")
		mux.ServeHTTP(w, r)
		assert.Equal(http.StatusOK, w.Code)

		var listing handler.BrowseResponse
		if assert.NoError(json.Unmarshal(w.Body.Bytes(), &listing)) {
			assert.Equal(uint64(3), listing.Count)
		}
	})

	t.Run("Truncate", func(t *testing.T) {
		assert := assert.New(t)
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/truncate/detector/klm/gains", nil))
		assert.Equal(http.StatusOK, w.Code)

		var deleted schema.ObjectList
		if assert.NoError(json.Unmarshal(w.Body.Bytes(), &deleted)) {
			assert.Equal(uint64(1), deleted.Count)
		}

		w = httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/o/detector/klm/gains/1500", nil))
		assert.Equal(http.StatusNotFound, w.Code)
	})
}

func Test_Download_001(t *testing.T) {
	conn := conn.Begin(t)
	defer conn.Close()
	mux := serveMux(newTestManager(t, conn))

	object := upload(t, mux, "detector/ecl/gains", "download me", 1000, 2000)

	t.Run("Download", func(t *testing.T) {
		assert := assert.New(t)
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/download/"+object.Id.String(), nil))
		assert.Equal(http.StatusOK, w.Code)
		assert.Equal("download me", w.Body.String())
	})

	t.Run("Replica", func(t *testing.T) {
		assert := assert.New(t)
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/download/"+object.Id.String()+"?replica=0", nil))
		assert.Equal(http.StatusOK, w.Code)
		assert.Equal("download me", w.Body.String())
	})

	t.Run("UnknownReplica", func(t *testing.T) {
		assert := assert.New(t)
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/download/"+object.Id.String()+"?replica=7", nil))
		assert.Equal(http.StatusNotFound, w.Code)
	})

	t.Run("InvalidReplica", func(t *testing.T) {
		assert := assert.New(t)
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/download/"+object.Id.String()+"?replica=x", nil))
		assert.Equal(http.StatusBadRequest, w.Code)
	})

	t.Run("InvalidId", func(t *testing.T) {
		assert := assert.New(t)
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/download/not-a-uuid", nil))
		assert.Equal(http.StatusBadRequest, w.Code)
	})

	t.Run("UnknownId", func(t *testing.T) {
		assert := assert.New(t)
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/download/"+schema.NewObjectId("").String(), nil))
		assert.Equal(http.StatusNotFound, w.Code)
	})
}
