package backend

import (
	"context"
	"errors"
	"io"

	// Packages
	otel "github.com/mutablelogic/go-client/pkg/otel"
	blob "gocloud.dev/blob"
)

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// Put writes content under a storage key, returning the number of bytes
// written. On a failed copy the partial object is removed.
func (b *blobbackend) Put(ctx context.Context, key string, body io.Reader, contentType string) (int64, error) {
	var result error
	ctx, endFunc := otel.StartSpan(b.tracer, ctx, "backend."+b.Name()+".Put")
	defer func() { endFunc(result) }()

	sk := b.storageKey(key)
	w, err := b.bucket.NewWriter(ctx, sk, &blob.WriterOptions{
		ContentType: contentType,
	})
	if err != nil {
		result = blobErr(err, b.Name()+":"+key)
		return 0, result
	}
	n, err := io.Copy(w, body)
	if err != nil {
		err = errors.Join(err, w.Close())
		b.bucket.Delete(ctx, sk)
		result = blobErr(err, b.Name()+":"+key)
		return 0, result
	}
	if err := w.Close(); err != nil {
		b.bucket.Delete(ctx, sk)
		result = blobErr(err, b.Name()+":"+key)
		return 0, result
	}

	// Return success
	return n, nil
}

// Get reads content under a storage key through a positioned read. The
// offset and length select a sub-range; length < 0 reads to the end of
// the content. The caller must close the returned reader.
func (b *blobbackend) Get(ctx context.Context, key string, offset, length int64) (io.ReadCloser, error) {
	r, err := b.bucket.NewRangeReader(ctx, b.storageKey(key), offset, length, nil)
	if err != nil {
		return nil, blobErr(err, b.Name()+":"+key)
	}
	return r, nil
}

// Delete removes content under a storage key
func (b *blobbackend) Delete(ctx context.Context, key string) error {
	if err := b.bucket.Delete(ctx, b.storageKey(key)); err != nil {
		return blobErr(err, b.Name()+":"+key)
	}
	return nil
}
