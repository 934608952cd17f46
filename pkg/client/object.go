package client

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	// Packages
	client "github.com/mutablelogic/go-client"
	handler "github.com/mutablelogic/go-conddb/pkg/handler"
	schema "github.com/mutablelogic/go-conddb/pkg/schema"
)

///////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// Resolve returns the metadata of the best matching object version for a
// request path, without downloading the content. The path follows the request
// grammar, e.g. "detector/ECL/gains/1620000000000".
func (c *Client) Resolve(ctx context.Context, path string) (*schema.Object, error) {
	u := new(readUnmarshaler)
	if err := c.DoWithContext(ctx,
		client.NewRequestEx(http.MethodHead, ""),
		u,
		client.OptPath("o", path),
	); err != nil {
		return nil, err
	}
	return u.object, nil
}

// Read resolves the best matching object version and streams its content,
// calling fn with each chunk as it arrives. The slice passed to fn is reused
// across calls; copy it if retained.
func (c *Client) Read(ctx context.Context, path string, fn func([]byte) error) (*schema.Object, error) {
	u := &readUnmarshaler{fn: fn}
	if err := c.DoWithContext(ctx,
		client.NewRequest(),
		u,
		client.OptPath("o", path),
	); err != nil {
		return nil, err
	}
	return u.object, nil
}

// Create uploads a new object version, placing the validity interval in the
// request path per the grammar and forwarding metadata as request headers.
func (c *Client) Create(ctx context.Context, req schema.CreateObjectRequest) (*schema.Object, error) {
	payload := &uploadPayload{body: req.Body, contentType: req.ContentType}

	opts := []client.RequestOpt{
		client.OptPath("o", req.Path, strconv.FormatInt(req.ValidFrom, 10), strconv.FormatInt(req.ValidUntil, 10)),
	}
	if req.FileName != "" {
		query := make(url.Values)
		query.Set("filename", req.FileName)
		opts = append(opts, client.OptQuery(query))
	}
	for key, value := range req.Meta {
		opts = append(opts, client.OptReqHeader(http.CanonicalHeaderKey("X-Meta-"+key), value))
	}

	var response schema.Object
	if err := c.DoWithContext(ctx, payload, &response, opts...); err != nil {
		return nil, err
	}
	return &response, nil
}

// Update applies metadata values and optionally moves the validity limit of
// the version the path resolves to. An empty metadata value removes the key.
func (c *Client) Update(ctx context.Context, path string, req schema.UpdateObjectRequest) error {
	query := make(url.Values)
	for key, value := range req.Meta {
		query.Set(key, value)
	}
	if req.ValidUntil != nil {
		query.Set("endTime", strconv.FormatInt(*req.ValidUntil, 10))
	}
	return c.DoWithContext(ctx,
		client.NewRequestEx(http.MethodPut, ""),
		nil,
		client.OptPath("o", path),
		client.OptQuery(query),
	)
}

// Delete removes the object version the path resolves to and queues physical
// replica removal.
func (c *Client) Delete(ctx context.Context, path string) error {
	return c.DoWithContext(ctx,
		client.NewRequestEx(http.MethodDelete, ""),
		nil,
		client.OptPath("o", path),
	)
}

// Browse lists object versions under a path prefix: every version, or only
// the newest per path when latest is set. When report is set the per-path
// aggregate statistics are included.
func (c *Client) Browse(ctx context.Context, path string, latest, report bool) (*handler.BrowseResponse, error) {
	endpoint := "browse"
	if latest {
		endpoint = "latest"
	}
	query := make(url.Values)
	if report {
		query.Set("report", "true")
	}
	var response handler.BrowseResponse
	if err := c.DoWithContext(ctx,
		client.NewRequest(),
		&response,
		client.OptPath(endpoint, path),
		client.OptQuery(query),
	); err != nil {
		return nil, err
	}
	return &response, nil
}

// Truncate deletes every object version matching the path and returns the
// deleted versions.
func (c *Client) Truncate(ctx context.Context, path string) (*schema.ObjectList, error) {
	var response schema.ObjectList
	if err := c.DoWithContext(ctx,
		client.NewRequest(),
		&response,
		client.OptPath("truncate", path),
	); err != nil {
		return nil, err
	}
	return &response, nil
}

// Download streams object content by id, bypassing path resolution
func (c *Client) Download(ctx context.Context, id schema.ObjectId, fn func([]byte) error) (*schema.Object, error) {
	u := &readUnmarshaler{fn: fn}
	if err := c.DoWithContext(ctx,
		client.NewRequest(),
		u,
		client.OptPath("download", id.String()),
	); err != nil {
		return nil, err
	}
	return u.object, nil
}
