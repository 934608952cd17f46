package schema

import (
	"encoding/json"
	"io"
	"regexp"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// RequestConstraints is the structured form of one inbound request, produced
// by the parser. When OK is false the request did not match the grammar and
// the caller must present a usage message rather than proceed.
type RequestConstraints struct {
	OK           bool              `json:"ok"`
	Path         string            `json:"path,omitempty"`
	StartTime    int64             `json:"start_time,omitempty"`
	EndTime      int64             `json:"end_time,omitempty"`
	StartTimeSet bool              `json:"start_time_set,omitempty"`
	EndTimeSet   bool              `json:"end_time_set,omitempty"`
	Uuid         *ObjectId         `json:"uuid,omitempty"`
	CachedValue  *ObjectId         `json:"cached_value,omitempty"` // client's last-known id (If-None-Match)
	NotAfter     int64             `json:"not_after,omitempty"`    // snapshot cutoff on createtime
	Flags        map[string]string `json:"flags,omitempty"`        // metadata equality constraints
	Latest       bool              `json:"latest,omitempty"`       // best match per path vs every match
	Wildcard     bool              `json:"wildcard,omitempty"`

	// Pattern is the compiled form of a wildcard path, where '*' and '%'
	// match any run of non-separator characters
	Pattern *regexp.Regexp `json:"-"`
}

// CreateObjectRequest creates a new object version under a path
type CreateObjectRequest struct {
	Path         string            `json:"path"`
	Body         io.Reader         `json:"-"`
	ValidFrom    int64             `json:"valid_from"`
	ValidUntil   int64             `json:"valid_until"`
	FileName     string            `json:"filename,omitempty"`
	ContentType  string            `json:"content_type,omitempty"`
	UploadedFrom string            `json:"uploaded_from,omitempty"`
	Meta         map[string]string `json:"meta,omitempty"`
	Replicas     []int64           `json:"replicas,omitempty"` // caller-declared initial replicas; defaults to local
}

// UpdateObjectRequest updates metadata and optionally the validity limit of
// an existing object. An empty metadata value removes the key.
type UpdateObjectRequest struct {
	Meta       map[string]string `json:"meta,omitempty"`
	ValidUntil *int64            `json:"valid_until,omitempty"`
}

////////////////////////////////////////////////////////////////////////////////
// STRINGIFY

func (c RequestConstraints) String() string {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err.Error()
	}
	return string(data)
}

func (r CreateObjectRequest) String() string {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err.Error()
	}
	return string(data)
}

func (r UpdateObjectRequest) String() string {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err.Error()
	}
	return string(data)
}
