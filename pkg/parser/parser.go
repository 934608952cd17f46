// Package parser turns a slash-separated request path and optional headers
// into a structured constraint set. Parse never fails with an error: a
// request that does not match the grammar yields constraints with OK unset,
// and malformed header values are treated as absent.
package parser

import (
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	// Packages
	schema "github.com/mutablelogic/go-conddb/pkg/schema"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

type opt struct {
	browsing bool
	header   http.Header
	now      func() time.Time
}

// Opt represents a function that modifies the parser options
type Opt func(*opt) error

////////////////////////////////////////////////////////////////////////////////
// GLOBALS

const (
	headerIfNoneMatch = "If-None-Match"
	headerIfNotAfter  = schema.HeaderIfNotAfter
)

////////////////////////////////////////////////////////////////////////////////
// OPTIONS

// WithBrowsing allows path-only queries without a start time, enumerates all
// versions rather than only the best match, and enables wildcard paths.
func WithBrowsing() Opt {
	return func(o *opt) error {
		o.browsing = true
		return nil
	}
}

// WithHeader supplies request headers for the conditional-cache validator
// (If-None-Match) and the snapshot cutoff (If-Not-After)
func WithHeader(header http.Header) Opt {
	return func(o *opt) error {
		o.header = header
		return nil
	}
}

// WithClock overrides the time source for default start times
func WithClock(now func() time.Time) Opt {
	return func(o *opt) error {
		o.now = now
		return nil
	}
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// Parse consumes tokens left to right: leading tokens which are neither
// integers nor key=value pairs are path segments. Among the remaining tokens
// the first integer becomes the start time regardless of how many key=value
// tokens precede it, key=value tokens are metadata equality constraints, at
// most one further integer is the end time, and a UUID token constrains the
// object id. Anything else is a parse failure.
func Parse(path string, opts ...Opt) schema.RequestConstraints {
	var constraints schema.RequestConstraints

	// Apply options
	o := opt{now: time.Now}
	for _, fn := range opts {
		if err := fn(&o); err != nil {
			return constraints
		}
	}
	constraints.Latest = !o.browsing

	// Tokenize, dropping empty segments
	var tokens []string
	for _, token := range strings.Split(path, schema.PathSeparator) {
		if token != "" {
			tokens = append(tokens, token)
		}
	}

	// Phase one: path segments
	var segments []string
	i := 0
	for ; i < len(tokens); i++ {
		token := tokens[i]
		if _, err := strconv.ParseInt(token, 10, 64); err == nil {
			break
		}
		if strings.Contains(token, "=") {
			break
		}
		segments = append(segments, token)
	}
	if len(segments) > schema.MaxPathSegments {
		return constraints
	}
	constraints.Path = strings.Join(segments, schema.PathSeparator)

	// Phase two: metadata constraints, start and end times, object id. The
	// first integer is the start time wherever it appears among the
	// constraint tokens, the second is the end time.
	for ; i < len(tokens); i++ {
		token := tokens[i]
		if key, value, found := strings.Cut(token, "="); found {
			key, value = strings.TrimSpace(key), strings.TrimSpace(value)
			if key == "" {
				return constraints
			}
			if constraints.Flags == nil {
				constraints.Flags = make(map[string]string, 1)
			}
			constraints.Flags[key] = value
			continue
		}
		if value, err := strconv.ParseInt(token, 10, 64); err == nil {
			if !constraints.StartTimeSet {
				constraints.StartTime = value
				constraints.EndTime = value + 1
				constraints.StartTimeSet = true
				continue
			}
			// A second end time or an end time after an id constraint is a
			// parse failure
			if constraints.EndTimeSet || constraints.Uuid != nil {
				return constraints
			}
			constraints.EndTime = value
			constraints.EndTimeSet = true
			continue
		}
		if id, err := schema.ParseObjectId(token); err == nil {
			if constraints.Uuid != nil {
				return constraints
			}
			constraints.Uuid = &id
			continue
		}
		return constraints
	}

	// A resolving query needs a path and a start time; browsing queries may
	// omit both
	if !o.browsing {
		if len(segments) == 0 || !constraints.StartTimeSet {
			return constraints
		}
	}

	// Wildcard paths compile to a pattern where '*' and '%' match any run
	// of non-separator characters
	if o.browsing && strings.ContainsAny(constraints.Path, "*%") {
		pattern, err := compileWildcard(constraints.Path)
		if err != nil {
			return constraints
		}
		constraints.Wildcard = true
		constraints.Pattern = pattern
	}

	// Default time window is an open-ended "now" query
	if !constraints.StartTimeSet {
		now := o.now().UnixMilli()
		constraints.StartTime = now
		constraints.EndTime = now + 1
	}

	// Conditional-cache validator and snapshot cutoff; malformed values are
	// treated as absent
	if value := o.header.Get(headerIfNoneMatch); value != "" {
		if id, err := schema.ParseObjectId(value); err == nil {
			constraints.CachedValue = &id
		}
	}
	if value := o.header.Get(headerIfNotAfter); value != "" {
		if notAfter, err := strconv.ParseInt(value, 10, 64); err == nil {
			constraints.NotAfter = notAfter
		}
	}

	// Return success
	constraints.OK = true
	return constraints
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

func compileWildcard(path string) (*regexp.Regexp, error) {
	quoted := regexp.QuoteMeta(path)
	quoted = strings.ReplaceAll(quoted, `\*`, `[^/]*`)
	quoted = strings.ReplaceAll(quoted, `%`, `[^/]*`)
	return regexp.Compile("^" + quoted + "$")
}
