// Package httprange parses HTTP Range headers against a known content size
// and streams whole, single-range or multipart/byteranges responses without
// materializing a range in memory.
package httprange

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	// Packages
	httpresponse "github.com/mutablelogic/go-server/pkg/httpresponse"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// Range is one satisfiable byte range with absolute, inclusive bounds
type Range struct {
	Start int64
	End   int64
}

////////////////////////////////////////////////////////////////////////////////
// GLOBALS

const (
	rangeUnit = "bytes"
)

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// Length returns the number of bytes covered by the range
func (r Range) Length() int64 {
	return r.End - r.Start + 1
}

// ContentRange returns the range descriptor, e.g. "bytes 0-99/1000"
func (r Range) ContentRange(size int64) string {
	return fmt.Sprintf("%s %d-%d/%d", rangeUnit, r.Start, r.End, size)
}

// Parse parses a Range header value against the total content size. An empty
// header returns no ranges. Any range falling outside the content, or with
// inverted bounds, makes the whole request not satisfiable: the error is a
// "range not satisfiable" response value and the caller should report the
// total size as "*/size".
func Parse(header string, size int64) ([]Range, error) {
	if header == "" {
		return nil, nil
	}
	spec, found := strings.CutPrefix(header, rangeUnit+"=")
	if !found {
		return nil, notSatisfiable(header, size)
	}

	var ranges []Range
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		first, last, found := strings.Cut(part, "-")
		if !found {
			return nil, notSatisfiable(part, size)
		}

		// Suffix form "-N": the last N bytes; N exceeding the content is
		// not satisfiable
		if first == "" {
			n, err := strconv.ParseInt(last, 10, 64)
			if err != nil || n <= 0 || n > size {
				return nil, notSatisfiable(part, size)
			}
			ranges = append(ranges, Range{Start: size - n, End: size - 1})
			continue
		}

		start, err := strconv.ParseInt(first, 10, 64)
		if err != nil || start < 0 || start >= size {
			return nil, notSatisfiable(part, size)
		}

		// Open-ended form "N-" clamps to the end of the content
		if last == "" {
			ranges = append(ranges, Range{Start: start, End: size - 1})
			continue
		}

		end, err := strconv.ParseInt(last, 10, 64)
		if err != nil || end >= size || start > end {
			return nil, notSatisfiable(part, size)
		}
		ranges = append(ranges, Range{Start: start, End: end})
	}
	if len(ranges) == 0 {
		return nil, notSatisfiable(header, size)
	}

	// Return success
	return ranges, nil
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

func notSatisfiable(spec string, size int64) error {
	return httpresponse.Err(http.StatusRequestedRangeNotSatisfiable).Withf("range %q not satisfiable for %d bytes", spec, size)
}
