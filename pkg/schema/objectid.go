package schema

import (
	"net"
	"strings"

	// Packages
	uuid "github.com/google/uuid"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// ObjectId is a time-ordered unique object identifier. The textual form
// orders lexically in approximate creation order, so a descending sort on id
// breaks createtime ties deterministically.
type ObjectId = uuid.UUID

////////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

// NewObjectId returns a new time-ordered identifier. The uploader network
// address, when it parses to an IPv4 address, is folded into the trailing
// bytes best-effort. Uniqueness and ordering come from the leading
// millisecond timestamp and monotonic sequence.
func NewObjectId(uploadedFrom string) ObjectId {
	id, err := uuid.NewV7()
	if err != nil {
		// Entropy failure: fall back to a random id, losing time-ordering
		id = uuid.New()
	}
	if host := uploadedFrom; host != "" {
		if h, _, err := net.SplitHostPort(uploadedFrom); err == nil {
			host = h
		}
		if ip := net.ParseIP(host); ip != nil {
			if v4 := ip.To4(); v4 != nil {
				copy(id[12:16], v4)
			}
		}
	}
	return id
}

// ParseObjectId parses an object identifier, stripping surrounding quotes as
// found in ETag-style header values.
func ParseObjectId(value string) (ObjectId, error) {
	return uuid.Parse(strings.Trim(value, `"`))
}

// IsObjectId reports whether the value parses as an object identifier
func IsObjectId(value string) bool {
	_, err := uuid.Parse(value)
	return err == nil
}
