package client

import (
	"io"
	"net/http"

	// Packages
	client "github.com/mutablelogic/go-client"
	types "github.com/mutablelogic/go-server/pkg/types"
)

///////////////////////////////////////////////////////////////////////////////
// TYPES

// uploadPayload implements client.Payload for POST requests carrying a raw
// object body.
type uploadPayload struct {
	body        io.Reader
	contentType string
}

var _ client.Payload = (*uploadPayload)(nil)

///////////////////////////////////////////////////////////////////////////////
// INTERFACE IMPLEMENTATION

func (p *uploadPayload) Method() string {
	return http.MethodPost
}

func (p *uploadPayload) Accept() string {
	return types.ContentTypeJSON
}

func (p *uploadPayload) Type() string {
	if p.contentType != "" {
		return p.contentType
	}
	return types.ContentTypeBinary
}

func (p *uploadPayload) Read(b []byte) (int, error) {
	return p.body.Read(b)
}
