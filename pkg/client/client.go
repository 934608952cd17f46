// Package client provides a typed HTTP client for the conddb API.
package client

import (
	// Packages
	client "github.com/mutablelogic/go-client"
)

///////////////////////////////////////////////////////////////////////////////
// TYPES

// Client wraps the base HTTP client with typed methods for the conddb API.
type Client struct {
	*client.Client
}

///////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

// New creates a client for the conddb API endpoint, e.g.
// "http://localhost:8080/conddb/v1".
func New(url string, opts ...client.ClientOpt) (*Client, error) {
	self := new(Client)
	c, err := client.New(append(opts, client.OptEndpoint(url))...)
	if err != nil {
		return nil, err
	}
	self.Client = c
	return self, nil
}
