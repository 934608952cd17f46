package backend

import (
	"fmt"
	"net/url"

	// Packages
	aws "github.com/aws/aws-sdk-go-v2/aws"
	trace "go.opentelemetry.io/otel/trace"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

type opt struct {
	url       *url.URL
	awsConfig *aws.Config
	tracer    trace.Tracer
}

// Opt represents a function that modifies the backend options
type Opt func(*opt) error

////////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

func apply(url *url.URL, opts ...Opt) (*opt, error) {
	o := opt{url: url}
	for _, fn := range opts {
		if err := fn(&o); err != nil {
			return nil, err
		}
	}
	return &o, nil
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// WithEndpoint sets the S3 endpoint for S3-compatible services.
// For http:// endpoints, HTTPS is automatically disabled.
func WithEndpoint(endpoint string) Opt {
	return func(o *opt) error {
		if endpoint, err := url.Parse(endpoint); err != nil {
			return err
		} else if endpoint.Scheme != "http" && endpoint.Scheme != "https" {
			return fmt.Errorf("endpoint must be http:// or https://, got %s://", endpoint.Scheme)
		} else {
			o.set("endpoint", endpoint.String())
			o.set("s3ForcePathStyle", "true")
			if endpoint.Scheme == "http" {
				o.set("disable_https", "true")
			}
		}
		return nil
	}
}

// WithAnonymous forces use of anonymous credentials, for S3-compatible
// services that don't require authentication.
func WithAnonymous() Opt {
	return func(o *opt) error {
		o.set("anonymous", "true")
		return nil
	}
}

// WithCreateDir sets create_dir=true for file:// URLs to create the
// directory if it doesn't exist
func WithCreateDir() Opt {
	return func(o *opt) error {
		o.set("create_dir", "true")
		return nil
	}
}

// WithTracer sets the OpenTelemetry tracer for the backend
func WithTracer(tracer trace.Tracer) Opt {
	return func(o *opt) error {
		o.tracer = tracer
		return nil
	}
}

// WithAWSConfig provides an AWS SDK v2 Config directly. When provided for
// s3:// URLs, this config is used instead of the URL-based configuration.
func WithAWSConfig(cfg aws.Config) Opt {
	return func(o *opt) error {
		o.awsConfig = &cfg
		return nil
	}
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

func (o *opt) set(key, value string) {
	if o.url == nil {
		return
	}
	q := o.url.Query()
	if value == "" {
		q.Del(key)
	} else {
		q.Set(key, value)
	}
	o.url.RawQuery = q.Encode()
}
