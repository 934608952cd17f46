package store

import (
	"time"

	// Packages
	conddb "github.com/mutablelogic/go-conddb"
	schema "github.com/mutablelogic/go-conddb/pkg/schema"
	server "github.com/mutablelogic/go-server"
	httpresponse "github.com/mutablelogic/go-server/pkg/httpresponse"
	trace "go.opentelemetry.io/otel/trace"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

type opts struct {
	backends map[int64]conddb.Backend
	logger   server.Logger
	tracer   trace.Tracer
	refresh  time.Duration
	now      func() time.Time
}

// Opt represents a function that modifies the store options
type Opt func(*opts) error

////////////////////////////////////////////////////////////////////////////////
// GLOBALS

const (
	// How often the replication-target list is refreshed from the
	// backend registry
	defaultRefreshInterval = 60 * time.Second
)

////////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

func applyOpts(opt ...Opt) (opts, error) {
	o := opts{
		backends: make(map[int64]conddb.Backend),
		refresh:  defaultRefreshInterval,
		now:      time.Now,
	}
	for _, fn := range opt {
		if err := fn(&o); err != nil {
			return opts{}, err
		}
	}
	return o, nil
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// WithBackend registers a backend under a replica id. Replica id 0 is the
// local backend uploads are streamed to; any other id is a replication
// target.
func WithBackend(replica int64, backend conddb.Backend) Opt {
	return func(o *opts) error {
		if backend == nil {
			return httpresponse.ErrInternalError.With("invalid backend")
		}
		if _, exists := o.backends[replica]; exists {
			return httpresponse.ErrConflict.Withf("duplicate backend for replica %d", replica)
		}
		o.backends[replica] = backend
		return nil
	}
}

// WithLocalBackend registers the backend for replica id 0
func WithLocalBackend(backend conddb.Backend) Opt {
	return WithBackend(schema.LocalReplica, backend)
}

// WithLogger sets the logger for worker failures
func WithLogger(logger server.Logger) Opt {
	return func(o *opts) error {
		o.logger = logger
		return nil
	}
}

// WithTracer sets the OpenTelemetry tracer for the store
func WithTracer(tracer trace.Tracer) Opt {
	return func(o *opts) error {
		o.tracer = tracer
		return nil
	}
}

// WithRefreshInterval overrides how often the replication-target list is
// refreshed
func WithRefreshInterval(interval time.Duration) Opt {
	return func(o *opts) error {
		if interval <= 0 {
			return httpresponse.ErrBadRequest.Withf("invalid refresh interval: %v", interval)
		}
		o.refresh = interval
		return nil
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Opt {
	return func(o *opts) error {
		o.now = now
		return nil
	}
}
