package main

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	// Packages
	pg "github.com/mutablelogic/go-pg"
	backend "github.com/mutablelogic/go-conddb/pkg/backend"
	handler "github.com/mutablelogic/go-conddb/pkg/handler"
	store "github.com/mutablelogic/go-conddb/pkg/store"
	version "github.com/mutablelogic/go-conddb/pkg/version"
	server "github.com/mutablelogic/go-server"
	httprouter "github.com/mutablelogic/go-server/pkg/httprouter"
	httpserver "github.com/mutablelogic/go-server/pkg/httpserver"
	logger "github.com/mutablelogic/go-server/pkg/logger/config"
	otel "go.opentelemetry.io/otel"
	errgroup "golang.org/x/sync/errgroup"
)

///////////////////////////////////////////////////////////////////////////////
// TYPES

type ServerCommands struct {
	Server RunServerCommand `cmd:"" name:"server" help:"Run the conddb server." group:"SERVER"`
}

type RunServerCommand struct {
	Local       string   `name:"local" default:"mem://local" help:"Local backend URL (e.g. file:///var/lib/conddb, mem://local)."`
	Replica     []string `name:"replica" help:"Replication target as {id}={url} (e.g. 1=s3://bucket). May be repeated." optional:""`
	S3Region    string   `name:"s3-region" env:"AWS_REGION" help:"Region for s3:// replication targets." optional:""`
	S3Endpoint  string   `name:"s3-endpoint" env:"S3_ENDPOINT" help:"Endpoint for S3-compatible replication targets." optional:""`
	S3AccessKey string   `name:"s3-access-key" env:"AWS_ACCESS_KEY_ID" help:"Static access key for s3:// replication targets." optional:""`
	S3SecretKey string   `name:"s3-secret-key" env:"AWS_SECRET_ACCESS_KEY" help:"Static secret key for s3:// replication targets." optional:""`
}

///////////////////////////////////////////////////////////////////////////////
// COMMANDS

func (cmd *RunServerCommand) Run(app *Globals) error {
	// Logger
	logconfig := logger.Config{Debug: app.Debug}
	logtask, err := logconfig.New(app.ctx)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	log, ok := logtask.(server.Logger)
	if !ok {
		return fmt.Errorf("invalid logger")
	}

	// Connection pool
	pool, err := pg.NewPool(app.ctx,
		pg.WithHostPort(app.PG.Host, app.PG.Port),
		pg.WithCredentials(app.PG.User, app.PG.Password),
		pg.WithDatabase(app.PG.Database),
	)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	// Tracer
	tracer := otel.Tracer("conddb")

	// Backend options, including AWS configuration for s3:// targets
	backendOpts := []backend.Opt{backend.WithTracer(tracer)}
	if cmd.S3Region != "" || cmd.S3Endpoint != "" || cmd.S3AccessKey != "" {
		cfg, err := backend.NewAWSConfig(app.ctx, cmd.S3Region, cmd.S3Endpoint, cmd.S3AccessKey, cmd.S3SecretKey)
		if err != nil {
			return fmt.Errorf("failed to load AWS configuration: %w", err)
		}
		backendOpts = append(backendOpts, backend.WithAWSConfig(cfg))
	}

	// Backends
	opts := []store.Opt{store.WithLogger(log), store.WithTracer(tracer)}
	local, err := backend.NewBlobBackend(app.ctx, cmd.Local, backendOpts...)
	if err != nil {
		return fmt.Errorf("failed to create local backend: %w", err)
	}
	opts = append(opts, store.WithLocalBackend(local))
	for _, replica := range cmd.Replica {
		id, u, err := parseReplica(replica)
		if err != nil {
			return err
		}
		b, err := backend.NewBlobBackend(app.ctx, u, backendOpts...)
		if err != nil {
			return fmt.Errorf("failed to create backend %q: %w", u, err)
		}
		opts = append(opts, store.WithBackend(id, b))
	}

	// Create the store manager
	manager, err := store.NewManager(app.ctx, pool, opts...)
	if err != nil {
		return fmt.Errorf("failed to create store: %w", err)
	}
	defer manager.Close()

	// Run workers and server together
	var wg errgroup.Group
	wg.Go(func() error {
		return manager.Run(app.ctx)
	})
	wg.Go(func() error {
		return serve(app, log, manager)
	})
	return wg.Wait()
}

///////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

// serve registers HTTP handlers and runs the server until context is done.
func serve(app *Globals, log server.Logger, manager *store.Manager) error {
	// Build middleware
	middleware := []httprouter.HTTPMiddlewareFunc{}
	if mw, ok := log.(server.HTTPMiddleware); ok {
		middleware = append(middleware, mw.WrapFunc)
	}

	// Create the router
	router, err := httprouter.NewRouter(app.ctx, app.HTTP.Prefix, app.HTTP.Origin, "conddb", version.Version(), middleware...)
	if err != nil {
		return fmt.Errorf("failed to create router: %w", err)
	}

	// Register HTTP handlers
	if err := handler.RegisterHandlers(manager, router); err != nil {
		return fmt.Errorf("failed to register handlers: %w", err)
	}

	// Create and run the HTTP server
	srv, err := httpserver.New(app.HTTP.Addr, http.Handler(router), nil)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	log.Printf(app.ctx, "conddb@%s started on %s", version.Version(), app.HTTP.Addr)
	if err := srv.Run(app.ctx); err != nil {
		return err
	}
	log.Printf(context.Background(), "conddb stopped")
	return nil
}

// parseReplica splits a {id}={url} flag value
func parseReplica(value string) (int64, string, error) {
	idstr, u, found := strings.Cut(value, "=")
	if !found {
		return 0, "", fmt.Errorf("invalid replica %q, expected {id}={url}", value)
	}
	id, err := strconv.ParseInt(idstr, 10, 64)
	if err != nil || id <= 0 {
		return 0, "", fmt.Errorf("invalid replica id %q", idstr)
	}
	return id, u, nil
}
