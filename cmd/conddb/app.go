package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	// Packages
	kong "github.com/alecthomas/kong"
	client "github.com/mutablelogic/go-client"
	httpclient "github.com/mutablelogic/go-conddb/pkg/client"
	types "github.com/mutablelogic/go-server/pkg/types"
)

///////////////////////////////////////////////////////////////////////////////
// TYPES

type Globals struct {
	Debug bool `help:"Enable debug output"`

	HTTP struct {
		Addr    string        `default:"localhost:8080" help:"HTTP listen address"`
		Prefix  string        `default:"/conddb/v1" help:"API path prefix"`
		Origin  string        `default:"*" help:"CORS origin"`
		Timeout time.Duration `default:"30s" help:"Client request timeout"`
	} `embed:"" prefix:"http."`

	PG struct {
		Host     string `default:"localhost" env:"PGHOST" help:"PostgreSQL host"`
		Port     uint16 `default:"5432" env:"PGPORT" help:"PostgreSQL port"`
		Database string `default:"conddb" env:"PGDATABASE" help:"PostgreSQL database"`
		User     string `default:"postgres" env:"PGUSER" help:"PostgreSQL user"`
		Password string `env:"PGPASSWORD" help:"PostgreSQL password"`
	} `embed:"" prefix:"pg."`

	vars   kong.Vars `kong:"-"` // Variables for kong
	ctx    context.Context
	cancel context.CancelFunc
}

///////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

func NewApp(app Globals, vars kong.Vars) *Globals {
	// Set the vars
	app.vars = vars

	// Create the context
	// This context is cancelled when the process receives a SIGINT or SIGTERM
	app.ctx, app.cancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	// Return the app
	return &app
}

func (app *Globals) Close() error {
	app.cancel()
	return nil
}

///////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

func (app *Globals) Context() context.Context {
	return app.ctx
}

// Client builds an API client from the global HTTP flags.
func (app *Globals) Client() (*httpclient.Client, error) {
	endpoint, err := app.clientEndpoint()
	if err != nil {
		return nil, err
	}
	opts := []client.ClientOpt{}
	if app.Debug {
		opts = append(opts, client.OptTrace(os.Stderr, false))
	}
	if app.HTTP.Timeout > 0 {
		opts = append(opts, client.OptTimeout(app.HTTP.Timeout))
	}
	return httpclient.New(endpoint, opts...)
}

///////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

func (app *Globals) clientEndpoint() (string, error) {
	scheme := "http"
	host, port, err := net.SplitHostPort(app.HTTP.Addr)
	if err != nil {
		return "", err
	}
	if host == "" {
		host = "localhost"
	}
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	portn, err := strconv.ParseUint(port, 10, 16)
	if err != nil {
		return "", err
	}
	if portn == 443 {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s:%v%s", scheme, host, portn, types.NormalisePath(app.HTTP.Prefix)), nil
}
