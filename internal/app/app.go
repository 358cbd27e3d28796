// Package app wires a complete Hireline client for one workspace.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"hireline/internal/config"
	"hireline/internal/engine"
	"hireline/internal/events"
	"hireline/internal/kv"
	"hireline/internal/metrics"
	"hireline/internal/session"
	"hireline/internal/store"
	hirelinesdk "hireline/sdk/go"
)

type Options struct {
	// BaseURL overrides every other source of the API origin when set.
	BaseURL string
	Logger  *log.Logger
	// Registerer receives the client metrics. Nil uses a private registry.
	Registerer prometheus.Registerer
	// KV replaces the workspace SQLite session store.
	KV         kv.Store
	HTTPClient *http.Client
}

// App is one client: config, gateway, session, store and engine sharing a lifecycle.
type App struct {
	Workspace string
	Config    *config.Config
	Client    *hirelinesdk.Client
	KV        kv.Store
	Session   *session.Session
	Bus       *events.Bus
	Store     *store.Store
	Engine    engine.Engine
	Metrics   *metrics.Recorder

	closeKV func() error
}

// Open loads workspace config, rehydrates the session and builds the engine.
func Open(ctx context.Context, workspace string, opts Options) (*App, error) {
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	baseURL, err := config.ResolveBaseURL(workspace, opts.BaseURL, cfg)
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	a := &App{Workspace: workspace, Config: cfg, KV: opts.KV, Metrics: metrics.New(opts.Registerer)}
	if a.KV == nil {
		sqliteKV, err := kv.OpenSQLite(ctx, workspace)
		if err != nil {
			return nil, err
		}
		a.KV = sqliteKV
		a.closeKV = sqliteKV.Close
	}

	a.Client = hirelinesdk.New(baseURL)
	a.Client.Timeout = cfg.API.Timeout
	a.Client.HTTPClient = opts.HTTPClient
	a.Client.Observer = func(info hirelinesdk.CallInfo) {
		a.Metrics.Request(info.Method, info.StatusCode, info.Err, info.Duration)
	}

	a.Session = session.New(a.Client, a.KV, session.Options{Logger: logger})
	a.Session.Rehydrate(ctx)

	a.Bus = events.NewBus()
	a.Store = store.New(store.WithBus(a.Bus))
	engOpts := engine.OptionsFromConfig(cfg)
	engOpts.CurrentUser = a.Session.UserID
	engOpts.Logger = logger
	engOpts.Metrics = a.Metrics
	a.Engine = engine.New(a.Client, a.Store, engOpts)
	return a, nil
}

// Sync bulk-loads data for the signed-in user.
func (a *App) Sync(ctx context.Context) error {
	id, err := a.RequireUser()
	if err != nil {
		return err
	}
	return a.Engine.FetchAll(ctx, id)
}

// RequireUser returns the signed-in user's id or session.ErrNotAuthenticated.
func (a *App) RequireUser() (int64, error) {
	id, ok := a.Session.UserID()
	if !ok {
		return 0, fmt.Errorf("%w: run hl login first", session.ErrNotAuthenticated)
	}
	return id, nil
}

func (a *App) Close() error {
	var errs []error
	if a.closeKV != nil {
		errs = append(errs, a.closeKV())
	}
	return errors.Join(errs...)
}
