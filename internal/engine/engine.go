package engine

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"hireline/internal/config"
	"hireline/internal/metrics"
	"hireline/internal/store"
	hirelinesdk "hireline/sdk/go"
)

// Gateway is the remote API transport. Non-2xx responses are not errors.
type Gateway interface {
	Get(ctx context.Context, path string) (*http.Response, error)
	Post(ctx context.Context, path string, body any) (*http.Response, error)
	Patch(ctx context.Context, path string, body any) (*http.Response, error)
	Delete(ctx context.Context, path string) (*http.Response, error)
}

// Engine mediates every read and write between the store and the remote API.
type Engine struct {
	Gateway Gateway
	Store   *store.Store
	// Reconcile is config.ReconcileResync or config.ReconcileRollback.
	Reconcile        string
	IncludeSchedules bool
	// CurrentUser names the user a resync reloads for.
	CurrentUser func() (int64, bool)
	Logger      *log.Logger
	Metrics     *metrics.Recorder
	Now         func() time.Time
}

type Options struct {
	Reconcile        string
	IncludeSchedules bool
	CurrentUser      func() (int64, bool)
	Logger           *log.Logger
	Metrics          *metrics.Recorder
}

// OptionsFromConfig maps hireline.yml sync settings onto engine options.
func OptionsFromConfig(cfg *config.Config) Options {
	if cfg == nil {
		cfg = config.Default()
	}
	return Options{Reconcile: cfg.Sync.Reconcile, IncludeSchedules: cfg.IncludeSchedules()}
}

func New(gw Gateway, st *store.Store, opts Options) Engine {
	if opts.Reconcile == "" {
		opts.Reconcile = config.ReconcileResync
	}
	return Engine{
		Gateway:          gw,
		Store:            st,
		Reconcile:        opts.Reconcile,
		IncludeSchedules: opts.IncludeSchedules,
		CurrentUser:      opts.CurrentUser,
		Logger:           opts.Logger,
		Metrics:          opts.Metrics,
		Now:              time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) logger() *log.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return log.Default()
}

func (e Engine) currentUser() (int64, bool) {
	if e.CurrentUser == nil {
		return 0, false
	}
	return e.CurrentUser()
}

// failure turns a non-2xx response into an *hirelinesdk.APIError, using def
// when the server gave no reason.
func failure(resp *http.Response, def string) error {
	err := hirelinesdk.CheckResponse(resp)
	var apiErr *hirelinesdk.APIError
	if errors.As(err, &apiErr) && apiErr.Message == "" {
		apiErr.Message = def
	}
	return err
}
