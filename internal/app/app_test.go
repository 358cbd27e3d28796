package app

import (
	"bytes"
	"context"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hireline/internal/config"
	"hireline/internal/domain"
	"hireline/internal/events"
	"hireline/internal/mockapi"
	"hireline/internal/session"
	hirelinesdk "hireline/sdk/go"
)

func TestOpenSignInSyncAndReopen(t *testing.T) {
	api := mockapi.New(mockapi.Config{RequireAuth: true})
	user := api.SeedDemo()
	srv := httptest.NewServer(api)
	defer srv.Close()

	ws := t.TempDir()
	t.Setenv(hirelinesdk.BaseURLEnv, "")
	require.NoError(t, os.WriteFile(config.Path(ws), []byte("sync:\n  reconcile: rollback\n"), 0o644))
	ctx := context.Background()
	logger := log.New(&bytes.Buffer{}, "", 0)

	a, err := Open(ctx, ws, Options{BaseURL: srv.URL, Logger: logger})
	require.NoError(t, err)
	assert.Equal(t, session.StateAnonymous, a.Session.State())
	assert.ErrorIs(t, a.Sync(ctx), session.ErrNotAuthenticated)
	assert.Equal(t, config.ReconcileRollback, a.Engine.Reconcile)
	assert.True(t, a.Engine.IncludeSchedules)

	var seen []string
	a.Bus.Subscribe(func(e events.Event) { seen = append(seen, e.Type) })

	require.NoError(t, a.Session.SignIn(ctx, domain.LoginCredentials{Email: "demo@hireline.dev", Password: "hireline"}))
	require.NoError(t, a.Sync(ctx))
	assert.Len(t, a.Store.Jobs(), 2)
	assert.Len(t, a.Store.Schedules(), 1)
	assert.Equal(t, []string{events.DataLoading, events.DataLoaded}, seen)
	assert.Equal(t, 2.0, a.Metrics.Snapshot()["request{method=GET}{status=2xx}"])
	require.NoError(t, a.Close())

	b, err := Open(ctx, ws, Options{BaseURL: srv.URL, Logger: logger})
	require.NoError(t, err)
	defer b.Close()
	assert.Equal(t, session.StateAuthenticated, b.Session.State(), "profile survives in the workspace session db")
	id, err := b.RequireUser()
	require.NoError(t, err)
	assert.Equal(t, user.ID, id)
	require.NoError(t, b.Sync(ctx), "rehydrated token authorizes the bulk load")
	assert.Equal(t, 2, api.Calls(http.MethodGet, "/api/data/all/"+itoa(user.ID)))

	require.NoError(t, b.Session.SignOut(ctx))
	c, err := Open(ctx, ws, Options{BaseURL: srv.URL, Logger: logger})
	require.NoError(t, err)
	defer c.Close()
	assert.Equal(t, session.StateAnonymous, c.Session.State())
}

func TestOpenRejectsBadConfig(t *testing.T) {
	ws := t.TempDir()
	require.NoError(t, os.WriteFile(config.Path(ws), []byte("sync:\n  reconcile: sometimes\n"), 0o644))
	_, err := Open(context.Background(), ws, Options{})
	assert.ErrorContains(t, err, "reconcile")
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
