package engine_test

import (
	"bytes"
	"context"
	"errors"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hireline/internal/config"
	"hireline/internal/domain"
	"hireline/internal/engine"
	"hireline/internal/metrics"
	"hireline/internal/mockapi"
	"hireline/internal/store"
	hirelinesdk "hireline/sdk/go"
)

const (
	dataPath      = "/api/data/all/42"
	schedulesPath = "/api/schedules/42"
	statusPath    = "/api/candidates/10/status"
)

type testEnv struct {
	API     *mockapi.Server
	Store   *store.Store
	Engine  engine.Engine
	Metrics *metrics.Recorder
	Logs    *bytes.Buffer
	Ctx     context.Context
}

func newTestEnv(t *testing.T, opts engine.Options) testEnv {
	t.Helper()
	api := mockapi.New(mockapi.Config{})
	api.AddUser(domain.UserProfile{ID: 42, Name: "Rita", Email: "rita@hireline.dev"}, "secret1")
	api.AddJob(domain.JobPosting{ID: 1, Title: "Backend", Description: "Go", Owner: []domain.LinkRef{{ID: 42}}})
	api.AddCandidate(domain.Candidate{ID: 10, Name: "Ana", Score: 88, Jobs: []domain.LinkRef{{ID: 1}}, Status: domain.NewCandidateStatus(domain.StatusScreening)})
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	logs := &bytes.Buffer{}
	rec := metrics.New(nil)
	if opts.CurrentUser == nil {
		opts.CurrentUser = func() (int64, bool) { return 42, true }
	}
	opts.Logger = log.New(logs, "", 0)
	opts.Metrics = rec
	st := store.New()
	eng := engine.New(hirelinesdk.New(srv.URL), st, opts)
	eng.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	return testEnv{API: api, Store: st, Engine: eng, Metrics: rec, Logs: logs, Ctx: context.Background()}
}

func statusOf(t *testing.T, st *store.Store, id int64) domain.StatusValue {
	t.Helper()
	c, ok := st.Candidate(id)
	require.True(t, ok, "candidate %d cached", id)
	return c.Status.Value
}

func TestFetchAllForUser42(t *testing.T) {
	env := newTestEnv(t, engine.Options{})
	require.NoError(t, env.Engine.FetchAll(env.Ctx, 42))

	st := env.Store.Snapshot()
	require.Len(t, st.Jobs, 1)
	assert.Equal(t, int64(1), st.Jobs[0].ID)
	require.Len(t, st.Candidates, 1)
	assert.Equal(t, int64(10), st.Candidates[0].ID)
	assert.Equal(t, domain.CandidateStatus{ID: 0, Value: domain.StatusScreening}, st.Candidates[0].Status)
	assert.False(t, st.IsLoading())
	assert.Empty(t, st.Error)
	assert.Equal(t, store.PhaseLoaded, st.Phase)
	assert.Equal(t, 0, env.API.Calls(http.MethodGet, schedulesPath), "schedules disabled")
}

func TestFetchAllWithSchedules(t *testing.T) {
	env := newTestEnv(t, engine.Options{IncludeSchedules: true})
	start := time.Date(2024, 5, 20, 14, 0, 0, 0, time.UTC)
	env.API.AddSchedule(domain.Schedule{ID: 5, Title: "Entrevista", Start: start, End: start.Add(time.Hour), Job: []domain.LinkRef{{ID: 1}}})

	require.NoError(t, env.Engine.FetchAll(env.Ctx, 42))
	schedules := env.Store.Schedules()
	require.Len(t, schedules, 1)
	assert.True(t, schedules[0].Start.Equal(start))
	assert.Equal(t, 1, env.API.Calls(http.MethodGet, schedulesPath))
}

func TestFetchAllFailureResetsCollections(t *testing.T) {
	env := newTestEnv(t, engine.Options{IncludeSchedules: true})
	require.NoError(t, env.Engine.FetchAll(env.Ctx, 42))
	require.NotEmpty(t, env.Store.Jobs())

	tests := []struct {
		name  string
		setup func()
		check func(t *testing.T, err error)
	}{
		{
			name:  "http 500",
			setup: func() { env.API.FailOnce(http.MethodGet, dataPath, http.StatusInternalServerError, "boom") },
			check: func(t *testing.T, err error) {
				var apiErr *hirelinesdk.APIError
				require.ErrorAs(t, err, &apiErr)
				assert.Equal(t, "boom", apiErr.Message)
			},
		},
		{
			name:  "malformed body",
			setup: func() { env.API.CorruptOnce(http.MethodGet, dataPath, `{"jobs": [`) },
			check: func(t *testing.T, err error) {
				var mErr *hirelinesdk.MalformedResponseError
				require.ErrorAs(t, err, &mErr)
			},
		},
		{
			name: "unknown candidate status",
			setup: func() {
				env.API.CorruptOnce(http.MethodGet, dataPath, `{"jobs":[],"candidates":[{"id":3,"status":"Contratado"}]}`)
			},
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, domain.ErrInvalidStatus)
			},
		},
		{
			name:  "invalid job id",
			setup: func() { env.API.CorruptOnce(http.MethodGet, dataPath, `{"jobs":[{"id":0}],"candidates":[]}`) },
			check: func(t *testing.T, err error) {
				var pErr *domain.PayloadError
				require.ErrorAs(t, err, &pErr)
				assert.Equal(t, "jobs", pErr.Kind)
			},
		},
		{
			name:  "schedules failure",
			setup: func() { env.API.FailOnce(http.MethodGet, schedulesPath, http.StatusBadGateway, "") },
			check: func(t *testing.T, err error) {
				var apiErr *hirelinesdk.APIError
				require.ErrorAs(t, err, &apiErr)
				assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
			},
		},
		{
			name: "schedule ends before it starts",
			setup: func() {
				env.API.CorruptOnce(http.MethodGet, schedulesPath, `[{"id":1,"inicio":"2024-05-20T15:00:00Z","fim":"2024-05-20T14:00:00Z"}]`)
			},
			check: func(t *testing.T, err error) {
				var pErr *domain.PayloadError
				require.ErrorAs(t, err, &pErr)
				assert.Equal(t, "schedules", pErr.Kind)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, env.Engine.FetchAll(env.Ctx, 42))
			tt.setup()
			err := env.Engine.FetchAll(env.Ctx, 42)
			require.Error(t, err)
			tt.check(t, err)

			st := env.Store.Snapshot()
			assert.Empty(t, st.Jobs)
			assert.Empty(t, st.Candidates)
			assert.Empty(t, st.Schedules)
			assert.Equal(t, engine.LoadFailedMessage, st.Error)
			assert.False(t, st.IsLoading())
			assert.Equal(t, store.PhaseFailed, st.Phase)
		})
	}
}

func TestFetchAllTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()
	st := store.New()
	eng := engine.New(hirelinesdk.New(base), st, engine.Options{Logger: log.New(&bytes.Buffer{}, "", 0)})

	err := eng.FetchAll(context.Background(), 42)
	var tErr *hirelinesdk.TransportError
	require.ErrorAs(t, err, &tErr)
	assert.Equal(t, engine.LoadFailedMessage, st.Snapshot().Error)
	assert.False(t, st.Snapshot().IsLoading())
}

func TestFetchAllDedupesConcurrentCalls(t *testing.T) {
	env := newTestEnv(t, engine.Options{})
	gate := env.API.Hold(http.MethodGet, dataPath)

	first := make(chan error, 1)
	go func() { first <- env.Engine.FetchAll(env.Ctx, 42) }()
	select {
	case <-gate.Entered():
	case <-time.After(5 * time.Second):
		t.Fatal("first fetch never reached the server")
	}
	assert.True(t, env.Store.Snapshot().IsLoading())

	for i := 0; i < 5; i++ {
		assert.ErrorIs(t, env.Engine.FetchAll(env.Ctx, 42), engine.ErrFetchInFlight)
	}
	gate.Release()
	require.NoError(t, <-first)

	assert.Equal(t, 1, env.API.Calls(http.MethodGet, dataPath))
	assert.Equal(t, 5.0, env.Metrics.Snapshot()["fetch{outcome=deduped}"])
	assert.Equal(t, 1.0, env.Metrics.Snapshot()["fetch{outcome=ok}"])
}

func TestSetCandidateStatusIsVisibleBeforeResponse(t *testing.T) {
	env := newTestEnv(t, engine.Options{})
	require.NoError(t, env.Engine.FetchAll(env.Ctx, 42))
	gate := env.API.Hold(http.MethodPatch, statusPath)

	type result struct {
		m   engine.Mutation
		err error
	}
	done := make(chan result, 1)
	go func() {
		m, err := env.Engine.SetCandidateStatus(env.Ctx, 10, domain.StatusInterview)
		done <- result{m, err}
	}()
	select {
	case <-gate.Entered():
	case <-time.After(5 * time.Second):
		t.Fatal("patch never reached the server")
	}
	assert.Equal(t, domain.StatusInterview, statusOf(t, env.Store, 10), "optimistic value visible while the patch is pending")

	gate.Release()
	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, engine.MutationCommitted, res.m.State)
	assert.True(t, res.m.Applied)
	assert.Equal(t, domain.StatusScreening, res.m.From.Value)
	assert.NotEqual(t, uuid.Nil, res.m.ID)
	assert.Equal(t, domain.StatusInterview, statusOf(t, env.Store, 10))

	server, _ := env.API.Candidate(10)
	assert.Equal(t, domain.StatusInterview, server.Status.Value)
}

func TestFailedStatusResyncsToServerTruth(t *testing.T) {
	env := newTestEnv(t, engine.Options{Reconcile: config.ReconcileResync})
	require.NoError(t, env.Engine.FetchAll(env.Ctx, 42))
	env.API.FailOnce(http.MethodPatch, statusPath, http.StatusInternalServerError, "db down")

	m, err := env.Engine.SetCandidateStatus(env.Ctx, 10, domain.StatusInterview)
	var mErr *engine.MutationError
	require.ErrorAs(t, err, &mErr)
	assert.Equal(t, config.ReconcileResync, mErr.Strategy)
	assert.NoError(t, mErr.ReconcileErr)
	var apiErr *hirelinesdk.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "db down", apiErr.Message)

	assert.Equal(t, engine.MutationFailed, m.State)
	assert.Equal(t, 2, env.API.Calls(http.MethodGet, dataPath), "a bulk fetch was triggered")
	assert.Equal(t, domain.StatusScreening, statusOf(t, env.Store, 10), "server truth, not the optimistic guess")
	assert.False(t, env.Store.Snapshot().IsLoading())
	assert.Contains(t, env.Logs.String(), "mutation "+m.ID.String())
}

func TestCancelledStatusStillReconciles(t *testing.T) {
	env := newTestEnv(t, engine.Options{Reconcile: config.ReconcileResync})
	require.NoError(t, env.Engine.FetchAll(env.Ctx, 42))
	gate := env.API.Hold(http.MethodPatch, statusPath)
	defer gate.Release()

	ctx, cancel := context.WithCancel(env.Ctx)
	done := make(chan error, 1)
	go func() {
		_, err := env.Engine.SetCandidateStatus(ctx, 10, domain.StatusApproved)
		done <- err
	}()
	<-gate.Entered()
	cancel()
	err := <-done

	var mErr *engine.MutationError
	require.ErrorAs(t, err, &mErr)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NoError(t, mErr.ReconcileErr, "resync runs detached from the cancelled context")
	assert.Equal(t, domain.StatusScreening, statusOf(t, env.Store, 10))
	assert.Equal(t, 2, env.API.Calls(http.MethodGet, dataPath))
}

func TestFailedStatusRollsBack(t *testing.T) {
	env := newTestEnv(t, engine.Options{Reconcile: config.ReconcileRollback})
	require.NoError(t, env.Engine.FetchAll(env.Ctx, 42))
	env.API.FailOnce(http.MethodPatch, statusPath, http.StatusInternalServerError, "")

	m, err := env.Engine.SetCandidateStatus(env.Ctx, 10, domain.StatusRejected)
	var mErr *engine.MutationError
	require.ErrorAs(t, err, &mErr)
	assert.Equal(t, config.ReconcileRollback, mErr.Strategy)
	assert.Equal(t, config.ReconcileRollback, m.Reconciliation)
	assert.Equal(t, domain.StatusScreening, statusOf(t, env.Store, 10))
	assert.Equal(t, 1, env.API.Calls(http.MethodGet, dataPath), "rollback does not refetch")
	assert.Equal(t, 1.0, env.Metrics.Snapshot()["reconcile{strategy=rollback}"])
}

func TestResyncWithoutUserFallsBackToRollback(t *testing.T) {
	env := newTestEnv(t, engine.Options{
		Reconcile:   config.ReconcileResync,
		CurrentUser: func() (int64, bool) { return 0, false },
	})
	require.NoError(t, env.Engine.FetchAll(env.Ctx, 42))
	env.API.CorruptOnce(http.MethodPatch, statusPath, `{"id":0}`)

	_, err := env.Engine.SetCandidateStatus(env.Ctx, 10, domain.StatusApproved)
	var mErr *engine.MutationError
	require.ErrorAs(t, err, &mErr)
	assert.Equal(t, config.ReconcileRollback, mErr.Strategy)
	var malformed *hirelinesdk.MalformedResponseError
	assert.ErrorAs(t, err, &malformed)
	assert.Equal(t, domain.StatusScreening, statusOf(t, env.Store, 10))
}

func TestSetCandidateStatusUncachedCandidate(t *testing.T) {
	env := newTestEnv(t, engine.Options{})
	before := env.Store.Candidates()

	m, err := env.Engine.SetCandidateStatus(env.Ctx, 10, domain.StatusApproved)
	require.NoError(t, err)
	assert.False(t, m.Applied)
	assert.Len(t, env.Store.Candidates(), len(before))
	assert.Equal(t, 1, env.API.Calls(http.MethodPatch, statusPath))

	_, err = env.Engine.SetCandidateStatus(env.Ctx, 10, domain.StatusValue("Contratado"))
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)
	assert.Equal(t, 1, env.API.Calls(http.MethodPatch, statusPath))
}

func TestCreateJob(t *testing.T) {
	env := newTestEnv(t, engine.Options{})
	require.NoError(t, env.Engine.FetchAll(env.Ctx, 42))

	job, err := env.Engine.CreateJob(env.Ctx, 42, domain.JobInput{Title: "Data", Description: "ETL"})
	require.NoError(t, err)
	jobs := env.Store.Jobs()
	require.Len(t, jobs, 2)
	assert.Equal(t, job.ID, jobs[0].ID, "new job first")
	assert.Equal(t, []domain.LinkRef{{ID: 42}}, job.Owner)

	_, err = env.Engine.CreateJob(env.Ctx, 0, domain.JobInput{Title: "x", Description: "y"})
	assert.ErrorIs(t, err, engine.ErrNoOwner)

	_, err = env.Engine.CreateJob(env.Ctx, 42, domain.JobInput{Description: "no title"})
	require.Error(t, err)
	assert.Equal(t, 1, env.API.Calls(http.MethodPost, "/api/jobs"), "invalid input never reaches the server")

	env.API.FailOnce(http.MethodPost, "/api/jobs", http.StatusInternalServerError, "")
	_, err = env.Engine.CreateJob(env.Ctx, 42, domain.JobInput{Title: "x", Description: "y"})
	var apiErr *hirelinesdk.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, engine.CreateJobFailedMessage, apiErr.Message)
	assert.Len(t, env.Store.Jobs(), 2)
}

func TestUpdateJob(t *testing.T) {
	env := newTestEnv(t, engine.Options{})
	require.NoError(t, env.Engine.FetchAll(env.Ctx, 42))

	job, err := env.Engine.UpdateJob(env.Ctx, 1, domain.JobInput{Title: "Backend Sr", Description: "Go"})
	require.NoError(t, err)
	assert.Equal(t, "Backend Sr", job.Title)
	cached, _ := env.Store.Job(1)
	assert.Equal(t, "Backend Sr", cached.Title)

	env.API.CorruptOnce(http.MethodPatch, "/api/jobs/1", "")
	job, err = env.Engine.UpdateJob(env.Ctx, 1, domain.JobInput{Title: "Staff", Description: "Go", Address: "Remoto"})
	require.NoError(t, err)
	assert.Equal(t, "Staff", job.Title)
	assert.Equal(t, []domain.LinkRef{{ID: 42}}, job.Owner, "empty body merges into the cached job")
	cached, _ = env.Store.Job(1)
	assert.Equal(t, "Remoto", cached.Address)

	_, err = env.Engine.UpdateJob(env.Ctx, 999, domain.JobInput{Title: "x", Description: "y"})
	var apiErr *hirelinesdk.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "Vaga não encontrada.", apiErr.Message)
}

func TestDeleteJob(t *testing.T) {
	env := newTestEnv(t, engine.Options{})
	require.NoError(t, env.Engine.FetchAll(env.Ctx, 42))

	env.API.FailOnce(http.MethodDelete, "/api/jobs/1", http.StatusForbidden, "")
	err := env.Engine.DeleteJob(env.Ctx, 1)
	var apiErr *hirelinesdk.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, engine.DeleteJobFailedMessage, apiErr.Message)
	assert.Len(t, env.Store.Jobs(), 1, "failed delete keeps the job")

	require.NoError(t, env.Engine.DeleteJob(env.Ctx, 1))
	assert.Empty(t, env.Store.Jobs())
	_, ok := env.API.Job(1)
	assert.False(t, ok)
}

func TestMutationErrorMessage(t *testing.T) {
	err := &engine.MutationError{
		Mutation:     engine.Mutation{CandidateID: 10, To: domain.StatusApproved},
		Strategy:     config.ReconcileResync,
		Err:          errors.New("boom"),
		ReconcileErr: errors.New("offline"),
	}
	assert.Equal(t, "set candidate 10 status to Aprovado: boom (reconciled by resync); reconcile: offline", err.Error())
}
