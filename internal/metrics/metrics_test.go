package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorderCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)
	r.Fetch(OutcomeOK)
	r.Fetch(OutcomeOK)
	r.Fetch(OutcomeDeduped)
	r.Mutation(OutcomeFailed)
	r.Reconciled("resync")
	r.Request("GET", 200, nil, 5*time.Millisecond)
	r.Request("PATCH", 500, nil, time.Millisecond)
	r.Request("PATCH", 0, errors.New("dial"), time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.fetches.WithLabelValues(OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.fetches.WithLabelValues(OutcomeDeduped)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.requests.WithLabelValues("PATCH", "5xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.requests.WithLabelValues("PATCH", "error")))

	snap := r.Snapshot()
	assert.Equal(t, 2.0, snap["fetch{outcome=ok}"])
	assert.Equal(t, 1.0, snap["mutation{outcome=failed}"])
	assert.Equal(t, 1.0, snap["reconcile{strategy=resync}"])
	assert.Equal(t, 1.0, snap["request{method=GET}{status=2xx}"])
}

func TestNilRecorderIsNoop(t *testing.T) {
	var r *Recorder
	r.Fetch(OutcomeOK)
	r.Mutation(OutcomeOK)
	r.Reconciled("rollback")
	r.Request("GET", 200, nil, 0)
	assert.Empty(t, r.Snapshot())
}

func TestNewWithoutRegistry(t *testing.T) {
	a := New(nil)
	b := New(nil)
	a.Fetch(OutcomeOK)
	assert.Equal(t, 0.0, testutil.ToFloat64(b.fetches.WithLabelValues(OutcomeOK)))
}
