package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// Recorder counts sync activity. A nil *Recorder is valid and records nothing.
type Recorder struct {
	fetches    *prometheus.CounterVec
	mutations  *prometheus.CounterVec
	reconciles *prometheus.CounterVec
	requests   *prometheus.CounterVec
	latency    *prometheus.HistogramVec
}

// New registers the hireline collectors on reg. A nil reg gets a private registry.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	r := &Recorder{
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hireline",
			Name:      "fetch_total",
			Help:      "Bulk data loads by outcome.",
		}, []string{"outcome"}),
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hireline",
			Name:      "mutation_total",
			Help:      "Optimistic status mutations by outcome.",
		}, []string{"outcome"}),
		reconciles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hireline",
			Name:      "reconcile_total",
			Help:      "Reconciliations after failed mutations by strategy.",
		}, []string{"strategy"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hireline",
			Name:      "gateway_requests_total",
			Help:      "Gateway round trips by method and status class.",
		}, []string{"method", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "hireline",
			Name:      "gateway_request_seconds",
			Help:      "Gateway round trip latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}
	reg.MustRegister(r.fetches, r.mutations, r.reconciles, r.requests, r.latency)
	return r
}

// Outcome labels.
const (
	OutcomeOK      = "ok"
	OutcomeFailed  = "failed"
	OutcomeDeduped = "deduped"
)

func (r *Recorder) Fetch(outcome string) {
	if r == nil {
		return
	}
	r.fetches.WithLabelValues(outcome).Inc()
}

func (r *Recorder) Mutation(outcome string) {
	if r == nil {
		return
	}
	r.mutations.WithLabelValues(outcome).Inc()
}

func (r *Recorder) Reconciled(strategy string) {
	if r == nil {
		return
	}
	r.reconciles.WithLabelValues(strategy).Inc()
}

// Request records one gateway round trip. A transport failure is labelled "error".
func (r *Recorder) Request(method string, status int, err error, d time.Duration) {
	if r == nil {
		return
	}
	label := "error"
	if err == nil {
		label = strconv.Itoa(status/100) + "xx"
	}
	r.requests.WithLabelValues(method, label).Inc()
	r.latency.WithLabelValues(method).Observe(d.Seconds())
}

// Snapshot flattens the counters into "name{label}" -> value, for CLI output.
func (r *Recorder) Snapshot() map[string]float64 {
	out := map[string]float64{}
	if r == nil {
		return out
	}
	collect := func(name string, vec *prometheus.CounterVec) {
		ch := make(chan prometheus.Metric)
		go func() {
			vec.Collect(ch)
			close(ch)
		}()
		for m := range ch {
			var pb dto.Metric
			if err := m.Write(&pb); err != nil || pb.Counter == nil {
				continue
			}
			key := name
			for _, lp := range pb.GetLabel() {
				key += "{" + lp.GetName() + "=" + lp.GetValue() + "}"
			}
			out[key] = pb.Counter.GetValue()
		}
	}
	collect("fetch", r.fetches)
	collect("mutation", r.mutations)
	collect("reconcile", r.reconciles)
	collect("request", r.requests)
	return out
}
