package contentstore

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// storeWithTelemetry implements the Store interface with all methods wrapped with
// call count, error count and latency metrics
type storeWithTelemetry struct {
	base    Store
	calls   *prometheus.CounterVec
	errors  *prometheus.CounterVec
	latency *prometheus.HistogramVec
}

// NewStoreWithTelemetry returns an instance of the Store decorated with prometheus timing and count metrics
func NewStoreWithTelemetry(base Store, name string, reg prometheus.Registerer) (s Store, err error) {
	st := new(storeWithTelemetry)
	st.base = base

	labels := prometheus.Labels{"name": name}
	st.calls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   "ctfbot",
		Subsystem:   "contentstore",
		Name:        "calls_total",
		Help:        "Number of content store calls by method",
		ConstLabels: labels,
	}, []string{"method"})
	st.errors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   "ctfbot",
		Subsystem:   "contentstore",
		Name:        "errors_total",
		Help:        "Number of failed content store calls by method",
		ConstLabels: labels,
	}, []string{"method"})
	st.latency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   "ctfbot",
		Subsystem:   "contentstore",
		Name:        "call_duration_seconds",
		Help:        "Latency of content store calls by method",
		ConstLabels: labels,
		Buckets:     prometheus.DefBuckets,
	}, []string{"method"})

	for _, c := range []prometheus.Collector{st.calls, st.errors, st.latency} {
		if err = reg.Register(c); err != nil {
			return nil, err
		}
	}

	return st, nil
}

func (s *storeWithTelemetry) record(method string, start time.Time, err *error) {
	s.latency.WithLabelValues(method).Observe(time.Since(start).Seconds())
	s.calls.WithLabelValues(method).Inc()
	if *err != nil {
		s.errors.WithLabelValues(method).Inc()
	}
}

// EnsureFolder implements Store
func (s *storeWithTelemetry) EnsureFolder(ctx context.Context, path string) (err error) {
	defer s.record("EnsureFolder", time.Now(), &err)
	return s.base.EnsureFolder(ctx, path)
}

// GetFile implements Store. A missing file is not counted as an error
func (s *storeWithTelemetry) GetFile(ctx context.Context, path string) (f File, err error) {
	start := time.Now()
	f, err = s.base.GetFile(ctx, path)

	recorded := err
	if isNotFound(err) {
		recorded = nil
	}
	s.record("GetFile", start, &recorded)

	return f, err
}

// PutFile implements Store
func (s *storeWithTelemetry) PutFile(ctx context.Context, path string, content string, revision string) (err error) {
	defer s.record("PutFile", time.Now(), &err)
	return s.base.PutFile(ctx, path, content, revision)
}
