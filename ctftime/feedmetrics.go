package ctftime

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// feedWithTelemetry implements the Feed interface with all methods wrapped with
// call count, error count and latency metrics
type feedWithTelemetry struct {
	base    Feed
	calls   *prometheus.CounterVec
	errors  *prometheus.CounterVec
	latency *prometheus.HistogramVec
}

// NewFeedWithTelemetry returns an instance of the Feed decorated with prometheus timing and count metrics
func NewFeedWithTelemetry(base Feed, name string, reg prometheus.Registerer) (f Feed, err error) {
	ft := new(feedWithTelemetry)
	ft.base = base

	labels := prometheus.Labels{"name": name}
	ft.calls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   "ctfbot",
		Subsystem:   "ctftime",
		Name:        "calls_total",
		Help:        "Number of event feed calls by method",
		ConstLabels: labels,
	}, []string{"method"})
	ft.errors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   "ctfbot",
		Subsystem:   "ctftime",
		Name:        "errors_total",
		Help:        "Number of failed event feed calls by method",
		ConstLabels: labels,
	}, []string{"method"})
	ft.latency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   "ctfbot",
		Subsystem:   "ctftime",
		Name:        "call_duration_seconds",
		Help:        "Latency of event feed calls by method",
		ConstLabels: labels,
		Buckets:     prometheus.DefBuckets,
	}, []string{"method"})

	for _, c := range []prometheus.Collector{ft.calls, ft.errors, ft.latency} {
		if err = reg.Register(c); err != nil {
			return nil, err
		}
	}

	return ft, nil
}

func (f *feedWithTelemetry) record(method string, start time.Time, err *error) {
	f.latency.WithLabelValues(method).Observe(time.Since(start).Seconds())
	f.calls.WithLabelValues(method).Inc()
	if *err != nil {
		f.errors.WithLabelValues(method).Inc()
	}
}

// Event implements Feed
func (f *feedWithTelemetry) Event(ctx context.Context, id string) (e Event, err error) {
	defer f.record("Event", time.Now(), &err)
	return f.base.Event(ctx, id)
}

// Upcoming implements Feed
func (f *feedWithTelemetry) Upcoming(ctx context.Context, from time.Time, window time.Duration, limit int) (events []Event, err error) {
	defer f.record("Upcoming", time.Now(), &err)
	return f.base.Upcoming(ctx, from, window, limit)
}

// Image implements Feed
func (f *feedWithTelemetry) Image(ctx context.Context, url string) (dataURI string, err error) {
	defer f.record("Image", time.Now(), &err)
	return f.base.Image(ctx, url)
}
