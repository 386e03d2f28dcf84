package ctfbot

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Kinds of processed messages
const (
	commandKind = "command"
	hearKind    = "hear"
	usageKind   = "usage"
	ignoredKind = "ignored"
)

// instrumenter holds data for core instrumentation
type instrumenter struct {
	appName       string
	coreMetrics   coreMetrics
	pluginMetrics pluginMetrics
}

// coreMetrics holds core engine metrics
type coreMetrics struct {
	msgsSeen      prometheus.Counter
	msgsProcessed *prometheus.CounterVec
	msgsDropped   prometheus.Counter
	reactionsSeen prometheus.Counter
	panics        prometheus.Counter
}

// pluginMetrics holds metrics by plugin
type pluginMetrics struct {
	processingTimeSecs *prometheus.HistogramVec
	reactionCount      *prometheus.CounterVec
}

// newInstrumenter creates a new core instrumenter and registers its collectors with reg
func newInstrumenter(appName string, reg prometheus.Registerer) (ins *instrumenter, err error) {
	ins = new(instrumenter)
	ins.appName = appName

	labels := prometheus.Labels{"name": appName}
	ins.coreMetrics = coreMetrics{
		msgsSeen: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ctfbot", Name: "messages_seen_total", Help: "Number of messages received from the gateway", ConstLabels: labels,
		}),
		msgsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ctfbot", Name: "messages_processed_total", Help: "Number of processed messages by kind", ConstLabels: labels,
		}, []string{"kind"}),
		msgsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ctfbot", Name: "messages_dropped_total", Help: "Number of messages dropped because their channel backlog was full", ConstLabels: labels,
		}),
		reactionsSeen: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ctfbot", Name: "reactions_seen_total", Help: "Number of reactions received from the gateway", ConstLabels: labels,
		}),
		panics: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ctfbot", Name: "panics_total", Help: "Number of recovered action panics", ConstLabels: labels,
		}),
	}

	ins.pluginMetrics = pluginMetrics{
		processingTimeSecs: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ctfbot", Subsystem: "plugin", Name: "processing_seconds", Help: "Time spent in plugin actions", ConstLabels: labels, Buckets: prometheus.DefBuckets,
		}, []string{"plugin"}),
		reactionCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ctfbot", Subsystem: "plugin", Name: "reactions_total", Help: "Number of reactions handled by plugin", ConstLabels: labels,
		}, []string{"plugin"}),
	}

	collectors := []prometheus.Collector{ins.coreMetrics.msgsSeen, ins.coreMetrics.msgsProcessed, ins.coreMetrics.msgsDropped,
		ins.coreMetrics.reactionsSeen, ins.coreMetrics.panics, ins.pluginMetrics.processingTimeSecs, ins.pluginMetrics.reactionCount}
	for _, c := range collectors {
		if err = reg.Register(c); err != nil {
			return nil, err
		}
	}

	return ins, nil
}

func (ins *instrumenter) observeAction(plugin string, d time.Duration) {
	ins.pluginMetrics.processingTimeSecs.WithLabelValues(plugin).Observe(d.Seconds())
}

func (ins *instrumenter) observeReaction(plugin string, d time.Duration) {
	ins.pluginMetrics.processingTimeSecs.WithLabelValues(plugin).Observe(d.Seconds())
	ins.pluginMetrics.reactionCount.WithLabelValues(plugin).Inc()
}

type timed func()

// measure returns the execution duration of a timed function
func measure(operation timed) (d time.Duration) {
	before := time.Now()

	operation()

	return time.Since(before)
}
