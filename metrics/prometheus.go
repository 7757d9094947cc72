package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultNamespace prefixes every metric name
const DefaultNamespace = "redis_inmem"

// Prometheus records server events into its own registry. The command
// counters are updated on the hot path; the key count is read on scrape.
type Prometheus struct {
	registry *prometheus.Registry

	commands        *prometheus.CounterVec
	commandDuration *prometheus.HistogramVec
	errors          *prometheus.CounterVec
	connsActive     prometheus.Gauge
	connsTotal      prometheus.Counter
	snapshotKeys    prometheus.Gauge
	snapshotSeconds prometheus.Gauge
}

// NewPrometheus creates a collector registered on a fresh registry.
// An empty namespace selects DefaultNamespace.
func NewPrometheus(namespace string) *Prometheus {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	p := &Prometheus{
		registry: prometheus.NewRegistry(),

		commands: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "commands_total",
				Help:      "Total number of commands processed, partitioned by command name.",
			},
			[]string{"cmd"},
		),
		commandDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "command_duration_seconds",
				Help:      "Command execution latency in seconds, partitioned by command name.",
				Buckets:   []float64{.000001, .000005, .00001, .00005, .0001, .0005, .001, .005, .01, .05, .1},
			},
			[]string{"cmd"},
		),
		errors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total errors, partitioned by type.",
			},
			[]string{"type"},
		),
		connsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_active",
			Help:      "Currently connected clients.",
		}),
		connsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_total",
			Help:      "Total connections accepted since startup.",
		}),
		snapshotKeys: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "snapshot_keys_loaded",
			Help:      "Keys loaded from the startup snapshot.",
		}),
		snapshotSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "snapshot_load_seconds",
			Help:      "Time spent loading the startup snapshot.",
		}),
	}

	p.registry.MustRegister(
		p.commands,
		p.commandDuration,
		p.errors,
		p.connsActive,
		p.connsTotal,
		p.snapshotKeys,
		p.snapshotSeconds,
	)
	return p
}

// Registry returns the registry holding every metric
func (p *Prometheus) Registry() *prometheus.Registry {
	return p.registry
}

// Handler serves the registry in the Prometheus exposition format
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}

// WatchKeys exposes a keys gauge that calls count on every scrape
func (p *Prometheus) WatchKeys(namespace string, count func() int) error {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return p.registry.Register(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "keys",
			Help:      "Number of keys in the store, including expired keys not yet removed.",
		},
		func() float64 { return float64(count()) },
	))
}

// RecordCommandProcessed counts a command and observes its latency
func (p *Prometheus) RecordCommandProcessed(cmd string, duration time.Duration) {
	p.commands.WithLabelValues(cmd).Inc()
	p.commandDuration.WithLabelValues(cmd).Observe(duration.Seconds())
}

// RecordError counts an error of the given type
func (p *Prometheus) RecordError(errorType string) {
	p.errors.WithLabelValues(errorType).Inc()
}

// RecordConnectionOpened counts an accepted connection
func (p *Prometheus) RecordConnectionOpened() {
	p.connsTotal.Inc()
	p.connsActive.Inc()
}

// RecordConnectionClosed marks a connection as gone
func (p *Prometheus) RecordConnectionClosed() {
	p.connsActive.Dec()
}

// RecordSnapshotLoad stores the outcome of the startup snapshot load
func (p *Prometheus) RecordSnapshotLoad(keys int, duration time.Duration) {
	p.snapshotKeys.Set(float64(keys))
	p.snapshotSeconds.Set(duration.Seconds())
}
