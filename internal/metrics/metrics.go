// Package metrics contains the Prometheus metrics of a WebStats run.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// namespace is the common prefix of the metric names.
const namespace = "webstats"

// Lookup results.
const (
	ResultOK     = "ok"
	ResultFailed = "failed"
)

// Filter names.
const (
	FilterBots     = "bots"
	FilterAcademic = "academic"
)

// Run contains the metrics of a single run on a private registry.
type Run struct {
	registry *prometheus.Registry

	// LinesParsed is the number of parsed log lines.
	LinesParsed prometheus.Counter

	// LinesMalformed is the number of log lines that couldn't be parsed.
	LinesMalformed prometheus.Counter

	// Lookups is the number of live WHOIS lookups by result.
	Lookups *prometheus.CounterVec

	// CacheHits is the number of records enriched from the cache.
	CacheHits prometheus.Counter

	// RecordsFiltered is the number of records removed by filter.
	RecordsFiltered *prometheus.CounterVec

	// Duration is the duration of the run in seconds.
	Duration prometheus.Gauge

	// LastSuccess is the Unix time of the completion of the run, if it has
	// succeeded.
	LastSuccess prometheus.Gauge
}

// New returns new run metrics registered on a new registry.
func New() (m *Run) {
	m = &Run{
		registry: prometheus.NewRegistry(),
		LinesParsed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lines_parsed_total",
			Help:      "Total number of parsed access log lines.",
		}),
		LinesMalformed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lines_malformed_total",
			Help:      "Total number of access log lines that couldn't be parsed.",
		}),
		Lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "whois_lookups_total",
			Help:      "Total number of live WHOIS lookups by result.",
		}, []string{"result"}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "whois_cache_hits_total",
			Help:      "Total number of records enriched from the WHOIS cache.",
		}),
		RecordsFiltered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_filtered_total",
			Help:      "Total number of records removed by filter.",
		}, []string{"filter"}),
		Duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of the run in seconds.",
		}),
		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run.",
		}),
	}

	m.registry.MustRegister(
		m.LinesParsed,
		m.LinesMalformed,
		m.Lookups,
		m.CacheHits,
		m.RecordsFiltered,
		m.Duration,
		m.LastSuccess,
	)

	return m
}

// Registry returns the registry of the metrics.
func (m *Run) Registry() (r *prometheus.Registry) {
	return m.registry
}

// ObserveLookups adds the numbers of successful and failed lookups.
func (m *Run) ObserveLookups(ok, failed int) {
	m.Lookups.WithLabelValues(ResultOK).Add(float64(ok))
	m.Lookups.WithLabelValues(ResultFailed).Add(float64(failed))
}

// ObserveFiltered adds the number of records removed by the named filter.
func (m *Run) ObserveFiltered(filter string, removed int) {
	m.RecordsFiltered.WithLabelValues(filter).Add(float64(removed))
}

// Finish sets the duration of the run started at start and, if succeeded is
// true, the time of the last success to now.
func (m *Run) Finish(start, now time.Time, succeeded bool) {
	m.Duration.Set(now.Sub(start).Seconds())
	if succeeded {
		m.LastSuccess.Set(float64(now.Unix()))
	}
}

// WriteToTextfile writes the metrics to the file at path in the text
// exposition format for the textfile collector of the node exporter.
func (m *Run) WriteToTextfile(path string) (err error) {
	err = prometheus.WriteToTextfile(path, m.registry)
	if err != nil {
		return fmt.Errorf("writing metrics: %w", err)
	}

	return nil
}
