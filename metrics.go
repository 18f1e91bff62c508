package pgwire

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds the Prometheus instrumentation a Session, Authenticator
// and Executor report into. One registry per Collector, so tests and
// multiple Sessions in the same process don't collide on global
// registration.
type Collector struct {
	Registry *prometheus.Registry

	connectsTotal    *prometheus.CounterVec
	reconnectsTotal  prometheus.Counter
	authDuration     *prometheus.HistogramVec
	queriesTotal     *prometheus.CounterVec
	queryDuration    prometheus.Histogram
	rowsDecoded      prometheus.Counter
	protocolErrors   *prometheus.CounterVec
	statementsCached prometheus.Gauge
}

// NewCollector creates and registers a fresh set of metrics on their own
// registry. Safe to call more than once (e.g. once per test) since each
// call produces an independent registry.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		Registry: reg,
		connectsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pgwire_connects_total",
			Help: "Number of startup+auth attempts, by outcome.",
		}, []string{"outcome"}),
		reconnectsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pgwire_reconnects_total",
			Help: "Number of transparent reconnects triggered by check().",
		}),
		authDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "pgwire_auth_duration_seconds",
			Help: "Time spent in the authentication loop, by mechanism.",
		}, []string{"mechanism"}),
		queriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pgwire_queries_total",
			Help: "Number of execute() calls, by outcome.",
		}, []string{"outcome"}),
		queryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "pgwire_query_duration_seconds",
			Help: "Time from Bind to terminal ReadyForQuery.",
		}),
		rowsDecoded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pgwire_rows_decoded_total",
			Help: "Number of DataRow messages decoded.",
		}),
		protocolErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pgwire_protocol_errors_total",
			Help: "Protocol-level failures, by kind.",
		}, []string{"kind"}),
		statementsCached: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pgwire_statements_cached",
			Help: "Current size of the prepared-statement cache.",
		}),
	}
	reg.MustRegister(
		c.connectsTotal, c.reconnectsTotal, c.authDuration, c.queriesTotal,
		c.queryDuration, c.rowsDecoded, c.protocolErrors, c.statementsCached,
	)
	return c
}

// noopCollector is used whenever Config.Metrics is nil; every method is a
// harmless no-op, so callers never need to nil-check Config.metrics().
var noopCollector = &Collector{}

func (c *Collector) connect(outcome string) {
	if c == nil || c.connectsTotal == nil {
		return
	}
	c.connectsTotal.WithLabelValues(outcome).Inc()
}

func (c *Collector) reconnect() {
	if c == nil || c.reconnectsTotal == nil {
		return
	}
	c.reconnectsTotal.Inc()
}

func (c *Collector) authTiming(mechanism string, d time.Duration) {
	if c == nil || c.authDuration == nil {
		return
	}
	c.authDuration.WithLabelValues(mechanism).Observe(d.Seconds())
}

func (c *Collector) query(outcome string, d time.Duration) {
	if c == nil || c.queriesTotal == nil {
		return
	}
	c.queriesTotal.WithLabelValues(outcome).Inc()
	c.queryDuration.Observe(d.Seconds())
}

func (c *Collector) rows(n int) {
	if c == nil || c.rowsDecoded == nil {
		return
	}
	c.rowsDecoded.Add(float64(n))
}

func (c *Collector) protocolError(kind string) {
	if c == nil || c.protocolErrors == nil {
		return
	}
	c.protocolErrors.WithLabelValues(kind).Inc()
}

func (c *Collector) cacheSize(n int) {
	if c == nil || c.statementsCached == nil {
		return
	}
	c.statementsCached.Set(float64(n))
}
