// Package metrics expone los contadores Prometheus del servicio en un
// registry propio.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

// Metrics collects settlement and HTTP metrics.
type Metrics struct {
	registry *prometheus.Registry

	SetsCreated     prometheus.Counter
	Settlements     *prometheus.CounterVec
	Resets          prometheus.Counter
	Recalculations  prometheus.Counter
	Faults          *prometheus.CounterVec
	SettledProfit   prometheus.Counter
	CacheRollbacks  prometheus.Counter
	HTTPRequests    *prometheus.CounterVec
	HTTPDuration    *prometheus.HistogramVec
	ExtractRequests *prometheus.CounterVec
}

// New crea las métricas y las registra junto a los collectors de Go y proceso.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		SetsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "surebet_sets_created_total",
			Help: "Bet sets created",
		}),
		Settlements: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "surebet_settlements_total",
				Help: "Sets settled, by outcome of leg A and leg B",
			},
			[]string{"outcome_a", "outcome_b"},
		),
		Resets: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "surebet_resets_total",
			Help: "Sets reset back to pending",
		}),
		Recalculations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "surebet_potential_recalculations_total",
			Help: "Potential profit recalculations after a stake or odd edit",
		}),
		Faults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "surebet_faults_total",
				Help: "Faults by kind (validation, integrity, arithmetic, not_found, internal)",
			},
			[]string{"kind"},
		),
		SettledProfit: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "surebet_settled_profit_abs_total",
			Help: "Sum of |actual profit| of settled sets (approximate, float)",
		}),
		CacheRollbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "surebet_cache_rollbacks_total",
			Help: "Optimistic cache updates rolled back after a failed write",
		}),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "surebet_http_requests_total",
				Help: "HTTP requests by route pattern, method and status",
			},
			[]string{"route", "method", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "surebet_http_request_duration_seconds",
				Help:    "HTTP request latency",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms a ~8s
			},
			[]string{"route"},
		),
		ExtractRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "surebet_extract_requests_total",
				Help: "Bet slip extraction requests by source (text, ocr) and status",
			},
			[]string{"source", "status"},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.SetsCreated,
		m.Settlements,
		m.Resets,
		m.Recalculations,
		m.Faults,
		m.SettledProfit,
		m.CacheRollbacks,
		m.HTTPRequests,
		m.HTTPDuration,
		m.ExtractRequests,
	)
	return m
}

// Registry returns the prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler sirve /metrics desde el registry propio.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// --- Helper methods for recording metrics ---

func (m *Metrics) RecordSettlement(outcomeA, outcomeB string, profit decimal.Decimal) {
	m.Settlements.WithLabelValues(outcomeA, outcomeB).Inc()
	m.SettledProfit.Add(DecimalToFloat64(profit.Abs()))
}

// RecordFault ignora kind vacío (error nil).
func (m *Metrics) RecordFault(kind string) {
	if kind == "" {
		return
	}
	m.Faults.WithLabelValues(kind).Inc()
}

func (m *Metrics) RecordHTTP(route, method string, status int, elapsed time.Duration) {
	m.HTTPRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

func (m *Metrics) RecordExtract(source, status string) {
	m.ExtractRequests.WithLabelValues(source, status).Inc()
}

// DecimalToFloat64 converts decimal.Decimal to float64 for metrics only.
func DecimalToFloat64(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
