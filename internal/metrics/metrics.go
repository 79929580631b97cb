// Package metrics exposes Prometheus instrumentation for the ledger.
// All recording methods are safe to call on a nil *Registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds all Prometheus metrics for the ledger
type Registry struct {
	reg *prometheus.Registry

	Purchases          *prometheus.CounterVec
	Reports            *prometheus.CounterVec
	UnavailablePrices  prometheus.Counter
	OracleLookups      *prometheus.CounterVec
	OracleLatency      prometheus.Histogram
	MaintenanceRuns    *prometheus.CounterVec
	MigratedLegacyRows prometheus.Counter
}

// NewRegistry creates a registry with every ledger metric registered.
// Each call gets its own prometheus.Registry so tests never collide.
func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),

		Purchases: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stocktrader_purchases_total",
				Help: "Purchases by outcome",
			},
			[]string{"result"},
		),
		Reports: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stocktrader_portfolio_reports_total",
				Help: "Portfolio reports by outcome",
			},
			[]string{"result"},
		),
		UnavailablePrices: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "stocktrader_report_unavailable_prices_total",
				Help: "Report lines that could not be priced",
			},
		),
		OracleLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stocktrader_oracle_lookups_total",
				Help: "Price oracle lookups by source and result",
			},
			[]string{"source", "result"},
		),
		OracleLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "stocktrader_oracle_request_duration_seconds",
				Help:    "Latency of upstream price requests",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
		),
		MaintenanceRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stocktrader_maintenance_runs_total",
				Help: "Scheduled maintenance job runs by job and result",
			},
			[]string{"job", "result"},
		),
		MigratedLegacyRows: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "stocktrader_migrated_legacy_rows_total",
				Help: "Rows copied from a single-tenant ledger at startup",
			},
		),
	}

	r.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.Purchases,
		r.Reports,
		r.UnavailablePrices,
		r.OracleLookups,
		r.OracleLatency,
		r.MaintenanceRuns,
		r.MigratedLegacyRows,
	)

	return r
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Gatherer exposes the underlying registry for tests.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// ObservePurchase records a purchase outcome.
func (r *Registry) ObservePurchase(result string) {
	if r == nil {
		return
	}
	r.Purchases.WithLabelValues(result).Inc()
}

// ObserveReport records a report outcome and how many lines could not be priced.
func (r *Registry) ObserveReport(result string, unavailable int) {
	if r == nil {
		return
	}
	r.Reports.WithLabelValues(result).Inc()
	r.UnavailablePrices.Add(float64(unavailable))
}

// ObserveOracleLookup records where a quote came from and whether it resolved.
func (r *Registry) ObserveOracleLookup(source, result string) {
	if r == nil {
		return
	}
	r.OracleLookups.WithLabelValues(source, result).Inc()
}

// ObserveOracleLatency records an upstream request duration.
func (r *Registry) ObserveOracleLatency(d time.Duration) {
	if r == nil {
		return
	}
	r.OracleLatency.Observe(d.Seconds())
}

// ObserveMaintenance records a scheduled job run.
func (r *Registry) ObserveMaintenance(job string, err error) {
	if r == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.MaintenanceRuns.WithLabelValues(job, result).Inc()
}

// ObserveMigration records rows migrated from a legacy ledger.
func (r *Registry) ObserveMigration(rows int64) {
	if r == nil {
		return
	}
	r.MigratedLegacyRows.Add(float64(rows))
}
