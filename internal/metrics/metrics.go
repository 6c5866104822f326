package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds the service's Prometheus collectors on a private registry.
type Registry struct {
	reg *prometheus.Registry

	ReportDuration   *prometheus.HistogramVec
	ObservationsRead prometheus.Counter
	IndexerRequests  *prometheus.CounterVec
	AlertsSent       prometheus.Counter
	HTTPRequests     *prometheus.CounterVec
}

// New registers all collectors.
func New() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		ReportDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "itnreport_report_duration_seconds",
				Help:    "Time taken to build a report, including upstream fetches",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"report", "result"},
		),
		ObservationsRead: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "itnreport_observations_read_total",
				Help: "Raw observation rows read from the store",
			},
		),
		IndexerRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "itnreport_indexer_requests_total",
				Help: "Entitlement source requests by call and outcome",
			},
			[]string{"call", "result"},
		),
		AlertsSent: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "itnreport_alerts_sent_total",
				Help: "Low-coverage alerts delivered",
			},
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "itnreport_http_requests_total",
				Help: "API requests by route pattern and status code",
			},
			[]string{"route", "status"},
		),
	}

	r.reg.MustRegister(
		r.ReportDuration,
		r.ObservationsRead,
		r.IndexerRequests,
		r.AlertsSent,
		r.HTTPRequests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// ObserveReport records a report build.
func (r *Registry) ObserveReport(name string, elapsed time.Duration, err error) {
	if r == nil {
		return
	}
	r.ReportDuration.WithLabelValues(name, result(err)).Observe(elapsed.Seconds())
}

// ObserveIndexerCall counts an entitlement source call.
func (r *Registry) ObserveIndexerCall(call string, err error) {
	if r == nil {
		return
	}
	r.IndexerRequests.WithLabelValues(call, result(err)).Inc()
}

// AddObservations counts raw rows read for a report.
func (r *Registry) AddObservations(n int) {
	if r == nil {
		return
	}
	r.ObservationsRead.Add(float64(n))
}

// AlertSent counts a delivered alert.
func (r *Registry) AlertSent() {
	if r == nil {
		return
	}
	r.AlertsSent.Inc()
}

// ObserveRequest counts an API request.
func (r *Registry) ObserveRequest(route string, status int) {
	if r == nil {
		return
	}
	r.HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
}

// Handler exposes the registry for scraping.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

// Gatherer exposes the underlying registry, mainly for tests.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
