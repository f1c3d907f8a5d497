package metrics

import (
	"net/http"

	"github.com/chgenberg/bolaxo-sub002/internal/platform/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Manager holds the service's Prometheus metrics on its own registry.
type Manager struct {
	Registry *prometheus.Registry

	NDASubmittedTotal  prometheus.Counter
	NDAApprovedTotal   prometheus.Counter
	NDARejectedTotal   prometheus.Counter
	NDAExpiredTotal    prometheus.Counter
	DealsCreatedTotal  prometheus.Counter
	StageAdvancesTotal prometheus.Counter
	APIErrorsTotal     *prometheus.CounterVec
	APILatency         *prometheus.HistogramVec
}

func NewManager(serviceName string) *Manager {
	registry := prometheus.NewRegistry()

	m := &Manager{
		Registry: registry,
		NDASubmittedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: serviceName,
			Name:      "nda_requests_submitted_total",
			Help:      "Total number of NDA requests submitted.",
		}),
		NDAApprovedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: serviceName,
			Name:      "nda_requests_approved_total",
			Help:      "Total number of NDA requests approved.",
		}),
		NDARejectedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: serviceName,
			Name:      "nda_requests_rejected_total",
			Help:      "Total number of NDA requests rejected.",
		}),
		NDAExpiredTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: serviceName,
			Name:      "nda_requests_expired_total",
			Help:      "Total number of NDA requests flipped to expired by the sweeper.",
		}),
		DealsCreatedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: serviceName,
			Name:      "deals_created_total",
			Help:      "Total number of deals created.",
		}),
		StageAdvancesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: serviceName,
			Name:      "deal_stage_advances_total",
			Help:      "Total number of automatic deal stage advances.",
		}),
		APIErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: serviceName,
			Name:      "api_errors_total",
			Help:      "Total number of API errors by route and kind.",
		}, []string{"route", "kind"}),
		APILatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: serviceName,
			Name:      "api_request_latency_seconds",
			Help:      "Latency of API requests by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}

	registry.MustRegister(
		m.NDASubmittedTotal,
		m.NDAApprovedTotal,
		m.NDARejectedTotal,
		m.NDAExpiredTotal,
		m.DealsCreatedTotal,
		m.StageAdvancesTotal,
		m.APIErrorsTotal,
		m.APILatency,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)

	return m
}

// StartServer exposes /metrics on its own port. Blocks until the server
// exits; run it in a goroutine.
func StartServer(port string, log logger.Logger, registry *prometheus.Registry) error {
	if port == "" {
		log.Info("Metrics server port not configured, server will not start")
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	log.Infof("Prometheus metrics server starting on port %s", port)
	server := &http.Server{Addr: ":" + port, Handler: mux}
	return server.ListenAndServe()
}
