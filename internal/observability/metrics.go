package observability

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yungbote/neurobridge-cat/internal/platform/logger"
)

const namespace = "catengine"

// Metrics holds the engine's Prometheus collectors. All methods are safe on a
// nil receiver so callers never check whether metrics are enabled.
type Metrics struct {
	registry *prometheus.Registry

	itemsAdministered *prometheus.CounterVec
	stops             *prometheus.CounterVec
	finalSEM          *prometheus.HistogramVec
	ledgerFailures    *prometheus.CounterVec
	assessments       *prometheus.CounterVec
	nodeDuration      *prometheus.HistogramVec
}

// NewMetrics builds an independent set of collectors on a private registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: reg,
		itemsAdministered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_administered_total",
			Help:      "Items administered, by domain and node mode.",
		}, []string{"domain", "mode"}),
		stops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subtest_stops_total",
			Help:      "Finished subtests, by domain and stop reason.",
		}, []string{"domain", "reason"}),
		finalSEM: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "subtest_final_sem",
			Help:      "Standard error of the final theta per subtest.",
			Buckets:   []float64{0.2, 0.25, 0.3, 0.35, 0.4, 0.5, 0.6, 0.8, 1},
		}, []string{"domain"}),
		ledgerFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exposure_ledger_failures_total",
			Help:      "Exposure ledger operations that failed and were skipped.",
		}, []string{"op"}),
		assessments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assessments_total",
			Help:      "Assessment runs, by terminal status.",
		}, []string{"status"}),
		nodeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "node_duration_seconds",
			Help:      "Wall time per plan node.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"domain", "mode"}),
	}
	reg.MustRegister(m.itemsAdministered, m.stops, m.finalSEM, m.ledgerFailures, m.assessments, m.nodeDuration)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) StartServer(ctx context.Context, log *logger.Logger, addr string) {
	if m == nil {
		return
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(shutdownCtx)
		cancel()
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if log != nil {
				log.Error("metrics server failed", "error", err, "addr", addr)
			}
		}
	}()
}

func (m *Metrics) IncItemAdministered(domain, mode string) {
	if m == nil {
		return
	}
	m.itemsAdministered.WithLabelValues(label(domain), label(mode)).Inc()
}

func (m *Metrics) ObserveSubtestStop(domain, reason string, sem float64) {
	if m == nil {
		return
	}
	m.stops.WithLabelValues(label(domain), label(reason)).Inc()
	m.finalSEM.WithLabelValues(label(domain)).Observe(sem)
}

func (m *Metrics) IncLedgerFailure(op string) {
	if m == nil {
		return
	}
	m.ledgerFailures.WithLabelValues(label(op)).Inc()
}

func (m *Metrics) IncAssessment(status string) {
	if m == nil {
		return
	}
	m.assessments.WithLabelValues(label(status)).Inc()
}

func (m *Metrics) ObserveNode(domain, mode string, dur time.Duration) {
	if m == nil {
		return
	}
	m.nodeDuration.WithLabelValues(label(domain), label(mode)).Observe(dur.Seconds())
}

func label(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "unknown"
	}
	return v
}
