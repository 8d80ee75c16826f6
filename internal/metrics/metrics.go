package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"storefront/internal/cart"
)

const namespace = "storefront"

// Metrics метрики HTTP и корзины на собственном реестре. Реализует cart.Recorder.
type Metrics struct {
	registry *prometheus.Registry

	Requests  *prometheus.CounterVec
	LatencyMS *prometheus.HistogramVec

	CartMutations       *prometheus.CounterVec
	CartPersistFailures prometheus.Counter
	CartTotal           prometheus.Gauge
	CartQuantity        prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"handler", "status"}),
		LatencyMS: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_ms",
			Help:      "HTTP request latency in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"handler"}),
		CartMutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cart",
			Name:      "mutations_total",
			Help:      "Cart operations by kind and outcome.",
		}, []string{"op", "outcome"}),
		CartPersistFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cart",
			Name:      "persist_failures_total",
			Help:      "Failed writes of the cart state to its storage medium.",
		}),
		CartTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cart",
			Name:      "total",
			Help:      "Cart total after discount at the last mutation.",
		}),
		CartQuantity: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cart",
			Name:      "quantity",
			Help:      "Sum of line item quantities at the last mutation.",
		}),
	}
	m.registry.MustRegister(
		m.Requests, m.LatencyMS,
		m.CartMutations, m.CartPersistFailures, m.CartTotal, m.CartQuantity,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

var _ cart.Recorder = (*Metrics)(nil)

func (m *Metrics) Mutation(op, outcome string) {
	m.CartMutations.WithLabelValues(op, outcome).Inc()
}

func (m *Metrics) PersistFailed() {
	m.CartPersistFailures.Inc()
}

func (m *Metrics) Recomputed(s cart.Snapshot) {
	total, _ := s.Totals.Total.Float64()
	m.CartTotal.Set(total)
	m.CartQuantity.Set(float64(s.TotalQuantity))
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
