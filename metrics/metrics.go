package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "storefront"

type Metrics struct {
	Requests  *prometheus.CounterVec
	LatencyMS *prometheus.HistogramVec

	GatewayOrders     *prometheus.CounterVec
	Verifications     *prometheus.CounterVec
	OrdersRecorded    *prometheus.CounterVec
	PersistenceErrors prometheus.Counter
	TotalsMismatches  prometheus.Counter
	WebhookEvents     *prometheus.CounterVec
	ReconcileOutcomes *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New registers the collectors on reg. Tests pass a fresh prometheus.NewRegistry().
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"route", "method", "status"}),
		LatencyMS: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_ms",
			Help:      "HTTP request latency in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		}, []string{"route"}),
		GatewayOrders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "checkout",
			Name:      "gateway_orders_total",
			Help:      "Gateway order creation attempts by outcome.",
		}, []string{"outcome"}),
		Verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "checkout",
			Name:      "signature_verifications_total",
			Help:      "Payment signature checks by result.",
		}, []string{"result"}),
		OrdersRecorded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "checkout",
			Name:      "orders_recorded_total",
			Help:      "Purchase orders written, by payment method.",
		}, []string{"payment_method"}),
		PersistenceErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "checkout",
			Name:      "persistence_errors_total",
			Help:      "Verified payments whose order could not be written.",
		}),
		TotalsMismatches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "checkout",
			Name:      "totals_mismatch_total",
			Help:      "Orders whose client totals disagree with their line items.",
		}),
		WebhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "events_total",
			Help:      "Gateway webhook deliveries by event and outcome.",
		}, []string{"event", "outcome"}),
		ReconcileOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "events_total",
			Help:      "Reconciliation decisions by resulting status.",
		}, []string{"status"}),
		gatherer: reg,
	}

	reg.MustRegister(
		m.Requests, m.LatencyMS,
		m.GatewayOrders, m.Verifications, m.OrdersRecorded,
		m.PersistenceErrors, m.TotalsMismatches,
		m.WebhookEvents, m.ReconcileOutcomes,
	)
	return m
}

// Handler serves the registry this Metrics was built on.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
