package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "telegram_shop"

// Metrics - счетчики оформления заказов и доставки уведомлений.
// Нулевой указатель допустим: все методы тогда ничего не делают
type Metrics struct {
	Checkouts       *prometheus.CounterVec
	Dispatches      *prometheus.CounterVec
	DispatchLatency *prometheus.HistogramVec
	Requests        *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	checkouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "checkout_submissions_total",
		Help:      "Checkout submissions by outcome.",
	}, []string{"outcome"})
	dispatches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notifications_total",
		Help:      "Order notifications by channel and result.",
	}, []string{"channel", "result"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "notification_duration_ms",
		Help:      "Notification send latency in milliseconds.",
		Buckets:   []float64{25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
	}, []string{"channel"})
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests by method and route.",
	}, []string{"method", "route"})

	reg.MustRegister(checkouts, dispatches, latency, requests)
	return &Metrics{Checkouts: checkouts, Dispatches: dispatches, DispatchLatency: latency, Requests: requests}
}

// CheckoutOutcome: "completed", "failed", "invalid", "ignored"
func (m *Metrics) CheckoutOutcome(outcome string) {
	if m == nil {
		return
	}
	m.Checkouts.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveDispatch(channel string, ok bool, d time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.Dispatches.WithLabelValues(channel, result).Inc()
	m.DispatchLatency.WithLabelValues(channel).Observe(float64(d.Milliseconds()))
}

func (m *Metrics) Request(method, route string) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(method, route).Inc()
}

// Handler отдает метрики из указанного реестра
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
