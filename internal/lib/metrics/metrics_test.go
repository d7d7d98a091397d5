package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/linemk/telegram-shop/internal/lib/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	m.CheckoutOutcome("completed")
	m.CheckoutOutcome("completed")
	m.ObserveDispatch("merchant", true, 120*time.Millisecond)
	m.ObserveDispatch("customer", false, time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Checkouts.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Dispatches.WithLabelValues("merchant", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Dispatches.WithLabelValues("customer", "failed")))

	rr := httptest.NewRecorder()
	metrics.Handler(reg).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.True(t, strings.Contains(rr.Body.String(), "telegram_shop_checkout_submissions_total"))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *metrics.Metrics
	assert.NotPanics(t, func() {
		m.CheckoutOutcome("failed")
		m.ObserveDispatch("merchant", false, 0)
		m.Request("GET", "/api/cart")
	})
}
