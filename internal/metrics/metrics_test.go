package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlerExposesRegisteredCollectors(t *testing.T) {
	m := New("picsellart")
	m.OrdersSettled.WithLabelValues("listing").Inc()
	m.QuotaDenials.WithLabelValues("DeniedQuotaExhausted").Add(2)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.OrdersSettled.WithLabelValues("listing")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.QuotaDenials.WithLabelValues("DeniedQuotaExhausted")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `picsellart_orders_settled_total{kind="listing"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestNewUsesPrivateRegistry(t *testing.T) {
	// two instances must not collide on registration
	assert.NotPanics(t, func() {
		New("a")
		New("a")
	})
}
