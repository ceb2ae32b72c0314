package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveStatement(t *testing.T) {
	m := New("test", prometheus.NewRegistry())

	m.ObserveStatement("sqlite", "select", time.Millisecond, nil)
	m.ObserveStatement("sqlite", "select", time.Millisecond, nil)
	m.ObserveStatement("sqlite", "insert", time.Millisecond, errors.New("boom"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.statementCounter.WithLabelValues("sqlite", "select", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.statementCounter.WithLabelValues("sqlite", "insert", "error")))
}

func TestSetActiveBackend_Resets(t *testing.T) {
	m := New("test", prometheus.NewRegistry())

	m.SetActiveBackend("postgres")
	m.SetActiveBackend("sqlite")

	assert.Equal(t, 1, testutil.CollectAndCount(m.activeBackend))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.activeBackend.WithLabelValues("sqlite")))
}

func TestMiddleware_UsesRouteTemplate(t *testing.T) {
	m := New("test", prometheus.NewRegistry())

	router := mux.NewRouter()
	router.Use(m.Middleware)
	router.HandleFunc("/api/products/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/products/42", nil))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.requestCounter.WithLabelValues("test", "GET", "/api/products/{id}", "404")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.statusCategoryCount.WithLabelValues("test", "4xx")))
}

func TestStatusCategory(t *testing.T) {
	assert.Equal(t, "2xx", statusCategory(201))
	assert.Equal(t, "3xx", statusCategory(304))
	assert.Equal(t, "4xx", statusCategory(409))
	assert.Equal(t, "5xx", statusCategory(503))
}
