package admin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"username-checker/internal/config"
	"username-checker/internal/counter"
	"username-checker/internal/metrics"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func do(s *Server, method, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(method, target, nil))
	return w
}

func newTestServer(store counter.Store) *Server {
	return NewServer(config.Default().Admin, store, metrics.NewMetrics(), "test")
}

func TestHealthCheck(t *testing.T) {
	s := newTestServer(counter.NewMemoryStore())

	w := do(s, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "healthy", response["status"])
	assert.Equal(t, "test", response["version"])
}

type downStore struct {
	counter.MemoryStore
}

func (d *downStore) Ping(ctx context.Context) error {
	return errors.New("connection refused")
}

func (d *downStore) Get(ctx context.Context) (int64, error) {
	return 0, errors.New("connection refused")
}

func TestHealthCheckUnhealthy(t *testing.T) {
	s := newTestServer(&downStore{})

	w := do(s, http.MethodGet, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "unhealthy", response["status"])
	assert.Equal(t, "connection refused", response["counter"])
}

func TestMaintenanceCounter(t *testing.T) {
	store := counter.NewMemoryStore()
	s := newTestServer(store)

	_, err := store.Incr(context.Background())
	require.NoError(t, err)
	_, err = store.Incr(context.Background())
	require.NoError(t, err)

	w := do(s, http.MethodGet, "/admin/maintenance")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"counter": 2}`, w.Body.String())

	w = do(s, http.MethodDelete, "/admin/maintenance")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"counter": 0}`, w.Body.String())

	n, err := store.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestMaintenanceCounterStoreError(t *testing.T) {
	s := newTestServer(&downStore{})

	w := do(s, http.MethodGet, "/admin/maintenance")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	m := metrics.NewMetrics()
	s := NewServer(config.Default().Admin, counter.NewMemoryStore(), m, "test")

	m.RecordRule("servererror", 500, true)

	w := do(s, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `dispatcher_faults_injected_total{rule="servererror",status_code="500"} 1`)
}
