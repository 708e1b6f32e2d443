package server

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"username-checker/internal/config"
	"username-checker/internal/counter"
	"username-checker/internal/logger"
	"username-checker/internal/metrics"
)

func createTestServer(t *testing.T, mutate ...func(*config.Config)) *Server {
	t.Helper()
	cfg := config.Default()
	for _, fn := range mutate {
		fn(cfg)
	}
	return NewServer(cfg, counter.NewMemoryStore(), metrics.NewMetrics())
}

func do(s *Server, method, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(method, target, nil))
	return w
}

func TestAvailableUsername(t *testing.T) {
	s := createTestServer(t)

	w := do(s, http.MethodGet, "/isUserNameAvailable?userName=trinity")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Equal(t, `{"isAvailable": true, "userName": "trinity"}`, w.Body.String())
}

func TestUnavailableUsername(t *testing.T) {
	s := createTestServer(t)

	w := do(s, http.MethodGet, "/isUserNameAvailable?userName=jmbae")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `{"isAvailable": false, "userName": "jmbae"}`, w.Body.String())
}

func TestForbiddenUsername(t *testing.T) {
	s := createTestServer(t)

	w := do(s, http.MethodGet, "/isUserNameAvailable?userName=admin")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), `"Username is not valid: admin."`)
}

func TestShortUsername(t *testing.T) {
	s := createTestServer(t)

	w := do(s, http.MethodGet, "/isUserNameAvailable?userName=ab")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "text/plain; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Equal(t, "Bad Request: userName은 최소 3자 이상이어야 합니다.", w.Body.String())
}

func TestEmptyUsername(t *testing.T) {
	s := createTestServer(t)

	w := do(s, http.MethodGet, "/isUserNameAvailable?userName=")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Bad Request: userName 이 비어있습니다.", w.Body.String())
}

func TestMaintenanceSequence(t *testing.T) {
	s := createTestServer(t)

	for i, want := range []int{500, 500, 200, 500} {
		w := do(s, http.MethodGet, "/isUserNameAvailable?userName=maintenance")
		assert.Equal(t, want, w.Code, "call %d", i+1)
		if want == http.StatusInternalServerError {
			assert.Equal(t, "120", w.Header().Get("Retry-After"))
		}
	}
}

func TestIllegalResponse(t *testing.T) {
	s := createTestServer(t)

	w := do(s, http.MethodGet, "/isUserNameAvailable?userName=illegalresponse")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `{"isAvailable": false}`, w.Body.String())
}

func TestNotFoundRoutes(t *testing.T) {
	s := createTestServer(t)

	for _, target := range []string{
		"/unknownpath",
		"/",
		"/isUserNameAvailable",
		"/isUserNameAvailable/",
		"/isusernameavailable?userName=neo",
		"/isUserNameAvailable?username=neo",
	} {
		t.Run(target, func(t *testing.T) {
			w := do(s, http.MethodGet, target)
			assert.Equal(t, http.StatusNotFound, w.Code)
			assert.Equal(t, "text/plain; charset=utf-8", w.Header().Get("Content-Type"))
			assert.Equal(t, "Not Found", w.Body.String())
		})
	}
}

func TestRawPathIsCompared(t *testing.T) {
	s := createTestServer(t)

	w := do(s, http.MethodGet, "/isUserName%41vailable?userName=neo")

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Not Found", w.Body.String())
}

func TestLenientQuery(t *testing.T) {
	s := createTestServer(t)

	for target, want := range map[string]string{
		"/isUserNameAvailable?userName=abc;def": `{"isAvailable": true, "userName": "abc;def"}`,
		"/isUserNameAvailable?userName=50%off":  `{"isAvailable": true, "userName": "50%off"}`,
	} {
		t.Run(target, func(t *testing.T) {
			w := do(s, http.MethodGet, target)
			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, want, w.Body.String())
		})
	}
}

func TestMiddlewareRegistration(t *testing.T) {
	log, hook := logtest.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	prev := logger.Logger
	logger.Logger = log
	t.Cleanup(func() { logger.Logger = prev })

	createTestServer(t, func(cfg *config.Config) {
		cfg.RateLimit.Enabled = true
	})

	var names []interface{}
	for _, entry := range hook.AllEntries() {
		if entry.Message == "注册中间件" {
			names = append(names, entry.Data["middleware"])
		}
	}
	assert.Equal(t, []interface{}{"metrics", "logging", "recovery", "rate_limit"}, names)
}

func TestMethodNotAllowed(t *testing.T) {
	s := createTestServer(t)

	w := do(s, http.MethodPost, "/isUserNameAvailable?userName=neo")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)

	w = do(s, http.MethodPost, "/unknownpath")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRateLimitEnabled(t *testing.T) {
	s := createTestServer(t, func(cfg *config.Config) {
		cfg.RateLimit.Enabled = true
		cfg.RateLimit.RequestsPerSecond = 0.001
		cfg.RateLimit.Burst = 2
	})

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, do(s, http.MethodGet, "/isUserNameAvailable?userName=neo").Code)
	}

	w := do(s, http.MethodGet, "/isUserNameAvailable?userName=neo")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
}

func TestRateLimitDisabledByDefault(t *testing.T) {
	s := createTestServer(t)

	for i := 0; i < 50; i++ {
		require.Equal(t, http.StatusOK, do(s, http.MethodGet, "/isUserNameAvailable?userName=neo").Code)
	}
}

func TestServeAndGracefulShutdown(t *testing.T) {
	s := createTestServer(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.Serve(ln)
	}()

	resp, err := http.Get("http://" + addr + "/isUserNameAvailable?userName=maintenance!")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "120", resp.Header.Get("Retry-After"))
	assert.Equal(t, `{"error": "Internal Server Error", "reason": "Temporarily unavailable for maintenance"}`, string(body))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	require.NoError(t, <-serveErr)

	// 端口已释放，可以重新绑定
	again, err := net.Listen("tcp", addr)
	require.NoError(t, err)
	again.Close()

	// 重复关闭不会 panic
	assert.NoError(t, s.Stop(ctx))
}

func TestStartFailsWhenPortTaken(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	port := ln.Addr().(*net.TCPAddr).Port
	s := createTestServer(t, func(cfg *config.Config) {
		cfg.Server.Port = port
	})

	assert.Error(t, s.Start())
}
