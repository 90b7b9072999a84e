package ops

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "remindbot/pkg/logx"
)

func get(t *testing.T, h http.Handler, target string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandlerRoutes(t *testing.T) {
	ready := false
	s := New(Config{}, Probes{
		Ready:  func() bool { return ready },
		Status: func() any { return map[string]int{"jobs": 3} },
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("metric 1"))
		}),
	}, logx.Nop())

	h := s.Handler(Config{Metrics: true})

	assert.Equal(t, http.StatusOK, get(t, h, "/healthz").Code)
	assert.Equal(t, http.StatusServiceUnavailable, get(t, h, "/readyz").Code)
	ready = true
	assert.Equal(t, http.StatusOK, get(t, h, "/readyz").Code)

	st := get(t, h, "/status")
	require.Equal(t, http.StatusOK, st.Code)
	assert.JSONEq(t, `{"jobs":3}`, st.Body.String())

	assert.Equal(t, "metric 1", get(t, h, "/metrics").Body.String())
	assert.Equal(t, http.StatusNotFound, get(t, h, "/debug/pprof/").Code, "pprof is opt-in")

	noMetrics := s.Handler(Config{Pprof: true})
	assert.Equal(t, http.StatusNotFound, get(t, noMetrics, "/metrics").Code)
	assert.Equal(t, http.StatusOK, get(t, noMetrics, "/debug/pprof/").Code)
}

func TestHandlerAuth(t *testing.T) {
	s := New(Config{}, Probes{}, logx.Nop())
	h := s.Handler(Config{Token: "s3cret"})

	assert.Equal(t, http.StatusOK, get(t, h, "/healthz").Code, "liveness stays public")

	rec := get(t, h, "/readyz")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))

	assert.Equal(t, http.StatusUnauthorized, get(t, h, "/readyz?token=nope").Code)
	assert.Equal(t, http.StatusOK, get(t, h, "/readyz?token=s3cret").Code)
	assert.Equal(t, http.StatusOK, get(t, h, "/readyz", "Authorization", "Bearer s3cret").Code)
	assert.Equal(t, http.StatusUnauthorized, get(t, h, "/readyz", "Authorization", "Basic s3cret").Code)
}

func TestIsLoopbackAddr(t *testing.T) {
	cases := map[string]bool{
		"127.0.0.1:9090": true,
		"localhost:9090": true,
		"[::1]:9090":     true,
		":9090":          false,
		"0.0.0.0:9090":   false,
		"10.0.0.5:9090":  false,
		"nonsense":       false,
	}
	for addr, want := range cases {
		assert.Equal(t, want, isLoopbackAddr(addr), addr)
	}
}

func TestStartServeStop(t *testing.T) {
	s := New(Config{Enabled: true, Addr: "127.0.0.1:0"}, Probes{}, logx.Nop())
	ctx := context.Background()
	s.Start(ctx)

	require.Eventually(t, func() bool { return s.Addr() != "" }, 2*time.Second, 10*time.Millisecond)

	resp, err := http.Get("http://" + s.Addr() + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, "ok", string(body))

	stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	s.Stop(stopCtx)
	assert.Equal(t, "", s.Addr())

	s.Reconfigure(ctx, Config{Enabled: false})
	assert.False(t, s.Enabled())
}
