package ops

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	logx "medbot/pkg/logx"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func newRegistry(t *testing.T) *prometheus.Registry {
	t.Helper()
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "medbot_test_total", Help: "test"})
	reg.MustRegister(c)
	c.Inc()
	return reg
}

func get(t *testing.T, h http.Handler, path, token string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec.Code, rec.Body.String()
}

func TestHandlerRoutes(t *testing.T) {
	t.Parallel()
	ok := pingFunc(func(context.Context) error { return nil })
	s := New(Config{}, ok, newRegistry(t), logx.Nop())
	h := s.Handler(Config{})

	tests := []struct {
		path string
		code int
		body string
	}{
		{"/healthz", http.StatusOK, "ok"},
		{"/readyz", http.StatusOK, "ready"},
		{"/metrics", http.StatusOK, "medbot_test_total 1"},
		{"/debug/pprof/", http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		code, body := get(t, h, tt.path, "")
		if code != tt.code {
			t.Fatalf("%s: code = %d, want %d", tt.path, code, tt.code)
		}
		if tt.body != "" && !strings.Contains(body, tt.body) {
			t.Fatalf("%s: body %q missing %q", tt.path, body, tt.body)
		}
	}
}

func TestReadyzStoreDown(t *testing.T) {
	t.Parallel()
	down := pingFunc(func(context.Context) error { return errors.New("db gone") })
	s := New(Config{}, down, newRegistry(t), logx.Nop())
	if code, _ := get(t, s.Handler(Config{}), "/readyz", ""); code != http.StatusServiceUnavailable {
		t.Fatalf("code = %d, want 503", code)
	}
}

func TestBearerToken(t *testing.T) {
	t.Parallel()
	cfg := Config{Token: "s3cret", Pprof: true}
	s := New(cfg, nil, newRegistry(t), logx.Nop())
	h := s.Handler(cfg)

	if code, _ := get(t, h, "/healthz", ""); code != http.StatusOK {
		t.Fatalf("healthz without token = %d", code)
	}
	for _, path := range []string{"/readyz", "/metrics", "/debug/pprof/"} {
		if code, _ := get(t, h, path, ""); code != http.StatusUnauthorized {
			t.Fatalf("%s without token = %d", path, code)
		}
		if code, _ := get(t, h, path, "wrong"); code != http.StatusUnauthorized {
			t.Fatalf("%s with wrong token = %d", path, code)
		}
		if code, _ := get(t, h, path, "s3cret"); code != http.StatusOK {
			t.Fatalf("%s with token = %d", path, code)
		}
	}
}

func TestStartServesAndStops(t *testing.T) {
	t.Parallel()
	s := New(Config{Enabled: true, Addr: "127.0.0.1:0"}, nil, newRegistry(t), logx.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	var addr string
	deadline := time.Now().Add(2 * time.Second)
	for addr = s.Addr(); addr == ""; addr = s.Addr() {
		if time.Now().After(deadline) {
			t.Fatal("server did not bind")
		}
		time.Sleep(10 * time.Millisecond)
	}

	resp, err := http.Get("http://" + addr + "/healthz")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK || string(body) != "ok" {
		t.Fatalf("healthz = %d %q", resp.StatusCode, body)
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer stopCancel()
	s.Stop(stopCtx)
	if s.Addr() != "" {
		t.Fatal("address still set after Stop")
	}
}

func TestRefusesPublicBindWithoutToken(t *testing.T) {
	t.Parallel()
	s := New(Config{Enabled: true, Addr: "0.0.0.0:0"}, nil, newRegistry(t), logx.Nop())
	if err := s.serveOnce(context.Background()); err != nil {
		t.Fatalf("serveOnce = %v, want nil (gave up)", err)
	}
	if s.Addr() != "" {
		t.Fatal("refused server must not bind")
	}
}
