package opshttp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/keithlinneman/linnemanlabs-folio/internal/health"
	"github.com/keithlinneman/linnemanlabs-folio/internal/log"
	"github.com/keithlinneman/linnemanlabs-folio/internal/version"
)

func getFreePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp4", ":0")
	if err != nil {
		t.Fatalf("find free port: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return port
}

func serve(t *testing.T, opts *Options, remote, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, http.NoBody)
	req.RemoteAddr = remote
	rec := httptest.NewRecorder()
	Handler(log.Nop(), opts).ServeHTTP(rec, req)
	return rec
}

func TestHandler_HealthAndReady(t *testing.T) {
	opts := &Options{
		Health:    health.Fixed(true, ""),
		Readiness: health.Fixed(false, "draining"),
	}
	if rec := serve(t, opts, "127.0.0.1:1", "/-/healthy"); rec.Code != http.StatusOK {
		t.Fatalf("healthy = %d", rec.Code)
	}
	rec := serve(t, opts, "127.0.0.1:1", "/-/ready")
	if rec.Code != http.StatusServiceUnavailable || !strings.Contains(rec.Body.String(), "draining") {
		t.Fatalf("ready = %d %q", rec.Code, rec.Body.String())
	}
}

func TestHandler_Metrics(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "folio_up 1\n")
	})
	if rec := serve(t, &Options{Metrics: metrics}, "10.0.0.2:1", "/metrics"); rec.Body.String() != "folio_up 1\n" {
		t.Fatalf("metrics body = %q", rec.Body.String())
	}
	if rec := serve(t, &Options{}, "10.0.0.2:1", "/metrics"); rec.Code != http.StatusNotFound {
		t.Fatalf("nil metrics = %d, want 404", rec.Code)
	}
}

func TestHandler_Version(t *testing.T) {
	vi := version.Info{Version: "1.2.0", Commit: "abc"}
	rec := serve(t, &Options{Version: &vi}, "127.0.0.1:1", "/-/version")
	var got version.Info
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Version != "1.2.0" || got.Commit != "abc" {
		t.Fatalf("version = %+v", got)
	}
}

func TestHandler_Pprof(t *testing.T) {
	if rec := serve(t, &Options{EnablePprof: true}, "127.0.0.1:1", "/debug/pprof/"); rec.Code != http.StatusOK {
		t.Fatalf("pprof enabled = %d", rec.Code)
	}
	if rec := serve(t, &Options{}, "127.0.0.1:1", "/debug/pprof/"); rec.Code != http.StatusNotFound {
		t.Fatalf("pprof disabled = %d", rec.Code)
	}
}

func TestHandler_RecoversPanics(t *testing.T) {
	panics := 0
	opts := &Options{
		Health:  health.CheckFunc(func(context.Context) error { panic("boom") }),
		OnPanic: func() { panics++ },
	}
	rec := serve(t, opts, "127.0.0.1:1", "/-/healthy")
	if rec.Code != http.StatusInternalServerError || panics != 1 {
		t.Fatalf("status=%d panics=%d", rec.Code, panics)
	}
}

func TestRequireNonPublicNetwork(t *testing.T) {
	tests := []struct {
		remote string
		want   int
	}{
		{"127.0.0.1:12345", http.StatusOK},
		{"[::1]:12345", http.StatusOK},
		{"10.0.0.1:8080", http.StatusOK},
		{"172.16.0.1:8080", http.StatusOK},
		{"192.168.1.1:8080", http.StatusOK},
		{"169.254.1.1:8080", http.StatusOK},
		{"[::ffff:10.0.0.1]:80", http.StatusOK},
		{"8.8.8.8:12345", http.StatusForbidden},
		{"203.0.113.1:80", http.StatusForbidden},
		{"[::ffff:8.8.8.8]:12345", http.StatusForbidden},
		{"[2001:db8::1]:80", http.StatusForbidden},
		{"not-an-address", http.StatusForbidden},
		{"999.999.999.999:8080", http.StatusForbidden},
		{"", http.StatusForbidden},
	}
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	h := requireNonPublicNetwork(log.Nop(), inner)

	for _, tt := range tests {
		t.Run(tt.remote, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/-/healthy", http.NoBody)
			req.RemoteAddr = tt.remote
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestStart_Lifecycle(t *testing.T) {
	port := getFreePort(t)
	ctx := context.Background()

	stop, err := Start(ctx, log.Nop(), &Options{Port: port, Health: health.Fixed(true, "")})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	url := fmt.Sprintf("http://127.0.0.1:%d/-/healthy", port)
	var resp *http.Response
	for i := 0; i < 50; i++ {
		if resp, err = http.Get(url); err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	// second listener on the same port must fail
	if _, err := Start(ctx, log.Nop(), &Options{Port: port}); err == nil {
		t.Fatal("expected port conflict error")
	}

	if err := stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := stop(ctx); err != nil {
		t.Fatalf("second stop: %v", err)
	}
	if _, err := http.Get(url); err == nil {
		t.Fatal("server still accepting connections after stop")
	}
}
