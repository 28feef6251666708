package httpmw

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestMaxBody_UnderLimit(t *testing.T) {
	var got string
	h := MaxBody(16)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("read: %v", err)
		}
		got = string(b)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/api/admin/stats", strings.NewReader(`{"a":1}`)))

	if rec.Code != http.StatusOK || got != `{"a":1}` {
		t.Fatalf("status=%d body=%q", rec.Code, got)
	}
}

func TestMaxBody_DeclaredLengthRejected(t *testing.T) {
	called := false
	h := MaxBody(4)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/api/admin/stats", strings.NewReader("0123456789")))

	if called {
		t.Fatal("handler ran for oversized body")
	}
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"error"`) {
		t.Fatalf("body = %q", rec.Body.String())
	}
}

func TestMaxBody_StreamedBodyLimited(t *testing.T) {
	var readErr error
	h := MaxBody(4)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, readErr = io.ReadAll(r.Body)
	}))
	req := httptest.NewRequest(http.MethodPut, "/api/admin/stats", io.NopCloser(strings.NewReader("0123456789")))
	req.ContentLength = -1
	h.ServeHTTP(httptest.NewRecorder(), req)

	var mbe *http.MaxBytesError
	if !errors.As(readErr, &mbe) {
		t.Fatalf("err = %v, want *http.MaxBytesError", readErr)
	}
}

func TestMaxBody_ZeroDisables(t *testing.T) {
	big := strings.Repeat("x", 1<<10)
	var n int
	h := MaxBody(0)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		n = len(b)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/publish", strings.NewReader(big)))
	if rec.Code != http.StatusOK || n != len(big) {
		t.Fatalf("status=%d read=%d", rec.Code, n)
	}
}
