package httpmw

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/keithlinneman/linnemanlabs-folio/internal/log"
)

// errorLog collects Error calls. With returns the same instance.
type errorLog struct {
	log.Logger
	mu      sync.Mutex
	entries []loggedError
}

type loggedError struct {
	msg string
	err error
}

func newErrorLog() *errorLog { return &errorLog{Logger: log.Nop()} }

func (l *errorLog) With(...any) log.Logger { return l }

func (l *errorLog) Error(_ context.Context, err error, msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, loggedError{msg: msg, err: err})
}

func (l *errorLog) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

var errSaveFailed = errors.New("stats.json: disk full")

func TestRecover_Panics(t *testing.T) {
	tests := []struct {
		name    string
		value   any
		wantErr error
		wantMsg string
	}{
		{"string", "something broke", nil, "panic: something broke"},
		{"error", errSaveFailed, errSaveFailed, "panic: stats.json: disk full"},
		{"other", 42, nil, "panic: 42"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			el := newErrorLog()
			panics := 0
			h := Recover(el, func() { panics++ })(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
				panic(tt.value)
			}))

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/api/admin/stats", http.NoBody))

			if rec.Code != http.StatusInternalServerError {
				t.Fatalf("status = %d", rec.Code)
			}
			if got := rec.Body.String(); got != `{"error":"internal server error"}`+"\n" {
				t.Fatalf("body = %q", got)
			}
			if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
				t.Fatalf("Content-Type = %q", ct)
			}
			if panics != 1 {
				t.Fatalf("onPanic calls = %d", panics)
			}
			if el.count() != 1 {
				t.Fatalf("logged %d errors", el.count())
			}
			got := el.entries[0]
			if got.msg != "httpserver panic recovered" {
				t.Fatalf("msg = %q", got.msg)
			}
			if got.err == nil || got.err.Error() != tt.wantMsg {
				t.Fatalf("err = %v, want %q", got.err, tt.wantMsg)
			}
			if tt.wantErr != nil && !errors.Is(got.err, tt.wantErr) {
				t.Fatalf("err %v does not wrap %v", got.err, tt.wantErr)
			}
		})
	}
}

func TestRecover_PassThrough(t *testing.T) {
	el := newErrorLog()
	h := Recover(el, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", `"abc"`)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("created"))
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/admin/upload", http.NoBody))

	if rec.Code != http.StatusCreated || rec.Header().Get("ETag") != `"abc"` || rec.Body.String() != "created" {
		t.Fatalf("response altered: %d %v %q", rec.Code, rec.Header(), rec.Body.String())
	}
	if el.count() != 0 {
		t.Fatal("error logged without a panic")
	}
}

func TestRecover_NilLoggerAndCallback(t *testing.T) {
	h := Recover(nil, nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", http.NoBody))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestRecover_AbortHandlerRepanics(t *testing.T) {
	el := newErrorLog()
	defer func() {
		if v := recover(); v != http.ErrAbortHandler {
			t.Fatalf("recovered %v, want http.ErrAbortHandler", v)
		}
		if el.count() != 0 {
			t.Fatal("aborted request was logged")
		}
	}()
	Recover(el, nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	})).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", http.NoBody))
	t.Fatal("expected panic to propagate")
}
