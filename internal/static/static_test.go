package static

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"
)

func testFS() fstest.MapFS {
	return fstest.MapFS{
		"index.html":                 &fstest.MapFile{Data: []byte("<h1>Admin</h1>")},
		"editor/index.html":          &fstest.MapFile{Data: []byte("<h1>Editor</h1>")},
		"app.js":                     &fstest.MapFile{Data: []byte("console.log('hi')")},
		"1700000000-ab12cd34-x.webp": &fstest.MapFile{Data: []byte("RIFF")},
		"cv.pdf":                     &fstest.MapFile{Data: []byte("%PDF-1.4")},
		".upload-123.tmp":            &fstest.MapFile{Data: []byte("partial")},
		"nested/.git/config":         &fstest.MapFile{Data: []byte("secret")},
		"empty/keep.txt":             &fstest.MapFile{Data: []byte("x")},
	}
}

func TestResolvePath(t *testing.T) {
	fsys := testFS()

	tests := []struct {
		name      string
		path      string
		index     string
		wantFile  string
		wantRedir string
		wantOK    bool
	}{
		{name: "root with index", path: "/", index: "index.html", wantFile: "index.html", wantOK: true},
		{name: "root without index", path: "/", wantOK: false},
		{name: "plain file", path: "/app.js", wantFile: "app.js", wantOK: true},
		{name: "no leading slash", path: "cv.pdf", wantFile: "cv.pdf", wantOK: true},
		{name: "dir with slash", path: "/editor/", index: "index.html", wantFile: "editor/index.html", wantOK: true},
		{name: "dir without slash redirects", path: "/editor", index: "index.html", wantRedir: "/editor/", wantOK: true},
		{name: "dir without index file", path: "/empty/", index: "index.html", wantOK: false},
		{name: "dir is never a file", path: "/empty", wantOK: false},
		{name: "temp file hidden", path: "/.upload-123.tmp", wantOK: false},
		{name: "hidden segment", path: "/nested/.git/config", wantOK: false},
		{name: "dot dot", path: "/../etc/passwd", wantOK: false},
		{name: "encoded backslash", path: "/..\\app.js", wantOK: false},
		{name: "nul byte", path: "/app.js\x00", wantOK: false},
		{name: "missing", path: "/nope.png", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			file, redir, ok := resolvePath(tt.path, tt.index, fsys)
			if ok != tt.wantOK || file != tt.wantFile || redir != tt.wantRedir {
				t.Fatalf("resolvePath(%q) = (%q, %q, %v), want (%q, %q, %v)",
					tt.path, file, redir, ok, tt.wantFile, tt.wantRedir, tt.wantOK)
			}
		})
	}
}

func TestCacheControlForFile(t *testing.T) {
	o := &Options{}
	o.setDefaults()

	tests := map[string]string{
		"index.html": "no-cache",
		"photo.WEBP": "public, max-age=31536000, immutable",
		"app.js":     "public, max-age=31536000, immutable",
		"cv.pdf":     "public, max-age=3600",
		"README":     "no-cache",
	}
	for name, want := range tests {
		if got := cacheControlForFile(name, o); got != want {
			t.Errorf("cacheControlForFile(%q) = %q, want %q", name, got, want)
		}
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Options{}); !errors.Is(err, ErrInvalidOptions) {
		t.Fatalf("nil FS: err = %v, want ErrInvalidOptions", err)
	}
	if _, err := New(Options{FS: testFS(), Index: "/index.html"}); !errors.Is(err, ErrInvalidOptions) {
		t.Fatalf("absolute index: err = %v, want ErrInvalidOptions", err)
	}
}

func newTestHandler(t *testing.T, mount, index string) http.Handler {
	t.Helper()
	h, err := New(Options{FS: testFS(), Mount: mount, Index: index})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return h.Mount()
}

func TestHandler_ServesFiles(t *testing.T) {
	h := newTestHandler(t, "/uploads/", "")

	req := httptest.NewRequest(http.MethodGet, "/uploads/1700000000-ab12cd34-x.webp", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Body.String(); got != "RIFF" {
		t.Fatalf("body = %q", got)
	}
	if got := rec.Header().Get("Cache-Control"); !strings.Contains(got, "immutable") {
		t.Fatalf("Cache-Control = %q, want immutable", got)
	}
	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("X-Content-Type-Options = %q", got)
	}
}

func TestHandler_NoDirectoryListing(t *testing.T) {
	h := newTestHandler(t, "/uploads", "")

	for _, p := range []string{"/uploads/", "/uploads/empty/", "/uploads/.upload-123.tmp"} {
		req := httptest.NewRequest(http.MethodGet, p, nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Errorf("%s: status = %d, want 404", p, rec.Code)
		}
		if got := rec.Header().Get("Cache-Control"); got != "no-store" {
			t.Errorf("%s: Cache-Control = %q, want no-store", p, got)
		}
		if strings.Contains(rec.Body.String(), "keep.txt") {
			t.Errorf("%s: body leaked a directory listing", p)
		}
	}
}

func TestHandler_IndexAndRedirect(t *testing.T) {
	h := newTestHandler(t, "/admin", "index.html")

	req := httptest.NewRequest(http.MethodGet, "/admin/", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Admin") {
		t.Fatalf("GET /admin/ = %d %q", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Cache-Control"); got != "no-cache" {
		t.Fatalf("Cache-Control = %q, want no-cache", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/admin/editor", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusPermanentRedirect {
		t.Fatalf("status = %d, want 308", rec.Code)
	}
	if got := rec.Header().Get("Location"); got != "/admin/editor/" {
		t.Fatalf("Location = %q, want /admin/editor/", got)
	}
}

func TestHandler_MethodNotAllowed(t *testing.T) {
	h := newTestHandler(t, "/uploads", "")

	req := httptest.NewRequest(http.MethodPost, "/uploads/cv.pdf", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
	if got := rec.Header().Get("Allow"); got != "GET, HEAD" {
		t.Fatalf("Allow = %q", got)
	}
}

func TestHandler_Head(t *testing.T) {
	h := newTestHandler(t, "/uploads", "")

	req := httptest.NewRequest(http.MethodHead, "/uploads/cv.pdf", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Fatalf("HEAD body length = %d, want 0", rec.Body.Len())
	}
}
