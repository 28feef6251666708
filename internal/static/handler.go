package static

import (
	"net/http"
	"strings"
)

// Handler serves regular files from a directory tree. It never lists
// directories and never serves dot-files.
type Handler struct {
	opts Options
}

func New(opts Options) (*Handler, error) {
	opts.setDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}
	opts.Mount = strings.TrimSuffix(opts.Mount, "/")
	return &Handler{opts: opts}, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		writeStatus(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	file, redirectTo, found := resolvePath(r.URL.Path, h.opts.Index, h.opts.FS)
	if redirectTo != "" {
		http.Redirect(w, r, h.opts.Mount+redirectTo, http.StatusPermanentRedirect)
		return
	}
	if !found {
		writeStatus(w, http.StatusNotFound, "not found")
		return
	}

	if cc := cacheControlForFile(file, &h.opts); cc != "" {
		w.Header().Set("Cache-Control", cc)
	}
	w.Header().Set("X-Content-Type-Options", "nosniff")
	http.ServeFileFS(w, r, h.opts.FS, file)
}

// Mount returns h behind prefix with the prefix stripped, for use with
// chi's Handle("/prefix/*", ...).
func (h *Handler) Mount() http.Handler {
	return http.StripPrefix(h.opts.Mount, h)
}

func writeStatus(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}` + "\n"))
}
