package static

import (
	"io/fs"
	"path"
	"strings"

	"github.com/keithlinneman/linnemanlabs-folio/internal/pathutil"
)

// resolvePath maps a URL path (already stripped of the mount prefix) to a
// file in fsys.
//
// Returns:
// - file: path within fsys, no leading slash
// - redirectTo: non-empty when the caller should redirect to <mount><redirectTo>
// - ok: whether a file or redirect was found
func resolvePath(urlPath, index string, fsys fs.FS) (file, redirectTo string, ok bool) {
	p := urlPath
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}

	if strings.Contains(p, "\x00") || strings.Contains(p, "\\") {
		return "", "", false
	}
	if pathutil.HasDotSegments(p) || pathutil.HasHiddenSegment(p) {
		return "", "", false
	}

	trailingSlash := strings.HasSuffix(p, "/")
	clean := path.Clean(p)

	if clean == "/" || trailingSlash {
		if index == "" {
			return "", "", false
		}
		name := strings.TrimPrefix(path.Join(clean, index), "/")
		if existsFile(fsys, name) {
			return name, "", true
		}
		return "", "", false
	}

	name := strings.TrimPrefix(clean, "/")
	if existsFile(fsys, name) {
		return name, "", true
	}

	// /admin/editor -> /admin/editor/ when editor/index.html exists
	if index != "" && path.Ext(clean) == "" && existsFile(fsys, name+"/"+index) {
		return "", clean + "/", true
	}
	return "", "", false
}

func existsFile(fsys fs.FS, name string) bool {
	if name == "" || !fs.ValidPath(name) {
		return false
	}
	info, err := fs.Stat(fsys, name)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular()
}
