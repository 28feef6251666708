// Package pathutil holds path checks shared by the upload store and the
// static file handlers.
package pathutil

import (
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// MaxFileNameLen caps the sanitized part of a stored file name.
const MaxFileNameLen = 100

// HasDotSegments reports whether any path segment is "." or "..".
func HasDotSegments(p string) bool {
	for _, seg := range strings.Split(p, "/") {
		if seg == "." || seg == ".." {
			return true
		}
	}
	return false
}

// HasHiddenSegment reports whether any segment starts with a dot, so dotfiles
// and in-progress temp files are never served.
func HasHiddenSegment(p string) bool {
	for _, seg := range strings.Split(p, "/") {
		if strings.HasPrefix(seg, ".") {
			return true
		}
	}
	return false
}

// SanitizeFileName reduces a client-supplied file name to its base name made
// of [A-Za-z0-9._-], with runs of other characters collapsed to one '-'.
// The result is never empty, never starts with a dot and keeps its extension
// when truncated.
func SanitizeFileName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(name)
	if !utf8.ValidString(name) {
		name = strings.ToValidUTF8(name, "-")
	}

	var b strings.Builder
	dash := false
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_':
			b.WriteRune(r)
			dash = false
		default:
			if !dash {
				b.WriteByte('-')
				dash = true
			}
		}
	}
	out := strings.Trim(b.String(), "-.")
	if out == "" {
		return "file"
	}

	if len(out) > MaxFileNameLen {
		ext := filepath.Ext(out)
		if len(ext) > 10 {
			ext = ""
		}
		out = strings.TrimRight(out[:MaxFileNameLen-len(ext)], "-.") + ext
	}
	return out
}
