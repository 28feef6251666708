package static

import (
	"path"
	"strings"
)

func cacheControlForFile(name string, o *Options) string {
	ext := strings.ToLower(path.Ext(name))

	switch ext {
	case ".html":
		return o.HTMLCacheControl

	// uploads get unique names so images and fonts never change in place
	case ".css", ".js", ".mjs",
		".png", ".jpg", ".jpeg", ".webp", ".gif", ".svg", ".ico",
		".woff", ".woff2",
		".map":
		return o.AssetCacheControl

	default:
		if ext == "" {
			return o.HTMLCacheControl
		}
		return o.OtherCacheControl
	}
}
