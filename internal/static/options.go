package static

import (
	"errors"
	"io/fs"

	"github.com/keithlinneman/linnemanlabs-folio/internal/log"
)

var ErrInvalidOptions = errors.New("static: invalid options")

type Options struct {
	Logger log.Logger

	// FS is the directory tree being served, usually os.DirFS(dir).
	FS fs.FS

	// Mount is the URL prefix the handler is mounted under, e.g. "/uploads".
	// Used to build canonical redirects after the prefix has been stripped.
	Mount string

	// Index is served for directory paths. Empty disables directory indexes.
	Index string

	// Cache policies applied by file extension.
	HTMLCacheControl  string // default: "no-cache"
	AssetCacheControl string // default: "public, max-age=31536000, immutable"
	OtherCacheControl string // default: "public, max-age=3600"
}

func (o *Options) setDefaults() {
	if o.Logger == nil {
		o.Logger = log.Nop()
	}
	if o.HTMLCacheControl == "" {
		o.HTMLCacheControl = "no-cache"
	}
	if o.AssetCacheControl == "" {
		o.AssetCacheControl = "public, max-age=31536000, immutable"
	}
	if o.OtherCacheControl == "" {
		o.OtherCacheControl = "public, max-age=3600"
	}
}

func (o *Options) validate() error {
	if o.FS == nil {
		return errors.Join(ErrInvalidOptions, errors.New("FS is nil"))
	}
	if o.Index != "" && !fs.ValidPath(o.Index) {
		return errors.Join(ErrInvalidOptions, errors.New("Index is not a valid relative path"))
	}
	return nil
}
