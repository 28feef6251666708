package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/keithlinneman/linnemanlabs-folio/internal/content"
	"github.com/keithlinneman/linnemanlabs-folio/internal/log"
	"github.com/keithlinneman/linnemanlabs-folio/internal/pathutil"
	"github.com/keithlinneman/linnemanlabs-folio/internal/xerrors"
)

const (
	DefaultMaxBytes = 5 << 20
	DefaultURLPath  = "/uploads/"
)

var (
	ErrNoFile         = errors.New("no file uploaded")
	ErrTooLarge       = errors.New("file too large")
	ErrTypeNotAllowed = errors.New("file type not allowed")
)

// allowed maps sniffed content types to the extensions accepted for them.
var allowed = map[string][]string{
	"image/jpeg":      {".jpg", ".jpeg"},
	"image/png":       {".png"},
	"image/gif":       {".gif"},
	"image/webp":      {".webp"},
	"application/pdf": {".pdf"},
}

// Asset is a stored upload.
type Asset struct {
	URL          string
	Filename     string
	OriginalName string
	Size         int64
	ContentType  string
	Transcoded   bool
}

// Store writes uploads into dir.
type Store struct {
	dir      string
	urlPath  string
	maxBytes int64
	imaging  *Transcoder
	logger   log.Logger
	now      func() time.Time
	newID    func() string

	// OnTranscode reports the outcome of each image re-encode: "ok", "skipped" or "failed".
	OnTranscode func(result string)
}

type Option func(*Store)

func WithMaxBytes(n int64) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxBytes = n
		}
	}
}

// WithTranscoder enables image re-encoding. A nil transcoder disables it.
func WithTranscoder(t *Transcoder) Option {
	return func(s *Store) { s.imaging = t }
}

func WithLogger(l log.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

func WithOnTranscode(fn func(result string)) Option {
	return func(s *Store) { s.OnTranscode = fn }
}

func NewStore(dir string, opts ...Option) (*Store, error) {
	if dir == "" {
		return nil, xerrors.New("upload: dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, xerrors.Wrapf(err, "create upload dir %s", dir)
	}
	s := &Store{
		dir:      dir,
		urlPath:  DefaultURLPath,
		maxBytes: DefaultMaxBytes,
		logger:   log.Nop(),
		now:      time.Now,
		newID:    func() string { return uuid.NewString()[:8] },
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

func (s *Store) Dir() string      { return s.dir }
func (s *Store) MaxBytes() int64 { return s.maxBytes }

// Save validates and stores one multipart file.
func (s *Store) Save(ctx context.Context, fh *multipart.FileHeader) (*Asset, error) {
	if fh == nil {
		return nil, ErrNoFile
	}
	if fh.Size > s.maxBytes {
		return nil, xerrors.Wrapf(ErrTooLarge, "%d bytes, limit %d", fh.Size, s.maxBytes)
	}
	f, err := fh.Open()
	if err != nil {
		return nil, xerrors.Wrap(err, "open multipart file")
	}
	defer f.Close()

	// read one byte past the limit so an understated header size is caught
	data, err := io.ReadAll(io.LimitReader(f, s.maxBytes+1))
	if err != nil {
		return nil, xerrors.Wrap(err, "read multipart file")
	}
	if int64(len(data)) > s.maxBytes {
		return nil, xerrors.Wrapf(ErrTooLarge, "limit %d", s.maxBytes)
	}
	if len(data) == 0 {
		return nil, ErrNoFile
	}
	return s.store(ctx, fh.Filename, data)
}

func (s *Store) store(ctx context.Context, original string, data []byte) (*Asset, error) {
	ctype, err := checkType(original, data)
	if err != nil {
		return nil, err
	}

	name := pathutil.SanitizeFileName(original)
	transcoded := false
	if s.imaging != nil && s.imaging.Accepts(ctype) {
		out, err := s.imaging.Transcode(data)
		switch {
		case errors.Is(err, ErrTranslucent):
			s.reportTranscode("skipped")
		case err != nil:
			s.logger.Warn(ctx, "image transcode failed, keeping original", "error", err, "content_type", ctype)
			s.reportTranscode("failed")
		case len(out) >= len(data):
			s.reportTranscode("skipped")
		default:
			data = out
			ctype = "image/jpeg"
			name = strings.TrimSuffix(name, filepath.Ext(name)) + ".jpg"
			transcoded = true
			s.reportTranscode("ok")
		}
	}

	stored := fmt.Sprintf("%d-%s-%s", s.now().UnixMilli(), s.newID(), name)
	if err := content.WriteFileAtomic(filepath.Join(s.dir, stored), data, 0o644); err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "upload stored",
		"filename", stored,
		"bytes", len(data),
		"content_type", ctype,
		"transcoded", transcoded,
	)
	return &Asset{
		URL:          path.Join(s.urlPath, stored),
		Filename:     stored,
		OriginalName: original,
		Size:         int64(len(data)),
		ContentType:  ctype,
		Transcoded:   transcoded,
	}, nil
}

func (s *Store) reportTranscode(result string) {
	if s.OnTranscode != nil {
		s.OnTranscode(result)
	}
}

// checkType sniffs data and requires the extension of name to agree with it.
func checkType(name string, data []byte) (string, error) {
	ctype := http.DetectContentType(data)
	if i := strings.IndexByte(ctype, ';'); i >= 0 {
		ctype = strings.TrimSpace(ctype[:i])
	}
	exts, ok := allowed[ctype]
	if !ok {
		return "", xerrors.Wrapf(ErrTypeNotAllowed, "detected %s", ctype)
	}
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range exts {
		if e == ext {
			return ctype, nil
		}
	}
	return "", xerrors.Wrapf(ErrTypeNotAllowed, "extension %q does not match %s", ext, ctype)
}

// ReadyErr reports whether the upload dir is writable.
func (s *Store) ReadyErr() error {
	f, err := os.CreateTemp(s.dir, ".ready-*")
	if err != nil {
		return xerrors.Wrapf(err, "upload dir %s not writable", s.dir)
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}

