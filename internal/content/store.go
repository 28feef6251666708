package content

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/keithlinneman/linnemanlabs-folio/internal/log"
	"github.com/keithlinneman/linnemanlabs-folio/internal/xerrors"
)

// FileStore keeps one JSON file per category in dir.
type FileStore struct {
	dir    string
	logger log.Logger

	// serializes writes so an If-Match check and the rename it guards are not
	// interleaved with another writer in this process
	mu sync.Mutex
}

type Option func(*FileStore)

func WithLogger(l log.Logger) Option {
	return func(s *FileStore) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewFileStore creates dir if needed and returns a store rooted there.
func NewFileStore(dir string, opts ...Option) (*FileStore, error) {
	if dir == "" {
		return nil, xerrors.New("content: data dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, xerrors.Wrapf(err, "create data dir %s", dir)
	}
	s := &FileStore{dir: dir, logger: log.Nop()}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

func (s *FileStore) Dir() string { return s.dir }

func (s *FileStore) path(c Category) string {
	return filepath.Join(s.dir, c.FileName())
}

// Read returns the stored document or ErrNotFound.
func (s *FileStore) Read(ctx context.Context, c Category) (*Document, error) {
	if !c.Valid() {
		return nil, xerrors.Wrapf(ErrUnknownCategory, "%q", c)
	}
	return s.read(c)
}

func (s *FileStore) read(c Category) (*Document, error) {
	p := s.path(c)
	b, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, xerrors.Wrapf(err, "read %s", p)
	}
	fi, err := os.Stat(p)
	if err != nil {
		return nil, xerrors.Wrapf(err, "stat %s", p)
	}
	return &Document{
		Category: c,
		Raw:      b,
		ETag:     ETag(b),
		ModTime:  fi.ModTime().UTC(),
	}, nil
}

// Write replaces the category's document with raw. When ifMatch is non-empty
// it must equal the current ETag ("*" matches any existing document), otherwise
// ErrVersionConflict is returned and nothing is written.
func (s *FileStore) Write(ctx context.Context, c Category, raw []byte, ifMatch string) (*Document, error) {
	if !c.Valid() {
		return nil, xerrors.Wrapf(ErrUnknownCategory, "%q", c)
	}
	data, err := Normalize(raw)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if ifMatch != "" {
		cur, err := s.read(c)
		switch {
		case errors.Is(err, ErrNotFound):
			return nil, xerrors.Wrapf(ErrVersionConflict, "%s does not exist", c)
		case err != nil:
			return nil, err
		case ifMatch != "*" && ifMatch != cur.ETag:
			return nil, xerrors.Wrapf(ErrVersionConflict, "%s etag %s, client sent %s", c, cur.ETag, ifMatch)
		}
	}

	if err := WriteFileAtomic(s.path(c), data, 0o644); err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "content document written",
		"category", c,
		"bytes", len(data),
	)
	return s.read(c)
}

// List returns every category that currently has a document, in category order.
func (s *FileStore) List(ctx context.Context) ([]*Document, error) {
	out := make([]*Document, 0, len(categories))
	for _, c := range categories {
		d, err := s.read(c)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// ReadyErr reports whether the data dir is usable, for readiness probes.
func (s *FileStore) ReadyErr() error {
	fi, err := os.Stat(s.dir)
	if err != nil {
		return xerrors.Wrap(ErrStoreUnavailable, err.Error())
	}
	if !fi.IsDir() {
		return xerrors.Wrapf(ErrStoreUnavailable, "%s is not a directory", s.dir)
	}
	return nil
}

// WriteFileAtomic writes data to a temp file beside path, syncs it, and renames
// it over path so readers see either the old or the new file, never a partial one.
func WriteFileAtomic(path string, data []byte, perm fs.FileMode) (retErr error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return xerrors.Wrapf(err, "create temp file in %s", dir)
	}
	tmpName := tmp.Name()
	defer func() {
		if retErr != nil {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return xerrors.Wrapf(err, "write %s", tmpName)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return xerrors.Wrapf(err, "sync %s", tmpName)
	}
	if err := tmp.Close(); err != nil {
		return xerrors.Wrapf(err, "close %s", tmpName)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return xerrors.Wrapf(err, "chmod %s", tmpName)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return xerrors.Wrapf(err, "rename %s to %s", tmpName, path)
	}
	return nil
}
