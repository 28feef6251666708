package publish

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/keithlinneman/linnemanlabs-folio/internal/content"
	"github.com/keithlinneman/linnemanlabs-folio/internal/cryptoutil"
	"github.com/keithlinneman/linnemanlabs-folio/internal/xerrors"
)

const (
	ManifestFile  = "manifest.json"
	SignatureFile = "manifest.sig"
)

// Manifest maps each published category file to its sha256.
type Manifest struct {
	Files map[string]string `json:"files"`
}

// Signer produces a detached signature over the manifest bytes.
type Signer interface {
	Sign(ctx context.Context, message []byte) ([]byte, error)
}

func buildManifest(docs []*content.Document) Manifest {
	m := Manifest{Files: make(map[string]string, len(docs))}
	for _, d := range docs {
		m.Files[d.Category.FileName()] = cryptoutil.SHA256Hex(d.Raw)
	}
	return m
}

// Encode renders the manifest deterministically; encoding/json sorts map keys.
func (m Manifest) Encode() ([]byte, error) {
	b, err := json.MarshalIndent(m, "", "    ")
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

// writeManifest writes manifest.json, and manifest.sig when signer is set,
// only if the manifest differs from what is on disk. It reports whether
// anything was written.
func writeManifest(ctx context.Context, dir string, m Manifest, signer Signer) ([]byte, bool, error) {
	b, err := m.Encode()
	if err != nil {
		return nil, false, xerrors.Wrap(err, "encode manifest")
	}
	path := filepath.Join(dir, ManifestFile)
	cur, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, false, xerrors.Wrapf(err, "read %s", path)
	}
	sigPath := filepath.Join(dir, SignatureFile)
	if bytes.Equal(cur, b) && (signer == nil || fileExists(sigPath)) {
		return b, false, nil
	}

	if err := content.WriteFileAtomic(path, b, 0o644); err != nil {
		return nil, false, err
	}
	if signer != nil {
		sig, err := signer.Sign(ctx, b)
		if err != nil {
			return nil, false, xerrors.Wrap(err, "sign manifest")
		}
		enc := base64.StdEncoding.EncodeToString(sig) + "\n"
		if err := content.WriteFileAtomic(sigPath, []byte(enc), 0o644); err != nil {
			return nil, false, err
		}
	}
	return b, true, nil
}

func fileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
