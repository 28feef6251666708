package content

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/keithlinneman/linnemanlabs-folio/internal/cryptoutil"
	"github.com/keithlinneman/linnemanlabs-folio/internal/xerrors"
)

// Document is one category's stored JSON.
type Document struct {
	Category Category
	Raw      json.RawMessage
	ETag     string
	ModTime  time.Time
}

// indent matches the 4-space layout the static site has always been fed
const indent = "    "

// Normalize checks that raw is a single JSON value and returns it
// re-indented with a trailing newline. Content is otherwise untouched.
func Normalize(raw []byte) ([]byte, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, xerrors.Wrap(ErrInvalidDocument, "empty body")
	}
	if !json.Valid(raw) {
		return nil, xerrors.Wrap(ErrInvalidDocument, "malformed JSON")
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", indent); err != nil {
		return nil, xerrors.Wrap(ErrInvalidDocument, err.Error())
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// ETag returns the strong entity tag for stored bytes.
func ETag(b []byte) string {
	return cryptoutil.StrongETag(b)
}
