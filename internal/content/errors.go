package content

import "errors"

var (
	ErrNotFound         = errors.New("content: document not found")
	ErrUnknownCategory  = errors.New("content: unknown category")
	ErrInvalidDocument  = errors.New("content: invalid document")
	ErrVersionConflict  = errors.New("content: document changed since it was read")
	ErrStoreUnavailable = errors.New("content: data directory unavailable")
)
