// Package content stores the portfolio's content documents.
//
// Each category (stats, formations, skills, projects, recommendations,
// documents) is a single JSON file under the data directory. Documents are
// opaque: the store validates JSON syntax only and keeps the caller's bytes,
// re-indented, so key order and number literals survive a round trip.
//
// Writes replace the whole file atomically (temp file + fsync + rename).
// Each stored document has an ETag (sha256 of its bytes) that callers may
// pass back as a precondition to detect lost updates.
package content
