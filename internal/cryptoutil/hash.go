package cryptoutil

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// SHA256Hex is the lowercase hex SHA-256 of data. Manifest entries, S3
// object metadata and entity tags all use this form.
func SHA256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// StrongETag quotes the digest of data for use as an HTTP entity tag.
func StrongETag(data []byte) string {
	return strconv.Quote(SHA256Hex(data))
}
