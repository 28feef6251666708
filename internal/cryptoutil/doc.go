// Package cryptoutil holds the hashing and signing primitives used for
// content integrity: SHA-256 digests for ETags and publish manifests, and a
// KMS-backed signer that produces detached manifest signatures.
package cryptoutil
