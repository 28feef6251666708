// Package auth issues and validates the stateless session tokens that guard
// the admin API.
//
// A session is an HS256 JWT carrying a Role claim. Issuer verifies a password
// against bcrypt hashes and signs a token; Validator checks signature, method,
// issuer and expiry. Middleware attaches validated Claims to the request
// context, and RequireRole gates handlers on them.
//
// There is no revocation list: a token is valid until it expires.
package auth
