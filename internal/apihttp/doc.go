// Package apihttp is the JSON API: public content reads, the login and
// session check, and the admin-only writes, uploads and publish.
//
//	GET  /api/{category}          public, document or null
//	POST /api/auth/login          {password} -> {token, expiresIn}
//	GET  /api/auth/verify         any valid session
//	PUT  /api/admin/{category}    admin, replaces the whole document
//	POST /api/admin/upload        admin, multipart "file"
//	POST /api/publish             admin, {message?}
//
// Failed logins are counted per client address by a guard.Guard that is
// consulted before the password is checked.
package apihttp
