// Package httpmw provides HTTP middleware for the API server.
//
// Middleware is composed in a specific order in httpserver.NewHandler:
// panic recovery, security headers, CORS, request ID, client IP extraction,
// rate limiting, OTEL tracing, metrics, structured logging, and the chi
// router.
//
// Each middleware is an independent function that can be tested, reordered,
// or removed individually. Request bodies, query values and headers such as
// Authorization are never logged.
package httpmw
