// Package ratelimit provides per-IP token bucket rate limiting with
// background eviction of idle entries.
//
// It is a single-instance, in-memory limiter for basic abuse prevention. The
// server runs two of them: a generous one in front of every request and a
// tight one in front of the login endpoint, where it complements the
// failed-login lockout in package guard.
//
// It does not protect against distributed attacks or bandwidth-bill attacks;
// inbound data is already accepted by the time this runs.
package ratelimit
