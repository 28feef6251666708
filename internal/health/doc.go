// Package health provides composable probes and the liveness and readiness
// handlers served on the ops listener.
//
// Probes combine with [All]. [Named] prefixes failures with the dependency
// name and [Timeout] bounds slow checks such as a Redis ping. [ShutdownGate]
// fails readiness as soon as shutdown starts so load balancers stop routing
// new requests before the server drains.
package health
