// Package guard locks out client addresses after repeated failed logins.
//
// A Guard counts failures per address in a FailureStore. Once an address has
// reached the threshold within the window it is locked until the window has
// passed since its last failure; a successful login clears the record.
//
// MemoryStore keeps records in-process and loses them on restart. RedisStore
// shares them between instances and survives restarts.
package guard
