// Package ensure guarantees remote devices have usable sessions.
//
// EnsureSessions takes a batch of devices grouped by user, claims one-time
// keys for the ones that need a session, and drives outbound session
// creation on the device service. Concurrent calls targeting the same
// device share a single in-flight claim: the coordinator keeps one pending
// handle per device key and attaches late callers to it instead of issuing
// a second claim. A handle is removed before its waiters are released, so
// a fresh call after settlement starts a fresh claim.
//
// Failures are terminal per device and never spread across a batch. The
// coordinator performs no retries of its own.
package ensure
