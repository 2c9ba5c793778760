// Package device manages the local identity account and every ratchet
// session with remote devices.
//
// It creates outbound sessions from claimed one-time keys, establishes
// inbound sessions from pre-key ciphertexts, encrypts and decrypts over
// existing sessions, and snapshots the whole device state for export.
// Every operation that advances a ratchet persists the new state through
// the session store before reporting success, and operations on the same
// session are strictly serialised.
package device
