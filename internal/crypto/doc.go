// Package crypto implements the primitive account and session objects the
// device layer is built on.
//
// Contents
//
//   - Account: long-term Curve25519/Ed25519 identity plus the pool of
//     unpublished one-time keys (NewAccount, GenerateOneTimeKeys, Pickle)
//   - Session: a per-device ratchet established from a triple
//     Diffie–Hellman handshake over an identity key and a claimed one-time
//     key (NewOutboundSession, NewInboundSession, Encrypt, Decrypt)
//   - Pickling: key-encrypted JSON snapshots of accounts and sessions
//     (Pickle, Unpickle) and a passphrase envelope for exported state
//     (SealWithPassphrase, OpenWithPassphrase)
//
// # Notes
//
// Session IDs are derived from the handshake public keys with SHA-256, so
// both ends of a session, and duplicate copies of the same pre-key message,
// agree on the ID. Neither Account nor Session is safe for concurrent use;
// the device service serialises access.
package crypto
