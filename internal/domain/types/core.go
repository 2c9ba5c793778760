package types

// UserID names an account on the homeserver, e.g. "@alice:example.org".
type UserID string

// String returns the string form of the user ID.
func (u UserID) String() string { return string(u) }

// DeviceKey is the base64 Curve25519 identity key of a remote device.
// It is the primary key under which sessions are stored.
type DeviceKey string

// String returns the string form of the device key.
func (k DeviceKey) String() string { return string(k) }

// SessionID uniquely identifies one ratchet instance. Both ends of a
// session derive the same ID from the establishment handshake.
type SessionID string

// String returns the string form of the session ID.
func (id SessionID) String() string { return string(id) }
