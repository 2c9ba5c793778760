package types

// ClaimedKey is a one-time key handed out by the key-claiming service.
type ClaimedKey struct {
	KeyID string `json:"key_id"`
	Key   string `json:"key"` // base64 Curve25519 public
}

// ClaimResult is the per-device outcome of a one-time-key claim. A device
// appears in OneTimeKeys on success or in Failures with a reason; devices
// the service silently omitted appear in neither.
type ClaimResult struct {
	OneTimeKeys map[UserID]map[DeviceKey]ClaimedKey
	Failures    map[DeviceKey]string
}

// DeviceEnsureResult is the terminal outcome for one device in an
// EnsureSessions batch. Exactly one of SessionID or Err is meaningful.
type DeviceEnsureResult struct {
	SessionID SessionID
	// AlreadyHad reports that a usable session existed before the call
	// and no claim was attempted.
	AlreadyHad bool
	Err        error
}

// EnsureResult maps every requested device to its outcome.
type EnsureResult map[UserID]map[DeviceKey]DeviceEnsureResult
