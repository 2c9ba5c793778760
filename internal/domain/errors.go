package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedKey indicates identity or one-time key input that is not
	// valid key material.
	ErrMalformedKey = errors.New("malformed key material")

	// ErrUnknownSession indicates an operation referenced a session ID that
	// is not stored for the given device.
	ErrUnknownSession = errors.New("unknown session")

	// ErrDecryptionFailed indicates a ratchet or authentication-tag
	// mismatch: corrupted, replayed, or aimed at a different session.
	ErrDecryptionFailed = errors.New("decryption failed")

	// ErrStorage wraps persistence failures. A ratchet is never considered
	// advanced unless its new state was durably stored.
	ErrStorage = errors.New("session storage unavailable")
)

// ClaimError records a terminal one-time-key claim failure for a single
// device. It never poisons the rest of the batch.
type ClaimError struct {
	Device DeviceKey
	Reason string
}

func (e *ClaimError) Error() string {
	return fmt.Sprintf("one-time key claim failed for device %s: %s", e.Device, e.Reason)
}
