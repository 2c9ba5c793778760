package interfaces

import (
	"context"

	domaintypes "olmera/internal/domain/types"
)

// DeviceService owns the local identity account and every ratchet session.
//
// Every operation that advances a ratchet persists the new state before
// returning success; callers never observe an in-memory-only advance.
type DeviceService interface {
	// IdentityKeys returns the device's long-term public keys.
	IdentityKeys() domaintypes.IdentityKeys

	// GenerateOneTimeKeys adds n keys to the unpublished pool and
	// persists the updated account.
	GenerateOneTimeKeys(n int) ([]domaintypes.OneTimeKey, error)
	// OneTimeKeys lists the currently unpublished one-time public keys.
	OneTimeKeys() []domaintypes.OneTimeKey

	CreateOutboundSession(
		theirIdentityKey string,
		theirOneTimeKey string,
	) (domaintypes.SessionID, error)
	CreateInboundSession(
		theirDeviceKey domaintypes.DeviceKey,
		ct domaintypes.Ciphertext,
	) (domaintypes.InboundSession, error)

	EncryptMessage(
		theirDeviceKey domaintypes.DeviceKey,
		sessionID domaintypes.SessionID,
		plaintext []byte,
	) (domaintypes.Ciphertext, error)
	DecryptMessage(
		theirDeviceKey domaintypes.DeviceKey,
		sessionID domaintypes.SessionID,
		ct domaintypes.Ciphertext,
	) ([]byte, error)

	// SessionsForDevice lists known sessions for a device, preferred first.
	SessionsForDevice(deviceKey domaintypes.DeviceKey) ([]domaintypes.SessionRecord, error)

	// Export produces a full snapshot; Import replaces local state with one.
	Export() (domaintypes.ExportedState, error)
	Import(state domaintypes.ExportedState) error
}

// SessionEnsurer guarantees each requested device ends with a session,
// deduplicating concurrent one-time-key claims per device.
type SessionEnsurer interface {
	EnsureSessions(
		ctx context.Context,
		devicesByUser map[domaintypes.UserID][]domaintypes.DeviceKey,
	) (domaintypes.EnsureResult, error)
}
