package interfaces

import domaintypes "olmera/internal/domain/types"

// SessionStore is the durable persistence boundary for the local account
// pickle and all session records.
//
// Implementations must be safe for concurrent use. Any backend failure is
// reported wrapped in domain.ErrStorage so callers can treat persistence
// loss uniformly.
type SessionStore interface {
	// LoadAccount returns the stored account blob, or ok=false if the
	// device has never been initialised.
	LoadAccount() (blob string, ok bool, err error)
	StoreAccount(blob string) error

	// GetSessionsForDevice returns the session records for a remote
	// device, most-recently-used first.
	GetSessionsForDevice(deviceKey domaintypes.DeviceKey) ([]domaintypes.SessionRecord, error)
	// StoreSession inserts or updates a record and reorders the device's
	// list so the freshest session is first.
	StoreSession(deviceKey domaintypes.DeviceKey, rec domaintypes.SessionRecord) error

	// Sessions returns every stored session record, for export.
	Sessions() ([]domaintypes.SessionRecord, error)

	// ReplaceSessions swaps the entire session set for the given records,
	// dropping everything previously stored. Records keep their given
	// order per device, freshest first. The swap is atomic: either the
	// new set is fully stored or the old set survives intact.
	ReplaceSessions(recs []domaintypes.SessionRecord) error
}
