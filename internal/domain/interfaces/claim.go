package interfaces

import (
	"context"

	domaintypes "olmera/internal/domain/types"
)

// KeyClaimer is how we ask the directory service for one-time keys.
// Latency is unbounded; timeouts are the service's to impose.
type KeyClaimer interface {
	ClaimOneTimeKeys(
		ctx context.Context,
		devicesByUser map[domaintypes.UserID][]domaintypes.DeviceKey,
	) (domaintypes.ClaimResult, error)
}
