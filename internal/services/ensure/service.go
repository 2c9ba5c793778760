package ensure

import (
	"context"
	"sync"

	"olmera/internal/domain"
)

// Ensurer coordinates session establishment so that each remote device has
// at most one one-time-key claim in flight at any instant, no matter how
// many callers overlap.
//
// The pending map is owned by the instance; entries live from registration
// until the claim settles. Pass the Ensurer to whoever needs it rather
// than sharing one through a global.
type Ensurer struct {
	device  domain.DeviceService
	claimer domain.KeyClaimer

	mu      sync.Mutex
	pending map[domain.DeviceKey]*claim
}

// claim is the shared handle for one in-flight key-claim plus session
// creation. done is closed only after the handle has left the pending map.
type claim struct {
	done      chan struct{}
	sessionID domain.SessionID
	err       error
}

// waiter pairs one requested device with the handle it awaits.
type waiter struct {
	user domain.UserID
	key  domain.DeviceKey
	c    *claim
}

// New returns an Ensurer driving the given device and key-claiming service.
func New(device domain.DeviceService, claimer domain.KeyClaimer) *Ensurer {
	return &Ensurer{
		device:  device,
		claimer: claimer,
		pending: make(map[domain.DeviceKey]*claim),
	}
}

// EnsureSessions resolves once every requested device has either gained a
// session or recorded a terminal per-device failure. One device's failure
// never blocks or fails the others.
//
// For each device: an existing session short-circuits; an in-flight claim
// registered by an earlier call is awaited instead of duplicated; anything
// left joins a single batch claim owned by this call.
func (e *Ensurer) EnsureSessions(
	ctx context.Context,
	devicesByUser map[domain.UserID][]domain.DeviceKey,
) (domain.EnsureResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := make(domain.EnsureResult, len(devicesByUser))
	var waits []waiter
	owned := make(map[domain.UserID][]domain.DeviceKey)
	var ownedTargets []waiter

	for user, keys := range devicesByUser {
		result[user] = make(map[domain.DeviceKey]domain.DeviceEnsureResult, len(keys))
		for _, key := range keys {
			records, err := e.device.SessionsForDevice(key)
			if err != nil {
				result[user][key] = domain.DeviceEnsureResult{Err: err}
				continue
			}
			if len(records) > 0 {
				result[user][key] = domain.DeviceEnsureResult{
					SessionID:  records[0].SessionID,
					AlreadyHad: true,
				}
				continue
			}

			// Get-or-create-and-register: an existing handle means some
			// caller's claim is in flight and we must not start another.
			e.mu.Lock()
			c, inFlight := e.pending[key]
			if !inFlight {
				c = &claim{done: make(chan struct{})}
				e.pending[key] = c
			}
			e.mu.Unlock()

			w := waiter{user: user, key: key, c: c}
			waits = append(waits, w)
			if !inFlight {
				owned[user] = append(owned[user], key)
				ownedTargets = append(ownedTargets, w)
			}
		}
	}

	if len(owned) > 0 {
		// The claim outlives this caller's context: other callers may be
		// attached to it, and an abandoning caller must not cancel them.
		claimed, claimErr := e.claimer.ClaimOneTimeKeys(context.WithoutCancel(ctx), owned)
		for _, t := range ownedTargets {
			sessionID, err := e.establish(t.user, t.key, claimed, claimErr)
			e.settle(t.key, sessionID, err)
		}
	}

	for _, a := range waits {
		select {
		case <-a.c.done:
			result[a.user][a.key] = domain.DeviceEnsureResult{
				SessionID: a.c.sessionID,
				Err:       a.c.err,
			}
		case <-ctx.Done():
			// The underlying claim keeps running for other callers.
			result[a.user][a.key] = domain.DeviceEnsureResult{Err: ctx.Err()}
		}
	}
	return result, nil
}

// establish turns one device's claim outcome into a session or a terminal
// per-device error.
func (e *Ensurer) establish(
	user domain.UserID,
	key domain.DeviceKey,
	claimed domain.ClaimResult,
	claimErr error,
) (domain.SessionID, error) {
	if claimErr != nil {
		return "", &domain.ClaimError{Device: key, Reason: claimErr.Error()}
	}
	if reason, ok := claimed.Failures[key]; ok {
		return "", &domain.ClaimError{Device: key, Reason: reason}
	}
	otk, ok := claimed.OneTimeKeys[user][key]
	if !ok {
		return "", &domain.ClaimError{Device: key, Reason: "no one-time key returned"}
	}
	sessionID, err := e.device.CreateOutboundSession(key.String(), otk.Key)
	if err != nil {
		return "", err
	}
	return sessionID, nil
}

// settle records the outcome on the device's handle, removes it from the
// pending map, and only then releases the waiters. A caller arriving after
// settlement therefore always starts a fresh claim.
func (e *Ensurer) settle(key domain.DeviceKey, sessionID domain.SessionID, err error) {
	e.mu.Lock()
	c := e.pending[key]
	delete(e.pending, key)
	e.mu.Unlock()

	c.sessionID = sessionID
	c.err = err
	close(c.done)
}

// Compile-time assertion that Ensurer implements domain.SessionEnsurer.
var _ domain.SessionEnsurer = (*Ensurer)(nil)
