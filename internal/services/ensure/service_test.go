package ensure_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"olmera/internal/domain"
	"olmera/internal/services/device"
	"olmera/internal/services/ensure"
	"olmera/internal/store"
)

// fakeClaimer hands out one-time keys harvested from real remote devices,
// so the sessions the ensurer creates are fully functional. It can block
// on a gate to hold a claim in flight, fail wholesale, or fail per device.
type fakeClaimer struct {
	mu    sync.Mutex
	calls int
	gate  chan struct{}
	keys  map[domain.DeviceKey][]domain.ClaimedKey
	fail  map[domain.DeviceKey]string
	err   error
}

func (f *fakeClaimer) ClaimOneTimeKeys(
	ctx context.Context,
	devices map[domain.UserID][]domain.DeviceKey,
) (domain.ClaimResult, error) {
	f.mu.Lock()
	f.calls++
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return domain.ClaimResult{}, f.err
	}
	res := domain.ClaimResult{
		OneTimeKeys: make(map[domain.UserID]map[domain.DeviceKey]domain.ClaimedKey),
		Failures:    make(map[domain.DeviceKey]string),
	}
	for user, keys := range devices {
		for _, key := range keys {
			if reason, ok := f.fail[key]; ok {
				res.Failures[key] = reason
				continue
			}
			pool := f.keys[key]
			if len(pool) == 0 {
				continue
			}
			f.keys[key] = pool[1:]
			if res.OneTimeKeys[user] == nil {
				res.OneTimeKeys[user] = make(map[domain.DeviceKey]domain.ClaimedKey)
			}
			res.OneTimeKeys[user][key] = pool[0]
		}
	}
	return res, nil
}

func (f *fakeClaimer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeClaimer) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func newDevice(t *testing.T) *device.Service {
	t.Helper()
	svc, err := device.New(store.NewFileStore(t.TempDir()))
	if err != nil {
		t.Fatalf("device.New: %v", err)
	}
	return svc
}

// newRemote creates a remote device with n published one-time keys and
// returns its device key plus the keys for the fake claimer to serve.
func newRemote(t *testing.T, n int) (domain.DeviceKey, []domain.ClaimedKey) {
	t.Helper()
	remote := newDevice(t)
	otks, err := remote.GenerateOneTimeKeys(n)
	if err != nil {
		t.Fatalf("GenerateOneTimeKeys: %v", err)
	}
	claimed := make([]domain.ClaimedKey, 0, n)
	for _, k := range otks {
		claimed = append(claimed, domain.ClaimedKey{KeyID: k.ID, Key: k.Key})
	}
	return domain.DeviceKey(remote.IdentityKeys().Curve25519), claimed
}

const user = domain.UserID("@mira:example.org")

func request(keys ...domain.DeviceKey) map[domain.UserID][]domain.DeviceKey {
	return map[domain.UserID][]domain.DeviceKey{user: keys}
}

func TestEnsurer_EstablishesSession(t *testing.T) {
	local := newDevice(t)
	remoteKey, claimed := newRemote(t, 1)
	fc := &fakeClaimer{keys: map[domain.DeviceKey][]domain.ClaimedKey{remoteKey: claimed}}
	e := ensure.New(local, fc)

	result, err := e.EnsureSessions(context.Background(), request(remoteKey))
	if err != nil {
		t.Fatalf("EnsureSessions: %v", err)
	}
	r := result[user][remoteKey]
	if r.Err != nil {
		t.Fatalf("device result err: %v", r.Err)
	}
	if r.SessionID == "" || r.AlreadyHad {
		t.Fatalf("unexpected result: %+v", r)
	}
	recs, err := local.SessionsForDevice(remoteKey)
	if err != nil {
		t.Fatalf("SessionsForDevice: %v", err)
	}
	if len(recs) != 1 || recs[0].SessionID != r.SessionID {
		t.Fatalf("stored sessions %v, want [%s]", recs, r.SessionID)
	}
	if fc.callCount() != 1 {
		t.Fatalf("claim calls = %d, want 1", fc.callCount())
	}
}

func TestEnsurer_ExistingSessionShortCircuits(t *testing.T) {
	local := newDevice(t)
	remoteKey, claimed := newRemote(t, 1)
	fc := &fakeClaimer{keys: map[domain.DeviceKey][]domain.ClaimedKey{remoteKey: claimed}}
	e := ensure.New(local, fc)

	first, err := e.EnsureSessions(context.Background(), request(remoteKey))
	if err != nil {
		t.Fatalf("EnsureSessions: %v", err)
	}
	second, err := e.EnsureSessions(context.Background(), request(remoteKey))
	if err != nil {
		t.Fatalf("EnsureSessions (second): %v", err)
	}
	r := second[user][remoteKey]
	if !r.AlreadyHad {
		t.Fatalf("second call did not reuse the session: %+v", r)
	}
	if r.SessionID != first[user][remoteKey].SessionID {
		t.Fatalf("session changed: %s vs %s", r.SessionID, first[user][remoteKey].SessionID)
	}
	if fc.callCount() != 1 {
		t.Fatalf("claim calls = %d, want 1", fc.callCount())
	}
}

func TestEnsurer_ConcurrentCallsShareOneClaim(t *testing.T) {
	local := newDevice(t)
	remoteKey, claimed := newRemote(t, 4)
	gate := make(chan struct{})
	fc := &fakeClaimer{
		keys: map[domain.DeviceKey][]domain.ClaimedKey{remoteKey: claimed},
		gate: gate,
	}
	e := ensure.New(local, fc)

	const callers = 4
	results := make([]domain.DeviceEnsureResult, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := e.EnsureSessions(context.Background(), request(remoteKey))
			if err != nil {
				t.Errorf("EnsureSessions: %v", err)
				return
			}
			results[i] = res[user][remoteKey]
		}(i)
	}

	// Hold the gate until the owning claim is in flight, give the other
	// callers a moment to attach, then release.
	deadline := time.Now().Add(5 * time.Second)
	for fc.callCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("claim never started")
		}
		time.Sleep(time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond)
	close(gate)
	wg.Wait()

	if fc.callCount() != 1 {
		t.Fatalf("claim calls = %d, want 1", fc.callCount())
	}
	want := results[0].SessionID
	for i, r := range results {
		if r.Err != nil {
			t.Fatalf("caller %d error: %v", i, r.Err)
		}
		if r.SessionID != want {
			t.Fatalf("caller %d got session %s, want %s", i, r.SessionID, want)
		}
	}
}

func TestEnsurer_FreshClaimAfterFailure(t *testing.T) {
	local := newDevice(t)
	remoteKey, claimed := newRemote(t, 1)
	fc := &fakeClaimer{keys: map[domain.DeviceKey][]domain.ClaimedKey{remoteKey: claimed}}
	fc.setErr(errors.New("key server unreachable"))
	e := ensure.New(local, fc)

	result, err := e.EnsureSessions(context.Background(), request(remoteKey))
	if err != nil {
		t.Fatalf("EnsureSessions: %v", err)
	}
	var ce *domain.ClaimError
	if !errors.As(result[user][remoteKey].Err, &ce) {
		t.Fatalf("err = %v, want *ClaimError", result[user][remoteKey].Err)
	}
	if ce.Device != remoteKey {
		t.Fatalf("ClaimError names device %s, want %s", ce.Device, remoteKey)
	}

	// The failed claim settled, so a retry claims again rather than
	// waiting on a dead handle.
	fc.setErr(nil)
	result, err = e.EnsureSessions(context.Background(), request(remoteKey))
	if err != nil {
		t.Fatalf("EnsureSessions (retry): %v", err)
	}
	if r := result[user][remoteKey]; r.Err != nil || r.SessionID == "" {
		t.Fatalf("retry did not establish a session: %+v", r)
	}
	if fc.callCount() != 2 {
		t.Fatalf("claim calls = %d, want 2", fc.callCount())
	}
}

func TestEnsurer_PartialFailureIsolated(t *testing.T) {
	local := newDevice(t)
	goodKey, claimed := newRemote(t, 1)
	badKey, _ := newRemote(t, 0)
	fc := &fakeClaimer{
		keys: map[domain.DeviceKey][]domain.ClaimedKey{goodKey: claimed},
		fail: map[domain.DeviceKey]string{badKey: "one-time keys exhausted"},
	}
	e := ensure.New(local, fc)

	result, err := e.EnsureSessions(context.Background(), request(goodKey, badKey))
	if err != nil {
		t.Fatalf("EnsureSessions: %v", err)
	}
	if r := result[user][goodKey]; r.Err != nil || r.SessionID == "" {
		t.Fatalf("healthy device dragged down: %+v", r)
	}
	var ce *domain.ClaimError
	if !errors.As(result[user][badKey].Err, &ce) {
		t.Fatalf("err = %v, want *ClaimError", result[user][badKey].Err)
	}
	if ce.Device != badKey {
		t.Fatalf("ClaimError names device %s, want %s", ce.Device, badKey)
	}
	if fc.callCount() != 1 {
		t.Fatalf("claim calls = %d, want 1", fc.callCount())
	}
}

func TestEnsurer_DeviceOmittedFromClaim(t *testing.T) {
	local := newDevice(t)
	remoteKey, _ := newRemote(t, 0)
	fc := &fakeClaimer{keys: map[domain.DeviceKey][]domain.ClaimedKey{}}
	e := ensure.New(local, fc)

	result, err := e.EnsureSessions(context.Background(), request(remoteKey))
	if err != nil {
		t.Fatalf("EnsureSessions: %v", err)
	}
	var ce *domain.ClaimError
	if !errors.As(result[user][remoteKey].Err, &ce) {
		t.Fatalf("err = %v, want *ClaimError", result[user][remoteKey].Err)
	}
}

func TestEnsurer_CancelledContext(t *testing.T) {
	local := newDevice(t)
	fc := &fakeClaimer{}
	e := ensure.New(local, fc)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := e.EnsureSessions(ctx, request("some-device")); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if fc.callCount() != 0 {
		t.Fatalf("claim calls = %d, want 0", fc.callCount())
	}
}
