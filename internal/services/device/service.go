package device

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"olmera/internal/crypto"
	"olmera/internal/domain"
)

// Service owns the local account and orchestrates session creation,
// encryption, decryption, and export/import through the session store.
//
// Mutating operations follow one rule: pickle and store the new state,
// then return. A ratchet advance the store never saw never happened.
type Service struct {
	store domain.SessionStore

	mu        sync.Mutex // guards account and pickleKey
	account   *crypto.Account
	pickleKey []byte

	locks *sessionLocks
}

// accountBlob is the stored wrapper: the pickle key rides alongside the
// account pickle it seals, so a restart can reopen everything.
type accountBlob struct {
	PickleKey string `json:"pickle_key"`
	Account   string `json:"account"`
}

// New loads the device from the store, or creates and persists a fresh
// account if the store is empty.
func New(store domain.SessionStore) (*Service, error) {
	s := &Service{store: store, locks: newSessionLocks()}

	blob, ok, err := store.LoadAccount()
	if err != nil {
		return nil, err
	}
	if !ok {
		s.account, err = crypto.NewAccount()
		if err != nil {
			return nil, err
		}
		s.pickleKey, err = crypto.NewPickleKey()
		if err != nil {
			return nil, err
		}
		if err := s.persistAccount(); err != nil {
			return nil, err
		}
		return s, nil
	}

	var ab accountBlob
	if err := json.Unmarshal([]byte(blob), &ab); err != nil {
		return nil, fmt.Errorf("%w: account blob: %v", domain.ErrStorage, err)
	}
	s.pickleKey, err = base64.StdEncoding.DecodeString(ab.PickleKey)
	if err != nil {
		return nil, fmt.Errorf("%w: pickle key: %v", domain.ErrStorage, err)
	}
	s.account, err = crypto.UnpickleAccount(s.pickleKey, ab.Account)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// IdentityKeys returns the device's long-term public keys.
func (s *Service) IdentityKeys() domain.IdentityKeys {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.account.IdentityKeys()
}

// GenerateOneTimeKeys adds n keys to the unpublished pool and persists the
// updated account before returning them.
func (s *Service) GenerateOneTimeKeys(n int) ([]domain.OneTimeKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys, err := s.account.GenerateOneTimeKeys(n)
	if err != nil {
		return nil, err
	}
	if err := s.persistAccount(); err != nil {
		return nil, err
	}
	return keys, nil
}

// OneTimeKeys lists the currently unpublished one-time public keys.
func (s *Service) OneTimeKeys() []domain.OneTimeKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.account.OneTimeKeys()
}

// CreateOutboundSession establishes a session toward a remote device from
// its identity key and a claimed one-time key, persists it, and returns
// the new session ID.
func (s *Service) CreateOutboundSession(theirIdentityKey, theirOneTimeKey string) (domain.SessionID, error) {
	s.mu.Lock()
	sess, err := crypto.NewOutboundSession(s.account, theirIdentityKey, theirOneTimeKey)
	key := s.pickleKey
	s.mu.Unlock()
	if err != nil {
		return "", err
	}

	if err := s.saveSession(domain.DeviceKey(theirIdentityKey), sess, key, 0); err != nil {
		return "", err
	}
	return sess.ID(), nil
}

// EncryptMessage encrypts plaintext over the named session and persists
// the advanced ratchet before returning the ciphertext.
func (s *Service) EncryptMessage(
	theirDeviceKey domain.DeviceKey,
	sessionID domain.SessionID,
	plaintext []byte,
) (domain.Ciphertext, error) {
	unlock := s.locks.lock(sessionID)
	defer unlock()

	sess, rec, key, err := s.loadSession(theirDeviceKey, sessionID)
	if err != nil {
		return domain.Ciphertext{}, err
	}
	ct, err := sess.Encrypt(plaintext)
	if err != nil {
		return domain.Ciphertext{}, err
	}
	if err := s.saveSession(theirDeviceKey, sess, key, rec.LastReceivedTS); err != nil {
		return domain.Ciphertext{}, err
	}
	return ct, nil
}

// DecryptMessage decrypts a ciphertext over the named session, bumps its
// last-received timestamp, and persists before returning the plaintext.
func (s *Service) DecryptMessage(
	theirDeviceKey domain.DeviceKey,
	sessionID domain.SessionID,
	ct domain.Ciphertext,
) ([]byte, error) {
	unlock := s.locks.lock(sessionID)
	defer unlock()

	sess, _, key, err := s.loadSession(theirDeviceKey, sessionID)
	if err != nil {
		return nil, err
	}
	plaintext, err := sess.Decrypt(ct)
	if err != nil {
		return nil, err
	}
	if err := s.saveSession(theirDeviceKey, sess, key, time.Now().UnixMilli()); err != nil {
		return nil, err
	}
	return plaintext, nil
}

// CreateInboundSession establishes a session from a pre-key ciphertext.
//
// The handshake in the ciphertext names the session it establishes; if
// that session already exists for the device the message is decrypted
// with it instead of forking a second ratchet, so receiving the same
// pre-key ciphertext twice is harmless.
func (s *Service) CreateInboundSession(
	theirDeviceKey domain.DeviceKey,
	ct domain.Ciphertext,
) (domain.InboundSession, error) {
	if ct.Type != domain.MessageTypePreKey {
		return domain.InboundSession{}, fmt.Errorf(
			"%w: ciphertext is not a pre-key message", domain.ErrDecryptionFailed)
	}
	sessionID, err := crypto.PreKeySessionID(ct.Body)
	if err != nil {
		return domain.InboundSession{}, err
	}

	unlock := s.locks.lock(sessionID)
	defer unlock()

	// Reuse a matching session rather than discarding its ratchet state.
	sess, _, key, err := s.loadSession(theirDeviceKey, sessionID)
	if err == nil {
		plaintext, err := sess.Decrypt(ct)
		if err != nil {
			return domain.InboundSession{}, err
		}
		if err := s.saveSession(theirDeviceKey, sess, key, time.Now().UnixMilli()); err != nil {
			return domain.InboundSession{}, err
		}
		return domain.InboundSession{SessionID: sessionID, Plaintext: plaintext}, nil
	}
	if !errors.Is(err, domain.ErrUnknownSession) {
		return domain.InboundSession{}, err
	}

	// NewInboundSession only consumes the one-time key once the carried
	// message authenticates, so a bad message cannot burn it.
	s.mu.Lock()
	sess, plaintext, err := crypto.NewInboundSession(s.account, ct)
	key = s.pickleKey
	s.mu.Unlock()
	if err != nil {
		return domain.InboundSession{}, err
	}

	// Persist the account (one-time key consumed), then the session.
	s.mu.Lock()
	err = s.persistAccount()
	s.mu.Unlock()
	if err != nil {
		return domain.InboundSession{}, err
	}
	if err := s.saveSession(theirDeviceKey, sess, key, time.Now().UnixMilli()); err != nil {
		return domain.InboundSession{}, err
	}
	return domain.InboundSession{SessionID: sess.ID(), Plaintext: plaintext}, nil
}

// SessionsForDevice lists known sessions for a device, preferred first.
func (s *Service) SessionsForDevice(deviceKey domain.DeviceKey) ([]domain.SessionRecord, error) {
	return s.store.GetSessionsForDevice(deviceKey)
}

// Export produces a full snapshot of the device: pickle key, account
// pickle, and every session record. Never a diff.
func (s *Service) Export() (domain.ExportedState, error) {
	s.mu.Lock()
	pickledAccount, err := s.account.Pickle(s.pickleKey)
	pickleKey := base64.StdEncoding.EncodeToString(s.pickleKey)
	s.mu.Unlock()
	if err != nil {
		return domain.ExportedState{}, err
	}

	records, err := s.store.Sessions()
	if err != nil {
		return domain.ExportedState{}, err
	}
	sessions := make([]domain.ExportedSession, 0, len(records))
	for _, rec := range records {
		sessions = append(sessions, domain.ExportedSession{
			Session:        rec.Pickle,
			SessionID:      rec.SessionID,
			DeviceKey:      rec.DeviceKey,
			LastReceivedTS: rec.LastReceivedTS,
		})
	}
	return domain.ExportedState{
		Version:        domain.ExportFormatVersion,
		PickleKey:      pickleKey,
		PickledAccount: pickledAccount,
		Sessions:       sessions,
	}, nil
}

// Import replaces the device's account and sessions with the snapshot,
// dropping any sessions the device held before. An empty session list
// (fresh-device export) is fine. Every pickle is validated before
// anything is persisted.
func (s *Service) Import(state domain.ExportedState) error {
	if state.Version > domain.ExportFormatVersion {
		return fmt.Errorf("unsupported export version %d", state.Version)
	}
	key, err := base64.StdEncoding.DecodeString(state.PickleKey)
	if err != nil {
		return fmt.Errorf("%w: pickle key: %v", domain.ErrMalformedKey, err)
	}
	account, err := crypto.UnpickleAccount(key, state.PickledAccount)
	if err != nil {
		return err
	}
	for _, es := range state.Sessions {
		if _, err := crypto.UnpickleSession(key, es.Session); err != nil {
			return fmt.Errorf("session %s: %w", es.SessionID, err)
		}
	}

	s.mu.Lock()
	s.account = account
	s.pickleKey = key
	err = s.persistAccount()
	s.mu.Unlock()
	if err != nil {
		return err
	}

	// The snapshot is the whole truth: pre-existing records would be
	// unpicklable under the new key, so the set is swapped, not merged.
	records := make([]domain.SessionRecord, 0, len(state.Sessions))
	for _, es := range state.Sessions {
		records = append(records, domain.SessionRecord{
			SessionID:      es.SessionID,
			DeviceKey:      es.DeviceKey,
			Pickle:         es.Session,
			LastReceivedTS: es.LastReceivedTS,
		})
	}
	return s.store.ReplaceSessions(records)
}

// --- helpers ---

// persistAccount writes the account pickle and its key. Caller holds s.mu.
func (s *Service) persistAccount() error {
	pickled, err := s.account.Pickle(s.pickleKey)
	if err != nil {
		return err
	}
	blob, err := json.Marshal(accountBlob{
		PickleKey: base64.StdEncoding.EncodeToString(s.pickleKey),
		Account:   pickled,
	})
	if err != nil {
		return err
	}
	return s.store.StoreAccount(string(blob))
}

// loadSession fetches and unpickles the named session for a device.
func (s *Service) loadSession(
	deviceKey domain.DeviceKey,
	sessionID domain.SessionID,
) (*crypto.Session, domain.SessionRecord, []byte, error) {
	records, err := s.store.GetSessionsForDevice(deviceKey)
	if err != nil {
		return nil, domain.SessionRecord{}, nil, err
	}
	s.mu.Lock()
	key := s.pickleKey
	s.mu.Unlock()

	for _, rec := range records {
		if rec.SessionID != sessionID {
			continue
		}
		sess, err := crypto.UnpickleSession(key, rec.Pickle)
		if err != nil {
			return nil, domain.SessionRecord{}, nil, err
		}
		return sess, rec, key, nil
	}
	return nil, domain.SessionRecord{}, nil, fmt.Errorf(
		"%w: session %s for device %s", domain.ErrUnknownSession, sessionID, deviceKey)
}

// saveSession pickles sess and stores it for deviceKey.
func (s *Service) saveSession(
	deviceKey domain.DeviceKey,
	sess *crypto.Session,
	key []byte,
	lastReceivedTS int64,
) error {
	pickled, err := sess.Pickle(key)
	if err != nil {
		return err
	}
	return s.store.StoreSession(deviceKey, domain.SessionRecord{
		SessionID:      sess.ID(),
		DeviceKey:      deviceKey,
		Pickle:         pickled,
		LastReceivedTS: lastReceivedTS,
	})
}

// Compile-time assertion that Service implements domain.DeviceService.
var _ domain.DeviceService = (*Service)(nil)
