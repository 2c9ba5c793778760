package crypto

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"olmera/internal/domain"
	"olmera/internal/util/memzero"
)

const aeadKeySize = chacha20poly1305.KeySize

// maxSkip bounds how far Decrypt will advance the receive chain for a
// single message. The index arrives unauthenticated, so without a bound a
// forged ciphertext could demand an arbitrary number of KDF steps before
// the tag check rejects it.
const maxSkip = 1024

// Session is the ratchet state for one (local account, remote device) pair.
//
// The sending and receiving chains are seeded from the handshake root key;
// each message key is derived from the chain at its index and the chain
// advances past it, so a key is never reused. An outbound session keeps
// emitting pre-key ciphertexts until its first successful decrypt confirms
// the remote side holds the session.
type Session struct {
	st sessionState
}

type sessionState struct {
	ID        domain.SessionID `json:"id"`
	Initiator bool             `json:"initiator"`
	Confirmed bool             `json:"confirmed"`
	// Handshake publics, retained by the initiator until confirmation so
	// every pre-key ciphertext carries the same establishment material.
	Handshake *preKeyHandshake `json:"handshake,omitempty"`
	SendCK    []byte           `json:"send_ck"`
	SendN     uint32           `json:"send_n"`
	RecvCK    []byte           `json:"recv_ck"`
	RecvN     uint32           `json:"recv_n"`
}

type preKeyHandshake struct {
	IdentityKey  string `json:"identity_key"`
	EphemeralKey string `json:"ephemeral_key"`
	OneTimeKey   string `json:"one_time_key"`
}

// normalMessage is the decoded body of a normal ciphertext.
type normalMessage struct {
	N      uint32 `json:"n"`
	Cipher []byte `json:"ct"`
}

// NewOutboundSession establishes a session toward a remote device from its
// identity key and a claimed one-time key, both base64 Curve25519.
func NewOutboundSession(acct *Account, theirIdentityKey, theirOneTimeKey string) (*Session, error) {
	theirIdentity, err := DecodeCurve25519(theirIdentityKey)
	if err != nil {
		return nil, err
	}
	theirOneTime, err := DecodeCurve25519(theirOneTimeKey)
	if err != nil {
		return nil, err
	}

	ephPriv, ephPub, err := GenerateCurve25519()
	if err != nil {
		return nil, err
	}
	root, err := rootOutbound(acct.st.IdentityPriv, ephPriv, theirIdentity, theirOneTime)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedKey, err)
	}
	defer memzero.Zero(root)

	ours := acct.IdentityKeys().Curve25519
	eph := B64(ephPub.Slice())
	return &Session{st: sessionState{
		ID:        sessionIDFor(ours, eph, theirOneTimeKey),
		Initiator: true,
		Handshake: &preKeyHandshake{
			IdentityKey:  ours,
			EphemeralKey: eph,
			OneTimeKey:   theirOneTimeKey,
		},
		SendCK: chainSeed(root, "initiator"),
		RecvCK: chainSeed(root, "responder"),
	}}, nil
}

// NewInboundSession establishes a session from a pre-key ciphertext and
// decrypts the message it carries. The targeted one-time key is dropped
// from the account only after that message authenticates, so a corrupted
// delivery leaves the key in place for the sender's retry.
func NewInboundSession(acct *Account, ct domain.Ciphertext) (*Session, []byte, error) {
	p, err := parsePreKeyBody(ct.Body)
	if err != nil {
		return nil, nil, err
	}
	theirIdentity, err := DecodeCurve25519(p.IdentityKey)
	if err != nil {
		return nil, nil, err
	}
	theirEphemeral, err := DecodeCurve25519(p.EphemeralKey)
	if err != nil {
		return nil, nil, err
	}
	oneTimePub, err := DecodeCurve25519(p.OneTimeKey)
	if err != nil {
		return nil, nil, err
	}

	oneTimePriv, ok := acct.findOneTimeKey(oneTimePub)
	if !ok {
		return nil, nil, fmt.Errorf("%w: one-time key not known to this account", domain.ErrDecryptionFailed)
	}
	root, err := rootInbound(acct.st.IdentityPriv, oneTimePriv, theirIdentity, theirEphemeral)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", domain.ErrMalformedKey, err)
	}
	defer memzero.Zero(root)

	s := &Session{st: sessionState{
		ID:        sessionIDFor(p.IdentityKey, p.EphemeralKey, p.OneTimeKey),
		Initiator: false,
		Confirmed: true, // we hold proof the remote side has the session
		SendCK:    chainSeed(root, "responder"),
		RecvCK:    chainSeed(root, "initiator"),
	}}
	plaintext, err := s.Decrypt(ct)
	if err != nil {
		return nil, nil, err
	}
	acct.dropOneTimeKey(oneTimePub)
	return s, plaintext, nil
}

// ID returns the session identifier shared by both ends.
func (s *Session) ID() domain.SessionID { return s.st.ID }

// Confirmed reports whether the session has decrypted at least one message
// from the remote side.
func (s *Session) Confirmed() bool { return s.st.Confirmed }

// Encrypt seals plaintext and advances the sending chain. Unconfirmed
// outbound sessions produce pre-key ciphertexts carrying the handshake.
func (s *Session) Encrypt(plaintext []byte) (domain.Ciphertext, error) {
	ck, mk := kdfCK(s.st.SendCK)
	defer memzero.Zero(mk)

	sealed, err := sealMessage(mk, s.st.ID, s.st.SendN, plaintext)
	if err != nil {
		return domain.Ciphertext{}, err
	}
	inner, err := encodeNormalBody(normalMessage{N: s.st.SendN, Cipher: sealed})
	if err != nil {
		return domain.Ciphertext{}, err
	}
	s.st.SendCK = ck
	s.st.SendN++

	if s.st.Initiator && !s.st.Confirmed {
		body, err := encodePreKeyBody(preKeyPayload{
			IdentityKey:  s.st.Handshake.IdentityKey,
			EphemeralKey: s.st.Handshake.EphemeralKey,
			OneTimeKey:   s.st.Handshake.OneTimeKey,
			Message:      inner,
		})
		if err != nil {
			return domain.Ciphertext{}, err
		}
		return domain.Ciphertext{Type: domain.MessageTypePreKey, Body: body}, nil
	}
	return domain.Ciphertext{Type: domain.MessageTypeNormal, Body: inner}, nil
}

// Decrypt opens a ciphertext against the receiving chain. Messages may
// skip forward up to maxSkip indices; a replayed or stale index fails; the
// chain only commits after the authentication tag verifies.
func (s *Session) Decrypt(ct domain.Ciphertext) ([]byte, error) {
	body := ct.Body
	if ct.Type == domain.MessageTypePreKey {
		p, err := parsePreKeyBody(ct.Body)
		if err != nil {
			return nil, err
		}
		if sessionIDFor(p.IdentityKey, p.EphemeralKey, p.OneTimeKey) != s.st.ID {
			return nil, fmt.Errorf("%w: pre-key message for a different session", domain.ErrDecryptionFailed)
		}
		body = p.Message
	}

	msg, err := parseNormalBody(body)
	if err != nil {
		return nil, err
	}
	if msg.N < s.st.RecvN {
		return nil, fmt.Errorf("%w: message index %d already consumed", domain.ErrDecryptionFailed, msg.N)
	}
	if msg.N-s.st.RecvN > maxSkip {
		return nil, fmt.Errorf("%w: message index %d skips too far ahead", domain.ErrDecryptionFailed, msg.N)
	}

	// Advance a copy of the chain so a bad tag leaves state untouched.
	ck := append([]byte(nil), s.st.RecvCK...)
	var mk []byte
	for n := s.st.RecvN; ; n++ {
		ck, mk = kdfCK(ck)
		if n == msg.N {
			break
		}
		memzero.Zero(mk)
	}
	defer memzero.Zero(mk)

	plaintext, err := openMessage(mk, s.st.ID, msg.N, msg.Cipher)
	if err != nil {
		return nil, err
	}
	s.st.RecvCK = ck
	s.st.RecvN = msg.N + 1
	if !s.st.Confirmed {
		s.st.Confirmed = true
		s.st.Handshake = nil
	}
	return plaintext, nil
}

// Pickle serialises the session sealed under key.
func (s *Session) Pickle(key []byte) (string, error) {
	raw, err := json.Marshal(s.st)
	if err != nil {
		return "", err
	}
	return Pickle(key, raw)
}

// UnpickleSession restores a session from a pickle produced by Pickle.
func UnpickleSession(key []byte, pickle string) (*Session, error) {
	raw, err := Unpickle(key, pickle)
	if err != nil {
		return nil, err
	}
	var st sessionState
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("session pickle: %w", err)
	}
	return &Session{st: st}, nil
}

// --- chain and message helpers ---

func chainSeed(root []byte, label string) []byte {
	seed := make([]byte, 32)
	_, _ = io.ReadFull(hkdf.New(sha256.New, root, nil, []byte("olmera-chain|"+label)), seed)
	return seed
}

// kdfCK derives the next chain key and the message key at the current index.
func kdfCK(ck []byte) (nextCK, mk []byte) {
	r := hkdf.New(sha256.New, ck, nil, []byte("olmera-ck"))
	nextCK = make([]byte, 32)
	mk = make([]byte, aeadKeySize)
	_, _ = io.ReadFull(r, nextCK)
	_, _ = io.ReadFull(r, mk)
	return
}

func sealMessage(mk []byte, id domain.SessionID, n uint32, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(mk)
	if err != nil {
		return nil, err
	}
	return aead.Seal(nil, messageNonce(n), plaintext, messageAD(id, n)), nil
}

func openMessage(mk []byte, id domain.SessionID, n uint32, cipher []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(mk)
	if err != nil {
		return nil, err
	}
	plaintext, err := aead.Open(nil, messageNonce(n), cipher, messageAD(id, n))
	if err != nil {
		return nil, fmt.Errorf("%w: authentication tag mismatch", domain.ErrDecryptionFailed)
	}
	return plaintext, nil
}

// messageNonce binds the message index into the nonce; keys are unique per
// index so the remaining bytes stay zero.
func messageNonce(n uint32) []byte {
	nonce := make([]byte, chacha20poly1305.NonceSize)
	binary.BigEndian.PutUint32(nonce[chacha20poly1305.NonceSize-4:], n)
	return nonce
}

func messageAD(id domain.SessionID, n uint32) []byte {
	ad := make([]byte, 0, len(id)+4)
	ad = append(ad, id...)
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], n)
	return append(ad, b[:]...)
}

func encodeNormalBody(m normalMessage) (string, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

func parseNormalBody(body string) (normalMessage, error) {
	var m normalMessage
	raw, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		return m, fmt.Errorf("%w: %v", domain.ErrDecryptionFailed, err)
	}
	if err := json.Unmarshal(raw, &m); err != nil {
		return m, fmt.Errorf("%w: %v", domain.ErrDecryptionFailed, err)
	}
	return m, nil
}
