package crypto

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"olmera/internal/domain"
	"olmera/internal/util/memzero"
)

// preKeyPayload is the decoded body of a pre-key ciphertext: the handshake
// publics plus the inner message in normal format.
type preKeyPayload struct {
	IdentityKey  string `json:"identity_key"`  // initiator Curve25519 identity
	EphemeralKey string `json:"ephemeral_key"` // initiator ephemeral
	OneTimeKey   string `json:"one_time_key"`  // responder one-time key consumed
	Message      string `json:"message"`
}

// sessionIDFor derives the shared session ID from the handshake publics.
// Both sides compute the same value, as does any duplicate copy of the
// same pre-key message.
func sessionIDFor(identityKey, ephemeralKey, oneTimeKey string) domain.SessionID {
	h := sha256.New()
	h.Write([]byte(identityKey))
	h.Write([]byte(ephemeralKey))
	h.Write([]byte(oneTimeKey))
	return domain.SessionID(B64(h.Sum(nil)))
}

// PreKeySessionID parses a pre-key ciphertext body far enough to learn
// which session it would establish, without touching any key material.
func PreKeySessionID(body string) (domain.SessionID, error) {
	p, err := parsePreKeyBody(body)
	if err != nil {
		return "", err
	}
	return sessionIDFor(p.IdentityKey, p.EphemeralKey, p.OneTimeKey), nil
}

func parsePreKeyBody(body string) (preKeyPayload, error) {
	var p preKeyPayload
	raw, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		return p, fmt.Errorf("%w: %v", domain.ErrDecryptionFailed, err)
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, fmt.Errorf("%w: %v", domain.ErrDecryptionFailed, err)
	}
	if p.IdentityKey == "" || p.EphemeralKey == "" || p.OneTimeKey == "" {
		return p, fmt.Errorf("%w: incomplete pre-key message", domain.ErrDecryptionFailed)
	}
	return p, nil
}

func encodePreKeyBody(p preKeyPayload) (string, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// rootOutbound runs the triple DH as the initiator:
// DH(IKa, OTb) || DH(EKa, IKb) || DH(EKa, OTb).
func rootOutbound(
	ourIdentityPriv domain.Curve25519Private,
	ourEphemeralPriv domain.Curve25519Private,
	theirIdentity domain.Curve25519Public,
	theirOneTime domain.Curve25519Public,
) ([]byte, error) {
	dh1, err := DH(ourIdentityPriv, theirOneTime)
	if err != nil {
		return nil, err
	}
	dh2, err := DH(ourEphemeralPriv, theirIdentity)
	if err != nil {
		return nil, err
	}
	dh3, err := DH(ourEphemeralPriv, theirOneTime)
	if err != nil {
		return nil, err
	}
	return rootFromShares(dh1, dh2, dh3), nil
}

// rootInbound runs the same agreement from the responder's side:
// DH(OTb, IKa) || DH(IKb, EKa) || DH(OTb, EKa).
func rootInbound(
	ourIdentityPriv domain.Curve25519Private,
	oneTimePriv domain.Curve25519Private,
	theirIdentity domain.Curve25519Public,
	theirEphemeral domain.Curve25519Public,
) ([]byte, error) {
	dh1, err := DH(oneTimePriv, theirIdentity)
	if err != nil {
		return nil, err
	}
	dh2, err := DH(ourIdentityPriv, theirEphemeral)
	if err != nil {
		return nil, err
	}
	dh3, err := DH(oneTimePriv, theirEphemeral)
	if err != nil {
		return nil, err
	}
	return rootFromShares(dh1, dh2, dh3), nil
}

func rootFromShares(shares ...[32]byte) []byte {
	concat := make([]byte, 0, 32*len(shares))
	for _, s := range shares {
		concat = append(concat, s[:]...)
	}
	root := make([]byte, 32)
	_, _ = io.ReadFull(hkdf.New(sha256.New, concat, nil, []byte("olmera-3dh")), root)
	memzero.Zero(concat)
	return root
}
