package crypto_test

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"

	"olmera/internal/crypto"
	"olmera/internal/domain"
)

// makeAccount returns a fresh account with n one-time keys.
func makeAccount(t *testing.T, n int) *crypto.Account {
	t.Helper()
	acct, err := crypto.NewAccount()
	if err != nil {
		t.Fatalf("NewAccount: %v", err)
	}
	if n > 0 {
		if _, err := acct.GenerateOneTimeKeys(n); err != nil {
			t.Fatalf("GenerateOneTimeKeys: %v", err)
		}
	}
	return acct
}

// establish runs the full outbound/inbound handshake between two fresh
// accounts and returns both sessions plus the first decrypted payload.
func establish(t *testing.T, msg []byte) (outbound, inbound *crypto.Session) {
	t.Helper()
	alice := makeAccount(t, 0)
	bob := makeAccount(t, 1)
	otk := bob.OneTimeKeys()[0]

	out, err := crypto.NewOutboundSession(alice, bob.IdentityKeys().Curve25519, otk.Key)
	if err != nil {
		t.Fatalf("NewOutboundSession: %v", err)
	}
	ct, err := out.Encrypt(msg)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if ct.Type != domain.MessageTypePreKey {
		t.Fatalf("first ciphertext type = %d, want pre-key", ct.Type)
	}

	in, got, err := crypto.NewInboundSession(bob, ct)
	if err != nil {
		t.Fatalf("NewInboundSession: %v", err)
	}
	if !bytes.Equal(got, msg) {
		t.Fatalf("got %q, want %q", got, msg)
	}
	return out, in
}

func TestSession_RoundTrip(t *testing.T) {
	out, in := establish(t, []byte("hi"))

	if out.ID() != in.ID() {
		t.Fatalf("session IDs diverge: %s vs %s", out.ID(), in.ID())
	}

	// Reply confirms the outbound side and flips it to normal messages.
	reply, err := in.Encrypt([]byte("hello back"))
	if err != nil {
		t.Fatalf("Encrypt reply: %v", err)
	}
	if reply.Type != domain.MessageTypeNormal {
		t.Fatalf("reply type = %d, want normal", reply.Type)
	}
	got, err := out.Decrypt(reply)
	if err != nil {
		t.Fatalf("Decrypt reply: %v", err)
	}
	if string(got) != "hello back" {
		t.Fatalf("got %q", got)
	}
	if !out.Confirmed() {
		t.Fatal("outbound session not confirmed after first decrypt")
	}

	next, err := out.Encrypt([]byte("third"))
	if err != nil {
		t.Fatalf("Encrypt after confirm: %v", err)
	}
	if next.Type != domain.MessageTypeNormal {
		t.Fatalf("confirmed session still emits pre-key ciphertexts")
	}
}

func TestSession_BothSidesDeriveSameID(t *testing.T) {
	alice := makeAccount(t, 0)
	bob := makeAccount(t, 1)
	otk := bob.OneTimeKeys()[0]

	out, err := crypto.NewOutboundSession(alice, bob.IdentityKeys().Curve25519, otk.Key)
	if err != nil {
		t.Fatalf("NewOutboundSession: %v", err)
	}
	ct, err := out.Encrypt([]byte("x"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	id, err := crypto.PreKeySessionID(ct.Body)
	if err != nil {
		t.Fatalf("PreKeySessionID: %v", err)
	}
	if id != out.ID() {
		t.Fatalf("PreKeySessionID = %s, want %s", id, out.ID())
	}
}

func TestSession_ReplayRejected(t *testing.T) {
	alice := makeAccount(t, 0)
	bob := makeAccount(t, 1)
	otk := bob.OneTimeKeys()[0]

	out, err := crypto.NewOutboundSession(alice, bob.IdentityKeys().Curve25519, otk.Key)
	if err != nil {
		t.Fatalf("NewOutboundSession: %v", err)
	}
	ct, err := out.Encrypt([]byte("once"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	in, _, err := crypto.NewInboundSession(bob, ct)
	if err != nil {
		t.Fatalf("NewInboundSession: %v", err)
	}
	if _, err := in.Decrypt(ct); !errors.Is(err, domain.ErrDecryptionFailed) {
		t.Fatalf("replayed Decrypt err = %v, want ErrDecryptionFailed", err)
	}
}

func TestSession_SkipsForward(t *testing.T) {
	out, in := establish(t, []byte("first"))

	// Messages 1 and 2; deliver only 2.
	if _, err := out.Encrypt([]byte("lost")); err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	ct, err := out.Encrypt([]byte("arrives"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	got, err := in.Decrypt(ct)
	if err != nil {
		t.Fatalf("Decrypt skipped-forward: %v", err)
	}
	if string(got) != "arrives" {
		t.Fatalf("got %q", got)
	}
}

func TestSession_TamperedCiphertextFails(t *testing.T) {
	out, in := establish(t, []byte("first"))

	ct, err := out.Encrypt([]byte("secret"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	body := []byte(ct.Body)
	body[len(body)/2] ^= 0x01
	ct.Body = string(body)

	if _, err := in.Decrypt(ct); !errors.Is(err, domain.ErrDecryptionFailed) {
		t.Fatalf("tampered Decrypt err = %v, want ErrDecryptionFailed", err)
	}
}

func TestSession_PickleRoundTrip(t *testing.T) {
	out, in := establish(t, []byte("first"))

	key, err := crypto.NewPickleKey()
	if err != nil {
		t.Fatalf("NewPickleKey: %v", err)
	}
	pickled, err := in.Pickle(key)
	if err != nil {
		t.Fatalf("Pickle: %v", err)
	}
	restored, err := crypto.UnpickleSession(key, pickled)
	if err != nil {
		t.Fatalf("UnpickleSession: %v", err)
	}
	if restored.ID() != in.ID() {
		t.Fatalf("restored ID %s, want %s", restored.ID(), in.ID())
	}

	ct, err := out.Encrypt([]byte("after restore"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	got, err := restored.Decrypt(ct)
	if err != nil {
		t.Fatalf("restored Decrypt: %v", err)
	}
	if string(got) != "after restore" {
		t.Fatalf("got %q", got)
	}
}

func TestNewOutboundSession_MalformedKeys(t *testing.T) {
	alice := makeAccount(t, 0)

	if _, err := crypto.NewOutboundSession(alice, "not base64!!", "also not"); !errors.Is(err, domain.ErrMalformedKey) {
		t.Fatalf("err = %v, want ErrMalformedKey", err)
	}
	if _, err := crypto.NewOutboundSession(alice, crypto.B64([]byte("short")), crypto.B64([]byte("short"))); !errors.Is(err, domain.ErrMalformedKey) {
		t.Fatalf("err = %v, want ErrMalformedKey", err)
	}
}

func TestNewInboundSession_UnknownOneTimeKey(t *testing.T) {
	alice := makeAccount(t, 0)
	bob := makeAccount(t, 1)
	otk := bob.OneTimeKeys()[0]

	out, err := crypto.NewOutboundSession(alice, bob.IdentityKeys().Curve25519, otk.Key)
	if err != nil {
		t.Fatalf("NewOutboundSession: %v", err)
	}
	ct, err := out.Encrypt([]byte("x"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	// A different account never published that one-time key.
	carol := makeAccount(t, 1)
	if _, _, err := crypto.NewInboundSession(carol, ct); !errors.Is(err, domain.ErrDecryptionFailed) {
		t.Fatalf("err = %v, want ErrDecryptionFailed", err)
	}
}

// corruptCarriedMessage flips one ciphertext bit inside a pre-key body
// while leaving the handshake fields intact.
func corruptCarriedMessage(t *testing.T, body string) string {
	t.Helper()
	raw, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		t.Fatalf("decode body: %v", err)
	}
	var outer map[string]string
	if err := json.Unmarshal(raw, &outer); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	innerRaw, err := base64.StdEncoding.DecodeString(outer["message"])
	if err != nil {
		t.Fatalf("decode carried message: %v", err)
	}
	var inner struct {
		N      uint32 `json:"n"`
		Cipher []byte `json:"ct"`
	}
	if err := json.Unmarshal(innerRaw, &inner); err != nil {
		t.Fatalf("unmarshal carried message: %v", err)
	}
	inner.Cipher[0] ^= 0x01
	newInner, err := json.Marshal(inner)
	if err != nil {
		t.Fatalf("marshal carried message: %v", err)
	}
	outer["message"] = base64.StdEncoding.EncodeToString(newInner)
	newOuter, err := json.Marshal(outer)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	return base64.StdEncoding.EncodeToString(newOuter)
}

func TestNewInboundSession_FailureKeepsOneTimeKey(t *testing.T) {
	alice := makeAccount(t, 0)
	bob := makeAccount(t, 1)
	otk := bob.OneTimeKeys()[0]

	out, err := crypto.NewOutboundSession(alice, bob.IdentityKeys().Curve25519, otk.Key)
	if err != nil {
		t.Fatalf("NewOutboundSession: %v", err)
	}
	ct, err := out.Encrypt([]byte("hello"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	corrupted := ct
	corrupted.Body = corruptCarriedMessage(t, ct.Body)
	if _, _, err := crypto.NewInboundSession(bob, corrupted); !errors.Is(err, domain.ErrDecryptionFailed) {
		t.Fatalf("corrupted err = %v, want ErrDecryptionFailed", err)
	}
	if got := len(bob.OneTimeKeys()); got != 1 {
		t.Fatalf("corrupted delivery consumed the one-time key (%d left)", got)
	}

	// The sender's retry with the intact ciphertext must still establish.
	in, got, err := crypto.NewInboundSession(bob, ct)
	if err != nil {
		t.Fatalf("NewInboundSession retry: %v", err)
	}
	if string(got) != "hello" {
		t.Fatalf("got %q", got)
	}
	if in.ID() != out.ID() {
		t.Fatalf("session IDs diverge: %s vs %s", in.ID(), out.ID())
	}
	if got := len(bob.OneTimeKeys()); got != 0 {
		t.Fatalf("successful establishment left the one-time key (%d left)", got)
	}
}

func TestSession_ForwardSkipBounded(t *testing.T) {
	_, in := establish(t, []byte("first"))

	forged, err := json.Marshal(struct {
		N      uint32 `json:"n"`
		Cipher []byte `json:"ct"`
	}{N: 1 << 30, Cipher: []byte("garbage")})
	if err != nil {
		t.Fatalf("marshal forged body: %v", err)
	}
	ct := domain.Ciphertext{
		Type: domain.MessageTypeNormal,
		Body: base64.StdEncoding.EncodeToString(forged),
	}
	// Must be rejected before any chain derivation happens.
	if _, err := in.Decrypt(ct); !errors.Is(err, domain.ErrDecryptionFailed) {
		t.Fatalf("err = %v, want ErrDecryptionFailed", err)
	}
}
