package crypto_test

import (
	"encoding/base64"
	"testing"

	"olmera/internal/crypto"
	"olmera/internal/domain"
)

func TestAccount_OneTimeKeys(t *testing.T) {
	acct := makeAccount(t, 3)

	keys := acct.OneTimeKeys()
	if len(keys) != 3 {
		t.Fatalf("got %d keys, want 3", len(keys))
	}
	seen := make(map[string]bool)
	for _, k := range keys {
		if k.ID == "" || k.Key == "" {
			t.Fatalf("key with empty field: %+v", k)
		}
		if seen[k.Key] {
			t.Fatalf("duplicate one-time key %s", k.Key)
		}
		seen[k.Key] = true
	}

	more, err := acct.GenerateOneTimeKeys(2)
	if err != nil {
		t.Fatalf("GenerateOneTimeKeys: %v", err)
	}
	if len(more) != 2 {
		t.Fatalf("got %d new keys, want 2", len(more))
	}
	if len(acct.OneTimeKeys()) != 5 {
		t.Fatalf("got %d keys after second batch, want 5", len(acct.OneTimeKeys()))
	}
}

func TestAccount_SignVerify(t *testing.T) {
	acct := makeAccount(t, 0)

	raw, err := base64.StdEncoding.DecodeString(acct.IdentityKeys().Ed25519)
	if err != nil {
		t.Fatalf("decode signing key: %v", err)
	}
	var pub domain.Ed25519Public
	copy(pub[:], raw)

	msg := []byte("device keys payload")
	sig := acct.Sign(msg)
	if !crypto.VerifyEd25519(pub, msg, sig) {
		t.Fatal("signature did not verify")
	}
	msg[0] ^= 0x01
	if crypto.VerifyEd25519(pub, msg, sig) {
		t.Fatal("signature verified over altered message")
	}
}

func TestAccount_PickleRoundTrip(t *testing.T) {
	acct := makeAccount(t, 2)

	key, err := crypto.NewPickleKey()
	if err != nil {
		t.Fatalf("NewPickleKey: %v", err)
	}
	pickled, err := acct.Pickle(key)
	if err != nil {
		t.Fatalf("Pickle: %v", err)
	}
	restored, err := crypto.UnpickleAccount(key, pickled)
	if err != nil {
		t.Fatalf("UnpickleAccount: %v", err)
	}

	if restored.IdentityKeys() != acct.IdentityKeys() {
		t.Fatalf("identity keys changed across pickle:\n  %+v\n  %+v",
			restored.IdentityKeys(), acct.IdentityKeys())
	}
	if got, want := len(restored.OneTimeKeys()), len(acct.OneTimeKeys()); got != want {
		t.Fatalf("got %d one-time keys, want %d", got, want)
	}

	// The restored account must still complete a handshake with a key
	// generated before pickling.
	alice := makeAccount(t, 0)
	otk := restored.OneTimeKeys()[0]
	out, err := crypto.NewOutboundSession(alice, restored.IdentityKeys().Curve25519, otk.Key)
	if err != nil {
		t.Fatalf("NewOutboundSession: %v", err)
	}
	ct, err := out.Encrypt([]byte("post-restore"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	_, got, err := crypto.NewInboundSession(restored, ct)
	if err != nil {
		t.Fatalf("NewInboundSession: %v", err)
	}
	if string(got) != "post-restore" {
		t.Fatalf("got %q", got)
	}
}
