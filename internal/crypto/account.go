package crypto

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"olmera/internal/domain"
)

// Account is the local device's long-term identity plus its pool of
// unpublished one-time keys. It is mutated whenever keys are generated or
// an inbound session consumes a one-time key; the owner is responsible for
// re-pickling after every mutation.
type Account struct {
	st accountState
}

type oneTimePair struct {
	Priv domain.Curve25519Private `json:"priv"`
	Pub  domain.Curve25519Public  `json:"pub"`
}

// accountState is the pickled form.
type accountState struct {
	IdentityPriv domain.Curve25519Private `json:"identity_priv"`
	IdentityPub  domain.Curve25519Public  `json:"identity_pub"`
	SigningPriv  domain.Ed25519Private    `json:"signing_priv"`
	SigningPub   domain.Ed25519Public     `json:"signing_pub"`
	OneTimeKeys  map[string]oneTimePair   `json:"one_time_keys"`
}

// NewAccount generates a fresh identity.
func NewAccount() (*Account, error) {
	xPriv, xPub, err := GenerateCurve25519()
	if err != nil {
		return nil, err
	}
	edPriv, edPub, err := GenerateEd25519()
	if err != nil {
		return nil, err
	}
	return &Account{st: accountState{
		IdentityPriv: xPriv,
		IdentityPub:  xPub,
		SigningPriv:  edPriv,
		SigningPub:   edPub,
		OneTimeKeys:  make(map[string]oneTimePair),
	}}, nil
}

// IdentityKeys returns the public identity keys in base64.
func (a *Account) IdentityKeys() domain.IdentityKeys {
	return domain.IdentityKeys{
		Curve25519: B64(a.st.IdentityPub.Slice()),
		Ed25519:    B64(a.st.SigningPub.Slice()),
	}
}

// Sign signs msg with the account's Ed25519 key.
func (a *Account) Sign(msg []byte) []byte {
	return SignEd25519(a.st.SigningPriv, msg)
}

// GenerateOneTimeKeys adds n fresh keys to the unpublished pool and
// returns their public halves.
func (a *Account) GenerateOneTimeKeys(n int) ([]domain.OneTimeKey, error) {
	out := make([]domain.OneTimeKey, 0, n)
	for i := 0; i < n; i++ {
		priv, pub, err := GenerateCurve25519()
		if err != nil {
			return nil, err
		}
		id := uuid.NewString()
		a.st.OneTimeKeys[id] = oneTimePair{Priv: priv, Pub: pub}
		out = append(out, domain.OneTimeKey{ID: id, Key: B64(pub.Slice())})
	}
	return out, nil
}

// OneTimeKeys lists the unpublished public one-time keys, sorted by ID so
// callers see a stable order.
func (a *Account) OneTimeKeys() []domain.OneTimeKey {
	out := make([]domain.OneTimeKey, 0, len(a.st.OneTimeKeys))
	for id, pair := range a.st.OneTimeKeys {
		out = append(out, domain.OneTimeKey{ID: id, Key: B64(pair.Pub.Slice())})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// findOneTimeKey returns the private half of the pair whose public half
// matches, without removing it from the pool.
func (a *Account) findOneTimeKey(pub domain.Curve25519Public) (domain.Curve25519Private, bool) {
	for _, pair := range a.st.OneTimeKeys {
		if pair.Pub == pub {
			return pair.Priv, true
		}
	}
	return domain.Curve25519Private{}, false
}

// dropOneTimeKey removes the pair whose public half matches. Called once
// the key's session has authenticated its first message.
func (a *Account) dropOneTimeKey(pub domain.Curve25519Public) {
	for id, pair := range a.st.OneTimeKeys {
		if pair.Pub == pub {
			delete(a.st.OneTimeKeys, id)
			return
		}
	}
}

// Pickle serialises the account sealed under key.
func (a *Account) Pickle(key []byte) (string, error) {
	raw, err := json.Marshal(a.st)
	if err != nil {
		return "", err
	}
	return Pickle(key, raw)
}

// UnpickleAccount restores an account from a pickle produced by Pickle.
func UnpickleAccount(key []byte, pickle string) (*Account, error) {
	raw, err := Unpickle(key, pickle)
	if err != nil {
		return nil, err
	}
	var st accountState
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("account pickle: %w", err)
	}
	if st.OneTimeKeys == nil {
		st.OneTimeKeys = make(map[string]oneTimePair)
	}
	return &Account{st: st}, nil
}
