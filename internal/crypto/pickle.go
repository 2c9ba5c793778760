package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/scrypt"

	"olmera/internal/domain"
)

const (
	// The current supported version of the pickle blob format.
	pickleFormatVersion = 1

	// PickleKeySize is the length of a generated pickle key in bytes.
	PickleKeySize = 32
)

// blob is the serialised structure holding the ciphertext and parameters.
// Scrypt fields are present only for passphrase-sealed blobs.
type blob struct {
	V      int    `json:"v"`
	Salt   []byte `json:"salt"`
	Nonce  []byte `json:"nonce"`
	N      int    `json:"scrypt_N,omitempty"`
	R      int    `json:"scrypt_r,omitempty"`
	P      int    `json:"scrypt_p,omitempty"`
	Cipher []byte `json:"cipher"`
}

// NewPickleKey returns a fresh random pickle key.
func NewPickleKey() ([]byte, error) {
	key := make([]byte, PickleKeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}

// Pickle seals raw under key and returns an opaque base64 string.
// The AEAD key is derived per-blob with HKDF over a random salt.
func Pickle(key, raw []byte) (string, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	aeadKey := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, key, salt, []byte("olmera-pickle")), aeadKey); err != nil {
		return "", err
	}
	return seal(blob{V: pickleFormatVersion, Salt: salt}, aeadKey, raw)
}

// Unpickle opens a pickle produced by Pickle with the same key.
func Unpickle(key []byte, pickle string) ([]byte, error) {
	bl, err := parseBlob(pickle)
	if err != nil {
		return nil, err
	}
	aeadKey := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, key, bl.Salt, []byte("olmera-pickle")), aeadKey); err != nil {
		return nil, err
	}
	return open(bl, aeadKey)
}

// SealWithPassphrase protects raw with a passphrase-derived key.
// Used for exported snapshots written outside the session store.
func SealWithPassphrase(passphrase string, raw []byte) (string, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	N, r, p := scryptParamsDefault()
	aeadKey, err := scrypt.Key([]byte(passphrase), salt, N, r, p, chacha20poly1305.KeySize)
	if err != nil {
		return "", err
	}
	return seal(blob{V: pickleFormatVersion, Salt: salt, N: N, R: r, P: p}, aeadKey, raw)
}

// OpenWithPassphrase reverses SealWithPassphrase.
func OpenWithPassphrase(passphrase, sealed string) ([]byte, error) {
	bl, err := parseBlob(sealed)
	if err != nil {
		return nil, err
	}
	aeadKey, err := scrypt.Key([]byte(passphrase), bl.Salt, bl.N, bl.R, bl.P, chacha20poly1305.KeySize)
	if err != nil {
		return nil, err
	}
	return open(bl, aeadKey)
}

func seal(bl blob, aeadKey, raw []byte) (string, error) {
	aead, err := chacha20poly1305.New(aeadKey)
	if err != nil {
		return "", err
	}
	bl.Nonce = make([]byte, aead.NonceSize())
	if _, err := rand.Read(bl.Nonce); err != nil {
		return "", err
	}
	bl.Cipher = aead.Seal(nil, bl.Nonce, raw, bl.Salt)
	out, err := json.Marshal(bl)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(out), nil
}

func open(bl blob, aeadKey []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(aeadKey)
	if err != nil {
		return nil, err
	}
	raw, err := aead.Open(nil, bl.Nonce, bl.Cipher, bl.Salt)
	if err != nil {
		return nil, fmt.Errorf("%w: wrong pickle key or corrupted pickle", domain.ErrDecryptionFailed)
	}
	return raw, nil
}

func parseBlob(pickle string) (blob, error) {
	var bl blob
	raw, err := base64.StdEncoding.DecodeString(pickle)
	if err != nil {
		return bl, fmt.Errorf("%w: %v", domain.ErrDecryptionFailed, err)
	}
	if err := json.Unmarshal(raw, &bl); err != nil {
		return bl, fmt.Errorf("%w: %v", domain.ErrDecryptionFailed, err)
	}
	if bl.V > pickleFormatVersion {
		return bl, fmt.Errorf("unsupported pickle version %d", bl.V)
	}
	return bl, nil
}

// Tunables for scrypt key derivation.
func scryptParamsDefault() (N, r, p int) { return 1 << 15, 8, 1 }
