package store

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"

	"peerlink/internal/domain"
)

const idFile = "identity.enc"

// The current supported version of the encrypted blob format on disk.
const keystoreFormatVersion = 1

// ErrWrongPassphrase is returned when the passphrase is incorrect or
// the ciphertext has been modified or corrupted.
var ErrWrongPassphrase = errors.New("wrong passphrase or corrupted identity")

// ErrNoIdentity is returned by Load when no identity file exists yet.
var ErrNoIdentity = errors.New("no identity found, run init first")

// IdentityStore persists the local keypair and display name.
type IdentityStore struct {
	dir string
	mu  sync.Mutex
}

// NewIdentityStore stores the identity under dir.
func NewIdentityStore(dir string) *IdentityStore { return &IdentityStore{dir: dir} }

// Exists reports whether an identity file is already on disk.
func (s *IdentityStore) Exists() bool {
	_, err := os.Stat(filepath.Join(s.dir, idFile))
	return err == nil
}

// Save seals the identity under passphrase and writes it to disk.
func (s *IdentityStore) Save(passphrase string, id domain.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := json.Marshal(id)
	if err != nil {
		return err
	}
	N, r, p := scryptParamsDefault()
	sealed, err := encrypt(passphrase, raw, N, r, p)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(s.dir, idFile), sealed, 0o600)
}

// Load reads and unseals the stored identity.
func (s *IdentityStore) Load(passphrase string) (domain.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sealed, err := os.ReadFile(filepath.Join(s.dir, idFile))
	if errors.Is(err, os.ErrNotExist) {
		return domain.Identity{}, ErrNoIdentity
	}
	if err != nil {
		return domain.Identity{}, err
	}
	raw, err := decrypt(passphrase, sealed)
	if err != nil {
		return domain.Identity{}, err
	}
	var id domain.Identity
	if err := json.Unmarshal(raw, &id); err != nil {
		return domain.Identity{}, err
	}
	return id, nil
}

// blob is the on-disk JSON structure holding the ciphertext and KDF
// parameters.
type blob struct {
	V      int    `json:"v"`
	Salt   []byte `json:"salt"`
	N      int    `json:"scrypt_N"`
	R      int    `json:"scrypt_r"`
	P      int    `json:"scrypt_p"`
	Cipher []byte `json:"cipher"`
}

// encrypt derives a key from passphrase and seals raw into a JSON blob.
func encrypt(passphrase string, raw []byte, N, r, p int) ([]byte, error) {
	var salt [16]byte
	if _, err := rand.Read(salt[:]); err != nil {
		return nil, err
	}
	key, err := scrypt.Key([]byte(passphrase), salt[:], N, r, p, chacha20poly1305.KeySize)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	var nonce [12]byte // zero nonce; salt-bound key guarantees uniqueness
	ct := aead.Seal(nil, nonce[:], raw, salt[:])

	return json.Marshal(blob{
		V:      keystoreFormatVersion,
		Salt:   salt[:],
		N:      N,
		R:      r,
		P:      p,
		Cipher: ct,
	})
}

// decrypt opens the JSON blob using a key derived from passphrase.
func decrypt(passphrase string, b []byte) ([]byte, error) {
	var bl blob
	if err := json.Unmarshal(b, &bl); err != nil {
		return nil, err
	}
	if bl.V > keystoreFormatVersion {
		return nil, fmt.Errorf("unsupported keystore version %d", bl.V)
	}

	key, err := scrypt.Key([]byte(passphrase), bl.Salt, bl.N, bl.R, bl.P, chacha20poly1305.KeySize)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	var nonce [12]byte
	pt, err := aead.Open(nil, nonce[:], bl.Cipher, bl.Salt)
	if err != nil {
		return nil, ErrWrongPassphrase
	}
	return pt, nil
}

// Tunables for scrypt key derivation.
func scryptParamsDefault() (N, r, p int) { return 1 << 15, 8, 1 }
