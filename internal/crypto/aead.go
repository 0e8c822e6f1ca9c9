package crypto

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"

	"peerlink/internal/domain"
)

// Roles prefix counter nonces so the two ends of a session, which share
// one key, can never collide. The lexicographically larger public key
// takes RoleHigh.
const (
	RoleHigh byte = 1
	RoleLow  byte = 2
)

// Seal encrypts plaintext under key, returning ciphertext and tag
// separately to match the wire envelope layout. The nonce must be
// unique for this key; callers obtain it from a NonceCounter or
// RandomNonce per the scope's contract.
func Seal(key domain.SessionKey, nonce [domain.NonceSize]byte, plaintext, ad []byte) (ct []byte, tag [domain.TagSize]byte, err error) {
	aead, err := chacha20poly1305.New(key.Slice())
	if err != nil {
		return nil, tag, err
	}
	sealed := aead.Seal(nil, nonce[:], plaintext, ad)
	n := len(sealed) - domain.TagSize
	copy(tag[:], sealed[n:])
	return sealed[:n], tag, nil
}

// Open decrypts and verifies. Tag mismatch and truncated input both
// come back as domain.ErrDecryptFailed, never a panic or garbage
// plaintext.
func Open(key domain.SessionKey, nonce [domain.NonceSize]byte, ct []byte, tag [domain.TagSize]byte, ad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key.Slice())
	if err != nil {
		return nil, err
	}
	sealed := make([]byte, 0, len(ct)+domain.TagSize)
	sealed = append(sealed, ct...)
	sealed = append(sealed, tag[:]...)
	plain, err := aead.Open(nil, nonce[:], sealed, ad)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDecryptFailed, err)
	}
	return plain, nil
}

// NonceCounter yields structurally unique nonces for one direction of a
// session: one role byte, three zero bytes, then a big-endian 64-bit
// counter. The counter is owned by the session's connection context and
// never accessed concurrently.
type NonceCounter struct {
	role byte
	n    uint64
}

// NewNonceCounter returns a counter for the given role byte.
func NewNonceCounter(role byte) *NonceCounter { return &NonceCounter{role: role} }

// Next returns the next nonce and advances the counter.
func (c *NonceCounter) Next() (nonce [domain.NonceSize]byte) {
	nonce[0] = c.role
	binary.BigEndian.PutUint64(nonce[4:], c.n)
	c.n++
	return nonce
}

// CounterValue reports the counter encoded in a received nonce, for
// replay-floor checks on the inbound path.
func CounterValue(nonce [domain.NonceSize]byte) (role byte, n uint64) {
	return nonce[0], binary.BigEndian.Uint64(nonce[4:])
}

// RandomNonce returns 12 random bytes. Used only where a key has many
// senders (group traffic), where no counter can be coordinated.
func RandomNonce() (nonce [domain.NonceSize]byte, err error) {
	_, err = rand.Read(nonce[:])
	return nonce, err
}
