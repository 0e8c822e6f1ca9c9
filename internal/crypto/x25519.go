package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"

	"peerlink/internal/domain"
	"peerlink/internal/util/memzero"
)

// sessionInfo labels the HKDF expansion so a session key can never be
// confused with a key derived for another purpose from the same secret.
const sessionInfo = "peerlink/session/v1"

// GenerateX25519 returns a fresh Curve25519 key pair.
// The private key is clamped per RFC 7748.
func GenerateX25519() (priv domain.X25519Private, pub domain.X25519Public, err error) {
	if _, err = rand.Read(priv[:]); err != nil {
		return
	}
	clamp(&priv)
	pb, err := curve25519.X25519(priv.Slice(), curve25519.Basepoint)
	if err != nil {
		return
	}
	copy(pub[:], pb)
	return
}

// DH computes the X25519 shared secret. It returns
// domain.ErrInvalidPublicKey when pub is a low-order point, which would
// yield an all-zero secret.
func DH(priv domain.X25519Private, pub domain.X25519Public) (out [32]byte, err error) {
	secret, err := curve25519.X25519(priv.Slice(), pub.Slice())
	if err != nil {
		return out, fmt.Errorf("%w: %v", domain.ErrInvalidPublicKey, err)
	}
	copy(out[:], secret)
	return out, nil
}

// DeriveSessionKey expands the raw ECDH secret into the symmetric
// session key with HKDF-SHA256. The caller's secret is wiped before
// returning, which is why the argument is a pointer.
func DeriveSessionKey(shared *[32]byte) domain.SessionKey {
	r := hkdf.New(sha256.New, shared[:], nil, []byte(sessionInfo))
	var key domain.SessionKey
	_, _ = io.ReadFull(r, key[:])
	memzero.Zero32(shared)
	return key
}

// GenerateGroupKey returns a fresh random 32-byte group key.
func GenerateGroupKey() (domain.SessionKey, error) {
	var key domain.SessionKey
	if _, err := rand.Read(key[:]); err != nil {
		return domain.SessionKey{}, err
	}
	return key, nil
}

func clamp(k *domain.X25519Private) {
	kb := k[:]
	kb[0] &= 248
	kb[31] &= 127
	kb[31] |= 64
}
