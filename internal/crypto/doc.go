// Package crypto exposes the primitives used by the peerlink core.
//
// Contents
//
//   - X25519 key generation, clamping and Diffie-Hellman (GenerateX25519, DH)
//   - Session-key derivation from the ECDH secret (DeriveSessionKey)
//   - ChaCha20-Poly1305 seal/open with the tag split out to match the
//     wire envelope (Seal, Open)
//   - Nonce sources: a role-prefixed monotonic counter for session
//     traffic and crypto/rand for group traffic (NonceCounter, RandomNonce)
//   - Short public-key fingerprints for display/logging (Fingerprint)
//
// # Notes
//
// All key material uses fixed-size array types from internal/domain.
// Callers should treat returned secrets as sensitive and rely on
// memzero when practical to reduce lifetime in memory.
package crypto
