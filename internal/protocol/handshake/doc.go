// Package handshake drives per-connection session establishment.
//
// Each side sends a plaintext hello (its public key rides the envelope
// sender field, the display name rides the payload), derives the session
// key from X25519 + HKDF on receipt of the remote hello, then proves
// possession of the derived key with an AEAD-sealed acknowledgement.
//
// States: Initiated -> AwaitingRemoteKey -> KeyDerived -> Established,
// with terminal Failed reachable from any non-terminal state. There are
// no retries inside one attempt; the caller tears the connection down on
// failure and may reattempt with a fresh connection.
package handshake
