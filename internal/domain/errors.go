package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Error taxonomy. Transport and parse errors are recovered at the frame
// boundary; handshake and group-distribution errors surface to the
// front end as events. Nothing is dropped without a logged signal.
var (
	// ErrInvalidPublicKey means the supplied bytes do not decode to a
	// usable curve point (wrong length, or a low-order point whose
	// shared secret would be all zeros).
	ErrInvalidPublicKey = errors.New("invalid public key")

	// ErrDecryptFailed covers tag mismatch and truncated ciphertext.
	// The offending frame is dropped; the session survives unless the
	// failure recurs.
	ErrDecryptFailed = errors.New("decryption failed")

	// ErrMalformedEnvelope is a local parse failure at the framer.
	ErrMalformedEnvelope = errors.New("malformed envelope")

	// ErrDuplicateSession rejects a second connection for a peer that
	// already has an established session. The existing session is kept.
	ErrDuplicateSession = errors.New("session already established for peer")

	// ErrSessionNotFound means no established session exists for the peer.
	ErrSessionNotFound = errors.New("no session for peer")

	// ErrHandshakeFailed marks a handshake that hit its terminal state:
	// timeout, invalid key, or a bad acknowledgement.
	ErrHandshakeFailed = errors.New("handshake failed")

	// ErrUntrustedSender rejects a group key relayed by anyone other
	// than the group's asserted creator.
	ErrUntrustedSender = errors.New("group key from untrusted sender")

	// ErrUnknownGroup means the local process holds no key for the group.
	ErrUnknownGroup = errors.New("unknown group")

	// ErrTransferAborted marks a transfer discarded before completion,
	// typically because the connection carrying it was lost.
	ErrTransferAborted = errors.New("transfer aborted")

	// ErrNonceReplayed rejects an inbound counter nonce at or below the
	// session's replay floor.
	ErrNonceReplayed = errors.New("nonce replayed")
)

// MemberUnreachableError reports group creation attempted with members
// that have no established session. The caller decides whether to
// proceed with the reachable subset or abort; that policy is explicit
// at the call site.
type MemberUnreachableError struct {
	Missing []PeerID
}

func (e *MemberUnreachableError) Error() string {
	ids := make([]string, len(e.Missing))
	for i, id := range e.Missing {
		ids[i] = id.Short()
	}
	return fmt.Sprintf("no established session with: %s", strings.Join(ids, ", "))
}
