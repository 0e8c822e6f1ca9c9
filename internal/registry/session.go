package registry

import (
	"fmt"
	"net"
	"sync"

	"peerlink/internal/crypto"
	"peerlink/internal/domain"
	"peerlink/internal/protocol/wire"
	"peerlink/internal/util/memzero"
)

// Session is the per-connection state for one established peer channel.
// Exactly one session exists per live connection; its key is never
// derived twice for the same connection.
type Session struct {
	peer domain.PeerID
	name string
	key  domain.SessionKey
	conn net.Conn

	// Outbound state, serialized by mu: envelope sequence, nonce
	// counter, and frame writes interleave atomically so two goroutines
	// sending on the same session cannot reuse a nonce or tear a frame.
	mu      sync.Mutex
	seq     uint64
	counter *crypto.NonceCounter

	// Inbound replay floor, owned by the connection's read loop.
	inboundSeen bool
	inboundMax  uint64
}

// NewSession binds an established handshake result to its connection.
func NewSession(peer domain.PeerID, name string, key domain.SessionKey, conn net.Conn, counter *crypto.NonceCounter, nextSeq uint64) *Session {
	return &Session{
		peer:    peer,
		name:    name,
		key:     key,
		conn:    conn,
		counter: counter,
		seq:     nextSeq,
	}
}

// Peer returns the remote identity as asserted during the handshake.
func (s *Session) Peer() domain.PeerID { return s.peer }

// Name returns the remote display name.
func (s *Session) Name() string { return s.name }

// Key exposes the session key to the group manager for key wrapping.
func (s *Session) Key() domain.SessionKey { return s.key }

// Conn returns the underlying connection, for teardown.
func (s *Session) Conn() net.Conn { return s.conn }

// SendSealed seals plaintext under the session key with the next
// counter nonce, binding the envelope metadata as associated data, and
// writes the frame. Safe for concurrent use.
func (s *Session) SendSealed(t domain.MsgType, sender domain.PeerID, group *domain.GroupID, plaintext []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	env := domain.Envelope{
		Type:     t,
		Sender:   sender,
		Sequence: s.seq,
		Nonce:    s.counter.Next(),
		Group:    group,
	}
	ct, tag, err := crypto.Seal(s.key, env.Nonce, plaintext, env.AssociatedData())
	if err != nil {
		return err
	}
	env.Ciphertext, env.Tag = ct, tag
	s.seq++
	return wire.WriteFrame(s.conn, env)
}

// Forward writes an already-sealed envelope (group traffic, whose
// ciphertext is produced once under the group key) with this
// connection's next sequence number. Safe for concurrent use.
func (s *Session) Forward(env domain.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	env.Sequence = s.seq
	s.seq++
	return wire.WriteFrame(s.conn, env)
}

// Open decrypts a session-sealed inbound envelope, verifying its
// metadata as associated data and enforcing the counter-nonce replay
// floor. Called only from the owning read loop.
func (s *Session) Open(env domain.Envelope) ([]byte, error) {
	_, n := crypto.CounterValue(env.Nonce)
	if s.inboundSeen && n <= s.inboundMax {
		return nil, fmt.Errorf("%w: counter %d at or below floor %d", domain.ErrNonceReplayed, n, s.inboundMax)
	}
	plain, err := crypto.Open(s.key, env.Nonce, env.Ciphertext, env.Tag, env.AssociatedData())
	if err != nil {
		return nil, err
	}
	s.inboundSeen = true
	s.inboundMax = n
	return plain, nil
}

// release wipes the session key. Called by the registry on removal.
func (s *Session) release() {
	memzero.Zero32((*[32]byte)(&s.key))
}
