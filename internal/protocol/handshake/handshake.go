package handshake

import (
	"bytes"
	"fmt"

	"peerlink/internal/crypto"
	"peerlink/internal/domain"
	"peerlink/internal/util/memzero"
)

// State is the handshake position for one connection.
type State uint8

const (
	Initiated        State = iota // created, hello not yet sent
	AwaitingRemoteKey             // hello sent, waiting for the remote public key
	KeyDerived                    // session key derived, ack sent, waiting for theirs
	Established                   // both sides proved key possession
	Failed                        // terminal; connection must be torn down
)

func (s State) String() string {
	switch s {
	case Initiated:
		return "initiated"
	case AwaitingRemoteKey:
		return "awaiting-remote-key"
	case KeyDerived:
		return "key-derived"
	case Established:
		return "established"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// ackLabel binds the acknowledgement payload to this protocol step.
const ackLabel = "peerlink/ack/v1"

// maxNameLen bounds the display name carried in the hello.
const maxNameLen = 64

// Machine is the per-connection handshake state. It is owned by one
// connection goroutine and never shared.
type Machine struct {
	identity domain.Identity
	state    State

	remote     domain.PeerID
	remoteName string

	key     domain.SessionKey
	counter *crypto.NonceCounter // outbound nonces; handed to the session on success
	seq     uint64               // outbound envelope sequence
}

// New returns a machine in Initiated for the given local identity.
func New(id domain.Identity) *Machine {
	return &Machine{identity: id}
}

// State reports the current position.
func (m *Machine) State() State { return m.state }

// Remote returns the peer identity asserted by the remote hello.
// Valid once the state has passed AwaitingRemoteKey.
func (m *Machine) Remote() domain.PeerID { return m.remote }

// RemoteName returns the display name from the remote hello.
func (m *Machine) RemoteName() string { return m.remoteName }

// SessionKey returns the derived key. Valid only in Established.
func (m *Machine) SessionKey() domain.SessionKey { return m.key }

// Counter releases the outbound nonce counter to the session so session
// traffic continues the nonce sequence the ack started.
func (m *Machine) Counter() *crypto.NonceCounter { return m.counter }

// NextSequence releases the outbound envelope sequence to the session.
func (m *Machine) NextSequence() uint64 { return m.seq }

// Hello produces the plaintext hello envelope and moves to
// AwaitingRemoteKey.
func (m *Machine) Hello() (domain.Envelope, error) {
	if m.state != Initiated {
		return domain.Envelope{}, fmt.Errorf("%w: hello in state %s", domain.ErrHandshakeFailed, m.state)
	}
	env := domain.Envelope{
		Type:       domain.MsgHandshake,
		Sender:     m.identity.ID(),
		Sequence:   m.seq,
		Ciphertext: []byte(m.identity.Name),
	}
	m.seq++
	m.state = AwaitingRemoteKey
	return env, nil
}

// OnHello consumes the remote hello: validates the asserted public key,
// derives the session key, and returns the AEAD-sealed acknowledgement.
// Moves to KeyDerived on success, Failed otherwise.
func (m *Machine) OnHello(env domain.Envelope) (domain.Envelope, error) {
	if m.state != AwaitingRemoteKey {
		return domain.Envelope{}, m.fail(fmt.Errorf("%w: hello in state %s", domain.ErrHandshakeFailed, m.state))
	}
	if len(env.Ciphertext) > maxNameLen {
		return domain.Envelope{}, m.fail(fmt.Errorf("%w: display name too long", domain.ErrHandshakeFailed))
	}
	if env.Sender == m.identity.ID() {
		return domain.Envelope{}, m.fail(fmt.Errorf("%w: connected to self", domain.ErrHandshakeFailed))
	}

	shared, err := crypto.DH(m.identity.Priv, domain.X25519Public(env.Sender))
	if err != nil {
		return domain.Envelope{}, m.fail(err)
	}
	m.key = crypto.DeriveSessionKey(&shared)
	m.remote = env.Sender
	m.remoteName = string(env.Ciphertext)
	m.counter = crypto.NewNonceCounter(m.role())

	// The ack is the first use of the session key: it proves possession
	// by sealing a fixed label plus the remote identity.
	payload := make([]byte, 0, len(ackLabel)+32)
	payload = append(payload, ackLabel...)
	payload = append(payload, m.remote[:]...)

	ack := domain.Envelope{
		Type:     domain.MsgHandshakeAck,
		Sender:   m.identity.ID(),
		Sequence: m.seq,
		Nonce:    m.counter.Next(),
	}
	ct, tag, err := crypto.Seal(m.key, ack.Nonce, payload, ack.AssociatedData())
	if err != nil {
		return domain.Envelope{}, m.fail(err)
	}
	ack.Ciphertext, ack.Tag = ct, tag
	m.seq++
	m.state = KeyDerived
	return ack, nil
}

// OnAck verifies the remote acknowledgement and moves to Established.
// Any decryption failure or payload mismatch is terminal.
func (m *Machine) OnAck(env domain.Envelope) error {
	if m.state != KeyDerived {
		return m.fail(fmt.Errorf("%w: ack in state %s", domain.ErrHandshakeFailed, m.state))
	}
	if env.Sender != m.remote {
		return m.fail(fmt.Errorf("%w: ack sender changed mid-handshake", domain.ErrHandshakeFailed))
	}

	plain, err := crypto.Open(m.key, env.Nonce, env.Ciphertext, env.Tag, env.AssociatedData())
	if err != nil {
		return m.fail(fmt.Errorf("%w: acknowledgement: %v", domain.ErrHandshakeFailed, err))
	}
	want := make([]byte, 0, len(ackLabel)+32)
	want = append(want, ackLabel...)
	want = append(want, m.identity.Pub[:]...)
	if !bytes.Equal(plain, want) {
		return m.fail(fmt.Errorf("%w: acknowledgement payload mismatch", domain.ErrHandshakeFailed))
	}

	m.state = Established
	return nil
}

// Fail forces the terminal state, wiping the derived key. Used by the
// owner on timeout or teardown.
func (m *Machine) Fail() {
	_ = m.fail(domain.ErrHandshakeFailed)
}

// role picks the counter-nonce role byte: the lexicographically larger
// public key takes RoleHigh. Both sides compute the same split, so the
// shared key's nonce space can never collide between directions.
func (m *Machine) role() byte {
	if bytes.Compare(m.identity.Pub[:], m.remote[:]) > 0 {
		return crypto.RoleHigh
	}
	return crypto.RoleLow
}

func (m *Machine) fail(err error) error {
	if m.state != Established {
		memzero.Zero(m.key[:])
	}
	m.state = Failed
	return err
}
