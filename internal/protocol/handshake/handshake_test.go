package handshake_test

import (
	"errors"
	"testing"

	"peerlink/internal/crypto"
	"peerlink/internal/domain"
	"peerlink/internal/protocol/handshake"
)

func makeIdentity(t *testing.T, name string) domain.Identity {
	t.Helper()
	priv, pub, err := crypto.GenerateX25519()
	if err != nil {
		t.Fatalf("GenerateX25519: %v", err)
	}
	return domain.Identity{Priv: priv, Pub: pub, Name: name}
}

// runHandshake drives two machines to completion the way two connection
// loops would: both send hello, each consumes the other's hello and ack.
func runHandshake(t *testing.T, a, b *handshake.Machine) {
	t.Helper()

	helloA, err := a.Hello()
	if err != nil {
		t.Fatalf("a.Hello: %v", err)
	}
	helloB, err := b.Hello()
	if err != nil {
		t.Fatalf("b.Hello: %v", err)
	}

	ackA, err := a.OnHello(helloB)
	if err != nil {
		t.Fatalf("a.OnHello: %v", err)
	}
	ackB, err := b.OnHello(helloA)
	if err != nil {
		t.Fatalf("b.OnHello: %v", err)
	}

	if err := a.OnAck(ackB); err != nil {
		t.Fatalf("a.OnAck: %v", err)
	}
	if err := b.OnAck(ackA); err != nil {
		t.Fatalf("b.OnAck: %v", err)
	}
}

func TestBothSidesReachEstablished(t *testing.T) {
	alice := makeIdentity(t, "alice")
	bob := makeIdentity(t, "bob")
	a := handshake.New(alice)
	b := handshake.New(bob)

	runHandshake(t, a, b)

	if a.State() != handshake.Established || b.State() != handshake.Established {
		t.Fatalf("states: a=%s b=%s", a.State(), b.State())
	}
	if a.SessionKey() != b.SessionKey() {
		t.Fatal("session keys differ")
	}
	if a.Remote() != bob.ID() || b.Remote() != alice.ID() {
		t.Fatal("remote identities wrong")
	}
	if a.RemoteName() != "bob" || b.RemoteName() != "alice" {
		t.Fatalf("names: %q, %q", a.RemoteName(), b.RemoteName())
	}
}

func TestNonceRolesDiffer(t *testing.T) {
	a := handshake.New(makeIdentity(t, "a"))
	b := handshake.New(makeIdentity(t, "b"))
	runHandshake(t, a, b)

	na := a.Counter().Next()
	nb := b.Counter().Next()
	if na[0] == nb[0] {
		t.Fatal("both sides took the same nonce role")
	}
}

func TestAllZeroPublicKeyFails(t *testing.T) {
	m := handshake.New(makeIdentity(t, "a"))
	if _, err := m.Hello(); err != nil {
		t.Fatalf("Hello: %v", err)
	}

	var zero domain.Envelope
	zero.Type = domain.MsgHandshake
	if _, err := m.OnHello(zero); !errors.Is(err, domain.ErrInvalidPublicKey) {
		t.Fatalf("want ErrInvalidPublicKey, got %v", err)
	}
	if m.State() != handshake.Failed {
		t.Fatalf("state after bad key: %s", m.State())
	}
}

func TestTamperedAckFails(t *testing.T) {
	a := handshake.New(makeIdentity(t, "a"))
	b := handshake.New(makeIdentity(t, "b"))

	helloA, _ := a.Hello()
	helloB, _ := b.Hello()
	if _, err := a.OnHello(helloB); err != nil {
		t.Fatalf("a.OnHello: %v", err)
	}
	ackB, err := b.OnHello(helloA)
	if err != nil {
		t.Fatalf("b.OnHello: %v", err)
	}

	ackB.Tag[3] ^= 0x10
	if err := a.OnAck(ackB); !errors.Is(err, domain.ErrHandshakeFailed) {
		t.Fatalf("want ErrHandshakeFailed, got %v", err)
	}
	if a.State() != handshake.Failed {
		t.Fatalf("state after bad ack: %s", a.State())
	}
}

func TestAckBeforeKeyDerivedFails(t *testing.T) {
	m := handshake.New(makeIdentity(t, "a"))
	if err := m.OnAck(domain.Envelope{Type: domain.MsgHandshakeAck}); err == nil {
		t.Fatal("want error for ack in Initiated")
	}
	if m.State() != handshake.Failed {
		t.Fatalf("state: %s", m.State())
	}
}

func TestSelfConnectionRejected(t *testing.T) {
	id := makeIdentity(t, "a")
	m := handshake.New(id)
	if _, err := m.Hello(); err != nil {
		t.Fatalf("Hello: %v", err)
	}
	hello := domain.Envelope{Type: domain.MsgHandshake, Sender: id.ID()}
	if _, err := m.OnHello(hello); err == nil {
		t.Fatal("want error for self-connection")
	}
}
