package registry

import (
	"errors"
	"net"
	"sync"
	"testing"

	"peerlink/internal/crypto"
	"peerlink/internal/domain"
	"peerlink/internal/protocol/wire"
)

func testSession(t *testing.T, b byte) *Session {
	t.Helper()
	var peer domain.PeerID
	peer[0] = b
	key := domain.SessionKey{b}
	return NewSession(peer, "peer", key, nil, crypto.NewNonceCounter(crypto.RoleHigh), 0)
}

func TestRegisterLookupRemove(t *testing.T) {
	r := New()
	s := testSession(t, 1)

	if err := r.Register(s); err != nil {
		t.Fatalf("Register: %v", err)
	}
	got, err := r.Lookup(s.Peer())
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if got != s {
		t.Fatal("Lookup returned a different session")
	}

	if removed := r.Remove(s.Peer()); removed != s {
		t.Fatal("Remove returned a different session")
	}
	if _, err := r.Lookup(s.Peer()); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("want ErrSessionNotFound, got %v", err)
	}
}

func TestDuplicateSessionRejected(t *testing.T) {
	r := New()
	if err := r.Register(testSession(t, 2)); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register(testSession(t, 2)); !errors.Is(err, domain.ErrDuplicateSession) {
		t.Fatalf("want ErrDuplicateSession, got %v", err)
	}
	if r.Len() != 1 {
		t.Fatalf("Len = %d, want 1", r.Len())
	}
}

func TestRemoveWipesKey(t *testing.T) {
	r := New()
	s := testSession(t, 3)
	if err := r.Register(s); err != nil {
		t.Fatalf("Register: %v", err)
	}
	r.Remove(s.Peer())
	if s.Key() != (domain.SessionKey{}) {
		t.Fatal("session key not wiped on removal")
	}
}

func TestRemoveAbsentPeerIsNoop(t *testing.T) {
	r := New()
	var id domain.PeerID
	id[0] = 0xEE
	if got := r.Remove(id); got != nil {
		t.Fatalf("Remove absent = %v, want nil", got)
	}
}

func TestConcurrentRegisterAndLookup(t *testing.T) {
	r := New()
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(b byte) {
			defer wg.Done()
			s := testSession(t, b)
			if err := r.Register(s); err != nil {
				t.Errorf("Register %d: %v", b, err)
				return
			}
			if _, err := r.Lookup(s.Peer()); err != nil {
				t.Errorf("Lookup %d: %v", b, err)
			}
		}(byte(i))
	}
	wg.Wait()
	if r.Len() != 32 {
		t.Fatalf("Len = %d, want 32", r.Len())
	}
}

func TestSendSealedAndOpen(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	key := domain.SessionKey{42}
	var a, b domain.PeerID
	a[0], b[0] = 1, 2

	sender := NewSession(b, "b", key, client, crypto.NewNonceCounter(crypto.RoleHigh), 5)
	receiver := NewSession(a, "a", key, server, crypto.NewNonceCounter(crypto.RoleLow), 0)

	go func() {
		if err := sender.SendSealed(domain.MsgChat, a, nil, []byte("hello")); err != nil {
			t.Errorf("SendSealed: %v", err)
		}
	}()

	env, err := wire.ReadFrame(server)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if env.Sequence != 5 {
		t.Fatalf("sequence = %d, want 5", env.Sequence)
	}
	plain, err := receiver.Open(env)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if string(plain) != "hello" {
		t.Fatalf("plaintext = %q", plain)
	}

	// The same envelope again must hit the replay floor.
	if _, err := receiver.Open(env); !errors.Is(err, domain.ErrNonceReplayed) {
		t.Fatalf("want ErrNonceReplayed, got %v", err)
	}
}

func TestOpenRejectsRelabeledEnvelope(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	key := domain.SessionKey{17}
	var a, b domain.PeerID
	a[0], b[0] = 1, 2

	sender := NewSession(b, "b", key, client, crypto.NewNonceCounter(crypto.RoleHigh), 0)
	receiver := NewSession(a, "a", key, server, crypto.NewNonceCounter(crypto.RoleLow), 0)

	go func() {
		if err := sender.SendSealed(domain.MsgChat, a, nil, []byte("hi")); err != nil {
			t.Errorf("SendSealed: %v", err)
		}
	}()
	env, err := wire.ReadFrame(server)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}

	// A chat frame relabeled as a disconnect must not authenticate.
	relabeled := env
	relabeled.Type = domain.MsgDisconnect
	if _, err := receiver.Open(relabeled); !errors.Is(err, domain.ErrDecryptFailed) {
		t.Fatalf("relabeled type: want ErrDecryptFailed, got %v", err)
	}

	// Nor may the sender field be swapped in transit.
	swapped := env
	swapped.Sender = b
	if _, err := receiver.Open(swapped); !errors.Is(err, domain.ErrDecryptFailed) {
		t.Fatalf("swapped sender: want ErrDecryptFailed, got %v", err)
	}

	// The untouched envelope still opens.
	plain, err := receiver.Open(env)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if string(plain) != "hi" {
		t.Fatalf("plaintext = %q", plain)
	}
}
