package domain

import "encoding/hex"

// X25519Public is a Curve25519 public key.
type X25519Public [32]byte

func (p X25519Public) Slice() []byte { return p[:] }

// X25519Private is a Curve25519 private key.
type X25519Private [32]byte

func (k X25519Private) Slice() []byte { return k[:] }

// SessionKey is a symmetric key derived per connection (or generated per
// group) and used for ChaCha20-Poly1305 traffic under that scope only.
type SessionKey [32]byte

func (k SessionKey) Slice() []byte { return k[:] }

// PeerID identifies a peer by its long-term X25519 public key.
type PeerID [32]byte

func (id PeerID) Slice() []byte { return id[:] }

// Short returns an 8-byte hex prefix for logs and the CLI.
func (id PeerID) Short() string { return hex.EncodeToString(id[:8]) }

func (id PeerID) String() string { return hex.EncodeToString(id[:]) }

// GroupID identifies a group; 16 random bytes (a UUID) chosen by the creator.
type GroupID [16]byte

func (g GroupID) Slice() []byte { return g[:] }

func (g GroupID) String() string { return hex.EncodeToString(g[:]) }

// TransferID identifies one chunked file transfer; 16 random bytes
// chosen by the sender. A restarted transfer gets a fresh ID.
type TransferID [16]byte

func (t TransferID) String() string { return hex.EncodeToString(t[:]) }

// Identity is a peer's long-term key pair plus a display name. The
// private scalar never leaves the owning process.
type Identity struct {
	Priv X25519Private
	Pub  X25519Public
	Name string
}

// ID returns the identity's public key as a PeerID.
func (i Identity) ID() PeerID { return PeerID(i.Pub) }

// Group is a symmetric-key chat scope. The key is generated once by the
// creator and never rotated; membership is fixed at creation.
type Group struct {
	ID      GroupID
	Name    string
	Key     SessionKey
	Creator PeerID
	Members []PeerID
}

// IsMember reports whether id is in the creator-asserted member list.
func (g *Group) IsMember(id PeerID) bool {
	for _, m := range g.Members {
		if m == id {
			return true
		}
	}
	return false
}
