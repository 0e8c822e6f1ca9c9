package domain

// MsgType tags the wire envelope. The set is closed: dispatch switches
// over it exhaustively and unknown values are rejected at the framer.
type MsgType uint8

const (
	MsgHandshake    MsgType = 1 // plaintext hello: public key + display name
	MsgHandshakeAck MsgType = 2 // AEAD under the derived session key (key-possession proof)
	MsgChat         MsgType = 3
	MsgGroupKey     MsgType = 4 // group key wrapped under the recipient's session key
	MsgGroupMessage MsgType = 5
	MsgFileOffer    MsgType = 6 // transfer metadata: name, size, chunk count, digest
	MsgFileChunk    MsgType = 7
	MsgDisconnect   MsgType = 8 // graceful teardown notice
)

// Valid reports whether t is a known envelope type.
func (t MsgType) Valid() bool { return t >= MsgHandshake && t <= MsgDisconnect }

func (t MsgType) String() string {
	switch t {
	case MsgHandshake:
		return "handshake"
	case MsgHandshakeAck:
		return "handshake-ack"
	case MsgChat:
		return "chat"
	case MsgGroupKey:
		return "group-key"
	case MsgGroupMessage:
		return "group-message"
	case MsgFileOffer:
		return "file-offer"
	case MsgFileChunk:
		return "file-chunk"
	case MsgDisconnect:
		return "disconnect"
	}
	return "unknown"
}

// NonceSize and TagSize are fixed by ChaCha20-Poly1305.
const (
	NonceSize = 12
	TagSize   = 16
)

// Envelope is the wire unit carrying one encrypted message or file chunk.
//
// A (key, nonce) pair is used at most once. Session traffic enforces
// this with a role-prefixed monotonic counter; group traffic uses
// random nonces because a group key has many senders.
type Envelope struct {
	Type       MsgType
	Sender     PeerID
	Sequence   uint64 // per-connection outbound counter
	Nonce      [NonceSize]byte
	Ciphertext []byte
	Tag        [TagSize]byte
	Group      *GroupID // set on group-addressed traffic only
}

// AssociatedData returns the envelope metadata that rides outside the
// ciphertext but must still be authenticated: type tag, sender, and
// group ID when present. Sealing and opening both bind it, so an
// on-path attacker cannot relabel a frame's type or redirect its group
// without failing the tag check. Sequence is excluded: group envelopes
// are sealed once and restamped per connection when forwarded.
func (e *Envelope) AssociatedData() []byte {
	buf := make([]byte, 0, 1+32+16)
	buf = append(buf, byte(e.Type))
	buf = append(buf, e.Sender[:]...)
	if e.Group != nil {
		buf = append(buf, e.Group[:]...)
	}
	return buf
}
