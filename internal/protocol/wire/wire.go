package wire

import (
	"encoding/binary"
	"fmt"
	"io"

	"peerlink/internal/domain"
)

const (
	// FlagGroup marks an envelope addressed to a group.
	FlagGroup byte = 0x01

	// fixedLen is the body size before the optional group ID and the
	// variable ciphertext: type+flags+sender+sequence+nonce+ctlen+tag.
	fixedLen = 1 + 1 + 32 + 8 + domain.NonceSize + 4 + domain.TagSize

	// MaxFrameSize bounds a hostile length prefix. Large enough for a
	// 32 KiB chunk with headroom; configuration may shrink chunks but
	// never grow them past this.
	MaxFrameSize = 1 << 20
)

// Marshal serializes env into a frame body (without the length prefix).
func Marshal(env domain.Envelope) []byte {
	n := fixedLen + len(env.Ciphertext)
	if env.Group != nil {
		n += 16
	}
	buf := make([]byte, 0, n)

	var flags byte
	if env.Group != nil {
		flags |= FlagGroup
	}
	buf = append(buf, byte(env.Type), flags)
	buf = append(buf, env.Sender[:]...)
	buf = binary.BigEndian.AppendUint64(buf, env.Sequence)
	buf = append(buf, env.Nonce[:]...)
	if env.Group != nil {
		buf = append(buf, env.Group[:]...)
	}
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(env.Ciphertext)))
	buf = append(buf, env.Ciphertext...)
	buf = append(buf, env.Tag[:]...)
	return buf
}

// Unmarshal parses a frame body. Every inconsistency comes back as
// domain.ErrMalformedEnvelope with detail; partial input never panics.
func Unmarshal(body []byte) (domain.Envelope, error) {
	var env domain.Envelope
	if len(body) < fixedLen {
		return env, fmt.Errorf("%w: body %d bytes, want at least %d", domain.ErrMalformedEnvelope, len(body), fixedLen)
	}

	env.Type = domain.MsgType(body[0])
	if !env.Type.Valid() {
		return env, fmt.Errorf("%w: unknown type %d", domain.ErrMalformedEnvelope, body[0])
	}
	flags := body[1]
	if flags&^FlagGroup != 0 {
		return env, fmt.Errorf("%w: unknown flags %#x", domain.ErrMalformedEnvelope, flags)
	}
	off := 2
	copy(env.Sender[:], body[off:])
	off += 32
	env.Sequence = binary.BigEndian.Uint64(body[off:])
	off += 8
	copy(env.Nonce[:], body[off:])
	off += domain.NonceSize

	if flags&FlagGroup != 0 {
		if len(body) < off+16+4+domain.TagSize {
			return env, fmt.Errorf("%w: truncated group id", domain.ErrMalformedEnvelope)
		}
		var gid domain.GroupID
		copy(gid[:], body[off:])
		env.Group = &gid
		off += 16
	}

	ctLen := int(binary.BigEndian.Uint32(body[off:]))
	off += 4
	if ctLen > MaxFrameSize {
		return env, fmt.Errorf("%w: ciphertext length %d exceeds limit", domain.ErrMalformedEnvelope, ctLen)
	}
	if len(body) != off+ctLen+domain.TagSize {
		return env, fmt.Errorf("%w: body %d bytes, want %d", domain.ErrMalformedEnvelope, len(body), off+ctLen+domain.TagSize)
	}
	env.Ciphertext = append([]byte(nil), body[off:off+ctLen]...)
	copy(env.Tag[:], body[off+ctLen:])
	return env, nil
}

// WriteFrame writes the length prefix and body to w.
func WriteFrame(w io.Writer, env domain.Envelope) error {
	body := Marshal(env)
	if len(body) > MaxFrameSize {
		return fmt.Errorf("%w: frame %d bytes exceeds limit", domain.ErrMalformedEnvelope, len(body))
	}
	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(body)))
	if _, err := w.Write(prefix[:]); err != nil {
		return err
	}
	_, err := w.Write(body)
	return err
}

// ReadFrame blocks until one complete frame is available and parses it.
// io.EOF is returned untouched when the stream ends cleanly between
// frames; an EOF mid-frame becomes io.ErrUnexpectedEOF.
func ReadFrame(r io.Reader) (domain.Envelope, error) {
	var prefix [4]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return domain.Envelope{}, err
	}
	n := binary.BigEndian.Uint32(prefix[:])
	if n == 0 || n > MaxFrameSize {
		return domain.Envelope{}, fmt.Errorf("%w: frame length %d", domain.ErrMalformedEnvelope, n)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return domain.Envelope{}, err
	}
	return Unmarshal(body)
}
