package wire_test

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"peerlink/internal/domain"
	"peerlink/internal/protocol/wire"
)

func sampleEnvelope() domain.Envelope {
	env := domain.Envelope{
		Type:       domain.MsgChat,
		Sequence:   42,
		Ciphertext: []byte{0xde, 0xad, 0xbe, 0xef},
	}
	env.Sender[0] = 0xAA
	env.Nonce[0] = 1
	env.Nonce[11] = 9
	env.Tag[0] = 0x77
	return env
}

func TestFrameRoundTrip(t *testing.T) {
	env := sampleEnvelope()

	var buf bytes.Buffer
	if err := wire.WriteFrame(&buf, env); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	got, err := wire.ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}

	if got.Type != env.Type || got.Sequence != env.Sequence {
		t.Fatalf("header mismatch: %+v", got)
	}
	if got.Sender != env.Sender || got.Nonce != env.Nonce || got.Tag != env.Tag {
		t.Fatal("fixed fields mismatch")
	}
	if !bytes.Equal(got.Ciphertext, env.Ciphertext) {
		t.Fatal("ciphertext mismatch")
	}
	if got.Group != nil {
		t.Fatal("unexpected group id")
	}
}

func TestFrameRoundTripWithGroup(t *testing.T) {
	env := sampleEnvelope()
	env.Type = domain.MsgGroupMessage
	gid := domain.GroupID{1, 2, 3, 4}
	env.Group = &gid

	var buf bytes.Buffer
	if err := wire.WriteFrame(&buf, env); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	got, err := wire.ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if got.Group == nil || *got.Group != gid {
		t.Fatalf("group id lost: %v", got.Group)
	}
}

func TestUnmarshalRejectsUnknownType(t *testing.T) {
	env := sampleEnvelope()
	body := wire.Marshal(env)
	body[0] = 0xFF
	if _, err := wire.Unmarshal(body); !errors.Is(err, domain.ErrMalformedEnvelope) {
		t.Fatalf("want ErrMalformedEnvelope, got %v", err)
	}
}

func TestUnmarshalRejectsLengthMismatch(t *testing.T) {
	body := wire.Marshal(sampleEnvelope())

	if _, err := wire.Unmarshal(body[:10]); !errors.Is(err, domain.ErrMalformedEnvelope) {
		t.Fatalf("short body: want ErrMalformedEnvelope, got %v", err)
	}
	if _, err := wire.Unmarshal(append(body, 0)); !errors.Is(err, domain.ErrMalformedEnvelope) {
		t.Fatalf("trailing byte: want ErrMalformedEnvelope, got %v", err)
	}
}

func TestReadFrameTruncatedMidFrame(t *testing.T) {
	var buf bytes.Buffer
	if err := wire.WriteFrame(&buf, sampleEnvelope()); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	trunc := buf.Bytes()[:buf.Len()-5]

	_, err := wire.ReadFrame(bytes.NewReader(trunc))
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("want ErrUnexpectedEOF, got %v", err)
	}
}

func TestReadFrameCleanEOF(t *testing.T) {
	_, err := wire.ReadFrame(bytes.NewReader(nil))
	if !errors.Is(err, io.EOF) {
		t.Fatalf("want io.EOF at stream end, got %v", err)
	}
}

func TestReadFrameRejectsOversizedLength(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0xFF, 0xFF, 0xFF, 0xFF})
	if _, err := wire.ReadFrame(&buf); !errors.Is(err, domain.ErrMalformedEnvelope) {
		t.Fatalf("want ErrMalformedEnvelope, got %v", err)
	}
}

func TestBackToBackFrames(t *testing.T) {
	a := sampleEnvelope()
	b := sampleEnvelope()
	b.Sequence = 43
	b.Ciphertext = []byte("second")

	var buf bytes.Buffer
	if err := wire.WriteFrame(&buf, a); err != nil {
		t.Fatalf("WriteFrame a: %v", err)
	}
	if err := wire.WriteFrame(&buf, b); err != nil {
		t.Fatalf("WriteFrame b: %v", err)
	}

	first, err := wire.ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame a: %v", err)
	}
	second, err := wire.ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame b: %v", err)
	}
	if first.Sequence != 42 || second.Sequence != 43 {
		t.Fatalf("frame order broken: %d, %d", first.Sequence, second.Sequence)
	}
}
