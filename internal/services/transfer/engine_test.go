package transfer

import (
	"bytes"
	"crypto/rand"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"peerlink/internal/domain"
)

type sentPayload struct {
	t       domain.MsgType
	payload []byte
}

// captureSend runs BeginSend and collects every payload the engine
// streams, returning once the send goroutine reports completion.
func captureSend(t *testing.T, e *Engine, events *eventLog, path string) []sentPayload {
	t.Helper()
	var (
		mu   sync.Mutex
		sent []sentPayload
	)
	id, err := e.BeginSend(path, func(mt domain.MsgType, payload []byte) error {
		mu.Lock()
		sent = append(sent, sentPayload{mt, append([]byte(nil), payload...)})
		mu.Unlock()
		return nil
	})
	if err != nil {
		t.Fatalf("BeginSend: %v", err)
	}
	events.waitDone(t, id)
	mu.Lock()
	defer mu.Unlock()
	return sent
}

// eventLog records engine events and lets tests wait for a terminal one.
type eventLog struct {
	mu     sync.Mutex
	events []domain.Event
	ch     chan domain.Event
}

func newEventLog() *eventLog {
	return &eventLog{ch: make(chan domain.Event, 64)}
}

func (l *eventLog) emit(ev domain.Event) {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
	l.ch <- ev
}

func (l *eventLog) waitDone(t *testing.T, id domain.TransferID) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-l.ch:
			switch e := ev.(type) {
			case domain.TransferComplete:
				if e.ID == id {
					return
				}
			case domain.TransferFailed:
				if e.ID == id {
					t.Fatalf("transfer failed: %v", e.Err)
				}
			}
		case <-deadline:
			t.Fatalf("timed out waiting for transfer %x", id[:4])
		}
	}
}

func (l *eventLog) failures() []domain.TransferFailed {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []domain.TransferFailed
	for _, ev := range l.events {
		if f, ok := ev.(domain.TransferFailed); ok {
			out = append(out, f)
		}
	}
	return out
}

func writeTestFile(t *testing.T, dir, name string, size int) (string, []byte) {
	t.Helper()
	data := make([]byte, size)
	if _, err := rand.Read(data); err != nil {
		t.Fatalf("rand: %v", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path, data
}

func TestSendSplitsIntoChunks(t *testing.T) {
	dir := t.TempDir()
	path, _ := writeTestFile(t, dir, "blob.bin", 100*1024)

	log := newEventLog()
	e := NewEngine(filepath.Join(dir, "downloads"), 0, log.emit)
	sent := captureSend(t, e, log, path)

	if len(sent) != 5 {
		t.Fatalf("expected offer + 4 chunks, got %d payloads", len(sent))
	}
	if sent[0].t != domain.MsgFileOffer {
		t.Fatalf("first payload type = %v, want offer", sent[0].t)
	}
	o, err := parseOffer(sent[0].payload)
	if err != nil {
		t.Fatalf("parseOffer: %v", err)
	}
	if o.Total != 4 || o.ChunkSize != DefaultChunkSize || o.Size != 100*1024 {
		t.Fatalf("offer geometry = total %d chunk %d size %d", o.Total, o.ChunkSize, o.Size)
	}
	for i, want := range []int{32768, 32768, 32768, 4096} {
		_, _, _, data, err := parseChunk(sent[i+1].payload)
		if err != nil {
			t.Fatalf("parseChunk %d: %v", i, err)
		}
		if len(data) != want {
			t.Fatalf("chunk %d length = %d, want %d", i, len(data), want)
		}
	}
}

func TestReceiveOutOfOrder(t *testing.T) {
	dir := t.TempDir()
	path, content := writeTestFile(t, dir, "photo.jpg", 100*1024)

	sendLog := newEventLog()
	sender := NewEngine(dir, 0, sendLog.emit)
	sent := captureSend(t, sender, sendLog, path)

	downloads := filepath.Join(dir, "downloads")
	recvLog := newEventLog()
	recv := NewEngine(downloads, 0, recvLog.emit)

	var from domain.PeerID
	from[0] = 7
	id, err := recv.OnOffer(from, sent[0].payload)
	if err != nil {
		t.Fatalf("OnOffer: %v", err)
	}
	// Deliver the four chunks last to first.
	for i := len(sent) - 1; i >= 1; i-- {
		if err := recv.OnChunk(from, sent[i].payload); err != nil {
			t.Fatalf("OnChunk %d: %v", i, err)
		}
	}
	recvLog.waitDone(t, id)

	got, err := os.ReadFile(filepath.Join(downloads, "photo.jpg"))
	if err != nil {
		t.Fatalf("read result: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Fatalf("reassembled file differs from original")
	}
	if recv.Pending() != 0 {
		t.Fatalf("pending transfers = %d after completion", recv.Pending())
	}
}

func TestDuplicateNameGetsTimestampSuffix(t *testing.T) {
	dir := t.TempDir()
	downloads := filepath.Join(dir, "downloads")

	var from domain.PeerID
	for round := 0; round < 2; round++ {
		path, _ := writeTestFile(t, dir, "notes.txt", 500)
		sendLog := newEventLog()
		sender := NewEngine(dir, 0, sendLog.emit)
		sent := captureSend(t, sender, sendLog, path)

		recvLog := newEventLog()
		recv := NewEngine(downloads, 0, recvLog.emit)
		id, err := recv.OnOffer(from, sent[0].payload)
		if err != nil {
			t.Fatalf("round %d OnOffer: %v", round, err)
		}
		for _, p := range sent[1:] {
			if err := recv.OnChunk(from, p.payload); err != nil {
				t.Fatalf("round %d OnChunk: %v", round, err)
			}
		}
		recvLog.waitDone(t, id)
	}

	entries, err := os.ReadDir(downloads)
	if err != nil {
		t.Fatalf("read downloads: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 files in downloads, got %d", len(entries))
	}
	var suffixed bool
	for _, ent := range entries {
		name := ent.Name()
		if name == "notes.txt" {
			continue
		}
		if strings.HasPrefix(name, "notes_") && strings.HasSuffix(name, ".txt") {
			suffixed = true
		}
	}
	if !suffixed {
		t.Fatalf("second file was not timestamp suffixed: %v", entries)
	}
}

func TestAbortDiscardsPartialTransfer(t *testing.T) {
	dir := t.TempDir()
	path, _ := writeTestFile(t, dir, "big.dat", 100*1024)

	sendLog := newEventLog()
	sender := NewEngine(dir, 0, sendLog.emit)
	sent := captureSend(t, sender, sendLog, path)

	downloads := filepath.Join(dir, "downloads")
	recvLog := newEventLog()
	recv := NewEngine(downloads, 0, recvLog.emit)

	var from domain.PeerID
	from[0] = 9
	id, err := recv.OnOffer(from, sent[0].payload)
	if err != nil {
		t.Fatalf("OnOffer: %v", err)
	}
	for _, p := range sent[1:3] {
		if err := recv.OnChunk(from, p.payload); err != nil {
			t.Fatalf("OnChunk: %v", err)
		}
	}
	recv.AbortPeer(from)

	if recv.Pending() != 0 {
		t.Fatalf("pending transfers = %d after abort", recv.Pending())
	}
	failures := recvLog.failures()
	if len(failures) != 1 || failures[0].ID != id || !errors.Is(failures[0].Err, domain.ErrTransferAborted) {
		t.Fatalf("abort failures = %+v", failures)
	}
	if _, err := os.Stat(filepath.Join(downloads, "big.dat")); !os.IsNotExist(err) {
		t.Fatalf("aborted transfer left a file on disk")
	}
	// A late chunk for the aborted transfer is rejected.
	if err := recv.OnChunk(from, sent[3].payload); !errors.Is(err, domain.ErrMalformedEnvelope) {
		t.Fatalf("late chunk error = %v", err)
	}
}

func TestBeginSendRejectsMissingFile(t *testing.T) {
	log := newEventLog()
	e := NewEngine(t.TempDir(), 0, log.emit)
	if _, err := e.BeginSend(filepath.Join(t.TempDir(), "nope.bin"), nil); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestOfferRejectsHostileGeometry(t *testing.T) {
	log := newEventLog()
	e := NewEngine(t.TempDir(), 0, log.emit)
	var from domain.PeerID

	// A one-byte chunk size turns the claimed file size into a chunk
	// count, so the receiver would allocate bookkeeping for millions of
	// chunks from a single envelope.
	tiny := offer{
		ID:        domain.TransferID{1},
		Size:      50 << 20,
		ChunkSize: 1,
		Total:     50 << 20,
		Name:      "bomb.bin",
	}
	if _, err := e.OnOffer(from, marshalOffer(tiny)); !errors.Is(err, domain.ErrMalformedEnvelope) {
		t.Fatalf("tiny chunk size: want ErrMalformedEnvelope, got %v", err)
	}

	// A plausible chunk size with an absurd chunk count is rejected too.
	huge := offer{
		ID:        domain.TransferID{2},
		Size:      (int64(maxChunks) + 1) * DefaultChunkSize,
		ChunkSize: DefaultChunkSize,
		Total:     maxChunks + 1,
		Name:      "huge.bin",
	}
	if _, err := e.OnOffer(from, marshalOffer(huge)); !errors.Is(err, domain.ErrMalformedEnvelope) {
		t.Fatalf("excessive chunk count: want ErrMalformedEnvelope, got %v", err)
	}

	// A chunk size past the frame budget never reaches allocation.
	fat := offer{
		ID:        domain.TransferID{3},
		Size:      1 << 20,
		ChunkSize: maxChunkSize * 2,
		Total:     1,
		Name:      "fat.bin",
	}
	if _, err := e.OnOffer(from, marshalOffer(fat)); !errors.Is(err, domain.ErrMalformedEnvelope) {
		t.Fatalf("oversized chunk size: want ErrMalformedEnvelope, got %v", err)
	}

	if e.Pending() != 0 {
		t.Fatalf("pending = %d after rejected offers", e.Pending())
	}
}
