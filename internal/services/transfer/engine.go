package transfer

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"peerlink/internal/domain"
)

// DefaultChunkSize is the configured default; the last chunk of a file
// may be shorter.
const DefaultChunkSize = 32 * 1024

// SendFunc delivers one plaintext payload of the given envelope type to
// the target channel. The engine calls it in sequence order; the
// transport need not preserve that order for chunks.
type SendFunc func(t domain.MsgType, payload []byte) error

// EmitFunc publishes a progress or lifecycle event to the front end.
type EmitFunc func(domain.Event)

// Engine tracks chunked sends and receives. Inbound state is shared
// across connection read loops and guarded by one lock.
type Engine struct {
	dir       string
	chunkSize uint32
	emit      EmitFunc

	mu      sync.Mutex
	inbound map[domain.TransferID]*inboundTransfer
}

type inboundTransfer struct {
	offer    offer
	from     domain.PeerID
	chunks   [][]byte
	received uint32
	done     int64 // bytes stored so far
}

// NewEngine returns an engine writing completed files into dir.
// A chunkSize of zero selects DefaultChunkSize.
func NewEngine(dir string, chunkSize uint32, emit EmitFunc) *Engine {
	if chunkSize == 0 {
		chunkSize = DefaultChunkSize
	}
	if chunkSize < minChunkSize {
		chunkSize = minChunkSize
	}
	if chunkSize > maxChunkSize {
		chunkSize = maxChunkSize
	}
	if emit == nil {
		emit = func(domain.Event) {}
	}
	return &Engine{
		dir:       dir,
		chunkSize: chunkSize,
		emit:      emit,
		inbound:   make(map[domain.TransferID]*inboundTransfer),
	}
}

// ChunkSize reports the configured outbound chunk size.
func (e *Engine) ChunkSize() uint32 { return e.chunkSize }

// BeginSend validates the file, assigns a transfer ID, and streams the
// offer and chunks through send on a new goroutine. Chunks go out in
// sequence order; failures surface as a TransferFailed event and stop
// the stream (no resume — a retry is a new transfer).
func (e *Engine) BeginSend(path string, send SendFunc) (domain.TransferID, error) {
	info, err := os.Stat(path)
	if err != nil {
		return domain.TransferID{}, err
	}
	if info.IsDir() {
		return domain.TransferID{}, fmt.Errorf("%s is a directory", path)
	}
	name := filepath.Base(path)
	if len(name) > maxFileName {
		return domain.TransferID{}, fmt.Errorf("file name exceeds %d bytes", maxFileName)
	}

	if total := chunkCount(info.Size(), e.chunkSize); total > maxChunks {
		return domain.TransferID{}, fmt.Errorf("file needs %d chunks, limit %d", total, maxChunks)
	}

	digest, err := fileDigest(path)
	if err != nil {
		return domain.TransferID{}, err
	}

	o := offer{
		ID:        domain.TransferID(uuid.New()),
		Size:      info.Size(),
		ChunkSize: e.chunkSize,
		Total:     chunkCount(info.Size(), e.chunkSize),
		Digest:    digest,
		Name:      name,
	}
	go e.stream(path, o, send)
	return o.ID, nil
}

func (e *Engine) stream(path string, o offer, send SendFunc) {
	fail := func(err error) {
		e.emit(domain.TransferFailed{ID: o.ID, Err: err})
	}

	f, err := os.Open(path)
	if err != nil {
		fail(err)
		return
	}
	defer f.Close()

	if err := send(domain.MsgFileOffer, marshalOffer(o)); err != nil {
		fail(err)
		return
	}
	e.emit(domain.TransferStarted{ID: o.ID, Name: o.Name, Size: o.Size})

	buf := make([]byte, o.ChunkSize)
	var sent int64
	for seq := uint32(0); seq < o.Total; seq++ {
		n, err := io.ReadFull(f, buf)
		if (err == io.ErrUnexpectedEOF || err == io.EOF) && seq == o.Total-1 {
			err = nil // short (possibly empty) final chunk
		}
		if err != nil {
			fail(fmt.Errorf("read chunk %d: %w", seq, err))
			return
		}
		if err := send(domain.MsgFileChunk, marshalChunk(o.ID, seq, o.Total, buf[:n])); err != nil {
			fail(fmt.Errorf("send chunk %d: %w", seq, err))
			return
		}
		sent += int64(n)
		e.emit(domain.TransferProgress{ID: o.ID, Done: sent, Total: o.Size})
	}
	e.emit(domain.TransferComplete{ID: o.ID, Path: path})
}

// OnOffer registers an inbound transfer from the decrypted offer
// payload. A duplicate transfer ID restarts the bookkeeping from
// scratch: the sender never resumes, so stale state is discarded.
func (e *Engine) OnOffer(from domain.PeerID, payload []byte) (domain.TransferID, error) {
	o, err := parseOffer(payload)
	if err != nil {
		return domain.TransferID{}, err
	}
	if want := chunkCount(o.Size, o.ChunkSize); want != o.Total {
		return domain.TransferID{}, fmt.Errorf("%w: offer claims %d chunks, geometry says %d", domain.ErrMalformedEnvelope, o.Total, want)
	}

	e.mu.Lock()
	e.inbound[o.ID] = &inboundTransfer{
		offer:  o,
		from:   from,
		chunks: make([][]byte, o.Total),
	}
	e.mu.Unlock()

	e.emit(domain.TransferStarted{ID: o.ID, Name: o.Name, Size: o.Size})
	return o.ID, nil
}

// OnChunk stores one decrypted chunk payload. Out-of-order and
// duplicate arrivals are handled by sequence number; once every chunk
// is present the file is reassembled, verified against the offer
// digest, and written to the download directory.
func (e *Engine) OnChunk(from domain.PeerID, payload []byte) error {
	id, seq, total, data, err := parseChunk(payload)
	if err != nil {
		return err
	}

	e.mu.Lock()
	t, ok := e.inbound[id]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("%w: chunk for unknown transfer %s", domain.ErrMalformedEnvelope, id)
	}
	if from != t.from || total != t.offer.Total {
		e.mu.Unlock()
		return fmt.Errorf("%w: chunk metadata conflicts with offer %s", domain.ErrMalformedEnvelope, id)
	}
	if seq >= t.offer.Total {
		e.mu.Unlock()
		return fmt.Errorf("%w: chunk sequence %d outside [0,%d)", domain.ErrMalformedEnvelope, seq, t.offer.Total)
	}
	if t.chunks[seq] != nil {
		e.mu.Unlock()
		return nil // duplicate delivery; first copy wins
	}
	t.chunks[seq] = append([]byte(nil), data...)
	t.received++
	t.done += int64(len(data))
	done, size := t.done, t.offer.Size
	complete := t.received == t.offer.Total
	if complete {
		delete(e.inbound, id)
	}
	e.mu.Unlock()

	e.emit(domain.TransferProgress{ID: id, Done: done, Total: size})
	if !complete {
		return nil
	}

	path, err := e.assemble(t)
	if err != nil {
		e.emit(domain.TransferFailed{ID: id, Err: err})
		return err
	}
	e.emit(domain.TransferComplete{ID: id, Path: path})
	return nil
}

// AbortPeer discards every inbound transfer arriving from peer. Called
// when the peer's connection is lost; partial data is never kept.
func (e *Engine) AbortPeer(peer domain.PeerID) {
	e.mu.Lock()
	var dropped []domain.TransferID
	for id, t := range e.inbound {
		if t.from == peer {
			delete(e.inbound, id)
			dropped = append(dropped, id)
		}
	}
	e.mu.Unlock()

	for _, id := range dropped {
		e.emit(domain.TransferFailed{ID: id, Err: domain.ErrTransferAborted})
	}
}

// Pending reports the number of in-flight inbound transfers.
func (e *Engine) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.inbound)
}

func (e *Engine) assemble(t *inboundTransfer) (string, error) {
	if err := os.MkdirAll(e.dir, 0o700); err != nil {
		return "", err
	}

	var buf bytes.Buffer
	buf.Grow(int(t.offer.Size))
	h := sha256.New()
	for _, c := range t.chunks {
		buf.Write(c)
		h.Write(c)
	}
	if int64(buf.Len()) != t.offer.Size {
		return "", fmt.Errorf("reassembled %d bytes, offer said %d", buf.Len(), t.offer.Size)
	}
	var sum [32]byte
	h.Sum(sum[:0])
	if sum != t.offer.Digest {
		return "", fmt.Errorf("digest mismatch for %s", t.offer.Name)
	}

	path := uniquePath(e.dir, filepath.Base(t.offer.Name))
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		return "", err
	}
	return path, nil
}

// uniquePath appends a timestamp before the extension when the name is
// already taken, e.g. report.pdf -> report_20260829_153045.pdf.
func uniquePath(dir, name string) string {
	path := filepath.Join(dir, name)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path
	}
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	stamp := time.Now().Format("20060102_150405")
	return filepath.Join(dir, fmt.Sprintf("%s_%s%s", base, stamp, ext))
}

func chunkCount(size int64, chunkSize uint32) uint32 {
	if size == 0 {
		return 1 // an empty file still sends one empty chunk
	}
	return uint32((size + int64(chunkSize) - 1) / int64(chunkSize))
}

func fileDigest(path string) ([32]byte, error) {
	var sum [32]byte
	f, err := os.Open(path)
	if err != nil {
		return sum, err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return sum, err
	}
	h.Sum(sum[:0])
	return sum, nil
}
