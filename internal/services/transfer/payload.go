package transfer

import (
	"encoding/binary"
	"fmt"

	"peerlink/internal/domain"
)

// maxFileName bounds the name carried in an offer.
const maxFileName = 255

// Geometry bounds for offers. A remote offer drives allocations on the
// receiving side, so implausible values are rejected before any
// bookkeeping is sized from them. The ceiling keeps a sealed chunk
// inside the wire frame limit.
const (
	minChunkSize = 1 << 10
	maxChunkSize = 256 << 10
	maxChunks    = 1 << 18
)

// offer is the transfer metadata sent before any chunk.
type offer struct {
	ID        domain.TransferID
	Size      int64
	ChunkSize uint32
	Total     uint32
	Digest    [32]byte
	Name      string
}

// Offer payload: id(16) size(8) chunkSize(4) total(4) digest(32)
// nameLen(2) name.
func marshalOffer(o offer) []byte {
	buf := make([]byte, 0, 16+8+4+4+32+2+len(o.Name))
	buf = append(buf, o.ID[:]...)
	buf = binary.BigEndian.AppendUint64(buf, uint64(o.Size))
	buf = binary.BigEndian.AppendUint32(buf, o.ChunkSize)
	buf = binary.BigEndian.AppendUint32(buf, o.Total)
	buf = append(buf, o.Digest[:]...)
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(o.Name)))
	buf = append(buf, o.Name...)
	return buf
}

func parseOffer(payload []byte) (offer, error) {
	var o offer
	if len(payload) < 16+8+4+4+32+2 {
		return o, fmt.Errorf("%w: offer too short", domain.ErrMalformedEnvelope)
	}
	copy(o.ID[:], payload)
	o.Size = int64(binary.BigEndian.Uint64(payload[16:]))
	o.ChunkSize = binary.BigEndian.Uint32(payload[24:])
	o.Total = binary.BigEndian.Uint32(payload[28:])
	copy(o.Digest[:], payload[32:])
	nameLen := int(binary.BigEndian.Uint16(payload[64:]))
	if nameLen == 0 || nameLen > maxFileName || len(payload) != 66+nameLen {
		return o, fmt.Errorf("%w: offer name length", domain.ErrMalformedEnvelope)
	}
	o.Name = string(payload[66:])
	if o.Size < 0 || o.Total == 0 {
		return o, fmt.Errorf("%w: offer geometry", domain.ErrMalformedEnvelope)
	}
	if o.ChunkSize < minChunkSize || o.ChunkSize > maxChunkSize {
		return o, fmt.Errorf("%w: chunk size %d outside [%d,%d]", domain.ErrMalformedEnvelope, o.ChunkSize, minChunkSize, maxChunkSize)
	}
	if o.Total > maxChunks {
		return o, fmt.Errorf("%w: offer claims %d chunks, limit %d", domain.ErrMalformedEnvelope, o.Total, maxChunks)
	}
	return o, nil
}

// Chunk payload: id(16) seq(4) total(4) data.
func marshalChunk(id domain.TransferID, seq, total uint32, data []byte) []byte {
	buf := make([]byte, 0, 16+4+4+len(data))
	buf = append(buf, id[:]...)
	buf = binary.BigEndian.AppendUint32(buf, seq)
	buf = binary.BigEndian.AppendUint32(buf, total)
	buf = append(buf, data...)
	return buf
}

func parseChunk(payload []byte) (id domain.TransferID, seq, total uint32, data []byte, err error) {
	if len(payload) < 16+4+4 {
		return id, 0, 0, nil, fmt.Errorf("%w: chunk too short", domain.ErrMalformedEnvelope)
	}
	copy(id[:], payload)
	seq = binary.BigEndian.Uint32(payload[16:])
	total = binary.BigEndian.Uint32(payload[20:])
	return id, seq, total, payload[24:], nil
}
