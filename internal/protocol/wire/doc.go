// Package wire frames envelopes for the transport.
//
// Each frame is a big-endian uint32 length prefix followed by the
// envelope body in fixed field order:
//
//	type(1) flags(1) sender(32) sequence(8) nonce(12)
//	[group(16) if flags&FlagGroup] ctlen(4) ciphertext tag(16)
//
// Variable-length fields carry explicit lengths so parsing is never
// ambiguous. Malformed input is rejected with ErrMalformedEnvelope;
// a short read mid-frame surfaces as an I/O error from the reader, so
// callers buffer until a complete frame is available.
package wire
