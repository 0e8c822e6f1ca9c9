// Package transfer moves files as sequences of fixed-size chunks.
//
// A send begins with an offer payload carrying the transfer ID, file
// name, size, chunk geometry, and a whole-file SHA-256 digest, followed
// by one payload per chunk. The engine produces and consumes plaintext
// payloads only; the caller seals them for the session or group channel
// and hands decrypted inbound payloads back, so the engine stays
// independent of the key in use.
//
// The receiver assembles chunks by sequence number in any arrival
// order, writes the file once every chunk is present and the digest
// matches, and disambiguates duplicate names with a timestamp suffix.
// A transfer interrupted by disconnect is discarded; restarts begin at
// sequence zero under a fresh ID.
package transfer
