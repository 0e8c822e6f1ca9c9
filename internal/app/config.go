package app

import "time"

// Defaults for runtime options not overridden by flags.
const (
	DefaultPort             = 5000
	DefaultChunkSize        = 32 * 1024
	DefaultHandshakeTimeout = 30 * time.Second
	DefaultDownloadsDir     = "downloads"

	// maxChunkSize keeps a sealed chunk safely inside the wire frame
	// limit.
	maxChunkSize = 256 * 1024
)

// Config holds runtime wiring options for building the app.
type Config struct {
	Home             string        // config directory, e.g. $HOME/.peerlink
	Port             int           // TCP listen port
	DownloadsDir     string        // where received files land
	ChunkSize        uint32        // transfer chunk size in bytes
	HandshakeTimeout time.Duration // how long a fresh connection may handshake
	Verbose          bool          // debug-level logging
}

// withDefaults fills the zero fields of cfg.
func (c Config) withDefaults() Config {
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.DownloadsDir == "" {
		c.DownloadsDir = DefaultDownloadsDir
	}
	if c.ChunkSize == 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.ChunkSize > maxChunkSize {
		c.ChunkSize = maxChunkSize
	}
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = DefaultHandshakeTimeout
	}
	return c
}
