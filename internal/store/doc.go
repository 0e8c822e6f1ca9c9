// Package store persists the local identity on disk. The private key
// never touches the filesystem in the clear: the identity is sealed
// under a passphrase-derived key inside a versioned JSON envelope.
package store
