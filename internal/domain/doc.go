// Package domain holds the shared types of the peerlink core: identities
// and key material, the wire envelope, groups, the error taxonomy, and
// the event variants delivered to the front end.
//
// The package depends on nothing else in the module so every layer can
// import it without cycles. Key material uses fixed-size array types to
// avoid accidental reallocation of secrets.
package domain
