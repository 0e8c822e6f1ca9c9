// Package registry tracks established sessions by peer identity.
//
// The registry is the only cross-connection shared state besides group
// membership, guarded by a single coarse lock; contention stays low
// because mutations happen only on connect and disconnect. A Session's
// key and counters are owned by its connection context; the registry
// merely hands out references.
package registry
