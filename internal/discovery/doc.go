// Package discovery announces the local node over mDNS and finds other
// nodes on the same LAN, so peers can connect without exchanging
// addresses out of band.
package discovery
