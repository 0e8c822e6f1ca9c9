// Package node runs the live side of a peer: the TCP listener, outbound
// dials, the per-connection handshake and read loops, and dispatch of
// decrypted traffic to the chat, group, and transfer services. Front
// ends drive a Node through its methods and consume its event channel;
// nothing in this package blocks on the UI.
package node
