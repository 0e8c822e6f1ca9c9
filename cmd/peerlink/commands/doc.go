// Package commands defines the peerlink CLI and wires dependencies for
// subcommands.
//
// Commands
//
//   - init           Create the local identity
//   - fingerprint    Print the identity fingerprint
//   - chat           Start the node and an interactive session
//
// # Implementation
//
// The root command builds the dependency graph (identity store, logger,
// config) before any subcommand runs, so handlers share one app context.
package commands
