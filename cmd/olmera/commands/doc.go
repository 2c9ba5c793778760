// Package commands defines the olmera CLI and wires dependencies for
// subcommands.
//
// Commands
//
//   - init         Create the local device account
//   - fingerprint  Print the identity fingerprint
//   - keys         List (and optionally generate) one-time keys
//   - ensure       Establish sessions with remote devices
//   - export       Write a full state snapshot
//   - import       Replace local state with a snapshot
//
// # Implementation
//
// The root command builds the dependency graph (store, device service,
// claim client, ensurer) before any subcommand runs, so handlers share one
// app context.
package commands
