// Package app wires application dependencies for the CLI.
//
// It builds the concrete store, device service, key-claim client and
// ensurer from Config, exposing them via the Wire struct for commands to
// use.
package app
