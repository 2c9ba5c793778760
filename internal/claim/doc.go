// Package claim talks to the directory service that hands out one-time
// keys for session establishment.
package claim
