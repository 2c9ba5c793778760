// Package memzero wipes key material out of byte slices once it is no
// longer needed.
package memzero

import "crypto/subtle"

// Zero clears b in place. Routing the write through ConstantTimeCopy
// keeps the compiler from eliding it as a dead store.
func Zero(b []byte) {
	if len(b) == 0 {
		return
	}
	subtle.ConstantTimeCopy(1, b, make([]byte, len(b)))
}
