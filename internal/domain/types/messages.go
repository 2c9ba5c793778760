package types

// MessageType distinguishes session-establishing ciphertexts from
// ordinary ones.
type MessageType int

const (
	// MessageTypePreKey carries enough material for the recipient to
	// establish a new inbound session.
	MessageTypePreKey MessageType = 0
	// MessageTypeNormal requires an existing session to decrypt.
	MessageTypeNormal MessageType = 1
)

// Ciphertext is an encrypted payload plus its type tag.
type Ciphertext struct {
	Type MessageType `json:"type"`
	Body string      `json:"body"`
}

// InboundSession is the result of establishing a session from a pre-key
// ciphertext: the (new or reused) session and the decrypted first payload.
type InboundSession struct {
	SessionID SessionID `json:"session_id"`
	Plaintext []byte    `json:"plaintext"`
}
