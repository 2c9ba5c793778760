package types

// SessionRecord is one persisted ratchet session for a remote device.
// Records for a device are kept most-recently-used first; the head of the
// list is the preferred session for new outbound traffic.
type SessionRecord struct {
	SessionID      SessionID `json:"session_id"`
	DeviceKey      DeviceKey `json:"device_key"`
	Pickle         string    `json:"pickle"`
	LastReceivedTS int64     `json:"last_received_ts"`
}
