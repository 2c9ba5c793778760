package types

// ExportFormatVersion is the current exported-state schema version.
const ExportFormatVersion = 1

// ExportedSession is one session entry inside an ExportedState.
type ExportedSession struct {
	Session        string    `json:"session"` // pickled ratchet state
	SessionID      SessionID `json:"session_id"`
	DeviceKey      DeviceKey `json:"device_key"`
	LastReceivedTS int64     `json:"last_received_ts"`
}

// ExportedState is a full snapshot of a device: the account pickle, every
// session pickle, and the key the pickles are sealed under. It is never a
// diff; importing it replaces the device's state wholesale.
type ExportedState struct {
	Version        int               `json:"v"`
	PickleKey      string            `json:"pickle_key"`
	PickledAccount string            `json:"pickled_account"`
	Sessions       []ExportedSession `json:"sessions"`
}
