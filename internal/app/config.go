package app

import "net/http"

// Backend selects the session-store implementation.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Config holds runtime wiring options for building the app.
type Config struct {
	Home     string       // state directory, e.g. $HOME/.olmera
	Backend  string       // "file" or "sqlite"
	ClaimURL string       // key-claiming service base URL; empty disables ensure
	HTTP     *http.Client // optional; defaults to http.DefaultClient
}
