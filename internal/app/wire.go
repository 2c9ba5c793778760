package app

import (
	"fmt"
	"net/http"
	"path/filepath"

	"olmera/internal/claim"
	"olmera/internal/domain"
	"olmera/internal/services/device"
	"olmera/internal/services/ensure"
	"olmera/internal/store"
)

// Wire bundles the store, services, and clients for the CLI.
type Wire struct {
	Store   domain.SessionStore
	Device  domain.DeviceService
	Claimer domain.KeyClaimer
	Ensurer domain.SessionEnsurer
	HTTP    *http.Client
}

// NewWire constructs the dependency graph from cfg.
func NewWire(cfg Config) (*Wire, error) {
	var st domain.SessionStore
	switch cfg.Backend {
	case BackendSQLite:
		s, err := store.OpenSQLite(filepath.Join(cfg.Home, "olmera.db"))
		if err != nil {
			return nil, err
		}
		st = s
	case BackendFile, "":
		st = store.NewFileStore(cfg.Home)
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}

	dev, err := device.New(st)
	if err != nil {
		return nil, err
	}

	httpClient := cfg.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	w := &Wire{Store: st, Device: dev, HTTP: httpClient}
	if cfg.ClaimURL != "" {
		kc := claim.NewHTTP(cfg.ClaimURL)
		kc.HTTP = httpClient
		w.Claimer = kc
		w.Ensurer = ensure.New(dev, kc)
	}
	return w, nil
}
