package main

import (
	"fmt"
	"time"

	"github.com/vcetai/campuschat/internal/backend"
	"github.com/vcetai/campuschat/internal/config"
	"github.com/vcetai/campuschat/internal/store"
)

// session bundles the pieces every client-side command needs: loaded config,
// the settings store, and a backend client whose credential tracks the store.
type session struct {
	cfg     config.Config
	kv      store.KV
	client  *backend.Client
	cleanup func()
}

func (s *session) close() {
	if s.cleanup != nil {
		s.cleanup()
	}
}

// openKV opens the bolt-backed settings store, falling back to an in-memory
// store when the data dir is unusable. Preferences then last for the process
// only, which beats refusing to start.
func openKV(dataDir string) (store.KV, func()) {
	bolt, err := store.OpenBolt(dataDir)
	if err != nil {
		printWarning("settings store unavailable (%v); preferences will not persist", err)
		return store.NewMemory(), func() {}
	}
	return bolt, func() { bolt.Close() }
}

var newSession = func() (*session, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	kv, closeKV := openKV(cfg.Storage.DataDir)

	client := backend.New(cfg.Backend.BaseURL,
		backend.WithTimeout(time.Duration(cfg.Backend.TimeoutSeconds)*time.Second),
		backend.WithCredential(func() string {
			return kv.GetRaw(store.KeyCredential, "")
		}),
	)

	return &session{cfg: cfg, kv: kv, client: client, cleanup: closeKV}, nil
}
