package commands

import (
	"fmt"

	"github.com/uploadkit/engine/internal/config"
	"github.com/uploadkit/engine/internal/logger"
	"github.com/uploadkit/engine/pkg/backendclient"
	"github.com/uploadkit/engine/pkg/engine"
	"github.com/uploadkit/engine/pkg/store"
)

// loadConfig loads and validates the uploadctl configuration and initializes
// the structured logger from it.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return cfg, nil
}

// openStore opens the durable store described by cfg.
func openStore(cfg *config.Config) (store.Store, error) {
	s, err := store.New(&cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	return s, nil
}

// newEngine wires a Session Engine from cfg and s, with no bearer-token
// authentication (the backend is expected to be reachable unauthenticated or
// via a reverse proxy that injects credentials). The CLI has no variant that
// wires a TokenProvider.
func newEngine(cfg *config.Config, s store.Store) *engine.Engine {
	backend := backendclient.New(nil, backendclient.DefaultTimeouts())

	opts := engine.DefaultOptions()
	opts.ChunkSize = uint64(cfg.Engine.ChunkSize)
	opts.MaxConcurrentParts = cfg.Engine.MaxConcurrentParts
	opts.MaxRetries = cfg.Engine.MaxRetries
	opts.RetryDelay = cfg.Engine.RetryDelay
	opts.UseExponentialBackoff = cfg.Engine.UseExponentialBackoff
	opts.Constraints = cfg.Engine.DefaultConstraints

	return engine.New(s, backend, opts)
}
