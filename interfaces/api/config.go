// Package api is the public entry point of agent-router: it loads router
// configuration and wires a ready-to-use engine from it.
package api

import (
	"context"

	domainconfig "github.com/felixgeelhaar/agent-router/domain/config"
	infraconfig "github.com/felixgeelhaar/agent-router/infrastructure/config"
	"github.com/felixgeelhaar/agent-router/infrastructure/logging"
)

// RouterConfig is the root configuration.
type RouterConfig = domainconfig.RouterConfig

// DefaultConfig returns a configuration that runs entirely in memory.
func DefaultConfig() RouterConfig {
	return domainconfig.Default()
}

// LoadConfig reads a YAML or JSON configuration file with ${VAR}
// expansion. An empty path yields DefaultConfig.
func LoadConfig(path string) (RouterConfig, error) {
	if path == "" {
		return DefaultConfig(), nil
	}
	cfg, err := infraconfig.NewLoader().LoadFile(path)
	if err != nil {
		return RouterConfig{}, err
	}
	cfg.ApplyDefaults()
	return *cfg, nil
}

// ValidateConfig loads path without building anything and returns every
// validation problem found.
func ValidateConfig(path string, strictEnv bool) error {
	cfg, err := infraconfig.NewLoader(
		infraconfig.WithStrictEnv(strictEnv),
		infraconfig.WithValidation(false),
	).LoadFile(path)
	if err != nil {
		return err
	}
	cfg.ApplyDefaults()
	if errs := domainconfig.NewValidator().Validate(cfg); errs.HasErrors() {
		return errs
	}
	return nil
}

// InitLogging configures the process logger from the logging section.
func InitLogging(cfg RouterConfig) {
	logging.Init(logging.ConfigFor(cfg.Logging.Level, cfg.Logging.Format))
}

// WatchConfig applies log level changes of the file at path until ctx is
// done. Other sections need a restart.
func WatchConfig(ctx context.Context, path string) error {
	w, err := infraconfig.NewWatcher(path, nil, func(cfg *domainconfig.RouterConfig) {
		cfg.ApplyDefaults()
		logging.SetLevel(cfg.Logging.Level)
		logging.Info().
			Add(logging.Component("config")).
			Add(logging.Str("path", path)).
			Add(logging.Str("level", cfg.Logging.Level)).
			Msg("configuration reloaded")
	}, infraconfig.WithOnError(func(err error) {
		logging.Warn().
			Add(logging.Component("config")).
			Add(logging.Str("path", path)).
			Add(logging.ErrorField(err)).
			Msg("configuration reload failed")
	}))
	if err != nil {
		return err
	}
	return w.Run(ctx)
}
