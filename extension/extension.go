// Package extension provides the Forge extension adapter for Granary.
//
// It implements the forge.Extension interface to integrate Granary
// into a Forge application with automatic dependency discovery,
// DI registration, and lifecycle management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.granary" or "granary" keys.
package extension

import (
	"context"
	"errors"

	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	granary "github.com/xraph/granary"
	"github.com/xraph/granary/store"
	"github.com/xraph/granary/store/memory"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "granary"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Administrative governance engine for agricultural marketplaces"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts Granary as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config     Config
	engine     *granary.Engine
	store      store.Store
	engineOpts []granary.Option
}

// New creates a new Granary Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying Granary engine.
// This is nil until Register is called.
func (e *Extension) Engine() *granary.Engine { return e.engine }

// Register implements [forge.Extension]. It loads configuration,
// initializes the governance engine, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	// Use memory store if no store was provided programmatically.
	if e.store == nil {
		e.store = memory.New()
	}

	// Build engine options from resolved config.
	opts := e.buildEngineOpts()

	eng := granary.New(e.store, opts...)
	e.engine = eng

	return vessel.Provide(fapp.Container(), func() (*granary.Engine, error) {
		return e.engine, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("granary: extension not initialized")
	}

	if err := e.engine.Start(ctx); err != nil {
		return err
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	if e.engine != nil {
		if err := e.engine.Stop(); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("granary: store not initialized")
	}
	return e.store.Ping(ctx)
}

// buildEngineOpts constructs granary.Option values from the resolved config.
func (e *Extension) buildEngineOpts() []granary.Option {
	opts := make([]granary.Option, 0, len(e.engineOpts)+4)

	if e.config.LockTimeout > 0 {
		opts = append(opts, granary.WithLockTimeout(e.config.LockTimeout))
	}
	if e.config.LowStockThreshold > 0 {
		opts = append(opts, granary.WithLowStockThreshold(e.config.LowStockThreshold))
	}
	if e.config.PluginCallTimeout > 0 {
		opts = append(opts, granary.WithPluginCallTimeout(e.config.PluginCallTimeout))
	}
	if e.config.DisableMigrate {
		opts = append(opts, granary.WithoutMigrate())
	}

	// Append any pass-through engine options.
	opts = append(opts, e.engineOpts...)

	return opts
}

// --- Config Loading (mirrors grove/shield extension pattern) ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	// Try loading from config file.
	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("granary: configuration is required but not found in config files; " +
				"ensure 'extensions.granary' or 'granary' key exists in your config")
		}

		// Use programmatic config merged with defaults.
		e.config = e.mergeWithDefaults(programmaticConfig)
	} else {
		// Config loaded from YAML -- merge with programmatic options.
		e.config = e.mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("granary: configuration loaded",
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("lock_timeout", e.config.LockTimeout),
		forge.F("low_stock_threshold", e.config.LowStockThreshold),
		forge.F("plugin_call_timeout", e.config.PluginCallTimeout),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	// Try "extensions.granary" first (namespaced pattern).
	if cm.IsSet("extensions.granary") {
		if err := cm.Bind("extensions.granary", &cfg); err == nil {
			e.Logger().Debug("granary: loaded config from file",
				forge.F("key", "extensions.granary"),
			)
			return cfg, true
		}
		e.Logger().Warn("granary: failed to bind extensions.granary config",
			forge.F("error", "bind failed"),
		)
	}

	// Try legacy "granary" key.
	if cm.IsSet("granary") {
		if err := cm.Bind("granary", &cfg); err == nil {
			e.Logger().Debug("granary: loaded config from file",
				forge.F("key", "granary"),
			)
			return cfg, true
		}
		e.Logger().Warn("granary: failed to bind granary config",
			forge.F("error", "bind failed"),
		)
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func (e *Extension) mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.LockTimeout == 0 {
		cfg.LockTimeout = defaults.LockTimeout
	}
	if cfg.PluginCallTimeout == 0 {
		cfg.PluginCallTimeout = defaults.PluginCallTimeout
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence for most fields; programmatic bool flags fill gaps.
func (e *Extension) mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	// Programmatic bool flags override when true.
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}

	// Duration/int fields: YAML takes precedence, programmatic fills gaps.
	if yamlConfig.LockTimeout == 0 && programmaticConfig.LockTimeout != 0 {
		yamlConfig.LockTimeout = programmaticConfig.LockTimeout
	}
	if yamlConfig.LowStockThreshold == 0 && programmaticConfig.LowStockThreshold != 0 {
		yamlConfig.LowStockThreshold = programmaticConfig.LowStockThreshold
	}
	if yamlConfig.PluginCallTimeout == 0 && programmaticConfig.PluginCallTimeout != 0 {
		yamlConfig.PluginCallTimeout = programmaticConfig.PluginCallTimeout
	}

	// Fill remaining zeros with defaults.
	return e.mergeWithDefaults(yamlConfig)
}
