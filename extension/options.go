package extension

import (
	"time"

	granary "github.com/xraph/granary"
	"github.com/xraph/granary/plugin"
	"github.com/xraph/granary/store"
)

// Option configures the Granary Forge extension.
type Option func(*Extension)

// WithStore sets the store for the governance engine.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithEngineOption passes a granary.Option through to the underlying engine.
func WithEngineOption(opt granary.Option) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, opt)
	}
}

// WithPlugin registers a granary plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, granary.WithPlugin(p))
	}
}

// WithListingSource sets the listing source used for compliance re-evaluation
// after a ceiling change.
func WithListingSource(src granary.ListingSource) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, granary.WithListingSource(src))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}

// WithLockTimeout bounds how long a governance operation waits for a
// contended entity lock.
func WithLockTimeout(d time.Duration) Option {
	return func(e *Extension) { e.config.LockTimeout = d }
}

// WithLowStockThreshold sets the remaining-quantity level at or below which
// a consumption triggers a low-stock event.
func WithLowStockThreshold(n int64) Option {
	return func(e *Extension) { e.config.LowStockThreshold = n }
}

// WithPluginCallTimeout bounds each plugin hook invocation.
func WithPluginCallTimeout(d time.Duration) Option {
	return func(e *Extension) { e.config.PluginCallTimeout = d }
}
