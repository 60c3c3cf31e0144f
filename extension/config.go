package extension

import "time"

// Config holds the Granary extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.granary" or "granary" keys).
type Config struct {
	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// LockTimeout bounds how long a governance operation waits for a
	// contended entity lock before failing (default: 5s).
	LockTimeout time.Duration `json:"lock_timeout" mapstructure:"lock_timeout" yaml:"lock_timeout"`

	// LowStockThreshold is the remaining-quantity level at or below which
	// a consumption triggers a low-stock event (default: 0, disabled).
	LowStockThreshold int64 `json:"low_stock_threshold" mapstructure:"low_stock_threshold" yaml:"low_stock_threshold"`

	// PluginCallTimeout bounds each plugin hook invocation (default: 5s).
	PluginCallTimeout time.Duration `json:"plugin_call_timeout" mapstructure:"plugin_call_timeout" yaml:"plugin_call_timeout"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		LockTimeout:       5 * time.Second,
		PluginCallTimeout: 5 * time.Second,
	}
}
