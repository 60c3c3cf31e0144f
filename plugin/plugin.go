// Package plugin provides an extensible plugin system for Granary.
// Plugins can hook into governance lifecycle events to extend functionality.
package plugin

import (
	"context"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the plugin is initialized.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine interface{}) error
}

// OnShutdown is called when the plugin is shutting down.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Seller lifecycle hooks
// ──────────────────────────────────────────────────

// OnSellerApproved is called when a pending seller is approved.
type OnSellerApproved interface {
	Plugin
	OnSellerApproved(ctx context.Context, s interface{}) error
}

// OnSellerRejected is called when a pending seller is rejected.
type OnSellerRejected interface {
	Plugin
	OnSellerRejected(ctx context.Context, s interface{}, reason string) error
}

// OnSellerSuspended is called when an approved seller is suspended.
type OnSellerSuspended interface {
	Plugin
	OnSellerSuspended(ctx context.Context, s interface{}, reason string) error
}

// OnSellerReactivated is called when a suspended seller is reactivated.
type OnSellerReactivated interface {
	Plugin
	OnSellerReactivated(ctx context.Context, s interface{}) error
}

// ──────────────────────────────────────────────────
// Pricing hooks
// ──────────────────────────────────────────────────

// OnCeilingUpdated is called when a product's price ceiling changes.
type OnCeilingUpdated interface {
	Plugin
	OnCeilingUpdated(ctx context.Context, oldCeiling, newCeiling interface{}) error
}

// OnViolationDetected is called when a compliance check records a new
// or updated violation.
type OnViolationDetected interface {
	Plugin
	OnViolationDetected(ctx context.Context, v interface{}) error
}

// OnViolationResolved is called when an admin resolves a violation.
type OnViolationResolved interface {
	Plugin
	OnViolationResolved(ctx context.Context, v interface{}) error
}

// ──────────────────────────────────────────────────
// Purchase order hooks
// ──────────────────────────────────────────────────

// OnOrderApproved is called when a purchase order is approved.
type OnOrderApproved interface {
	Plugin
	OnOrderApproved(ctx context.Context, po interface{}, lot interface{}) error
}

// OnOrderRejected is called when a purchase order is rejected.
type OnOrderRejected interface {
	Plugin
	OnOrderRejected(ctx context.Context, po interface{}, reason string) error
}

// ──────────────────────────────────────────────────
// Inventory hooks
// ──────────────────────────────────────────────────

// OnLotReceived is called when a new inventory lot is created.
type OnLotReceived interface {
	Plugin
	OnLotReceived(ctx context.Context, lot interface{}) error
}

// OnStockConsumed is called after a successful FIFO consumption.
type OnStockConsumed interface {
	Plugin
	OnStockConsumed(ctx context.Context, productID string, quantity int64, allocations interface{}) error
}

// OnLotAdjusted is called after a manual lot adjustment.
type OnLotAdjusted interface {
	Plugin
	OnLotAdjusted(ctx context.Context, lot interface{}, delta int64, reason string) error
}

// OnLowStock is called when a consumption drops a product's total
// available stock to or below the engine's low-stock threshold.
type OnLowStock interface {
	Plugin
	OnLowStock(ctx context.Context, productID string, remaining int64) error
}
