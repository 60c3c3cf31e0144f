// Package observability provides a metrics extension for Granary that
// records governance lifecycle event counts through an injected
// MetricFactory, so any metrics backend can be plugged in.
package observability

import (
	"context"

	"github.com/xraph/granary/plugin"
	"github.com/xraph/granary/violation"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin              = (*MetricsExtension)(nil)
	_ plugin.OnInit              = (*MetricsExtension)(nil)
	_ plugin.OnSellerApproved    = (*MetricsExtension)(nil)
	_ plugin.OnSellerRejected    = (*MetricsExtension)(nil)
	_ plugin.OnSellerSuspended   = (*MetricsExtension)(nil)
	_ plugin.OnSellerReactivated = (*MetricsExtension)(nil)
	_ plugin.OnCeilingUpdated    = (*MetricsExtension)(nil)
	_ plugin.OnViolationDetected = (*MetricsExtension)(nil)
	_ plugin.OnViolationResolved = (*MetricsExtension)(nil)
	_ plugin.OnOrderApproved     = (*MetricsExtension)(nil)
	_ plugin.OnOrderRejected     = (*MetricsExtension)(nil)
	_ plugin.OnLotReceived       = (*MetricsExtension)(nil)
	_ plugin.OnStockConsumed     = (*MetricsExtension)(nil)
	_ plugin.OnLotAdjusted       = (*MetricsExtension)(nil)
	_ plugin.OnLowStock          = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide lifecycle metrics.
// Register it as a Granary plugin to automatically track governance metrics.
type MetricsExtension struct {
	factory MetricFactory

	// Seller metrics
	SellerApproved    Counter
	SellerRejected    Counter
	SellerSuspended   Counter
	SellerReactivated Counter

	// Pricing metrics
	CeilingUpdated    Counter
	ViolationDetected Counter
	ViolationResolved Counter
	ViolationOverage  Histogram

	// Procurement metrics
	OrderApproved Counter
	OrderRejected Counter

	// Inventory metrics
	LotsReceived     Counter
	StockConsumed    Counter
	ConsumedQuantity Histogram
	LotsAdjusted     Counter
	LowStockEvents   Counter

	// Error metrics
	StoreErrors  Counter
	PluginErrors Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
// Use app.Metrics() in forge extensions.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		// Seller metrics
		SellerApproved:    factory.Counter("granary.seller.approved"),
		SellerRejected:    factory.Counter("granary.seller.rejected"),
		SellerSuspended:   factory.Counter("granary.seller.suspended"),
		SellerReactivated: factory.Counter("granary.seller.reactivated"),

		// Pricing metrics
		CeilingUpdated:    factory.Counter("granary.ceiling.updated"),
		ViolationDetected: factory.Counter("granary.violation.detected"),
		ViolationResolved: factory.Counter("granary.violation.resolved"),
		ViolationOverage:  factory.Histogram("granary.violation.overage_bps"),

		// Procurement metrics
		OrderApproved: factory.Counter("granary.order.approved"),
		OrderRejected: factory.Counter("granary.order.rejected"),

		// Inventory metrics
		LotsReceived:     factory.Counter("granary.inventory.lots.received"),
		StockConsumed:    factory.Counter("granary.inventory.consumptions"),
		ConsumedQuantity: factory.Histogram("granary.inventory.consumed_quantity"),
		LotsAdjusted:     factory.Counter("granary.inventory.lots.adjusted"),
		LowStockEvents:   factory.Counter("granary.inventory.low_stock"),

		// Error metrics
		StoreErrors:  factory.Counter("granary.store.errors"),
		PluginErrors: factory.Counter("granary.plugin.errors"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ interface{}) error {
	// No initialization needed
	return nil
}

// ──────────────────────────────────────────────────
// Seller lifecycle hooks
// ──────────────────────────────────────────────────

// OnSellerApproved implements plugin.OnSellerApproved.
func (m *MetricsExtension) OnSellerApproved(_ context.Context, _ interface{}) error {
	m.SellerApproved.Inc()
	return nil
}

// OnSellerRejected implements plugin.OnSellerRejected.
func (m *MetricsExtension) OnSellerRejected(_ context.Context, _ interface{}, _ string) error {
	m.SellerRejected.Inc()
	return nil
}

// OnSellerSuspended implements plugin.OnSellerSuspended.
func (m *MetricsExtension) OnSellerSuspended(_ context.Context, _ interface{}, _ string) error {
	m.SellerSuspended.Inc()
	return nil
}

// OnSellerReactivated implements plugin.OnSellerReactivated.
func (m *MetricsExtension) OnSellerReactivated(_ context.Context, _ interface{}) error {
	m.SellerReactivated.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Pricing hooks
// ──────────────────────────────────────────────────

// OnCeilingUpdated implements plugin.OnCeilingUpdated.
func (m *MetricsExtension) OnCeilingUpdated(_ context.Context, _, _ interface{}) error {
	m.CeilingUpdated.Inc()
	return nil
}

// OnViolationDetected implements plugin.OnViolationDetected.
func (m *MetricsExtension) OnViolationDetected(_ context.Context, v interface{}) error {
	m.ViolationDetected.Inc()
	if vv, ok := v.(*violation.Violation); ok {
		m.ViolationOverage.Observe(float64(vv.OverageBps))
	}
	return nil
}

// OnViolationResolved implements plugin.OnViolationResolved.
func (m *MetricsExtension) OnViolationResolved(_ context.Context, _ interface{}) error {
	m.ViolationResolved.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Procurement hooks
// ──────────────────────────────────────────────────

// OnOrderApproved implements plugin.OnOrderApproved.
func (m *MetricsExtension) OnOrderApproved(_ context.Context, _, _ interface{}) error {
	m.OrderApproved.Inc()
	return nil
}

// OnOrderRejected implements plugin.OnOrderRejected.
func (m *MetricsExtension) OnOrderRejected(_ context.Context, _ interface{}, _ string) error {
	m.OrderRejected.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Inventory hooks
// ──────────────────────────────────────────────────

// OnLotReceived implements plugin.OnLotReceived.
func (m *MetricsExtension) OnLotReceived(_ context.Context, _ interface{}) error {
	m.LotsReceived.Inc()
	return nil
}

// OnStockConsumed implements plugin.OnStockConsumed.
func (m *MetricsExtension) OnStockConsumed(_ context.Context, _ string, quantity int64, _ interface{}) error {
	m.StockConsumed.Inc()
	m.ConsumedQuantity.Observe(float64(quantity))
	return nil
}

// OnLotAdjusted implements plugin.OnLotAdjusted.
func (m *MetricsExtension) OnLotAdjusted(_ context.Context, _ interface{}, _ int64, _ string) error {
	m.LotsAdjusted.Inc()
	return nil
}

// OnLowStock implements plugin.OnLowStock.
func (m *MetricsExtension) OnLowStock(_ context.Context, _ string, _ int64) error {
	m.LowStockEvents.Inc()
	return nil
}
