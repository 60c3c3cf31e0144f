package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"
)

// DefaultCallTimeout bounds each plugin hook invocation.
const DefaultCallTimeout = 5 * time.Second

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery for O(1) dispatch performance.
type Registry struct {
	mu          sync.RWMutex
	plugins     []Plugin
	logger      *slog.Logger
	callTimeout time.Duration

	// Type-cached plugin lists for efficient dispatch
	onInit              []OnInit
	onShutdown          []OnShutdown
	onSellerApproved    []OnSellerApproved
	onSellerRejected    []OnSellerRejected
	onSellerSuspended   []OnSellerSuspended
	onSellerReactivated []OnSellerReactivated
	onCeilingUpdated    []OnCeilingUpdated
	onViolationDetected []OnViolationDetected
	onViolationResolved []OnViolationResolved
	onOrderApproved     []OnOrderApproved
	onOrderRejected     []OnOrderRejected
	onLotReceived       []OnLotReceived
	onStockConsumed     []OnStockConsumed
	onLotAdjusted       []OnLotAdjusted
	onLowStock          []OnLowStock
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:      slog.Default(),
		callTimeout: DefaultCallTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithCallTimeout sets the per-hook invocation timeout.
func (r *Registry) WithCallTimeout(d time.Duration) *Registry {
	if d > 0 {
		r.callTimeout = d
	}
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Check for duplicate
	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	// Type-switch to cache interfaces
	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnSellerApproved); ok {
		r.onSellerApproved = append(r.onSellerApproved, v)
	}
	if v, ok := p.(OnSellerRejected); ok {
		r.onSellerRejected = append(r.onSellerRejected, v)
	}
	if v, ok := p.(OnSellerSuspended); ok {
		r.onSellerSuspended = append(r.onSellerSuspended, v)
	}
	if v, ok := p.(OnSellerReactivated); ok {
		r.onSellerReactivated = append(r.onSellerReactivated, v)
	}
	if v, ok := p.(OnCeilingUpdated); ok {
		r.onCeilingUpdated = append(r.onCeilingUpdated, v)
	}
	if v, ok := p.(OnViolationDetected); ok {
		r.onViolationDetected = append(r.onViolationDetected, v)
	}
	if v, ok := p.(OnViolationResolved); ok {
		r.onViolationResolved = append(r.onViolationResolved, v)
	}
	if v, ok := p.(OnOrderApproved); ok {
		r.onOrderApproved = append(r.onOrderApproved, v)
	}
	if v, ok := p.(OnOrderRejected); ok {
		r.onOrderRejected = append(r.onOrderRejected, v)
	}
	if v, ok := p.(OnLotReceived); ok {
		r.onLotReceived = append(r.onLotReceived, v)
	}
	if v, ok := p.(OnStockConsumed); ok {
		r.onStockConsumed = append(r.onStockConsumed, v)
	}
	if v, ok := p.(OnLotAdjusted); ok {
		r.onLotAdjusted = append(r.onLotAdjusted, v)
	}
	if v, ok := p.(OnLowStock); ok {
		r.onLowStock = append(r.onLowStock, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", r.getImplementedInterfaces(p),
	)

	return nil
}

// getImplementedInterfaces returns a list of interfaces implemented by the plugin.
func (r *Registry) getImplementedInterfaces(p Plugin) []string {
	var interfaces []string
	v := reflect.TypeOf(p)

	// Check each interface
	checkInterface := func(iface reflect.Type, name string) {
		if v.Implements(iface) {
			interfaces = append(interfaces, name)
		}
	}

	// List all interfaces to check
	checkInterface(reflect.TypeOf((*OnInit)(nil)).Elem(), "OnInit")
	checkInterface(reflect.TypeOf((*OnShutdown)(nil)).Elem(), "OnShutdown")
	checkInterface(reflect.TypeOf((*OnSellerApproved)(nil)).Elem(), "OnSellerApproved")
	checkInterface(reflect.TypeOf((*OnSellerRejected)(nil)).Elem(), "OnSellerRejected")
	checkInterface(reflect.TypeOf((*OnSellerSuspended)(nil)).Elem(), "OnSellerSuspended")
	checkInterface(reflect.TypeOf((*OnSellerReactivated)(nil)).Elem(), "OnSellerReactivated")
	checkInterface(reflect.TypeOf((*OnCeilingUpdated)(nil)).Elem(), "OnCeilingUpdated")
	checkInterface(reflect.TypeOf((*OnViolationDetected)(nil)).Elem(), "OnViolationDetected")
	checkInterface(reflect.TypeOf((*OnViolationResolved)(nil)).Elem(), "OnViolationResolved")
	checkInterface(reflect.TypeOf((*OnOrderApproved)(nil)).Elem(), "OnOrderApproved")
	checkInterface(reflect.TypeOf((*OnOrderRejected)(nil)).Elem(), "OnOrderRejected")
	checkInterface(reflect.TypeOf((*OnLotReceived)(nil)).Elem(), "OnLotReceived")
	checkInterface(reflect.TypeOf((*OnStockConsumed)(nil)).Elem(), "OnStockConsumed")
	checkInterface(reflect.TypeOf((*OnLotAdjusted)(nil)).Elem(), "OnLotAdjusted")
	checkInterface(reflect.TypeOf((*OnLowStock)(nil)).Elem(), "OnLowStock")

	return interfaces
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, engine interface{}) {
	r.mu.RLock()
	plugins := r.onInit
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnInit(ctx, engine)
		}); err != nil {
			r.logger.Warn("plugin OnInit failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onShutdown
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnShutdown(ctx)
		}); err != nil {
			r.logger.Warn("plugin OnShutdown failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitSellerApproved emits a seller approved event.
func (r *Registry) EmitSellerApproved(ctx context.Context, s interface{}) {
	r.mu.RLock()
	plugins := r.onSellerApproved
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnSellerApproved(ctx, s)
		}); err != nil {
			r.logger.Warn("plugin OnSellerApproved failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitSellerRejected emits a seller rejected event.
func (r *Registry) EmitSellerRejected(ctx context.Context, s interface{}, reason string) {
	r.mu.RLock()
	plugins := r.onSellerRejected
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnSellerRejected(ctx, s, reason)
		}); err != nil {
			r.logger.Warn("plugin OnSellerRejected failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitSellerSuspended emits a seller suspended event.
func (r *Registry) EmitSellerSuspended(ctx context.Context, s interface{}, reason string) {
	r.mu.RLock()
	plugins := r.onSellerSuspended
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnSellerSuspended(ctx, s, reason)
		}); err != nil {
			r.logger.Warn("plugin OnSellerSuspended failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitSellerReactivated emits a seller reactivated event.
func (r *Registry) EmitSellerReactivated(ctx context.Context, s interface{}) {
	r.mu.RLock()
	plugins := r.onSellerReactivated
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnSellerReactivated(ctx, s)
		}); err != nil {
			r.logger.Warn("plugin OnSellerReactivated failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitCeilingUpdated emits a ceiling updated event.
func (r *Registry) EmitCeilingUpdated(ctx context.Context, oldCeiling, newCeiling interface{}) {
	r.mu.RLock()
	plugins := r.onCeilingUpdated
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnCeilingUpdated(ctx, oldCeiling, newCeiling)
		}); err != nil {
			r.logger.Warn("plugin OnCeilingUpdated failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitViolationDetected emits a violation detected event.
func (r *Registry) EmitViolationDetected(ctx context.Context, v interface{}) {
	r.mu.RLock()
	plugins := r.onViolationDetected
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnViolationDetected(ctx, v)
		}); err != nil {
			r.logger.Warn("plugin OnViolationDetected failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitViolationResolved emits a violation resolved event.
func (r *Registry) EmitViolationResolved(ctx context.Context, v interface{}) {
	r.mu.RLock()
	plugins := r.onViolationResolved
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnViolationResolved(ctx, v)
		}); err != nil {
			r.logger.Warn("plugin OnViolationResolved failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitOrderApproved emits a purchase order approved event.
func (r *Registry) EmitOrderApproved(ctx context.Context, po, lot interface{}) {
	r.mu.RLock()
	plugins := r.onOrderApproved
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnOrderApproved(ctx, po, lot)
		}); err != nil {
			r.logger.Warn("plugin OnOrderApproved failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitOrderRejected emits a purchase order rejected event.
func (r *Registry) EmitOrderRejected(ctx context.Context, po interface{}, reason string) {
	r.mu.RLock()
	plugins := r.onOrderRejected
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnOrderRejected(ctx, po, reason)
		}); err != nil {
			r.logger.Warn("plugin OnOrderRejected failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitLotReceived emits a lot received event.
func (r *Registry) EmitLotReceived(ctx context.Context, lot interface{}) {
	r.mu.RLock()
	plugins := r.onLotReceived
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnLotReceived(ctx, lot)
		}); err != nil {
			r.logger.Warn("plugin OnLotReceived failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitStockConsumed emits a stock consumed event.
func (r *Registry) EmitStockConsumed(ctx context.Context, productID string, quantity int64, allocations interface{}) {
	r.mu.RLock()
	plugins := r.onStockConsumed
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnStockConsumed(ctx, productID, quantity, allocations)
		}); err != nil {
			r.logger.Warn("plugin OnStockConsumed failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitLotAdjusted emits a lot adjusted event.
func (r *Registry) EmitLotAdjusted(ctx context.Context, lot interface{}, delta int64, reason string) {
	r.mu.RLock()
	plugins := r.onLotAdjusted
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnLotAdjusted(ctx, lot, delta, reason)
		}); err != nil {
			r.logger.Warn("plugin OnLotAdjusted failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitLowStock emits a low stock event.
func (r *Registry) EmitLowStock(ctx context.Context, productID string, remaining int64) {
	r.mu.RLock()
	plugins := r.onLowStock
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnLowStock(ctx, productID, remaining)
		}); err != nil {
			r.logger.Warn("plugin OnLowStock failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins must never block a governance operation.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(r.callTimeout):
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
