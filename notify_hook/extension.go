// Package notifyhook bridges Granary lifecycle events to a notification
// backend.
//
// It defines a local Notifier interface so the package does not import any
// particular delivery system. Callers inject a NotifierFunc adapter that
// bridges to their email, chat or webhook dispatcher at wiring time.
package notifyhook

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xraph/granary/plugin"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin              = (*Extension)(nil)
	_ plugin.OnSellerApproved    = (*Extension)(nil)
	_ plugin.OnSellerRejected    = (*Extension)(nil)
	_ plugin.OnSellerSuspended   = (*Extension)(nil)
	_ plugin.OnSellerReactivated = (*Extension)(nil)
	_ plugin.OnCeilingUpdated    = (*Extension)(nil)
	_ plugin.OnViolationDetected = (*Extension)(nil)
	_ plugin.OnViolationResolved = (*Extension)(nil)
	_ plugin.OnOrderApproved     = (*Extension)(nil)
	_ plugin.OnOrderRejected     = (*Extension)(nil)
	_ plugin.OnLotReceived       = (*Extension)(nil)
	_ plugin.OnStockConsumed     = (*Extension)(nil)
	_ plugin.OnLotAdjusted       = (*Extension)(nil)
	_ plugin.OnLowStock          = (*Extension)(nil)
)

// Notifier is the interface that notification backends must implement.
// Defined locally so the notify_hook package does not depend on any
// delivery mechanism; callers inject the concrete dispatcher at wiring
// time.
type Notifier interface {
	Notify(ctx context.Context, n *Notification) error
}

// Notification is one outbound governance notification.
type Notification struct {
	Event    string         `json:"event"`
	Topic    string         `json:"topic"`
	Severity string         `json:"severity"`
	Subject  string         `json:"subject,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// NotifierFunc is an adapter to use a plain function as a Notifier.
type NotifierFunc func(ctx context.Context, n *Notification) error

// Notify implements Notifier.
func (f NotifierFunc) Notify(ctx context.Context, n *Notification) error {
	return f(ctx, n)
}

// Extension bridges Granary lifecycle events to a notification backend.
type Extension struct {
	notifier Notifier
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that sends notifications through the provided Notifier.
func New(n Notifier, opts ...Option) *Extension {
	e := &Extension{
		notifier: n,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "notify-hook" }

// ──────────────────────────────────────────────────
// Seller lifecycle hooks
// ──────────────────────────────────────────────────

// OnSellerApproved implements plugin.OnSellerApproved.
func (e *Extension) OnSellerApproved(ctx context.Context, _ interface{}) error {
	return e.send(ctx, EventSellerApproved, TopicSellers, SeverityInfo, "",
		"event", "seller_approved",
	)
}

// OnSellerRejected implements plugin.OnSellerRejected.
func (e *Extension) OnSellerRejected(ctx context.Context, _ interface{}, reason string) error {
	return e.send(ctx, EventSellerRejected, TopicSellers, SeverityInfo, "",
		"event", "seller_rejected",
		"reason", reason,
	)
}

// OnSellerSuspended implements plugin.OnSellerSuspended.
func (e *Extension) OnSellerSuspended(ctx context.Context, _ interface{}, reason string) error {
	return e.send(ctx, EventSellerSuspended, TopicSellers, SeverityWarning, "",
		"event", "seller_suspended",
		"reason", reason,
	)
}

// OnSellerReactivated implements plugin.OnSellerReactivated.
func (e *Extension) OnSellerReactivated(ctx context.Context, _ interface{}) error {
	return e.send(ctx, EventSellerReactivated, TopicSellers, SeverityInfo, "",
		"event", "seller_reactivated",
	)
}

// ──────────────────────────────────────────────────
// Pricing hooks
// ──────────────────────────────────────────────────

// OnCeilingUpdated implements plugin.OnCeilingUpdated.
func (e *Extension) OnCeilingUpdated(ctx context.Context, _, _ interface{}) error {
	return e.send(ctx, EventCeilingUpdated, TopicPricing, SeverityInfo, "",
		"event", "ceiling_updated",
	)
}

// OnViolationDetected implements plugin.OnViolationDetected.
func (e *Extension) OnViolationDetected(ctx context.Context, _ interface{}) error {
	return e.send(ctx, EventViolationDetected, TopicPricing, SeverityWarning, "",
		"event", "violation_detected",
	)
}

// OnViolationResolved implements plugin.OnViolationResolved.
func (e *Extension) OnViolationResolved(ctx context.Context, _ interface{}) error {
	return e.send(ctx, EventViolationResolved, TopicPricing, SeverityInfo, "",
		"event", "violation_resolved",
	)
}

// ──────────────────────────────────────────────────
// Procurement hooks
// ──────────────────────────────────────────────────

// OnOrderApproved implements plugin.OnOrderApproved.
func (e *Extension) OnOrderApproved(ctx context.Context, _, _ interface{}) error {
	return e.send(ctx, EventOrderApproved, TopicProcurement, SeverityInfo, "",
		"event", "order_approved",
	)
}

// OnOrderRejected implements plugin.OnOrderRejected.
func (e *Extension) OnOrderRejected(ctx context.Context, _ interface{}, reason string) error {
	return e.send(ctx, EventOrderRejected, TopicProcurement, SeverityInfo, "",
		"event", "order_rejected",
		"reason", reason,
	)
}

// ──────────────────────────────────────────────────
// Inventory hooks
// ──────────────────────────────────────────────────

// OnLotReceived implements plugin.OnLotReceived.
func (e *Extension) OnLotReceived(ctx context.Context, _ interface{}) error {
	return e.send(ctx, EventLotReceived, TopicInventory, SeverityInfo, "",
		"event", "lot_received",
	)
}

// OnStockConsumed implements plugin.OnStockConsumed.
func (e *Extension) OnStockConsumed(ctx context.Context, productID string, quantity int64, _ interface{}) error {
	return e.send(ctx, EventStockConsumed, TopicInventory, SeverityInfo, productID,
		"product_id", productID,
		"quantity", quantity,
	)
}

// OnLotAdjusted implements plugin.OnLotAdjusted.
func (e *Extension) OnLotAdjusted(ctx context.Context, _ interface{}, delta int64, reason string) error {
	return e.send(ctx, EventLotAdjusted, TopicInventory, SeverityInfo, "",
		"delta", delta,
		"reason", reason,
	)
}

// OnLowStock implements plugin.OnLowStock.
func (e *Extension) OnLowStock(ctx context.Context, productID string, remaining int64) error {
	return e.send(ctx, EventLowStock, TopicInventory, SeverityCritical, productID,
		"product_id", productID,
		"remaining", remaining,
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// send builds and dispatches a notification if the event is enabled.
func (e *Extension) send(
	ctx context.Context,
	event, topic, severity, subject string,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[event] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	n := &Notification{
		Event:    event,
		Topic:    topic,
		Severity: severity,
		Subject:  subject,
		Metadata: meta,
	}

	if err := e.notifier.Notify(ctx, n); err != nil {
		e.logger.Warn("notify_hook: failed to send notification",
			"event", event,
			"topic", topic,
			"error", err,
		)
	}
	return nil
}
