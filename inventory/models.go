// Package inventory defines FIFO lot-based stock accounting types.
package inventory

import (
	"time"

	"github.com/xraph/granary/id"
	"github.com/xraph/granary/types"
)

// Lot is a discrete batch of stock sourced from exactly one approved
// purchase order. Lots for the same product are consumed strictly in
// ReceivedAt order. An exhausted lot is retained for audit but excluded
// from future allocation.
type Lot struct {
	types.Entity
	ID                id.LotID           `json:"id"`
	ProductID         string             `json:"product_id"`
	OriginalQuantity  int64              `json:"original_quantity"`
	QuantityRemaining int64              `json:"quantity_remaining"`
	UnitCost          types.Money        `json:"unit_cost"`
	ReceivedAt        time.Time          `json:"received_at"`
	SourceOrderID     id.PurchaseOrderID `json:"source_order_id"`
	ExpiresAt         *time.Time         `json:"expires_at,omitempty"`
}

// HasStock reports whether the lot still holds allocatable units.
func (l *Lot) HasStock() bool {
	return l.QuantityRemaining > 0
}

// ExpiresWithin reports whether the lot expires within the window ending
// at deadline. Lots without an expiry never match.
func (l *Lot) ExpiresWithin(deadline time.Time) bool {
	return l.ExpiresAt != nil && !l.ExpiresAt.After(deadline)
}

// Allocation is one slice of a consumption: how many units were taken
// from which lot.
type Allocation struct {
	LotID    id.LotID `json:"lot_id"`
	Quantity int64    `json:"quantity"`
}
