package inventory

import (
	"context"

	"github.com/xraph/granary/id"
)

type Store interface {
	CreateLot(ctx context.Context, l *Lot) error
	GetLot(ctx context.Context, lotID id.LotID) (*Lot, error)
	// ListLots returns lots for the product ordered ascending by
	// ReceivedAt. When onlyAvailable is set, exhausted lots are skipped.
	ListLots(ctx context.Context, productID string, onlyAvailable bool) ([]*Lot, error)
	// ApplyConsumption decrements each allocated lot in one unit. Callers
	// compute the allocation; the store persists it.
	ApplyConsumption(ctx context.Context, productID string, allocations []Allocation) error
	// AdjustLot sets the lot's remaining quantity.
	AdjustLot(ctx context.Context, lotID id.LotID, newRemaining int64) error
	TotalAvailable(ctx context.Context, productID string) (int64, error)
}
