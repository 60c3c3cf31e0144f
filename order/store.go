package order

import (
	"context"

	"github.com/xraph/granary/id"
	"github.com/xraph/granary/inventory"
)

type Store interface {
	Create(ctx context.Context, p *PurchaseOrder) error
	Get(ctx context.Context, orderID id.PurchaseOrderID) (*PurchaseOrder, error)
	List(ctx context.Context, opts ListOpts) ([]*PurchaseOrder, error)
	// Finalize terminalizes the order in one unit: the stored row must
	// still be pending or the call fails without effect. When lot is
	// non-nil (approval) the lot is persisted in the same unit; a lot
	// failure leaves the order pending.
	Finalize(ctx context.Context, p *PurchaseOrder, lot *inventory.Lot) error
}

type ListOpts struct {
	SellerID  id.SellerID
	ProductID string
	Status    Status
	Limit     int
	Offset    int
}
