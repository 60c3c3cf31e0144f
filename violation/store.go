package violation

import (
	"context"

	"github.com/xraph/granary/id"
)

type Store interface {
	Create(ctx context.Context, v *Violation) error
	Get(ctx context.Context, violationID id.ViolationID) (*Violation, error)
	// GetOpen returns the NEW or WARNED violation for the pair, or a
	// not-found error. At most one such record exists at a time.
	GetOpen(ctx context.Context, sellerID id.SellerID, productID string) (*Violation, error)
	Update(ctx context.Context, v *Violation) error
	List(ctx context.Context, opts ListOpts) ([]*Violation, error)
}

type ListOpts struct {
	SellerID  id.SellerID
	ProductID string
	Status    Status
	Limit     int
	Offset    int
}
