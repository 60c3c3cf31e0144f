package seller

import (
	"context"

	"github.com/xraph/granary/id"
)

type Store interface {
	Create(ctx context.Context, s *Seller) error
	Get(ctx context.Context, sellerID id.SellerID) (*Seller, error)
	List(ctx context.Context, opts ListOpts) ([]*Seller, error)
	Update(ctx context.Context, s *Seller) error
	// Transition persists s only if the stored row still carries the
	// expected status. A mismatch means the caller raced another admin.
	Transition(ctx context.Context, s *Seller, expected Status) error
}

type ListOpts struct {
	Status Status
	Region string
	Limit  int
	Offset int
}
