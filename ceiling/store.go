package ceiling

import (
	"context"
	"time"
)

type Store interface {
	Create(ctx context.Context, c *PriceCeiling) error
	// Current returns the record with the latest EffectiveFrom <= at for
	// the product, or a not-found error when no ceiling exists.
	Current(ctx context.Context, productID string, at time.Time) (*PriceCeiling, error)
	// History returns all records for the product, newest first.
	History(ctx context.Context, productID string) ([]*PriceCeiling, error)
}
