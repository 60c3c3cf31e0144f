// Package ceiling defines versioned price ceiling records.
package ceiling

import (
	"time"

	"github.com/xraph/granary/id"
	"github.com/xraph/granary/types"
)

// PriceCeiling is the admin-set maximum unit price for one product,
// valid from EffectiveFrom until superseded by a newer record for the
// same product. Records are never mutated or deleted; updates append.
type PriceCeiling struct {
	types.Entity
	ID              id.CeilingID `json:"id"`
	ProductID       string       `json:"product_id"`
	CeilingPrice    types.Money  `json:"ceiling_price"`
	EffectiveFrom   time.Time    `json:"effective_from"`
	PreviousCeiling *types.Money `json:"previous_ceiling,omitempty"`
	Reason          string       `json:"reason,omitempty"`
	SetBy           string       `json:"set_by,omitempty"`
}

// InEffect reports whether the record is effective at the given instant.
// The current ceiling is the in-effect record with the latest EffectiveFrom.
func (c *PriceCeiling) InEffect(at time.Time) bool {
	return !c.EffectiveFrom.After(at)
}
