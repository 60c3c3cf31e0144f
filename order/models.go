// Package order defines bulk sell-to-platform purchase orders.
package order

import (
	"time"

	"github.com/xraph/granary/id"
	"github.com/xraph/granary/types"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// PurchaseOrder is a seller's offer to sell a quantity of produce to the
// platform. Orders are created pending, terminalized exactly once, and
// immutable thereafter. Approval fields are set iff the order is approved.
type PurchaseOrder struct {
	types.Entity
	ID                 id.PurchaseOrderID `json:"id"`
	SellerID           id.SellerID        `json:"seller_id"`
	ProductID          string             `json:"product_id"`
	SubmittedQuantity  int64              `json:"submitted_quantity"`
	SubmittedUnitPrice types.Money        `json:"submitted_unit_price"`
	Status             Status             `json:"status"`
	ApprovedQuantity   int64              `json:"approved_quantity,omitempty"`
	FinalUnitPrice     types.Money        `json:"final_unit_price,omitempty"`
	DecisionNotes      string             `json:"decision_notes,omitempty"`
	DecidedAt          *time.Time         `json:"decided_at,omitempty"`
	// LotID links the approval to the inventory lot it created.
	LotID id.LotID `json:"lot_id,omitempty"`
}

// IsPending reports whether the order still awaits a decision.
func (p *PurchaseOrder) IsPending() bool {
	return p.Status == StatusPending
}
