// Package violation defines compliance violations raised when a listing
// prices above the product's current ceiling.
package violation

import (
	"fmt"

	"github.com/xraph/granary/id"
	"github.com/xraph/granary/types"
)

type Status string

const (
	StatusNew       Status = "new"
	StatusWarned    Status = "warned"
	StatusAdjusted  Status = "adjusted"
	StatusSuspended Status = "suspended"
)

// rank orders statuses for the forward-only transition rule.
// ADJUSTED and SUSPENDED are both terminal resolutions at the same rank.
var rank = map[Status]int{
	StatusNew:       0,
	StatusWarned:    1,
	StatusAdjusted:  2,
	StatusSuspended: 2,
}

// Violation records one detected over-ceiling listing. Violations are
// retained permanently as compliance history. At most one open violation
// (NEW or WARNED) exists per (seller, product) pair; repeat detections
// update the open record rather than duplicating it.
type Violation struct {
	types.Entity
	ID                 id.ViolationID `json:"id"`
	SellerID           id.SellerID    `json:"seller_id"`
	ProductID          string         `json:"product_id"`
	ListedPrice        types.Money    `json:"listed_price"`
	CeilingAtDetection types.Money    `json:"ceiling_at_detection"`
	// OverageBps is how far the listed price exceeds the ceiling, in
	// integer basis points (1 bp = 0.01%). Always > 0 for a recorded
	// violation; only over-ceiling listings are recorded.
	OverageBps int64  `json:"overage_bps"`
	Status     Status `json:"status"`
	Resolution string `json:"resolution,omitempty"`
	ResolvedBy string `json:"resolved_by,omitempty"`
}

// IsOpen reports whether the violation still awaits a terminal resolution.
func (v *Violation) IsOpen() bool {
	return v.Status == StatusNew || v.Status == StatusWarned
}

// CanResolveTo reports whether moving to target respects the forward-only
// rule: NEW -> WARNED -> {ADJUSTED, SUSPENDED}, never backward, never a
// second terminal resolution.
func (v *Violation) CanResolveTo(target Status) bool {
	tr, ok := rank[target]
	if !ok {
		return false
	}
	return tr > rank[v.Status]
}

// OveragePercent renders OverageBps as a percent string with two decimal
// places, e.g. 1250 bps -> "12.50". Display only; decisions use OverageBps.
func (v *Violation) OveragePercent() string {
	return fmt.Sprintf("%d.%02d", v.OverageBps/100, v.OverageBps%100)
}

// Result classifies one compliance check.
type Result string

const (
	ResultCompliant    Result = "compliant"
	ResultNonCompliant Result = "non_compliant"
)

// CheckOutcome is what a compliance check returns to the caller.
type CheckOutcome struct {
	Result Result `json:"result"`
	// NoCeiling distinguishes "under the ceiling" from "no ceiling exists
	// for this product" (both compliant by policy).
	NoCeiling bool `json:"no_ceiling,omitempty"`
	// Violation is set when Result is non-compliant: the open violation
	// created or updated by this check.
	Violation *Violation `json:"violation,omitempty"`
}
