// Package seller defines the seller entity and its lifecycle states.
package seller

import (
	"time"

	"github.com/xraph/granary/id"
	"github.com/xraph/granary/types"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusSuspended Status = "suspended"
	StatusRejected  Status = "rejected"
)

// Seller is a marketplace vendor subject to administrative review.
// Sellers are created pending and are never deleted; rejected sellers
// remain queryable for audit.
type Seller struct {
	types.Entity
	ID                id.SellerID       `json:"id"`
	Name              string            `json:"name"`
	Region            string            `json:"region,omitempty"`
	Status            Status            `json:"status"`
	DocumentsVerified bool              `json:"documents_verified"`
	ApprovalDate      *time.Time        `json:"approval_date,omitempty"`
	ApprovalNotes     string            `json:"approval_notes,omitempty"`
	RejectionReason   string            `json:"rejection_reason,omitempty"`
	SuspensionReason  string            `json:"suspension_reason,omitempty"`
	SuspendedAt       *time.Time        `json:"suspended_at,omitempty"`
	SuspendedUntil    *time.Time        `json:"suspended_until,omitempty"`
	Metadata          map[string]string `json:"metadata,omitempty"`
}

// legalTransitions is the full transition relation of the lifecycle.
// PENDING may be approved or rejected; APPROVED and SUSPENDED toggle;
// REJECTED is terminal.
var legalTransitions = map[Status][]Status{
	StatusPending:   {StatusApproved, StatusRejected},
	StatusApproved:  {StatusSuspended},
	StatusSuspended: {StatusApproved},
	StatusRejected:  {},
}

// CanTransition reports whether moving from the seller's current status
// to target is a legal lifecycle transition.
func (s *Seller) CanTransition(target Status) bool {
	for _, next := range legalTransitions[s.Status] {
		if next == target {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the seller's status admits no further transitions.
func (s *Seller) IsTerminal() bool {
	return len(legalTransitions[s.Status]) == 0
}

// IsActive reports whether the seller may currently trade.
func (s *Seller) IsActive() bool {
	return s.Status == StatusApproved
}
