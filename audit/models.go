// Package audit defines the append-only governance audit trail.
package audit

import (
	"encoding/json"
	"time"

	"github.com/xraph/granary/id"
)

// Action identifies which governance mutation a record captures.
type Action string

const (
	ActionSellerRegister   Action = "seller.register"
	ActionSellerApprove    Action = "seller.approve"
	ActionSellerReject     Action = "seller.reject"
	ActionSellerSuspend    Action = "seller.suspend"
	ActionSellerReactivate Action = "seller.reactivate"
	ActionSellerVerifyDocs Action = "seller.verify_documents"
	ActionCeilingUpdate    Action = "ceiling.update"
	ActionComplianceCheck  Action = "compliance.check"
	ActionViolationResolve Action = "violation.resolve"
	ActionOrderSubmit      Action = "order.submit"
	ActionOrderApprove     Action = "order.approve"
	ActionOrderReject      Action = "order.reject"
	ActionInventoryReceive Action = "inventory.receive"
	ActionInventoryConsume Action = "inventory.consume"
	ActionInventoryAdjust  Action = "inventory.adjust"
)

// Outcome records whether the mutation succeeded.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// Record is one immutable audit entry. Exactly one record exists per
// governance mutation attempt, successful or failed. Records are never
// updated or deleted.
type Record struct {
	ID id.AuditRecordID `json:"id"`
	// Seq is assigned by the store at append time, strictly increasing.
	// If mutation B depends on mutation A having completed, A's Seq is
	// lower than B's.
	Seq        int64     `json:"seq"`
	ActorID    string    `json:"actor_id"`
	Action     Action    `json:"action"`
	TargetID   string    `json:"target_id"`
	OccurredAt time.Time `json:"occurred_at"`
	// Before and After are opaque snapshots of the target entity around
	// the mutation. For failures, After carries the rejected change.
	Before  json.RawMessage `json:"before,omitempty"`
	After   json.RawMessage `json:"after,omitempty"`
	Outcome Outcome         `json:"outcome"`
	Reason  string          `json:"reason,omitempty"`
}
