package granary

import "context"

// Capability tags what an admin actor is allowed to do. The facade checks
// exactly one capability before dispatching an operation; no permission
// logic lives in the engines.
type Capability string

const (
	// CapSellerReview covers seller approval, rejection, suspension,
	// reactivation and document verification.
	CapSellerReview Capability = "seller_review"
	// CapPricing covers ceiling updates, compliance checks and violation
	// resolution.
	CapPricing Capability = "pricing"
	// CapProcurement covers purchase order approval and rejection.
	CapProcurement Capability = "procurement"
	// CapInventory covers lot receipt, consumption and adjustment.
	CapInventory Capability = "inventory"
	// CapAuditRead covers audit trail queries.
	CapAuditRead Capability = "audit_read"
)

// Actor is the admin on whose behalf an operation runs.
type Actor struct {
	ID           string
	Capabilities []Capability
}

// Can reports whether the actor holds the capability.
func (a Actor) Can(c Capability) bool {
	for _, held := range a.Capabilities {
		if held == c {
			return true
		}
	}
	return false
}

type actorKey struct{}

// WithActor returns a context carrying the acting admin. Every mutating
// engine call reads the actor from its context.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// ActorFromContext extracts the actor set by WithActor.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(Actor)
	return a, ok
}
