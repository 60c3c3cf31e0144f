// Package granary provides an administrative governance engine for
// agricultural marketplaces.
//
// Granary is designed as a library, not a service. Import it directly into
// your Go application and embed it behind your admin surface. It provides:
//
//   - Seller lifecycle management with an explicit approval state machine
//   - Price-ceiling compliance with versioned ceilings and violation tracking
//   - Purchase order review feeding a FIFO inventory ledger
//   - Lot-level inventory with all-or-nothing consumption and adjustments
//   - A complete append-only audit trail, one record per mutation attempt
//   - Pluggable lifecycle hooks for notifications and metrics
//
// # Quick Start
//
// Create an engine instance with your preferred store:
//
//	import (
//	    "github.com/xraph/granary"
//	    "github.com/xraph/granary/store/postgres"
//	)
//
//	// Initialize store
//	store, err := postgres.New(databaseURL)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Create engine
//	g := granary.New(store)
//
//	// Start the engine (runs migrations, initializes plugins)
//	if err := g.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer g.Stop()
//
// # Core Concepts
//
// Every mutating call runs on behalf of an admin actor carried in the
// context, holding the one capability the operation requires:
//
//	ctx = granary.WithActor(ctx, granary.Actor{
//	    ID:           "admin-17",
//	    Capabilities: []granary.Capability{granary.CapSellerReview},
//	})
//
// Sellers move through an explicit lifecycle. Only legal transitions
// succeed; everything else returns ErrInvalidTransition:
//
//	sl, err := g.ApproveSeller(ctx, sellerID, "documents in order")
//
// Price ceilings are versioned per product, and compliance checks compare
// listings against the ceiling in effect:
//
//	outcome, err := g.CheckCompliance(ctx, sellerID, "wheat-hrw", granary.USD(10500))
//	if outcome.Result == violation.ResultNonCompliant {
//	    // outcome.Violation carries the overage in basis points
//	}
//
// Approving a purchase order creates the inventory lot in the same unit,
// and consumption drains lots oldest first:
//
//	po, lot, err := g.ApproveOrder(ctx, orderID, 500, granary.USD(950), "")
//	allocations, err := g.Consume(ctx, "wheat-hrw", 300)
//
// # Audit Trail
//
// Every mutation attempt, successful or failed, appends exactly one audit
// record with before/after snapshots and a store-assigned sequence number.
// Query the trail by actor, target or time range:
//
//	records, err := g.AuditByTarget(ctx, sellerID.String(), audit.ListOpts{})
//
// All monetary calculations use integer arithmetic to avoid floating-point
// precision issues. The Money type represents amounts in the smallest
// currency unit (cents for USD, pence for GBP, etc).
//
// # TypeID
//
// All entities use TypeID for globally unique, type-safe identifiers:
//
//	slr_01h2xcejqtf2nbrexx3vqjhp41  // Seller ID
//	po_01h2xcejqtf2nbrexx3vqjhp41   // Purchase order ID
//	lot_01h455vb4pex5vsknk084sn02q  // Inventory lot ID
//
// TypeIDs are K-sortable, making them ideal for database indexes and
// providing natural time-ordering of entities.
package granary
