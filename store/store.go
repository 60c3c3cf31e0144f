package store

import (
	"context"
	"time"

	"github.com/xraph/granary/audit"
	"github.com/xraph/granary/ceiling"
	"github.com/xraph/granary/id"
	"github.com/xraph/granary/inventory"
	"github.com/xraph/granary/order"
	"github.com/xraph/granary/seller"
	"github.com/xraph/granary/violation"
)

// Store is the unified storage interface for all Granary entities.
// Instead of embedding the sub-interfaces, we explicitly declare all methods
// to avoid naming conflicts.
type Store interface {
	// Seller methods
	CreateSeller(ctx context.Context, s *seller.Seller) error
	GetSeller(ctx context.Context, sellerID id.SellerID) (*seller.Seller, error)
	ListSellers(ctx context.Context, opts seller.ListOpts) ([]*seller.Seller, error)
	UpdateSeller(ctx context.Context, s *seller.Seller) error
	// TransitionSeller persists s only if the stored row still carries the
	// expected status; otherwise it fails without effect.
	TransitionSeller(ctx context.Context, s *seller.Seller, expected seller.Status) error

	// Price ceiling methods
	CreateCeiling(ctx context.Context, c *ceiling.PriceCeiling) error
	CurrentCeiling(ctx context.Context, productID string, at time.Time) (*ceiling.PriceCeiling, error)
	CeilingHistory(ctx context.Context, productID string) ([]*ceiling.PriceCeiling, error)

	// Violation methods
	CreateViolation(ctx context.Context, v *violation.Violation) error
	GetViolation(ctx context.Context, violationID id.ViolationID) (*violation.Violation, error)
	GetOpenViolation(ctx context.Context, sellerID id.SellerID, productID string) (*violation.Violation, error)
	UpdateViolation(ctx context.Context, v *violation.Violation) error
	ListViolations(ctx context.Context, opts violation.ListOpts) ([]*violation.Violation, error)

	// Purchase order methods
	CreateOrder(ctx context.Context, p *order.PurchaseOrder) error
	GetOrder(ctx context.Context, orderID id.PurchaseOrderID) (*order.PurchaseOrder, error)
	ListOrders(ctx context.Context, opts order.ListOpts) ([]*order.PurchaseOrder, error)
	// FinalizeOrder terminalizes a pending order in one unit. When lot is
	// non-nil (approval) the lot is created in the same unit; if either
	// write fails, neither is visible. A non-pending stored row fails the
	// call without effect.
	FinalizeOrder(ctx context.Context, p *order.PurchaseOrder, lot *inventory.Lot) error

	// Inventory methods
	CreateLot(ctx context.Context, l *inventory.Lot) error
	GetLot(ctx context.Context, lotID id.LotID) (*inventory.Lot, error)
	ListLots(ctx context.Context, productID string, onlyAvailable bool) ([]*inventory.Lot, error)
	ApplyConsumption(ctx context.Context, productID string, allocations []inventory.Allocation) error
	AdjustLot(ctx context.Context, lotID id.LotID, newRemaining int64) error
	TotalAvailable(ctx context.Context, productID string) (int64, error)

	// Audit methods
	AppendAudit(ctx context.Context, r *audit.Record) error
	ListAuditByActor(ctx context.Context, actorID string, opts audit.ListOpts) ([]*audit.Record, error)
	ListAuditByTarget(ctx context.Context, targetID string, opts audit.ListOpts) ([]*audit.Record, error)
	ListAuditByRange(ctx context.Context, from, to time.Time, opts audit.ListOpts) ([]*audit.Record, error)

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
