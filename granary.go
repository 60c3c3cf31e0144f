package granary

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/xraph/granary/audit"
	"github.com/xraph/granary/ceiling"
	"github.com/xraph/granary/id"
	"github.com/xraph/granary/inventory"
	"github.com/xraph/granary/lock"
	"github.com/xraph/granary/order"
	"github.com/xraph/granary/plugin"
	"github.com/xraph/granary/seller"
	"github.com/xraph/granary/store"
	"github.com/xraph/granary/types"
	"github.com/xraph/granary/violation"
)

// Listing is one active listing returned by the listing query service.
type Listing struct {
	SellerID id.SellerID `json:"seller_id"`
	Price    types.Money `json:"price"`
}

// ListingSource is the external read-only collaborator a ceiling update
// uses to find the listings it must re-evaluate.
type ListingSource interface {
	ActiveListings(ctx context.Context, productID string) ([]Listing, error)
}

// Engine is the governance facade. Every mutating operation checks the
// actor's capability once, serializes on the relevant key, performs the
// mutation, and writes exactly one audit record, success or failure,
// before the caller observes the result.
type Engine struct {
	store    store.Store
	plugins  *plugin.Registry
	logger   *slog.Logger
	locks    *lock.Keyed
	listings ListingSource

	// Configuration
	lockTimeout       time.Duration
	lowStockThreshold int64
	disableMigrate    bool
}

// New creates a new Engine instance.
func New(s store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:       s,
		plugins:     plugin.NewRegistry(),
		logger:      slog.Default(),
		lockTimeout: lock.DefaultTimeout,
	}

	for _, opt := range opts {
		opt(e)
	}

	e.locks = lock.NewKeyed(e.lockTimeout)

	return e
}

// Option configures an Engine instance.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
		e.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Engine) {
		_ = e.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithListingSource sets the listing query collaborator used by ceiling
// updates. Without one, ceiling updates skip re-evaluation.
func WithListingSource(ls ListingSource) Option {
	return func(e *Engine) {
		e.listings = ls
	}
}

// WithLockTimeout bounds how long an operation waits for a contended
// seller, product or order before failing with ErrBusy.
func WithLockTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.lockTimeout = d
	}
}

// WithLowStockThreshold enables low-stock plugin events: after any
// consumption that leaves a product at or below the threshold, OnLowStock
// fires. Zero disables the event.
func WithLowStockThreshold(n int64) Option {
	return func(e *Engine) {
		e.lowStockThreshold = n
	}
}

// WithPluginCallTimeout bounds each plugin hook invocation.
func WithPluginCallTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.plugins.WithCallTimeout(d)
	}
}

// WithoutMigrate skips store migration on Start. Use when the host
// application manages schema migrations itself.
func WithoutMigrate() Option {
	return func(e *Engine) {
		e.disableMigrate = true
	}
}

// Start prepares the store and initializes plugins.
func (e *Engine) Start(ctx context.Context) error {
	if !e.disableMigrate {
		if err := e.store.Migrate(ctx); err != nil {
			return err
		}
	}

	e.plugins.EmitInit(ctx, e)

	e.logger.Info("granary started",
		"lock_timeout", e.lockTimeout,
		"low_stock_threshold", e.lowStockThreshold,
	)

	return nil
}

// Stop shuts down the Engine.
func (e *Engine) Stop() error {
	ctx := context.Background()
	e.plugins.EmitShutdown(ctx)

	return e.store.Close()
}

// Ping reports store health.
func (e *Engine) Ping(ctx context.Context) error {
	return e.store.Ping(ctx)
}

// ──────────────────────────────────────────────────
// Audit plumbing
// ──────────────────────────────────────────────────

// snapshot marshals an entity state for an audit record. Marshal failures
// degrade to a nil snapshot rather than blocking the mutation.
func snapshot(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}

// recordSuccess appends the one audit record for a completed mutation.
// The append happens inside the operation's lock scope, so sequence
// numbers respect causal order. An append failure is surfaced: a
// mutation the trail cannot account for is a reportable condition.
func (e *Engine) recordSuccess(ctx context.Context, actorID string, action audit.Action, targetID string, before, after any) error {
	rec := &audit.Record{
		ID:         id.NewAuditRecordID(),
		ActorID:    actorID,
		Action:     action,
		TargetID:   targetID,
		OccurredAt: time.Now().UTC(),
		Before:     snapshot(before),
		After:      snapshot(after),
		Outcome:    audit.OutcomeSuccess,
	}

	if err := e.store.AppendAudit(ctx, rec); err != nil {
		e.logger.Error("audit append failed",
			"action", action,
			"target", targetID,
			"error", err,
		)
		return ErrAuditAppendFailed
	}
	return nil
}

// recordFailure appends the audit record for a rejected mutation attempt.
// The operation error is already being propagated; an append failure here
// is logged, not stacked on top of it.
func (e *Engine) recordFailure(ctx context.Context, actorID string, action audit.Action, targetID string, before, attempted any, opErr error) {
	rec := &audit.Record{
		ID:         id.NewAuditRecordID(),
		ActorID:    actorID,
		Action:     action,
		TargetID:   targetID,
		OccurredAt: time.Now().UTC(),
		Before:     snapshot(before),
		After:      snapshot(attempted),
		Outcome:    audit.OutcomeFailure,
		Reason:     opErr.Error(),
	}

	if err := e.store.AppendAudit(ctx, rec); err != nil {
		e.logger.Error("audit append failed",
			"action", action,
			"target", targetID,
			"error", err,
		)
	}
}

// requireActor extracts the acting admin and checks the one capability
// the operation needs. The zero Actor is returned on failure so callers
// can still attribute the failure audit record.
func (e *Engine) requireActor(ctx context.Context, c Capability) (Actor, error) {
	a, ok := ActorFromContext(ctx)
	if !ok || !a.Can(c) {
		return a, ErrForbidden
	}
	return a, nil
}

// acquire takes the serialization key for an operation, mapping lock
// timeouts to ErrBusy.
func (e *Engine) acquire(ctx context.Context, key string) (func(), error) {
	release, err := e.locks.Acquire(ctx, key)
	if err != nil {
		return nil, ErrBusy
	}
	return release, nil
}

// ──────────────────────────────────────────────────
// Seller lifecycle
// ──────────────────────────────────────────────────

// RegisterSeller creates a new seller in pending status.
func (e *Engine) RegisterSeller(ctx context.Context, sl *seller.Seller) error {
	actor, _ := ActorFromContext(ctx)

	// Assign the ID up front so even a rejected registration has an
	// attributable audit target.
	if sl.ID.IsNil() {
		sl.ID = id.NewSellerID()
	}

	if sl.Name == "" {
		err := ValidationError{Field: "name", Message: "required"}
		e.recordFailure(ctx, actor.ID, audit.ActionSellerRegister, sl.ID.String(), nil, sl, err)
		return err
	}

	sl.Entity = types.NewEntity()
	sl.Status = seller.StatusPending

	if err := e.store.CreateSeller(ctx, sl); err != nil {
		e.recordFailure(ctx, actor.ID, audit.ActionSellerRegister, sl.ID.String(), nil, sl, err)
		return err
	}

	return e.recordSuccess(ctx, actor.ID, audit.ActionSellerRegister, sl.ID.String(), nil, sl)
}

// GetSeller retrieves a seller by ID.
func (e *Engine) GetSeller(ctx context.Context, sellerID id.SellerID) (*seller.Seller, error) {
	return e.store.GetSeller(ctx, sellerID)
}

// ListSellers lists sellers with optional filters.
func (e *Engine) ListSellers(ctx context.Context, opts seller.ListOpts) ([]*seller.Seller, error) {
	return e.store.ListSellers(ctx, opts)
}

// ApproveSeller moves a pending seller to approved and stamps the
// approval date. Approving an already-approved seller fails with
// ErrInvalidTransition; it is never a silent success, so callers cannot
// double-fire approval side effects.
func (e *Engine) ApproveSeller(ctx context.Context, sellerID id.SellerID, notes string) (*seller.Seller, error) {
	return e.transitionSeller(ctx, sellerID, seller.StatusApproved, audit.ActionSellerApprove,
		func(sl *seller.Seller, now time.Time) {
			sl.Status = seller.StatusApproved
			sl.ApprovalDate = &now
			sl.ApprovalNotes = notes
		})
}

// RejectSeller moves a pending seller to rejected. Rejected is terminal.
func (e *Engine) RejectSeller(ctx context.Context, sellerID id.SellerID, reason string) (*seller.Seller, error) {
	return e.transitionSeller(ctx, sellerID, seller.StatusRejected, audit.ActionSellerReject,
		func(sl *seller.Seller, _ time.Time) {
			sl.Status = seller.StatusRejected
			sl.RejectionReason = reason
		})
}

// SuspendSeller moves an approved seller to suspended. When durationDays
// is positive, SuspendedUntil records when the suspension is meant to
// lapse; reactivation remains an explicit admin action either way.
func (e *Engine) SuspendSeller(ctx context.Context, sellerID id.SellerID, reason string, durationDays int) (*seller.Seller, error) {
	return e.transitionSeller(ctx, sellerID, seller.StatusSuspended, audit.ActionSellerSuspend,
		func(sl *seller.Seller, now time.Time) {
			sl.Status = seller.StatusSuspended
			sl.SuspensionReason = reason
			sl.SuspendedAt = &now
			if durationDays > 0 {
				until := now.AddDate(0, 0, durationDays)
				sl.SuspendedUntil = &until
			}
		})
}

// ReactivateSeller moves a suspended seller back to approved and clears
// the suspension bookkeeping. The original approval date is retained.
func (e *Engine) ReactivateSeller(ctx context.Context, sellerID id.SellerID) (*seller.Seller, error) {
	return e.transitionSeller(ctx, sellerID, seller.StatusApproved, audit.ActionSellerReactivate,
		func(sl *seller.Seller, _ time.Time) {
			sl.Status = seller.StatusApproved
			sl.SuspensionReason = ""
			sl.SuspendedAt = nil
			sl.SuspendedUntil = nil
		})
}

// transitionSeller is the shared lifecycle path: capability check, per-
// seller lock, legality check against the state machine, conditional
// store transition, audit, plugin event.
func (e *Engine) transitionSeller(ctx context.Context, sellerID id.SellerID, target seller.Status, action audit.Action, apply func(*seller.Seller, time.Time)) (*seller.Seller, error) {
	actor, err := e.requireActor(ctx, CapSellerReview)
	if err != nil {
		e.recordFailure(ctx, actor.ID, action, sellerID.String(), nil,
			map[string]string{"required_capability": string(CapSellerReview)}, err)
		return nil, err
	}

	release, err := e.acquire(ctx, lock.SellerKey(sellerID.String()))
	if err != nil {
		e.recordFailure(ctx, actor.ID, action, sellerID.String(), nil, nil, err)
		return nil, err
	}
	defer release()

	sl, err := e.store.GetSeller(ctx, sellerID)
	if err != nil {
		e.recordFailure(ctx, actor.ID, action, sellerID.String(), nil, nil, err)
		return nil, err
	}

	if !sl.CanTransition(target) {
		err := ErrInvalidTransition
		e.recordFailure(ctx, actor.ID, action, sellerID.String(), sl,
			map[string]string{"attempted_status": string(target)}, err)
		return nil, err
	}

	before := *sl
	updated := *sl
	now := time.Now().UTC()
	apply(&updated, now)
	updated.Touch()

	if err := e.store.TransitionSeller(ctx, &updated, before.Status); err != nil {
		e.recordFailure(ctx, actor.ID, action, sellerID.String(), &before, &updated, err)
		return nil, err
	}

	if err := e.recordSuccess(ctx, actor.ID, action, sellerID.String(), &before, &updated); err != nil {
		return nil, err
	}

	switch action {
	case audit.ActionSellerApprove:
		e.plugins.EmitSellerApproved(ctx, &updated)
	case audit.ActionSellerReject:
		e.plugins.EmitSellerRejected(ctx, &updated, updated.RejectionReason)
	case audit.ActionSellerSuspend:
		e.plugins.EmitSellerSuspended(ctx, &updated, updated.SuspensionReason)
	case audit.ActionSellerReactivate:
		e.plugins.EmitSellerReactivated(ctx, &updated)
	}

	return &updated, nil
}

// VerifyDocuments marks a seller's documents as verified. Not a lifecycle
// transition; legal in any non-terminal status.
func (e *Engine) VerifyDocuments(ctx context.Context, sellerID id.SellerID) (*seller.Seller, error) {
	actor, err := e.requireActor(ctx, CapSellerReview)
	if err != nil {
		e.recordFailure(ctx, actor.ID, audit.ActionSellerVerifyDocs, sellerID.String(), nil, nil, err)
		return nil, err
	}

	release, err := e.acquire(ctx, lock.SellerKey(sellerID.String()))
	if err != nil {
		e.recordFailure(ctx, actor.ID, audit.ActionSellerVerifyDocs, sellerID.String(), nil, nil, err)
		return nil, err
	}
	defer release()

	sl, err := e.store.GetSeller(ctx, sellerID)
	if err != nil {
		e.recordFailure(ctx, actor.ID, audit.ActionSellerVerifyDocs, sellerID.String(), nil, nil, err)
		return nil, err
	}

	if sl.Status == seller.StatusRejected {
		err := ErrInvalidTransition
		e.recordFailure(ctx, actor.ID, audit.ActionSellerVerifyDocs, sellerID.String(), sl, nil, err)
		return nil, err
	}

	before := *sl
	updated := *sl
	updated.DocumentsVerified = true
	updated.Touch()

	if err := e.store.UpdateSeller(ctx, &updated); err != nil {
		e.recordFailure(ctx, actor.ID, audit.ActionSellerVerifyDocs, sellerID.String(), &before, &updated, err)
		return nil, err
	}

	if err := e.recordSuccess(ctx, actor.ID, audit.ActionSellerVerifyDocs, sellerID.String(), &before, &updated); err != nil {
		return nil, err
	}

	return &updated, nil
}

// ──────────────────────────────────────────────────
// Price compliance
// ──────────────────────────────────────────────────

// CheckCompliance evaluates one listing against the product's current
// ceiling. No ceiling means compliant by policy. An over-ceiling price
// creates a NEW violation, or refreshes the open one for the same
// (seller, product) pair so exactly one open violation exists per pair.
func (e *Engine) CheckCompliance(ctx context.Context, sellerID id.SellerID, productID string, listedPrice types.Money) (*violation.CheckOutcome, error) {
	actor, err := e.requireActor(ctx, CapPricing)
	if err != nil {
		e.recordFailure(ctx, actor.ID, audit.ActionComplianceCheck, productID, nil, nil, err)
		return nil, err
	}

	release, err := e.acquire(ctx, lock.ProductKey(productID))
	if err != nil {
		e.recordFailure(ctx, actor.ID, audit.ActionComplianceCheck, productID, nil, nil, err)
		return nil, err
	}
	defer release()

	return e.evaluateListing(ctx, actor.ID, sellerID, productID, listedPrice)
}

// evaluateListing is the compliance core. Callers hold the product lock.
// A compliant result mutates nothing and is not audited; a detection
// writes the violation and its audit record.
func (e *Engine) evaluateListing(ctx context.Context, actorID string, sellerID id.SellerID, productID string, listedPrice types.Money) (*violation.CheckOutcome, error) {
	cur, err := e.store.CurrentCeiling(ctx, productID, time.Now().UTC())
	if err != nil {
		if errors.Is(err, ErrCeilingNotFound) {
			return &violation.CheckOutcome{Result: violation.ResultCompliant, NoCeiling: true}, nil
		}
		return nil, err
	}

	// Ties are compliant; only strictly-over prices violate.
	if !listedPrice.GreaterThan(cur.CeilingPrice) {
		return &violation.CheckOutcome{Result: violation.ResultCompliant}, nil
	}

	bps := listedPrice.OverageBasisPoints(cur.CeilingPrice)

	open, err := e.store.GetOpenViolation(ctx, sellerID, productID)
	switch {
	case err == nil:
		before := *open
		updated := *open
		updated.ListedPrice = listedPrice
		updated.CeilingAtDetection = cur.CeilingPrice
		updated.OverageBps = bps
		updated.Touch()

		if err := e.store.UpdateViolation(ctx, &updated); err != nil {
			e.recordFailure(ctx, actorID, audit.ActionComplianceCheck, updated.ID.String(), &before, &updated, err)
			return nil, err
		}
		if err := e.recordSuccess(ctx, actorID, audit.ActionComplianceCheck, updated.ID.String(), &before, &updated); err != nil {
			return nil, err
		}

		e.plugins.EmitViolationDetected(ctx, &updated)
		return &violation.CheckOutcome{Result: violation.ResultNonCompliant, Violation: &updated}, nil

	case errors.Is(err, ErrViolationNotFound):
		v := &violation.Violation{
			Entity:             types.NewEntity(),
			ID:                 id.NewViolationID(),
			SellerID:           sellerID,
			ProductID:          productID,
			ListedPrice:        listedPrice,
			CeilingAtDetection: cur.CeilingPrice,
			OverageBps:         bps,
			Status:             violation.StatusNew,
		}

		if err := e.store.CreateViolation(ctx, v); err != nil {
			e.recordFailure(ctx, actorID, audit.ActionComplianceCheck, v.ID.String(), nil, v, err)
			return nil, err
		}
		if err := e.recordSuccess(ctx, actorID, audit.ActionComplianceCheck, v.ID.String(), nil, v); err != nil {
			return nil, err
		}

		e.plugins.EmitViolationDetected(ctx, v)
		return &violation.CheckOutcome{Result: violation.ResultNonCompliant, Violation: v}, nil

	default:
		return nil, err
	}
}

// UpdateCeiling supersedes the product's current ceiling with a new
// versioned record, then re-evaluates the product's active listings
// under the same product lock, so no later update for this product can
// start against a half-applied ceiling.
func (e *Engine) UpdateCeiling(ctx context.Context, productID string, newCeiling types.Money, reason string, effectiveFrom time.Time) (*ceiling.PriceCeiling, error) {
	actor, err := e.requireActor(ctx, CapPricing)
	if err != nil {
		e.recordFailure(ctx, actor.ID, audit.ActionCeilingUpdate, productID, nil, nil, err)
		return nil, err
	}

	if !newCeiling.IsPositive() {
		err := ErrInvalidCeiling
		e.recordFailure(ctx, actor.ID, audit.ActionCeilingUpdate, productID, nil,
			map[string]any{"attempted_ceiling": newCeiling}, err)
		return nil, err
	}

	release, err := e.acquire(ctx, lock.ProductKey(productID))
	if err != nil {
		e.recordFailure(ctx, actor.ID, audit.ActionCeilingUpdate, productID, nil, nil, err)
		return nil, err
	}
	defer release()

	if effectiveFrom.IsZero() {
		effectiveFrom = time.Now().UTC()
	}

	var prev *ceiling.PriceCeiling
	if cur, err := e.store.CurrentCeiling(ctx, productID, time.Now().UTC()); err == nil {
		prev = cur
	} else if !errors.Is(err, ErrCeilingNotFound) {
		e.recordFailure(ctx, actor.ID, audit.ActionCeilingUpdate, productID, nil, nil, err)
		return nil, err
	}

	c := &ceiling.PriceCeiling{
		Entity:        types.NewEntity(),
		ID:            id.NewCeilingID(),
		ProductID:     productID,
		CeilingPrice:  newCeiling,
		EffectiveFrom: effectiveFrom,
		Reason:        reason,
		SetBy:         actor.ID,
	}
	if prev != nil {
		prevPrice := prev.CeilingPrice
		c.PreviousCeiling = &prevPrice
	}

	if err := e.store.CreateCeiling(ctx, c); err != nil {
		e.recordFailure(ctx, actor.ID, audit.ActionCeilingUpdate, productID, prev, c, err)
		return nil, err
	}

	if err := e.recordSuccess(ctx, actor.ID, audit.ActionCeilingUpdate, productID, prev, c); err != nil {
		return nil, err
	}

	e.plugins.EmitCeilingUpdated(ctx, prev, c)

	// Re-evaluate active listings against the new ceiling while the
	// product lock is still held.
	if e.listings != nil {
		active, err := e.listings.ActiveListings(ctx, productID)
		if err != nil {
			e.logger.Warn("listing re-evaluation failed",
				"product", productID,
				"error", err,
			)
			return c, nil
		}
		for _, listing := range active {
			if _, err := e.evaluateListing(ctx, actor.ID, listing.SellerID, productID, listing.Price); err != nil {
				e.logger.Warn("compliance re-evaluation failed",
					"product", productID,
					"seller", listing.SellerID,
					"error", err,
				)
			}
		}
	}

	return c, nil
}

// CurrentCeiling returns the product's ceiling in effect right now.
func (e *Engine) CurrentCeiling(ctx context.Context, productID string) (*ceiling.PriceCeiling, error) {
	return e.store.CurrentCeiling(ctx, productID, time.Now().UTC())
}

// CeilingHistory returns the product's full ceiling history, newest first.
func (e *Engine) CeilingHistory(ctx context.Context, productID string) ([]*ceiling.PriceCeiling, error) {
	return e.store.CeilingHistory(ctx, productID)
}

// ResolveViolation advances a violation's status. Transitions are forward
// only: NEW -> WARNED -> {ADJUSTED, SUSPENDED}; moving backward or past a
// terminal resolution fails with ErrInvalidTransition.
func (e *Engine) ResolveViolation(ctx context.Context, violationID id.ViolationID, resolution violation.Status, notes string) (*violation.Violation, error) {
	actor, err := e.requireActor(ctx, CapPricing)
	if err != nil {
		e.recordFailure(ctx, actor.ID, audit.ActionViolationResolve, violationID.String(), nil, nil, err)
		return nil, err
	}

	v, err := e.store.GetViolation(ctx, violationID)
	if err != nil {
		e.recordFailure(ctx, actor.ID, audit.ActionViolationResolve, violationID.String(), nil, nil, err)
		return nil, err
	}

	// Resolution serializes on the violation's product, alongside the
	// checks that could refresh it.
	release, err := e.acquire(ctx, lock.ProductKey(v.ProductID))
	if err != nil {
		e.recordFailure(ctx, actor.ID, audit.ActionViolationResolve, violationID.String(), nil, nil, err)
		return nil, err
	}
	defer release()

	v, err = e.store.GetViolation(ctx, violationID)
	if err != nil {
		e.recordFailure(ctx, actor.ID, audit.ActionViolationResolve, violationID.String(), nil, nil, err)
		return nil, err
	}

	if !v.CanResolveTo(resolution) {
		err := ErrInvalidTransition
		e.recordFailure(ctx, actor.ID, audit.ActionViolationResolve, violationID.String(), v,
			map[string]string{"attempted_status": string(resolution)}, err)
		return nil, err
	}

	before := *v
	updated := *v
	updated.Status = resolution
	updated.Resolution = notes
	updated.ResolvedBy = actor.ID
	updated.Touch()

	if err := e.store.UpdateViolation(ctx, &updated); err != nil {
		e.recordFailure(ctx, actor.ID, audit.ActionViolationResolve, violationID.String(), &before, &updated, err)
		return nil, err
	}

	if err := e.recordSuccess(ctx, actor.ID, audit.ActionViolationResolve, violationID.String(), &before, &updated); err != nil {
		return nil, err
	}

	e.plugins.EmitViolationResolved(ctx, &updated)
	return &updated, nil
}

// GetViolation retrieves a violation by ID.
func (e *Engine) GetViolation(ctx context.Context, violationID id.ViolationID) (*violation.Violation, error) {
	return e.store.GetViolation(ctx, violationID)
}

// ListViolations lists violations with optional filters.
func (e *Engine) ListViolations(ctx context.Context, opts violation.ListOpts) ([]*violation.Violation, error) {
	return e.store.ListViolations(ctx, opts)
}

// ──────────────────────────────────────────────────
// Purchase orders
// ──────────────────────────────────────────────────

// SubmitOrder creates a pending purchase order from a seller's bulk-sale
// submission. The seller must be approved.
func (e *Engine) SubmitOrder(ctx context.Context, po *order.PurchaseOrder) error {
	actor, _ := ActorFromContext(ctx)

	sl, err := e.store.GetSeller(ctx, po.SellerID)
	if err != nil {
		e.recordFailure(ctx, actor.ID, audit.ActionOrderSubmit, po.ID.String(), nil, po, err)
		return err
	}
	if !sl.IsActive() {
		err := ErrSellerNotActive
		e.recordFailure(ctx, actor.ID, audit.ActionOrderSubmit, po.ID.String(), nil, po, err)
		return err
	}

	if po.SubmittedQuantity <= 0 {
		err := ErrInvalidQuantity
		e.recordFailure(ctx, actor.ID, audit.ActionOrderSubmit, po.ID.String(), nil, po, err)
		return err
	}

	if po.ID.IsNil() {
		po.ID = id.NewPurchaseOrderID()
	}
	po.Entity = types.NewEntity()
	po.Status = order.StatusPending

	if err := e.store.CreateOrder(ctx, po); err != nil {
		e.recordFailure(ctx, actor.ID, audit.ActionOrderSubmit, po.ID.String(), nil, po, err)
		return err
	}

	return e.recordSuccess(ctx, actor.ID, audit.ActionOrderSubmit, po.ID.String(), nil, po)
}

// ApproveOrder terminalizes a pending order as approved and creates the
// inventory lot in the same unit: if the lot cannot be written, the
// approval is not committed. The created lot is referenced from the
// order and its audit record so the FIFO trail reconstructs from the
// audit log alone.
func (e *Engine) ApproveOrder(ctx context.Context, orderID id.PurchaseOrderID, approvedQuantity int64, finalUnitPrice types.Money, notes string) (*order.PurchaseOrder, *inventory.Lot, error) {
	actor, err := e.requireActor(ctx, CapProcurement)
	if err != nil {
		e.recordFailure(ctx, actor.ID, audit.ActionOrderApprove, orderID.String(), nil, nil, err)
		return nil, nil, err
	}

	releaseOrder, err := e.acquire(ctx, lock.OrderKey(orderID.String()))
	if err != nil {
		e.recordFailure(ctx, actor.ID, audit.ActionOrderApprove, orderID.String(), nil, nil, err)
		return nil, nil, err
	}
	defer releaseOrder()

	po, err := e.store.GetOrder(ctx, orderID)
	if err != nil {
		e.recordFailure(ctx, actor.ID, audit.ActionOrderApprove, orderID.String(), nil, nil, err)
		return nil, nil, err
	}

	if !po.IsPending() {
		err := ErrInvalidTransition
		e.recordFailure(ctx, actor.ID, audit.ActionOrderApprove, orderID.String(), po, nil, err)
		return nil, nil, err
	}

	if approvedQuantity <= 0 || approvedQuantity > po.SubmittedQuantity {
		err := ErrInvalidQuantity
		e.recordFailure(ctx, actor.ID, audit.ActionOrderApprove, orderID.String(), po,
			map[string]int64{"attempted_quantity": approvedQuantity}, err)
		return nil, nil, err
	}

	// The lot write also serializes on the product, after the order key.
	// Lock order is always order then product.
	releaseProduct, err := e.acquire(ctx, lock.ProductKey(po.ProductID))
	if err != nil {
		e.recordFailure(ctx, actor.ID, audit.ActionOrderApprove, orderID.String(), po, nil, err)
		return nil, nil, err
	}
	defer releaseProduct()

	before := *po
	now := time.Now().UTC()

	lot := &inventory.Lot{
		Entity:            types.NewEntity(),
		ID:                id.NewLotID(),
		ProductID:         po.ProductID,
		OriginalQuantity:  approvedQuantity,
		QuantityRemaining: approvedQuantity,
		UnitCost:          finalUnitPrice,
		ReceivedAt:        now,
		SourceOrderID:     po.ID,
	}

	updated := *po
	updated.Status = order.StatusApproved
	updated.ApprovedQuantity = approvedQuantity
	updated.FinalUnitPrice = finalUnitPrice
	updated.DecisionNotes = notes
	updated.DecidedAt = &now
	updated.LotID = lot.ID
	updated.Touch()

	if err := e.store.FinalizeOrder(ctx, &updated, lot); err != nil {
		e.recordFailure(ctx, actor.ID, audit.ActionOrderApprove, orderID.String(), &before, &updated, err)
		return nil, nil, err
	}

	if err := e.recordSuccess(ctx, actor.ID, audit.ActionOrderApprove, orderID.String(), &before, &updated); err != nil {
		return nil, nil, err
	}

	e.plugins.EmitOrderApproved(ctx, &updated, lot)
	e.plugins.EmitLotReceived(ctx, lot)
	return &updated, lot, nil
}

// RejectOrder terminalizes a pending order as rejected. No inventory
// side effect.
func (e *Engine) RejectOrder(ctx context.Context, orderID id.PurchaseOrderID, reason string) (*order.PurchaseOrder, error) {
	actor, err := e.requireActor(ctx, CapProcurement)
	if err != nil {
		e.recordFailure(ctx, actor.ID, audit.ActionOrderReject, orderID.String(), nil, nil, err)
		return nil, err
	}

	release, err := e.acquire(ctx, lock.OrderKey(orderID.String()))
	if err != nil {
		e.recordFailure(ctx, actor.ID, audit.ActionOrderReject, orderID.String(), nil, nil, err)
		return nil, err
	}
	defer release()

	po, err := e.store.GetOrder(ctx, orderID)
	if err != nil {
		e.recordFailure(ctx, actor.ID, audit.ActionOrderReject, orderID.String(), nil, nil, err)
		return nil, err
	}

	if !po.IsPending() {
		err := ErrInvalidTransition
		e.recordFailure(ctx, actor.ID, audit.ActionOrderReject, orderID.String(), po, nil, err)
		return nil, err
	}

	before := *po
	now := time.Now().UTC()

	updated := *po
	updated.Status = order.StatusRejected
	updated.DecisionNotes = reason
	updated.DecidedAt = &now
	updated.Touch()

	if err := e.store.FinalizeOrder(ctx, &updated, nil); err != nil {
		e.recordFailure(ctx, actor.ID, audit.ActionOrderReject, orderID.String(), &before, &updated, err)
		return nil, err
	}

	if err := e.recordSuccess(ctx, actor.ID, audit.ActionOrderReject, orderID.String(), &before, &updated); err != nil {
		return nil, err
	}

	e.plugins.EmitOrderRejected(ctx, &updated, reason)
	return &updated, nil
}

// GetOrder retrieves a purchase order by ID.
func (e *Engine) GetOrder(ctx context.Context, orderID id.PurchaseOrderID) (*order.PurchaseOrder, error) {
	return e.store.GetOrder(ctx, orderID)
}

// ListOrders lists purchase orders with optional filters.
func (e *Engine) ListOrders(ctx context.Context, opts order.ListOpts) ([]*order.PurchaseOrder, error) {
	return e.store.ListOrders(ctx, opts)
}

// ──────────────────────────────────────────────────
// Inventory
// ──────────────────────────────────────────────────

// ReceiveLot creates a new inventory lot outside the purchase order
// path, e.g. stock carried over from a prior system.
func (e *Engine) ReceiveLot(ctx context.Context, productID string, quantity int64, unitCost types.Money, sourceOrderID id.PurchaseOrderID, expiresAt *time.Time) (*inventory.Lot, error) {
	actor, err := e.requireActor(ctx, CapInventory)
	if err != nil {
		e.recordFailure(ctx, actor.ID, audit.ActionInventoryReceive, productID, nil, nil, err)
		return nil, err
	}

	if quantity <= 0 {
		err := ErrInvalidQuantity
		e.recordFailure(ctx, actor.ID, audit.ActionInventoryReceive, productID, nil,
			map[string]int64{"attempted_quantity": quantity}, err)
		return nil, err
	}

	release, err := e.acquire(ctx, lock.ProductKey(productID))
	if err != nil {
		e.recordFailure(ctx, actor.ID, audit.ActionInventoryReceive, productID, nil, nil, err)
		return nil, err
	}
	defer release()

	lot := &inventory.Lot{
		Entity:            types.NewEntity(),
		ID:                id.NewLotID(),
		ProductID:         productID,
		OriginalQuantity:  quantity,
		QuantityRemaining: quantity,
		UnitCost:          unitCost,
		ReceivedAt:        time.Now().UTC(),
		SourceOrderID:     sourceOrderID,
		ExpiresAt:         expiresAt,
	}

	if err := e.store.CreateLot(ctx, lot); err != nil {
		e.recordFailure(ctx, actor.ID, audit.ActionInventoryReceive, lot.ID.String(), nil, lot, err)
		return nil, err
	}

	if err := e.recordSuccess(ctx, actor.ID, audit.ActionInventoryReceive, lot.ID.String(), nil, lot); err != nil {
		return nil, err
	}

	e.plugins.EmitLotReceived(ctx, lot)
	return lot, nil
}

// Consume allocates quantity units of a product across its lots, oldest
// receipt first, and commits the whole allocation or nothing. A request
// exceeding the total available fails with ErrInsufficientStock and
// leaves every lot untouched.
func (e *Engine) Consume(ctx context.Context, productID string, quantity int64) ([]inventory.Allocation, error) {
	actor, err := e.requireActor(ctx, CapInventory)
	if err != nil {
		e.recordFailure(ctx, actor.ID, audit.ActionInventoryConsume, productID, nil, nil, err)
		return nil, err
	}

	if quantity <= 0 {
		err := ErrInvalidQuantity
		e.recordFailure(ctx, actor.ID, audit.ActionInventoryConsume, productID, nil,
			map[string]int64{"attempted_quantity": quantity}, err)
		return nil, err
	}

	release, err := e.acquire(ctx, lock.ProductKey(productID))
	if err != nil {
		e.recordFailure(ctx, actor.ID, audit.ActionInventoryConsume, productID, nil, nil, err)
		return nil, err
	}
	defer release()

	lots, err := e.store.ListLots(ctx, productID, true)
	if err != nil {
		e.recordFailure(ctx, actor.ID, audit.ActionInventoryConsume, productID, nil, nil, err)
		return nil, err
	}

	allocations, err := allocateFIFO(lots, quantity)
	if err != nil {
		e.recordFailure(ctx, actor.ID, audit.ActionInventoryConsume, productID, nil,
			map[string]int64{"requested_quantity": quantity}, err)
		return nil, err
	}

	if err := e.store.ApplyConsumption(ctx, productID, allocations); err != nil {
		e.recordFailure(ctx, actor.ID, audit.ActionInventoryConsume, productID, nil, allocations, err)
		return nil, err
	}

	if err := e.recordSuccess(ctx, actor.ID, audit.ActionInventoryConsume, productID,
		map[string]int64{"requested_quantity": quantity}, allocations); err != nil {
		return nil, err
	}

	e.plugins.EmitStockConsumed(ctx, productID, quantity, allocations)

	if e.lowStockThreshold > 0 {
		if remaining, err := e.store.TotalAvailable(ctx, productID); err == nil && remaining <= e.lowStockThreshold {
			e.plugins.EmitLowStock(ctx, productID, remaining)
		}
	}

	return allocations, nil
}

// allocateFIFO plans a consumption across lots already ordered oldest
// first. It returns ErrInsufficientStock when the lots cannot cover the
// quantity; nothing is mutated here.
func allocateFIFO(lots []*inventory.Lot, quantity int64) ([]inventory.Allocation, error) {
	var available int64
	for _, l := range lots {
		available += l.QuantityRemaining
	}
	if available < quantity {
		return nil, ErrInsufficientStock
	}

	allocations := make([]inventory.Allocation, 0, len(lots))
	remaining := quantity
	for _, l := range lots {
		if remaining == 0 {
			break
		}
		take := l.QuantityRemaining
		if take > remaining {
			take = remaining
		}
		if take == 0 {
			continue
		}
		allocations = append(allocations, inventory.Allocation{LotID: l.ID, Quantity: take})
		remaining -= take
	}
	return allocations, nil
}

// AdjustLot applies a manual correction (spoilage, recount) to one lot.
// The resulting quantity must stay within [0, OriginalQuantity].
func (e *Engine) AdjustLot(ctx context.Context, lotID id.LotID, delta int64, reason string) (*inventory.Lot, error) {
	actor, err := e.requireActor(ctx, CapInventory)
	if err != nil {
		e.recordFailure(ctx, actor.ID, audit.ActionInventoryAdjust, lotID.String(), nil, nil, err)
		return nil, err
	}

	lot, err := e.store.GetLot(ctx, lotID)
	if err != nil {
		e.recordFailure(ctx, actor.ID, audit.ActionInventoryAdjust, lotID.String(), nil, nil, err)
		return nil, err
	}

	release, err := e.acquire(ctx, lock.ProductKey(lot.ProductID))
	if err != nil {
		e.recordFailure(ctx, actor.ID, audit.ActionInventoryAdjust, lotID.String(), nil, nil, err)
		return nil, err
	}
	defer release()

	// Re-read under the lock; the first read only located the product key.
	lot, err = e.store.GetLot(ctx, lotID)
	if err != nil {
		e.recordFailure(ctx, actor.ID, audit.ActionInventoryAdjust, lotID.String(), nil, nil, err)
		return nil, err
	}

	newRemaining := lot.QuantityRemaining + delta
	if newRemaining < 0 || newRemaining > lot.OriginalQuantity {
		err := ErrAdjustmentOutOfRange
		e.recordFailure(ctx, actor.ID, audit.ActionInventoryAdjust, lotID.String(), lot,
			map[string]any{"delta": delta, "reason": reason}, err)
		return nil, err
	}

	before := *lot

	if err := e.store.AdjustLot(ctx, lotID, newRemaining); err != nil {
		e.recordFailure(ctx, actor.ID, audit.ActionInventoryAdjust, lotID.String(), &before,
			map[string]any{"delta": delta, "reason": reason}, err)
		return nil, err
	}

	updated := *lot
	updated.QuantityRemaining = newRemaining
	updated.Touch()

	if err := e.recordSuccess(ctx, actor.ID, audit.ActionInventoryAdjust, lotID.String(), &before,
		map[string]any{"lot": &updated, "delta": delta, "reason": reason}); err != nil {
		return nil, err
	}

	e.plugins.EmitLotAdjusted(ctx, &updated, delta, reason)
	return &updated, nil
}

// GetLot retrieves an inventory lot by ID.
func (e *Engine) GetLot(ctx context.Context, lotID id.LotID) (*inventory.Lot, error) {
	return e.store.GetLot(ctx, lotID)
}

// ListLots returns a product's lots in receipt order.
func (e *Engine) ListLots(ctx context.Context, productID string, onlyAvailable bool) ([]*inventory.Lot, error) {
	return e.store.ListLots(ctx, productID, onlyAvailable)
}

// TotalAvailable returns a product's total unconsumed quantity.
func (e *Engine) TotalAvailable(ctx context.Context, productID string) (int64, error) {
	return e.store.TotalAvailable(ctx, productID)
}

// LowStock reports whether a product's total available stock is at or
// below the threshold. Pure read, no side effects.
func (e *Engine) LowStock(ctx context.Context, productID string, threshold int64) (bool, error) {
	total, err := e.store.TotalAvailable(ctx, productID)
	if err != nil {
		return false, err
	}
	return total <= threshold, nil
}

// ExpiringLots lists lots that still hold stock and expire within the
// window. Pure read, no side effects.
func (e *Engine) ExpiringLots(ctx context.Context, productID string, withinDays int) ([]*inventory.Lot, error) {
	lots, err := e.store.ListLots(ctx, productID, true)
	if err != nil {
		return nil, err
	}

	deadline := time.Now().UTC().AddDate(0, 0, withinDays)
	expiring := make([]*inventory.Lot, 0)
	for _, l := range lots {
		if l.ExpiresWithin(deadline) {
			expiring = append(expiring, l)
		}
	}
	return expiring, nil
}

// ──────────────────────────────────────────────────
// Audit queries
// ──────────────────────────────────────────────────

// AuditByActor lists audit records written for one actor's operations.
func (e *Engine) AuditByActor(ctx context.Context, actorID string, opts audit.ListOpts) ([]*audit.Record, error) {
	if _, err := e.requireActor(ctx, CapAuditRead); err != nil {
		return nil, err
	}
	return e.store.ListAuditByActor(ctx, actorID, opts)
}

// AuditByTarget lists audit records referencing one target entity.
func (e *Engine) AuditByTarget(ctx context.Context, targetID string, opts audit.ListOpts) ([]*audit.Record, error) {
	if _, err := e.requireActor(ctx, CapAuditRead); err != nil {
		return nil, err
	}
	return e.store.ListAuditByTarget(ctx, targetID, opts)
}

// AuditByRange lists audit records in a time window.
func (e *Engine) AuditByRange(ctx context.Context, from, to time.Time, opts audit.ListOpts) ([]*audit.Record, error) {
	if _, err := e.requireActor(ctx, CapAuditRead); err != nil {
		return nil, err
	}
	return e.store.ListAuditByRange(ctx, from, to, opts)
}
