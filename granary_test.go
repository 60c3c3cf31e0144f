package granary_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	granary "github.com/xraph/granary"
	"github.com/xraph/granary/audit"
	"github.com/xraph/granary/id"
	"github.com/xraph/granary/inventory"
	"github.com/xraph/granary/order"
	"github.com/xraph/granary/seller"
	"github.com/xraph/granary/store/memory"
	"github.com/xraph/granary/types"
	"github.com/xraph/granary/violation"
)

func newTestEngine(t *testing.T, opts ...granary.Option) *granary.Engine {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts = append([]granary.Option{granary.WithLogger(logger)}, opts...)
	return granary.New(memory.New(), opts...)
}

func adminCtx(caps ...granary.Capability) context.Context {
	return granary.WithActor(context.Background(), granary.Actor{
		ID:           "admin-1",
		Capabilities: caps,
	})
}

func fullCtx() context.Context {
	return adminCtx(
		granary.CapSellerReview,
		granary.CapPricing,
		granary.CapProcurement,
		granary.CapInventory,
		granary.CapAuditRead,
	)
}

func registerSeller(t *testing.T, e *granary.Engine, ctx context.Context, name string) *seller.Seller {
	t.Helper()
	sl := &seller.Seller{Name: name, Region: "north"}
	if err := e.RegisterSeller(ctx, sl); err != nil {
		t.Fatalf("RegisterSeller: %v", err)
	}
	return sl
}

func approvedSeller(t *testing.T, e *granary.Engine, ctx context.Context, name string) *seller.Seller {
	t.Helper()
	sl := registerSeller(t, e, ctx, name)
	approved, err := e.ApproveSeller(ctx, sl.ID, "docs ok")
	if err != nil {
		t.Fatalf("ApproveSeller: %v", err)
	}
	return approved
}

// ==================== Seller lifecycle ====================

func TestSellerLifecycle(t *testing.T) {
	e := newTestEngine(t)
	ctx := fullCtx()

	sl := registerSeller(t, e, ctx, "Green Valley Farms")
	if sl.Status != seller.StatusPending {
		t.Fatalf("new seller status: got %s, want pending", sl.Status)
	}

	approved, err := e.ApproveSeller(ctx, sl.ID, "all documents in order")
	if err != nil {
		t.Fatalf("ApproveSeller: %v", err)
	}
	if approved.Status != seller.StatusApproved {
		t.Errorf("status: got %s, want approved", approved.Status)
	}
	if approved.ApprovalDate == nil {
		t.Error("ApprovalDate not stamped")
	}
	if approved.ApprovalNotes != "all documents in order" {
		t.Errorf("ApprovalNotes: got %q", approved.ApprovalNotes)
	}

	suspended, err := e.SuspendSeller(ctx, sl.ID, "late deliveries", 30)
	if err != nil {
		t.Fatalf("SuspendSeller: %v", err)
	}
	if suspended.Status != seller.StatusSuspended {
		t.Errorf("status: got %s, want suspended", suspended.Status)
	}
	if suspended.SuspendedUntil == nil {
		t.Error("SuspendedUntil not set for timed suspension")
	}

	reactivated, err := e.ReactivateSeller(ctx, sl.ID)
	if err != nil {
		t.Fatalf("ReactivateSeller: %v", err)
	}
	if reactivated.Status != seller.StatusApproved {
		t.Errorf("status: got %s, want approved", reactivated.Status)
	}
	if reactivated.SuspensionReason != "" || reactivated.SuspendedAt != nil || reactivated.SuspendedUntil != nil {
		t.Error("suspension bookkeeping not cleared on reactivation")
	}
	if reactivated.ApprovalDate == nil {
		t.Error("original approval date lost on reactivation")
	}
}

func TestSellerIllegalTransitions(t *testing.T) {
	e := newTestEngine(t)
	ctx := fullCtx()

	tests := []struct {
		name string
		run  func(t *testing.T) error
	}{
		{"approve twice", func(t *testing.T) error {
			sl := approvedSeller(t, e, ctx, "s1")
			_, err := e.ApproveSeller(ctx, sl.ID, "")
			return err
		}},
		{"reject approved", func(t *testing.T) error {
			sl := approvedSeller(t, e, ctx, "s2")
			_, err := e.RejectSeller(ctx, sl.ID, "nope")
			return err
		}},
		{"suspend pending", func(t *testing.T) error {
			sl := registerSeller(t, e, ctx, "s3")
			_, err := e.SuspendSeller(ctx, sl.ID, "why", 0)
			return err
		}},
		{"reactivate pending", func(t *testing.T) error {
			sl := registerSeller(t, e, ctx, "s4")
			_, err := e.ReactivateSeller(ctx, sl.ID)
			return err
		}},
		{"approve rejected", func(t *testing.T) error {
			sl := registerSeller(t, e, ctx, "s5")
			if _, err := e.RejectSeller(ctx, sl.ID, "forged documents"); err != nil {
				t.Fatalf("RejectSeller: %v", err)
			}
			_, err := e.ApproveSeller(ctx, sl.ID, "")
			return err
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.run(t); !errors.Is(err, granary.ErrInvalidTransition) {
				t.Errorf("got %v, want ErrInvalidTransition", err)
			}
		})
	}
}

func TestVerifyDocuments(t *testing.T) {
	e := newTestEngine(t)
	ctx := fullCtx()

	sl := registerSeller(t, e, ctx, "Docs Pending Farm")
	updated, err := e.VerifyDocuments(ctx, sl.ID)
	if err != nil {
		t.Fatalf("VerifyDocuments: %v", err)
	}
	if !updated.DocumentsVerified {
		t.Error("DocumentsVerified not set")
	}

	rejected := registerSeller(t, e, ctx, "Rejected Farm")
	if _, err := e.RejectSeller(ctx, rejected.ID, "incomplete"); err != nil {
		t.Fatalf("RejectSeller: %v", err)
	}
	if _, err := e.VerifyDocuments(ctx, rejected.ID); !errors.Is(err, granary.ErrInvalidTransition) {
		t.Errorf("verify on rejected: got %v, want ErrInvalidTransition", err)
	}
}

func TestCapabilityDenied(t *testing.T) {
	e := newTestEngine(t)
	full := fullCtx()
	sl := registerSeller(t, e, full, "Capability Farm")

	// Actor holds the wrong capability for every call below.
	ctx := adminCtx(granary.CapAuditRead)

	if _, err := e.ApproveSeller(ctx, sl.ID, ""); !errors.Is(err, granary.ErrForbidden) {
		t.Errorf("ApproveSeller: got %v, want ErrForbidden", err)
	}
	if _, err := e.UpdateCeiling(ctx, "wheat", types.USD(1000), "", time.Time{}); !errors.Is(err, granary.ErrForbidden) {
		t.Errorf("UpdateCeiling: got %v, want ErrForbidden", err)
	}
	if _, err := e.Consume(ctx, "wheat", 1); !errors.Is(err, granary.ErrForbidden) {
		t.Errorf("Consume: got %v, want ErrForbidden", err)
	}

	// No actor at all.
	if _, err := e.ApproveSeller(context.Background(), sl.ID, ""); !errors.Is(err, granary.ErrForbidden) {
		t.Errorf("no actor: got %v, want ErrForbidden", err)
	}

	// Audit queries are themselves capability-gated.
	if _, err := e.AuditByActor(adminCtx(granary.CapPricing), "admin-1", audit.ListOpts{}); !errors.Is(err, granary.ErrForbidden) {
		t.Errorf("AuditByActor: got %v, want ErrForbidden", err)
	}
}

// ==================== Price compliance ====================

func TestCheckComplianceNoCeiling(t *testing.T) {
	e := newTestEngine(t)
	ctx := fullCtx()
	sl := approvedSeller(t, e, ctx, "No Ceiling Farm")

	out, err := e.CheckCompliance(ctx, sl.ID, "barley", types.USD(99999))
	if err != nil {
		t.Fatalf("CheckCompliance: %v", err)
	}
	if out.Result != violation.ResultCompliant || !out.NoCeiling {
		t.Errorf("got %+v, want compliant with NoCeiling", out)
	}
}

func TestCheckComplianceBoundary(t *testing.T) {
	e := newTestEngine(t)
	ctx := fullCtx()
	sl := approvedSeller(t, e, ctx, "Boundary Farm")

	if _, err := e.UpdateCeiling(ctx, "wheat", types.USD(10000), "initial", time.Time{}); err != nil {
		t.Fatalf("UpdateCeiling: %v", err)
	}

	tests := []struct {
		name    string
		price   types.Money
		result  violation.Result
		wantBps int64
	}{
		{"under ceiling", types.USD(9999), violation.ResultCompliant, 0},
		{"exactly at ceiling", types.USD(10000), violation.ResultCompliant, 0},
		{"one cent over", types.USD(10001), violation.ResultNonCompliant, 1},
		{"five percent over", types.USD(10500), violation.ResultNonCompliant, 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := e.CheckCompliance(ctx, sl.ID, "wheat", tt.price)
			if err != nil {
				t.Fatalf("CheckCompliance: %v", err)
			}
			if out.Result != tt.result {
				t.Fatalf("result: got %s, want %s", out.Result, tt.result)
			}
			if tt.result == violation.ResultNonCompliant {
				if out.Violation == nil {
					t.Fatal("non-compliant outcome missing violation")
				}
				if out.Violation.OverageBps != tt.wantBps {
					t.Errorf("OverageBps: got %d, want %d", out.Violation.OverageBps, tt.wantBps)
				}
			}
		})
	}
}

func TestCheckComplianceUpsertsOpenViolation(t *testing.T) {
	e := newTestEngine(t)
	ctx := fullCtx()
	sl := approvedSeller(t, e, ctx, "Repeat Offender Farm")

	if _, err := e.UpdateCeiling(ctx, "corn", types.USD(5000), "initial", time.Time{}); err != nil {
		t.Fatalf("UpdateCeiling: %v", err)
	}

	first, err := e.CheckCompliance(ctx, sl.ID, "corn", types.USD(6000))
	if err != nil {
		t.Fatalf("first check: %v", err)
	}
	second, err := e.CheckCompliance(ctx, sl.ID, "corn", types.USD(7000))
	if err != nil {
		t.Fatalf("second check: %v", err)
	}

	if first.Violation.ID != second.Violation.ID {
		t.Errorf("repeat detection created a new violation: %s vs %s", first.Violation.ID, second.Violation.ID)
	}
	if second.Violation.ListedPrice.Amount != 7000 {
		t.Errorf("open violation not refreshed: listed %d", second.Violation.ListedPrice.Amount)
	}

	open, err := e.ListViolations(ctx, violation.ListOpts{SellerID: sl.ID, ProductID: "corn"})
	if err != nil {
		t.Fatalf("ListViolations: %v", err)
	}
	if len(open) != 1 {
		t.Errorf("violations for pair: got %d, want 1", len(open))
	}
}

func TestResolveViolation(t *testing.T) {
	e := newTestEngine(t)
	ctx := fullCtx()
	sl := approvedSeller(t, e, ctx, "Resolve Farm")

	if _, err := e.UpdateCeiling(ctx, "oats", types.USD(2000), "initial", time.Time{}); err != nil {
		t.Fatalf("UpdateCeiling: %v", err)
	}
	out, err := e.CheckCompliance(ctx, sl.ID, "oats", types.USD(2500))
	if err != nil {
		t.Fatalf("CheckCompliance: %v", err)
	}
	vID := out.Violation.ID

	warned, err := e.ResolveViolation(ctx, vID, violation.StatusWarned, "first notice sent")
	if err != nil {
		t.Fatalf("resolve to warned: %v", err)
	}
	if warned.Status != violation.StatusWarned || warned.ResolvedBy != "admin-1" {
		t.Errorf("warned violation: %+v", warned)
	}

	// Backward move is illegal.
	if _, err := e.ResolveViolation(ctx, vID, violation.StatusNew, ""); !errors.Is(err, granary.ErrInvalidTransition) {
		t.Errorf("backward resolve: got %v, want ErrInvalidTransition", err)
	}

	adjusted, err := e.ResolveViolation(ctx, vID, violation.StatusAdjusted, "price corrected")
	if err != nil {
		t.Fatalf("resolve to adjusted: %v", err)
	}
	if adjusted.Status != violation.StatusAdjusted {
		t.Errorf("status: got %s, want adjusted", adjusted.Status)
	}

	// A second terminal resolution is illegal.
	if _, err := e.ResolveViolation(ctx, vID, violation.StatusSuspended, ""); !errors.Is(err, granary.ErrInvalidTransition) {
		t.Errorf("double terminal resolve: got %v, want ErrInvalidTransition", err)
	}

	// A fresh detection after terminal resolution opens a new violation.
	out2, err := e.CheckCompliance(ctx, sl.ID, "oats", types.USD(2600))
	if err != nil {
		t.Fatalf("CheckCompliance: %v", err)
	}
	if out2.Violation.ID == vID {
		t.Error("detection after terminal resolution reused the closed violation")
	}
}

func TestUpdateCeiling(t *testing.T) {
	e := newTestEngine(t)
	ctx := fullCtx()

	if _, err := e.UpdateCeiling(ctx, "rye", types.USD(0), "zero", time.Time{}); !errors.Is(err, granary.ErrInvalidCeiling) {
		t.Errorf("zero ceiling: got %v, want ErrInvalidCeiling", err)
	}
	if _, err := e.UpdateCeiling(ctx, "rye", types.USD(-100), "negative", time.Time{}); !errors.Is(err, granary.ErrInvalidCeiling) {
		t.Errorf("negative ceiling: got %v, want ErrInvalidCeiling", err)
	}

	first, err := e.UpdateCeiling(ctx, "rye", types.USD(3000), "initial", time.Time{})
	if err != nil {
		t.Fatalf("first UpdateCeiling: %v", err)
	}
	if first.PreviousCeiling != nil {
		t.Error("first ceiling carries a previous ceiling")
	}
	if first.SetBy != "admin-1" {
		t.Errorf("SetBy: got %q", first.SetBy)
	}

	second, err := e.UpdateCeiling(ctx, "rye", types.USD(2500), "market correction", time.Time{})
	if err != nil {
		t.Fatalf("second UpdateCeiling: %v", err)
	}
	if second.PreviousCeiling == nil || second.PreviousCeiling.Amount != 3000 {
		t.Errorf("PreviousCeiling: got %+v, want 3000", second.PreviousCeiling)
	}

	cur, err := e.CurrentCeiling(ctx, "rye")
	if err != nil {
		t.Fatalf("CurrentCeiling: %v", err)
	}
	if cur.CeilingPrice.Amount != 2500 {
		t.Errorf("current ceiling: got %d, want 2500", cur.CeilingPrice.Amount)
	}

	history, err := e.CeilingHistory(ctx, "rye")
	if err != nil {
		t.Fatalf("CeilingHistory: %v", err)
	}
	if len(history) != 2 {
		t.Errorf("history length: got %d, want 2", len(history))
	}
}

type staticListings struct {
	listings []granary.Listing
}

func (s *staticListings) ActiveListings(_ context.Context, _ string) ([]granary.Listing, error) {
	return s.listings, nil
}

func TestUpdateCeilingReevaluatesListings(t *testing.T) {
	src := &staticListings{}
	e := newTestEngine(t, granary.WithListingSource(src))
	ctx := fullCtx()
	sl := approvedSeller(t, e, ctx, "Listed Farm")

	src.listings = []granary.Listing{
		{SellerID: sl.ID, Price: types.USD(4500)},
	}

	// Lowering the ceiling below the active listing price must raise a
	// violation during the update itself.
	if _, err := e.UpdateCeiling(ctx, "millet", types.USD(4000), "tighten", time.Time{}); err != nil {
		t.Fatalf("UpdateCeiling: %v", err)
	}

	open, err := e.ListViolations(ctx, violation.ListOpts{SellerID: sl.ID, ProductID: "millet"})
	if err != nil {
		t.Fatalf("ListViolations: %v", err)
	}
	if len(open) != 1 {
		t.Fatalf("violations after re-evaluation: got %d, want 1", len(open))
	}
	if open[0].OverageBps != 1250 {
		t.Errorf("OverageBps: got %d, want 1250", open[0].OverageBps)
	}
}

// ==================== Purchase orders ====================

func submitOrder(t *testing.T, e *granary.Engine, ctx context.Context, sl *seller.Seller, product string, qty int64) *order.PurchaseOrder {
	t.Helper()
	po := &order.PurchaseOrder{
		SellerID:           sl.ID,
		ProductID:          product,
		SubmittedQuantity:  qty,
		SubmittedUnitPrice: types.USD(250),
	}
	if err := e.SubmitOrder(ctx, po); err != nil {
		t.Fatalf("SubmitOrder: %v", err)
	}
	return po
}

func TestSubmitOrderValidation(t *testing.T) {
	e := newTestEngine(t)
	ctx := fullCtx()

	pending := registerSeller(t, e, ctx, "Pending Farm")
	po := &order.PurchaseOrder{
		SellerID:           pending.ID,
		ProductID:          "wheat",
		SubmittedQuantity:  100,
		SubmittedUnitPrice: types.USD(250),
	}
	if err := e.SubmitOrder(ctx, po); !errors.Is(err, granary.ErrSellerNotActive) {
		t.Errorf("pending seller: got %v, want ErrSellerNotActive", err)
	}

	active := approvedSeller(t, e, ctx, "Active Farm")
	bad := &order.PurchaseOrder{
		SellerID:           active.ID,
		ProductID:          "wheat",
		SubmittedQuantity:  0,
		SubmittedUnitPrice: types.USD(250),
	}
	if err := e.SubmitOrder(ctx, bad); !errors.Is(err, granary.ErrInvalidQuantity) {
		t.Errorf("zero quantity: got %v, want ErrInvalidQuantity", err)
	}
}

func TestApproveOrderCreatesLinkedLot(t *testing.T) {
	e := newTestEngine(t)
	ctx := fullCtx()
	sl := approvedSeller(t, e, ctx, "Lot Farm")
	po := submitOrder(t, e, ctx, sl, "wheat", 100)

	approved, lot, err := e.ApproveOrder(ctx, po.ID, 80, types.USD(240), "partial approval")
	if err != nil {
		t.Fatalf("ApproveOrder: %v", err)
	}

	if approved.Status != order.StatusApproved {
		t.Errorf("status: got %s", approved.Status)
	}
	if approved.ApprovedQuantity != 80 {
		t.Errorf("ApprovedQuantity: got %d, want 80", approved.ApprovedQuantity)
	}
	if approved.LotID != lot.ID {
		t.Error("order does not reference the created lot")
	}
	if lot.SourceOrderID != po.ID {
		t.Error("lot does not reference the source order")
	}
	if lot.OriginalQuantity != 80 || lot.QuantityRemaining != 80 {
		t.Errorf("lot quantities: original %d remaining %d", lot.OriginalQuantity, lot.QuantityRemaining)
	}
	if lot.UnitCost.Amount != 240 {
		t.Errorf("lot unit cost: got %d, want 240", lot.UnitCost.Amount)
	}

	total, err := e.TotalAvailable(ctx, "wheat")
	if err != nil {
		t.Fatalf("TotalAvailable: %v", err)
	}
	if total != 80 {
		t.Errorf("total available: got %d, want 80", total)
	}
}

func TestApproveOrderQuantityBounds(t *testing.T) {
	e := newTestEngine(t)
	ctx := fullCtx()
	sl := approvedSeller(t, e, ctx, "Bounds Farm")

	tests := []struct {
		name string
		qty  int64
	}{
		{"zero", 0},
		{"negative", -5},
		{"exceeds submitted", 101},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			po := submitOrder(t, e, ctx, sl, "wheat", 100)
			if _, _, err := e.ApproveOrder(ctx, po.ID, tt.qty, types.USD(240), ""); !errors.Is(err, granary.ErrInvalidQuantity) {
				t.Errorf("got %v, want ErrInvalidQuantity", err)
			}
		})
	}
}

func TestOrderDecisionIsTerminal(t *testing.T) {
	e := newTestEngine(t)
	ctx := fullCtx()
	sl := approvedSeller(t, e, ctx, "Terminal Farm")

	po := submitOrder(t, e, ctx, sl, "wheat", 50)
	if _, _, err := e.ApproveOrder(ctx, po.ID, 50, types.USD(200), ""); err != nil {
		t.Fatalf("ApproveOrder: %v", err)
	}
	if _, _, err := e.ApproveOrder(ctx, po.ID, 50, types.USD(200), ""); !errors.Is(err, granary.ErrInvalidTransition) {
		t.Errorf("double approve: got %v, want ErrInvalidTransition", err)
	}
	if _, err := e.RejectOrder(ctx, po.ID, "changed mind"); !errors.Is(err, granary.ErrInvalidTransition) {
		t.Errorf("reject approved: got %v, want ErrInvalidTransition", err)
	}

	po2 := submitOrder(t, e, ctx, sl, "wheat", 50)
	rejected, err := e.RejectOrder(ctx, po2.ID, "price too high")
	if err != nil {
		t.Fatalf("RejectOrder: %v", err)
	}
	if rejected.Status != order.StatusRejected {
		t.Errorf("status: got %s", rejected.Status)
	}
	if !rejected.LotID.IsNil() {
		t.Error("rejected order references a lot")
	}
}

// holdingPlugin parks inside the seller-approved hook, which runs while
// the approval still holds the seller key.
type holdingPlugin struct {
	entered chan struct{}
	release chan struct{}
}

func (p *holdingPlugin) Name() string { return "holding" }

func (p *holdingPlugin) OnSellerApproved(_ context.Context, _ interface{}) error {
	close(p.entered)
	<-p.release
	return nil
}

func TestContendedLockReturnsBusy(t *testing.T) {
	plug := &holdingPlugin{entered: make(chan struct{}), release: make(chan struct{})}
	e := newTestEngine(t,
		granary.WithPlugin(plug),
		granary.WithLockTimeout(10*time.Millisecond),
	)
	ctx := fullCtx()
	sl := registerSeller(t, e, ctx, "Contended Farm")

	done := make(chan error, 1)
	go func() {
		_, err := e.ApproveSeller(ctx, sl.ID, "")
		done <- err
	}()

	<-plug.entered

	if _, err := e.SuspendSeller(ctx, sl.ID, "while held", 0); !errors.Is(err, granary.ErrBusy) {
		t.Errorf("contended suspend: got %v, want ErrBusy", err)
	}

	close(plug.release)
	if err := <-done; err != nil {
		t.Fatalf("ApproveSeller: %v", err)
	}

	// The refused attempt still left a failure record.
	records, err := e.AuditByTarget(ctx, sl.ID.String(), audit.ListOpts{Action: audit.ActionSellerSuspend})
	if err != nil {
		t.Fatalf("AuditByTarget: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("suspend records: got %d, want 1", len(records))
	}
	if records[0].Outcome != audit.OutcomeFailure {
		t.Errorf("outcome: got %s, want failure", records[0].Outcome)
	}
}

func TestConcurrentOrderApproval(t *testing.T) {
	e := newTestEngine(t)
	ctx := fullCtx()
	sl := approvedSeller(t, e, ctx, "Race Farm")
	po := submitOrder(t, e, ctx, sl, "wheat", 100)

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, errs[i] = e.ApproveOrder(ctx, po.ID, 100, types.USD(200), "")
		}(i)
	}
	wg.Wait()

	var succeeded int
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else if !errors.Is(err, granary.ErrInvalidTransition) {
			t.Errorf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Errorf("approvals succeeded: got %d, want exactly 1", succeeded)
	}

	total, err := e.TotalAvailable(ctx, "wheat")
	if err != nil {
		t.Fatalf("TotalAvailable: %v", err)
	}
	if total != 100 {
		t.Errorf("total available after race: got %d, want 100", total)
	}
}

// ==================== Inventory ====================

func TestConsumeFIFO(t *testing.T) {
	e := newTestEngine(t)
	ctx := fullCtx()
	sl := approvedSeller(t, e, ctx, "FIFO Farm")

	po1 := submitOrder(t, e, ctx, sl, "wheat", 60)
	_, lot1, err := e.ApproveOrder(ctx, po1.ID, 60, types.USD(200), "")
	if err != nil {
		t.Fatalf("approve first order: %v", err)
	}
	po2 := submitOrder(t, e, ctx, sl, "wheat", 40)
	_, lot2, err := e.ApproveOrder(ctx, po2.ID, 40, types.USD(210), "")
	if err != nil {
		t.Fatalf("approve second order: %v", err)
	}

	allocations, err := e.Consume(ctx, "wheat", 75)
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}

	if len(allocations) != 2 {
		t.Fatalf("allocations: got %d, want 2", len(allocations))
	}
	if allocations[0].LotID != lot1.ID || allocations[0].Quantity != 60 {
		t.Errorf("first allocation: %+v, want 60 from oldest lot", allocations[0])
	}
	if allocations[1].LotID != lot2.ID || allocations[1].Quantity != 15 {
		t.Errorf("second allocation: %+v, want 15 from newest lot", allocations[1])
	}

	remaining1, err := e.GetLot(ctx, lot1.ID)
	if err != nil {
		t.Fatalf("GetLot: %v", err)
	}
	if remaining1.QuantityRemaining != 0 {
		t.Errorf("oldest lot remaining: got %d, want 0", remaining1.QuantityRemaining)
	}

	// Exhausted lots drop out of future allocation but stay queryable.
	available, err := e.ListLots(ctx, "wheat", true)
	if err != nil {
		t.Fatalf("ListLots: %v", err)
	}
	if len(available) != 1 || available[0].ID != lot2.ID {
		t.Errorf("available lots: got %d", len(available))
	}
	all, err := e.ListLots(ctx, "wheat", false)
	if err != nil {
		t.Fatalf("ListLots: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("all lots: got %d, want 2", len(all))
	}
}

func TestConsumeInsufficientStockIsAllOrNothing(t *testing.T) {
	e := newTestEngine(t)
	ctx := fullCtx()

	if _, err := e.ReceiveLot(ctx, "wheat", 30, types.USD(200), id.Nil, nil); err != nil {
		t.Fatalf("ReceiveLot: %v", err)
	}

	if _, err := e.Consume(ctx, "wheat", 31); !errors.Is(err, granary.ErrInsufficientStock) {
		t.Fatalf("got %v, want ErrInsufficientStock", err)
	}

	total, err := e.TotalAvailable(ctx, "wheat")
	if err != nil {
		t.Fatalf("TotalAvailable: %v", err)
	}
	if total != 30 {
		t.Errorf("stock touched by failed consumption: got %d, want 30", total)
	}

	if _, err := e.Consume(ctx, "wheat", 0); !errors.Is(err, granary.ErrInvalidQuantity) {
		t.Errorf("zero quantity: got %v, want ErrInvalidQuantity", err)
	}
}

func TestAdjustLotBounds(t *testing.T) {
	e := newTestEngine(t)
	ctx := fullCtx()

	lot, err := e.ReceiveLot(ctx, "wheat", 100, types.USD(200), id.Nil, nil)
	if err != nil {
		t.Fatalf("ReceiveLot: %v", err)
	}

	adjusted, err := e.AdjustLot(ctx, lot.ID, -10, "spoilage")
	if err != nil {
		t.Fatalf("AdjustLot: %v", err)
	}
	if adjusted.QuantityRemaining != 90 {
		t.Errorf("remaining: got %d, want 90", adjusted.QuantityRemaining)
	}

	if _, err := e.AdjustLot(ctx, lot.ID, -91, "too much"); !errors.Is(err, granary.ErrAdjustmentOutOfRange) {
		t.Errorf("below zero: got %v, want ErrAdjustmentOutOfRange", err)
	}
	if _, err := e.AdjustLot(ctx, lot.ID, 11, "over original"); !errors.Is(err, granary.ErrAdjustmentOutOfRange) {
		t.Errorf("above original: got %v, want ErrAdjustmentOutOfRange", err)
	}

	restored, err := e.AdjustLot(ctx, lot.ID, 10, "recount")
	if err != nil {
		t.Fatalf("AdjustLot restore: %v", err)
	}
	if restored.QuantityRemaining != 100 {
		t.Errorf("remaining after restore: got %d, want 100", restored.QuantityRemaining)
	}
}

func TestExpiringLots(t *testing.T) {
	e := newTestEngine(t)
	ctx := fullCtx()

	soon := time.Now().UTC().AddDate(0, 0, 3)
	later := time.Now().UTC().AddDate(0, 0, 60)

	expiring, err := e.ReceiveLot(ctx, "apples", 50, types.USD(100), id.Nil, &soon)
	if err != nil {
		t.Fatalf("ReceiveLot: %v", err)
	}
	if _, err := e.ReceiveLot(ctx, "apples", 50, types.USD(100), id.Nil, &later); err != nil {
		t.Fatalf("ReceiveLot: %v", err)
	}
	if _, err := e.ReceiveLot(ctx, "apples", 50, types.USD(100), id.Nil, nil); err != nil {
		t.Fatalf("ReceiveLot: %v", err)
	}

	lots, err := e.ExpiringLots(ctx, "apples", 7)
	if err != nil {
		t.Fatalf("ExpiringLots: %v", err)
	}
	if len(lots) != 1 || lots[0].ID != expiring.ID {
		t.Errorf("expiring lots: got %d", len(lots))
	}

	low, err := e.LowStock(ctx, "apples", 100)
	if err != nil {
		t.Fatalf("LowStock: %v", err)
	}
	if low {
		t.Error("LowStock true at 150 units with threshold 100")
	}
}

// ==================== Audit trail ====================

func TestAuditTrailCompleteness(t *testing.T) {
	e := newTestEngine(t)
	ctx := fullCtx()

	sl := registerSeller(t, e, ctx, "Audited Farm")
	if _, err := e.ApproveSeller(ctx, sl.ID, "ok"); err != nil {
		t.Fatalf("ApproveSeller: %v", err)
	}
	// A failed attempt must also leave a record.
	if _, err := e.ApproveSeller(ctx, sl.ID, "again"); !errors.Is(err, granary.ErrInvalidTransition) {
		t.Fatalf("second approve: %v", err)
	}

	records, err := e.AuditByTarget(ctx, sl.ID.String(), audit.ListOpts{})
	if err != nil {
		t.Fatalf("AuditByTarget: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("records: got %d, want 3 (register, approve, failed approve)", len(records))
	}

	var lastSeq int64
	for i, r := range records {
		if r.Seq <= lastSeq {
			t.Errorf("record %d: seq %d not increasing", i, r.Seq)
		}
		lastSeq = r.Seq
		if r.ActorID != "admin-1" {
			t.Errorf("record %d: actor %q", i, r.ActorID)
		}
	}

	if records[1].Action != audit.ActionSellerApprove || records[1].Outcome != audit.OutcomeSuccess {
		t.Errorf("approve record: %+v", records[1])
	}
	failed := records[2]
	if failed.Outcome != audit.OutcomeFailure {
		t.Errorf("failed attempt outcome: got %s", failed.Outcome)
	}
	if failed.Reason == "" {
		t.Error("failed attempt carries no reason")
	}

	// Outcome filter.
	failures, err := e.AuditByTarget(ctx, sl.ID.String(), audit.ListOpts{Outcome: audit.OutcomeFailure})
	if err != nil {
		t.Fatalf("AuditByTarget: %v", err)
	}
	if len(failures) != 1 {
		t.Errorf("failure records: got %d, want 1", len(failures))
	}
}

func TestFailedRegistrationIsAttributable(t *testing.T) {
	e := newTestEngine(t)
	ctx := fullCtx()

	sl := &seller.Seller{Region: "north"} // name missing
	if err := e.RegisterSeller(ctx, sl); err == nil {
		t.Fatal("registration without name succeeded")
	}
	if sl.ID.IsNil() {
		t.Fatal("rejected registration has no ID to attribute")
	}

	records, err := e.AuditByTarget(ctx, sl.ID.String(), audit.ListOpts{})
	if err != nil {
		t.Fatalf("AuditByTarget: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("records: got %d, want 1", len(records))
	}
	if records[0].Outcome != audit.OutcomeFailure || records[0].TargetID == "" {
		t.Errorf("failure record: %+v", records[0])
	}
}

func TestAuditDeniedOperationIsRecorded(t *testing.T) {
	e := newTestEngine(t)
	full := fullCtx()
	sl := registerSeller(t, e, full, "Denied Farm")

	weak := granary.WithActor(context.Background(), granary.Actor{ID: "intern-1"})
	if _, err := e.ApproveSeller(weak, sl.ID, ""); !errors.Is(err, granary.ErrForbidden) {
		t.Fatalf("got %v, want ErrForbidden", err)
	}

	records, err := e.AuditByActor(full, "intern-1", audit.ListOpts{})
	if err != nil {
		t.Fatalf("AuditByActor: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("denied-op records: got %d, want 1", len(records))
	}
	if records[0].Outcome != audit.OutcomeFailure || records[0].Action != audit.ActionSellerApprove {
		t.Errorf("denied record: %+v", records[0])
	}
}

// ==================== Plugin events ====================

type capturePlugin struct {
	mu     sync.Mutex
	events []string
}

func (p *capturePlugin) Name() string { return "capture" }

func (p *capturePlugin) record(event string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *capturePlugin) seen() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	copy(out, p.events)
	return out
}

func (p *capturePlugin) OnSellerApproved(_ context.Context, _ interface{}) error {
	p.record("seller.approved")
	return nil
}

func (p *capturePlugin) OnViolationDetected(_ context.Context, v interface{}) error {
	if _, ok := v.(*violation.Violation); !ok {
		return errors.New("unexpected payload type")
	}
	p.record("violation.detected")
	return nil
}

func (p *capturePlugin) OnOrderApproved(_ context.Context, _ interface{}, lot interface{}) error {
	if _, ok := lot.(*inventory.Lot); !ok {
		return errors.New("unexpected payload type")
	}
	p.record("order.approved")
	return nil
}

func (p *capturePlugin) OnStockConsumed(_ context.Context, _ string, _ int64, _ interface{}) error {
	p.record("stock.consumed")
	return nil
}

func (p *capturePlugin) OnLowStock(_ context.Context, _ string, remaining int64) error {
	if remaining > 10 {
		return errors.New("low stock fired above threshold")
	}
	p.record("stock.low")
	return nil
}

func TestPluginEventDelivery(t *testing.T) {
	plug := &capturePlugin{}
	e := newTestEngine(t,
		granary.WithPlugin(plug),
		granary.WithLowStockThreshold(10),
	)
	ctx := fullCtx()

	sl := approvedSeller(t, e, ctx, "Plugin Farm")

	if _, err := e.UpdateCeiling(ctx, "wheat", types.USD(1000), "initial", time.Time{}); err != nil {
		t.Fatalf("UpdateCeiling: %v", err)
	}
	if _, err := e.CheckCompliance(ctx, sl.ID, "wheat", types.USD(1100)); err != nil {
		t.Fatalf("CheckCompliance: %v", err)
	}

	po := submitOrder(t, e, ctx, sl, "wheat", 12)
	if _, _, err := e.ApproveOrder(ctx, po.ID, 12, types.USD(900), ""); err != nil {
		t.Fatalf("ApproveOrder: %v", err)
	}
	if _, err := e.Consume(ctx, "wheat", 5); err != nil {
		t.Fatalf("Consume: %v", err)
	}

	want := []string{"seller.approved", "violation.detected", "order.approved", "stock.consumed", "stock.low"}
	got := plug.seen()
	if len(got) != len(want) {
		t.Fatalf("events: got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d: got %s, want %s", i, got[i], want[i])
		}
	}
}
