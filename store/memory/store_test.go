package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	granary "github.com/xraph/granary"
	"github.com/xraph/granary/audit"
	"github.com/xraph/granary/ceiling"
	"github.com/xraph/granary/id"
	"github.com/xraph/granary/inventory"
	"github.com/xraph/granary/order"
	"github.com/xraph/granary/seller"
	"github.com/xraph/granary/types"
)

func newSeller(status seller.Status) *seller.Seller {
	return &seller.Seller{
		Entity: types.NewEntity(),
		ID:     id.NewSellerID(),
		Name:   "test seller",
		Status: status,
	}
}

func TestTransitionSellerGuardsExpectedStatus(t *testing.T) {
	s := New()
	ctx := context.Background()

	sl := newSeller(seller.StatusPending)
	if err := s.CreateSeller(ctx, sl); err != nil {
		t.Fatalf("CreateSeller: %v", err)
	}

	updated := *sl
	updated.Status = seller.StatusApproved

	// Guard expects a status the stored row no longer has.
	if err := s.TransitionSeller(ctx, &updated, seller.StatusSuspended); !errors.Is(err, granary.ErrInvalidTransition) {
		t.Errorf("stale expected status: got %v, want ErrInvalidTransition", err)
	}

	if err := s.TransitionSeller(ctx, &updated, seller.StatusPending); err != nil {
		t.Fatalf("TransitionSeller: %v", err)
	}

	got, err := s.GetSeller(ctx, sl.ID)
	if err != nil {
		t.Fatalf("GetSeller: %v", err)
	}
	if got.Status != seller.StatusApproved {
		t.Errorf("status: got %s, want approved", got.Status)
	}

	missing := newSeller(seller.StatusPending)
	if err := s.TransitionSeller(ctx, missing, seller.StatusPending); !errors.Is(err, granary.ErrSellerNotFound) {
		t.Errorf("missing seller: got %v, want ErrSellerNotFound", err)
	}
}

func TestCreateSellerDuplicate(t *testing.T) {
	s := New()
	ctx := context.Background()

	sl := newSeller(seller.StatusPending)
	if err := s.CreateSeller(ctx, sl); err != nil {
		t.Fatalf("CreateSeller: %v", err)
	}
	if err := s.CreateSeller(ctx, sl); !errors.Is(err, granary.ErrAlreadyExists) {
		t.Errorf("duplicate: got %v, want ErrAlreadyExists", err)
	}
}

func TestCurrentCeilingPicksLatestEffective(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now().UTC()

	mk := func(amount int64, effectiveFrom time.Time) *ceiling.PriceCeiling {
		return &ceiling.PriceCeiling{
			Entity:        types.NewEntity(),
			ID:            id.NewCeilingID(),
			ProductID:     "wheat",
			CeilingPrice:  types.USD(amount),
			EffectiveFrom: effectiveFrom,
		}
	}

	if _, err := s.CurrentCeiling(ctx, "wheat", now); !errors.Is(err, granary.ErrCeilingNotFound) {
		t.Errorf("no ceiling: got %v, want ErrCeilingNotFound", err)
	}

	for _, c := range []*ceiling.PriceCeiling{
		mk(10000, now.Add(-48*time.Hour)),
		mk(9000, now.Add(-24*time.Hour)),
		mk(8000, now.Add(24*time.Hour)), // scheduled, not yet effective
	} {
		if err := s.CreateCeiling(ctx, c); err != nil {
			t.Fatalf("CreateCeiling: %v", err)
		}
	}

	cur, err := s.CurrentCeiling(ctx, "wheat", now)
	if err != nil {
		t.Fatalf("CurrentCeiling: %v", err)
	}
	if cur.CeilingPrice.Amount != 9000 {
		t.Errorf("current: got %d, want 9000 (latest effective, not scheduled)", cur.CeilingPrice.Amount)
	}

	history, err := s.CeilingHistory(ctx, "wheat")
	if err != nil {
		t.Fatalf("CeilingHistory: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("history: got %d, want 3", len(history))
	}
	if history[0].CeilingPrice.Amount != 8000 {
		t.Errorf("history order: newest first, got %d", history[0].CeilingPrice.Amount)
	}
}

func TestFinalizeOrderRequiresPending(t *testing.T) {
	s := New()
	ctx := context.Background()

	po := &order.PurchaseOrder{
		Entity:            types.NewEntity(),
		ID:                id.NewPurchaseOrderID(),
		SellerID:          id.NewSellerID(),
		ProductID:         "wheat",
		SubmittedQuantity: 100,
		Status:            order.StatusPending,
	}
	if err := s.CreateOrder(ctx, po); err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	lot := &inventory.Lot{
		Entity:            types.NewEntity(),
		ID:                id.NewLotID(),
		ProductID:         "wheat",
		OriginalQuantity:  100,
		QuantityRemaining: 100,
		ReceivedAt:        time.Now().UTC(),
		SourceOrderID:     po.ID,
	}

	approved := *po
	approved.Status = order.StatusApproved
	approved.LotID = lot.ID

	if err := s.FinalizeOrder(ctx, &approved, lot); err != nil {
		t.Fatalf("FinalizeOrder: %v", err)
	}

	// The order is no longer pending; a second decision must fail.
	rejected := *po
	rejected.Status = order.StatusRejected
	if err := s.FinalizeOrder(ctx, &rejected, nil); !errors.Is(err, granary.ErrOrderNotPending) {
		t.Errorf("second decision: got %v, want ErrOrderNotPending", err)
	}

	stored, err := s.GetLot(ctx, lot.ID)
	if err != nil {
		t.Fatalf("GetLot: %v", err)
	}
	if stored.SourceOrderID.String() != po.ID.String() {
		t.Error("lot not linked to source order")
	}
}

func TestApplyConsumptionIsAllOrNothing(t *testing.T) {
	s := New()
	ctx := context.Background()

	mkLot := func(remaining int64, receivedAt time.Time) *inventory.Lot {
		return &inventory.Lot{
			Entity:            types.NewEntity(),
			ID:                id.NewLotID(),
			ProductID:         "wheat",
			OriginalQuantity:  remaining,
			QuantityRemaining: remaining,
			ReceivedAt:        receivedAt,
		}
	}

	now := time.Now().UTC()
	lot1 := mkLot(50, now.Add(-time.Hour))
	lot2 := mkLot(30, now)
	for _, l := range []*inventory.Lot{lot1, lot2} {
		if err := s.CreateLot(ctx, l); err != nil {
			t.Fatalf("CreateLot: %v", err)
		}
	}

	// Second allocation overdraws its lot; the first must not be applied.
	bad := []inventory.Allocation{
		{LotID: lot1.ID, Quantity: 50},
		{LotID: lot2.ID, Quantity: 31},
	}
	if err := s.ApplyConsumption(ctx, "wheat", bad); !errors.Is(err, granary.ErrInsufficientStock) {
		t.Fatalf("overdraw: got %v, want ErrInsufficientStock", err)
	}

	total, err := s.TotalAvailable(ctx, "wheat")
	if err != nil {
		t.Fatalf("TotalAvailable: %v", err)
	}
	if total != 80 {
		t.Errorf("stock after failed batch: got %d, want 80", total)
	}

	good := []inventory.Allocation{
		{LotID: lot1.ID, Quantity: 50},
		{LotID: lot2.ID, Quantity: 10},
	}
	if err := s.ApplyConsumption(ctx, "wheat", good); err != nil {
		t.Fatalf("ApplyConsumption: %v", err)
	}

	total, err = s.TotalAvailable(ctx, "wheat")
	if err != nil {
		t.Fatalf("TotalAvailable: %v", err)
	}
	if total != 20 {
		t.Errorf("stock after batch: got %d, want 20", total)
	}

	// Exhausted lots drop from the available listing.
	available, err := s.ListLots(ctx, "wheat", true)
	if err != nil {
		t.Fatalf("ListLots: %v", err)
	}
	if len(available) != 1 || available[0].ID.String() != lot2.ID.String() {
		t.Errorf("available lots: got %d", len(available))
	}
}

func TestAppendAuditAssignsIncreasingSeq(t *testing.T) {
	s := New()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		rec := &audit.Record{
			ID:         id.NewAuditRecordID(),
			ActorID:    "admin-1",
			Action:     audit.ActionSellerRegister,
			TargetID:   "slr_x",
			OccurredAt: time.Now().UTC(),
			Outcome:    audit.OutcomeSuccess,
		}
		if err := s.AppendAudit(ctx, rec); err != nil {
			t.Fatalf("AppendAudit: %v", err)
		}
		if rec.Seq != int64(i+1) {
			t.Errorf("record %d: seq %d", i, rec.Seq)
		}
	}

	records, err := s.ListAuditByActor(ctx, "admin-1", audit.ListOpts{Limit: 3, Offset: 1})
	if err != nil {
		t.Fatalf("ListAuditByActor: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("paginated records: got %d, want 3", len(records))
	}
	if records[0].Seq != 2 {
		t.Errorf("offset ignored: first seq %d", records[0].Seq)
	}
}
