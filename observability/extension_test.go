package observability_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	granary "github.com/xraph/granary"
	"github.com/xraph/granary/observability"
	"github.com/xraph/granary/order"
	"github.com/xraph/granary/seller"
	"github.com/xraph/granary/store/memory"
	"github.com/xraph/granary/types"
)

type testCounter struct {
	mu sync.Mutex
	n  float64
}

func (c *testCounter) Inc() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
}

func (c *testCounter) Add(v float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n += v
}

func (c *testCounter) value() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

type testHistogram struct {
	mu      sync.Mutex
	samples []float64
}

func (h *testHistogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.samples = append(h.samples, v)
}

func (h *testHistogram) observed() []float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]float64, len(h.samples))
	copy(out, h.samples)
	return out
}

type testFactory struct {
	counters   map[string]*testCounter
	histograms map[string]*testHistogram
}

func newTestFactory() *testFactory {
	return &testFactory{
		counters:   make(map[string]*testCounter),
		histograms: make(map[string]*testHistogram),
	}
}

func (f *testFactory) Counter(name string) observability.Counter {
	c := &testCounter{}
	f.counters[name] = c
	return c
}

func (f *testFactory) Histogram(name string) observability.Histogram {
	h := &testHistogram{}
	f.histograms[name] = h
	return h
}

func (f *testFactory) counter(t *testing.T, name string) *testCounter {
	t.Helper()
	c, ok := f.counters[name]
	if !ok {
		t.Fatalf("counter %q was never created", name)
	}
	return c
}

func (f *testFactory) histogram(t *testing.T, name string) *testHistogram {
	t.Helper()
	h, ok := f.histograms[name]
	if !ok {
		t.Fatalf("histogram %q was never created", name)
	}
	return h
}

func TestMetricsFollowGovernanceEvents(t *testing.T) {
	factory := newTestFactory()
	metrics := observability.NewMetricsExtension(factory)

	e := granary.New(memory.New(),
		granary.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		granary.WithPlugin(metrics),
		granary.WithLowStockThreshold(10),
	)
	ctx := granary.WithActor(context.Background(), granary.Actor{
		ID: "admin-1",
		Capabilities: []granary.Capability{
			granary.CapSellerReview,
			granary.CapPricing,
			granary.CapProcurement,
			granary.CapInventory,
		},
	})

	sl := &seller.Seller{Name: "Metered Farm"}
	if err := e.RegisterSeller(ctx, sl); err != nil {
		t.Fatalf("RegisterSeller: %v", err)
	}
	if _, err := e.ApproveSeller(ctx, sl.ID, "ok"); err != nil {
		t.Fatalf("ApproveSeller: %v", err)
	}

	if _, err := e.UpdateCeiling(ctx, "wheat", types.USD(1000), "initial", time.Time{}); err != nil {
		t.Fatalf("UpdateCeiling: %v", err)
	}
	if _, err := e.CheckCompliance(ctx, sl.ID, "wheat", types.USD(1100)); err != nil {
		t.Fatalf("CheckCompliance: %v", err)
	}

	po := &order.PurchaseOrder{
		SellerID:           sl.ID,
		ProductID:          "wheat",
		SubmittedQuantity:  12,
		SubmittedUnitPrice: types.USD(900),
	}
	if err := e.SubmitOrder(ctx, po); err != nil {
		t.Fatalf("SubmitOrder: %v", err)
	}
	if _, _, err := e.ApproveOrder(ctx, po.ID, 12, types.USD(900), ""); err != nil {
		t.Fatalf("ApproveOrder: %v", err)
	}
	if _, err := e.Consume(ctx, "wheat", 5); err != nil {
		t.Fatalf("Consume: %v", err)
	}

	counts := []struct {
		name string
		want float64
	}{
		{"granary.seller.approved", 1},
		{"granary.ceiling.updated", 1},
		{"granary.violation.detected", 1},
		{"granary.order.approved", 1},
		{"granary.inventory.lots.received", 1},
		{"granary.inventory.consumptions", 1},
		{"granary.inventory.low_stock", 1}, // 12 - 5 = 7 remaining, threshold 10
		{"granary.seller.rejected", 0},
		{"granary.order.rejected", 0},
	}
	for _, tt := range counts {
		if got := factory.counter(t, tt.name).value(); got != tt.want {
			t.Errorf("%s: got %v, want %v", tt.name, got, tt.want)
		}
	}

	overage := factory.histogram(t, "granary.violation.overage_bps").observed()
	if len(overage) != 1 || overage[0] != 1000 {
		t.Errorf("overage samples: got %v, want [1000]", overage)
	}

	consumed := factory.histogram(t, "granary.inventory.consumed_quantity").observed()
	if len(consumed) != 1 || consumed[0] != 5 {
		t.Errorf("consumed samples: got %v, want [5]", consumed)
	}
}
