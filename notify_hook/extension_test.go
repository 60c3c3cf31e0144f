package notifyhook_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	granary "github.com/xraph/granary"
	notifyhook "github.com/xraph/granary/notify_hook"
	"github.com/xraph/granary/seller"
	"github.com/xraph/granary/store/memory"
)

type captureNotifier struct {
	mu  sync.Mutex
	got []*notifyhook.Notification
}

func (c *captureNotifier) notify(_ context.Context, n *notifyhook.Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.got = append(c.got, n)
	return nil
}

func (c *captureNotifier) notifications() []*notifyhook.Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*notifyhook.Notification, len(c.got))
	copy(out, c.got)
	return out
}

func newEngine(t *testing.T, hook *notifyhook.Extension) (*granary.Engine, context.Context) {
	t.Helper()
	e := granary.New(memory.New(),
		granary.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		granary.WithPlugin(hook),
	)
	ctx := granary.WithActor(context.Background(), granary.Actor{
		ID:           "admin-1",
		Capabilities: []granary.Capability{granary.CapSellerReview},
	})
	return e, ctx
}

func TestGovernanceEventsReachNotifier(t *testing.T) {
	capture := &captureNotifier{}
	hook := notifyhook.New(notifyhook.NotifierFunc(capture.notify))
	e, ctx := newEngine(t, hook)

	sl := &seller.Seller{Name: "Notified Farm"}
	if err := e.RegisterSeller(ctx, sl); err != nil {
		t.Fatalf("RegisterSeller: %v", err)
	}
	if _, err := e.ApproveSeller(ctx, sl.ID, "ok"); err != nil {
		t.Fatalf("ApproveSeller: %v", err)
	}
	if _, err := e.SuspendSeller(ctx, sl.ID, "late deliveries", 0); err != nil {
		t.Fatalf("SuspendSeller: %v", err)
	}

	got := capture.notifications()
	if len(got) != 2 {
		t.Fatalf("notifications: got %d, want 2", len(got))
	}

	approved := got[0]
	if approved.Event != notifyhook.EventSellerApproved {
		t.Errorf("first event: got %s, want %s", approved.Event, notifyhook.EventSellerApproved)
	}
	if approved.Topic != notifyhook.TopicSellers || approved.Severity != notifyhook.SeverityInfo {
		t.Errorf("approved routing: topic %s severity %s", approved.Topic, approved.Severity)
	}

	suspended := got[1]
	if suspended.Event != notifyhook.EventSellerSuspended {
		t.Errorf("second event: got %s, want %s", suspended.Event, notifyhook.EventSellerSuspended)
	}
	if suspended.Severity != notifyhook.SeverityWarning {
		t.Errorf("suspended severity: got %s", suspended.Severity)
	}
	if suspended.Metadata["reason"] != "late deliveries" {
		t.Errorf("suspension reason: got %v", suspended.Metadata["reason"])
	}
}

func TestDisabledEventsAreSkipped(t *testing.T) {
	capture := &captureNotifier{}
	hook := notifyhook.New(notifyhook.NotifierFunc(capture.notify),
		notifyhook.WithDisabledEvents(notifyhook.EventSellerApproved),
	)
	e, ctx := newEngine(t, hook)

	sl := &seller.Seller{Name: "Quiet Farm"}
	if err := e.RegisterSeller(ctx, sl); err != nil {
		t.Fatalf("RegisterSeller: %v", err)
	}
	if _, err := e.ApproveSeller(ctx, sl.ID, ""); err != nil {
		t.Fatalf("ApproveSeller: %v", err)
	}
	if _, err := e.SuspendSeller(ctx, sl.ID, "audit hold", 0); err != nil {
		t.Fatalf("SuspendSeller: %v", err)
	}

	got := capture.notifications()
	if len(got) != 1 {
		t.Fatalf("notifications: got %d, want 1 (approval disabled)", len(got))
	}
	if got[0].Event != notifyhook.EventSellerSuspended {
		t.Errorf("event: got %s, want %s", got[0].Event, notifyhook.EventSellerSuspended)
	}
}

func TestNotifierFailureDoesNotPropagate(t *testing.T) {
	hook := notifyhook.New(notifyhook.NotifierFunc(func(_ context.Context, _ *notifyhook.Notification) error {
		return context.DeadlineExceeded
	}))
	e, ctx := newEngine(t, hook)

	sl := &seller.Seller{Name: "Unreachable Inbox Farm"}
	if err := e.RegisterSeller(ctx, sl); err != nil {
		t.Fatalf("RegisterSeller: %v", err)
	}
	approved, err := e.ApproveSeller(ctx, sl.ID, "ok")
	if err != nil {
		t.Fatalf("delivery failure leaked into the operation: %v", err)
	}
	if approved.Status != seller.StatusApproved {
		t.Errorf("status: got %s, want approved", approved.Status)
	}
}
