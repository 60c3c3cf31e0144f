package lock

import (
	"context"
	"testing"
	"time"
)

func TestAcquireRelease(t *testing.T) {
	k := NewKeyed(time.Second)

	release, err := k.Acquire(context.Background(), ProductKey("maize"))
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	release()

	// Reacquirable after release.
	release, err = k.Acquire(context.Background(), ProductKey("maize"))
	if err != nil {
		t.Fatalf("second Acquire failed: %v", err)
	}
	release()
}

func TestAcquireTimesOutWhileHeld(t *testing.T) {
	k := NewKeyed(50 * time.Millisecond)

	release, err := k.Acquire(context.Background(), SellerKey("slr_1"))
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	defer release()

	start := time.Now()
	_, err = k.Acquire(context.Background(), SellerKey("slr_1"))
	if err == nil {
		t.Fatal("expected timeout while key held")
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("timed out too early: %v", elapsed)
	}
}

func TestIndependentKeys(t *testing.T) {
	k := NewKeyed(50 * time.Millisecond)

	releaseA, err := k.Acquire(context.Background(), ProductKey("maize"))
	if err != nil {
		t.Fatalf("Acquire maize failed: %v", err)
	}
	defer releaseA()

	// A held product key must not block a different product.
	releaseB, err := k.Acquire(context.Background(), ProductKey("beans"))
	if err != nil {
		t.Fatalf("Acquire beans failed: %v", err)
	}
	releaseB()

	// Nor a different key space for the same raw value.
	releaseC, err := k.Acquire(context.Background(), SellerKey("maize"))
	if err != nil {
		t.Fatalf("Acquire seller key failed: %v", err)
	}
	releaseC()
}

func TestTryAcquire(t *testing.T) {
	k := NewKeyed(time.Second)

	release, ok := k.TryAcquire(OrderKey("po_1"))
	if !ok {
		t.Fatal("TryAcquire on free key failed")
	}

	if _, ok := k.TryAcquire(OrderKey("po_1")); ok {
		t.Fatal("TryAcquire succeeded on held key")
	}

	release()

	release, ok = k.TryAcquire(OrderKey("po_1"))
	if !ok {
		t.Fatal("TryAcquire after release failed")
	}
	release()
}

func TestCanceledContext(t *testing.T) {
	k := NewKeyed(time.Second)

	release, err := k.Acquire(context.Background(), OrderKey("po_2"))
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := k.Acquire(ctx, OrderKey("po_2")); err == nil {
		t.Fatal("expected error for canceled context")
	}
}

func TestMutualExclusion(t *testing.T) {
	k := NewKeyed(time.Second)
	key := ProductKey("sorghum")

	const workers = 8
	counter := 0
	done := make(chan error, workers)

	for i := 0; i < workers; i++ {
		go func() {
			release, err := k.Acquire(context.Background(), key)
			if err != nil {
				done <- err
				return
			}
			v := counter
			time.Sleep(time.Millisecond)
			counter = v + 1
			release()
			done <- nil
		}()
	}

	for i := 0; i < workers; i++ {
		if err := <-done; err != nil {
			t.Fatalf("worker failed: %v", err)
		}
	}

	if counter != workers {
		t.Errorf("lost updates: counter = %d, want %d", counter, workers)
	}
}
