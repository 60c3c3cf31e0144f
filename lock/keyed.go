// Package lock provides per-key mutual exclusion with bounded wait.
//
// Governance operations serialize on three key spaces: one per seller,
// one per product, one per purchase order. Acquisition waits up to a
// configured timeout, then fails, so no operation blocks indefinitely.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// ErrTimeout is returned when a key could not be acquired within the
// configured wait. Callers surface it as a busy condition.
var ErrTimeout = errors.New("lock: acquisition timed out")

// DefaultTimeout bounds acquisition waits unless overridden.
const DefaultTimeout = 5 * time.Second

// Keyed hands out one weight-1 semaphore per key. Semaphores are created
// lazily and retained for the lifetime of the Keyed; the key population
// (sellers, products, orders under active administration) is small.
type Keyed struct {
	mu      sync.Mutex
	sems    map[string]*semaphore.Weighted
	timeout time.Duration
}

// NewKeyed creates a Keyed with the given acquisition timeout.
// A non-positive timeout falls back to DefaultTimeout.
func NewKeyed(timeout time.Duration) *Keyed {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Keyed{
		sems:    make(map[string]*semaphore.Weighted),
		timeout: timeout,
	}
}

// Acquire blocks until the key is held or the wait expires. On success
// it returns a release function that must be called exactly once.
// Context cancellation and timeout both return ErrTimeout-wrapped errors.
func (k *Keyed) Acquire(ctx context.Context, key string) (func(), error) {
	sem := k.sem(key)

	acquireCtx, cancel := context.WithTimeout(ctx, k.timeout)
	defer cancel()

	if err := sem.Acquire(acquireCtx, 1); err != nil {
		return nil, ErrTimeout
	}

	return func() { sem.Release(1) }, nil
}

// TryAcquire attempts the key without waiting.
func (k *Keyed) TryAcquire(key string) (func(), bool) {
	sem := k.sem(key)
	if !sem.TryAcquire(1) {
		return nil, false
	}
	return func() { sem.Release(1) }, true
}

func (k *Keyed) sem(key string) *semaphore.Weighted {
	k.mu.Lock()
	defer k.mu.Unlock()

	sem, ok := k.sems[key]
	if !ok {
		sem = semaphore.NewWeighted(1)
		k.sems[key] = sem
	}
	return sem
}

// Key space helpers. Every operation touching the same seller, product
// or order must use the same key.

// SellerKey returns the serialization key for one seller.
func SellerKey(sellerID string) string { return "seller/" + sellerID }

// ProductKey returns the serialization key for one product. Ceiling
// updates and inventory mutations for a product share this key.
func ProductKey(productID string) string { return "product/" + productID }

// OrderKey returns the serialization key for one purchase order.
func OrderKey(orderID string) string { return "order/" + orderID }
