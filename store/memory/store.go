// Package memory provides an in-memory Store implementation.
// Intended for tests and embedded single-process use; data does not
// survive a restart.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xraph/granary"
	"github.com/xraph/granary/audit"
	"github.com/xraph/granary/ceiling"
	"github.com/xraph/granary/id"
	"github.com/xraph/granary/inventory"
	"github.com/xraph/granary/order"
	"github.com/xraph/granary/seller"
	"github.com/xraph/granary/violation"
)

type Store struct {
	mu sync.RWMutex

	// Seller storage
	sellers map[string]*seller.Seller

	// Ceiling storage, keyed by product, append-only per product
	ceilings map[string][]*ceiling.PriceCeiling

	// Violation storage
	violations map[string]*violation.Violation

	// Purchase order storage
	orders map[string]*order.PurchaseOrder

	// Inventory lot storage
	lots map[string]*inventory.Lot

	// Audit trail, append-only
	audits   []*audit.Record
	auditSeq int64

	closed bool
}

func New() *Store {
	return &Store{
		sellers:    make(map[string]*seller.Seller),
		ceilings:   make(map[string][]*ceiling.PriceCeiling),
		violations: make(map[string]*violation.Violation),
		orders:     make(map[string]*order.PurchaseOrder),
		lots:       make(map[string]*inventory.Lot),
		audits:     make([]*audit.Record, 0),
	}
}

// Seller Store implementation

func (s *Store) CreateSeller(_ context.Context, sl *seller.Seller) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sellers[sl.ID.String()]; exists {
		return granary.ErrAlreadyExists
	}
	s.sellers[sl.ID.String()] = sl
	return nil
}

func (s *Store) GetSeller(_ context.Context, sellerID id.SellerID) (*seller.Seller, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if sl, ok := s.sellers[sellerID.String()]; ok {
		return sl, nil
	}
	return nil, granary.ErrSellerNotFound
}

func (s *Store) ListSellers(_ context.Context, opts seller.ListOpts) ([]*seller.Seller, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*seller.Seller, 0)
	for _, sl := range s.sellers {
		if opts.Status != "" && sl.Status != opts.Status {
			continue
		}
		if opts.Region != "" && sl.Region != opts.Region {
			continue
		}
		result = append(result, sl)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})

	return paginate(result, opts.Offset, opts.Limit), nil
}

func (s *Store) UpdateSeller(_ context.Context, sl *seller.Seller) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sellers[sl.ID.String()]; !exists {
		return granary.ErrSellerNotFound
	}
	s.sellers[sl.ID.String()] = sl
	return nil
}

func (s *Store) TransitionSeller(_ context.Context, sl *seller.Seller, expected seller.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, exists := s.sellers[sl.ID.String()]
	if !exists {
		return granary.ErrSellerNotFound
	}
	if stored.Status != expected {
		return granary.ErrInvalidTransition
	}
	s.sellers[sl.ID.String()] = sl
	return nil
}

// Ceiling Store implementation

func (s *Store) CreateCeiling(_ context.Context, c *ceiling.PriceCeiling) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ceilings[c.ProductID] = append(s.ceilings[c.ProductID], c)
	return nil
}

func (s *Store) CurrentCeiling(_ context.Context, productID string, at time.Time) (*ceiling.PriceCeiling, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var current *ceiling.PriceCeiling
	for _, c := range s.ceilings[productID] {
		if !c.InEffect(at) {
			continue
		}
		if current == nil || c.EffectiveFrom.After(current.EffectiveFrom) {
			current = c
		}
	}
	if current == nil {
		return nil, granary.ErrCeilingNotFound
	}
	return current, nil
}

func (s *Store) CeilingHistory(_ context.Context, productID string) ([]*ceiling.PriceCeiling, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := make([]*ceiling.PriceCeiling, len(s.ceilings[productID]))
	copy(history, s.ceilings[productID])

	sort.Slice(history, func(i, j int) bool {
		return history[i].EffectiveFrom.After(history[j].EffectiveFrom)
	})

	return history, nil
}

// Violation Store implementation

func (s *Store) CreateViolation(_ context.Context, v *violation.Violation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.violations[v.ID.String()]; exists {
		return granary.ErrAlreadyExists
	}
	s.violations[v.ID.String()] = v
	return nil
}

func (s *Store) GetViolation(_ context.Context, violationID id.ViolationID) (*violation.Violation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if v, ok := s.violations[violationID.String()]; ok {
		return v, nil
	}
	return nil, granary.ErrViolationNotFound
}

func (s *Store) GetOpenViolation(_ context.Context, sellerID id.SellerID, productID string) (*violation.Violation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, v := range s.violations {
		if v.SellerID.String() == sellerID.String() && v.ProductID == productID && v.IsOpen() {
			return v, nil
		}
	}
	return nil, granary.ErrViolationNotFound
}

func (s *Store) UpdateViolation(_ context.Context, v *violation.Violation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.violations[v.ID.String()]; !exists {
		return granary.ErrViolationNotFound
	}
	s.violations[v.ID.String()] = v
	return nil
}

func (s *Store) ListViolations(_ context.Context, opts violation.ListOpts) ([]*violation.Violation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*violation.Violation, 0)
	for _, v := range s.violations {
		if !opts.SellerID.IsNil() && v.SellerID.String() != opts.SellerID.String() {
			continue
		}
		if opts.ProductID != "" && v.ProductID != opts.ProductID {
			continue
		}
		if opts.Status != "" && v.Status != opts.Status {
			continue
		}
		result = append(result, v)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})

	return paginate(result, opts.Offset, opts.Limit), nil
}

// Purchase order Store implementation

func (s *Store) CreateOrder(_ context.Context, p *order.PurchaseOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.orders[p.ID.String()]; exists {
		return granary.ErrAlreadyExists
	}
	s.orders[p.ID.String()] = p
	return nil
}

func (s *Store) GetOrder(_ context.Context, orderID id.PurchaseOrderID) (*order.PurchaseOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if p, ok := s.orders[orderID.String()]; ok {
		return p, nil
	}
	return nil, granary.ErrOrderNotFound
}

func (s *Store) ListOrders(_ context.Context, opts order.ListOpts) ([]*order.PurchaseOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*order.PurchaseOrder, 0)
	for _, p := range s.orders {
		if !opts.SellerID.IsNil() && p.SellerID.String() != opts.SellerID.String() {
			continue
		}
		if opts.ProductID != "" && p.ProductID != opts.ProductID {
			continue
		}
		if opts.Status != "" && p.Status != opts.Status {
			continue
		}
		result = append(result, p)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})

	return paginate(result, opts.Offset, opts.Limit), nil
}

func (s *Store) FinalizeOrder(_ context.Context, p *order.PurchaseOrder, lot *inventory.Lot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, exists := s.orders[p.ID.String()]
	if !exists {
		return granary.ErrOrderNotFound
	}
	if stored.Status != order.StatusPending {
		return granary.ErrOrderNotPending
	}
	if lot != nil {
		if _, exists := s.lots[lot.ID.String()]; exists {
			return granary.ErrAlreadyExists
		}
		s.lots[lot.ID.String()] = lot
	}
	s.orders[p.ID.String()] = p
	return nil
}

// Inventory Store implementation

func (s *Store) CreateLot(_ context.Context, l *inventory.Lot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.lots[l.ID.String()]; exists {
		return granary.ErrAlreadyExists
	}
	s.lots[l.ID.String()] = l
	return nil
}

func (s *Store) GetLot(_ context.Context, lotID id.LotID) (*inventory.Lot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if l, ok := s.lots[lotID.String()]; ok {
		return l, nil
	}
	return nil, granary.ErrLotNotFound
}

func (s *Store) ListLots(_ context.Context, productID string, onlyAvailable bool) ([]*inventory.Lot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*inventory.Lot, 0)
	for _, l := range s.lots {
		if l.ProductID != productID {
			continue
		}
		if onlyAvailable && !l.HasStock() {
			continue
		}
		result = append(result, l)
	}

	// FIFO: oldest receipt first.
	sort.Slice(result, func(i, j int) bool {
		return result[i].ReceivedAt.Before(result[j].ReceivedAt)
	})

	return result, nil
}

func (s *Store) ApplyConsumption(_ context.Context, productID string, allocations []inventory.Allocation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Validate the whole batch before touching any lot.
	for _, a := range allocations {
		l, ok := s.lots[a.LotID.String()]
		if !ok {
			return granary.ErrLotNotFound
		}
		if l.ProductID != productID || l.QuantityRemaining < a.Quantity {
			return granary.ErrInsufficientStock
		}
	}

	for _, a := range allocations {
		l := s.lots[a.LotID.String()]
		l.QuantityRemaining -= a.Quantity
		l.Touch()
	}
	return nil
}

func (s *Store) AdjustLot(_ context.Context, lotID id.LotID, newRemaining int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.lots[lotID.String()]
	if !ok {
		return granary.ErrLotNotFound
	}
	l.QuantityRemaining = newRemaining
	l.Touch()
	return nil
}

func (s *Store) TotalAvailable(_ context.Context, productID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total int64
	for _, l := range s.lots {
		if l.ProductID == productID {
			total += l.QuantityRemaining
		}
	}
	return total, nil
}

// Audit Store implementation

func (s *Store) AppendAudit(_ context.Context, r *audit.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.auditSeq++
	r.Seq = s.auditSeq
	s.audits = append(s.audits, r)
	return nil
}

func (s *Store) ListAuditByActor(_ context.Context, actorID string, opts audit.ListOpts) ([]*audit.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*audit.Record, 0)
	for _, r := range s.audits {
		if r.ActorID == actorID && matchAudit(r, opts) {
			result = append(result, r)
		}
	}
	return paginate(result, opts.Offset, opts.Limit), nil
}

func (s *Store) ListAuditByTarget(_ context.Context, targetID string, opts audit.ListOpts) ([]*audit.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*audit.Record, 0)
	for _, r := range s.audits {
		if r.TargetID == targetID && matchAudit(r, opts) {
			result = append(result, r)
		}
	}
	return paginate(result, opts.Offset, opts.Limit), nil
}

func (s *Store) ListAuditByRange(_ context.Context, from, to time.Time, opts audit.ListOpts) ([]*audit.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*audit.Record, 0)
	for _, r := range s.audits {
		if r.OccurredAt.Before(from) || r.OccurredAt.After(to) {
			continue
		}
		if matchAudit(r, opts) {
			result = append(result, r)
		}
	}
	return paginate(result, opts.Offset, opts.Limit), nil
}

func matchAudit(r *audit.Record, opts audit.ListOpts) bool {
	if opts.Action != "" && r.Action != opts.Action {
		return false
	}
	if opts.Outcome != "" && r.Outcome != opts.Outcome {
		return false
	}
	return true
}

// Store management

func (s *Store) Migrate(_ context.Context) error {
	return nil // No migration needed for memory store
}

func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return granary.ErrStoreClosed
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}

// paginate applies offset/limit to an already-filtered slice.
func paginate[T any](items []T, offset, limit int) []T {
	start := offset
	if start > len(items) {
		start = len(items)
	}
	end := start + limit
	if limit == 0 || end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
