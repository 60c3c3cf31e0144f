package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
	"github.com/xraph/grove/migrate"

	granary "github.com/xraph/granary"
	"github.com/xraph/granary/audit"
	"github.com/xraph/granary/ceiling"
	"github.com/xraph/granary/id"
	"github.com/xraph/granary/inventory"
	"github.com/xraph/granary/order"
	"github.com/xraph/granary/seller"
	granarystore "github.com/xraph/granary/store"
	"github.com/xraph/granary/violation"
)

// compile-time interface check
var _ granarystore.Store = (*Store)(nil)

// Store implements store.Store using SQLite via Grove ORM.
type Store struct {
	db  *grove.DB
	sdb *sqlitedriver.SqliteDB
}

// New creates a new SQLite store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("granary/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("granary/sqlite: migration failed: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Seller Store ====================

func (s *Store) CreateSeller(ctx context.Context, sl *seller.Seller) error {
	m := toSellerModel(sl)
	_, err := s.sdb.NewInsert(m).Exec(ctx)
	return err
}

func (s *Store) GetSeller(ctx context.Context, sellerID id.SellerID) (*seller.Seller, error) {
	m := new(sellerModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", sellerID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, granary.ErrSellerNotFound
		}
		return nil, err
	}
	return fromSellerModel(m)
}

func (s *Store) ListSellers(ctx context.Context, opts seller.ListOpts) ([]*seller.Seller, error) {
	var models []sellerModel
	q := s.sdb.NewSelect(&models)

	if opts.Status != "" {
		q = q.Where("status = ?", string(opts.Status))
	}
	if opts.Region != "" {
		q = q.Where("region = ?", opts.Region)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*seller.Seller, len(models))
	for i := range models {
		sl, err := fromSellerModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = sl
	}
	return result, nil
}

func (s *Store) UpdateSeller(ctx context.Context, sl *seller.Seller) error {
	m := toSellerModel(sl)
	m.UpdatedAt = now()
	res, err := s.sdb.NewUpdate(m).WherePK().Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return granary.ErrSellerNotFound
	}
	return nil
}

func (s *Store) TransitionSeller(ctx context.Context, sl *seller.Seller, expected seller.Status) error {
	t := now()
	res, err := s.sdb.NewUpdate((*sellerModel)(nil)).
		Set("status = ?", string(sl.Status)).
		Set("approval_date = ?", sl.ApprovalDate).
		Set("approval_notes = ?", sl.ApprovalNotes).
		Set("rejection_reason = ?", sl.RejectionReason).
		Set("suspension_reason = ?", sl.SuspensionReason).
		Set("suspended_at = ?", sl.SuspendedAt).
		Set("suspended_until = ?", sl.SuspendedUntil).
		Set("updated_at = ?", t).
		Where("id = ?", sl.ID.String()).
		Where("status = ?", string(expected)).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		// Either the seller is missing or another admin moved it first.
		if _, err := s.GetSeller(ctx, sl.ID); err != nil {
			return err
		}
		return granary.ErrInvalidTransition
	}
	return nil
}

// ==================== Price Ceiling Store ====================

func (s *Store) CreateCeiling(ctx context.Context, c *ceiling.PriceCeiling) error {
	m := toCeilingModel(c)
	_, err := s.sdb.NewInsert(m).Exec(ctx)
	return err
}

func (s *Store) CurrentCeiling(ctx context.Context, productID string, at time.Time) (*ceiling.PriceCeiling, error) {
	m := new(ceilingModel)
	err := s.sdb.NewSelect(m).
		Where("product_id = ?", productID).
		Where("effective_from <= ?", at).
		OrderExpr("effective_from DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, granary.ErrCeilingNotFound
		}
		return nil, err
	}
	return fromCeilingModel(m)
}

func (s *Store) CeilingHistory(ctx context.Context, productID string) ([]*ceiling.PriceCeiling, error) {
	var models []ceilingModel
	err := s.sdb.NewSelect(&models).
		Where("product_id = ?", productID).
		OrderExpr("effective_from DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]*ceiling.PriceCeiling, len(models))
	for i := range models {
		c, err := fromCeilingModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = c
	}
	return result, nil
}

// ==================== Violation Store ====================

func (s *Store) CreateViolation(ctx context.Context, v *violation.Violation) error {
	m := toViolationModel(v)
	_, err := s.sdb.NewInsert(m).Exec(ctx)
	return err
}

func (s *Store) GetViolation(ctx context.Context, violationID id.ViolationID) (*violation.Violation, error) {
	m := new(violationModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", violationID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, granary.ErrViolationNotFound
		}
		return nil, err
	}
	return fromViolationModel(m)
}

func (s *Store) GetOpenViolation(ctx context.Context, sellerID id.SellerID, productID string) (*violation.Violation, error) {
	m := new(violationModel)
	err := s.sdb.NewSelect(m).
		Where("seller_id = ?", sellerID.String()).
		Where("product_id = ?", productID).
		Where("status IN (?, ?)", string(violation.StatusNew), string(violation.StatusWarned)).
		OrderExpr("created_at DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, granary.ErrViolationNotFound
		}
		return nil, err
	}
	return fromViolationModel(m)
}

func (s *Store) UpdateViolation(ctx context.Context, v *violation.Violation) error {
	m := toViolationModel(v)
	m.UpdatedAt = now()
	res, err := s.sdb.NewUpdate(m).WherePK().Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return granary.ErrViolationNotFound
	}
	return nil
}

func (s *Store) ListViolations(ctx context.Context, opts violation.ListOpts) ([]*violation.Violation, error) {
	var models []violationModel
	q := s.sdb.NewSelect(&models)

	if !opts.SellerID.IsNil() {
		q = q.Where("seller_id = ?", opts.SellerID.String())
	}
	if opts.ProductID != "" {
		q = q.Where("product_id = ?", opts.ProductID)
	}
	if opts.Status != "" {
		q = q.Where("status = ?", string(opts.Status))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*violation.Violation, len(models))
	for i := range models {
		v, err := fromViolationModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = v
	}
	return result, nil
}

// ==================== Purchase Order Store ====================

func (s *Store) CreateOrder(ctx context.Context, p *order.PurchaseOrder) error {
	m := toOrderModel(p)
	_, err := s.sdb.NewInsert(m).Exec(ctx)
	return err
}

func (s *Store) GetOrder(ctx context.Context, orderID id.PurchaseOrderID) (*order.PurchaseOrder, error) {
	m := new(orderModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", orderID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, granary.ErrOrderNotFound
		}
		return nil, err
	}
	return fromOrderModel(m)
}

func (s *Store) ListOrders(ctx context.Context, opts order.ListOpts) ([]*order.PurchaseOrder, error) {
	var models []orderModel
	q := s.sdb.NewSelect(&models)

	if !opts.SellerID.IsNil() {
		q = q.Where("seller_id = ?", opts.SellerID.String())
	}
	if opts.ProductID != "" {
		q = q.Where("product_id = ?", opts.ProductID)
	}
	if opts.Status != "" {
		q = q.Where("status = ?", string(opts.Status))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*order.PurchaseOrder, len(models))
	for i := range models {
		p, err := fromOrderModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = p
	}
	return result, nil
}

func (s *Store) FinalizeOrder(ctx context.Context, p *order.PurchaseOrder, lot *inventory.Lot) error {
	t := now()
	lotID := ""
	if !p.LotID.IsNil() {
		lotID = p.LotID.String()
	}

	res, err := s.sdb.NewUpdate((*orderModel)(nil)).
		Set("status = ?", string(p.Status)).
		Set("approved_quantity = ?", p.ApprovedQuantity).
		Set("final_cents = ?", p.FinalUnitPrice.Amount).
		Set("final_currency = ?", p.FinalUnitPrice.Currency).
		Set("decision_notes = ?", p.DecisionNotes).
		Set("decided_at = ?", p.DecidedAt).
		Set("lot_id = ?", lotID).
		Set("updated_at = ?", t).
		Where("id = ?", p.ID.String()).
		Where("status = ?", string(order.StatusPending)).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		if _, err := s.GetOrder(ctx, p.ID); err != nil {
			return err
		}
		return granary.ErrOrderNotPending
	}

	if lot == nil {
		return nil
	}

	if _, err := s.sdb.NewInsert(toLotModel(lot)).Exec(ctx); err != nil {
		// Revert the order flip so the decision unit stays all-or-nothing.
		_, revertErr := s.sdb.NewUpdate((*orderModel)(nil)).
			Set("status = ?", string(order.StatusPending)).
			Set("approved_quantity = ?", int64(0)).
			Set("final_cents = ?", int64(0)).
			Set("final_currency = ?", "").
			Set("decision_notes = ?", "").
			Set("decided_at = ?", (*time.Time)(nil)).
			Set("lot_id = ?", "").
			Set("updated_at = ?", now()).
			Where("id = ?", p.ID.String()).
			Exec(ctx)
		if revertErr != nil {
			return errors.Join(granary.ErrTransactionFailed, err, revertErr)
		}
		return err
	}
	return nil
}

// ==================== Inventory Store ====================

func (s *Store) CreateLot(ctx context.Context, l *inventory.Lot) error {
	m := toLotModel(l)
	_, err := s.sdb.NewInsert(m).Exec(ctx)
	return err
}

func (s *Store) GetLot(ctx context.Context, lotID id.LotID) (*inventory.Lot, error) {
	m := new(lotModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", lotID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, granary.ErrLotNotFound
		}
		return nil, err
	}
	return fromLotModel(m)
}

func (s *Store) ListLots(ctx context.Context, productID string, onlyAvailable bool) ([]*inventory.Lot, error) {
	var models []lotModel
	q := s.sdb.NewSelect(&models).Where("product_id = ?", productID)
	if onlyAvailable {
		q = q.Where("quantity_remaining > ?", int64(0))
	}
	q = q.OrderExpr("received_at ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*inventory.Lot, len(models))
	for i := range models {
		l, err := fromLotModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = l
	}
	return result, nil
}

func (s *Store) ApplyConsumption(ctx context.Context, productID string, allocations []inventory.Allocation) error {
	applied := make([]inventory.Allocation, 0, len(allocations))

	for _, a := range allocations {
		res, err := s.sdb.NewUpdate((*lotModel)(nil)).
			Set("quantity_remaining = quantity_remaining - ?", a.Quantity).
			Set("updated_at = ?", now()).
			Where("id = ?", a.LotID.String()).
			Where("product_id = ?", productID).
			Where("quantity_remaining >= ?", a.Quantity).
			Exec(ctx)
		if err == nil {
			var rows int64
			rows, err = res.RowsAffected()
			if err == nil && rows == 0 {
				err = granary.ErrInsufficientStock
			}
		}
		if err != nil {
			// Put back what this batch already took.
			for _, done := range applied {
				_, revertErr := s.sdb.NewUpdate((*lotModel)(nil)).
					Set("quantity_remaining = quantity_remaining + ?", done.Quantity).
					Set("updated_at = ?", now()).
					Where("id = ?", done.LotID.String()).
					Exec(ctx)
				if revertErr != nil {
					return errors.Join(granary.ErrTransactionFailed, err, revertErr)
				}
			}
			return err
		}
		applied = append(applied, a)
	}
	return nil
}

func (s *Store) AdjustLot(ctx context.Context, lotID id.LotID, newRemaining int64) error {
	res, err := s.sdb.NewUpdate((*lotModel)(nil)).
		Set("quantity_remaining = ?", newRemaining).
		Set("updated_at = ?", now()).
		Where("id = ?", lotID.String()).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return granary.ErrLotNotFound
	}
	return nil
}

func (s *Store) TotalAvailable(ctx context.Context, productID string) (int64, error) {
	var total int64
	err := s.sdb.NewRaw(`
		SELECT COALESCE(SUM(quantity_remaining), 0) FROM granary_lots
		WHERE product_id = ?
	`, productID).Scan(ctx, &total)
	if err != nil {
		return 0, err
	}
	return total, nil
}

// ==================== Audit Store ====================

func (s *Store) AppendAudit(ctx context.Context, r *audit.Record) error {
	// SQLite is a single-writer store; MAX+1 cannot race another insert.
	var seq int64
	if err := s.sdb.NewRaw(`SELECT COALESCE(MAX(seq), 0) + 1 FROM granary_audit_records`).Scan(ctx, &seq); err != nil {
		return err
	}
	r.Seq = seq

	m := toAuditModel(r)
	_, err := s.sdb.NewInsert(m).Exec(ctx)
	return err
}

func (s *Store) ListAuditByActor(ctx context.Context, actorID string, opts audit.ListOpts) ([]*audit.Record, error) {
	var models []auditModel
	q := s.sdb.NewSelect(&models).Where("actor_id = ?", actorID)

	if opts.Action != "" {
		q = q.Where("action = ?", string(opts.Action))
	}
	if opts.Outcome != "" {
		q = q.Where("outcome = ?", string(opts.Outcome))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("seq ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return fromAuditModels(models)
}

func (s *Store) ListAuditByTarget(ctx context.Context, targetID string, opts audit.ListOpts) ([]*audit.Record, error) {
	var models []auditModel
	q := s.sdb.NewSelect(&models).Where("target_id = ?", targetID)

	if opts.Action != "" {
		q = q.Where("action = ?", string(opts.Action))
	}
	if opts.Outcome != "" {
		q = q.Where("outcome = ?", string(opts.Outcome))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("seq ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return fromAuditModels(models)
}

func (s *Store) ListAuditByRange(ctx context.Context, from, to time.Time, opts audit.ListOpts) ([]*audit.Record, error) {
	var models []auditModel
	q := s.sdb.NewSelect(&models).
		Where("occurred_at >= ?", from).
		Where("occurred_at <= ?", to)

	if opts.Action != "" {
		q = q.Where("action = ?", string(opts.Action))
	}
	if opts.Outcome != "" {
		q = q.Where("outcome = ?", string(opts.Outcome))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("seq ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return fromAuditModels(models)
}

func fromAuditModels(models []auditModel) ([]*audit.Record, error) {
	result := make([]*audit.Record, len(models))
	for i := range models {
		r, err := fromAuditModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = r
	}
	return result, nil
}

// ==================== Helpers ====================

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
