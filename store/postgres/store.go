package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
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

// Store implements store.Store using PostgreSQL via Grove ORM.
type Store struct {
	db *grove.DB
	pg *pgdriver.PgDB
}

// New creates a new PostgreSQL store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db: db,
		pg: pgdriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("granary/postgres: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("granary/postgres: migration failed: %w", err)
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
	_, err := s.pg.NewInsert(m).Exec(ctx)
	return err
}

func (s *Store) GetSeller(ctx context.Context, sellerID id.SellerID) (*seller.Seller, error) {
	m := new(sellerModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", sellerID.String()).
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
	q := s.pg.NewSelect(&models)

	argIdx := 0
	if opts.Status != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("status = $%d", argIdx), string(opts.Status))
	}
	if opts.Region != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("region = $%d", argIdx), opts.Region)
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
	res, err := s.pg.NewUpdate(m).WherePK().Exec(ctx)
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
	res, err := s.pg.NewUpdate((*sellerModel)(nil)).
		Set("status = $1", string(sl.Status)).
		Set("approval_date = $2", sl.ApprovalDate).
		Set("approval_notes = $3", sl.ApprovalNotes).
		Set("rejection_reason = $4", sl.RejectionReason).
		Set("suspension_reason = $5", sl.SuspensionReason).
		Set("suspended_at = $6", sl.SuspendedAt).
		Set("suspended_until = $7", sl.SuspendedUntil).
		Set("updated_at = $8", t).
		Where("id = $9", sl.ID.String()).
		Where("status = $10", string(expected)).
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
	_, err := s.pg.NewInsert(m).Exec(ctx)
	return err
}

func (s *Store) CurrentCeiling(ctx context.Context, productID string, at time.Time) (*ceiling.PriceCeiling, error) {
	m := new(ceilingModel)
	err := s.pg.NewSelect(m).
		Where("product_id = $1", productID).
		Where("effective_from <= $2", at).
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
	err := s.pg.NewSelect(&models).
		Where("product_id = $1", productID).
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
	_, err := s.pg.NewInsert(m).Exec(ctx)
	return err
}

func (s *Store) GetViolation(ctx context.Context, violationID id.ViolationID) (*violation.Violation, error) {
	m := new(violationModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", violationID.String()).
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
	err := s.pg.NewSelect(m).
		Where("seller_id = $1", sellerID.String()).
		Where("product_id = $2", productID).
		Where("status IN ($3, $4)", string(violation.StatusNew), string(violation.StatusWarned)).
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
	res, err := s.pg.NewUpdate(m).WherePK().Exec(ctx)
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
	q := s.pg.NewSelect(&models)

	argIdx := 0
	if !opts.SellerID.IsNil() {
		argIdx++
		q = q.Where(fmt.Sprintf("seller_id = $%d", argIdx), opts.SellerID.String())
	}
	if opts.ProductID != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("product_id = $%d", argIdx), opts.ProductID)
	}
	if opts.Status != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("status = $%d", argIdx), string(opts.Status))
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
	_, err := s.pg.NewInsert(m).Exec(ctx)
	return err
}

func (s *Store) GetOrder(ctx context.Context, orderID id.PurchaseOrderID) (*order.PurchaseOrder, error) {
	m := new(orderModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", orderID.String()).
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
	q := s.pg.NewSelect(&models)

	argIdx := 0
	if !opts.SellerID.IsNil() {
		argIdx++
		q = q.Where(fmt.Sprintf("seller_id = $%d", argIdx), opts.SellerID.String())
	}
	if opts.ProductID != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("product_id = $%d", argIdx), opts.ProductID)
	}
	if opts.Status != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("status = $%d", argIdx), string(opts.Status))
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

	res, err := s.pg.NewUpdate((*orderModel)(nil)).
		Set("status = $1", string(p.Status)).
		Set("approved_quantity = $2", p.ApprovedQuantity).
		Set("final_cents = $3", p.FinalUnitPrice.Amount).
		Set("final_currency = $4", p.FinalUnitPrice.Currency).
		Set("decision_notes = $5", p.DecisionNotes).
		Set("decided_at = $6", p.DecidedAt).
		Set("lot_id = $7", lotID).
		Set("updated_at = $8", t).
		Where("id = $9", p.ID.String()).
		Where("status = $10", string(order.StatusPending)).
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

	if _, err := s.pg.NewInsert(toLotModel(lot)).Exec(ctx); err != nil {
		// Revert the order flip so the decision unit stays all-or-nothing.
		_, revertErr := s.pg.NewUpdate((*orderModel)(nil)).
			Set("status = $1", string(order.StatusPending)).
			Set("approved_quantity = $2", int64(0)).
			Set("final_cents = $3", int64(0)).
			Set("final_currency = $4", "").
			Set("decision_notes = $5", "").
			Set("decided_at = $6", (*time.Time)(nil)).
			Set("lot_id = $7", "").
			Set("updated_at = $8", now()).
			Where("id = $9", p.ID.String()).
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
	_, err := s.pg.NewInsert(m).Exec(ctx)
	return err
}

func (s *Store) GetLot(ctx context.Context, lotID id.LotID) (*inventory.Lot, error) {
	m := new(lotModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", lotID.String()).
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
	q := s.pg.NewSelect(&models).Where("product_id = $1", productID)
	if onlyAvailable {
		q = q.Where("quantity_remaining > $2", int64(0))
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
		res, err := s.pg.NewUpdate((*lotModel)(nil)).
			Set("quantity_remaining = quantity_remaining - $1", a.Quantity).
			Set("updated_at = $2", now()).
			Where("id = $3", a.LotID.String()).
			Where("product_id = $4", productID).
			Where("quantity_remaining >= $5", a.Quantity).
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
				_, revertErr := s.pg.NewUpdate((*lotModel)(nil)).
					Set("quantity_remaining = quantity_remaining + $1", done.Quantity).
					Set("updated_at = $2", now()).
					Where("id = $3", done.LotID.String()).
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
	res, err := s.pg.NewUpdate((*lotModel)(nil)).
		Set("quantity_remaining = $1", newRemaining).
		Set("updated_at = $2", now()).
		Where("id = $3", lotID.String()).
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
	err := s.pg.NewRaw(`
		SELECT COALESCE(SUM(quantity_remaining), 0) FROM granary_lots
		WHERE product_id = $1
	`, productID).Scan(ctx, &total)
	if err != nil {
		return 0, err
	}
	return total, nil
}

// ==================== Audit Store ====================

func (s *Store) AppendAudit(ctx context.Context, r *audit.Record) error {
	var seq int64
	if err := s.pg.NewRaw(`SELECT nextval('granary_audit_seq')`).Scan(ctx, &seq); err != nil {
		return err
	}
	r.Seq = seq

	m := toAuditModel(r)
	_, err := s.pg.NewInsert(m).Exec(ctx)
	return err
}

func (s *Store) ListAuditByActor(ctx context.Context, actorID string, opts audit.ListOpts) ([]*audit.Record, error) {
	var models []auditModel
	q := s.pg.NewSelect(&models).Where("actor_id = $1", actorID)

	argIdx := 1
	if opts.Action != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("action = $%d", argIdx), string(opts.Action))
	}
	if opts.Outcome != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("outcome = $%d", argIdx), string(opts.Outcome))
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
	q := s.pg.NewSelect(&models).Where("target_id = $1", targetID)

	argIdx := 1
	if opts.Action != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("action = $%d", argIdx), string(opts.Action))
	}
	if opts.Outcome != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("outcome = $%d", argIdx), string(opts.Outcome))
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
	q := s.pg.NewSelect(&models).
		Where("occurred_at >= $1", from).
		Where("occurred_at <= $2", to)

	argIdx := 2
	if opts.Action != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("action = $%d", argIdx), string(opts.Action))
	}
	if opts.Outcome != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("outcome = $%d", argIdx), string(opts.Outcome))
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
