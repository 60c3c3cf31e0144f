package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

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

// Collection name constants.
const (
	colSellers    = "granary_sellers"
	colCeilings   = "granary_price_ceilings"
	colViolations = "granary_violations"
	colOrders     = "granary_purchase_orders"
	colLots       = "granary_lots"
	colAudit      = "granary_audit_records"
	colCounters   = "granary_counters"
)

// compile-time interface check
var _ granarystore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for all granary collections.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := migrationIndexes()

	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("granary/mongo: migrate %s indexes: %w", col, err)
		}
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
	_, err := s.mdb.NewInsert(m).Exec(ctx)
	if err != nil {
		return fmt.Errorf("granary/mongo: create seller: %w", err)
	}
	return nil
}

func (s *Store) GetSeller(ctx context.Context, sellerID id.SellerID) (*seller.Seller, error) {
	var m sellerModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": sellerID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, granary.ErrSellerNotFound
		}
		return nil, fmt.Errorf("granary/mongo: get seller: %w", err)
	}
	return fromSellerModel(&m)
}

func (s *Store) ListSellers(ctx context.Context, opts seller.ListOpts) ([]*seller.Seller, error) {
	var models []sellerModel

	filter := bson.M{}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}
	if opts.Region != "" {
		filter["region"] = opts.Region
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "created_at", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("granary/mongo: list sellers: %w", err)
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

	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("granary/mongo: update seller: %w", err)
	}
	if res.MatchedCount() == 0 {
		return granary.ErrSellerNotFound
	}
	return nil
}

func (s *Store) TransitionSeller(ctx context.Context, sl *seller.Seller, expected seller.Status) error {
	t := now()
	res, err := s.mdb.NewUpdate((*sellerModel)(nil)).
		Filter(bson.M{"_id": sl.ID.String(), "status": string(expected)}).
		Set("status", string(sl.Status)).
		Set("approval_date", sl.ApprovalDate).
		Set("approval_notes", sl.ApprovalNotes).
		Set("rejection_reason", sl.RejectionReason).
		Set("suspension_reason", sl.SuspensionReason).
		Set("suspended_at", sl.SuspendedAt).
		Set("suspended_until", sl.SuspendedUntil).
		Set("updated_at", t).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("granary/mongo: transition seller: %w", err)
	}
	if res.MatchedCount() == 0 {
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
	_, err := s.mdb.NewInsert(m).Exec(ctx)
	if err != nil {
		return fmt.Errorf("granary/mongo: create ceiling: %w", err)
	}
	return nil
}

func (s *Store) CurrentCeiling(ctx context.Context, productID string, at time.Time) (*ceiling.PriceCeiling, error) {
	var m ceilingModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{
			"product_id":     productID,
			"effective_from": bson.M{"$lte": at},
		}).
		Sort(bson.D{{Key: "effective_from", Value: -1}}).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, granary.ErrCeilingNotFound
		}
		return nil, fmt.Errorf("granary/mongo: current ceiling: %w", err)
	}
	return fromCeilingModel(&m)
}

func (s *Store) CeilingHistory(ctx context.Context, productID string) ([]*ceiling.PriceCeiling, error) {
	var models []ceilingModel
	err := s.mdb.NewFind(&models).
		Filter(bson.M{"product_id": productID}).
		Sort(bson.D{{Key: "effective_from", Value: -1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("granary/mongo: ceiling history: %w", err)
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
	_, err := s.mdb.NewInsert(m).Exec(ctx)
	if err != nil {
		return fmt.Errorf("granary/mongo: create violation: %w", err)
	}
	return nil
}

func (s *Store) GetViolation(ctx context.Context, violationID id.ViolationID) (*violation.Violation, error) {
	var m violationModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": violationID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, granary.ErrViolationNotFound
		}
		return nil, fmt.Errorf("granary/mongo: get violation: %w", err)
	}
	return fromViolationModel(&m)
}

func (s *Store) GetOpenViolation(ctx context.Context, sellerID id.SellerID, productID string) (*violation.Violation, error) {
	var m violationModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{
			"seller_id":  sellerID.String(),
			"product_id": productID,
			"status":     bson.M{"$in": []string{string(violation.StatusNew), string(violation.StatusWarned)}},
		}).
		Sort(bson.D{{Key: "created_at", Value: -1}}).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, granary.ErrViolationNotFound
		}
		return nil, fmt.Errorf("granary/mongo: get open violation: %w", err)
	}
	return fromViolationModel(&m)
}

func (s *Store) UpdateViolation(ctx context.Context, v *violation.Violation) error {
	m := toViolationModel(v)
	m.UpdatedAt = now()

	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("granary/mongo: update violation: %w", err)
	}
	if res.MatchedCount() == 0 {
		return granary.ErrViolationNotFound
	}
	return nil
}

func (s *Store) ListViolations(ctx context.Context, opts violation.ListOpts) ([]*violation.Violation, error) {
	var models []violationModel

	filter := bson.M{}
	if !opts.SellerID.IsNil() {
		filter["seller_id"] = opts.SellerID.String()
	}
	if opts.ProductID != "" {
		filter["product_id"] = opts.ProductID
	}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "created_at", Value: -1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("granary/mongo: list violations: %w", err)
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
	_, err := s.mdb.NewInsert(m).Exec(ctx)
	if err != nil {
		return fmt.Errorf("granary/mongo: create order: %w", err)
	}
	return nil
}

func (s *Store) GetOrder(ctx context.Context, orderID id.PurchaseOrderID) (*order.PurchaseOrder, error) {
	var m orderModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": orderID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, granary.ErrOrderNotFound
		}
		return nil, fmt.Errorf("granary/mongo: get order: %w", err)
	}
	return fromOrderModel(&m)
}

func (s *Store) ListOrders(ctx context.Context, opts order.ListOpts) ([]*order.PurchaseOrder, error) {
	var models []orderModel

	filter := bson.M{}
	if !opts.SellerID.IsNil() {
		filter["seller_id"] = opts.SellerID.String()
	}
	if opts.ProductID != "" {
		filter["product_id"] = opts.ProductID
	}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "created_at", Value: -1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("granary/mongo: list orders: %w", err)
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

	res, err := s.mdb.NewUpdate((*orderModel)(nil)).
		Filter(bson.M{"_id": p.ID.String(), "status": string(order.StatusPending)}).
		Set("status", string(p.Status)).
		Set("approved_quantity", p.ApprovedQuantity).
		Set("final_cents", p.FinalUnitPrice.Amount).
		Set("final_currency", p.FinalUnitPrice.Currency).
		Set("decision_notes", p.DecisionNotes).
		Set("decided_at", p.DecidedAt).
		Set("lot_id", lotID).
		Set("updated_at", t).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("granary/mongo: finalize order: %w", err)
	}
	if res.MatchedCount() == 0 {
		if _, err := s.GetOrder(ctx, p.ID); err != nil {
			return err
		}
		return granary.ErrOrderNotPending
	}

	if lot == nil {
		return nil
	}

	if _, err := s.mdb.NewInsert(toLotModel(lot)).Exec(ctx); err != nil {
		// Revert the order flip so the decision unit stays all-or-nothing.
		_, revertErr := s.mdb.NewUpdate((*orderModel)(nil)).
			Filter(bson.M{"_id": p.ID.String()}).
			Set("status", string(order.StatusPending)).
			Set("approved_quantity", int64(0)).
			Set("final_cents", int64(0)).
			Set("final_currency", "").
			Set("decision_notes", "").
			Set("decided_at", nil).
			Set("lot_id", "").
			Set("updated_at", now()).
			Exec(ctx)
		if revertErr != nil {
			return errors.Join(granary.ErrTransactionFailed, err, revertErr)
		}
		return fmt.Errorf("granary/mongo: finalize order lot: %w", err)
	}
	return nil
}

// ==================== Inventory Store ====================

func (s *Store) CreateLot(ctx context.Context, l *inventory.Lot) error {
	m := toLotModel(l)
	_, err := s.mdb.NewInsert(m).Exec(ctx)
	if err != nil {
		return fmt.Errorf("granary/mongo: create lot: %w", err)
	}
	return nil
}

func (s *Store) GetLot(ctx context.Context, lotID id.LotID) (*inventory.Lot, error) {
	var m lotModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": lotID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, granary.ErrLotNotFound
		}
		return nil, fmt.Errorf("granary/mongo: get lot: %w", err)
	}
	return fromLotModel(&m)
}

func (s *Store) ListLots(ctx context.Context, productID string, onlyAvailable bool) ([]*inventory.Lot, error) {
	var models []lotModel

	filter := bson.M{"product_id": productID}
	if onlyAvailable {
		filter["quantity_remaining"] = bson.M{"$gt": int64(0)}
	}

	err := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "received_at", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("granary/mongo: list lots: %w", err)
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
		res, err := s.mdb.NewUpdate((*lotModel)(nil)).
			Filter(bson.M{
				"_id":                a.LotID.String(),
				"product_id":         productID,
				"quantity_remaining": bson.M{"$gte": a.Quantity},
			}).
			SetUpdate(bson.M{
				"$inc": bson.M{"quantity_remaining": -a.Quantity},
				"$set": bson.M{"updated_at": now()},
			}).
			Exec(ctx)
		if err == nil && res.MatchedCount() == 0 {
			err = granary.ErrInsufficientStock
		}
		if err != nil {
			// Put back what this batch already took.
			for _, done := range applied {
				_, revertErr := s.mdb.NewUpdate((*lotModel)(nil)).
					Filter(bson.M{"_id": done.LotID.String()}).
					SetUpdate(bson.M{
						"$inc": bson.M{"quantity_remaining": done.Quantity},
						"$set": bson.M{"updated_at": now()},
					}).
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
	res, err := s.mdb.NewUpdate((*lotModel)(nil)).
		Filter(bson.M{"_id": lotID.String()}).
		Set("quantity_remaining", newRemaining).
		Set("updated_at", now()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("granary/mongo: adjust lot: %w", err)
	}
	if res.MatchedCount() == 0 {
		return granary.ErrLotNotFound
	}
	return nil
}

func (s *Store) TotalAvailable(ctx context.Context, productID string) (int64, error) {
	pipeline := bson.A{
		bson.M{"$match": bson.M{"product_id": productID}},
		bson.M{"$group": bson.M{
			"_id":   nil,
			"total": bson.M{"$sum": "$quantity_remaining"},
		}},
	}

	cursor, err := s.mdb.Collection(colLots).Aggregate(ctx, pipeline)
	if err != nil {
		return 0, fmt.Errorf("granary/mongo: total available: %w", err)
	}
	defer cursor.Close(ctx)

	var results []struct {
		Total int64 `bson:"total"`
	}
	if err := cursor.All(ctx, &results); err != nil {
		return 0, fmt.Errorf("granary/mongo: total available decode: %w", err)
	}

	if len(results) == 0 {
		return 0, nil
	}
	return results[0].Total, nil
}

// ==================== Audit Store ====================

func (s *Store) AppendAudit(ctx context.Context, r *audit.Record) error {
	seq, err := s.nextAuditSeq(ctx)
	if err != nil {
		return err
	}
	r.Seq = seq

	m := toAuditModel(r)
	if _, err := s.mdb.NewInsert(m).Exec(ctx); err != nil {
		return fmt.Errorf("granary/mongo: append audit: %w", err)
	}
	return nil
}

// nextAuditSeq claims the next value from the audit counter document.
func (s *Store) nextAuditSeq(ctx context.Context) (int64, error) {
	var counter struct {
		Value int64 `bson:"value"`
	}
	err := s.mdb.Collection(colCounters).FindOneAndUpdate(
		ctx,
		bson.M{"_id": "granary_audit_seq"},
		bson.M{"$inc": bson.M{"value": int64(1)}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("granary/mongo: next audit seq: %w", err)
	}
	return counter.Value, nil
}

func (s *Store) ListAuditByActor(ctx context.Context, actorID string, opts audit.ListOpts) ([]*audit.Record, error) {
	filter := bson.M{"actor_id": actorID}
	return s.listAudit(ctx, filter, opts)
}

func (s *Store) ListAuditByTarget(ctx context.Context, targetID string, opts audit.ListOpts) ([]*audit.Record, error) {
	filter := bson.M{"target_id": targetID}
	return s.listAudit(ctx, filter, opts)
}

func (s *Store) ListAuditByRange(ctx context.Context, from, to time.Time, opts audit.ListOpts) ([]*audit.Record, error) {
	filter := bson.M{"occurred_at": bson.M{"$gte": from, "$lte": to}}
	return s.listAudit(ctx, filter, opts)
}

func (s *Store) listAudit(ctx context.Context, filter bson.M, opts audit.ListOpts) ([]*audit.Record, error) {
	var models []auditModel

	if opts.Action != "" {
		filter["action"] = string(opts.Action)
	}
	if opts.Outcome != "" {
		filter["outcome"] = string(opts.Outcome)
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "seq", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("granary/mongo: list audit: %w", err)
	}

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

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all granary collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colSellers: {
			{Keys: bson.D{{Key: "status", Value: 1}}},
			{Keys: bson.D{{Key: "region", Value: 1}, {Key: "status", Value: 1}}},
		},
		colCeilings: {
			{Keys: bson.D{{Key: "product_id", Value: 1}, {Key: "effective_from", Value: -1}}},
		},
		colViolations: {
			{Keys: bson.D{{Key: "seller_id", Value: 1}, {Key: "product_id", Value: 1}, {Key: "status", Value: 1}}},
			{Keys: bson.D{{Key: "product_id", Value: 1}, {Key: "status", Value: 1}}},
		},
		colOrders: {
			{Keys: bson.D{{Key: "seller_id", Value: 1}, {Key: "status", Value: 1}}},
			{Keys: bson.D{{Key: "product_id", Value: 1}, {Key: "status", Value: 1}}},
		},
		colLots: {
			{Keys: bson.D{{Key: "product_id", Value: 1}, {Key: "received_at", Value: 1}}},
			{Keys: bson.D{{Key: "product_id", Value: 1}, {Key: "quantity_remaining", Value: 1}}},
		},
		colAudit: {
			{
				Keys:    bson.D{{Key: "seq", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "actor_id", Value: 1}, {Key: "seq", Value: 1}}},
			{Keys: bson.D{{Key: "target_id", Value: 1}, {Key: "seq", Value: 1}}},
			{Keys: bson.D{{Key: "occurred_at", Value: 1}}},
		},
	}
}
