package postgres

import (
	"encoding/json"
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/granary/audit"
	"github.com/xraph/granary/ceiling"
	"github.com/xraph/granary/id"
	"github.com/xraph/granary/inventory"
	"github.com/xraph/granary/order"
	"github.com/xraph/granary/seller"
	"github.com/xraph/granary/types"
	"github.com/xraph/granary/violation"
)

// ==================== Seller models ====================

type sellerModel struct {
	grove.BaseModel `grove:"table:granary_sellers"`

	ID                string            `grove:"id,pk"`
	Name              string            `grove:"name"`
	Region            string            `grove:"region"`
	Status            string            `grove:"status"`
	DocumentsVerified bool              `grove:"documents_verified"`
	ApprovalDate      *time.Time        `grove:"approval_date"`
	ApprovalNotes     string            `grove:"approval_notes"`
	RejectionReason   string            `grove:"rejection_reason"`
	SuspensionReason  string            `grove:"suspension_reason"`
	SuspendedAt       *time.Time        `grove:"suspended_at"`
	SuspendedUntil    *time.Time        `grove:"suspended_until"`
	Metadata          map[string]string `grove:"metadata,type:jsonb"`
	CreatedAt         time.Time         `grove:"created_at"`
	UpdatedAt         time.Time         `grove:"updated_at"`
}

func toSellerModel(s *seller.Seller) *sellerModel {
	return &sellerModel{
		ID:                s.ID.String(),
		Name:              s.Name,
		Region:            s.Region,
		Status:            string(s.Status),
		DocumentsVerified: s.DocumentsVerified,
		ApprovalDate:      s.ApprovalDate,
		ApprovalNotes:     s.ApprovalNotes,
		RejectionReason:   s.RejectionReason,
		SuspensionReason:  s.SuspensionReason,
		SuspendedAt:       s.SuspendedAt,
		SuspendedUntil:    s.SuspendedUntil,
		Metadata:          s.Metadata,
		CreatedAt:         s.CreatedAt,
		UpdatedAt:         s.UpdatedAt,
	}
}

func fromSellerModel(m *sellerModel) (*seller.Seller, error) {
	sellerID, err := id.ParseSellerID(m.ID)
	if err != nil {
		return nil, err
	}

	return &seller.Seller{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:                sellerID,
		Name:              m.Name,
		Region:            m.Region,
		Status:            seller.Status(m.Status),
		DocumentsVerified: m.DocumentsVerified,
		ApprovalDate:      m.ApprovalDate,
		ApprovalNotes:     m.ApprovalNotes,
		RejectionReason:   m.RejectionReason,
		SuspensionReason:  m.SuspensionReason,
		SuspendedAt:       m.SuspendedAt,
		SuspendedUntil:    m.SuspendedUntil,
		Metadata:          m.Metadata,
	}, nil
}

// ==================== Price ceiling models ====================

type ceilingModel struct {
	grove.BaseModel `grove:"table:granary_price_ceilings"`

	ID               string    `grove:"id,pk"`
	ProductID        string    `grove:"product_id"`
	CeilingCents     int64     `grove:"ceiling_cents"`
	CeilingCurrency  string    `grove:"ceiling_currency"`
	EffectiveFrom    time.Time `grove:"effective_from"`
	PreviousCents    *int64    `grove:"previous_cents"`
	PreviousCurrency string    `grove:"previous_currency"`
	Reason           string    `grove:"reason"`
	SetBy            string    `grove:"set_by"`
	CreatedAt        time.Time `grove:"created_at"`
	UpdatedAt        time.Time `grove:"updated_at"`
}

func toCeilingModel(c *ceiling.PriceCeiling) *ceilingModel {
	m := &ceilingModel{
		ID:              c.ID.String(),
		ProductID:       c.ProductID,
		CeilingCents:    c.CeilingPrice.Amount,
		CeilingCurrency: c.CeilingPrice.Currency,
		EffectiveFrom:   c.EffectiveFrom,
		Reason:          c.Reason,
		SetBy:           c.SetBy,
		CreatedAt:       c.CreatedAt,
		UpdatedAt:       c.UpdatedAt,
	}
	if c.PreviousCeiling != nil {
		prev := c.PreviousCeiling.Amount
		m.PreviousCents = &prev
		m.PreviousCurrency = c.PreviousCeiling.Currency
	}
	return m
}

func fromCeilingModel(m *ceilingModel) (*ceiling.PriceCeiling, error) {
	ceilingID, err := id.ParseCeilingID(m.ID)
	if err != nil {
		return nil, err
	}

	c := &ceiling.PriceCeiling{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:            ceilingID,
		ProductID:     m.ProductID,
		CeilingPrice:  types.Money{Amount: m.CeilingCents, Currency: m.CeilingCurrency},
		EffectiveFrom: m.EffectiveFrom,
		Reason:        m.Reason,
		SetBy:         m.SetBy,
	}
	if m.PreviousCents != nil {
		prev := types.Money{Amount: *m.PreviousCents, Currency: m.PreviousCurrency}
		c.PreviousCeiling = &prev
	}
	return c, nil
}

// ==================== Violation models ====================

type violationModel struct {
	grove.BaseModel `grove:"table:granary_violations"`

	ID              string    `grove:"id,pk"`
	SellerID        string    `grove:"seller_id"`
	ProductID       string    `grove:"product_id"`
	ListedCents     int64     `grove:"listed_cents"`
	ListedCurrency  string    `grove:"listed_currency"`
	CeilingCents    int64     `grove:"ceiling_cents"`
	CeilingCurrency string    `grove:"ceiling_currency"`
	OverageBps      int64     `grove:"overage_bps"`
	Status          string    `grove:"status"`
	Resolution      string    `grove:"resolution"`
	ResolvedBy      string    `grove:"resolved_by"`
	CreatedAt       time.Time `grove:"created_at"`
	UpdatedAt       time.Time `grove:"updated_at"`
}

func toViolationModel(v *violation.Violation) *violationModel {
	return &violationModel{
		ID:              v.ID.String(),
		SellerID:        v.SellerID.String(),
		ProductID:       v.ProductID,
		ListedCents:     v.ListedPrice.Amount,
		ListedCurrency:  v.ListedPrice.Currency,
		CeilingCents:    v.CeilingAtDetection.Amount,
		CeilingCurrency: v.CeilingAtDetection.Currency,
		OverageBps:      v.OverageBps,
		Status:          string(v.Status),
		Resolution:      v.Resolution,
		ResolvedBy:      v.ResolvedBy,
		CreatedAt:       v.CreatedAt,
		UpdatedAt:       v.UpdatedAt,
	}
}

func fromViolationModel(m *violationModel) (*violation.Violation, error) {
	violationID, err := id.ParseViolationID(m.ID)
	if err != nil {
		return nil, err
	}
	sellerID, err := id.ParseSellerID(m.SellerID)
	if err != nil {
		return nil, err
	}

	return &violation.Violation{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:                 violationID,
		SellerID:           sellerID,
		ProductID:          m.ProductID,
		ListedPrice:        types.Money{Amount: m.ListedCents, Currency: m.ListedCurrency},
		CeilingAtDetection: types.Money{Amount: m.CeilingCents, Currency: m.CeilingCurrency},
		OverageBps:         m.OverageBps,
		Status:             violation.Status(m.Status),
		Resolution:         m.Resolution,
		ResolvedBy:         m.ResolvedBy,
	}, nil
}

// ==================== Purchase order models ====================

type orderModel struct {
	grove.BaseModel `grove:"table:granary_purchase_orders"`

	ID                string     `grove:"id,pk"`
	SellerID          string     `grove:"seller_id"`
	ProductID         string     `grove:"product_id"`
	SubmittedQuantity int64      `grove:"submitted_quantity"`
	SubmittedCents    int64      `grove:"submitted_cents"`
	SubmittedCurrency string     `grove:"submitted_currency"`
	Status            string     `grove:"status"`
	ApprovedQuantity  int64      `grove:"approved_quantity"`
	FinalCents        int64      `grove:"final_cents"`
	FinalCurrency     string     `grove:"final_currency"`
	DecisionNotes     string     `grove:"decision_notes"`
	DecidedAt         *time.Time `grove:"decided_at"`
	LotID             string     `grove:"lot_id"`
	CreatedAt         time.Time  `grove:"created_at"`
	UpdatedAt         time.Time  `grove:"updated_at"`
}

func toOrderModel(p *order.PurchaseOrder) *orderModel {
	m := &orderModel{
		ID:                p.ID.String(),
		SellerID:          p.SellerID.String(),
		ProductID:         p.ProductID,
		SubmittedQuantity: p.SubmittedQuantity,
		SubmittedCents:    p.SubmittedUnitPrice.Amount,
		SubmittedCurrency: p.SubmittedUnitPrice.Currency,
		Status:            string(p.Status),
		ApprovedQuantity:  p.ApprovedQuantity,
		FinalCents:        p.FinalUnitPrice.Amount,
		FinalCurrency:     p.FinalUnitPrice.Currency,
		DecisionNotes:     p.DecisionNotes,
		DecidedAt:         p.DecidedAt,
		CreatedAt:         p.CreatedAt,
		UpdatedAt:         p.UpdatedAt,
	}
	if !p.LotID.IsNil() {
		m.LotID = p.LotID.String()
	}
	return m
}

func fromOrderModel(m *orderModel) (*order.PurchaseOrder, error) {
	orderID, err := id.ParsePurchaseOrderID(m.ID)
	if err != nil {
		return nil, err
	}
	sellerID, err := id.ParseSellerID(m.SellerID)
	if err != nil {
		return nil, err
	}

	p := &order.PurchaseOrder{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:                orderID,
		SellerID:          sellerID,
		ProductID:         m.ProductID,
		SubmittedQuantity: m.SubmittedQuantity,
		SubmittedUnitPrice: types.Money{
			Amount:   m.SubmittedCents,
			Currency: m.SubmittedCurrency,
		},
		Status:           order.Status(m.Status),
		ApprovedQuantity: m.ApprovedQuantity,
		DecisionNotes:    m.DecisionNotes,
		DecidedAt:        m.DecidedAt,
	}
	if m.FinalCurrency != "" {
		p.FinalUnitPrice = types.Money{Amount: m.FinalCents, Currency: m.FinalCurrency}
	}
	if m.LotID != "" {
		lotID, err := id.ParseLotID(m.LotID)
		if err != nil {
			return nil, err
		}
		p.LotID = lotID
	}
	return p, nil
}

// ==================== Inventory lot models ====================

type lotModel struct {
	grove.BaseModel `grove:"table:granary_lots"`

	ID                string     `grove:"id,pk"`
	ProductID         string     `grove:"product_id"`
	OriginalQuantity  int64      `grove:"original_quantity"`
	QuantityRemaining int64      `grove:"quantity_remaining"`
	UnitCostCents     int64      `grove:"unit_cost_cents"`
	UnitCostCurrency  string     `grove:"unit_cost_currency"`
	ReceivedAt        time.Time  `grove:"received_at"`
	SourceOrderID     string     `grove:"source_order_id"`
	ExpiresAt         *time.Time `grove:"expires_at"`
	CreatedAt         time.Time  `grove:"created_at"`
	UpdatedAt         time.Time  `grove:"updated_at"`
}

func toLotModel(l *inventory.Lot) *lotModel {
	m := &lotModel{
		ID:                l.ID.String(),
		ProductID:         l.ProductID,
		OriginalQuantity:  l.OriginalQuantity,
		QuantityRemaining: l.QuantityRemaining,
		UnitCostCents:     l.UnitCost.Amount,
		UnitCostCurrency:  l.UnitCost.Currency,
		ReceivedAt:        l.ReceivedAt,
		ExpiresAt:         l.ExpiresAt,
		CreatedAt:         l.CreatedAt,
		UpdatedAt:         l.UpdatedAt,
	}
	if !l.SourceOrderID.IsNil() {
		m.SourceOrderID = l.SourceOrderID.String()
	}
	return m
}

func fromLotModel(m *lotModel) (*inventory.Lot, error) {
	lotID, err := id.ParseLotID(m.ID)
	if err != nil {
		return nil, err
	}

	l := &inventory.Lot{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:                lotID,
		ProductID:         m.ProductID,
		OriginalQuantity:  m.OriginalQuantity,
		QuantityRemaining: m.QuantityRemaining,
		UnitCost:          types.Money{Amount: m.UnitCostCents, Currency: m.UnitCostCurrency},
		ReceivedAt:        m.ReceivedAt,
		ExpiresAt:         m.ExpiresAt,
	}
	if m.SourceOrderID != "" {
		orderID, err := id.ParsePurchaseOrderID(m.SourceOrderID)
		if err != nil {
			return nil, err
		}
		l.SourceOrderID = orderID
	}
	return l, nil
}

// ==================== Audit record models ====================

type auditModel struct {
	grove.BaseModel `grove:"table:granary_audit_records"`

	ID         string          `grove:"id,pk"`
	Seq        int64           `grove:"seq"`
	ActorID    string          `grove:"actor_id"`
	Action     string          `grove:"action"`
	TargetID   string          `grove:"target_id"`
	OccurredAt time.Time       `grove:"occurred_at"`
	Before     json.RawMessage `grove:"before_state,type:jsonb"`
	After      json.RawMessage `grove:"after_state,type:jsonb"`
	Outcome    string          `grove:"outcome"`
	Reason     string          `grove:"reason"`
}

func toAuditModel(r *audit.Record) *auditModel {
	return &auditModel{
		ID:         r.ID.String(),
		Seq:        r.Seq,
		ActorID:    r.ActorID,
		Action:     string(r.Action),
		TargetID:   r.TargetID,
		OccurredAt: r.OccurredAt,
		Before:     r.Before,
		After:      r.After,
		Outcome:    string(r.Outcome),
		Reason:     r.Reason,
	}
}

func fromAuditModel(m *auditModel) (*audit.Record, error) {
	recordID, err := id.ParseAuditRecordID(m.ID)
	if err != nil {
		return nil, err
	}

	return &audit.Record{
		ID:         recordID,
		Seq:        m.Seq,
		ActorID:    m.ActorID,
		Action:     audit.Action(m.Action),
		TargetID:   m.TargetID,
		OccurredAt: m.OccurredAt,
		Before:     m.Before,
		After:      m.After,
		Outcome:    audit.Outcome(m.Outcome),
		Reason:     m.Reason,
	}, nil
}
