package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the Granary store.
var Migrations = migrate.NewGroup("granary")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_granary_sellers",
			Version: "20240101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS granary_sellers (
    id                 TEXT PRIMARY KEY,
    name               TEXT NOT NULL DEFAULT '',
    region             TEXT NOT NULL DEFAULT '',
    status             TEXT NOT NULL DEFAULT 'pending',
    documents_verified BOOLEAN NOT NULL DEFAULT FALSE,
    approval_date      TIMESTAMPTZ,
    approval_notes     TEXT NOT NULL DEFAULT '',
    rejection_reason   TEXT NOT NULL DEFAULT '',
    suspension_reason  TEXT NOT NULL DEFAULT '',
    suspended_at       TIMESTAMPTZ,
    suspended_until    TIMESTAMPTZ,
    metadata           JSONB NOT NULL DEFAULT '{}',
    created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_granary_sellers_status ON granary_sellers (status);
CREATE INDEX IF NOT EXISTS idx_granary_sellers_region ON granary_sellers (region, status);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS granary_sellers`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_granary_price_ceilings",
			Version: "20240101000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS granary_price_ceilings (
    id                TEXT PRIMARY KEY,
    product_id        TEXT NOT NULL DEFAULT '',
    ceiling_cents     BIGINT NOT NULL DEFAULT 0,
    ceiling_currency  TEXT NOT NULL DEFAULT '',
    effective_from    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    previous_cents    BIGINT,
    previous_currency TEXT NOT NULL DEFAULT '',
    reason            TEXT NOT NULL DEFAULT '',
    set_by            TEXT NOT NULL DEFAULT '',
    created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_granary_ceilings_product ON granary_price_ceilings (product_id, effective_from);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS granary_price_ceilings`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_granary_violations",
			Version: "20240101000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS granary_violations (
    id               TEXT PRIMARY KEY,
    seller_id        TEXT NOT NULL DEFAULT '',
    product_id       TEXT NOT NULL DEFAULT '',
    listed_cents     BIGINT NOT NULL DEFAULT 0,
    listed_currency  TEXT NOT NULL DEFAULT '',
    ceiling_cents    BIGINT NOT NULL DEFAULT 0,
    ceiling_currency TEXT NOT NULL DEFAULT '',
    overage_bps      BIGINT NOT NULL DEFAULT 0,
    status           TEXT NOT NULL DEFAULT 'new',
    resolution       TEXT NOT NULL DEFAULT '',
    resolved_by      TEXT NOT NULL DEFAULT '',
    created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_granary_violations_seller ON granary_violations (seller_id, product_id, status);
CREATE INDEX IF NOT EXISTS idx_granary_violations_product ON granary_violations (product_id, status);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS granary_violations`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_granary_purchase_orders",
			Version: "20240101000004",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS granary_purchase_orders (
    id                 TEXT PRIMARY KEY,
    seller_id          TEXT NOT NULL DEFAULT '',
    product_id         TEXT NOT NULL DEFAULT '',
    submitted_quantity BIGINT NOT NULL DEFAULT 0,
    submitted_cents    BIGINT NOT NULL DEFAULT 0,
    submitted_currency TEXT NOT NULL DEFAULT '',
    status             TEXT NOT NULL DEFAULT 'pending',
    approved_quantity  BIGINT NOT NULL DEFAULT 0,
    final_cents        BIGINT NOT NULL DEFAULT 0,
    final_currency     TEXT NOT NULL DEFAULT '',
    decision_notes     TEXT NOT NULL DEFAULT '',
    decided_at         TIMESTAMPTZ,
    lot_id             TEXT NOT NULL DEFAULT '',
    created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_granary_orders_seller ON granary_purchase_orders (seller_id, status);
CREATE INDEX IF NOT EXISTS idx_granary_orders_product ON granary_purchase_orders (product_id, status);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS granary_purchase_orders`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_granary_lots",
			Version: "20240101000005",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS granary_lots (
    id                 TEXT PRIMARY KEY,
    product_id         TEXT NOT NULL DEFAULT '',
    original_quantity  BIGINT NOT NULL DEFAULT 0,
    quantity_remaining BIGINT NOT NULL DEFAULT 0,
    unit_cost_cents    BIGINT NOT NULL DEFAULT 0,
    unit_cost_currency TEXT NOT NULL DEFAULT '',
    received_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    source_order_id    TEXT NOT NULL DEFAULT '',
    expires_at         TIMESTAMPTZ,
    created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_granary_lots_product ON granary_lots (product_id, received_at);
CREATE INDEX IF NOT EXISTS idx_granary_lots_available ON granary_lots (product_id, quantity_remaining);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS granary_lots`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_granary_audit_records",
			Version: "20240101000006",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE SEQUENCE IF NOT EXISTS granary_audit_seq;

CREATE TABLE IF NOT EXISTS granary_audit_records (
    id           TEXT PRIMARY KEY,
    seq          BIGINT NOT NULL,
    actor_id     TEXT NOT NULL DEFAULT '',
    action       TEXT NOT NULL DEFAULT '',
    target_id    TEXT NOT NULL DEFAULT '',
    occurred_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    before_state JSONB,
    after_state  JSONB,
    outcome      TEXT NOT NULL DEFAULT '',
    reason       TEXT NOT NULL DEFAULT ''
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_granary_audit_seq ON granary_audit_records (seq);
CREATE INDEX IF NOT EXISTS idx_granary_audit_actor ON granary_audit_records (actor_id, seq);
CREATE INDEX IF NOT EXISTS idx_granary_audit_target ON granary_audit_records (target_id, seq);
CREATE INDEX IF NOT EXISTS idx_granary_audit_occurred ON granary_audit_records (occurred_at);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
DROP TABLE IF EXISTS granary_audit_records;
DROP SEQUENCE IF EXISTS granary_audit_seq;
`)
				return err
			},
		},
	)
}
