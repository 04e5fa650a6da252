// Package schema holds the DDL for the ledger database. Constraints declared here
// (identity index, nested-split check, cascade on allocations) are relied on by
// the repositories and must not be relaxed.
package schema

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Tenancy: restaurants, memberships, chart of accounts and POS connections.
const tenancy = `
CREATE TABLE IF NOT EXISTS restaurants (
    id          UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    name        TEXT NOT NULL,
    timezone    TEXT,
    created_by  UUID NOT NULL,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS restaurants_creator_idx ON restaurants (created_by, lower(name), created_at);

CREATE TABLE IF NOT EXISTS user_restaurants (
    user_id       UUID NOT NULL,
    restaurant_id UUID NOT NULL REFERENCES restaurants(id) ON DELETE CASCADE,
    role          TEXT NOT NULL CONSTRAINT user_restaurants_role_check
                  CHECK (role IN ('owner', 'manager', 'chef', 'staff', 'viewer')),
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CONSTRAINT user_restaurants_pkey PRIMARY KEY (user_id, restaurant_id)
);

CREATE TABLE IF NOT EXISTS chart_of_accounts (
    id              UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    restaurant_id   UUID NOT NULL REFERENCES restaurants(id) ON DELETE CASCADE,
    account_code    TEXT NOT NULL,
    account_name    TEXT NOT NULL,
    account_type    TEXT NOT NULL,
    account_subtype TEXT,
    is_active       BOOLEAN NOT NULL DEFAULT TRUE,
    CONSTRAINT chart_of_accounts_code_key UNIQUE (restaurant_id, account_code)
);

CREATE TABLE IF NOT EXISTS pos_connections (
    restaurant_id UUID NOT NULL REFERENCES restaurants(id) ON DELETE CASCADE,
    pos_system    TEXT NOT NULL CHECK (pos_system IN ('square', 'clover', 'toast', 'shift4')),
    is_active     BOOLEAN NOT NULL DEFAULT TRUE,
    last_sync_at  TIMESTAMPTZ,
    PRIMARY KEY (restaurant_id, pos_system)
);
`

// Staging tables are written by the vendor API clients and only read here.
// Monetary columns keep each vendor's native unit.
const staging = `
CREATE TABLE IF NOT EXISTS square_orders (
    restaurant_id              UUID NOT NULL,
    order_id                   TEXT NOT NULL,
    location_id                TEXT,
    state                      TEXT NOT NULL,
    service_date               DATE,
    closed_at                  TIMESTAMPTZ,
    total_tax_cents            BIGINT NOT NULL DEFAULT 0,
    total_tip_cents            BIGINT NOT NULL DEFAULT 0,
    total_discount_cents       BIGINT NOT NULL DEFAULT 0,
    total_service_charge_cents BIGINT NOT NULL DEFAULT 0,
    raw_json                   JSONB NOT NULL DEFAULT '{}'::jsonb,
    PRIMARY KEY (restaurant_id, order_id)
);

CREATE TABLE IF NOT EXISTS square_order_line_items (
    restaurant_id     UUID NOT NULL,
    order_id          TEXT NOT NULL,
    uid               TEXT NOT NULL,
    name              TEXT,
    quantity          TEXT,
    base_price_cents  BIGINT,
    total_money_cents BIGINT,
    category_name     TEXT,
    raw_json          JSONB NOT NULL DEFAULT '{}'::jsonb,
    PRIMARY KEY (restaurant_id, order_id, uid)
);

CREATE TABLE IF NOT EXISTS clover_orders (
    restaurant_id UUID NOT NULL,
    order_id      TEXT NOT NULL,
    state         TEXT NOT NULL,
    service_date  DATE,
    closed_at     TIMESTAMPTZ,
    tax_cents     BIGINT NOT NULL DEFAULT 0,
    tip_cents     BIGINT NOT NULL DEFAULT 0,
    raw_json      JSONB NOT NULL DEFAULT '{}'::jsonb,
    PRIMARY KEY (restaurant_id, order_id)
);

CREATE TABLE IF NOT EXISTS clover_order_line_items (
    restaurant_id UUID NOT NULL,
    order_id      TEXT NOT NULL,
    line_item_id  TEXT NOT NULL,
    name          TEXT,
    unit_qty      BIGINT,
    price_cents   BIGINT,
    category_name TEXT,
    refunded      BOOLEAN NOT NULL DEFAULT FALSE,
    raw_json      JSONB NOT NULL DEFAULT '{}'::jsonb,
    PRIMARY KEY (restaurant_id, order_id, line_item_id)
);

CREATE TABLE IF NOT EXISTS toast_orders (
    restaurant_id         UUID NOT NULL,
    order_guid            TEXT NOT NULL,
    business_date         DATE,
    closed_date           TIMESTAMPTZ,
    voided                BOOLEAN NOT NULL DEFAULT FALSE,
    payment_status        TEXT,
    tax_amount            NUMERIC(12,2) NOT NULL DEFAULT 0,
    tip_amount            NUMERIC(12,2) NOT NULL DEFAULT 0,
    service_charge_amount NUMERIC(12,2) NOT NULL DEFAULT 0,
    discount_amount       NUMERIC(12,2) NOT NULL DEFAULT 0,
    raw_json              JSONB NOT NULL DEFAULT '{}'::jsonb,
    PRIMARY KEY (restaurant_id, order_guid)
);

CREATE TABLE IF NOT EXISTS toast_order_items (
    restaurant_id UUID NOT NULL,
    order_guid    TEXT NOT NULL,
    item_guid     TEXT NOT NULL,
    item_name     TEXT,
    quantity      NUMERIC(12,3),
    unit_price    NUMERIC(12,2),
    total_price   NUMERIC(12,2),
    menu_group    TEXT,
    voided        BOOLEAN NOT NULL DEFAULT FALSE,
    raw_json      JSONB NOT NULL DEFAULT '{}'::jsonb,
    PRIMARY KEY (restaurant_id, order_guid, item_guid)
);

CREATE TABLE IF NOT EXISTS shift4_charges (
    restaurant_id UUID NOT NULL,
    charge_id     TEXT NOT NULL,
    status        TEXT NOT NULL,
    service_date  DATE,
    captured_at   TIMESTAMPTZ,
    amount_cents  BIGINT,
    tip_cents     BIGINT NOT NULL DEFAULT 0,
    description   TEXT,
    raw_json      JSONB NOT NULL DEFAULT '{}'::jsonb,
    PRIMARY KEY (restaurant_id, charge_id)
);
`

// Ledger: unified_sales and its split allocations.
const ledger = `
CREATE TABLE IF NOT EXISTS unified_sales (
    id                    UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    restaurant_id         UUID NOT NULL REFERENCES restaurants(id) ON DELETE CASCADE,
    pos_system            TEXT NOT NULL CONSTRAINT unified_sales_pos_system_check
                          CHECK (pos_system IN ('square', 'clover', 'toast', 'shift4', 'manual', 'manual_upload')),
    external_order_id     TEXT NOT NULL,
    external_item_id      TEXT NOT NULL,
    item_name             TEXT NOT NULL,
    quantity              NUMERIC(12,3) NOT NULL DEFAULT 1,
    unit_price            NUMERIC(12,2) NOT NULL DEFAULT 0,
    total_price           NUMERIC(12,2) NOT NULL,
    sale_date             DATE NOT NULL,
    sale_time             TIME,
    pos_category          TEXT,
    item_type             TEXT NOT NULL DEFAULT 'sale' CONSTRAINT unified_sales_item_type_check
                          CHECK (item_type IN ('sale', 'discount', 'tax', 'tip', 'service_charge', 'fee', 'refund', 'other')),
    adjustment_type       TEXT CONSTRAINT unified_sales_adjustment_type_check
                          CHECK (adjustment_type IN ('tax', 'tip', 'service_charge', 'discount', 'fee', 'void')),
    category_id           UUID CONSTRAINT unified_sales_category_fkey
                          REFERENCES chart_of_accounts(id) ON DELETE SET NULL,
    is_categorized        BOOLEAN NOT NULL DEFAULT FALSE,
    suggested_category_id UUID CONSTRAINT unified_sales_suggested_category_fkey
                          REFERENCES chart_of_accounts(id) ON DELETE SET NULL,
    ai_confidence         NUMERIC(4,3),
    ai_reasoning          TEXT,
    is_split              BOOLEAN NOT NULL DEFAULT FALSE,
    parent_sale_id        UUID REFERENCES unified_sales(id) ON DELETE CASCADE,
    raw_data              JSONB NOT NULL DEFAULT '{}'::jsonb,
    created_at            TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at            TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CONSTRAINT unified_sales_no_nested_split CHECK (NOT (parent_sale_id IS NOT NULL AND is_split))
);

CREATE UNIQUE INDEX IF NOT EXISTS unified_sales_identity_key
    ON unified_sales (restaurant_id, pos_system, external_order_id, external_item_id)
    WHERE parent_sale_id IS NULL;
CREATE INDEX IF NOT EXISTS unified_sales_restaurant_date_idx ON unified_sales (restaurant_id, sale_date);
CREATE INDEX IF NOT EXISTS unified_sales_parent_idx ON unified_sales (parent_sale_id) WHERE parent_sale_id IS NOT NULL;

CREATE TABLE IF NOT EXISTS unified_sales_splits (
    id          UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    sale_id     UUID NOT NULL REFERENCES unified_sales(id) ON DELETE CASCADE,
    category_id UUID CONSTRAINT unified_sales_splits_category_fkey
                REFERENCES chart_of_accounts(id) ON DELETE SET NULL,
    amount      NUMERIC(12,2) NOT NULL CONSTRAINT unified_sales_splits_amount_nonzero CHECK (amount <> 0),
    description TEXT NOT NULL,
    position    INT NOT NULL DEFAULT 0,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS unified_sales_splits_sale_idx ON unified_sales_splits (sale_id, position);
`

// Row level security. The policies compare against app.current_restaurant, set
// per transaction by database.WithRestaurant. Table owners bypass them.
const rowSecurity = `
ALTER TABLE unified_sales ENABLE ROW LEVEL SECURITY;
DROP POLICY IF EXISTS unified_sales_restaurant_isolation ON unified_sales;
CREATE POLICY unified_sales_restaurant_isolation ON unified_sales
    USING (restaurant_id = NULLIF(current_setting('app.current_restaurant', true), '')::uuid);

ALTER TABLE unified_sales_splits ENABLE ROW LEVEL SECURITY;
DROP POLICY IF EXISTS unified_sales_splits_restaurant_isolation ON unified_sales_splits;
CREATE POLICY unified_sales_splits_restaurant_isolation ON unified_sales_splits
    USING (EXISTS (SELECT 1 FROM unified_sales s WHERE s.id = sale_id));

ALTER TABLE chart_of_accounts ENABLE ROW LEVEL SECURITY;
DROP POLICY IF EXISTS chart_of_accounts_restaurant_isolation ON chart_of_accounts;
CREATE POLICY chart_of_accounts_restaurant_isolation ON chart_of_accounts
    USING (restaurant_id = NULLIF(current_setting('app.current_restaurant', true), '')::uuid);
`

// Sync bookkeeping, the job queue and operator incidents.
const operations = `
CREATE TABLE IF NOT EXISTS pos_sync_runs (
    id            UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    restaurant_id UUID NOT NULL REFERENCES restaurants(id) ON DELETE CASCADE,
    pos_system    TEXT NOT NULL,
    status        TEXT NOT NULL CHECK (status IN ('running', 'success', 'partial', 'failed')),
    started_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    finished_at   TIMESTAMPTZ,
    rows_seen     INT NOT NULL DEFAULT 0,
    inserted      INT NOT NULL DEFAULT 0,
    updated       INT NOT NULL DEFAULT 0,
    skipped       INT NOT NULL DEFAULT 0,
    errored       INT NOT NULL DEFAULT 0,
    error_message TEXT
);
CREATE INDEX IF NOT EXISTS pos_sync_runs_restaurant_idx ON pos_sync_runs (restaurant_id, pos_system, started_at DESC);

CREATE TABLE IF NOT EXISTS pos_sync_errors (
    id                BIGSERIAL PRIMARY KEY,
    run_id            UUID NOT NULL REFERENCES pos_sync_runs(id) ON DELETE CASCADE,
    external_order_id TEXT,
    external_item_id  TEXT,
    code              TEXT NOT NULL,
    message           TEXT NOT NULL,
    payload           JSONB,
    created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS sync_jobs (
    id          BIGSERIAL PRIMARY KEY,
    payload     JSONB NOT NULL,
    read_ct     INT NOT NULL DEFAULT 0,
    enqueued_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    visible_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    last_error  TEXT
);
CREATE INDEX IF NOT EXISTS sync_jobs_visible_idx ON sync_jobs (visible_at);

CREATE TABLE IF NOT EXISTS sync_jobs_dead_letter (
    id          BIGINT PRIMARY KEY,
    payload     JSONB NOT NULL,
    read_ct     INT NOT NULL,
    enqueued_at TIMESTAMPTZ NOT NULL,
    last_error  TEXT,
    failed_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS ops_incidents (
    id         UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    source     TEXT NOT NULL,
    severity   TEXT NOT NULL,
    message    TEXT NOT NULL,
    details    JSONB NOT NULL DEFAULT '{}'::jsonb,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// Statements returns the DDL in dependency order.
func Statements() []string {
	return []string{tenancy, staging, ledger, rowSecurity, operations}
}

// Apply runs every statement in one transaction. It is safe to run repeatedly.
func Apply(ctx context.Context, db *sqlx.DB) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin schema transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	// Serialize concurrent service start-ups.
	if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtext('tablestack.schema'))"); err != nil {
		return fmt.Errorf("failed to lock schema: %w", err)
	}

	for i, stmt := range Statements() {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d failed: %w", i, err)
		}
	}

	return tx.Commit()
}
