package store

import (
	"context"
	"fmt"
	"strings"
)

// schema is shared by postgres and sqlite; {{pk}} and {{ts}} are replaced per dialect
var schema = []string{
	`CREATE TABLE IF NOT EXISTS customers (
		id {{pk}},
		company_id BIGINT NOT NULL,
		name TEXT NOT NULL,
		email TEXT,
		phone TEXT,
		address TEXT,
		created_at {{ts}} NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS stones (
		id {{pk}},
		company_id BIGINT NOT NULL,
		name TEXT NOT NULL,
		type TEXT NOT NULL DEFAULT '',
		length DOUBLE PRECISION NOT NULL DEFAULT 0,
		width DOUBLE PRECISION NOT NULL DEFAULT 0,
		retail_price DOUBLE PRECISION NOT NULL DEFAULT 0,
		cost_per_sqft DOUBLE PRECISION NOT NULL DEFAULT 0,
		is_display BOOLEAN NOT NULL DEFAULT TRUE
	)`,
	`CREATE TABLE IF NOT EXISTS sales (
		id {{pk}},
		company_id BIGINT NOT NULL,
		customer_id BIGINT NOT NULL REFERENCES customers(id),
		seller_id BIGINT NOT NULL,
		price DOUBLE PRECISION NOT NULL,
		status TEXT NOT NULL,
		project_address TEXT,
		notes TEXT,
		idempotency_key TEXT,
		created_at {{ts}} NOT NULL,
		updated_at {{ts}} NOT NULL,
		canceled_at {{ts}},
		UNIQUE (company_id, idempotency_key)
	)`,
	`CREATE TABLE IF NOT EXISTS sale_rooms (
		id {{pk}},
		sale_id BIGINT NOT NULL REFERENCES sales(id),
		room_uuid TEXT NOT NULL,
		position INTEGER NOT NULL,
		room TEXT NOT NULL,
		square_feet DOUBLE PRECISION NOT NULL,
		retail_price DOUBLE PRECISION NOT NULL,
		edge TEXT,
		backsplash TEXT,
		seam TEXT,
		notes TEXT,
		extras TEXT NOT NULL DEFAULT '[]',
		total DOUBLE PRECISION NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS slab_inventory (
		id {{pk}},
		stone_id BIGINT NOT NULL REFERENCES stones(id),
		bundle TEXT NOT NULL DEFAULT '',
		length DOUBLE PRECISION NOT NULL DEFAULT 0,
		width DOUBLE PRECISION NOT NULL DEFAULT 0,
		sale_id BIGINT REFERENCES sales(id),
		room_uuid TEXT,
		is_full BOOLEAN NOT NULL DEFAULT FALSE,
		cut_date DATE,
		notes TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS sink_type (
		id {{pk}},
		company_id BIGINT NOT NULL,
		name TEXT NOT NULL,
		retail_price DOUBLE PRECISION NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS sinks (
		id {{pk}},
		sink_type_id BIGINT NOT NULL REFERENCES sink_type(id),
		sale_id BIGINT REFERENCES sales(id),
		room_uuid TEXT,
		is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
		notes TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS faucet_type (
		id {{pk}},
		company_id BIGINT NOT NULL,
		name TEXT NOT NULL,
		retail_price DOUBLE PRECISION NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS faucets (
		id {{pk}},
		faucet_type_id BIGINT NOT NULL REFERENCES faucet_type(id),
		sale_id BIGINT REFERENCES sales(id),
		room_uuid TEXT,
		is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
		notes TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS processed_events (
		event_id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		processed_at {{ts}} NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_slab_inventory_sale ON slab_inventory (sale_id)`,
	`CREATE INDEX IF NOT EXISTS idx_slab_inventory_stone ON slab_inventory (stone_id)`,
	`CREATE INDEX IF NOT EXISTS idx_sinks_sale ON sinks (sale_id)`,
	`CREATE INDEX IF NOT EXISTS idx_faucets_sale ON faucets (sale_id)`,
	`CREATE INDEX IF NOT EXISTS idx_sale_rooms_sale ON sale_rooms (sale_id)`,
}

// Migrate creates the tables the contract core reads and writes
func (s *Store) Migrate(ctx context.Context) error {
	pk, ts := "BIGSERIAL PRIMARY KEY", "TIMESTAMPTZ"
	if s.db.DriverName() == "sqlite" {
		pk, ts = "INTEGER PRIMARY KEY AUTOINCREMENT", "DATETIME"
	}
	replacer := strings.NewReplacer("{{pk}}", pk, "{{ts}}", ts)

	for i, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, replacer.Replace(stmt)); err != nil {
			return fmt.Errorf("migration %d failed: %w", i, err)
		}
	}
	return nil
}
