// Package storetest opens a migrated sqlite store and seeds a small showroom for tests
package storetest

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"countertop-service/internal/store"

	"github.com/stretchr/testify/require"
)

const (
	CompanyID      = int64(1)
	OtherCompanyID = int64(2)
)

// New opens an empty, migrated sqlite store that is closed with the test
func New(t *testing.T) *store.Store {
	t.Helper()

	dsn := "file:" + filepath.Join(t.TempDir(), "countertop.db") + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	s, err := store.NewStore("sqlite", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	require.NoError(t, s.Migrate(context.Background()))
	return s
}

// Showroom is the seeded inventory of CompanyID, plus one slab of OtherCompanyID
type Showroom struct {
	CustomerID   int64
	StoneID      int64
	StoneName    string
	Slabs        []int64
	CutSlab      int64
	ForeignSlab  int64
	SinkType     int64
	Sinks        []int64
	FaucetType   int64
	Faucets      []int64
	EmptyStoneID int64
}

// Seed fills s with a stone at $55/sqft with four free slabs and one cut slab, a sink type at
// $250 with two units, a faucet type at $120 with two units and a customer
func Seed(t *testing.T, s *store.Store) Showroom {
	t.Helper()
	db := s.GetDB()
	sr := Showroom{StoneName: "Calacatta Gold"}

	require.NoError(t, db.Get(&sr.CustomerID,
		"INSERT INTO customers (company_id, name, created_at) VALUES (?, ?, ?) RETURNING id",
		CompanyID, "Jane Doe", time.Now().UTC()))

	require.NoError(t, db.Get(&sr.StoneID,
		"INSERT INTO stones (company_id, name, retail_price) VALUES (?, ?, ?) RETURNING id",
		CompanyID, sr.StoneName, 55.0))
	require.NoError(t, db.Get(&sr.EmptyStoneID,
		"INSERT INTO stones (company_id, name, retail_price) VALUES (?, ?, ?) RETURNING id",
		CompanyID, "Blue Pearl", 70.0))

	for i := 0; i < 4; i++ {
		var id int64
		require.NoError(t, db.Get(&id,
			"INSERT INTO slab_inventory (stone_id, bundle, length, width) VALUES (?, ?, ?, ?) RETURNING id",
			sr.StoneID, "B-100", 126.0, 63.0))
		sr.Slabs = append(sr.Slabs, id)
	}
	require.NoError(t, db.Get(&sr.CutSlab,
		"INSERT INTO slab_inventory (stone_id, bundle, cut_date) VALUES (?, ?, ?) RETURNING id",
		sr.StoneID, "B-100", time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)))

	var foreignStone int64
	require.NoError(t, db.Get(&foreignStone,
		"INSERT INTO stones (company_id, name, retail_price) VALUES (?, ?, ?) RETURNING id",
		OtherCompanyID, "Absolute Black", 40.0))
	require.NoError(t, db.Get(&sr.ForeignSlab,
		"INSERT INTO slab_inventory (stone_id) VALUES (?) RETURNING id", foreignStone))

	require.NoError(t, db.Get(&sr.SinkType,
		"INSERT INTO sink_type (company_id, name, retail_price) VALUES (?, ?, ?) RETURNING id",
		CompanyID, "Undermount 60/40", 250.0))
	for i := 0; i < 2; i++ {
		var id int64
		require.NoError(t, db.Get(&id, "INSERT INTO sinks (sink_type_id) VALUES (?) RETURNING id", sr.SinkType))
		sr.Sinks = append(sr.Sinks, id)
	}

	require.NoError(t, db.Get(&sr.FaucetType,
		"INSERT INTO faucet_type (company_id, name, retail_price) VALUES (?, ?, ?) RETURNING id",
		CompanyID, "Pull-down Chrome", 120.0))
	for i := 0; i < 2; i++ {
		var id int64
		require.NoError(t, db.Get(&id, "INSERT INTO faucets (faucet_type_id) VALUES (?) RETURNING id", sr.FaucetType))
		sr.Faucets = append(sr.Faucets, id)
	}

	return sr
}

// SlabOwner returns the sale holding a slab, or nil
func SlabOwner(t *testing.T, s *store.Store, slabID int64) *int64 {
	t.Helper()
	var saleID *int64
	require.NoError(t, s.GetDB().Get(&saleID, "SELECT sale_id FROM slab_inventory WHERE id = ?", slabID))
	return saleID
}

// CountRows counts rows of table matching where
func CountRows(t *testing.T, s *store.Store, table, where string, args ...interface{}) int {
	t.Helper()
	query := "SELECT COUNT(*) FROM " + table
	if where != "" {
		query += " WHERE " + where
	}
	var n int
	require.NoError(t, s.GetDB().Get(&n, query, args...))
	return n
}
