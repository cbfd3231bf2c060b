package store

import (
	"context"
	"fmt"

	"countertop-service/internal/models"
)

// slabAvailable is the reservable pool for slabs. Every availability read and every
// conditional reservation goes through it or fixtureAvailable.
const slabAvailable = "slab_inventory.sale_id IS NULL AND slab_inventory.cut_date IS NULL"

// fixtureAvailable is the reservable pool for sinks and faucets referenced as ref
func fixtureAvailable(ref string) string {
	return ref + ".sale_id IS NULL AND " + ref + ".is_deleted = FALSE"
}

const slabColumns = `slab_inventory.id, slab_inventory.stone_id, slab_inventory.bundle,
	slab_inventory.length, slab_inventory.width, slab_inventory.sale_id, slab_inventory.room_uuid,
	slab_inventory.is_full, slab_inventory.cut_date, slab_inventory.notes`

type fixtureTable struct {
	units  string
	types  string
	typeFK string
}

var fixtureTables = map[string]fixtureTable{
	models.UnitSink:   {units: "sinks", types: "sink_type", typeFK: "sink_type_id"},
	models.UnitFaucet: {units: "faucets", types: "faucet_type", typeFK: "faucet_type_id"},
}

func tableFor(kind string) (fixtureTable, error) {
	t, ok := fixtureTables[kind]
	if !ok {
		return fixtureTable{}, fmt.Errorf("unknown fixture kind %q", kind)
	}
	return t, nil
}

// GetPricedSlabs retrieves slabs by ID together with their stone's retail price
func (q queries) GetPricedSlabs(ctx context.Context, companyID int64, ids []int64) ([]models.PricedSlab, error) {
	if len(ids) == 0 {
		return []models.PricedSlab{}, nil
	}

	var slabs []models.PricedSlab
	err := q.selectIn(ctx, &slabs, `
		SELECT `+slabColumns+`, stones.name AS stone_name, stones.retail_price
		FROM slab_inventory
		JOIN stones ON stones.id = slab_inventory.stone_id
		WHERE stones.company_id = ? AND slab_inventory.id IN (?)`,
		companyID, ids)
	return slabs, err
}

// GetSlabsBySale retrieves the slabs reserved by a sale
func (q queries) GetSlabsBySale(ctx context.Context, saleID int64) ([]models.Slab, error) {
	var slabs []models.Slab
	err := q.selectAll(ctx, &slabs,
		"SELECT "+slabColumns+" FROM slab_inventory WHERE slab_inventory.sale_id = ? ORDER BY slab_inventory.id",
		saleID)
	return slabs, err
}

// AvailableSlabs lists reservable slabs of a stone, leaving out the excluded IDs
func (q queries) AvailableSlabs(ctx context.Context, companyID, stoneID int64, exclude []int64) ([]models.Slab, error) {
	query := `
		SELECT ` + slabColumns + `
		FROM slab_inventory
		JOIN stones ON stones.id = slab_inventory.stone_id
		WHERE stones.company_id = ? AND slab_inventory.stone_id = ? AND ` + slabAvailable
	args := []interface{}{companyID, stoneID}
	if len(exclude) > 0 {
		query += " AND slab_inventory.id NOT IN (?)"
		args = append(args, exclude)
	}
	query += " ORDER BY slab_inventory.id"

	var slabs []models.Slab
	err := q.selectIn(ctx, &slabs, query, args...)
	return slabs, err
}

// AvailableStoneNames lists names of stones that still have a reservable slab
func (q queries) AvailableStoneNames(ctx context.Context, companyID int64) ([]string, error) {
	var names []string
	err := q.selectAll(ctx, &names, `
		SELECT DISTINCT stones.name
		FROM stones
		JOIN slab_inventory ON slab_inventory.stone_id = stones.id
		WHERE stones.company_id = ? AND `+slabAvailable+`
		ORDER BY stones.name`,
		companyID)
	return names, err
}

// ReserveSlab binds an available slab to a sale; ErrUnavailable if it was taken or cut
func (q queries) ReserveSlab(ctx context.Context, companyID, saleID, slabID int64, roomUUID string, isFull bool, notes *string) error {
	n, err := q.exec(ctx, `
		UPDATE slab_inventory SET sale_id = ?, room_uuid = ?, is_full = ?, notes = ?
		WHERE id = ? AND `+slabAvailable+`
		AND stone_id IN (SELECT id FROM stones WHERE company_id = ?)`,
		saleID, roomUUID, isFull, notes, slabID, companyID)
	if err != nil {
		return fmt.Errorf("failed to reserve slab %d: %w", slabID, err)
	}
	if n == 0 {
		return fmt.Errorf("slab %d: %w", slabID, ErrUnavailable)
	}
	return nil
}

// AssignSlab moves a slab the sale already holds to another room
func (q queries) AssignSlab(ctx context.Context, saleID, slabID int64, roomUUID string, isFull bool, notes *string) error {
	n, err := q.exec(ctx,
		"UPDATE slab_inventory SET room_uuid = ?, is_full = ?, notes = ? WHERE id = ? AND sale_id = ?",
		roomUUID, isFull, notes, slabID, saleID)
	if err != nil {
		return fmt.Errorf("failed to assign slab %d: %w", slabID, err)
	}
	if n == 0 {
		return fmt.Errorf("slab %d: %w", slabID, ErrUnavailable)
	}
	return nil
}

// ReleaseSlabs clears the reservation of the sale's slabs except keep
func (q queries) ReleaseSlabs(ctx context.Context, saleID int64, keep []int64) (int64, error) {
	query := "UPDATE slab_inventory SET sale_id = NULL, room_uuid = NULL, is_full = FALSE, notes = NULL WHERE sale_id = ?"
	args := []interface{}{saleID}
	if len(keep) > 0 {
		query += " AND id NOT IN (?)"
		args = append(args, keep)
	}
	return q.execIn(ctx, query, args...)
}

// GetFixtureTypes retrieves sink or faucet catalog entries by ID
func (q queries) GetFixtureTypes(ctx context.Context, kind string, companyID int64, ids []int64) ([]models.FixtureType, error) {
	t, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []models.FixtureType{}, nil
	}

	var types []models.FixtureType
	err = q.selectIn(ctx, &types,
		"SELECT id, company_id, name, retail_price FROM "+t.types+" WHERE company_id = ? AND id IN (?)",
		companyID, ids)
	return types, err
}

// GetFixturesBySale retrieves the sink or faucet units reserved by a sale
func (q queries) GetFixturesBySale(ctx context.Context, kind string, saleID int64) ([]models.Fixture, error) {
	t, err := tableFor(kind)
	if err != nil {
		return nil, err
	}

	var fixtures []models.Fixture
	err = q.selectAll(ctx, &fixtures, `
		SELECT u.id, u.`+t.typeFK+` AS type_id, ft.name AS type_name, u.sale_id, u.room_uuid, u.is_deleted, u.notes
		FROM `+t.units+` u
		JOIN `+t.types+` ft ON ft.id = u.`+t.typeFK+`
		WHERE u.sale_id = ?
		ORDER BY u.id`,
		saleID)
	return fixtures, err
}

// ReserveFixture binds one available unit of a sink or faucet type to a sale.
// Up to candidates units are tried so a unit taken concurrently does not fail the sale
// while another is still free.
func (q queries) ReserveFixture(ctx context.Context, kind string, companyID, saleID, typeID int64, roomUUID string, notes *string, candidates int) (int64, error) {
	t, err := tableFor(kind)
	if err != nil {
		return 0, err
	}

	var ids []int64
	err = q.selectAll(ctx, &ids, `
		SELECT u.id FROM `+t.units+` u
		JOIN `+t.types+` ft ON ft.id = u.`+t.typeFK+`
		WHERE u.`+t.typeFK+` = ? AND ft.company_id = ? AND `+fixtureAvailable("u")+`
		ORDER BY u.id LIMIT ?`,
		typeID, companyID, candidates)
	if err != nil {
		return 0, fmt.Errorf("failed to find available %s: %w", kind, err)
	}

	for _, id := range ids {
		n, err := q.exec(ctx,
			"UPDATE "+t.units+" SET sale_id = ?, room_uuid = ?, notes = ? WHERE id = ? AND "+fixtureAvailable(t.units),
			saleID, roomUUID, notes, id)
		if err != nil {
			return 0, fmt.Errorf("failed to reserve %s %d: %w", kind, id, err)
		}
		if n == 1 {
			return id, nil
		}
	}

	return 0, fmt.Errorf("%s type %d: %w", kind, typeID, ErrUnavailable)
}

// AssignFixture moves a unit the sale already holds to another room
func (q queries) AssignFixture(ctx context.Context, kind string, saleID, unitID int64, roomUUID string, notes *string) error {
	t, err := tableFor(kind)
	if err != nil {
		return err
	}

	n, err := q.exec(ctx,
		"UPDATE "+t.units+" SET room_uuid = ?, notes = ? WHERE id = ? AND sale_id = ?",
		roomUUID, notes, unitID, saleID)
	if err != nil {
		return fmt.Errorf("failed to assign %s %d: %w", kind, unitID, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %d: %w", kind, unitID, ErrUnavailable)
	}
	return nil
}

// ReleaseFixtures clears the reservation of the given units of a sale
func (q queries) ReleaseFixtures(ctx context.Context, kind string, saleID int64, ids []int64) (int64, error) {
	t, err := tableFor(kind)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	return q.execIn(ctx,
		"UPDATE "+t.units+" SET sale_id = NULL, room_uuid = NULL, notes = NULL WHERE sale_id = ? AND id IN (?)",
		saleID, ids)
}

// ReleaseSaleFixtures clears the reservation of every sink or faucet unit a sale holds
func (q queries) ReleaseSaleFixtures(ctx context.Context, kind string, saleID int64) (int64, error) {
	t, err := tableFor(kind)
	if err != nil {
		return 0, err
	}

	return q.exec(ctx,
		"UPDATE "+t.units+" SET sale_id = NULL, room_uuid = NULL, notes = NULL WHERE sale_id = ?",
		saleID)
}
