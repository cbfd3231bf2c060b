package service

import (
	"context"
	"errors"
	"fmt"
	"math"

	"countertop-service/internal/models"
	"countertop-service/internal/store"
)

// RoomPrice breaks down the price of one room
type RoomPrice struct {
	Room        string  `json:"room"`
	SquareFeet  float64 `json:"square_feet"`
	RetailPrice float64 `json:"retail_price"`
	Stone       float64 `json:"stone"`
	Extras      float64 `json:"extras"`
	Sinks       float64 `json:"sinks"`
	Faucets     float64 `json:"faucets"`
	Total       float64 `json:"total"`
}

// Quote is the price of a whole submission. Price equals Subtotal unless overridden.
type Quote struct {
	Rooms      []RoomPrice `json:"rooms"`
	Subtotal   float64     `json:"subtotal"`
	Price      float64     `json:"price"`
	Overridden bool        `json:"overridden"`
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}

// PriceRoom computes square_feet * retail_price + extras + sink prices + faucet prices
func PriceRoom(room Room, retailPrice float64, sinkPrices, faucetPrices []float64) RoomPrice {
	p := RoomPrice{
		Room:        room.Room,
		SquareFeet:  room.SquareFeet,
		RetailPrice: retailPrice,
		Stone:       room.SquareFeet * retailPrice,
	}

	for _, extra := range room.Extras {
		qty := extra.Quantity
		if qty == 0 {
			qty = 1
		}
		p.Extras += extra.Price * qty
	}
	for _, price := range sinkPrices {
		p.Sinks += price
	}
	for _, price := range faucetPrices {
		p.Faucets += price
	}

	p.Stone = roundCents(p.Stone)
	p.Extras = roundCents(p.Extras)
	p.Total = roundCents(p.Stone + p.Extras + p.Sinks + p.Faucets)
	return p
}

// catalog holds the company-scoped inventory rows a submission refers to
type catalog struct {
	slabs   map[int64]models.PricedSlab
	sinks   map[int64]models.FixtureType
	faucets map[int64]models.FixtureType
}

type catalogReader interface {
	GetPricedSlabs(ctx context.Context, companyID int64, ids []int64) ([]models.PricedSlab, error)
	GetFixtureTypes(ctx context.Context, kind string, companyID int64, ids []int64) ([]models.FixtureType, error)
}

// loadCatalog resolves every slab and fixture type of rooms; unknown IDs are validation errors
func loadCatalog(ctx context.Context, q catalogReader, companyID int64, rooms []Room) (*catalog, error) {
	slabs, err := q.GetPricedSlabs(ctx, companyID, slabIDs(rooms))
	if err != nil {
		return nil, fmt.Errorf("failed to load slabs: %w", err)
	}
	sinks, err := q.GetFixtureTypes(ctx, models.UnitSink, companyID, fixtureTypeIDs(rooms, roomSinks))
	if err != nil {
		return nil, fmt.Errorf("failed to load sink types: %w", err)
	}
	faucets, err := q.GetFixtureTypes(ctx, models.UnitFaucet, companyID, fixtureTypeIDs(rooms, roomFaucets))
	if err != nil {
		return nil, fmt.Errorf("failed to load faucet types: %w", err)
	}

	cat := &catalog{
		slabs:   make(map[int64]models.PricedSlab, len(slabs)),
		sinks:   make(map[int64]models.FixtureType, len(sinks)),
		faucets: make(map[int64]models.FixtureType, len(faucets)),
	}
	for _, s := range slabs {
		cat.slabs[s.ID] = s
	}
	for _, t := range sinks {
		cat.sinks[t.ID] = t
	}
	for _, t := range faucets {
		cat.faucets[t.ID] = t
	}

	verr := &ValidationError{}
	for i, room := range rooms {
		for j, ref := range room.Slabs {
			if _, ok := cat.slabs[ref.ID]; !ok {
				verr.add(fmt.Sprintf("rooms[%d].slabs[%d].id", i, j), fmt.Sprintf("slab %d not found", ref.ID))
			}
		}
		for j, id := range room.Sinks {
			if _, ok := cat.sinks[id]; !ok {
				verr.add(fmt.Sprintf("rooms[%d].sinks[%d]", i, j), fmt.Sprintf("sink type %d not found", id))
			}
		}
		for j, id := range room.Faucets {
			if _, ok := cat.faucets[id]; !ok {
				verr.add(fmt.Sprintf("rooms[%d].faucets[%d]", i, j), fmt.Sprintf("faucet type %d not found", id))
			}
		}
	}
	if err := verr.orNil(); err != nil {
		return nil, err
	}
	return cat, nil
}

// checkSlabs fails fast on slabs already cut or held by a sale other than saleID. Slabs
// saleID already holds pass even when cut since then. The conditional reservation still
// decides races.
func (c *catalog) checkSlabs(rooms []Room, saleID int64) error {
	for _, room := range rooms {
		for _, ref := range room.Slabs {
			slab := c.slabs[ref.ID]
			if slab.SaleID != nil && *slab.SaleID == saleID {
				continue
			}
			if slab.CutDate != nil || slab.SaleID != nil {
				return &ConflictError{Kind: models.UnitSlab, ID: ref.ID}
			}
		}
	}
	return nil
}

// roomRetailPrice is the submitted $/sqft, or the stone price of the room's first slab
func (c *catalog) roomRetailPrice(room Room) float64 {
	if room.RetailPrice > 0 {
		return room.RetailPrice
	}
	return c.slabs[room.Slabs[0].ID].RetailPrice
}

// quote prices rooms against the catalog
func (c *catalog) quote(rooms []Room, override *float64) *Quote {
	q := &Quote{Rooms: make([]RoomPrice, 0, len(rooms))}

	for _, room := range rooms {
		sinkPrices := make([]float64, 0, len(room.Sinks))
		for _, id := range room.Sinks {
			sinkPrices = append(sinkPrices, c.sinks[id].RetailPrice)
		}
		faucetPrices := make([]float64, 0, len(room.Faucets))
		for _, id := range room.Faucets {
			faucetPrices = append(faucetPrices, c.faucets[id].RetailPrice)
		}

		price := PriceRoom(room, c.roomRetailPrice(room), sinkPrices, faucetPrices)
		q.Rooms = append(q.Rooms, price)
		q.Subtotal += price.Total
	}

	q.Subtotal = roundCents(q.Subtotal)
	q.Price = q.Subtotal
	if override != nil {
		q.Price = roundCents(*override)
		q.Overridden = true
	}
	return q
}

// isNotFound reports whether a store lookup missed
func isNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}
