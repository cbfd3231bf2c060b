package service

import (
	"context"
	"encoding/json"
	"fmt"

	"countertop-service/internal/models"
)

// Contract is a sale together with everything it holds
type Contract struct {
	Sale     models.Sale      `json:"sale"`
	Customer *models.Customer `json:"customer,omitempty"`
	Rooms    []ContractRoom   `json:"rooms"`

	// units whose room_uuid matches no stored room
	Slabs   []models.Slab    `json:"slabs,omitempty"`
	Sinks   []models.Fixture `json:"sinks,omitempty"`
	Faucets []models.Fixture `json:"faucets,omitempty"`
}

// ContractRoom is a stored room with the units reserved for it
type ContractRoom struct {
	models.SaleRoom
	Extras  []Extra          `json:"extras"`
	Slabs   []models.Slab    `json:"slabs"`
	Sinks   []models.Fixture `json:"sinks"`
	Faucets []models.Fixture `json:"faucets"`
}

// Active reports whether the sale still holds its units
func (c *Contract) Active() bool {
	return c.Sale.Status == models.SaleStatusActive
}

// SlabIDs lists every slab the sale holds
func (c *Contract) SlabIDs() []int64 {
	var ids []int64
	for _, room := range c.Rooms {
		for _, slab := range room.Slabs {
			ids = append(ids, slab.ID)
		}
	}
	for _, slab := range c.Slabs {
		ids = append(ids, slab.ID)
	}
	return ids
}

// Request rebuilds the submission that produced the contract, the starting point of an edit
func (c *Contract) Request() *SaleRequest {
	customerID := c.Sale.CustomerID
	price := c.Sale.Price
	req := &SaleRequest{
		CustomerID:     &customerID,
		ProjectAddress: c.Sale.ProjectAddress,
		Price:          &price,
		Notes:          c.Sale.Notes,
		Rooms:          make([]Room, 0, len(c.Rooms)),
	}

	for _, cr := range c.Rooms {
		room := Room{
			Room:        cr.Room,
			SquareFeet:  cr.SquareFeet,
			RetailPrice: cr.RetailPrice,
			Edge:        cr.Edge,
			Backsplash:  cr.Backsplash,
			Seam:        cr.Seam,
			Notes:       cr.SaleRoom.Notes,
			Extras:      cr.Extras,
		}
		for _, slab := range cr.Slabs {
			room.Slabs = append(room.Slabs, SlabRef{ID: slab.ID, IsFull: slab.IsFull})
		}
		for _, sink := range cr.Sinks {
			room.Sinks = append(room.Sinks, sink.TypeID)
		}
		for _, faucet := range cr.Faucets {
			room.Faucets = append(room.Faucets, faucet.TypeID)
		}
		req.Rooms = append(req.Rooms, room)
	}
	return req
}

type contractReader interface {
	GetSale(ctx context.Context, companyID, id int64) (*models.Sale, error)
	GetCustomer(ctx context.Context, companyID, id int64) (*models.Customer, error)
	GetRooms(ctx context.Context, saleID int64) ([]models.SaleRoom, error)
	GetSlabsBySale(ctx context.Context, saleID int64) ([]models.Slab, error)
	GetFixturesBySale(ctx context.Context, kind string, saleID int64) ([]models.Fixture, error)
}

// loadContract hydrates a sale of a company
func loadContract(ctx context.Context, q contractReader, companyID, saleID int64) (*Contract, error) {
	sale, err := q.GetSale(ctx, companyID, saleID)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("sale %d: %w", saleID, ErrSaleNotFound)
		}
		return nil, fmt.Errorf("failed to get sale: %w", err)
	}

	c := &Contract{Sale: *sale}

	customer, err := q.GetCustomer(ctx, companyID, sale.CustomerID)
	if err != nil && !isNotFound(err) {
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}
	c.Customer = customer

	rooms, err := q.GetRooms(ctx, saleID)
	if err != nil {
		return nil, fmt.Errorf("failed to get rooms: %w", err)
	}

	byUUID := make(map[string]*ContractRoom, len(rooms))
	c.Rooms = make([]ContractRoom, len(rooms))
	for i, room := range rooms {
		cr := &c.Rooms[i]
		cr.SaleRoom = room
		cr.Slabs = []models.Slab{}
		cr.Sinks = []models.Fixture{}
		cr.Faucets = []models.Fixture{}
		if err := decodeExtras(room.Extras, &cr.Extras); err != nil {
			return nil, fmt.Errorf("room %d: %w", room.ID, err)
		}
		byUUID[room.RoomUUID] = cr
	}

	slabs, err := q.GetSlabsBySale(ctx, saleID)
	if err != nil {
		return nil, fmt.Errorf("failed to get slabs: %w", err)
	}
	for _, slab := range slabs {
		if cr := roomOf(byUUID, slab.RoomUUID); cr != nil {
			cr.Slabs = append(cr.Slabs, slab)
		} else {
			c.Slabs = append(c.Slabs, slab)
		}
	}

	sinks, err := q.GetFixturesBySale(ctx, models.UnitSink, saleID)
	if err != nil {
		return nil, fmt.Errorf("failed to get sinks: %w", err)
	}
	for _, sink := range sinks {
		if cr := roomOf(byUUID, sink.RoomUUID); cr != nil {
			cr.Sinks = append(cr.Sinks, sink)
		} else {
			c.Sinks = append(c.Sinks, sink)
		}
	}

	faucets, err := q.GetFixturesBySale(ctx, models.UnitFaucet, saleID)
	if err != nil {
		return nil, fmt.Errorf("failed to get faucets: %w", err)
	}
	for _, faucet := range faucets {
		if cr := roomOf(byUUID, faucet.RoomUUID); cr != nil {
			cr.Faucets = append(cr.Faucets, faucet)
		} else {
			c.Faucets = append(c.Faucets, faucet)
		}
	}

	return c, nil
}

func roomOf(byUUID map[string]*ContractRoom, roomUUID *string) *ContractRoom {
	if roomUUID == nil {
		return nil
	}
	return byUUID[*roomUUID]
}

func encodeExtras(extras []Extra) (string, error) {
	if len(extras) == 0 {
		return "[]", nil
	}
	raw, err := json.Marshal(extras)
	if err != nil {
		return "", fmt.Errorf("failed to encode extras: %w", err)
	}
	return string(raw), nil
}

func decodeExtras(raw string, dest *[]Extra) error {
	*dest = []Extra{}
	if raw == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		return fmt.Errorf("failed to decode extras: %w", err)
	}
	return nil
}
