package models

import "time"

// Event types
const (
	EventTypeSaleCreated  = "SALE_CREATED"
	EventTypeSaleUpdated  = "SALE_UPDATED"
	EventTypeSaleCanceled = "SALE_CANCELED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// SaleEvent is published whenever a sale's reservations change
type SaleEvent struct {
	BaseEvent
	SaleID    int64   `json:"sale_id"`
	CompanyID int64   `json:"company_id"`
	SellerID  int64   `json:"seller_id"`
	Price     float64 `json:"price"`
	SlabIDs   []int64 `json:"slab_ids"`
}
