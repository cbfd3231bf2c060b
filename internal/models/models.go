package models

import "time"

// Customer represents a buyer of a countertop job
type Customer struct {
	ID        int64     `db:"id" json:"id"`
	CompanyID int64     `db:"company_id" json:"company_id"`
	Name      string    `db:"name" json:"name"`
	Email     *string   `db:"email" json:"email,omitempty"`
	Phone     *string   `db:"phone" json:"phone,omitempty"`
	Address   *string   `db:"address" json:"address,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Stone represents a stone type in the catalog
type Stone struct {
	ID          int64   `db:"id" json:"id"`
	CompanyID   int64   `db:"company_id" json:"company_id"`
	Name        string  `db:"name" json:"name"`
	Type        string  `db:"type" json:"type"`
	Length      float64 `db:"length" json:"length"`
	Width       float64 `db:"width" json:"width"`
	RetailPrice float64 `db:"retail_price" json:"retail_price"`
	CostPerSqft float64 `db:"cost_per_sqft" json:"cost_per_sqft"`
	IsDisplay   bool    `db:"is_display" json:"is_display"`
}

// Slab represents one physical slab of a stone
type Slab struct {
	ID       int64      `db:"id" json:"id"`
	StoneID  int64      `db:"stone_id" json:"stone_id"`
	Bundle   string     `db:"bundle" json:"bundle"`
	Length   float64    `db:"length" json:"length"`
	Width    float64    `db:"width" json:"width"`
	SaleID   *int64     `db:"sale_id" json:"sale_id,omitempty"`
	RoomUUID *string    `db:"room_uuid" json:"room_uuid,omitempty"`
	IsFull   bool       `db:"is_full" json:"is_full"`
	CutDate  *time.Time `db:"cut_date" json:"cut_date,omitempty"`
	Notes    *string    `db:"notes" json:"notes,omitempty"`
}

// PricedSlab is a slab joined with its stone, used for pricing and company scoping
type PricedSlab struct {
	Slab
	StoneName   string  `db:"stone_name" json:"stone_name"`
	RetailPrice float64 `db:"retail_price" json:"retail_price"`
}

// FixtureType is a sink or faucet catalog entry
type FixtureType struct {
	ID          int64   `db:"id" json:"id"`
	CompanyID   int64   `db:"company_id" json:"company_id"`
	Name        string  `db:"name" json:"name"`
	RetailPrice float64 `db:"retail_price" json:"retail_price"`
}

// Fixture is a physical sink or faucet unit
type Fixture struct {
	ID        int64   `db:"id" json:"id"`
	TypeID    int64   `db:"type_id" json:"type_id"`
	TypeName  string  `db:"type_name" json:"type_name"`
	SaleID    *int64  `db:"sale_id" json:"sale_id,omitempty"`
	RoomUUID  *string `db:"room_uuid" json:"room_uuid,omitempty"`
	IsDeleted bool    `db:"is_deleted" json:"-"`
	Notes     *string `db:"notes" json:"notes,omitempty"`
}

// Sale represents a sales contract
type Sale struct {
	ID             int64      `db:"id" json:"id"`
	CompanyID      int64      `db:"company_id" json:"company_id"`
	CustomerID     int64      `db:"customer_id" json:"customer_id"`
	SellerID       int64      `db:"seller_id" json:"seller_id"`
	Price          float64    `db:"price" json:"price"`
	Status         string     `db:"status" json:"status"`
	ProjectAddress *string    `db:"project_address" json:"project_address,omitempty"`
	Notes          *string    `db:"notes" json:"notes,omitempty"`
	IdempotencyKey *string    `db:"idempotency_key" json:"-"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
	CanceledAt     *time.Time `db:"canceled_at" json:"canceled_at,omitempty"`
}

// SaleRoom is a room of a sale as it was last submitted
type SaleRoom struct {
	ID          int64   `db:"id" json:"id"`
	SaleID      int64   `db:"sale_id" json:"sale_id"`
	RoomUUID    string  `db:"room_uuid" json:"room_uuid"`
	Position    int     `db:"position" json:"position"`
	Room        string  `db:"room" json:"room"`
	SquareFeet  float64 `db:"square_feet" json:"square_feet"`
	RetailPrice float64 `db:"retail_price" json:"retail_price"`
	Edge        *string `db:"edge" json:"edge,omitempty"`
	Backsplash  *string `db:"backsplash" json:"backsplash,omitempty"`
	Seam        *string `db:"seam" json:"seam,omitempty"`
	Notes       *string `db:"notes" json:"notes,omitempty"`
	Extras      string  `db:"extras" json:"-"`
	Total       float64 `db:"total" json:"total"`
}

// Sale statuses
const (
	SaleStatusActive   = "active"
	SaleStatusCanceled = "canceled"
)

// Unit kinds that can be reserved by a sale
const (
	UnitSlab   = "slab"
	UnitSink   = "sink"
	UnitFaucet = "faucet"
)

// ProcessedEvent for idempotency
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}
