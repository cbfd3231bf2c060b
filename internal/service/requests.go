package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// SaleRequest is the body of a sell or edit. Exactly one of CustomerID and Customer is set.
type SaleRequest struct {
	CustomerID     *int64         `json:"customer_id,omitempty" binding:"omitempty,gt=0"`
	Customer       *CustomerInput `json:"customer,omitempty"`
	ProjectAddress *string        `json:"project_address,omitempty"`
	Price          *float64       `json:"price,omitempty" binding:"omitempty,gte=0"`
	Notes          *string        `json:"notes,omitempty"`
	Rooms          []Room         `json:"rooms" binding:"required,min=1,dive"`
}

// CustomerInput creates a customer at the point of sale
type CustomerInput struct {
	Name    string  `json:"name" binding:"required"`
	Email   *string `json:"email,omitempty" binding:"omitempty,email"`
	Phone   *string `json:"phone,omitempty"`
	Address *string `json:"address,omitempty"`
}

// QuoteRequest prices rooms without reserving anything
type QuoteRequest struct {
	Price *float64 `json:"price,omitempty" binding:"omitempty,gte=0"`
	Rooms []Room   `json:"rooms" binding:"required,min=1,dive"`
}

// Room is one priced area of a job. Sinks and Faucets hold one catalog type ID per unit.
type Room struct {
	Room        string    `json:"room" binding:"required"`
	SquareFeet  float64   `json:"square_feet" binding:"gte=0"`
	RetailPrice float64   `json:"retail_price,omitempty" binding:"gte=0"`
	Edge        *string   `json:"edge,omitempty"`
	Backsplash  *string   `json:"backsplash,omitempty"`
	Seam        *string   `json:"seam,omitempty"`
	Notes       *string   `json:"notes,omitempty"`
	Slabs       []SlabRef `json:"slabs" binding:"required,min=1,dive"`
	Sinks       []int64   `json:"sinks,omitempty" binding:"omitempty,dive,gt=0"`
	Faucets     []int64   `json:"faucets,omitempty" binding:"omitempty,dive,gt=0"`
	Extras      []Extra   `json:"extras,omitempty" binding:"omitempty,dive"`
}

// SlabRef points at a physical slab; IsFull is false when only part of it is used
type SlabRef struct {
	ID     int64 `json:"id" binding:"required,gt=0"`
	IsFull bool  `json:"is_full"`
}

// Extra is a priced add-on line; a zero Quantity counts as one
type Extra struct {
	Name     string  `json:"name" binding:"required"`
	Price    float64 `json:"price" binding:"gte=0"`
	Quantity float64 `json:"quantity,omitempty" binding:"gte=0"`
}

// NewValidator returns a validator reading the same `binding` tags gin does and reporting
// json field paths
func NewValidator() *validator.Validate {
	v := validator.New()
	v.SetTagName("binding")
	RegisterJSONFieldNames(v)
	return v
}

// RegisterJSONFieldNames makes v report fields by their json name
func RegisterJSONFieldNames(v *validator.Validate) {
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// FieldErrors converts a binding or decoding error into a ValidationError; nil when err is
// neither
func FieldErrors(err error) *ValidationError {
	verr := &ValidationError{}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		for _, fe := range fieldErrs {
			verr.add(fieldPath(fe.Namespace()), fieldMessage(fe))
		}
		return verr
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		field := typeErr.Field
		if field == "" {
			field = "body"
		}
		verr.add(field, fmt.Sprintf("must be a %s", typeErr.Type.String()))
		return verr
	}

	var existing *ValidationError
	if errors.As(err, &existing) {
		return existing
	}
	return nil
}

// fieldPath drops the root struct name: "SaleRequest.rooms[0].slabs" -> "rooms[0].slabs"
func fieldPath(namespace string) string {
	if i := strings.Index(namespace, "."); i >= 0 {
		return namespace[i+1:]
	}
	return namespace
}

func fieldMessage(fe validator.FieldError) string {
	if fe.Field() == "slabs" && (fe.Tag() == "required" || fe.Tag() == "min") {
		return "room has no slabs"
	}

	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must have at least %s entries", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "email":
		return "must be a valid email"
	default:
		return fmt.Sprintf("failed %s", fe.Tag())
	}
}

// checkSale runs the tag rules and the cross-field rules tags cannot express
func checkSale(v *validator.Validate, req *SaleRequest) error {
	if req == nil {
		return &ValidationError{Fields: map[string]string{"body": "is required"}}
	}
	if err := v.Struct(req); err != nil {
		if verr := FieldErrors(err); verr != nil {
			return verr
		}
		return err
	}

	verr := &ValidationError{}
	switch {
	case req.CustomerID == nil && req.Customer == nil:
		verr.add("customer", "is required")
	case req.CustomerID != nil && req.Customer != nil:
		verr.add("customer", "give either customer_id or customer, not both")
	}
	checkRooms(req.Rooms, verr)
	return verr.orNil()
}

func checkQuote(v *validator.Validate, req *QuoteRequest) error {
	if req == nil {
		return &ValidationError{Fields: map[string]string{"body": "is required"}}
	}
	if err := v.Struct(req); err != nil {
		if verr := FieldErrors(err); verr != nil {
			return verr
		}
		return err
	}

	verr := &ValidationError{}
	checkRooms(req.Rooms, verr)
	return verr.orNil()
}

// checkRooms rejects a slab listed twice, in one room or across rooms
func checkRooms(rooms []Room, verr *ValidationError) {
	seen := make(map[int64]string)
	for i, room := range rooms {
		for j, ref := range room.Slabs {
			path := fmt.Sprintf("rooms[%d].slabs[%d].id", i, j)
			if first, dup := seen[ref.ID]; dup {
				verr.add(path, fmt.Sprintf("slab %d is already used at %s", ref.ID, first))
				continue
			}
			seen[ref.ID] = path
		}
	}
}

// slabIDs lists every slab the rooms reference, in submission order
func slabIDs(rooms []Room) []int64 {
	var ids []int64
	for _, room := range rooms {
		for _, ref := range room.Slabs {
			ids = append(ids, ref.ID)
		}
	}
	return ids
}

// fixtureTypeIDs lists the distinct sink or faucet types the rooms select
func fixtureTypeIDs(rooms []Room, pick func(Room) []int64) []int64 {
	seen := make(map[int64]bool)
	var ids []int64
	for _, room := range rooms {
		for _, id := range pick(room) {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	return ids
}

func roomSinks(r Room) []int64   { return r.Sinks }
func roomFaucets(r Room) []int64 { return r.Faucets }
