package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"countertop-service/internal/models"
)

const saleColumns = `id, company_id, customer_id, seller_id, price, status, project_address, notes,
	idempotency_key, created_at, updated_at, canceled_at`

// CreateCustomer creates a new customer
func (q queries) CreateCustomer(ctx context.Context, customer *models.Customer) error {
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now().UTC()
	}
	return q.get(ctx, &customer.ID, `
		INSERT INTO customers (company_id, name, email, phone, address, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id`,
		customer.CompanyID, customer.Name, customer.Email, customer.Phone, customer.Address, customer.CreatedAt)
}

// GetCustomer retrieves a customer of a company by ID
func (q queries) GetCustomer(ctx context.Context, companyID, id int64) (*models.Customer, error) {
	var customer models.Customer
	err := q.get(ctx, &customer,
		"SELECT id, company_id, name, email, phone, address, created_at FROM customers WHERE id = ? AND company_id = ?",
		id, companyID)
	if err != nil {
		return nil, notFound(err, "customer", id)
	}
	return &customer, nil
}

// UpdateCustomer rewrites the contact details of a customer
func (q queries) UpdateCustomer(ctx context.Context, customer *models.Customer) error {
	n, err := q.exec(ctx, `
		UPDATE customers SET name = ?, email = ?, phone = ?, address = ?
		WHERE id = ? AND company_id = ?`,
		customer.Name, customer.Email, customer.Phone, customer.Address, customer.ID, customer.CompanyID)
	if err != nil {
		return fmt.Errorf("failed to update customer: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("customer %d: %w", customer.ID, ErrNotFound)
	}
	return nil
}

// CreateSale inserts a new active sale
func (q queries) CreateSale(ctx context.Context, sale *models.Sale) error {
	now := time.Now().UTC()
	sale.CreatedAt, sale.UpdatedAt = now, now
	if sale.Status == "" {
		sale.Status = models.SaleStatusActive
	}

	return q.get(ctx, &sale.ID, `
		INSERT INTO sales (company_id, customer_id, seller_id, price, status, project_address, notes,
			idempotency_key, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`,
		sale.CompanyID, sale.CustomerID, sale.SellerID, sale.Price, sale.Status, sale.ProjectAddress,
		sale.Notes, sale.IdempotencyKey, sale.CreatedAt, sale.UpdatedAt)
}

// UpdateSale rewrites an active sale; ErrNotFound when it is missing or no longer active
func (q queries) UpdateSale(ctx context.Context, sale *models.Sale) error {
	sale.UpdatedAt = time.Now().UTC()
	n, err := q.exec(ctx, `
		UPDATE sales SET customer_id = ?, price = ?, project_address = ?, notes = ?, updated_at = ?
		WHERE id = ? AND company_id = ? AND status = ?`,
		sale.CustomerID, sale.Price, sale.ProjectAddress, sale.Notes, sale.UpdatedAt,
		sale.ID, sale.CompanyID, models.SaleStatusActive)
	if err != nil {
		return fmt.Errorf("failed to update sale: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("active sale %d: %w", sale.ID, ErrNotFound)
	}
	return nil
}

// CancelSale marks an active sale canceled and reports whether the status changed
func (q queries) CancelSale(ctx context.Context, companyID, saleID int64) (bool, error) {
	now := time.Now().UTC()
	n, err := q.exec(ctx, `
		UPDATE sales SET status = ?, canceled_at = ?, updated_at = ?
		WHERE id = ? AND company_id = ? AND status = ?`,
		models.SaleStatusCanceled, now, now, saleID, companyID, models.SaleStatusActive)
	if err != nil {
		return false, fmt.Errorf("failed to cancel sale: %w", err)
	}
	return n > 0, nil
}

// GetSale retrieves a sale of a company by ID
func (q queries) GetSale(ctx context.Context, companyID, id int64) (*models.Sale, error) {
	var sale models.Sale
	err := q.get(ctx, &sale,
		"SELECT "+saleColumns+" FROM sales WHERE id = ? AND company_id = ?", id, companyID)
	if err != nil {
		return nil, notFound(err, "sale", id)
	}
	return &sale, nil
}

// LockSale reads a sale and holds its row until the transaction ends, so edits and cancels
// of one sale run one after another. sqlite already serializes writers and has no FOR UPDATE.
func (t *Tx) LockSale(ctx context.Context, companyID, id int64) (*models.Sale, error) {
	query := "SELECT " + saleColumns + " FROM sales WHERE id = ? AND company_id = ?"
	if t.tx.DriverName() != "sqlite" {
		query += " FOR UPDATE"
	}

	var sale models.Sale
	if err := t.get(ctx, &sale, query, id, companyID); err != nil {
		return nil, notFound(err, "sale", id)
	}
	return &sale, nil
}

// GetSaleByIdempotencyKey retrieves a sale by idempotency key
func (q queries) GetSaleByIdempotencyKey(ctx context.Context, companyID int64, key string) (*models.Sale, error) {
	var sale models.Sale
	err := q.get(ctx, &sale,
		"SELECT "+saleColumns+" FROM sales WHERE company_id = ? AND idempotency_key = ?", companyID, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sale, nil
}

// InsertRoom stores one room of a sale
func (q queries) InsertRoom(ctx context.Context, room *models.SaleRoom) error {
	return q.get(ctx, &room.ID, `
		INSERT INTO sale_rooms (sale_id, room_uuid, position, room, square_feet, retail_price,
			edge, backsplash, seam, notes, extras, total)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`,
		room.SaleID, room.RoomUUID, room.Position, room.Room, room.SquareFeet, room.RetailPrice,
		room.Edge, room.Backsplash, room.Seam, room.Notes, room.Extras, room.Total)
}

// DeleteRooms removes the stored rooms of a sale
func (q queries) DeleteRooms(ctx context.Context, saleID int64) error {
	_, err := q.exec(ctx, "DELETE FROM sale_rooms WHERE sale_id = ?", saleID)
	return err
}

// GetRooms retrieves the rooms of a sale in submission order
func (q queries) GetRooms(ctx context.Context, saleID int64) ([]models.SaleRoom, error) {
	var rooms []models.SaleRoom
	err := q.selectAll(ctx, &rooms, `
		SELECT id, sale_id, room_uuid, position, room, square_feet, retail_price,
			edge, backsplash, seam, notes, extras, total
		FROM sale_rooms WHERE sale_id = ? ORDER BY position`,
		saleID)
	return rooms, err
}

// IsEventProcessed checks if an event has been processed
func (q queries) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := q.get(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = ?)", eventID)
	return exists, err
}

// MarkEventProcessed marks an event as processed
func (q queries) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	_, err := q.exec(ctx,
		"INSERT INTO processed_events (event_id, event_type, processed_at) VALUES (?, ?, ?) ON CONFLICT (event_id) DO NOTHING",
		eventID, eventType, time.Now().UTC())
	return err
}
