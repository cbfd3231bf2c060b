package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"countertop-service/config"
	"countertop-service/internal/auth"
	"countertop-service/internal/broker"
	"countertop-service/internal/models"
	"countertop-service/internal/store"
	"countertop-service/internal/util"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// SaleEventPublisher publishes sale lifecycle events
type SaleEventPublisher interface {
	PublishSaleEvent(ctx context.Context, event *models.SaleEvent) error
}

// InventoryCache caches availability reads per company
type InventoryCache interface {
	GetInventoryJSON(ctx context.Context, companyID int64, name string, dest interface{}) (bool, error)
	SetInventoryJSON(ctx context.Context, companyID int64, name string, value interface{}, ttl time.Duration) error
	InvalidateInventory(ctx context.Context, companyID int64) error
}

// IdempotencyGuard stops two requests with the same key from selling at once
type IdempotencyGuard interface {
	ClaimIdempotencyKey(ctx context.Context, key string, ttl time.Duration) (bool, error)
	ReleaseIdempotencyKey(ctx context.Context, key string) error
}

// ContractService sells, edits and unsells sales and keeps their unit reservations consistent
type ContractService struct {
	store     *store.Store
	cache     InventoryCache
	guard     IdempotencyGuard
	publisher SaleEventPublisher
	validate  *validator.Validate
	cfg       config.BusinessConfig
	logger    *zap.Logger
}

// NewContractService creates a new contract service. cache, guard and publisher may be nil.
func NewContractService(
	store *store.Store,
	cache InventoryCache,
	guard IdempotencyGuard,
	publisher SaleEventPublisher,
	cfg config.BusinessConfig,
) *ContractService {
	if cfg.ReservationCandidates <= 0 {
		cfg.ReservationCandidates = 5
	}
	return &ContractService{
		store:     store,
		cache:     cache,
		guard:     guard,
		publisher: publisher,
		validate:  NewValidator(),
		cfg:       cfg,
		logger:    util.ComponentLogger("contract"),
	}
}

// Sell creates a sale and reserves every slab, sink and faucet its rooms reference
func (s *ContractService) Sell(ctx context.Context, user auth.ActingUser, req *SaleRequest, idempotencyKey string) (int64, error) {
	ctx, span := util.StartSpan(ctx, "ContractService.Sell")
	defer span.End()
	defer observe("sell", time.Now())

	if err := checkSale(s.validate, req); err != nil {
		return 0, s.fail(span, "sell", err)
	}

	if idempotencyKey != "" {
		existing, err := s.store.GetSaleByIdempotencyKey(ctx, user.CompanyID, idempotencyKey)
		if err != nil {
			return 0, s.fail(span, "sell", fmt.Errorf("failed to check idempotency: %w", err))
		}
		if existing != nil {
			s.logger.Info("Duplicate sale request detected",
				zap.String("idempotency_key", idempotencyKey),
				zap.Int64("sale_id", existing.ID))
			return existing.ID, nil
		}

		claimKey := fmt.Sprintf("sale:%d:%s", user.CompanyID, idempotencyKey)
		claimed, release := s.claim(ctx, claimKey)
		if !claimed {
			return 0, s.fail(span, "sell", ErrDuplicateSubmission)
		}
		defer release()
	}

	sale := &models.Sale{
		CompanyID:      user.CompanyID,
		SellerID:       user.UserID,
		ProjectAddress: req.ProjectAddress,
		Notes:          req.Notes,
	}
	if idempotencyKey != "" {
		sale.IdempotencyKey = &idempotencyKey
	}

	err := s.store.InTx(ctx, func(tx *store.Tx) error {
		cat, err := loadCatalog(ctx, tx, user.CompanyID, req.Rooms)
		if err != nil {
			return err
		}
		if err := cat.checkSlabs(req.Rooms, 0); err != nil {
			return err
		}
		quote := cat.quote(req.Rooms, req.Price)

		customerID, err := resolveCustomer(ctx, tx, user.CompanyID, req, 0)
		if err != nil {
			return err
		}
		sale.CustomerID = customerID
		sale.Price = quote.Price

		if err := tx.CreateSale(ctx, sale); err != nil {
			return fmt.Errorf("failed to create sale: %w", err)
		}
		return s.writeRooms(ctx, tx, user.CompanyID, sale.ID, req.Rooms, cat, quote, newHeldUnits())
	})
	if err != nil {
		if idempotencyKey != "" {
			// a concurrent request with the same key may have won the insert
			if existing, lookupErr := s.store.GetSaleByIdempotencyKey(ctx, user.CompanyID, idempotencyKey); lookupErr == nil && existing != nil {
				return existing.ID, nil
			}
		}
		return 0, s.fail(span, "sell", err)
	}

	util.SalesCreatedTotal.Inc()
	s.logger.Info("Sale created",
		zap.Int64("sale_id", sale.ID),
		zap.Int64("company_id", sale.CompanyID),
		zap.Float64("price", sale.Price))

	s.afterCommit(ctx, models.EventTypeSaleCreated, sale, slabIDs(req.Rooms))
	return sale.ID, nil
}

// Edit rewrites an active sale. Units dropped from the submission are released before new
// ones are reserved, all in one transaction.
func (s *ContractService) Edit(ctx context.Context, user auth.ActingUser, saleID int64, req *SaleRequest) error {
	ctx, span := util.StartSpan(ctx, "ContractService.Edit")
	defer span.End()
	defer observe("edit", time.Now())

	if err := checkSale(s.validate, req); err != nil {
		return s.fail(span, "edit", err)
	}

	var sale *models.Sale
	err := s.store.InTx(ctx, func(tx *store.Tx) error {
		var err error
		sale, err = activeSale(ctx, tx, user.CompanyID, saleID)
		if err != nil {
			return err
		}

		cat, err := loadCatalog(ctx, tx, user.CompanyID, req.Rooms)
		if err != nil {
			return err
		}
		if err := cat.checkSlabs(req.Rooms, sale.ID); err != nil {
			return err
		}
		quote := cat.quote(req.Rooms, req.Price)

		customerID, err := resolveCustomer(ctx, tx, user.CompanyID, req, sale.CustomerID)
		if err != nil {
			return err
		}
		sale.CustomerID = customerID
		sale.Price = quote.Price
		sale.ProjectAddress = req.ProjectAddress
		sale.Notes = req.Notes

		if err := updateActiveSale(ctx, tx, sale); err != nil {
			return err
		}

		held, err := releaseDropped(ctx, tx, sale.ID, req.Rooms)
		if err != nil {
			return err
		}
		if err := tx.DeleteRooms(ctx, sale.ID); err != nil {
			return fmt.Errorf("failed to delete rooms: %w", err)
		}
		return s.writeRooms(ctx, tx, user.CompanyID, sale.ID, req.Rooms, cat, quote, held)
	})
	if err != nil {
		return s.fail(span, "edit", err)
	}

	util.SalesEditedTotal.Inc()
	s.logger.Info("Sale edited",
		zap.Int64("sale_id", sale.ID),
		zap.Float64("price", sale.Price))

	s.afterCommit(ctx, models.EventTypeSaleUpdated, sale, slabIDs(req.Rooms))
	return nil
}

// Unsell releases every unit of a sale and cancels it. Unselling a canceled sale is a no-op.
// The sale row is locked before any release so a concurrent Edit cannot reserve behind it.
func (s *ContractService) Unsell(ctx context.Context, user auth.ActingUser, saleID int64) error {
	ctx, span := util.StartSpan(ctx, "ContractService.Unsell")
	defer span.End()
	defer observe("unsell", time.Now())

	var (
		sale     *models.Sale
		released []int64
		changed  bool
	)
	err := s.store.InTx(ctx, func(tx *store.Tx) error {
		var err error
		sale, err = tx.LockSale(ctx, user.CompanyID, saleID)
		if err != nil {
			if isNotFound(err) {
				return fmt.Errorf("sale %d: %w", saleID, ErrSaleNotFound)
			}
			return fmt.Errorf("failed to lock sale: %w", err)
		}

		slabs, err := tx.GetSlabsBySale(ctx, sale.ID)
		if err != nil {
			return fmt.Errorf("failed to get slabs: %w", err)
		}
		for _, slab := range slabs {
			released = append(released, slab.ID)
		}

		if _, err := tx.ReleaseSlabs(ctx, sale.ID, nil); err != nil {
			return fmt.Errorf("failed to release slabs: %w", err)
		}
		for _, kind := range []string{models.UnitSink, models.UnitFaucet} {
			if _, err := tx.ReleaseSaleFixtures(ctx, kind, sale.ID); err != nil {
				return fmt.Errorf("failed to release %ss: %w", kind, err)
			}
		}

		changed, err = tx.CancelSale(ctx, user.CompanyID, sale.ID)
		return err
	})
	if err != nil {
		return s.fail(span, "unsell", err)
	}

	if !changed {
		s.logger.Info("Sale already canceled", zap.Int64("sale_id", saleID))
		return nil
	}

	sale.Status = models.SaleStatusCanceled
	util.SalesCanceledTotal.Inc()
	s.logger.Info("Sale canceled",
		zap.Int64("sale_id", sale.ID),
		zap.Int("slabs_released", len(released)))

	s.afterCommit(ctx, models.EventTypeSaleCanceled, sale, released)
	return nil
}

// FromSalesID hydrates a sale with its customer, rooms and reserved units
func (s *ContractService) FromSalesID(ctx context.Context, user auth.ActingUser, saleID int64) (*Contract, error) {
	ctx, span := util.StartSpan(ctx, "ContractService.FromSalesID")
	defer span.End()

	contract, err := loadContract(ctx, s.store, user.CompanyID, saleID)
	if err != nil {
		if !errors.Is(err, ErrSaleNotFound) {
			s.logger.Error("Failed to load contract", zap.Int64("sale_id", saleID), zap.Error(err))
			util.RecordError(span, err)
		}
		return nil, err
	}
	return contract, nil
}

// Quote prices rooms the way Sell would, without writing anything
func (s *ContractService) Quote(ctx context.Context, user auth.ActingUser, req *QuoteRequest) (*Quote, error) {
	ctx, span := util.StartSpan(ctx, "ContractService.Quote")
	defer span.End()

	if err := checkQuote(s.validate, req); err != nil {
		return nil, err
	}

	cat, err := loadCatalog(ctx, s.store, user.CompanyID, req.Rooms)
	if err != nil {
		util.RecordError(span, err)
		return nil, err
	}
	return cat.quote(req.Rooms, req.Price), nil
}

// heldUnits are the units a sale holds before an edit; writeRooms reuses them before reserving
type heldUnits struct {
	slabs   map[int64]bool
	sinks   map[int64][]int64
	faucets map[int64][]int64
}

func newHeldUnits() *heldUnits {
	return &heldUnits{
		slabs:   make(map[int64]bool),
		sinks:   make(map[int64][]int64),
		faucets: make(map[int64][]int64),
	}
}

func (h *heldUnits) pool(kind string) map[int64][]int64 {
	if kind == models.UnitSink {
		return h.sinks
	}
	return h.faucets
}

// take hands out a held unit of typeID, if any
func (h *heldUnits) take(kind string, typeID int64) (int64, bool) {
	pool := h.pool(kind)
	ids := pool[typeID]
	if len(ids) == 0 {
		return 0, false
	}
	pool[typeID] = ids[1:]
	return ids[0], true
}

// releaseDropped frees the slabs the submission no longer lists and the fixture units beyond
// what it asks for per type; what stays held is returned for reuse
func releaseDropped(ctx context.Context, tx *store.Tx, saleID int64, rooms []Room) (*heldUnits, error) {
	held := newHeldUnits()

	current, err := tx.GetSlabsBySale(ctx, saleID)
	if err != nil {
		return nil, fmt.Errorf("failed to get slabs: %w", err)
	}
	submitted := make(map[int64]bool)
	for _, id := range slabIDs(rooms) {
		submitted[id] = true
	}
	var keep []int64
	for _, slab := range current {
		if submitted[slab.ID] {
			keep = append(keep, slab.ID)
			held.slabs[slab.ID] = true
		}
	}
	if len(current) > len(keep) {
		if _, err := tx.ReleaseSlabs(ctx, saleID, keep); err != nil {
			return nil, fmt.Errorf("failed to release slabs: %w", err)
		}
	}

	for _, kind := range []string{models.UnitSink, models.UnitFaucet} {
		pick := roomSinks
		if kind == models.UnitFaucet {
			pick = roomFaucets
		}
		wanted := make(map[int64]int)
		for _, room := range rooms {
			for _, typeID := range pick(room) {
				wanted[typeID]++
			}
		}

		units, err := tx.GetFixturesBySale(ctx, kind, saleID)
		if err != nil {
			return nil, fmt.Errorf("failed to get %ss: %w", kind, err)
		}
		pool := held.pool(kind)
		var drop []int64
		for _, unit := range units {
			if len(pool[unit.TypeID]) < wanted[unit.TypeID] {
				pool[unit.TypeID] = append(pool[unit.TypeID], unit.ID)
				continue
			}
			drop = append(drop, unit.ID)
		}
		if _, err := tx.ReleaseFixtures(ctx, kind, saleID, drop); err != nil {
			return nil, fmt.Errorf("failed to release %ss: %w", kind, err)
		}
	}
	return held, nil
}

// writeRooms stores rooms and binds their units to the sale. Held units are reassigned;
// everything else is reserved conditionally and a lost reservation aborts the transaction.
func (s *ContractService) writeRooms(ctx context.Context, tx *store.Tx, companyID, saleID int64, rooms []Room, cat *catalog, quote *Quote, held *heldUnits) error {
	for i, room := range rooms {
		extras, err := encodeExtras(room.Extras)
		if err != nil {
			return err
		}

		row := &models.SaleRoom{
			SaleID:      saleID,
			RoomUUID:    uuid.New().String(),
			Position:    i,
			Room:        room.Room,
			SquareFeet:  room.SquareFeet,
			RetailPrice: cat.roomRetailPrice(room),
			Edge:        room.Edge,
			Backsplash:  room.Backsplash,
			Seam:        room.Seam,
			Notes:       room.Notes,
			Extras:      extras,
			Total:       quote.Rooms[i].Total,
		}
		if err := tx.InsertRoom(ctx, row); err != nil {
			return fmt.Errorf("failed to insert room: %w", err)
		}

		for _, ref := range room.Slabs {
			if held.slabs[ref.ID] {
				err = tx.AssignSlab(ctx, saleID, ref.ID, row.RoomUUID, ref.IsFull, room.Notes)
			} else {
				err = tx.ReserveSlab(ctx, companyID, saleID, ref.ID, row.RoomUUID, ref.IsFull, room.Notes)
			}
			if err != nil {
				return unitError(models.UnitSlab, ref.ID, "", err)
			}
		}

		if err := s.bindFixtures(ctx, tx, models.UnitSink, companyID, saleID, room.Sinks, cat.sinks, row, held); err != nil {
			return err
		}
		if err := s.bindFixtures(ctx, tx, models.UnitFaucet, companyID, saleID, room.Faucets, cat.faucets, row, held); err != nil {
			return err
		}
	}
	return nil
}

func (s *ContractService) bindFixtures(ctx context.Context, tx *store.Tx, kind string, companyID, saleID int64, typeIDs []int64, types map[int64]models.FixtureType, row *models.SaleRoom, held *heldUnits) error {
	for _, typeID := range typeIDs {
		if unitID, ok := held.take(kind, typeID); ok {
			if err := tx.AssignFixture(ctx, kind, saleID, unitID, row.RoomUUID, row.Notes); err != nil {
				return unitError(kind, typeID, types[typeID].Name, err)
			}
			continue
		}

		_, err := tx.ReserveFixture(ctx, kind, companyID, saleID, typeID, row.RoomUUID, row.Notes, s.cfg.ReservationCandidates)
		if err != nil {
			return unitError(kind, typeID, types[typeID].Name, err)
		}
	}
	return nil
}

// activeSale loads a sale that can still be edited
func activeSale(ctx context.Context, tx *store.Tx, companyID, saleID int64) (*models.Sale, error) {
	sale, err := tx.LockSale(ctx, companyID, saleID)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("sale %d: %w", saleID, ErrSaleNotFound)
		}
		return nil, fmt.Errorf("failed to get sale: %w", err)
	}
	if sale.Status != models.SaleStatusActive {
		return nil, fmt.Errorf("sale %d: %w", saleID, ErrSaleCanceled)
	}
	return sale, nil
}

// updateActiveSale writes the sale back; a sale canceled in the meantime is ErrSaleCanceled
func updateActiveSale(ctx context.Context, tx *store.Tx, sale *models.Sale) error {
	if err := tx.UpdateSale(ctx, sale); err != nil {
		if isNotFound(err) {
			return fmt.Errorf("sale %d: %w", sale.ID, ErrSaleCanceled)
		}
		return err
	}
	return nil
}

// resolveCustomer returns the existing customer of the request or creates the new one.
// On edit, current is the sale's customer and inline details update it in place.
func resolveCustomer(ctx context.Context, tx *store.Tx, companyID int64, req *SaleRequest, current int64) (int64, error) {
	if req.CustomerID != nil {
		customer, err := tx.GetCustomer(ctx, companyID, *req.CustomerID)
		if isNotFound(err) {
			return 0, &ValidationError{Fields: map[string]string{
				"customer_id": fmt.Sprintf("customer %d not found", *req.CustomerID),
			}}
		}
		if err != nil {
			return 0, fmt.Errorf("failed to get customer: %w", err)
		}
		return customer.ID, nil
	}

	customer := &models.Customer{
		CompanyID: companyID,
		Name:      req.Customer.Name,
		Email:     req.Customer.Email,
		Phone:     req.Customer.Phone,
		Address:   req.Customer.Address,
	}
	if current != 0 {
		customer.ID = current
		if err := tx.UpdateCustomer(ctx, customer); err != nil {
			return 0, fmt.Errorf("failed to update customer: %w", err)
		}
		return current, nil
	}
	if err := tx.CreateCustomer(ctx, customer); err != nil {
		return 0, fmt.Errorf("failed to create customer: %w", err)
	}
	return customer.ID, nil
}

// claim takes the Redis idempotency claim. A Redis outage does not block selling; the
// unique key on sales still holds.
func (s *ContractService) claim(ctx context.Context, key string) (bool, func()) {
	noop := func() {}
	if s.guard == nil {
		return true, noop
	}

	claimed, err := s.guard.ClaimIdempotencyKey(ctx, key, s.cfg.IdempotencyTTL)
	if err != nil {
		s.logger.Warn("Idempotency claim failed", zap.String("key", key), zap.Error(err))
		return true, noop
	}
	if !claimed {
		return false, noop
	}
	return true, func() {
		if err := s.guard.ReleaseIdempotencyKey(context.Background(), key); err != nil {
			s.logger.Warn("Failed to release idempotency claim", zap.String("key", key), zap.Error(err))
		}
	}
}

// afterCommit drops the company's availability caches and publishes the sale event.
// Both are best effort; the worker invalidates again when it sees the event.
func (s *ContractService) afterCommit(ctx context.Context, eventType string, sale *models.Sale, slabIDs []int64) {
	if s.cache != nil {
		if err := s.cache.InvalidateInventory(ctx, sale.CompanyID); err != nil {
			s.logger.Warn("Failed to invalidate inventory cache",
				zap.Int64("company_id", sale.CompanyID), zap.Error(err))
		}
	}

	if s.publisher != nil {
		event := broker.NewSaleEvent(eventType, sale, slabIDs)
		if err := s.publisher.PublishSaleEvent(ctx, event); err != nil {
			s.logger.Error("Failed to publish sale event",
				zap.String("event_type", eventType),
				zap.Int64("sale_id", sale.ID),
				zap.Error(err))
		}
	}
}

// fail records a failed operation and returns err unchanged
func (s *ContractService) fail(span trace.Span, operation string, err error) error {
	reason := failureReason(err)
	util.SalesFailedTotal.WithLabelValues(operation, reason).Inc()

	var conflict *ConflictError
	switch {
	case errors.As(err, &conflict):
		util.ReservationConflictsTotal.WithLabelValues(conflict.Kind).Inc()
		s.logger.Warn("Reservation conflict", zap.String("operation", operation), zap.Error(err))
	case reason == "db_error":
		util.RecordError(span, err)
		s.logger.Error("Sale operation failed", zap.String("operation", operation), zap.Error(err))
	default:
		s.logger.Info("Sale operation rejected",
			zap.String("operation", operation),
			zap.String("reason", reason),
			zap.Error(err))
	}
	return err
}

func observe(operation string, start time.Time) {
	util.ReservationLatency.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
