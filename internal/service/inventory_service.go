package service

import (
	"context"
	"fmt"
	"time"

	"countertop-service/internal/auth"
	"countertop-service/internal/models"
	"countertop-service/internal/store"
	"countertop-service/internal/util"

	"go.uber.org/zap"
)

const stoneNamesCache = "stone-names"

// InventoryService answers availability queries used while composing a sale
type InventoryService struct {
	store    *store.Store
	cache    InventoryCache
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewInventoryService creates a new inventory service; cache may be nil
func NewInventoryService(store *store.Store, cache InventoryCache, cacheTTL time.Duration) *InventoryService {
	return &InventoryService{
		store:    store,
		cache:    cache,
		cacheTTL: cacheTTL,
		logger:   util.ComponentLogger("inventory"),
	}
}

// AvailableSlabs lists reservable slabs of a stone, minus the ones already picked
func (s *InventoryService) AvailableSlabs(ctx context.Context, user auth.ActingUser, stoneID int64, exclude []int64) ([]models.Slab, error) {
	ctx, span := util.StartSpan(ctx, "InventoryService.AvailableSlabs")
	defer span.End()

	slabs, err := s.store.AvailableSlabs(ctx, user.CompanyID, stoneID, exclude)
	if err != nil {
		util.RecordError(span, err)
		return nil, fmt.Errorf("failed to list available slabs: %w", err)
	}
	if slabs == nil {
		slabs = []models.Slab{}
	}
	return slabs, nil
}

// AvailableStoneNames lists stones with at least one reservable slab, cached per company
// until the next sale change
func (s *InventoryService) AvailableStoneNames(ctx context.Context, user auth.ActingUser) ([]string, error) {
	ctx, span := util.StartSpan(ctx, "InventoryService.AvailableStoneNames")
	defer span.End()

	if s.cache != nil {
		var names []string
		hit, err := s.cache.GetInventoryJSON(ctx, user.CompanyID, stoneNamesCache, &names)
		switch {
		case err != nil:
			util.CacheRequestsTotal.WithLabelValues("error").Inc()
			s.logger.Warn("Stone names cache read failed", zap.Int64("company_id", user.CompanyID), zap.Error(err))
		case hit:
			util.CacheRequestsTotal.WithLabelValues("hit").Inc()
			return names, nil
		default:
			util.CacheRequestsTotal.WithLabelValues("miss").Inc()
		}
	}

	names, err := s.store.AvailableStoneNames(ctx, user.CompanyID)
	if err != nil {
		util.RecordError(span, err)
		return nil, fmt.Errorf("failed to list stone names: %w", err)
	}
	if names == nil {
		names = []string{}
	}

	if s.cache != nil {
		if err := s.cache.SetInventoryJSON(ctx, user.CompanyID, stoneNamesCache, names, s.cacheTTL); err != nil {
			s.logger.Warn("Stone names cache write failed", zap.Int64("company_id", user.CompanyID), zap.Error(err))
		}
	}
	return names, nil
}

// Invalidate drops every cached availability read of a company
func (s *InventoryService) Invalidate(ctx context.Context, companyID int64) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.InvalidateInventory(ctx, companyID)
}

// HandleSaleEvent invalidates the caches of the event's company once per event
func (s *InventoryService) HandleSaleEvent(ctx context.Context, event *models.SaleEvent) error {
	ctx, span := util.StartSpan(ctx, "InventoryService.HandleSaleEvent")
	defer span.End()

	processed, err := s.store.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return fmt.Errorf("failed to check event: %w", err)
	}
	if processed {
		s.logger.Debug("Event already processed", zap.String("event_id", event.EventID))
		return nil
	}

	if err := s.Invalidate(ctx, event.CompanyID); err != nil {
		return fmt.Errorf("failed to invalidate inventory: %w", err)
	}

	if err := s.store.MarkEventProcessed(ctx, event.EventID, event.EventType); err != nil {
		return fmt.Errorf("failed to mark event processed: %w", err)
	}

	util.EventsProcessedTotal.WithLabelValues(event.EventType).Inc()
	s.logger.Info("Sale event processed",
		zap.String("event_type", event.EventType),
		zap.Int64("sale_id", event.SaleID),
		zap.Int("slabs", len(event.SlabIDs)))
	return nil
}
