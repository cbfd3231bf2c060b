package worker

import (
	"context"

	"countertop-service/internal/broker"
	"countertop-service/internal/models"
	"countertop-service/internal/util"

	"go.uber.org/zap"
)

// SaleEventHandler reacts to a sale lifecycle event
type SaleEventHandler interface {
	HandleSaleEvent(ctx context.Context, event *models.SaleEvent) error
}

// SaleEventWorker consumes sale events and keeps availability caches in step with sales
// made by any instance
type SaleEventWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	logger       *zap.Logger
}

// NewSaleEventWorker creates a new sale event worker
func NewSaleEventWorker(consumer *broker.Consumer, handler SaleEventHandler) *SaleEventWorker {
	eventHandler := broker.NewEventHandler()
	eventHandler.OnSaleEvent(handler.HandleSaleEvent)

	return &SaleEventWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
		logger:       util.ComponentLogger("sale-worker"),
	}
}

// Start starts the worker
func (w *SaleEventWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting sale event worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *SaleEventWorker) Stop() error {
	w.logger.Info("Stopping sale event worker")
	return w.consumer.Close()
}
