package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"countertop-service/internal/models"
	"countertop-service/internal/util"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher handles publishing domain events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// NewSaleEvent stamps a sale event with a fresh ID and the current time
func NewSaleEvent(eventType string, sale *models.Sale, slabIDs []int64) *models.SaleEvent {
	return &models.SaleEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: eventType,
			Timestamp: time.Now().UTC(),
		},
		SaleID:    sale.ID,
		CompanyID: sale.CompanyID,
		SellerID:  sale.SellerID,
		Price:     sale.Price,
		SlabIDs:   slabIDs,
	}
}

// PublishSaleEvent publishes a SALE_* event keyed by sale
func (ep *EventPublisher) PublishSaleEvent(ctx context.Context, event *models.SaleEvent) error {
	key := fmt.Sprintf("sale-%d", event.SaleID)
	return ep.producer.PublishEvent(ctx, key, event.EventType, event)
}

// EventHandler routes incoming sale events
type EventHandler struct {
	onSaleEvent func(context.Context, *models.SaleEvent) error
	logger      *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.ComponentLogger("event-handler")}
}

// OnSaleEvent registers a handler for SALE_CREATED, SALE_UPDATED and SALE_CANCELED
func (eh *EventHandler) OnSaleEvent(handler func(context.Context, *models.SaleEvent) error) {
	eh.onSaleEvent = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	eh.logger.Debug("Handling event",
		zap.String("event_type", baseEvent.EventType),
		zap.String("event_id", baseEvent.EventID))

	switch baseEvent.EventType {
	case models.EventTypeSaleCreated, models.EventTypeSaleUpdated, models.EventTypeSaleCanceled:
		if eh.onSaleEvent == nil {
			return nil
		}
		var event models.SaleEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			return fmt.Errorf("failed to unmarshal %s event: %w", baseEvent.EventType, err)
		}
		return eh.onSaleEvent(ctx, &event)

	default:
		eh.logger.Warn("Unhandled event type", zap.String("event_type", baseEvent.EventType))
	}

	return nil
}
