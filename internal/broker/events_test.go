package broker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"countertop-service/internal/models"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleMessageRoutesSaleEvents(t *testing.T) {
	sale := &models.Sale{ID: 42, CompanyID: 1, SellerID: 7, Price: 2550}
	event := NewSaleEvent(models.EventTypeSaleCanceled, sale, []int64{3, 4})

	raw, err := json.Marshal(event)
	require.NoError(t, err)

	var got *models.SaleEvent
	handler := NewEventHandler()
	handler.OnSaleEvent(func(_ context.Context, e *models.SaleEvent) error {
		got = e
		return nil
	})

	require.NoError(t, handler.HandleMessage(context.Background(), kafka.Message{Value: raw}))
	require.NotNil(t, got)
	assert.Equal(t, event.EventID, got.EventID)
	assert.Equal(t, int64(42), got.SaleID)
	assert.Equal(t, []int64{3, 4}, got.SlabIDs)
}

func TestHandleMessagePropagatesHandlerError(t *testing.T) {
	raw, err := json.Marshal(NewSaleEvent(models.EventTypeSaleCreated, &models.Sale{ID: 1}, nil))
	require.NoError(t, err)

	boom := errors.New("boom")
	handler := NewEventHandler()
	handler.OnSaleEvent(func(context.Context, *models.SaleEvent) error { return boom })

	err = handler.HandleMessage(context.Background(), kafka.Message{Value: raw})
	assert.True(t, errors.Is(err, boom))
}

func TestHandleMessageIgnoresUnknownTypes(t *testing.T) {
	handler := NewEventHandler()
	handler.OnSaleEvent(func(context.Context, *models.SaleEvent) error {
		t.Fatal("handler must not run")
		return nil
	})

	err := handler.HandleMessage(context.Background(), kafka.Message{Value: []byte(`{"event_type":"ORDER_PAID"}`)})
	assert.NoError(t, err)

	err = handler.HandleMessage(context.Background(), kafka.Message{Value: []byte(`not json`)})
	assert.Error(t, err)
}
