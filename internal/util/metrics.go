package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SalesCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sales_created_total",
		Help: "Total number of sales created",
	})

	SalesEditedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sales_edited_total",
		Help: "Total number of sales edited",
	})

	SalesCanceledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sales_canceled_total",
		Help: "Total number of sales canceled (unsold)",
	})

	SalesFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sales_failed_total",
		Help: "Total number of failed sale operations",
	}, []string{"operation", "reason"})

	ReservationConflictsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reservation_conflicts_total",
		Help: "Total number of reservations lost to another sale",
	}, []string{"kind"})

	ReservationLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "reservation_latency_seconds",
		Help:    "Latency of sell, edit and unsell transactions",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	CacheRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inventory_cache_requests_total",
		Help: "Availability cache lookups by result",
	}, []string{"result"})

	EventsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sale_events_processed_total",
		Help: "Sale events handled by the worker",
	}, []string{"event_type"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
