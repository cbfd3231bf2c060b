package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"countertop-service/internal/service"
	"countertop-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Pinger is a dependency the readiness probe checks
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config carries what the handler needs beyond its services
type Config struct {
	JWTSecret string
	FlashTTL  time.Duration
	// Checks are pinged by /ready, keyed by name
	Checks map[string]Pinger
}

// Handler contains HTTP handlers
type Handler struct {
	contracts *service.ContractService
	inventory *service.InventoryService
	flash     FlashStore
	cfg       Config
	logger    *zap.Logger
}

// NewHandler creates a new HTTP handler; flash may be nil
func NewHandler(contracts *service.ContractService, inventory *service.InventoryService, flash FlashStore, cfg Config) *Handler {
	return &Handler{
		contracts: contracts,
		inventory: inventory,
		flash:     flash,
		cfg:       cfg,
		logger:    util.ComponentLogger("api"),
	}
}

var registerFieldNames sync.Once

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	registerFieldNames.Do(func() {
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			service.RegisterJSONFieldNames(v)
		}
	})

	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	v1.Use(authMiddleware(h.cfg.JWTSecret))
	{
		v1.POST("/sales", h.sell)
		v1.GET("/sales/:id", h.getSale)
		v1.PUT("/sales/:id", h.editSale)
		v1.POST("/sales/:id/unsell", h.unsell)

		v1.GET("/stones/names", h.stoneNames)
		v1.GET("/stones/:id/slabs", h.availableSlabs)

		v1.POST("/pricing/rooms", h.quote)

		v1.GET("/flash", h.drainFlash)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck pings every configured dependency
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failed := gin.H{}
	for name, check := range h.cfg.Checks {
		if err := check.Ping(ctx); err != nil {
			failed[name] = err.Error()
		}
	}

	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"failed": failed,
			"time":   time.Now().Unix(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// sell handles sale creation
func (h *Handler) sell(c *gin.Context) {
	var req service.SaleRequest
	if !h.bind(c, &req) {
		return
	}
	user := actingUser(c)

	saleID, err := h.contracts.Sell(c.Request.Context(), user, &req, c.GetHeader("Idempotency-Key"))
	if err != nil {
		h.fail(c, user, err)
		return
	}

	h.pushFlash(c, user, flashSuccess, fmt.Sprintf("Sale #%d created", saleID))
	c.JSON(http.StatusCreated, gin.H{
		"sale_id": saleID,
		"status":  "active",
	})
}

// getSale returns the contract of a sale
func (h *Handler) getSale(c *gin.Context) {
	saleID, ok := parseID(c, "sale")
	if !ok {
		return
	}

	contract, err := h.contracts.FromSalesID(c.Request.Context(), actingUser(c), saleID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, contract)
}

// editSale handles a resubmission of an existing sale
func (h *Handler) editSale(c *gin.Context) {
	saleID, ok := parseID(c, "sale")
	if !ok {
		return
	}
	var req service.SaleRequest
	if !h.bind(c, &req) {
		return
	}
	user := actingUser(c)

	if err := h.contracts.Edit(c.Request.Context(), user, saleID, &req); err != nil {
		h.fail(c, user, err)
		return
	}

	h.pushFlash(c, user, flashSuccess, fmt.Sprintf("Sale #%d updated", saleID))
	c.JSON(http.StatusOK, gin.H{
		"sale_id": saleID,
		"status":  "active",
	})
}

// unsell cancels a sale and returns its units to inventory
func (h *Handler) unsell(c *gin.Context) {
	saleID, ok := parseID(c, "sale")
	if !ok {
		return
	}
	user := actingUser(c)

	if err := h.contracts.Unsell(c.Request.Context(), user, saleID); err != nil {
		h.fail(c, user, err)
		return
	}

	h.pushFlash(c, user, flashSuccess, fmt.Sprintf("Sale #%d canceled", saleID))
	c.JSON(http.StatusOK, gin.H{
		"sale_id": saleID,
		"status":  "canceled",
	})
}

func (h *Handler) stoneNames(c *gin.Context) {
	names, err := h.inventory.AvailableStoneNames(c.Request.Context(), actingUser(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"names": names})
}

// availableSlabs lists free slabs of a stone; ?exclude=1,2 drops slabs already picked
func (h *Handler) availableSlabs(c *gin.Context) {
	stoneID, ok := parseID(c, "stone")
	if !ok {
		return
	}

	var exclude []int64
	if raw := c.Query("exclude"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
			if err != nil {
				h.writeError(c, &service.ValidationError{Fields: map[string]string{
					"exclude": fmt.Sprintf("%q is not a slab ID", part),
				}})
				return
			}
			exclude = append(exclude, id)
		}
	}

	slabs, err := h.inventory.AvailableSlabs(c.Request.Context(), actingUser(c), stoneID, exclude)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"slabs": slabs})
}

// quote prices rooms without reserving anything
func (h *Handler) quote(c *gin.Context) {
	var req service.QuoteRequest
	if !h.bind(c, &req) {
		return
	}

	quote, err := h.contracts.Quote(c.Request.Context(), actingUser(c), &req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, quote)
}

// bind decodes and validates the JSON body, answering the request itself on failure
func (h *Handler) bind(c *gin.Context, dest interface{}) bool {
	err := c.ShouldBindJSON(dest)
	if err == nil {
		return true
	}

	if verr := service.FieldErrors(err); verr != nil {
		h.writeError(c, verr)
		return false
	}
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "Invalid request body",
		"details": err.Error(),
	})
	return false
}

func parseID(c *gin.Context, what string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("Invalid %s ID", what),
		})
		return 0, false
	}
	return id, true
}
