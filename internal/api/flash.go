package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"countertop-service/internal/auth"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	flashSuccess = "success"
	flashError   = "error"
)

// FlashStore keeps per-user messages until the next page load reads them
type FlashStore interface {
	PushFlash(ctx context.Context, userID int64, payload []byte, ttl time.Duration) error
	DrainFlash(ctx context.Context, userID int64) ([][]byte, error)
}

// FlashMessage is shown once after a mutation
type FlashMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (h *Handler) pushFlash(c *gin.Context, user auth.ActingUser, kind, message string) {
	if h.flash == nil {
		return
	}

	payload, err := json.Marshal(FlashMessage{Type: kind, Message: message})
	if err != nil {
		return
	}
	if err := h.flash.PushFlash(c.Request.Context(), user.UserID, payload, h.cfg.FlashTTL); err != nil {
		h.logger.Warn("Failed to push flash message", zap.Int64("user_id", user.UserID), zap.Error(err))
	}
}

// drainFlash returns and clears the caller's pending messages
func (h *Handler) drainFlash(c *gin.Context) {
	messages := []FlashMessage{}
	if h.flash == nil {
		c.JSON(http.StatusOK, gin.H{"messages": messages})
		return
	}

	user := actingUser(c)
	raw, err := h.flash.DrainFlash(c.Request.Context(), user.UserID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	for _, item := range raw {
		var msg FlashMessage
		if err := json.Unmarshal(item, &msg); err != nil {
			h.logger.Warn("Dropping malformed flash message", zap.Error(err))
			continue
		}
		messages = append(messages, msg)
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}
