package api

import (
	"errors"
	"net/http"

	"countertop-service/internal/auth"
	"countertop-service/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// statusOf maps a service error to its HTTP status and the message safe to show the user
func statusOf(err error) (int, string) {
	var verr *service.ValidationError
	var conflict *service.ConflictError
	switch {
	case errors.As(err, &verr):
		return http.StatusUnprocessableEntity, "Please correct the highlighted fields"
	case errors.As(err, &conflict):
		return http.StatusConflict, conflict.Error()
	case errors.Is(err, service.ErrDuplicateSubmission):
		return http.StatusConflict, service.ErrDuplicateSubmission.Error()
	case errors.Is(err, service.ErrSaleCanceled):
		return http.StatusConflict, "Sale is canceled and can no longer be edited"
	case errors.Is(err, service.ErrSaleNotFound):
		return http.StatusNotFound, "Sale not found"
	default:
		return http.StatusInternalServerError, "Something went wrong, nothing was saved"
	}
}

func (h *Handler) writeError(c *gin.Context, err error) {
	status, message := statusOf(err)

	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}

	body := gin.H{"error": message}
	var verr *service.ValidationError
	if errors.As(err, &verr) {
		body["fields"] = verr.Fields
	}
	c.JSON(status, body)
}

// fail answers a failed mutation and leaves an error flash for the user
func (h *Handler) fail(c *gin.Context, user auth.ActingUser, err error) {
	_, message := statusOf(err)
	h.pushFlash(c, user, flashError, message)
	h.writeError(c, err)
}
