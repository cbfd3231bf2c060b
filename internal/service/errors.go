package service

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"countertop-service/internal/models"
	"countertop-service/internal/store"
)

var (
	ErrSaleNotFound        = errors.New("sale not found")
	ErrSaleCanceled        = errors.New("sale is canceled")
	ErrConflict            = errors.New("reservation conflict")
	ErrDuplicateSubmission = errors.New("an identical sale is already being submitted")
)

// ValidationError reports a malformed submission field by field. Nothing is written when it is
// returned.
type ValidationError struct {
	Fields map[string]string `json:"fields"`
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, message string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, ok := e.Fields[field]; !ok {
		e.Fields[field] = message
	}
}

func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

// ConflictError means a unit the submission needs was reserved or cut by someone else
type ConflictError struct {
	Kind string
	ID   int64
	Name string
}

func (e *ConflictError) Error() string {
	if e.Kind == models.UnitSlab {
		return fmt.Sprintf("slab %d is no longer available", e.ID)
	}
	if e.Name != "" {
		return fmt.Sprintf("no %s of type %q is available", e.Kind, e.Name)
	}
	return fmt.Sprintf("no %s of type %d is available", e.Kind, e.ID)
}

func (e *ConflictError) Unwrap() error {
	return ErrConflict
}

// unitError turns a lost conditional reservation into a ConflictError
func unitError(kind string, id int64, name string, err error) error {
	if errors.Is(err, store.ErrUnavailable) {
		return &ConflictError{Kind: kind, ID: id, Name: name}
	}
	return err
}

// failureReason labels an error for metrics
func failureReason(err error) string {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		return "validation"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrSaleNotFound):
		return "not_found"
	case errors.Is(err, ErrSaleCanceled):
		return "canceled"
	case errors.Is(err, ErrDuplicateSubmission):
		return "duplicate"
	default:
		return "db_error"
	}
}
