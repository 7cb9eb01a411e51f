package app

import (
	"errors"
	"fmt"
	"net/http"

	"arshare/api/internal/auth"
	"arshare/api/internal/gate"
	"arshare/api/internal/resolver"
	"arshare/api/internal/store"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

var (
	errMissingID      = domainError(http.StatusBadRequest, "MISSING_ID", "No project ID provided", nil)
	errAccessRequired = domainError(http.StatusForbidden, "ACCESS_REQUIRED", "Access code required", nil)
)

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	switch {
	case errors.Is(err, resolver.ErrNotFound) || errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", "Project not found", nil
	case errors.Is(err, resolver.ErrLoadFailure):
		return http.StatusServiceUnavailable, "LOAD_FAILED", "Project could not be loaded", nil
	case errors.Is(err, gate.ErrInvalidAccessCode):
		return http.StatusUnprocessableEntity, "INVALID_ACCESS_CODE", gate.InvalidCodeMessage, map[string]any{"clearInput": true}
	case errors.Is(err, gate.ErrNotLocked):
		return http.StatusConflict, "NOT_LOCKED", "Project is not waiting for an access code", nil
	case errors.Is(err, ErrStaleSession):
		return http.StatusServiceUnavailable, "SESSION_CLOSED", "Request was cancelled", nil
	case errors.Is(err, auth.ErrAdminDisabled):
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	case errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken):
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
