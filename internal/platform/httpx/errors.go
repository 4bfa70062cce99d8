package httpx

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/odyssey-erp/odyssey-iam/internal/shared"
)

// InternalErrorMessage is the only detail unexpected faults expose.
const InternalErrorMessage = "Internal server error"

// StatusFor maps a domain error to its HTTP status code.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, shared.ErrRoleInUse):
		return http.StatusBadRequest
	case errors.Is(err, shared.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, shared.ErrUnauthenticated), errors.Is(err, shared.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, shared.ErrForbidden), errors.Is(err, shared.ErrAccountInactive):
		return http.StatusForbidden
	case errors.Is(err, shared.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, shared.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// IsInternal reports whether err is an unclassified fault that must be
// logged server-side and hidden from the caller.
func IsInternal(err error) bool {
	return err != nil && StatusFor(err) == http.StatusInternalServerError
}

// RespondError maps domain errors to the failure envelope.
func RespondError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		Fail(w, status, InternalErrorMessage)
		return
	}
	Fail(w, status, messageFor(err))
}

// WriteError logs unexpected faults under op, then responds like RespondError.
func WriteError(w http.ResponseWriter, logger *slog.Logger, op string, err error) {
	if IsInternal(err) && logger != nil {
		logger.Error(op, slog.Any("error", err))
	}
	RespondError(w, err)
}

func messageFor(err error) string {
	var domainErr *shared.Error
	if errors.As(err, &domainErr) {
		return domainErr.Error()
	}
	switch {
	case errors.Is(err, shared.ErrInvalidCredentials):
		return "Invalid email or password"
	case errors.Is(err, shared.ErrAccountInactive):
		return "User account is deactivated"
	case errors.Is(err, shared.ErrRoleInUse):
		return "Cannot delete role that is assigned to users"
	case errors.Is(err, shared.ErrUnauthenticated):
		return "Authentication required"
	case errors.Is(err, shared.ErrForbidden):
		return "Access denied"
	case errors.Is(err, shared.ErrNotFound):
		return "Resource not found"
	case errors.Is(err, shared.ErrConflict):
		return "Resource already exists"
	default:
		return "Invalid request"
	}
}
