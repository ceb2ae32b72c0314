package api

import (
	"errors"
	"net/http"

	"github.com/example/ec-storefront/internal/analytics"
	"github.com/example/ec-storefront/internal/auth"
	"github.com/example/ec-storefront/internal/command"
	"github.com/example/ec-storefront/internal/infrastructure/store"
	"github.com/example/ec-storefront/internal/query"
)

var badRequest = []error{
	command.ErrInvalidTitle, command.ErrInvalidSKU, command.ErrInvalidPrice,
	command.ErrInvalidSalePrice, command.ErrInvalidStock, command.ErrInvalidRating,
	command.ErrInvalidUsername, command.ErrInvalidEmail, command.ErrEmptyOrder,
	command.ErrInvalidQuantity, command.ErrInvalidStatus, command.ErrCannotDeactivateAdmin,
	auth.ErrPasswordTooShort, auth.ErrPasswordTooLong,
	analytics.ErrInvalidEventType, analytics.ErrMissingProduct,
}

var notFound = []error{
	query.ErrProductNotFound, query.ErrUserNotFound, query.ErrOrderNotFound,
	command.ErrProductNotFound, command.ErrUserNotFound, command.ErrOrderNotFound,
}

var conflict = []error{
	command.ErrSKUExists, command.ErrUsernameTaken, command.ErrEmailTaken,
	command.ErrInsufficientStock, command.ErrInvalidStatusTransition,
}

// firstMatch returns the first target err wraps, or nil
func firstMatch(err error, targets []error) error {
	for _, target := range targets {
		if errors.Is(err, target) {
			return target
		}
	}
	return nil
}

// statusFor maps an error to an HTTP status and a message safe to show clients
func statusFor(err error) (int, string) {
	if target := firstMatch(err, conflict); target != nil {
		return http.StatusConflict, target.Error()
	}
	if target := firstMatch(err, notFound); target != nil {
		return http.StatusNotFound, target.Error()
	}
	if target := firstMatch(err, badRequest); target != nil {
		return http.StatusBadRequest, target.Error()
	}

	switch {
	case errors.Is(err, store.ErrDuplicate):
		return http.StatusConflict, "resource already exists"
	case errors.Is(err, store.ErrConstraint):
		return http.StatusBadRequest, "request violates a data constraint"
	case errors.Is(err, store.ErrUnavailable), errors.Is(err, store.ErrConnectivity):
		return http.StatusServiceUnavailable, "service temporarily unavailable"
	}
	return http.StatusInternalServerError, "internal server error"
}
