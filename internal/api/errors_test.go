package api

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/example/ec-storefront/internal/auth"
	"github.com/example/ec-storefront/internal/command"
	"github.com/example/ec-storefront/internal/infrastructure/store"
	"github.com/example/ec-storefront/internal/query"
)

func TestStatusFor(t *testing.T) {
	dup := &store.Error{Kind: store.ErrDuplicate, Backend: "sqlite", Field: "sku"}

	tests := []struct {
		name   string
		err    error
		status int
		msg    string
	}{
		{"sku conflict", fmt.Errorf("create product: %w", fmt.Errorf("%w: %w", command.ErrSKUExists, dup)), http.StatusConflict, "SKU already exists"},
		{"bare duplicate", dup, http.StatusConflict, "resource already exists"},
		{"stock", command.ErrInsufficientStock, http.StatusConflict, command.ErrInsufficientStock.Error()},
		{"not found", fmt.Errorf("get: %w", query.ErrProductNotFound), http.StatusNotFound, "product not found"},
		{"validation", command.ErrInvalidPrice, http.StatusBadRequest, command.ErrInvalidPrice.Error()},
		{"password", auth.ErrPasswordTooShort, http.StatusBadRequest, auth.ErrPasswordTooShort.Error()},
		{"constraint", &store.Error{Kind: store.ErrConstraint}, http.StatusBadRequest, "request violates a data constraint"},
		{"unavailable", &store.Error{Kind: store.ErrUnavailable}, http.StatusServiceUnavailable, "service temporarily unavailable"},
		{"connectivity", &store.Error{Kind: store.ErrConnectivity}, http.StatusServiceUnavailable, "service temporarily unavailable"},
		{"malformed", &store.Error{Kind: store.ErrMalformed}, http.StatusInternalServerError, "internal server error"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, msg := statusFor(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.msg, msg)
		})
	}
}
