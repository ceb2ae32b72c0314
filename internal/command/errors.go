package command

import (
	"errors"
	"fmt"

	"github.com/example/ec-storefront/internal/infrastructure/store"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrUserNotFound    = errors.New("user not found")
	ErrOrderNotFound   = errors.New("order not found")

	ErrSKUExists     = errors.New("SKU already exists")
	ErrUsernameTaken = errors.New("username already taken")
	ErrEmailTaken    = errors.New("email already registered")

	ErrInvalidTitle     = errors.New("title is required")
	ErrInvalidSKU       = errors.New("sku is required")
	ErrInvalidPrice     = errors.New("price must not be negative")
	ErrInvalidSalePrice = errors.New("sale price must be below the price")
	ErrInvalidStock     = errors.New("stock must not be negative")
	ErrInvalidRating    = errors.New("rating must be between 0 and 5")
	ErrInvalidUsername  = errors.New("username must be 3-50 letters, digits or underscores")
	ErrInvalidEmail     = errors.New("email address is invalid")

	ErrEmptyOrder              = errors.New("order must have at least one item")
	ErrInvalidQuantity         = errors.New("quantity must be positive")
	ErrInsufficientStock       = errors.New("insufficient stock")
	ErrInvalidStatus           = errors.New("unknown order status")
	ErrInvalidStatusTransition = errors.New("invalid order status transition")
	ErrCannotDeactivateAdmin   = errors.New("admin accounts cannot be deactivated")
)

// translate turns unique violations into the domain error for the column,
// keeping the store error in the chain
func translate(err error) error {
	if !errors.Is(err, store.ErrDuplicate) {
		return err
	}
	switch store.DuplicateField(err) {
	case "sku":
		return fmt.Errorf("%w: %w", ErrSKUExists, err)
	case "username":
		return fmt.Errorf("%w: %w", ErrUsernameTaken, err)
	case "email":
		return fmt.Errorf("%w: %w", ErrEmailTaken, err)
	}
	return err
}
