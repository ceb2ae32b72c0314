package command

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// EventOrderPlaced marks the message emitted after a committed checkout
const EventOrderPlaced = "order_placed"

// Publisher hands domain events to an asynchronous sink
type Publisher interface {
	Publish(ctx context.Context, key, kind string, payload any) error
}

// OrderPlaced is published once the checkout transaction has committed
type OrderPlaced struct {
	Event       string          `json:"event"`
	OrderID     int64           `json:"order_id"`
	OrderNumber string          `json:"order_number"`
	UserID      int64           `json:"user_id"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

// PublishOrdersTo enables order events. Without a publisher none are sent.
func (h *Handler) PublishOrdersTo(p Publisher) *Handler {
	h.events = p
	return h
}

// publishOrderPlaced never fails the checkout: the order is already committed
func (h *Handler) publishOrderPlaced(ctx context.Context, userID int64, r *CheckoutResult) {
	if h.events == nil {
		return
	}
	evt := OrderPlaced{
		Event:       EventOrderPlaced,
		OrderID:     r.OrderID,
		OrderNumber: r.OrderNumber,
		UserID:      userID,
		TotalAmount: r.TotalAmount,
	}
	if err := h.events.Publish(ctx, r.OrderNumber, EventOrderPlaced, evt); err != nil {
		h.log.Warn("order event not published",
			zap.String("order_number", r.OrderNumber),
			zap.Error(err),
		)
	}
}
