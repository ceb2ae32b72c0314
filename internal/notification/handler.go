package notification

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"github.com/example/ec-storefront/internal/command"
	"github.com/example/ec-storefront/internal/query"
	"github.com/example/ec-storefront/internal/readmodel"
)

// Mailer sends the confirmation email
type Mailer interface {
	SendOrderConfirmation(to string, order *readmodel.OrderReadModel) error
}

// Reader loads the order and its customer; *query.Handler satisfies it
type Reader interface {
	GetOrderByNumber(ctx context.Context, userID int64, orderNumber string) (*readmodel.OrderReadModel, error)
	GetUser(ctx context.Context, id int64) (*readmodel.UserReadModel, error)
}

// Handler processes events for sending notifications
type Handler struct {
	mailer Mailer
	reader Reader
	log    *zap.Logger
}

// NewHandler creates a new notification handler
func NewHandler(mailer Mailer, reader Reader, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{mailer: mailer, reader: reader, log: log.Named("notifier")}
}

// HandleEvent processes an event from Kafka. Only order_placed is acted on;
// orders or users that no longer exist are dropped.
func (h *Handler) HandleEvent(ctx context.Context, key, value []byte) error {
	var e command.OrderPlaced
	if err := json.Unmarshal(value, &e); err != nil {
		h.log.Warn("malformed event", zap.ByteString("key", key), zap.Error(err))
		return err
	}
	if e.Event != command.EventOrderPlaced {
		return nil
	}
	return h.handleOrderPlaced(ctx, e)
}

func (h *Handler) handleOrderPlaced(ctx context.Context, e command.OrderPlaced) error {
	log := h.log.With(zap.String("order_number", e.OrderNumber), zap.Int64("user_id", e.UserID))

	order, err := h.reader.GetOrderByNumber(ctx, e.UserID, e.OrderNumber)
	if errors.Is(err, query.ErrOrderNotFound) {
		log.Warn("order not found")
		return nil
	}
	if err != nil {
		return err
	}

	user, err := h.reader.GetUser(ctx, e.UserID)
	if errors.Is(err, query.ErrUserNotFound) {
		log.Warn("user not found")
		return nil
	}
	if err != nil {
		return err
	}

	if err := h.mailer.SendOrderConfirmation(user.Email, order); err != nil {
		log.Error("confirmation email failed", zap.Error(err))
		return err
	}

	log.Info("confirmation email sent", zap.String("to", user.Email))
	return nil
}
