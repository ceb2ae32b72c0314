package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/example/ec-storefront/internal/api/middleware"
	"github.com/example/ec-storefront/internal/command"
)

// Checkout places an order for the signed-in user
func (h *Handlers) Checkout(w http.ResponseWriter, r *http.Request) {
	var req command.Checkout
	if !decodeJSON(w, r, &req) {
		return
	}
	req.UserID = middleware.GetUserID(r.Context())

	result, err := h.commands.Checkout(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.logger(r).Info("order placed",
		zap.String("order_number", result.OrderNumber),
		zap.Int64("user_id", req.UserID),
	)
	respondJSON(w, http.StatusCreated, map[string]any{"success": true, "order": result})
}

func (h *Handlers) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.queries.ListOrdersByUser(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		h.failList(w, r, "orders", err)
		return
	}
	respondList(w, http.StatusOK, "orders", orders, nil)
}

// GetOrder returns one order. Customers only see their own.
func (h *Handlers) GetOrder(w http.ResponseWriter, r *http.Request) {
	owner := middleware.GetUserID(r.Context())
	if claims, ok := middleware.GetUserFromContext(r.Context()); ok && claims.IsAdmin() {
		owner = 0
	}

	order, err := h.queries.GetOrderByNumber(r.Context(), owner, mux.Vars(r)["orderNumber"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "order": order})
}
