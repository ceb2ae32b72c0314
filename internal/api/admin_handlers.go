package api

import (
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/example/ec-storefront/internal/command"
	"github.com/example/ec-storefront/internal/query"
)

// Back office: every handler here sits behind RequireRole("admin")

func (h *Handlers) AdminListProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	products, err := h.queries.AdminProducts(r.Context(), query.AdminFilters{
		IncludeInactive: parseBool(q.Get("includeInactive")),
		Search:          strings.TrimSpace(q.Get("q")),
		Category:        strings.TrimSpace(q.Get("category")),
		Limit:           clampPage(limit),
		Offset:          offset,
	})
	if err != nil {
		h.failList(w, r, "products", err)
		return
	}
	respondList(w, http.StatusOK, "products", products, nil)
}

func (h *Handlers) AdminCreateProduct(w http.ResponseWriter, r *http.Request) {
	var fields command.ProductFields
	if !decodeJSON(w, r, &fields) {
		return
	}

	id, err := h.commands.CreateProduct(r.Context(), command.CreateProduct{ProductFields: fields})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	product, err := h.queries.GetProductAdmin(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.logger(r).Info("product created", zap.Int64("product_id", id), zap.String("sku", product.SKU))
	respondJSON(w, http.StatusCreated, map[string]any{"success": true, "product": product})
}

func (h *Handlers) AdminUpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var fields command.ProductFields
	if !decodeJSON(w, r, &fields) {
		return
	}

	if err := h.commands.UpdateProduct(r.Context(), command.UpdateProduct{ProductID: id, ProductFields: fields}); err != nil {
		h.fail(w, r, err)
		return
	}
	product, err := h.queries.GetProductAdmin(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "product": product})
}

// AdminDeleteProduct soft-deletes; the row stays for order history
func (h *Handlers) AdminDeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.commands.DeleteProduct(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *Handlers) AdminRestoreProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.commands.RestoreProduct(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *Handlers) AdminListUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	users, err := h.queries.ListUsers(r.Context(), parseBool(q.Get("includeInactive")), clampPage(limit), offset)
	if err != nil {
		h.failList(w, r, "users", err)
		return
	}
	respondList(w, http.StatusOK, "users", users, nil)
}

func (h *Handlers) AdminDeactivateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.commands.DeactivateUser(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *Handlers) AdminListOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	orders, err := h.queries.ListAllOrders(r.Context(), strings.TrimSpace(q.Get("status")), clampPage(limit), offset)
	if err != nil {
		h.failList(w, r, "orders", err)
		return
	}
	respondList(w, http.StatusOK, "orders", orders, nil)
}

func (h *Handlers) AdminUpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req command.UpdateOrderStatus
	if !decodeJSON(w, r, &req) {
		return
	}
	req.OrderID = id

	if err := h.commands.UpdateOrderStatus(r.Context(), req); err != nil {
		h.fail(w, r, err)
		return
	}
	h.logger(r).Info("order status changed", zap.Int64("order_id", id), zap.String("status", req.Status))
	respondJSON(w, http.StatusOK, map[string]any{"success": true})
}
