package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/aaronwang/agreeconnect/shared/models"
)

// GetCart returns the caller's cart
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	cart, err := h.biddingService.GetCart(r.Context(), identityFrom(r).UserID)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, cart)
}

// AddToCart adds a fixed-price listing to the caller's cart
func (h *Handler) AddToCart(w http.ResponseWriter, r *http.Request) {
	var req models.CartItemRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	cart, err := h.biddingService.AddToCart(r.Context(), identityFrom(r).UserID, req.ListingID, req.Quantity)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, cart)
}

// RemoveFromCart drops a listing from the caller's cart
func (h *Handler) RemoveFromCart(w http.ResponseWriter, r *http.Request) {
	cart, err := h.biddingService.RemoveFromCart(r.Context(), identityFrom(r).UserID, mux.Vars(r)["listingID"])
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, cart)
}

// Checkout orders every line of the caller's cart. Skipped lines are part
// of a successful response.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	result, err := h.biddingService.Checkout(r.Context(), identityFrom(r).UserID)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	result.Orders = nonNil(result.Orders)
	respondJSON(w, http.StatusOK, result)
}

// ListOrders returns orders where the caller is buyer or seller
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.biddingService.OrdersForUser(r.Context(), identityFrom(r).UserID)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, nonNil(orders))
}

// CancelOrder cancels an order of the caller
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.biddingService.CancelOrder(r.Context(), mux.Vars(r)["id"], identityFrom(r).UserID)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

// AcceptOrder accepts a Pending order on the caller's listing
func (h *Handler) AcceptOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.biddingService.AcceptOrder(r.Context(), mux.Vars(r)["id"], identityFrom(r).UserID)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

// AdvanceOrder moves an order forward
func (h *Handler) AdvanceOrder(w http.ResponseWriter, r *http.Request) {
	var req models.OrderStatusRequest
	if !decodeBody(w, r, &req) {
		return
	}

	order, err := h.biddingService.AdvanceOrder(r.Context(), mux.Vars(r)["id"], identityFrom(r), req.Status)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}
