package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/aaronwang/agreeconnect/api-gateway/internal/service"
)

type errorClass struct {
	err    error
	status int
	code   string
}

var errorClasses = []errorClass{
	// validation
	{service.ErrInvalidAmount, http.StatusBadRequest, "invalid_amount"},
	{service.ErrInvalidQuantity, http.StatusBadRequest, "invalid_quantity"},
	{service.ErrInvalidListing, http.StatusBadRequest, "invalid_listing"},
	// missing resources
	{service.ErrListingNotFound, http.StatusNotFound, "listing_not_found"},
	{service.ErrBidNotFound, http.StatusNotFound, "bid_not_found"},
	{service.ErrOrderNotFound, http.StatusNotFound, "order_not_found"},
	{service.ErrNotOwner, http.StatusForbidden, "not_owner"},
	// state and contention
	{service.ErrBidTooLow, http.StatusConflict, "bid_too_low"},
	{service.ErrListingNotOpen, http.StatusConflict, "listing_not_open"},
	{service.ErrNotFixedPrice, http.StatusConflict, "not_fixed_price"},
	{service.ErrNoBidsYet, http.StatusConflict, "no_bids_yet"},
	{service.ErrOrderFinal, http.StatusConflict, "order_final"},
	{service.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
	{service.ErrCartEmpty, http.StatusConflict, "cart_empty"},
	{service.ErrInsufficientStock, http.StatusConflict, "insufficient_stock"},
}

// respondServiceError maps a service error to its HTTP status. Anything
// unrecognised is a storage or transport fault and is reported generically.
func (h *Handler) respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	for _, c := range errorClasses {
		if errors.Is(err, c.err) {
			respondError(w, c.status, c.code, err.Error())
			return
		}
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		respondError(w, http.StatusServiceUnavailable, "unavailable", "request cancelled")
		return
	}

	h.logger.Error("request_failed", "path", r.URL.Path, "request_id", requestIDFrom(r), "err", err)
	respondError(w, http.StatusInternalServerError, "internal_error", "internal error")
}
