package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/aaronwang/agreeconnect/api-gateway/internal/service"
	"github.com/aaronwang/agreeconnect/shared/models"
)

// CreateListing publishes a listing for the calling seller
func (h *Handler) CreateListing(w http.ResponseWriter, r *http.Request) {
	var req models.NewListingRequest
	if !decodeBody(w, r, &req) {
		return
	}
	req.Kind = models.ListingKind(strings.ToUpper(string(req.Kind)))

	l, err := h.biddingService.CreateListing(r.Context(), identityFrom(r).UserID, &req)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, l)
}

// ListListings lists listings, optionally filtered by ?status= and ?kind=
func (h *Handler) ListListings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	status := models.ListingStatus(strings.ToUpper(q.Get("status")))
	kind := models.ListingKind(strings.ToUpper(q.Get("kind")))

	listings, err := h.biddingService.ListListings(r.Context(), status, kind)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, nonNil(listings))
}

// GetListing returns the current display state of a listing
func (h *Handler) GetListing(w http.ResponseWriter, r *http.Request) {
	state, err := h.biddingService.CurrentState(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, state)
}

// CloseListing withdraws the caller's OPEN listing
func (h *Handler) CloseListing(w http.ResponseWriter, r *http.Request) {
	l, err := h.biddingService.CloseListing(r.Context(), mux.Vars(r)["id"], identityFrom(r).UserID)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, l)
}

// ListingBids returns a listing's active bids
func (h *Handler) ListingBids(w http.ResponseWriter, r *http.Request) {
	bids, err := h.biddingService.BidsForListing(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, nonNil(bids))
}

// PlaceBid handles bid placement requests
func (h *Handler) PlaceBid(w http.ResponseWriter, r *http.Request) {
	listingID := mux.Vars(r)["id"]

	var bidReq models.BidRequest
	if !decodeBody(w, r, &bidReq) {
		return
	}
	amount, err := parseAmount(bidReq.Amount)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	result, err := h.biddingService.PlaceBid(r.Context(), listingID, identityFrom(r).UserID, amount)
	var tooLow *service.BidTooLowError
	switch {
	case errors.As(err, &tooLow):
		respondJSON(w, http.StatusConflict, &models.BidResponse{
			Success:      false,
			Message:      "Bid too low. Current highest bid is " + tooLow.CurrentPrice.StringFixed(2),
			CurrentPrice: tooLow.CurrentPrice,
			YourBid:      amount,
			IsHighest:    false,
		})
		return
	case err != nil:
		h.respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, &models.BidResponse{
		Success:      true,
		Message:      "Bid placed successfully!",
		BidID:        result.Bid.ID,
		CurrentPrice: result.CurrentPrice,
		YourBid:      amount,
		IsHighest:    true,
	})
}

// parseAmount accepts a JSON number or a numeric string
func parseAmount(raw json.RawMessage) (decimal.Decimal, error) {
	s := string(bytes.Trim(bytes.TrimSpace(raw), `"`))
	if s == "" {
		return decimal.Zero, service.ErrInvalidAmount
	}
	amount, err := decimal.NewFromString(s)
	if err != nil || !service.ValidAmount(amount) {
		return decimal.Zero, service.ErrInvalidAmount
	}
	return amount, nil
}

// CancelBid withdraws the caller's bid
func (h *Handler) CancelBid(w http.ResponseWriter, r *http.Request) {
	state, err := h.biddingService.CancelBid(r.Context(), mux.Vars(r)["id"], identityFrom(r).UserID)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, state)
}

// MyBids returns the caller's active bids
func (h *Handler) MyBids(w http.ResponseWriter, r *http.Request) {
	bids, err := h.biddingService.BidsByBidder(r.Context(), identityFrom(r).UserID)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, nonNil(bids))
}

// AcceptHighestBid sells the caller's auction to its highest bidder
func (h *Handler) AcceptHighestBid(w http.ResponseWriter, r *http.Request) {
	order, err := h.biddingService.AcceptHighestBid(r.Context(), mux.Vars(r)["id"], identityFrom(r).UserID)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, order)
}
