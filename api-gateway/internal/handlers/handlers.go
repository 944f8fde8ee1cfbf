package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/aaronwang/agreeconnect/api-gateway/internal/service"
	"github.com/aaronwang/agreeconnect/shared/logging"
	"github.com/aaronwang/agreeconnect/shared/models"
)

const (
	defaultNotificationLimit = 50
	maxBodyBytes             = 1 << 20
)

// Handler contains HTTP request handlers
type Handler struct {
	biddingService *service.BiddingService
	logger         logging.Logger
	corsOrigins    []string
}

// NewHandler creates a new HTTP handler
func NewHandler(biddingService *service.BiddingService, logger logging.Logger, corsOrigins []string) *Handler {
	return &Handler{
		biddingService: biddingService,
		logger:         logger,
		corsOrigins:    corsOrigins,
	}
}

// SetupRoutes configures all HTTP routes
func (h *Handler) SetupRoutes() http.Handler {
	router := mux.NewRouter()

	// Health check and metrics
	router.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	// API routes
	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(identityMiddleware)

	sellers := requireRole(models.RoleSeller, models.RoleAdmin)
	buyers := requireRole(models.RoleBuyer)

	api.HandleFunc("/listings", h.ListListings).Methods(http.MethodGet)
	api.Handle("/listings", sellers(h.CreateListing)).Methods(http.MethodPost)
	api.HandleFunc("/listings/{id}", h.GetListing).Methods(http.MethodGet)
	api.Handle("/listings/{id}/close", sellers(h.CloseListing)).Methods(http.MethodPost)
	api.HandleFunc("/listings/{id}/bids", h.ListingBids).Methods(http.MethodGet)
	api.Handle("/listings/{id}/bids", buyers(h.PlaceBid)).Methods(http.MethodPost)
	api.Handle("/listings/{id}/accept", sellers(h.AcceptHighestBid)).Methods(http.MethodPost)
	api.Handle("/bids/{id}", buyers(h.CancelBid)).Methods(http.MethodDelete)
	api.Handle("/me/bids", buyers(h.MyBids)).Methods(http.MethodGet)

	api.Handle("/cart", buyers(h.GetCart)).Methods(http.MethodGet)
	api.Handle("/cart/items", buyers(h.AddToCart)).Methods(http.MethodPost)
	api.Handle("/cart/items/{listingID}", buyers(h.RemoveFromCart)).Methods(http.MethodDelete)
	api.Handle("/cart/checkout", buyers(h.Checkout)).Methods(http.MethodPost)

	api.HandleFunc("/orders", h.ListOrders).Methods(http.MethodGet)
	api.HandleFunc("/orders/{id}/cancel", h.CancelOrder).Methods(http.MethodPost)
	api.Handle("/orders/{id}/accept", sellers(h.AcceptOrder)).Methods(http.MethodPost)
	api.Handle("/orders/{id}/status", sellers(h.AdvanceOrder)).Methods(http.MethodPost)

	api.HandleFunc("/notifications", h.ListNotifications).Methods(http.MethodGet)

	// Middleware
	router.Use(requestIDMiddleware)
	router.Use(loggingMiddleware(h.logger))

	c := cors.New(cors.Options{
		AllowedOrigins: h.corsOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", headerUserID, headerUserRole, headerRequestID},
	})
	return c.Handler(router)
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "api-gateway",
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

// ListNotifications returns the caller's notifications, newest first
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	limit := defaultNotificationLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "invalid_request", "limit must be a positive integer")
			return
		}
		limit = n
	}

	notifications, err := h.biddingService.Notifications(r.Context(), identityFrom(r).UserID, limit)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, nonNil(notifications))
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return false
	}
	return true
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// respondError sends an error response
func respondError(w http.ResponseWriter, statusCode int, code, details string) {
	respondJSON(w, statusCode, map[string]string{
		"error":   code,
		"details": details,
	})
}

// nonNil keeps empty lists encoded as [] rather than null
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
