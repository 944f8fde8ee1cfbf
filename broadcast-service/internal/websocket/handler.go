package websocket

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aaronwang/agreeconnect/shared/logging"
	"github.com/aaronwang/agreeconnect/shared/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Browsers connect from the storefront origin; identity is not carried here
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// StateReader reads the mirrored display state of a listing
type StateReader interface {
	ListingState(ctx context.Context, listingID string) (*models.ListingState, error)
}

// Handler handles WebSocket connections
type Handler struct {
	manager *Manager
	states  StateReader
	logger  logging.Logger
}

// NewHandler creates a new WebSocket handler
func NewHandler(manager *Manager, states StateReader, logger logging.Logger) *Handler {
	return &Handler{
		manager: manager,
		states:  states,
		logger:  logger,
	}
}

// SetupRoutes configures WebSocket routes
func (h *Handler) SetupRoutes() *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/ws/listings/{id}", h.HandleWebSocket)
	router.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)
	router.HandleFunc("/stats/listings/{id}", h.GetStats).Methods(http.MethodGet)
	router.HandleFunc("/state/listings/{id}", h.GetState).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	return router
}

type connectedMessage struct {
	Type      string `json:"type"`
	ListingID string `json:"listing_id"`
	ClientID  string `json:"client_id"`
}

type snapshotMessage struct {
	Type  string               `json:"type"`
	State *models.ListingState `json:"state"`
}

// HandleWebSocket joins the caller to a listing's room. The first frames are
// a greeting and, when one has been mirrored, the listing's current state.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	listingID := mux.Vars(r)["id"]

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket_upgrade_failed", "err", err)
		return
	}

	client := &Client{
		ID:        uuid.New().String(),
		ListingID: listingID,
		Conn:      conn,
		Send:      make(chan []byte, sendBufferSize),
	}

	// queued before registration so the greeting precedes any event
	welcome, _ := json.Marshal(&connectedMessage{Type: "connected", ListingID: listingID, ClientID: client.ID})
	client.Send <- welcome
	if state := h.mirroredState(r.Context(), listingID); state != nil {
		snapshot, _ := json.Marshal(&snapshotMessage{Type: "snapshot", State: state})
		client.Send <- snapshot
	}

	if err := h.manager.RegisterClient(r.Context(), client); err != nil {
		h.logger.Error("websocket_register_failed", "listing", listingID, "err", err)
		conn.Close()
		return
	}
	go client.readPump(h.manager)
}

func (h *Handler) mirroredState(ctx context.Context, listingID string) *models.ListingState {
	if h.states == nil {
		return nil
	}
	state, err := h.states.ListingState(ctx, listingID)
	if err != nil {
		h.logger.Error("state_read_failed", "listing", listingID, "err", err)
		return nil
	}
	return state
}

// HealthCheck returns service health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "broadcast-service",
	})
}

// GetStats returns the number of clients watching a listing
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	listingID := mux.Vars(r)["id"]
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"listing_id":  listingID,
		"subscribers": h.manager.SubscriberCount(listingID),
	})
}

// GetState returns the mirrored display state of a listing
func (h *Handler) GetState(w http.ResponseWriter, r *http.Request) {
	listingID := mux.Vars(r)["id"]
	if h.states == nil {
		respondJSON(w, http.StatusNotFound, map[string]string{"error": "listing_not_found"})
		return
	}

	state, err := h.states.ListingState(r.Context(), listingID)
	switch {
	case err != nil:
		h.logger.Error("state_read_failed", "listing", listingID, "err", err)
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal_error"})
	case state == nil:
		respondJSON(w, http.StatusNotFound, map[string]string{"error": "listing_not_found"})
	default:
		respondJSON(w, http.StatusOK, state)
	}
}

func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}
