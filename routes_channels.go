package main

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"ooo-sentinel/lease"
)

// ChannelHandler exposes the scheduler-triggered "ensure every channel is
// healthy" path over HTTP, for external schedulers that prefer an endpoint
// over the in-process sweep.
type ChannelHandler struct {
	leases *lease.Manager
}

func NewChannelHandler(leases *lease.Manager) *ChannelHandler {
	return &ChannelHandler{leases: leases}
}

// RegisterRoutes registers channel management routes.
func (h *ChannelHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/channels/ensure", h.handleEnsure).Methods("POST")
}

func (h *ChannelHandler) handleEnsure(w http.ResponseWriter, r *http.Request) {
	results := h.leases.EnsureAll(r.Context())

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string][]lease.Result{"results": results})
}
