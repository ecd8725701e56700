package server

import (
	"net/http"

	"github.com/alfredjeanlab/vesting/internal/api"
)

// handleInitializeConfig handles POST /v1/config.
func (s *VestingServer) handleInitializeConfig(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req api.InitializeConfigRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	cfg, err := s.initializeConfig(r.Context(), caller, &req)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, cfg)
}

// handleGetConfig handles GET /v1/config.
func (s *VestingServer) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.engine.Config(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// handleProposeHub handles POST /v1/config/hub. The same call proposes a
// new hub and, once the timelock has passed, confirms it.
func (s *VestingServer) handleProposeHub(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req api.ProposeHubRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	res, err := s.engine.ProposeOrConfirmHub(r.Context(), caller, req.Address)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
