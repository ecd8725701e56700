package server

import (
	"net/http"

	"github.com/gagliardetto/solana-go"

	"github.com/alfredjeanlab/vesting/internal/api"
	"github.com/alfredjeanlab/vesting/internal/vesting"
)

// handleCrank handles POST /v1/crank. Anyone may crank.
func (s *VestingServer) handleCrank(w http.ResponseWriter, r *http.Request) {
	var req vesting.CrankRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	rep, err := s.engine.Crank(r.Context(), req)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// handleOpenAccount handles POST /v1/accounts.
func (s *VestingServer) handleOpenAccount(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req api.OpenAccountRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	acct, err := s.engine.OpenAccount(r.Context(), caller, req.Address, req.Mint, req.Owner, req.Deposit)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, acct)
}

// handleGetAccount handles GET /v1/accounts/{address}.
func (s *VestingServer) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	addr, err := solana.PublicKeyFromBase58(r.PathValue("address"))
	if err != nil {
		writeErr(w, inputError("invalid address: "+r.PathValue("address")))
		return
	}
	acct, err := s.engine.Account(r.Context(), addr)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}
