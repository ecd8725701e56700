package server

import (
	"net/http"
	"strconv"

	"github.com/gagliardetto/solana-go"

	"github.com/alfredjeanlab/vesting/internal/api"
	"github.com/alfredjeanlab/vesting/internal/model"
)

// scheduleID parses the {id} path value.
func scheduleID(r *http.Request) (uint64, error) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		return 0, inputError("invalid schedule id: " + r.PathValue("id"))
	}
	return id, nil
}

// handleCreateSchedule handles POST /v1/schedules.
func (s *VestingServer) handleCreateSchedule(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req api.CreateScheduleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	sched, err := s.engine.CreateSchedule(r.Context(), caller, req.ID, req.Params)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sched)
}

// handleListSchedules handles GET /v1/schedules.
func (s *VestingServer) handleListSchedules(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := api.ListSchedulesRequest{
		Routing:  model.Routing(q.Get("routing")),
		Category: model.SourceCategory(q.Get("category")),
	}
	if v := q.Get("mint"); v != "" {
		mint, err := solana.PublicKeyFromBase58(v)
		if err != nil {
			writeErr(w, inputError("invalid mint: "+v))
			return
		}
		req.Mint = mint
	}
	if v := q.Get("open"); v != "" {
		open, err := strconv.ParseBool(v)
		if err != nil {
			writeErr(w, inputError("invalid open flag: "+v))
			return
		}
		req.OpenOnly = open
	}
	for name, dst := range map[string]*int{"limit": &req.Limit, "offset": &req.Offset} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeErr(w, inputError("invalid "+name+": "+v))
			return
		}
		*dst = n
	}

	resp, err := s.listSchedules(r.Context(), &req)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleGetSchedule handles GET /v1/schedules/{id}.
func (s *VestingServer) handleGetSchedule(w http.ResponseWriter, r *http.Request) {
	id, err := scheduleID(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	sched, err := s.engine.Schedule(r.Context(), id)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sched)
}

// handleGetRelease handles GET /v1/schedules/{id}/release?at=.
func (s *VestingServer) handleGetRelease(w http.ResponseWriter, r *http.Request) {
	id, err := scheduleID(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	var at int64
	if v := r.URL.Query().Get("at"); v != "" {
		if at, err = strconv.ParseInt(v, 10, 64); err != nil {
			writeErr(w, inputError("invalid at: "+v))
			return
		}
	}
	rel, err := s.engine.Release(r.Context(), id, at)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rel)
}

// handleCloseSchedule handles DELETE /v1/schedules/{id}.
func (s *VestingServer) handleCloseSchedule(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	id, err := scheduleID(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	sched, err := s.engine.CloseSchedule(r.Context(), caller, id)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sched)
}

// handleGetEvents handles GET /v1/schedules/{id}/events.
func (s *VestingServer) handleGetEvents(w http.ResponseWriter, r *http.Request) {
	id, err := scheduleID(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	resp, err := s.events(r.Context(), id)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
