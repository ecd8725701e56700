package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/alfredjeanlab/vesting/internal/api"
	"github.com/alfredjeanlab/vesting/internal/model"
)

// NewHTTPHandler returns an http.Handler with all routes registered.
// When authToken is non-empty, requests (except GET /v1/health) must include
// a valid Authorization: Bearer <token> header. Signed caller identities are
// checked against maxSkew.
func (s *VestingServer) NewHTTPHandler(authToken string, maxSkew time.Duration) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/health", s.handleHealth)
	mux.HandleFunc("POST /v1/config", s.handleInitializeConfig)
	mux.HandleFunc("GET /v1/config", s.handleGetConfig)
	mux.HandleFunc("POST /v1/config/hub", s.handleProposeHub)
	mux.HandleFunc("POST /v1/schedules", s.handleCreateSchedule)
	mux.HandleFunc("GET /v1/schedules", s.handleListSchedules)
	mux.HandleFunc("GET /v1/schedules/{id}", s.handleGetSchedule)
	mux.HandleFunc("DELETE /v1/schedules/{id}", s.handleCloseSchedule)
	mux.HandleFunc("GET /v1/schedules/{id}/release", s.handleGetRelease)
	mux.HandleFunc("GET /v1/schedules/{id}/events", s.handleGetEvents)
	mux.HandleFunc("POST /v1/crank", s.handleCrank)
	mux.HandleFunc("POST /v1/accounts", s.handleOpenAccount)
	mux.HandleFunc("GET /v1/accounts/{address}", s.handleGetAccount)
	mux.HandleFunc("GET /v1/events/stream", s.handleEventStream)

	var h http.Handler = mux
	h = IdentityMiddleware(maxSkew, s.now, h)
	h = AuthMiddleware(authToken, h)
	return s.logRequests(h)
}

// handleHealth handles GET /v1/health.
func (s *VestingServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, api.HealthResponse{Status: "ok"})
}

// statusRecorder captures the response status for request logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush keeps SSE streaming working through the recorder.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

func (s *VestingServer) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		level := slog.LevelInfo
		if rec.status >= 500 {
			level = slog.LevelError
		}
		s.logger.Log(r.Context(), level, "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

// decodeJSON decodes the request body into v, rejecting unknown fields.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return inputError("invalid JSON body: " + err.Error())
	}
	return nil
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, api.ErrorResponse{Error: message})
}

// writeErr maps err to a status and writes it with its domain code.
func writeErr(w http.ResponseWriter, err error) {
	writeJSON(w, httpStatus(err), api.ErrorResponse{Error: err.Error(), Code: model.CodeOf(err)})
}
