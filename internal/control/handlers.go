package control

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/goodtune/worktimer/internal/api"
	"github.com/goodtune/worktimer/internal/ledger"
	"github.com/goodtune/worktimer/internal/timer"
)

// maxUploadSize bounds the multipart form including the selfie.
const maxUploadSize = 10 << 20

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code"`
}

// StatusRequest is the body of POST /session/status.
type StatusRequest struct {
	State  string `json:"state"`
	Reason string `json:"reason,omitempty"`
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(data); err != nil {
		http.Error(w, `{"error":"Internal Server Error","message":"Failed to encode response"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_, _ = w.Write(buf.Bytes())
}

// writeSnapshot writes snap and records its attendance id for the request log.
func writeSnapshot(w http.ResponseWriter, statusCode int, snap timer.Snapshot) {
	if rw, ok := w.(*responseWriter); ok {
		rw.attendanceID = snap.AttendanceID
	}
	writeJSON(w, statusCode, snap)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	})
}

// writeServiceError maps session errors to HTTP status codes.
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	var statusErr *api.StatusError
	switch {
	case errors.Is(err, timer.ErrNoSession):
		writeError(w, http.StatusNotFound, "No open session")
	case errors.Is(err, timer.ErrAlreadyCheckedIn):
		writeError(w, http.StatusConflict, "Already checked in")
	case errors.Is(err, timer.ErrToggleInFlight):
		writeError(w, http.StatusConflict, "A status change is already in progress")
	case errors.Is(err, timer.ErrSessionClosed):
		writeError(w, http.StatusConflict, "Session closed")
	case errors.Is(err, ledger.ErrInvalidStatus):
		writeError(w, http.StatusBadRequest, "State must be online or offline")
	case errors.Is(err, api.ErrStatusRejected):
		writeError(w, http.StatusBadGateway, err.Error())
	case errors.As(err, &statusErr):
		writeError(w, http.StatusBadGateway, statusErr.Message)
	default:
		s.logger.Error().Err(err).Msg("Session operation failed")
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"session": s.service.Snapshot().Status,
	})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	writeSnapshot(w, http.StatusOK, s.service.Snapshot())
}

func (s *Server) handleCheckIn(w http.ResponseWriter, r *http.Request) {
	if err := parseForm(r); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	location, err := parseLocation(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	req := api.CheckInRequest{
		UserID:       r.FormValue("user_id"),
		Location:     location,
		WorkLocation: api.WorkLocation(r.FormValue("work_location")),
	}

	if file, header, err := r.FormFile("selfie"); err == nil {
		defer file.Close()
		req.Selfie = file
		req.SelfieName = header.Filename
	}

	snap, err := s.service.CheckIn(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	writeSnapshot(w, http.StatusCreated, snap)
}

func (s *Server) handleCheckOut(w http.ResponseWriter, r *http.Request) {
	if err := parseForm(r); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	location, err := parseLocation(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	req := api.CheckOutRequest{
		Location:    location,
		WorkSummary: r.FormValue("work_summary"),
	}

	if file, header, err := r.FormFile("selfie"); err == nil {
		defer file.Close()
		req.Selfie = file
		req.SelfieName = header.Filename
	}

	snap, err := s.service.CheckOut(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	writeSnapshot(w, http.StatusOK, snap)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	var req StatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	target, err := ledger.ParseStatus(req.State)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	snap, err := s.service.SetStatus(r.Context(), target, req.Reason)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	writeSnapshot(w, http.StatusOK, snap)
}

// handleEvents streams snapshots as server-sent events until the client disconnects.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "Streaming unsupported")
		return
	}

	events := make(chan timer.Snapshot, 16)
	unsubscribe := s.service.Subscribe(func(snap timer.Snapshot) {
		select {
		case events <- snap:
		default:
			// Slow reader; the next tick carries fresher figures.
		}
	})
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if err := writeEvent(w, s.service.Snapshot()); err != nil {
		return
	}
	flusher.Flush()

	for {
		select {
		case snap := <-events:
			if err := writeEvent(w, snap); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

func writeEvent(w http.ResponseWriter, snap timer.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: snapshot\ndata: %s\n\n", data)
	return err
}

func (s *Server) handleRoster(w http.ResponseWriter, r *http.Request) {
	if s.roster == nil {
		writeError(w, http.StatusNotFound, "Team roster is disabled")
		return
	}

	members := s.roster.List()
	response := map[string]interface{}{
		"members": members,
		"count":   len(members),
		"online":  s.roster.OnlineCount(),
	}
	if last := s.roster.LastRefresh(); !last.IsZero() {
		response["last_refresh"] = last.Format(time.RFC3339)
	}

	writeJSON(w, http.StatusOK, response)
}

func parseForm(r *http.Request) error {
	err := r.ParseMultipartForm(maxUploadSize)
	if err == nil || errors.Is(err, http.ErrNotMultipart) {
		return nil
	}
	return fmt.Errorf("invalid form: %w", err)
}

func parseLocation(r *http.Request) (api.Geolocation, error) {
	var loc api.Geolocation
	if v := r.FormValue("latitude"); v != "" {
		lat, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return loc, fmt.Errorf("invalid latitude: %s", v)
		}
		loc.Latitude = lat
	}
	if v := r.FormValue("longitude"); v != "" {
		lng, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return loc, fmt.Errorf("invalid longitude: %s", v)
		}
		loc.Longitude = lng
	}
	return loc, nil
}
