package services

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/dpup/prefab/logging"

	"github.com/saferoute/navigator/internal/lib/geo"
	"github.com/saferoute/navigator/internal/lib/navigation"
)

// HTTPHandler exposes the navigation service as a JSON API under
// /api/v1/navigation/sessions:
//
//	POST /api/v1/navigation/sessions                          start a session
//	GET  /api/v1/navigation/sessions/{id}                     session snapshot
//	POST /api/v1/navigation/sessions/{id}/position            apply a position sample
//	POST /api/v1/navigation/sessions/{id}/end                 end the session
//	POST /api/v1/navigation/sessions/{id}/narrated            acknowledge narration
//	POST /api/v1/navigation/sessions/{id}/alert/dismiss       dismiss the risk alert
//	POST /api/v1/navigation/sessions/{id}/recalculation/ack   acknowledge recalculation
//	POST /api/v1/navigation/sessions/{id}/alternative/accept  install traffic alternative
//	POST /api/v1/navigation/sessions/{id}/alternative/reject  discard traffic alternative
func (s *NavigationService) HTTPHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rest, ok := strings.CutPrefix(r.URL.Path, "/api/v1/navigation/sessions")
		if !ok {
			http.NotFound(w, r)
			return
		}
		rest = strings.Trim(rest, "/")

		if rest == "" {
			if r.Method != http.MethodPost {
				writeError(w, http.StatusMethodNotAllowed, "method not allowed")
				return
			}
			s.handleStartSession(w, r)
			return
		}

		parts := strings.Split(rest, "/")
		sessionID := parts[0]
		action := strings.Join(parts[1:], "/")

		switch {
		case action == "" && r.Method == http.MethodGet:
			s.handleGetSession(w, r, sessionID)
		case action == "position" && r.Method == http.MethodPost:
			s.handleUpdatePosition(w, r, sessionID)
		case action == "end" && r.Method == http.MethodPost:
			s.handleAction(w, r, func() error { return s.EndSession(r.Context(), sessionID) })
		case action == "narrated" && r.Method == http.MethodPost:
			s.handleAction(w, r, func() error { return s.MarkNarrated(sessionID) })
		case action == "alert/dismiss" && r.Method == http.MethodPost:
			s.handleAction(w, r, func() error { return s.DismissAlert(sessionID) })
		case action == "recalculation/ack" && r.Method == http.MethodPost:
			s.handleAction(w, r, func() error { return s.AcknowledgeRecalculation(sessionID) })
		case action == "alternative/accept" && r.Method == http.MethodPost:
			s.handleAction(w, r, func() error { return s.AcceptAlternativeRoute(sessionID) })
		case action == "alternative/reject" && r.Method == http.MethodPost:
			s.handleAction(w, r, func() error { return s.RejectAlternativeRoute(sessionID) })
		default:
			http.NotFound(w, r)
		}
	}
}

type startSessionRequest struct {
	Origin      geo.Point             `json:"origin"`
	Destination geo.Point             `json:"destination"`
	Preference  navigation.Preference `json:"preference,omitempty"`
}

type positionRequest struct {
	Position geo.Point `json:"position"`
	SpeedKmh float64   `json:"speed_kmh"`
}

func (s *NavigationService) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	snapshot, err := s.StartSession(r.Context(), req.Origin, req.Destination, req.Preference)
	if err != nil {
		if isMisuseError(err) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		logging.Errorw(r.Context(), "Failed to start session", "error", err)
		writeError(w, http.StatusBadGateway, "route calculation unavailable")
		return
	}

	writeJSON(w, http.StatusCreated, snapshot)
}

func (s *NavigationService) handleGetSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	snapshot, err := s.GetSession(sessionID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (s *NavigationService) handleUpdatePosition(w http.ResponseWriter, r *http.Request, sessionID string) {
	var req positionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	update, err := s.UpdatePosition(r.Context(), sessionID, req.Position, req.SpeedKmh)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, update)
}

func (s *NavigationService) handleAction(w http.ResponseWriter, r *http.Request, action func() error) {
	if err := action(); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeServiceError maps service errors to HTTP statuses: unknown
// sessions are 404, state-machine misuse is 409, everything else 500.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrSessionNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case isMisuseError(err):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func isMisuseError(err error) bool {
	return errors.Is(err, navigation.ErrSessionActive) ||
		errors.Is(err, navigation.ErrSessionNotActive) ||
		errors.Is(err, navigation.ErrSessionEnded) ||
		errors.Is(err, navigation.ErrNoInstructions) ||
		errors.Is(err, navigation.ErrNoAlternative)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
