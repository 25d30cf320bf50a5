package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/yonda-yonda/tle-with-mapbox/internal/session"
	"github.com/yonda-yonda/tle-with-mapbox/internal/tle"
)

// MalformedMessage is the only user-facing error text for bad TLE input.
const MalformedMessage = "フォーマットが正しくありません。"

// maxBodyBytes bounds the create request; a TLE is two 69-character lines.
const maxBodyBytes = 16 << 10

type createSessionRequest struct {
	TLE string `json:"tle"`
}

type createSessionResponse struct {
	ID            string  `json:"id"`
	Name          string  `json:"name,omitempty"`
	CatalogNumber int     `json:"catalog_number"`
	LineLayer     string  `json:"line_layer"`
	PointLayer    string  `json:"point_layer"`
	Rotation      string  `json:"rotation"`
	PeriodSeconds float64 `json:"period_seconds"`
	LimitSeconds  float64 `json:"limit_seconds"`
}

// createSessionHandler is the "add" action: validate, start animating, report
// the new overlay ids. Malformed input only produces the fixed message.
// POST /api/v1/sessions {"tle": "..."}
func createSessionHandler(logger *slog.Logger, sessions *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createSessionRequest
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, MalformedMessage)
			return
		}

		s, err := sessions.Add(r.Context(), req.TLE)
		if errors.Is(err, tle.ErrMalformed) {
			logger.Debug("rejected TLE input", "error", err)
			writeError(w, http.StatusBadRequest, MalformedMessage)
			return
		}
		if err != nil {
			logger.Error("session create failed", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		e := s.Elements()
		writeJSON(w, http.StatusCreated, createSessionResponse{
			ID:            s.ID(),
			Name:          e.Name,
			CatalogNumber: e.CatalogNumber,
			LineLayer:     s.LineLayer(),
			PointLayer:    s.PointLayer(),
			Rotation:      s.Rotation().String(),
			PeriodSeconds: s.Period().Seconds(),
			LimitSeconds:  s.Limit().Seconds(),
		})
	}
}

// GET /api/v1/sessions
func listSessionsHandler(sessions *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list := sessions.List()
		infos := make([]session.Info, len(list))
		for i, s := range list {
			infos[i] = s.Info()
		}
		writeJSON(w, http.StatusOK, map[string]any{"sessions": infos})
	}
}

// GET /api/v1/sessions/{id}
func getSessionHandler(sessions *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := sessions.Get(r.PathValue("id"))
		if err != nil {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		writeJSON(w, http.StatusOK, s.Info())
	}
}

// DELETE /api/v1/sessions/{id}
func deleteSessionHandler(sessions *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := sessions.Remove(r.PathValue("id")); err != nil {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// trackHandler returns the most recently drawn segments as GeoJSON.
// GET /api/v1/sessions/{id}/track
func trackHandler(sessions *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := sessions.Get(r.PathValue("id"))
		if err != nil {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		fc := s.Track()
		if fc == nil {
			writeError(w, http.StatusServiceUnavailable, "track not ready")
			return
		}
		w.Header().Set("Content-Type", "application/geo+json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(fc)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
