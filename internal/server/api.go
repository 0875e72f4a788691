package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/planora/roadmap/internal/export"
	"github.com/planora/roadmap/internal/override"
	"github.com/planora/roadmap/internal/pipeline"
	"github.com/planora/roadmap/internal/store"
	"github.com/planora/roadmap/internal/types"
)

type errorResponse struct {
	Error      string               `json:"error"`
	Violations []override.Violation `json:"violations,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors onto HTTP statuses: missing rows are 404,
// busy sessions and stale versions 409, rejected overrides 422.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var verr *override.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Error: "validation failed", Violations: verr.Violations,
		})
	case errors.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, store.ErrVersionConflict), errors.Is(err, pipeline.ErrSessionBusy):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	default:
		s.logger.Printf("API error: %v", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var session types.RoadmapSession
	if err := json.NewDecoder(r.Body).Decode(&session); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON: " + err.Error()})
		return
	}
	if session.ID == "" {
		session.ID = types.NewID(types.PrefixSession)
	}
	session.Status = types.StatusDraft
	if err := s.store.CreateSession(r.Context(), &session); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, &session)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	filter := store.SessionFilter{
		Status: types.SessionStatus(r.URL.Query().Get("status")),
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid limit"})
			return
		}
		filter.Limit = n
	}
	sessions, err := s.store.ListSessions(r.Context(), filter)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if sessions == nil {
		sessions = []*types.RoadmapSession{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.store.GetSession(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.store.GetSession(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.store.DeleteSession(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.pipeline.Start(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"sessionId": id, "status": "started"})
}

// statusResponse is the polling surface: pipeline position plus the
// aggregate counters, without the full entity payload.
type statusResponse struct {
	SessionID       string              `json:"sessionId"`
	Status          types.SessionStatus `json:"status"`
	ProgressStep    int                 `json:"progressStep"`
	ProgressTotal   int                 `json:"progressTotal"`
	ProgressMessage string              `json:"progressMessage,omitempty"`
	ErrorMessage    string              `json:"errorMessage,omitempty"`
	HasCycles       bool                `json:"hasCycles"`
	CycleItems      []string            `json:"cycleItems,omitempty"`
	TotalItems      int                 `json:"totalItems"`
	TotalSprints    int                 `json:"totalSprints"`
	TotalThemes     int                 `json:"totalThemes"`
	TotalMilestones int                 `json:"totalMilestones"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	session, err := s.store.GetSession(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{
		SessionID:       session.ID,
		Status:          session.Status,
		ProgressStep:    session.ProgressStep,
		ProgressTotal:   session.ProgressTotal,
		ProgressMessage: session.ProgressMessage,
		ErrorMessage:    session.ErrorMessage,
		HasCycles:       session.HasCycles,
		CycleItems:      session.CycleItems,
		TotalItems:      session.TotalItems,
		TotalSprints:    session.TotalSprints,
		TotalThemes:     session.TotalThemes,
		TotalMilestones: session.TotalMilestones,
	})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !s.pipeline.Cancel(id) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "no active run for session " + id})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"sessionId": id, "status": "canceling"})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	snap, err := export.Load(r.Context(), s.store, id)
	if err != nil {
		s.writeError(w, err)
		return
	}

	var buf bytes.Buffer
	switch format := r.URL.Query().Get("format"); format {
	case "", "json":
		if err := export.WriteJSON(&buf, snap); err != nil {
			s.writeError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
	case "csv":
		if err := export.WriteCSV(&buf, snap); err != nil {
			s.writeError(w, err)
			return
		}
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.csv", id))
	default:
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "unknown format " + format})
		return
	}
	_, _ = w.Write(buf.Bytes())
}

// listHandler serves a child entity collection after confirming the session
// exists, so unknown sessions return 404 rather than an empty list.
func listHandler[T any](s *Server, list func(r *http.Request, sessionID string) ([]T, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if _, err := s.store.GetSession(r.Context(), id); err != nil {
			s.writeError(w, err)
			return
		}
		out, err := list(r, id)
		if err != nil {
			s.writeError(w, err)
			return
		}
		if out == nil {
			out = []T{}
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	listHandler(s, func(r *http.Request, id string) ([]*types.RoadmapItem, error) {
		return s.store.ListItems(r.Context(), id)
	})(w, r)
}

func (s *Server) handleListSegments(w http.ResponseWriter, r *http.Request) {
	listHandler(s, func(r *http.Request, id string) ([]*types.RoadmapItemSegment, error) {
		return s.store.ListSegmentsBySession(r.Context(), id)
	})(w, r)
}

func (s *Server) handleListDependencies(w http.ResponseWriter, r *http.Request) {
	listHandler(s, func(r *http.Request, id string) ([]*types.RoadmapDependency, error) {
		return s.store.ListDependencies(r.Context(), id)
	})(w, r)
}

func (s *Server) handleListThemes(w http.ResponseWriter, r *http.Request) {
	listHandler(s, func(r *http.Request, id string) ([]*types.RoadmapTheme, error) {
		return s.store.ListThemes(r.Context(), id)
	})(w, r)
}

func (s *Server) handleListMilestones(w http.ResponseWriter, r *http.Request) {
	listHandler(s, func(r *http.Request, id string) ([]*types.RoadmapMilestone, error) {
		return s.store.ListMilestones(r.Context(), id)
	})(w, r)
}

type overrideResponse struct {
	Segments []*types.RoadmapItemSegment `json:"segments"`
	Warnings []string                    `json:"warnings,omitempty"`
}

func (s *Server) writeOverrideResult(w http.ResponseWriter, status int, res *override.Result) {
	out := overrideResponse{Segments: res.Segments, Warnings: res.Warnings}
	if out.Segments == nil {
		out.Segments = []*types.RoadmapItemSegment{}
	}
	writeJSON(w, status, out)
}

func (s *Server) handleCreateSegment(w http.ResponseWriter, r *http.Request) {
	var seg types.RoadmapItemSegment
	if err := json.NewDecoder(r.Body).Decode(&seg); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON: " + err.Error()})
		return
	}
	res, err := s.overrides.CreateSegment(r.Context(), r.PathValue("id"), &seg)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeOverrideResult(w, http.StatusCreated, res)
}

func (s *Server) handleUpdateSegment(w http.ResponseWriter, r *http.Request) {
	var seg types.RoadmapItemSegment
	if err := json.NewDecoder(r.Body).Decode(&seg); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON: " + err.Error()})
		return
	}
	seg.ID = r.PathValue("segmentID")
	res, err := s.overrides.UpdateSegment(r.Context(), r.PathValue("id"), &seg)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeOverrideResult(w, http.StatusOK, res)
}

func (s *Server) handleDeleteSegment(w http.ResponseWriter, r *http.Request) {
	version := 0
	if v := r.URL.Query().Get("version"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid version"})
			return
		}
		version = n
	}
	_, err := s.overrides.DeleteSegment(r.Context(), r.PathValue("id"), r.PathValue("segmentID"), version)
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// bulkRequest is the wire shape of an atomic segment edit batch.
type bulkRequest struct {
	Create []*types.RoadmapItemSegment `json:"create,omitempty"`
	Update []*types.RoadmapItemSegment `json:"update,omitempty"`
	Delete []struct {
		ID      string `json:"id"`
		Version int    `json:"version"`
	} `json:"delete,omitempty"`
}

func (s *Server) handleBulkSegments(w http.ResponseWriter, r *http.Request) {
	var req bulkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON: " + err.Error()})
		return
	}

	var edits []override.Edit
	for _, seg := range req.Create {
		edits = append(edits, override.Edit{Create: seg})
	}
	for _, seg := range req.Update {
		edits = append(edits, override.Edit{Update: seg})
	}
	for _, del := range req.Delete {
		edits = append(edits, override.Edit{Delete: del.ID, DeleteVersion: del.Version})
	}

	res, err := s.overrides.Apply(r.Context(), r.PathValue("id"), edits)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeOverrideResult(w, http.StatusOK, res)
}
