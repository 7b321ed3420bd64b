package httpapi

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ent0n29/avatar-tour/internal/persona"
	"github.com/ent0n29/avatar-tour/internal/session"
)

const defaultScene = "intro"

type startResponse struct {
	session.Snapshot
	Started bool `json:"started"`
}

type stopRequest struct {
	// GraceMS bounds this stop below the configured grace, e.g. 1500 before a
	// back navigation.
	GraceMS int64 `json:"grace_ms"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req session.CreateRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Scene) == "" {
		req.Scene = defaultScene
	}

	controller, scene, err := s.builder.Build(req.Scene)
	if err != nil {
		if errors.Is(err, persona.ErrUnknownScene) {
			respondError(w, http.StatusNotFound, "scene_not_found", err.Error())
			return
		}
		log.Printf("httpapi: build controller for scene %q failed: %v", req.Scene, err)
		respondError(w, http.StatusInternalServerError, "controller_unavailable", err.Error())
		return
	}

	snap := s.sessions.Register(r.Context(), strings.TrimSpace(req.VisitorID), scene.Name, controller)
	if req.AutoStart && controller.Start() {
		snap, _ = s.sessions.Snapshot(controller.ID())
	}
	s.metrics.ObserveSessionEvent("created", s.sessions.ActiveCount())
	respondJSON(w, http.StatusCreated, snap)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.sessions.Touch(id); err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	snap, err := s.sessions.Snapshot(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	controller, err := s.sessions.Get(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	_ = s.sessions.Touch(id)

	started := controller.Start()
	if started {
		s.metrics.ObserveSessionEvent("started", s.sessions.ActiveCount())
	}
	snap, err := s.sessions.Snapshot(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	respondJSON(w, http.StatusAccepted, startResponse{Snapshot: snap, Started: started})
}

func (s *Server) handleStopSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req stopRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if req.GraceMS < 0 {
		respondError(w, http.StatusBadRequest, "invalid_request", "grace_ms must be >= 0")
		return
	}

	ctx, cancel := stopContext(r.Context(), req.GraceMS)
	defer cancel()
	snap, err := s.sessions.Stop(ctx, id)
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	s.metrics.ObserveSessionEvent("stopped", s.sessions.ActiveCount())
	respondJSON(w, http.StatusOK, snap)
}

func (s *Server) handleRemoveSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	snap, err := s.sessions.Remove(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	s.metrics.ObserveSessionEvent("removed", s.sessions.ActiveCount())
	respondJSON(w, http.StatusOK, snap)
}

// stopContext keeps the stop alive when the request goes away and applies the
// caller's grace, if any.
func stopContext(parent context.Context, graceMS int64) (context.Context, context.CancelFunc) {
	ctx := context.WithoutCancel(parent)
	if graceMS <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, time.Duration(graceMS)*time.Millisecond)
}
