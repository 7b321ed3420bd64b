package httpapi

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/ent0n29/avatar-tour/internal/backend"
	"github.com/ent0n29/avatar-tour/internal/credential"
	"github.com/ent0n29/avatar-tour/internal/persona"
)

const (
	codeConfiguration = 4001
	codeBadRequest    = 4000
	codeUpstream      = 5002
)

type sessionTokenRequest struct {
	PersonaConfig *persona.Config `json:"personaConfig"`
	Scene         string          `json:"scene"`
}

// handleSessionToken issues a provider session token with the server-side key
// so that the key never reaches the browser. Responses use the backend
// envelope.
func (s *Server) handleSessionToken(w http.ResponseWriter, r *http.Request) {
	if s.tokenIssuer == nil {
		respondEnvelope(w, http.StatusServiceUnavailable, codeConfiguration, nil, "session token proxy not configured")
		return
	}

	var req sessionTokenRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondEnvelope(w, http.StatusBadRequest, codeBadRequest, nil, err.Error())
		return
	}

	p, err := s.tokenPersona(req)
	if err != nil {
		respondEnvelope(w, http.StatusBadRequest, codeBadRequest, nil, err.Error())
		return
	}

	cred, err := s.tokenIssuer.Fetch(r.Context(), p)
	if err != nil {
		var cfgErr *credential.ConfigurationError
		if errors.As(err, &cfgErr) {
			log.Printf("httpapi: session token proxy misconfigured: %v", err)
			respondEnvelope(w, http.StatusServiceUnavailable, codeConfiguration, nil, err.Error())
			return
		}
		status := http.StatusBadGateway
		var credErr *credential.CredentialError
		if errors.As(err, &credErr) && credErr.StatusCode >= 400 && credErr.StatusCode < 500 {
			status = credErr.StatusCode
		}
		respondEnvelope(w, status, codeUpstream, nil, err.Error())
		return
	}
	s.metrics.ObserveSessionEvent("token_issued", s.sessions.ActiveCount())
	respondEnvelope(w, http.StatusOK, backend.CodeSuccess, backend.TokenResponse{SessionToken: cred.Token}, "success")
}

func (s *Server) tokenPersona(req sessionTokenRequest) (persona.Config, error) {
	if req.PersonaConfig != nil {
		if err := req.PersonaConfig.Validate(); err != nil {
			return persona.Config{}, err
		}
		return *req.PersonaConfig, nil
	}
	if s.catalog == nil {
		return persona.Config{}, errors.New("personaConfig is required")
	}
	scene := strings.TrimSpace(req.Scene)
	if scene == "" {
		scene = defaultScene
	}
	_, p, err := s.catalog.Resolve(scene)
	return p, err
}

func respondEnvelope(w http.ResponseWriter, status, code int, data any, message string) {
	env := backend.Envelope{Code: code, Message: message}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "encode_failed", err.Error())
			return
		}
		env.Data = raw
	}
	respondJSON(w, status, env)
}
