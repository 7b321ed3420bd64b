package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/ent0n29/avatar-tour/internal/avatar"
	"github.com/ent0n29/avatar-tour/internal/config"
	"github.com/ent0n29/avatar-tour/internal/credential"
	"github.com/ent0n29/avatar-tour/internal/observability"
	"github.com/ent0n29/avatar-tour/internal/persona"
	"github.com/ent0n29/avatar-tour/internal/protocol"
	"github.com/ent0n29/avatar-tour/internal/session"
)

// ControllerBuilder builds an unstarted controller for a scene.
type ControllerBuilder interface {
	Build(scene string) (*avatar.Controller, persona.Scene, error)
}

type Deps struct {
	Sessions *session.Manager
	Builder  ControllerBuilder
	Catalog  *persona.Catalog
	// TokenIssuer backs the session-token proxy. Nil disables the route.
	TokenIssuer credential.Fetcher
	Metrics     *observability.Metrics
}

type Server struct {
	cfg         config.Config
	sessions    *session.Manager
	builder     ControllerBuilder
	catalog     *persona.Catalog
	tokenIssuer credential.Fetcher
	metrics     *observability.Metrics
	upgrader    websocket.Upgrader
}

func New(cfg config.Config, deps Deps) *Server {
	return &Server{
		cfg:         cfg,
		sessions:    deps.Sessions,
		builder:     deps.Builder,
		catalog:     deps.Catalog,
		tokenIssuer: deps.TokenIssuer,
		metrics:     deps.Metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only the microsite's own origin may drive a visitor's avatar.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Get("/v1/scenes", s.handleListScenes)
	r.Route("/v1/avatar/sessions", func(r chi.Router) {
		r.Post("/", s.handleCreateSession)
		r.Get("/{id}", s.handleGetSession)
		r.Delete("/{id}", s.handleRemoveSession)
		r.Post("/{id}/start", s.handleStartSession)
		r.Post("/{id}/stop", s.handleStopSession)
		r.Get("/{id}/events", s.handleSessionEvents)
	})

	r.Post("/api/avatar/session-token", s.handleSessionToken)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"provider": s.cfg.ResolvedProvider(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	if s.sessions == nil || s.builder == nil {
		respondError(w, http.StatusServiceUnavailable, "not_ready", "session registry not configured")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":          "ready",
		"provider":        s.cfg.ResolvedProvider(),
		"active_sessions": s.sessions.ActiveCount(),
		"token_proxy":     s.tokenIssuer != nil,
	})
}

func (s *Server) handleListScenes(w http.ResponseWriter, _ *http.Request) {
	if s.catalog == nil {
		respondJSON(w, http.StatusOK, map[string]any{"scenes": []persona.Scene{}})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"scenes": s.catalog.Scenes()})
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

func messageTypeOf(v any) (protocol.MessageType, bool) {
	switch m := v.(type) {
	case protocol.ClientControl:
		return m.Type, true
	case protocol.StatusChanged:
		return m.Type, true
	case protocol.NavigateToDemo:
		return m.Type, true
	case protocol.Pong:
		return m.Type, true
	case protocol.ErrorEvent:
		return m.Type, true
	default:
		return "", false
	}
}
