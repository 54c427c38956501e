// Package server exposes the orchestrator over HTTP: message submission,
// conversation history, health and metrics endpoints. Guard-rail attributes
// arrive as headers; the server derives the guard context and never lets an
// unscoped request reach the orchestrator.
package server

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/obsmesh/obsmesh/core"
	"github.com/obsmesh/obsmesh/logging"
	"github.com/obsmesh/obsmesh/orchestrator"
)

// Guard-rail attribute headers.
const (
	HeaderOrgID    = "X-Org-ID"
	HeaderRoleID   = "X-Role-ID"
	HeaderUserID   = "X-User-ID"
	HeaderDeviceID = "X-Device-ID"
)

// Options configures a Server.
type Options struct {
	Logger   logging.Logger
	Registry *prometheus.Registry // serves /metrics when set
}

// Server is the HTTP front of one orchestrator.
type Server struct {
	orch   *orchestrator.Orchestrator
	store  core.ConversationStore
	router *mux.Router
	opts   Options
}

// New creates the server and its routes.
func New(orch *orchestrator.Orchestrator, store core.ConversationStore, optFns ...func(o *Options)) *Server {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	s := &Server{orch: orch, store: store, router: mux.NewRouter(), opts: opts}
	s.routes()
	return s
}

// WithLogger sets the server logger.
func WithLogger(logger logging.Logger) func(o *Options) {
	return func(o *Options) { o.Logger = logger }
}

// WithMetricsRegistry enables the /metrics endpoint.
func WithMetricsRegistry(reg *prometheus.Registry) func(o *Options) {
	return func(o *Options) { o.Registry = reg }
}

func (s *Server) routes() {
	s.router.HandleFunc("/v1/conversations/{id}/messages", s.handleMessage).Methods(http.MethodPost)
	s.router.HandleFunc("/v1/conversations/{id}/turns", s.handleTurns).Methods(http.MethodGet)
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	if s.opts.Registry != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(s.opts.Registry, promhttp.HandlerOpts{}))
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type messageRequest struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// deriveGuard builds the guard-rail context from the identity headers and the
// conversation id in the path. Every conversation-scoped endpoint goes
// through it; a request without full identity never reaches a handler body.
func deriveGuard(r *http.Request) (core.GuardRailContext, error) {
	return core.Derive(map[string]string{
		core.AttrOrgID:          r.Header.Get(HeaderOrgID),
		core.AttrRoleID:         r.Header.Get(HeaderRoleID),
		core.AttrUserID:         r.Header.Get(HeaderUserID),
		core.AttrConversationID: mux.Vars(r)["id"],
		core.AttrDeviceID:       r.Header.Get(HeaderDeviceID),
	})
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	guard, err := deriveGuard(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Message == "" {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "body must be a JSON object with a non-empty message"})
		return
	}

	result, err := s.orch.Run(r.Context(), guard, req.Message)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleTurns(w http.ResponseWriter, r *http.Request) {
	guard, err := deriveGuard(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	conv, err := s.store.Get(guard.ConversationID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	// History is served only to the tenant that owns the conversation.
	if conv.OrgID != "" && conv.OrgID != guard.OrgID {
		s.writeError(w, core.NewError(core.KindGuardRailViolation,
			"conversation %q belongs to another org", guard.ConversationID))
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"conversation_id": guard.ConversationID, "turns": conv.History()})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	kind := core.KindOf(err)
	resp := errorResponse{Error: err.Error(), Kind: string(kind)}
	s.opts.Logger.Warn("request failed", "kind", string(kind), "error", err)
	s.writeJSON(w, statusForKind(kind), resp)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.opts.Logger.Error("encode response failed", "error", err)
	}
}

// statusForKind maps the error taxonomy onto HTTP statuses.
func statusForKind(kind core.ErrorKind) int {
	switch kind {
	case core.KindMissingAttribute, core.KindInvalidArguments:
		return http.StatusBadRequest
	case core.KindGuardRailViolation, core.KindUnauthorizedHandoff:
		return http.StatusForbidden
	case core.KindConversationBusy:
		return http.StatusConflict
	case core.KindRetrievalUnavailable, core.KindModelUnavailable:
		return http.StatusServiceUnavailable
	case core.KindIterationLimitExceeded:
		return http.StatusTooManyRequests
	case core.KindCancelled:
		return 499 // client closed request
	default:
		return http.StatusInternalServerError
	}
}
