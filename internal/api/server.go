// Package api is the HTTP backend of the browser script editor.
//
// Every operation of a session's [script.Manager] is exposed as a JSON
// endpoint under /api/sessions/{id}. A WebSocket at
// /api/sessions/{id}/stream pushes the script statistics after every change.
// Stored snapshots are listed and reopened under /api/snapshots.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/MrWong99/podscript/internal/observe"
	"github.com/MrWong99/podscript/internal/resilience"
	"github.com/MrWong99/podscript/internal/session"
	"github.com/MrWong99/podscript/internal/store"
	"github.com/MrWong99/podscript/pkg/script"
)

const (
	// maxBodyBytes limits JSON request bodies.
	maxBodyBytes = 1 << 20

	// maxImportBytes limits script documents posted to the import endpoint.
	maxImportBytes = 8 << 20
)

// Server serves the editor API for the sessions of one [session.Manager].
type Server struct {
	sessions *session.Manager
	metrics  *observe.Metrics
	log      *slog.Logger
}

// Option configures a [Server].
type Option func(*Server)

// WithMetrics sets the metrics used for stream gauges. The default is
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithLogger sets the server's logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.log = l }
}

// New creates a Server over sm.
func New(sm *session.Manager, opts ...Option) *Server {
	s := &Server{sessions: sm}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	return s
}

// Register adds every API route to mux.
func (s *Server) Register(mux *http.ServeMux) {
	// Sessions
	mux.HandleFunc("GET /api/sessions", s.handleListSessions)
	mux.HandleFunc("POST /api/sessions", s.handleCreateSession)
	mux.HandleFunc("GET /api/sessions/{id}", s.handleGetSession)
	mux.HandleFunc("PATCH /api/sessions/{id}", s.handleUpdateSession)
	mux.HandleFunc("DELETE /api/sessions/{id}", s.handleCloseSession)
	mux.HandleFunc("POST /api/sessions/{id}/save", s.handleSaveSession)

	// Stored snapshots
	mux.HandleFunc("GET /api/snapshots", s.handleListSnapshots)
	mux.HandleFunc("POST /api/snapshots/{id}/open", s.handleOpenSnapshot)
	mux.HandleFunc("DELETE /api/snapshots/{id}", s.handleDeleteSnapshot)

	// Roles
	mux.HandleFunc("GET /api/sessions/{id}/roles", s.handleListRoles)
	mux.HandleFunc("POST /api/sessions/{id}/roles", s.handleAddRole)
	mux.HandleFunc("GET /api/sessions/{id}/roles/{roleID}", s.handleGetRole)
	mux.HandleFunc("PATCH /api/sessions/{id}/roles/{roleID}", s.handleUpdateRole)
	mux.HandleFunc("DELETE /api/sessions/{id}/roles/{roleID}", s.handleRemoveRole)

	// Replicas
	mux.HandleFunc("GET /api/sessions/{id}/replicas", s.handleListReplicas)
	mux.HandleFunc("POST /api/sessions/{id}/replicas", s.handleAddReplica)
	mux.HandleFunc("GET /api/sessions/{id}/replicas/{replicaID}", s.handleGetReplica)
	mux.HandleFunc("PATCH /api/sessions/{id}/replicas/{replicaID}", s.handleUpdateReplica)
	mux.HandleFunc("DELETE /api/sessions/{id}/replicas/{replicaID}", s.handleRemoveReplica)
	mux.HandleFunc("POST /api/sessions/{id}/replicas/{replicaID}/move", s.handleMoveReplica)

	// Whole script
	mux.HandleFunc("DELETE /api/sessions/{id}/script", s.handleClearScript)
	mux.HandleFunc("GET /api/sessions/{id}/stats", s.handleStats)
	mux.HandleFunc("GET /api/sessions/{id}/export", s.handleExport)
	mux.HandleFunc("POST /api/sessions/{id}/import", s.handleImport)
	mux.HandleFunc("GET /api/sessions/{id}/stream", s.handleStream)
}

// Handler returns a mux serving only the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.Register(mux)
	return mux
}

// session resolves the {id} path value. On failure it writes the error
// response and returns nil.
func (s *Server) session(w http.ResponseWriter, r *http.Request) *session.Session {
	sess, err := s.sessions.Get(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return nil
	}
	return sess
}

////////////////////////////////////////////////////////////////////////////////
// Helpers
////////////////////////////////////////////////////////////////////////////////

// errBadRequest marks client input errors that no sentinel covers.
var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

// statusOf maps domain errors to HTTP status codes.
func statusOf(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.Is(err, session.ErrNotFound),
		errors.Is(err, store.ErrNotFound),
		errors.Is(err, script.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, script.ErrDuplicateID):
		return http.StatusConflict
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, errBadRequest),
		errors.Is(err, script.ErrInvalidSnapshot),
		errors.Is(err, store.ErrInvalidID):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrNoStore):
		return http.StatusNotImplemented
	case errors.Is(err, resilience.ErrCircuitOpen):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		observe.Logger(r.Context()).Error("api request failed",
			"method", r.Method, "path", r.URL.Path, "err", err)
	}
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

func readJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return badRequest("empty request body")
	}
	defer r.Body.Close()

	b, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return badRequest("read request body: %v", err)
	}
	if len(b) > maxBodyBytes {
		return &http.MaxBytesError{Limit: maxBodyBytes}
	}
	if len(strings.TrimSpace(string(b))) == 0 {
		b = []byte("{}")
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return badRequest("invalid json: %v", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	b, err := json.Marshal(v)
	if err != nil {
		_, _ = w.Write([]byte(`{"error":"failed to marshal json"}`))
		return
	}
	_, _ = w.Write(append(b, '\n'))
}

func roleRecords(roles []script.Role) []script.RoleRecord {
	out := make([]script.RoleRecord, len(roles))
	for i := range roles {
		out[i] = script.RoleToRecord(&roles[i])
	}
	return out
}

func replicaRecords(replicas []script.Replica) []script.ReplicaRecord {
	out := make([]script.ReplicaRecord, len(replicas))
	for i := range replicas {
		out[i] = script.ReplicaToRecord(&replicas[i])
	}
	return out
}
