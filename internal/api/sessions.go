package api

import (
	"net/http"
	"strings"

	"github.com/MrWong99/podscript/internal/session"
	"github.com/MrWong99/podscript/internal/store"
	"github.com/MrWong99/podscript/pkg/script"
)

// sessionDetail is a session's metadata together with its whole script.
type sessionDetail struct {
	session.Info
	Roles    []script.RoleRecord    `json:"roles"`
	Replicas []script.ReplicaRecord `json:"replicas"`
}

type sessionRequest struct {
	Title *string `json:"title"`
}

func (s *Server) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"sessions": s.sessions.List()})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := readJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	title := ""
	if req.Title != nil {
		title = strings.TrimSpace(*req.Title)
	}
	sess := s.sessions.Create(r.Context(), title)
	writeJSON(w, http.StatusCreated, sess.Info())
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	if sess == nil {
		return
	}
	m := sess.Script()
	writeJSON(w, http.StatusOK, sessionDetail{
		Info:     sess.Info(),
		Roles:    roleRecords(m.Roles()),
		Replicas: replicaRecords(m.Replicas()),
	})
}

func (s *Server) handleUpdateSession(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	if sess == nil {
		return
	}
	var req sessionRequest
	if err := readJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Title != nil {
		sess.SetTitle(strings.TrimSpace(*req.Title))
	}
	writeJSON(w, http.StatusOK, sess.Info())
}

// handleCloseSession closes an open session. Its stored snapshot is kept.
func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Close(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSaveSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.sessions.Save(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	sess, err := s.sessions.Get(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Info())
}

func (s *Server) handleListSnapshots(w http.ResponseWriter, r *http.Request) {
	st := s.sessions.Store()
	if st == nil {
		writeJSON(w, http.StatusOK, map[string]any{"snapshots": []store.Entry{}})
		return
	}
	entries, err := st.List(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if entries == nil {
		entries = []store.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"snapshots": entries})
}

func (s *Server) handleOpenSnapshot(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Open(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Info())
}

// handleDeleteSnapshot removes a stored snapshot and closes its session if
// it is open.
func (s *Server) handleDeleteSnapshot(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Delete(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
