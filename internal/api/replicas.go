package api

import (
	"net/http"

	"github.com/MrWong99/podscript/pkg/script"
)

// replicaRequest is the body of replica create and update calls. A nil
// RoleID keeps the current attribution; "" unassigns. A nil Index appends.
type replicaRequest struct {
	Text   *string `json:"text"`
	RoleID *string `json:"roleId"`
	Index  *int    `json:"index"`
}

type moveRequest struct {
	Index *int `json:"index"`
}

// checkRole rejects attribution to a role that does not exist.
func checkRole(m *script.Manager, roleID *string) error {
	if roleID == nil || *roleID == "" {
		return nil
	}
	if _, ok := m.FindRole(*roleID); !ok {
		return badRequest("unknown role %q", *roleID)
	}
	return nil
}

func (s *Server) handleListReplicas(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	if sess == nil {
		return
	}
	m := sess.Script()
	var replicas []script.Replica
	if roleID := r.URL.Query().Get("role"); roleID != "" {
		replicas = m.ReplicasByRole(roleID)
	} else {
		replicas = m.Replicas()
	}
	writeJSON(w, http.StatusOK, map[string]any{"replicas": replicaRecords(replicas)})
}

func (s *Server) handleAddReplica(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	if sess == nil {
		return
	}
	var req replicaRequest
	if err := readJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	m := sess.Script()
	if err := checkRole(m, req.RoleID); err != nil {
		s.writeError(w, r, err)
		return
	}

	var text, roleID string
	if req.Text != nil {
		text = *req.Text
	}
	if req.RoleID != nil {
		roleID = *req.RoleID
	}
	rep := script.NewReplica(text, roleID)
	index := -1
	if req.Index != nil {
		if *req.Index < 0 {
			s.writeError(w, r, badRequest("index must not be negative"))
			return
		}
		index = *req.Index
	}
	if err := m.InsertReplica(rep, index); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, script.ReplicaToRecord(rep))
}

func (s *Server) handleGetReplica(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	if sess == nil {
		return
	}
	rep, ok := sess.Script().FindReplica(r.PathValue("replicaID"))
	if !ok {
		s.writeError(w, r, script.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, script.ReplicaToRecord(&rep))
}

func (s *Server) handleUpdateReplica(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	if sess == nil {
		return
	}
	var req replicaRequest
	if err := readJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Index != nil {
		s.writeError(w, r, badRequest("use the move endpoint to reorder replicas"))
		return
	}
	m := sess.Script()
	id := r.PathValue("replicaID")
	if err := checkRole(m, req.RoleID); err != nil {
		s.writeError(w, r, err)
		return
	}
	rep, ok := m.UpdateReplica(id, req.Text, req.RoleID)
	if !ok {
		s.writeError(w, r, script.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, script.ReplicaToRecord(&rep))
}

func (s *Server) handleRemoveReplica(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	if sess == nil {
		return
	}
	if !sess.Script().RemoveReplica(r.PathValue("replicaID")) {
		s.writeError(w, r, script.ErrNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleMoveReplica moves a replica to a new position. An out-of-range
// index is a client error and leaves the order untouched.
func (s *Server) handleMoveReplica(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	if sess == nil {
		return
	}
	var req moveRequest
	if err := readJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Index == nil {
		s.writeError(w, r, badRequest("index is required"))
		return
	}
	m := sess.Script()
	id := r.PathValue("replicaID")
	if _, ok := m.FindReplica(id); !ok {
		s.writeError(w, r, script.ErrNotFound)
		return
	}
	if !m.MoveReplica(id, *req.Index) {
		s.writeError(w, r, badRequest("index %d out of range [0, %d)", *req.Index, m.ReplicaCount()))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"replicas": replicaRecords(m.Replicas())})
}
