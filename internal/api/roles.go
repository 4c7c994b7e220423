package api

import (
	"net/http"

	"github.com/MrWong99/podscript/pkg/script"
)

// roleRequest is the body of role create and update calls. Nil fields are
// left at their default or current value.
type roleRequest struct {
	Name           *string         `json:"name"`
	Type           script.RoleType `json:"type"`
	WordsPerMinute *int            `json:"wordsPerMinute"`
	Duration       *float64        `json:"duration"`
	Color          *string         `json:"color"`
}

// check rejects variant fields that do not belong to t.
func (req roleRequest) check(t script.RoleType) error {
	if req.WordsPerMinute != nil && t != script.RoleSpeaker {
		return badRequest("wordsPerMinute only applies to speakers")
	}
	if req.Color != nil && t != script.RoleSpeaker {
		return badRequest("color only applies to speakers")
	}
	if req.Duration != nil && t != script.RoleSound {
		return badRequest("duration only applies to sound effects")
	}
	return nil
}

func (s *Server) handleListRoles(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	if sess == nil {
		return
	}
	m := sess.Script()
	var roles []script.Role
	switch t := script.RoleType(r.URL.Query().Get("type")); t {
	case "":
		roles = m.Roles()
	case script.RoleSpeaker:
		roles = m.Speakers()
	case script.RoleSound:
		roles = m.SoundEffects()
	default:
		s.writeError(w, r, badRequest("unknown role type %q", t))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"roles": roleRecords(roles)})
}

func (s *Server) handleAddRole(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	if sess == nil {
		return
	}
	var req roleRequest
	if err := readJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Type == "" {
		req.Type = script.RoleSpeaker
	}
	if !req.Type.IsValid() {
		s.writeError(w, r, badRequest("unknown role type %q", req.Type))
		return
	}
	if err := req.check(req.Type); err != nil {
		s.writeError(w, r, err)
		return
	}

	name := ""
	if req.Name != nil {
		name = *req.Name
	}
	d := s.sessions.Defaults()
	var role *script.Role
	switch req.Type {
	case script.RoleSpeaker:
		wpm := d.WordsPerMinute
		if req.WordsPerMinute != nil {
			wpm = *req.WordsPerMinute
		}
		color := ""
		if req.Color != nil {
			color = *req.Color
		}
		role = script.NewSpeaker(name, wpm, color)
	case script.RoleSound:
		secs := d.SoundDuration
		if req.Duration != nil {
			secs = *req.Duration
		}
		role = script.NewSoundEffect(name, secs)
	}

	if err := sess.Script().AddRole(role); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, script.RoleToRecord(role))
}

func (s *Server) handleGetRole(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	if sess == nil {
		return
	}
	role, ok := sess.Script().FindRole(r.PathValue("roleID"))
	if !ok {
		s.writeError(w, r, script.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"role":     script.RoleToRecord(&role),
		"replicas": replicaRecords(sess.Script().ReplicasByRole(role.ID)),
	})
}

func (s *Server) handleUpdateRole(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	if sess == nil {
		return
	}
	var req roleRequest
	if err := readJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	m := sess.Script()
	role, ok := m.FindRole(r.PathValue("roleID"))
	if !ok {
		s.writeError(w, r, script.ErrNotFound)
		return
	}
	if req.Type != "" && req.Type != role.Type {
		s.writeError(w, r, badRequest("role type cannot change from %q to %q", role.Type, req.Type))
		return
	}
	if err := req.check(role.Type); err != nil {
		s.writeError(w, r, err)
		return
	}

	if req.Name != nil {
		role = role.WithName(*req.Name)
	}
	if req.WordsPerMinute != nil {
		role = role.WithWordsPerMinute(*req.WordsPerMinute)
	}
	if req.Color != nil {
		role = role.WithColor(*req.Color)
	}
	if req.Duration != nil {
		role = role.WithDuration(*req.Duration)
	}
	if err := m.UpdateRole(role); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, script.RoleToRecord(&role))
}

// handleRemoveRole deletes a role together with every replica attributed
// to it.
func (s *Server) handleRemoveRole(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	if sess == nil {
		return
	}
	m := sess.Script()
	id := r.PathValue("roleID")
	before := m.ReplicaCount()
	if !m.RemoveRole(id) {
		s.writeError(w, r, script.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"removed":          id,
		"cascadedReplicas": before - m.ReplicaCount(),
		"statistics":       m.Statistics(),
	})
}
