package mcp

import (
	"context"
	"errors"
	"fmt"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/podscript/pkg/script"
)

// Tool arguments and results. Optional arguments carry omitempty so that
// the inferred input schema does not require them.

type sessionArgs struct {
	Session string `json:"session" jsonschema:"id of an open script session"`
}

type listRolesArgs struct {
	Session string `json:"session" jsonschema:"id of an open script session"`
	Type    string `json:"type,omitempty" jsonschema:"only list roles of this type: speaker or sound"`
}

type listReplicasArgs struct {
	Session string `json:"session" jsonschema:"id of an open script session"`
	Role    string `json:"role,omitempty" jsonschema:"only list replicas of this role id or name"`
}

type addSpeakerArgs struct {
	Session        string `json:"session" jsonschema:"id of an open script session"`
	Name           string `json:"name" jsonschema:"display name of the speaker"`
	WordsPerMinute int    `json:"words_per_minute,omitempty" jsonschema:"speaking rate between 50 and 500; the session default when omitted"`
	Color          string `json:"color,omitempty" jsonschema:"display color hint such as #336699"`
}

type addSoundEffectArgs struct {
	Session  string   `json:"session" jsonschema:"id of an open script session"`
	Name     string   `json:"name" jsonschema:"display name of the sound effect"`
	Duration *float64 `json:"duration,omitempty" jsonschema:"length in seconds; the session default when omitted"`
}

type addReplicaArgs struct {
	Session string `json:"session" jsonschema:"id of an open script session"`
	Text    string `json:"text" jsonschema:"the line as spoken, or a note for a sound cue"`
	Role    string `json:"role,omitempty" jsonschema:"role id or name the line belongs to; unassigned when omitted"`
	Index   *int   `json:"index,omitempty" jsonschema:"zero-based position to insert at; appended when omitted"`
}

type moveReplicaArgs struct {
	Session   string `json:"session" jsonschema:"id of an open script session"`
	ReplicaID string `json:"replica_id" jsonschema:"id of the replica to move"`
	Index     int    `json:"index" jsonschema:"zero-based target position"`
}

type removeRoleArgs struct {
	Session string `json:"session" jsonschema:"id of an open script session"`
	RoleID  string `json:"role_id" jsonschema:"id of the role to remove together with its replicas"`
}

type removeReplicaArgs struct {
	Session   string `json:"session" jsonschema:"id of an open script session"`
	ReplicaID string `json:"replica_id" jsonschema:"id of the replica to remove"`
}

type sessionOut struct {
	ID         string            `json:"id"`
	Title      string            `json:"title,omitempty"`
	Statistics script.Statistics `json:"statistics"`
}

type sessionsResult struct {
	Sessions []sessionOut `json:"sessions"`
}

type roleOut struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Type           string  `json:"type"`
	WordsPerMinute int     `json:"words_per_minute,omitempty"`
	Color          string  `json:"color,omitempty"`
	Duration       float64 `json:"duration,omitempty"`
}

type rolesResult struct {
	Roles []roleOut `json:"roles"`
}

type replicaOut struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	RoleID    string `json:"role_id,omitempty"`
	WordCount int    `json:"word_count"`
}

type replicasResult struct {
	Replicas []replicaOut `json:"replicas"`
}

type removeResult struct {
	Removed          bool `json:"removed"`
	CascadedReplicas int  `json:"cascaded_replicas"`
}

type statisticsResult struct {
	Statistics script.Statistics       `json:"statistics"`
	Roles      []script.RoleStatistics `json:"roles"`
}

func toRoleOut(r script.Role) roleOut {
	out := roleOut{ID: r.ID, Name: r.Name, Type: string(r.Type)}
	switch r.Type {
	case script.RoleSpeaker:
		out.WordsPerMinute = r.WordsPerMinute
		out.Color = r.Color
	case script.RoleSound:
		out.Duration = r.Duration
	}
	return out
}

func toReplicaOut(r script.Replica) replicaOut {
	return replicaOut{ID: r.ID, Text: r.Text, RoleID: r.RoleID, WordCount: r.WordCount}
}

func toReplicasResult(rs []script.Replica) replicasResult {
	out := replicasResult{Replicas: make([]replicaOut, len(rs))}
	for i, r := range rs {
		out.Replicas[i] = toReplicaOut(r)
	}
	return out
}

func (s *Server) registerTools() {
	addTool(s, &mcpsdk.Tool{
		Name:        "list_sessions",
		Description: "List the open script sessions with their statistics.",
	}, s.listSessions)
	addTool(s, &mcpsdk.Tool{
		Name:        "list_roles",
		Description: "List the speakers and sound effects of a script in order.",
	}, s.listRoles)
	addTool(s, &mcpsdk.Tool{
		Name:        "list_replicas",
		Description: "List the replicas (lines) of a script in order, optionally only those of one role.",
	}, s.listReplicas)
	addTool(s, &mcpsdk.Tool{
		Name:        "add_speaker",
		Description: "Add a speaker role to a script.",
	}, s.addSpeaker)
	addTool(s, &mcpsdk.Tool{
		Name:        "add_sound_effect",
		Description: "Add a sound effect role with a fixed duration to a script.",
	}, s.addSoundEffect)
	addTool(s, &mcpsdk.Tool{
		Name:        "add_replica",
		Description: "Add a line to a script. The role may be given by id or by name; names are matched by sound.",
	}, s.addReplica)
	addTool(s, &mcpsdk.Tool{
		Name:        "move_replica",
		Description: "Move a replica to another position in the script.",
	}, s.moveReplica)
	addTool(s, &mcpsdk.Tool{
		Name:        "remove_role",
		Description: "Remove a role and every replica attributed to it.",
	}, s.removeRole)
	addTool(s, &mcpsdk.Tool{
		Name:        "remove_replica",
		Description: "Remove a single replica.",
	}, s.removeReplica)
	addTool(s, &mcpsdk.Tool{
		Name:        "script_statistics",
		Description: "Word count, estimated runtime and per-role breakdown of a script.",
	}, s.scriptStatistics)
}

func (s *Server) script(id string) (*script.Manager, error) {
	if id == "" {
		return nil, errors.New("session is required")
	}
	sess, err := s.sessions.Get(id)
	if err != nil {
		return nil, err
	}
	return sess.Script(), nil
}

// resolveRole finds a role by id first and by name second.
func (s *Server) resolveRole(m *script.Manager, ref string) (script.Role, error) {
	if r, ok := m.FindRole(ref); ok {
		return r, nil
	}
	if r, _, ok := s.matcher.Resolve(ref, m.Roles()); ok {
		return r, nil
	}
	return script.Role{}, fmt.Errorf("%w: no role matches %q", script.ErrNotFound, ref)
}

func (s *Server) listSessions(_ context.Context, _ struct{}) (sessionsResult, error) {
	infos := s.sessions.List()
	out := sessionsResult{Sessions: make([]sessionOut, len(infos))}
	for i, in := range infos {
		out.Sessions[i] = sessionOut{ID: in.ID, Title: in.Title, Statistics: in.Stats}
	}
	return out, nil
}

func (s *Server) listRoles(_ context.Context, in listRolesArgs) (rolesResult, error) {
	m, err := s.script(in.Session)
	if err != nil {
		return rolesResult{}, err
	}
	var roles []script.Role
	switch script.RoleType(in.Type) {
	case "":
		roles = m.Roles()
	case script.RoleSpeaker:
		roles = m.Speakers()
	case script.RoleSound:
		roles = m.SoundEffects()
	default:
		return rolesResult{}, fmt.Errorf("unknown role type %q", in.Type)
	}
	out := rolesResult{Roles: make([]roleOut, len(roles))}
	for i, r := range roles {
		out.Roles[i] = toRoleOut(r)
	}
	return out, nil
}

func (s *Server) listReplicas(_ context.Context, in listReplicasArgs) (replicasResult, error) {
	m, err := s.script(in.Session)
	if err != nil {
		return replicasResult{}, err
	}
	if in.Role == "" {
		return toReplicasResult(m.Replicas()), nil
	}
	role, err := s.resolveRole(m, in.Role)
	if err != nil {
		return replicasResult{}, err
	}
	return toReplicasResult(m.ReplicasByRole(role.ID)), nil
}

func (s *Server) addSpeaker(_ context.Context, in addSpeakerArgs) (roleOut, error) {
	m, err := s.script(in.Session)
	if err != nil {
		return roleOut{}, err
	}
	wpm := in.WordsPerMinute
	if wpm == 0 {
		wpm = s.sessions.Defaults().WordsPerMinute
	}
	role := script.NewSpeaker(in.Name, wpm, in.Color)
	if err := m.AddRole(role); err != nil {
		return roleOut{}, err
	}
	return toRoleOut(*role), nil
}

func (s *Server) addSoundEffect(_ context.Context, in addSoundEffectArgs) (roleOut, error) {
	m, err := s.script(in.Session)
	if err != nil {
		return roleOut{}, err
	}
	secs := s.sessions.Defaults().SoundDuration
	if in.Duration != nil {
		secs = *in.Duration
	}
	role := script.NewSoundEffect(in.Name, secs)
	if err := m.AddRole(role); err != nil {
		return roleOut{}, err
	}
	return toRoleOut(*role), nil
}

func (s *Server) addReplica(_ context.Context, in addReplicaArgs) (replicaOut, error) {
	m, err := s.script(in.Session)
	if err != nil {
		return replicaOut{}, err
	}
	roleID := ""
	if in.Role != "" {
		role, err := s.resolveRole(m, in.Role)
		if err != nil {
			return replicaOut{}, err
		}
		roleID = role.ID
	}
	index := -1
	if in.Index != nil {
		if *in.Index < 0 {
			return replicaOut{}, fmt.Errorf("index must not be negative, got %d", *in.Index)
		}
		index = *in.Index
	}
	rep := script.NewReplica(in.Text, roleID)
	if err := m.InsertReplica(rep, index); err != nil {
		return replicaOut{}, err
	}
	return toReplicaOut(*rep), nil
}

func (s *Server) moveReplica(_ context.Context, in moveReplicaArgs) (replicasResult, error) {
	m, err := s.script(in.Session)
	if err != nil {
		return replicasResult{}, err
	}
	if _, ok := m.FindReplica(in.ReplicaID); !ok {
		return replicasResult{}, fmt.Errorf("%w: replica %q", script.ErrNotFound, in.ReplicaID)
	}
	if !m.MoveReplica(in.ReplicaID, in.Index) {
		return replicasResult{}, fmt.Errorf("index %d out of range [0, %d)", in.Index, m.ReplicaCount())
	}
	return toReplicasResult(m.Replicas()), nil
}

func (s *Server) removeRole(_ context.Context, in removeRoleArgs) (removeResult, error) {
	m, err := s.script(in.Session)
	if err != nil {
		return removeResult{}, err
	}
	before := m.ReplicaCount()
	if !m.RemoveRole(in.RoleID) {
		return removeResult{}, nil
	}
	return removeResult{Removed: true, CascadedReplicas: before - m.ReplicaCount()}, nil
}

func (s *Server) removeReplica(_ context.Context, in removeReplicaArgs) (removeResult, error) {
	m, err := s.script(in.Session)
	if err != nil {
		return removeResult{}, err
	}
	return removeResult{Removed: m.RemoveReplica(in.ReplicaID)}, nil
}

func (s *Server) scriptStatistics(_ context.Context, in sessionArgs) (statisticsResult, error) {
	m, err := s.script(in.Session)
	if err != nil {
		return statisticsResult{}, err
	}
	return statisticsResult{Statistics: m.Statistics(), Roles: m.RoleStatistics()}, nil
}
