package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/MrWong99/podscript/internal/api"
	"github.com/MrWong99/podscript/internal/config"
	"github.com/MrWong99/podscript/internal/session"
	"github.com/MrWong99/podscript/internal/store"
	"github.com/MrWong99/podscript/pkg/script"
)

type fixture struct {
	sm *session.Manager
	h  http.Handler
}

func newFixture(t *testing.T, st store.Store) *fixture {
	t.Helper()
	sm := session.NewManager(session.Config{
		Store:  st,
		Script: config.ScriptConfig{DefaultWordsPerMinute: 120, DefaultSoundDuration: 5},
	})
	t.Cleanup(func() { _ = sm.CloseAll(context.Background()) })
	return &fixture{sm: sm, h: api.New(sm).Handler()}
}

// do sends a request with an optional JSON body and decodes a JSON
// response into out when out is non-nil.
func (f *fixture) do(t *testing.T, method, path string, body any, out any) int {
	t.Helper()
	var rd *bytes.Reader
	switch b := body.(type) {
	case nil:
		rd = bytes.NewReader(nil)
	case string:
		rd = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	rec := httptest.NewRecorder()
	f.h.ServeHTTP(rec, req)

	if out != nil && rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			t.Fatalf("%s %s: decode %q: %v", method, path, rec.Body.String(), err)
		}
	}
	return rec.Code
}

func (f *fixture) mustDo(t *testing.T, method, path string, body any, want int, out any) {
	t.Helper()
	if got := f.do(t, method, path, body, out); got != want {
		t.Fatalf("%s %s = %d, want %d", method, path, got, want)
	}
}

func (f *fixture) createSession(t *testing.T, title string) string {
	t.Helper()
	var info session.Info
	f.mustDo(t, "POST", "/api/sessions", map[string]string{"title": title}, http.StatusCreated, &info)
	if info.ID == "" {
		t.Fatal("created session has no id")
	}
	return info.ID
}

type statsBody struct {
	Statistics script.Statistics       `json:"statistics"`
	Roles      []script.RoleStatistics `json:"roles"`
}

func (f *fixture) stats(t *testing.T, id string) statsBody {
	t.Helper()
	var st statsBody
	f.mustDo(t, "GET", "/api/sessions/"+id+"/stats", nil, http.StatusOK, &st)
	return st
}

func TestSessions(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	id := f.createSession(t, "  Pilot  ")
	f.createSession(t, "")

	var list struct {
		Sessions []session.Info `json:"sessions"`
	}
	f.mustDo(t, "GET", "/api/sessions", nil, http.StatusOK, &list)
	if len(list.Sessions) != 2 {
		t.Fatalf("listed %d sessions, want 2", len(list.Sessions))
	}

	var detail struct {
		session.Info
		Roles    []script.RoleRecord    `json:"roles"`
		Replicas []script.ReplicaRecord `json:"replicas"`
	}
	f.mustDo(t, "GET", "/api/sessions/"+id, nil, http.StatusOK, &detail)
	if detail.Title != "Pilot" || detail.Roles == nil || detail.Replicas == nil {
		t.Errorf("detail = %+v", detail)
	}

	var info session.Info
	f.mustDo(t, "PATCH", "/api/sessions/"+id, map[string]string{"title": "Episode 1"}, http.StatusOK, &info)
	if info.Title != "Episode 1" {
		t.Errorf("renamed title = %q", info.Title)
	}

	f.mustDo(t, "DELETE", "/api/sessions/"+id, nil, http.StatusNoContent, nil)
	f.mustDo(t, "GET", "/api/sessions/"+id, nil, http.StatusNotFound, nil)
	f.mustDo(t, "DELETE", "/api/sessions/"+id, nil, http.StatusNotFound, nil)
	f.mustDo(t, "POST", "/api/sessions", "{not json", http.StatusBadRequest, nil)
}

func TestRolesAndReplicas(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	id := f.createSession(t, "")
	base := "/api/sessions/" + id

	var host script.RoleRecord
	f.mustDo(t, "POST", base+"/roles", map[string]any{"name": "Host", "color": "#336699"}, http.StatusCreated, &host)
	if host.Type != script.RoleSpeaker || host.WordsPerMinute == nil || *host.WordsPerMinute != 120 {
		t.Fatalf("speaker = %+v, want default 120 wpm", host)
	}
	var jingle script.RoleRecord
	f.mustDo(t, "POST", base+"/roles", map[string]any{"name": "Jingle", "type": "sound", "duration": 30}, http.StatusCreated, &jingle)
	if jingle.Duration == nil || *jingle.Duration != 30 {
		t.Fatalf("sound = %+v", jingle)
	}

	f.mustDo(t, "POST", base+"/roles", map[string]any{"type": "narrator"}, http.StatusBadRequest, nil)
	f.mustDo(t, "POST", base+"/roles", map[string]any{"type": "sound", "wordsPerMinute": 100}, http.StatusBadRequest, nil)

	var roles struct {
		Roles []script.RoleRecord `json:"roles"`
	}
	f.mustDo(t, "GET", base+"/roles?type=sound", nil, http.StatusOK, &roles)
	if len(roles.Roles) != 1 || roles.Roles[0].ID != jingle.ID {
		t.Errorf("sound roles = %+v", roles.Roles)
	}
	f.mustDo(t, "GET", base+"/roles?type=bogus", nil, http.StatusBadRequest, nil)

	var line, cue, note script.ReplicaRecord
	f.mustDo(t, "POST", base+"/replicas", map[string]any{"text": "one two three four", "roleId": host.ID}, http.StatusCreated, &line)
	f.mustDo(t, "POST", base+"/replicas", map[string]any{"text": "", "roleId": jingle.ID}, http.StatusCreated, &cue)
	f.mustDo(t, "POST", base+"/replicas", map[string]any{"text": "cold open", "index": 0}, http.StatusCreated, &note)
	if note.RoleID != nil {
		t.Errorf("unassigned replica roleId = %v, want null", *note.RoleID)
	}
	f.mustDo(t, "POST", base+"/replicas", map[string]any{"text": "x", "roleId": "nobody"}, http.StatusBadRequest, nil)

	st := f.stats(t, id)
	if st.Statistics.TotalWords != 4 || st.Statistics.TotalDurationFormatted != "0:32" {
		t.Errorf("stats = %+v, want 4 words and 0:32", st.Statistics)
	}
	if len(st.Roles) != 2 || st.Roles[0].Words != 4 || st.Roles[1].ReplicaCount != 1 {
		t.Errorf("role stats = %+v", st.Roles)
	}

	var updated script.RoleRecord
	f.mustDo(t, "PATCH", base+"/roles/"+host.ID, map[string]any{"wordsPerMinute": 60}, http.StatusOK, &updated)
	if *updated.WordsPerMinute != 60 || updated.Name != "Host" {
		t.Errorf("updated role = %+v", updated)
	}
	if got := f.stats(t, id).Statistics.TotalDurationFormatted; got != "0:34" {
		t.Errorf("duration after rate change = %q, want 0:34", got)
	}
	f.mustDo(t, "PATCH", base+"/roles/"+host.ID, map[string]any{"type": "sound"}, http.StatusBadRequest, nil)
	f.mustDo(t, "PATCH", base+"/roles/missing", map[string]any{"name": "x"}, http.StatusNotFound, nil)

	var edited script.ReplicaRecord
	f.mustDo(t, "PATCH", base+"/replicas/"+note.ID, map[string]any{"text": "a b", "roleId": host.ID}, http.StatusOK, &edited)
	if edited.WordCount != 2 || edited.RoleID == nil || *edited.RoleID != host.ID {
		t.Errorf("edited replica = %+v", edited)
	}
	f.mustDo(t, "PATCH", base+"/replicas/"+note.ID, map[string]any{"roleId": ""}, http.StatusOK, &edited)
	if edited.RoleID != nil {
		t.Errorf("unassign left roleId %v", *edited.RoleID)
	}

	var order struct {
		Replicas []script.ReplicaRecord `json:"replicas"`
	}
	f.mustDo(t, "POST", base+"/replicas/"+note.ID+"/move", map[string]any{"index": 2}, http.StatusOK, &order)
	if len(order.Replicas) != 3 || order.Replicas[2].ID != note.ID || order.Replicas[0].ID != line.ID {
		t.Errorf("order after move = %+v", order.Replicas)
	}
	f.mustDo(t, "POST", base+"/replicas/"+note.ID+"/move", map[string]any{"index": 3}, http.StatusBadRequest, nil)
	f.mustDo(t, "POST", base+"/replicas/missing/move", map[string]any{"index": 0}, http.StatusNotFound, nil)
	f.mustDo(t, "POST", base+"/replicas/"+note.ID+"/move", map[string]any{}, http.StatusBadRequest, nil)

	var removed struct {
		Cascaded int `json:"cascadedReplicas"`
	}
	f.mustDo(t, "DELETE", base+"/roles/"+host.ID, nil, http.StatusOK, &removed)
	if removed.Cascaded != 1 {
		t.Errorf("cascaded = %d, want 1", removed.Cascaded)
	}
	f.mustDo(t, "GET", base+"/replicas/"+line.ID, nil, http.StatusNotFound, nil)
	f.mustDo(t, "DELETE", base+"/roles/"+host.ID, nil, http.StatusNotFound, nil)

	f.mustDo(t, "DELETE", base+"/replicas/"+cue.ID, nil, http.StatusNoContent, nil)
	f.mustDo(t, "DELETE", base+"/replicas/"+cue.ID, nil, http.StatusNotFound, nil)

	f.mustDo(t, "DELETE", base+"/script", nil, http.StatusNoContent, nil)
	if st := f.stats(t, id).Statistics; st.RoleCount != 0 || st.ReplicaCount != 0 || st.TotalDurationFormatted != "0:00" {
		t.Errorf("stats after clear = %+v", st)
	}

	f.mustDo(t, "GET", "/api/sessions/missing/roles", nil, http.StatusNotFound, nil)
}

func TestUpdateReplica_SingleChange(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	id := f.createSession(t, "")
	base := "/api/sessions/" + id

	var host script.RoleRecord
	f.mustDo(t, "POST", base+"/roles", map[string]any{"name": "Host"}, http.StatusCreated, &host)
	var line script.ReplicaRecord
	f.mustDo(t, "POST", base+"/replicas", map[string]any{"text": "hello"}, http.StatusCreated, &line)

	sess, err := f.sm.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	var calls atomic.Int32
	sess.Script().OnUpdate(func() { calls.Add(1) })

	var edited script.ReplicaRecord
	f.mustDo(t, "PATCH", base+"/replicas/"+line.ID, map[string]any{"text": "hello there", "roleId": host.ID}, http.StatusOK, &edited)
	if edited.WordCount != 2 || edited.RoleID == nil || *edited.RoleID != host.ID {
		t.Errorf("edited replica = %+v", edited)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("script changed %d times for one PATCH, want 1", n)
	}

	f.mustDo(t, "PATCH", base+"/replicas/missing", map[string]any{"text": "x"}, http.StatusNotFound, nil)
	f.mustDo(t, "PATCH", base+"/replicas/"+line.ID, map[string]any{"roleId": "nobody"}, http.StatusBadRequest, nil)
	if n := calls.Load(); n != 1 {
		t.Errorf("rejected PATCHes changed the script; %d changes", n)
	}
}

func TestExportImport(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	src := f.createSession(t, "Source")
	base := "/api/sessions/" + src

	var host script.RoleRecord
	f.mustDo(t, "POST", base+"/roles", map[string]any{"name": "Host"}, http.StatusCreated, &host)
	f.mustDo(t, "POST", base+"/replicas", map[string]any{"text": "welcome to the show", "roleId": host.ID}, http.StatusCreated, nil)

	req := httptest.NewRequest("GET", base+"/export", nil)
	rec := httptest.NewRecorder()
	f.h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("export = %d", rec.Code)
	}
	exported := rec.Body.String()

	dst := f.createSession(t, "")
	var info session.Info
	f.mustDo(t, "POST", "/api/sessions/"+dst+"/import", exported, http.StatusOK, &info)
	if info.Title != "Source" || info.Stats != f.stats(t, src).Statistics {
		t.Errorf("imported info = %+v", info)
	}

	req = httptest.NewRequest("GET", base+"/export?format=yaml", nil)
	rec = httptest.NewRecorder()
	f.h.ServeHTTP(rec, req)
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/yaml") {
		t.Errorf("yaml Content-Type = %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "welcome to the show") {
		t.Errorf("yaml export lacks the line:\n%s", rec.Body.String())
	}
	yamlDoc := rec.Body.String()

	fromYAML := f.createSession(t, "")
	f.mustDo(t, "POST", "/api/sessions/"+fromYAML+"/import?format=yaml", yamlDoc, http.StatusOK, &info)
	if info.Stats.TotalWords != 4 {
		t.Errorf("yaml import stats = %+v", info.Stats)
	}

	var textRes struct {
		Import struct {
			ReplicasAdded int      `json:"replicasAdded"`
			RolesCreated  []string `json:"rolesCreated"`
		} `json:"import"`
		Statistics script.Statistics `json:"statistics"`
	}
	f.mustDo(t, "POST", base+"/import?format=text", "HOST: and we are back\nGUEST: thanks\n", http.StatusOK, &textRes)
	if textRes.Import.ReplicasAdded != 2 || len(textRes.Import.RolesCreated) != 1 {
		t.Errorf("text import = %+v", textRes.Import)
	}
	if textRes.Statistics.ReplicaCount != 3 || textRes.Statistics.RoleCount != 2 {
		t.Errorf("stats after text import = %+v", textRes.Statistics)
	}

	f.mustDo(t, "POST", base+"/import", `{"roles": []}`, http.StatusBadRequest, nil)
	f.mustDo(t, "POST", base+"/import?format=docx", "", http.StatusBadRequest, nil)
	f.mustDo(t, "GET", base+"/export?format=pdf", nil, http.StatusBadRequest, nil)
	if got := f.stats(t, src).Statistics.ReplicaCount; got != 3 {
		t.Errorf("failed imports changed the script: %d replicas", got)
	}
}

func TestSnapshots(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("with store", func(t *testing.T) {
		t.Parallel()
		st := store.NewMemoryStore()
		f := newFixture(t, st)
		id := f.createSession(t, "Stored")
		f.mustDo(t, "POST", "/api/sessions/"+id+"/roles", map[string]any{"name": "Host"}, http.StatusCreated, nil)
		f.mustDo(t, "POST", "/api/sessions/"+id+"/save", nil, http.StatusOK, nil)

		var list struct {
			Snapshots []store.Entry `json:"snapshots"`
		}
		f.mustDo(t, "GET", "/api/snapshots", nil, http.StatusOK, &list)
		if len(list.Snapshots) != 1 || list.Snapshots[0].ID != id || list.Snapshots[0].Title != "Stored" {
			t.Fatalf("snapshots = %+v", list.Snapshots)
		}

		f.mustDo(t, "DELETE", "/api/sessions/"+id, nil, http.StatusNoContent, nil)
		var info session.Info
		f.mustDo(t, "POST", "/api/snapshots/"+id+"/open", nil, http.StatusOK, &info)
		if info.ID != id || info.Stats.RoleCount != 1 {
			t.Errorf("reopened = %+v", info)
		}
		f.mustDo(t, "POST", "/api/snapshots/nope/open", nil, http.StatusNotFound, nil)

		f.mustDo(t, "DELETE", "/api/snapshots/"+id, nil, http.StatusNoContent, nil)
		if _, err := st.Load(ctx, id); err == nil {
			t.Error("snapshot survived delete")
		}
		f.mustDo(t, "GET", "/api/sessions/"+id, nil, http.StatusNotFound, nil)
	})

	t.Run("without store", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, nil)
		id := f.createSession(t, "")
		f.mustDo(t, "POST", "/api/sessions/"+id+"/save", nil, http.StatusNotImplemented, nil)

		var list struct {
			Snapshots []store.Entry `json:"snapshots"`
		}
		f.mustDo(t, "GET", "/api/snapshots", nil, http.StatusOK, &list)
		if list.Snapshots == nil || len(list.Snapshots) != 0 {
			t.Errorf("snapshots = %+v, want empty list", list.Snapshots)
		}
	})
}

func TestReadJSON_RejectsOversizedBody(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	big := `{"title":"` + strings.Repeat("x", 2<<20) + `"}`
	f.mustDo(t, "POST", "/api/sessions", big, http.StatusRequestEntityTooLarge, nil)
}
