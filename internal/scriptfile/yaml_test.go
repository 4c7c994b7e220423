package scriptfile_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MrWong99/podscript/internal/scriptfile"
	"github.com/MrWong99/podscript/pkg/script"
)

const episodeYAML = `
title: "Episode 12: The Lighthouse"
roles:
  - name: Host
    type: speaker
    words_per_minute: 100
    color: "#3366cc"
  - name: Keeper
    type: speaker
  - name: Foghorn
    type: sound
    duration: 6
  - name: Waves
    type: sound
lines:
  - role: Host
    text: one two three four five six seven eight nine ten
  - role: foghorn
  - role: Keeper
    text: hello there
  - text: "Producer note: trim this."
  - role: Waves
`

func TestDecode_Snapshot(t *testing.T) {
	t.Parallel()

	f, err := scriptfile.Decode(strings.NewReader(episodeYAML))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	s, err := f.Snapshot(scriptfile.Defaults{WordsPerMinute: 200, SoundDuration: 3})
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if err := s.Validate(); err != nil {
		t.Fatalf("snapshot invalid: %v", err)
	}
	if s.Title != "Episode 12: The Lighthouse" {
		t.Errorf("Title = %q", s.Title)
	}

	m := script.NewManager()
	if err := m.Import(s); err != nil {
		t.Fatalf("Import: %v", err)
	}
	roles := m.Roles()
	if roles[1].WordsPerMinute != 200 {
		t.Errorf("Keeper wpm = %d, want default 200", roles[1].WordsPerMinute)
	}
	if roles[3].Duration != 3 {
		t.Errorf("Waves duration = %v, want default 3", roles[3].Duration)
	}

	reps := m.Replicas()
	if reps[1].RoleID != roles[2].ID {
		t.Error("line role not matched case-insensitively")
	}
	if reps[3].RoleID != "" {
		t.Errorf("roleless line attributed to %q", reps[3].RoleID)
	}

	// 10 words at 100 wpm + 2 words at 200 wpm + 6 s + 3 s
	st := m.Statistics()
	if st.TotalWords != 12 || st.TotalDurationFormatted != "0:16" {
		t.Errorf("stats = %+v", st)
	}
}

func TestFile_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "duplicate role",
			yaml:    "roles:\n  - {name: Host, type: speaker}\n  - {name: host, type: speaker}\n",
			wantErr: "duplicate",
		},
		{
			name:    "bad type",
			yaml:    "roles:\n  - {name: Host, type: narrator}\n",
			wantErr: `type "narrator"`,
		},
		{
			name:    "missing name",
			yaml:    "roles:\n  - {type: sound}\n",
			wantErr: "roles[0].name is required",
		},
		{
			name:    "undeclared role",
			yaml:    "roles: []\nlines:\n  - {role: Ghost, text: boo}\n",
			wantErr: `lines[0].role "Ghost"`,
		},
		{
			name:    "negative duration",
			yaml:    "roles:\n  - {name: Boom, type: sound, duration: -1}\n",
			wantErr: "duration must not be negative",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			f, err := scriptfile.Decode(strings.NewReader(tc.yaml))
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			_, err = f.Snapshot(scriptfile.DefaultDefaults())
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("Snapshot error = %v, want mention of %q", err, tc.wantErr)
			}
		})
	}
}

func TestDecode_UnknownKey(t *testing.T) {
	t.Parallel()

	if _, err := scriptfile.Decode(strings.NewReader("roles: []\nscenes: []\n")); err == nil {
		t.Error("unknown key accepted")
	}
}

func TestFromSnapshot_RoundTrip(t *testing.T) {
	t.Parallel()

	m := script.NewManager()
	a := script.NewSpeaker("Alex", 180, "teal")
	b := script.NewSpeaker("alex", 140, "")
	fx := script.NewSoundEffect("Bell", 1.5)
	cue := script.NewSoundEffect("Beat", -5)
	for _, r := range []*script.Role{a, b, fx, cue} {
		if err := m.AddRole(r); err != nil {
			t.Fatal(err)
		}
	}
	_ = m.AddReplica(script.NewReplica("first", a.ID))
	_ = m.AddReplica(script.NewReplica("second", b.ID))
	_ = m.AddReplica(script.NewReplica("", fx.ID))
	_ = m.AddReplica(script.NewReplica("dangling", "gone"))
	_ = m.AddReplica(script.NewReplica("", cue.ID))

	f := scriptfile.FromSnapshot(m.Export())
	if f.Roles[1].Name != "alex (2)" {
		t.Errorf("colliding name = %q, want %q", f.Roles[1].Name, "alex (2)")
	}
	if f.Lines[3].Role != "" {
		t.Errorf("dangling line role = %q, want empty", f.Lines[3].Role)
	}

	var buf bytes.Buffer
	if err := f.Encode(&buf); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !strings.Contains(buf.String(), "duration: 0\n") {
		t.Errorf("zero-second cue lost its duration:\n%s", buf.String())
	}
	back, err := scriptfile.Decode(&buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	s, err := back.Snapshot(scriptfile.DefaultDefaults())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	restored := script.NewManager()
	if err := restored.Import(s); err != nil {
		t.Fatal(err)
	}
	got, want := restored.Statistics(), m.Statistics()
	if got.TotalWords != want.TotalWords || got.TotalDurationFormatted != want.TotalDurationFormatted {
		t.Errorf("restored stats = %+v, want %+v", got, want)
	}
	if restored.Roles()[0].Color != "teal" || restored.Roles()[2].Duration != 1.5 {
		t.Errorf("role fields lost: %+v", restored.Roles())
	}
	if d := restored.Roles()[3].Duration; d != 0 {
		t.Errorf("zero-second cue duration after round trip = %v, want 0", d)
	}
	if got.TotalDuration != want.TotalDuration {
		t.Errorf("duration = %v minutes, want %v", got.TotalDuration, want.TotalDuration)
	}
}

func TestLoadFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "episode.yaml")
	if err := os.WriteFile(path, []byte(episodeYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	f, err := scriptfile.LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if len(f.Roles) != 4 || len(f.Lines) != 5 {
		t.Errorf("loaded %d roles, %d lines", len(f.Roles), len(f.Lines))
	}
	if _, err := scriptfile.LoadFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("LoadFile of missing file succeeded")
	}
}
