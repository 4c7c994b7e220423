package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MrWong99/podscript/internal/scriptfile"
)

const episodeYAML = `
title: Pilot
roles:
  - name: Host
    type: speaker
  - name: Sting
    type: sound
    duration: 4
lines:
  - role: Host
    text: one two three four
  - role: Sting
`

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func runCLI(args ...string) (code int, stdout, stderr string) {
	var out, errOut bytes.Buffer
	code = run(args, &out, &errOut)
	return code, out.String(), errOut.String()
}

func TestRun_UnknownCommand(t *testing.T) {
	t.Parallel()
	code, _, stderr := runCLI("frobnicate")
	if code != 2 || !strings.Contains(stderr, `unknown command "frobnicate"`) {
		t.Errorf("code = %d, stderr = %q", code, stderr)
	}
}

func TestRun_Version(t *testing.T) {
	t.Parallel()
	code, stdout, _ := runCLI("version")
	if code != 0 || !strings.HasPrefix(stdout, "podscript ") {
		t.Errorf("code = %d, stdout = %q", code, stdout)
	}
}

func TestServe_MissingConfig(t *testing.T) {
	t.Parallel()
	code, _, stderr := runCLI("serve", "-config", filepath.Join(t.TempDir(), "nope.yaml"))
	if code != 1 || !strings.Contains(stderr, "not found") {
		t.Errorf("code = %d, stderr = %q", code, stderr)
	}
}

func TestStats_Table(t *testing.T) {
	t.Parallel()
	path := writeTemp(t, "pilot.yaml", episodeYAML)

	code, stdout, stderr := runCLI("stats", "-wpm", "120", path)
	if code != 0 {
		t.Fatalf("code = %d, stderr = %q", code, stderr)
	}
	// 4 words at 120 wpm is 2s, plus the 4s sting.
	for _, want := range []string{"Pilot", "roles 2, replicas 2, words 4, runtime 0:06", "Host", "Sting"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("stdout missing %q:\n%s", want, stdout)
		}
	}
}

func TestStats_JSON(t *testing.T) {
	t.Parallel()
	path := writeTemp(t, "pilot.yaml", episodeYAML)

	code, stdout, stderr := runCLI("stats", "-json", "-wpm", "120", path)
	if code != 0 {
		t.Fatalf("code = %d, stderr = %q", code, stderr)
	}
	var out statsOutput
	if err := json.Unmarshal([]byte(stdout), &out); err != nil {
		t.Fatalf("decode: %v\n%s", err, stdout)
	}
	if out.Title != "Pilot" || out.Statistics.TotalWords != 4 || len(out.Roles) != 2 {
		t.Errorf("stats = %+v", out)
	}
	if out.Roles[0].Words != 4 || out.Roles[1].Words != 0 {
		t.Errorf("role stats = %+v", out.Roles)
	}
}

func TestStats_Usage(t *testing.T) {
	t.Parallel()
	if code, _, _ := runCLI("stats"); code != 2 {
		t.Errorf("stats without a file: code = %d, want 2", code)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	good := writeTemp(t, "good.yaml", episodeYAML)
	bad := writeTemp(t, "bad.json", `{"roles": [{"id": "r1", "name": "Host", "type": "narrator"}], "replicas": []}`)

	code, stdout, _ := runCLI("validate", good, bad)
	if code != 1 {
		t.Errorf("code = %d, want 1", code)
	}
	if !strings.Contains(stdout, good+": ok (2 roles, 2 replicas)") {
		t.Errorf("good file not reported ok:\n%s", stdout)
	}
	if !strings.Contains(stdout, bad+": invalid") {
		t.Errorf("bad file not reported invalid:\n%s", stdout)
	}

	if code, _, _ := runCLI("validate", good); code != 0 {
		t.Errorf("validate good file: code = %d, want 0", code)
	}
}

func TestConvert_YAMLToJSONAndBack(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	in := writeTemp(t, "pilot.yaml", episodeYAML)
	jsonPath := filepath.Join(dir, "pilot.json")

	code, stdout, stderr := runCLI("convert", in, jsonPath)
	if code != 0 {
		t.Fatalf("convert to json: code = %d, stderr = %q", code, stderr)
	}
	if !strings.Contains(stdout, "wrote "+jsonPath) {
		t.Errorf("stdout = %q", stdout)
	}
	snap, err := scriptfile.LoadSnapshot(jsonPath, scriptfile.DefaultDefaults())
	if err != nil {
		t.Fatalf("load converted json: %v", err)
	}
	if snap.Title != "Pilot" || len(snap.Roles) != 2 || len(snap.Replicas) != 2 {
		t.Errorf("converted snapshot = %+v", snap)
	}

	yamlPath := filepath.Join(dir, "again.yaml")
	if code, _, stderr := runCLI("convert", jsonPath, yamlPath); code != 0 {
		t.Fatalf("convert to yaml: code = %d, stderr = %q", code, stderr)
	}
	f, err := scriptfile.LoadFile(yamlPath)
	if err != nil {
		t.Fatalf("load converted yaml: %v", err)
	}
	if len(f.Roles) != 2 || len(f.Lines) != 2 || f.Lines[0].Role != "Host" {
		t.Errorf("converted yaml = %+v", f)
	}
}

func TestConvert_Stdout(t *testing.T) {
	t.Parallel()
	in := writeTemp(t, "cold-open.txt", "HOST: hi there\n[SFX Boom]\n")

	code, stdout, stderr := runCLI("convert", in, "-")
	if code != 0 {
		t.Fatalf("code = %d, stderr = %q", code, stderr)
	}
	snap, err := scriptfile.ReadSnapshot(strings.NewReader(stdout), scriptfile.FormatJSON, scriptfile.DefaultDefaults())
	if err != nil {
		t.Fatalf("read stdout: %v", err)
	}
	if snap.Title != "cold-open" || len(snap.Replicas) != 2 {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestConvert_RejectsTextOutput(t *testing.T) {
	t.Parallel()
	in := writeTemp(t, "pilot.yaml", episodeYAML)
	code, _, stderr := runCLI("convert", in, filepath.Join(t.TempDir(), "out.txt"))
	if code != 1 || !strings.Contains(stderr, "must be .json or .yaml") {
		t.Errorf("code = %d, stderr = %q", code, stderr)
	}
}
