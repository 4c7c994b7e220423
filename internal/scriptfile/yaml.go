// Package scriptfile reads and writes scripts in the formats people author
// by hand: a YAML document of roles and lines, and plain text in the
// "NAME: line" style of a radio play.
//
// Both formats are converted to a [script.Snapshot] or applied to a
// [script.Manager]; neither is a storage format.
package scriptfile

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/podscript/pkg/script"
)

// Defaults are applied to roles that leave their rate or duration unset.
type Defaults struct {
	WordsPerMinute int
	SoundDuration  float64
}

// DefaultDefaults returns the built-in defaults.
func DefaultDefaults() Defaults {
	return Defaults{WordsPerMinute: script.DefaultWordsPerMinute, SoundDuration: 3}
}

// File is the YAML authoring format.
//
// Example:
//
//	title: "Episode 12: The Lighthouse"
//	roles:
//	  - name: Host
//	    type: speaker
//	    words_per_minute: 160
//	    color: "#3366cc"
//	  - name: Foghorn
//	    type: sound
//	    duration: 4
//	lines:
//	  - role: Host
//	    text: "Welcome back to the show."
//	  - role: Foghorn
//	  - text: "Producer note: trim this segment."
type File struct {
	Title string      `yaml:"title,omitempty"`
	Roles []RoleEntry `yaml:"roles"`
	Lines []LineEntry `yaml:"lines"`
}

// RoleEntry declares one role. Roles are referenced from lines by name.
type RoleEntry struct {
	Name string          `yaml:"name"`
	Type script.RoleType `yaml:"type"`

	// WordsPerMinute applies to speakers. Omitted means the default.
	WordsPerMinute *int `yaml:"words_per_minute,omitempty"`

	// Duration applies to sound effects, in seconds. Omitted means the
	// default; an explicit 0 is kept.
	Duration *float64 `yaml:"duration,omitempty"`

	Color string `yaml:"color,omitempty"`
}

// LineEntry is one replica. An empty Role leaves it unassigned.
type LineEntry struct {
	Role string `yaml:"role,omitempty"`
	Text string `yaml:"text,omitempty"`
}

// LoadFile reads and parses a YAML script from disk.
func LoadFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("scriptfile: open %q: %w", path, err)
	}
	defer f.Close()

	sf, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("scriptfile: parse %q: %w", path, err)
	}
	return sf, nil
}

// Decode parses a YAML script from r. Unknown keys are rejected.
func Decode(r io.Reader) (*File, error) {
	var sf File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&sf); err != nil {
		return nil, fmt.Errorf("scriptfile: decode yaml: %w", err)
	}
	return &sf, nil
}

// Encode writes f to w as YAML.
func (f *File) Encode(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(f); err != nil {
		return fmt.Errorf("scriptfile: encode yaml: %w", err)
	}
	return enc.Close()
}

// Validate checks f and returns every problem joined into one error. Role
// names are compared case-insensitively.
func (f *File) Validate() error {
	var errs []error
	names := make(map[string]int, len(f.Roles))
	for i, r := range f.Roles {
		prefix := fmt.Sprintf("roles[%d]", i)
		key := nameKey(r.Name)
		if key == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		} else if prev, ok := names[key]; ok {
			errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of roles[%d]", prefix, r.Name, prev))
		} else {
			names[key] = i
		}
		if !r.Type.IsValid() {
			errs = append(errs, fmt.Errorf("%s.type %q is invalid; valid values: speaker, sound", prefix, r.Type))
		}
		if r.WordsPerMinute != nil && *r.WordsPerMinute < 0 {
			errs = append(errs, fmt.Errorf("%s.words_per_minute must not be negative", prefix))
		}
		if r.Duration != nil && *r.Duration < 0 {
			errs = append(errs, fmt.Errorf("%s.duration must not be negative", prefix))
		}
	}
	for i, l := range f.Lines {
		if l.Role == "" {
			continue
		}
		if _, ok := names[nameKey(l.Role)]; !ok {
			errs = append(errs, fmt.Errorf("lines[%d].role %q is not declared", i, l.Role))
		}
	}
	return errors.Join(errs...)
}

// Snapshot validates f and converts it to a snapshot with fresh IDs.
func (f *File) Snapshot(d Defaults) (*script.Snapshot, error) {
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("scriptfile: %w", err)
	}

	byName := make(map[string]string, len(f.Roles))
	roles := make([]*script.Role, 0, len(f.Roles))
	for _, e := range f.Roles {
		r := e.role(d)
		byName[nameKey(e.Name)] = r.ID
		roles = append(roles, r)
	}
	replicas := make([]*script.Replica, 0, len(f.Lines))
	for _, l := range f.Lines {
		replicas = append(replicas, script.NewReplica(l.Text, byName[nameKey(l.Role)]))
	}

	s := script.NewSnapshot(roles, replicas)
	s.Title = f.Title
	return s, nil
}

func (e RoleEntry) role(d Defaults) *script.Role {
	if e.Type == script.RoleSound {
		dur := d.SoundDuration
		if e.Duration != nil {
			dur = *e.Duration
		}
		return script.NewSoundEffect(e.Name, dur)
	}
	wpm := d.WordsPerMinute
	if e.WordsPerMinute != nil {
		wpm = *e.WordsPerMinute
	}
	return script.NewSpeaker(e.Name, wpm, e.Color)
}

// FromSnapshot converts s to the authoring format. Lines attributed to
// roles missing from s become unassigned. Role names that collide
// case-insensitively are suffixed to stay unique.
func FromSnapshot(s *script.Snapshot) *File {
	f := &File{
		Title: s.Title,
		Roles: make([]RoleEntry, 0, len(s.Roles)),
		Lines: make([]LineEntry, 0, len(s.Replicas)),
	}
	names := make(map[string]string, len(s.Roles))
	taken := make(map[string]bool, len(s.Roles))
	for _, rec := range s.Roles {
		r := rec.Role()
		name := r.Name
		for n := 2; taken[nameKey(name)]; n++ {
			name = fmt.Sprintf("%s (%d)", r.Name, n)
		}
		taken[nameKey(name)] = true
		names[r.ID] = name

		e := RoleEntry{Name: name, Type: r.Type}
		switch r.Type {
		case script.RoleSpeaker:
			wpm := r.WordsPerMinute
			e.WordsPerMinute = &wpm
			e.Color = r.Color
		case script.RoleSound:
			dur := r.Duration
			e.Duration = &dur
		}
		f.Roles = append(f.Roles, e)
	}
	for _, rec := range s.Replicas {
		l := LineEntry{}
		if rec.Text != nil {
			l.Text = *rec.Text
		}
		if rec.RoleID != nil {
			l.Role = names[*rec.RoleID]
		}
		f.Lines = append(f.Lines, l)
	}
	return f
}

func nameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
