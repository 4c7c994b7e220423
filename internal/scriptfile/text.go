package scriptfile

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"

	"github.com/MrWong99/podscript/internal/phonetic"
	"github.com/MrWong99/podscript/pkg/script"
)

// Line is one parsed line of a plain-text script.
type Line struct {
	// Name is the speaker or sound effect as written. Empty for an
	// unattributed line.
	Name string

	// Sound marks a sound cue such as "[SFX Door Slam]".
	Sound bool

	Text string

	// LineNo is the 1-based line where the entry starts.
	LineNo int
}

var (
	sfxLine     = regexp.MustCompile(`^\[\s*(?i:sfx|sound)\s*:?\s*([^\]]+?)\s*\](.*)$`)
	speakerLine = regexp.MustCompile(`^([^:\[\]]{1,40}?)\s*:\s*(.*)$`)
)

// maxLineBytes bounds a single input line.
const maxLineBytes = 1 << 20

// ParseText splits a plain-text script into lines.
//
//	# comments and blank lines are skipped
//	HOST: Welcome back to the show.
//	[SFX Applause]
//	GUEST: Thanks for having me.
//	  Indented text continues the previous line.
//	A line without a name stays unattributed.
//
// Text after a sound cue's closing bracket is kept as the cue's text.
func ParseText(r io.Reader) ([]Line, error) {
	var (
		out  []Line
		last = -1
	)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for n := 1; sc.Scan(); n++ {
		raw := sc.Text()
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			last = -1
			continue
		}

		if m := sfxLine.FindStringSubmatch(trimmed); m != nil {
			out = append(out, Line{Name: m[1], Sound: true, Text: strings.TrimSpace(m[2]), LineNo: n})
			last = -1
			continue
		}

		indented := raw != strings.TrimLeft(raw, " \t")
		if indented && last >= 0 {
			out[last].Text = strings.TrimSpace(out[last].Text + " " + trimmed)
			continue
		}

		if m := speakerLine.FindStringSubmatch(trimmed); m != nil && !strings.HasPrefix(m[2], "//") {
			out = append(out, Line{Name: strings.TrimSpace(m[1]), Text: m[2], LineNo: n})
			last = len(out) - 1
			continue
		}

		out = append(out, Line{Text: trimmed, LineNo: n})
		last = len(out) - 1
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scriptfile: read text: %w", err)
	}
	return out, nil
}

// ImportResult summarises an [Importer.Import].
type ImportResult struct {
	ReplicasAdded int `json:"replicasAdded"`

	// RolesCreated lists roles added because no existing role matched.
	RolesCreated []string `json:"rolesCreated"`

	// Resolved maps each written name to the existing role it matched,
	// when the two differ.
	Resolved map[string]string `json:"resolved"`
}

// Importer appends plain-text scripts to a [script.Manager], matching the
// names in the text to existing roles by sound.
type Importer struct {
	matcher  *phonetic.Matcher
	defaults Defaults
	palette  []string
	log      *slog.Logger
}

// ImporterOption configures an [Importer].
type ImporterOption func(*Importer)

// WithMatcher replaces the default phonetic matcher.
func WithMatcher(m *phonetic.Matcher) ImporterOption {
	return func(im *Importer) { im.matcher = m }
}

// WithDefaults sets the rate and duration given to created roles.
func WithDefaults(d Defaults) ImporterOption {
	return func(im *Importer) { im.defaults = d }
}

// WithLogger sets the importer's logger.
func WithLogger(l *slog.Logger) ImporterOption {
	return func(im *Importer) { im.log = l }
}

// speakerPalette colours created speakers in turn.
var speakerPalette = []string{"#3366cc", "#dc3912", "#ff9900", "#109618", "#990099", "#0099c6"}

// NewImporter returns an Importer.
func NewImporter(opts ...ImporterOption) *Importer {
	im := &Importer{
		matcher:  phonetic.New(),
		defaults: DefaultDefaults(),
		palette:  speakerPalette,
		log:      slog.Default(),
	}
	for _, o := range opts {
		o(im)
	}
	return im
}

// Import parses r and appends every line to m as a replica. Speaker names
// are matched against m's speakers and cue names against its sound effects;
// a name without a match creates a new role of that kind.
//
// Lines are applied one at a time. On error the lines before it remain.
func (im *Importer) Import(m *script.Manager, r io.Reader) (ImportResult, error) {
	lines, err := ParseText(r)
	if err != nil {
		return ImportResult{}, err
	}

	res := ImportResult{Resolved: map[string]string{}}
	cache := make(map[string]string) // written name (kind-qualified) → role id
	colour := len(m.Speakers())

	for _, l := range lines {
		roleID := ""
		if l.Name != "" {
			key := fmt.Sprintf("%t/%s", l.Sound, nameKey(l.Name))
			id, ok := cache[key]
			if !ok {
				id, err = im.resolve(m, l, &res, &colour)
				if err != nil {
					return res, fmt.Errorf("scriptfile: line %d: %w", l.LineNo, err)
				}
				cache[key] = id
			}
			roleID = id
		}
		if err := m.AddReplica(script.NewReplica(l.Text, roleID)); err != nil {
			return res, fmt.Errorf("scriptfile: line %d: %w", l.LineNo, err)
		}
		res.ReplicasAdded++
	}

	im.log.Debug("plain-text script imported",
		"replicas", res.ReplicasAdded,
		"roles_created", len(res.RolesCreated),
		"resolved", len(res.Resolved),
	)
	return res, nil
}

func (im *Importer) resolve(m *script.Manager, l Line, res *ImportResult, colour *int) (string, error) {
	candidates := m.Speakers()
	if l.Sound {
		candidates = m.SoundEffects()
	}
	if role, score, ok := im.matcher.Resolve(l.Name, candidates); ok {
		if role.Name != l.Name {
			res.Resolved[l.Name] = role.Name
			im.log.Debug("role name resolved", "written", l.Name, "role", role.Name, "score", score)
		}
		return role.ID, nil
	}

	var role *script.Role
	if l.Sound {
		role = script.NewSoundEffect(l.Name, im.defaults.SoundDuration)
	} else {
		role = script.NewSpeaker(l.Name, im.defaults.WordsPerMinute, im.palette[*colour%len(im.palette)])
		*colour++
	}
	if err := m.AddRole(role); err != nil {
		return "", err
	}
	res.RolesCreated = append(res.RolesCreated, role.Name)
	return role.ID, nil
}
