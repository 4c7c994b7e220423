package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/MrWong99/podscript/internal/scriptfile"
	"github.com/MrWong99/podscript/pkg/script"
)

// defaultsFlags registers the flags that fill in rates and durations left
// out of a script file.
func defaultsFlags(fs *flag.FlagSet) *scriptfile.Defaults {
	d := scriptfile.DefaultDefaults()
	fs.IntVar(&d.WordsPerMinute, "wpm", d.WordsPerMinute, "speaking rate for speakers without one")
	fs.Float64Var(&d.SoundDuration, "sound", d.SoundDuration, "duration in seconds for sound effects without one")
	return &d
}

// ── stats ─────────────────────────────────────────────────────────────────────

type statsOutput struct {
	Title      string                  `json:"title,omitempty"`
	Statistics script.Statistics       `json:"statistics"`
	Roles      []script.RoleStatistics `json:"roles"`
}

func statsCmd(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	fs.SetOutput(stderr)
	asJSON := fs.Bool("json", false, "print JSON instead of a table")
	d := defaultsFlags(fs)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "usage: podscript stats [-json] [-wpm n] [-sound secs] <file>")
		return 2
	}

	snap, err := scriptfile.LoadSnapshot(fs.Arg(0), *d)
	if err != nil {
		fmt.Fprintf(stderr, "podscript: %v\n", err)
		return 1
	}
	m := script.NewManager()
	if err := m.Import(snap); err != nil {
		fmt.Fprintf(stderr, "podscript: %s: %v\n", fs.Arg(0), err)
		return 1
	}
	out := statsOutput{Title: snap.Title, Statistics: m.Statistics(), Roles: m.RoleStatistics()}

	if *asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			fmt.Fprintf(stderr, "podscript: %v\n", err)
			return 1
		}
		return 0
	}

	if out.Title != "" {
		fmt.Fprintf(stdout, "%s\n\n", out.Title)
	}
	s := out.Statistics
	fmt.Fprintf(stdout, "roles %d, replicas %d, words %d, runtime %s\n\n",
		s.RoleCount, s.ReplicaCount, s.TotalWords, s.TotalDurationFormatted)

	tw := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ROLE\tTYPE\tREPLICAS\tWORDS\tRUNTIME")
	for _, r := range out.Roles {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n", r.Name, r.Type, r.ReplicaCount, r.Words, script.FormatDuration(r.Duration))
	}
	if err := tw.Flush(); err != nil {
		fmt.Fprintf(stderr, "podscript: %v\n", err)
		return 1
	}
	return 0
}

// ── validate ──────────────────────────────────────────────────────────────────

func validateCmd(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	d := defaultsFlags(fs)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fmt.Fprintln(stderr, "usage: podscript validate <file>...")
		return 2
	}

	code := 0
	for _, path := range fs.Args() {
		snap, err := scriptfile.LoadSnapshot(path, *d)
		if err != nil {
			code = 1
			fmt.Fprintf(stdout, "%s: invalid\n", path)
			// errors.Join puts one violation per line.
			for _, line := range strings.Split(err.Error(), "\n") {
				fmt.Fprintf(stdout, "  %s\n", line)
			}
			continue
		}
		fmt.Fprintf(stdout, "%s: ok (%d roles, %d replicas)\n", path, len(snap.Roles), len(snap.Replicas))
	}
	return code
}

// ── convert ───────────────────────────────────────────────────────────────────

func convertCmd(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("convert", flag.ContinueOnError)
	fs.SetOutput(stderr)
	d := defaultsFlags(fs)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 2 {
		fmt.Fprintln(stderr, "usage: podscript convert <in> <out.json|out.yaml|->")
		return 2
	}
	in, out := fs.Arg(0), fs.Arg(1)

	snap, err := scriptfile.LoadSnapshot(in, *d)
	if err != nil {
		fmt.Fprintf(stderr, "podscript: %v\n", err)
		return 1
	}

	format := scriptfile.FormatJSON
	if out != "-" {
		format = scriptfile.FormatOf(out)
	}
	if format == scriptfile.FormatText {
		fmt.Fprintf(stderr, "podscript: cannot write %q: output must be .json or .yaml\n", out)
		return 1
	}

	if out == "-" {
		if err := encode(stdout, snap, format); err != nil {
			fmt.Fprintf(stderr, "podscript: %v\n", err)
			return 1
		}
		return 0
	}
	if err := writeFile(out, snap, format); err != nil {
		fmt.Fprintf(stderr, "podscript: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "wrote %s (%d roles, %d replicas)\n", out, len(snap.Roles), len(snap.Replicas))
	return 0
}

func encode(w io.Writer, snap *script.Snapshot, format scriptfile.Format) error {
	if format == scriptfile.FormatYAML {
		return scriptfile.FromSnapshot(snap).Encode(w)
	}
	return snap.Encode(w)
}

func writeFile(path string, snap *script.Snapshot, format scriptfile.Format) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return encode(f, snap, format)
}
