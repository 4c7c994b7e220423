package scriptfile

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/MrWong99/podscript/pkg/script"
)

// Format is a script file format recognised by [LoadSnapshot].
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatText Format = "text"
)

// FormatOf picks a format from a file extension. Anything that is not
// .json, .yaml or .yml is treated as plain text.
func FormatOf(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatText
	}
}

// LoadSnapshot reads the script at path in the format given by its
// extension and returns it as a validated snapshot. Plain-text scripts get
// a title derived from the file name.
func LoadSnapshot(path string, d Defaults) (*script.Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("scriptfile: open %q: %w", path, err)
	}
	defer f.Close()

	s, err := ReadSnapshot(f, FormatOf(path), d)
	if err != nil {
		return nil, fmt.Errorf("scriptfile: %s: %w", path, err)
	}
	if s.Title == "" && FormatOf(path) == FormatText {
		s.Title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return s, nil
}

// ReadSnapshot reads a script in the given format from r and validates it.
func ReadSnapshot(r io.Reader, format Format, d Defaults) (*script.Snapshot, error) {
	var (
		s   *script.Snapshot
		err error
	)
	switch format {
	case FormatJSON:
		s, err = script.DecodeSnapshot(r)
	case FormatYAML:
		var sf *File
		if sf, err = Decode(r); err == nil {
			s, err = sf.Snapshot(d)
		}
	case FormatText:
		m := script.NewManager()
		if _, err = NewImporter(WithDefaults(d)).Import(m, r); err == nil {
			s = m.Export()
		}
	default:
		return nil, fmt.Errorf("unknown format %q", format)
	}
	if err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}
