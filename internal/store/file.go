package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/MrWong99/podscript/pkg/script"
)

const fileExt = ".json"

// FileStore is a [Store] that writes each snapshot to <dir>/<id>.json.
// Writes are atomic: data goes to a temporary file in the same directory
// which is then renamed over the target.
type FileStore struct {
	dir string
	log *slog.Logger
}

var _ Store = (*FileStore)(nil)

// FileOption configures a [FileStore].
type FileOption func(*FileStore)

// WithFileLogger sets the logger used to report unreadable files during List.
func WithFileLogger(l *slog.Logger) FileOption {
	return func(s *FileStore) { s.log = l }
}

// NewFileStore returns a [FileStore] rooted at dir, creating the directory if
// it does not exist.
func NewFileStore(dir string, opts ...FileOption) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("store: file store directory is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("store: create %s: %w", dir, err)
	}
	s := &FileStore{dir: dir, log: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Dir returns the directory the store writes to.
func (s *FileStore) Dir() string { return s.dir }

// Save implements [Store].
func (s *FileStore) Save(ctx context.Context, id string, snap *script.Snapshot) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	if err := checkSnapshot(id, snap); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := snap.Encode(&buf); err != nil {
		return fmt.Errorf("store: save %q: %w", id, err)
	}
	if err := writeFileAtomic(s.path(id), buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("store: save %q: %w", id, err)
	}
	return nil
}

// Load implements [Store].
func (s *FileStore) Load(ctx context.Context, id string) (*script.Snapshot, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	snap, err := s.read(s.path(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("store: load %q: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("store: load %q: %w", id, err)
	}
	if err := checkSnapshot(id, snap); err != nil {
		return nil, err
	}
	return snap, nil
}

// List implements [Store]. Files that cannot be decoded are logged and
// skipped.
func (s *FileStore) List(ctx context.Context) ([]Entry, error) {
	dirents, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("store: list %s: %w", s.dir, err)
	}
	var out []Entry
	for _, de := range dirents {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := de.Name()
		if de.IsDir() || !strings.HasSuffix(name, fileExt) {
			continue
		}
		id := strings.TrimSuffix(name, fileExt)
		if ValidateID(id) != nil {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		snap, err := s.read(filepath.Join(s.dir, name))
		if err != nil {
			s.log.Warn("store: skipping unreadable snapshot", "file", name, "err", err)
			continue
		}
		out = append(out, entryOf(id, snap, info.ModTime().UTC()))
	}
	slices.SortFunc(out, func(a, b Entry) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

// Delete implements [Store].
func (s *FileStore) Delete(_ context.Context, id string) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	if err := os.Remove(s.path(id)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("store: delete %q: %w", id, ErrNotFound)
		}
		return fmt.Errorf("store: delete %q: %w", id, err)
	}
	return nil
}

func (s *FileStore) path(id string) string {
	return filepath.Join(s.dir, id+fileExt)
}

func (s *FileStore) read(path string) (*script.Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return script.DecodeSnapshot(f)
}

// writeFileAtomic writes data to a temporary file next to dest and renames it
// into place. The temporary file is removed on failure.
func writeFileAtomic(dest string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(dest)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// Ping implements [Pinger] by checking that the directory still exists.
func (s *FileStore) Ping(context.Context) error {
	fi, err := os.Stat(s.dir)
	if err != nil {
		return fmt.Errorf("store: ping: %w", err)
	}
	if !fi.IsDir() {
		return fmt.Errorf("store: ping: %s is not a directory", s.dir)
	}
	return nil
}
