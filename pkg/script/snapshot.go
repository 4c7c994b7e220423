package script

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"
)

// SnapshotVersion is the format version written by [Manager.Export].
const SnapshotVersion = "1.0"

// ErrInvalidSnapshot wraps every structural problem reported by
// [Snapshot.Validate].
var ErrInvalidSnapshot = errors.New("script: invalid snapshot")

// Snapshot is the self-contained save/load representation of a script. It is
// plain data: nothing in it is live, and it is trusted only after
// [Snapshot.Validate] succeeds.
type Snapshot struct {
	// Title is an optional human label for the script.
	Title string `json:"title,omitempty"`

	Roles    []RoleRecord    `json:"roles"`
	Replicas []ReplicaRecord `json:"replicas"`

	// Version identifies the format, e.g. "1.0".
	Version string `json:"version"`

	// ExportDate is when the snapshot was produced.
	ExportDate time.Time `json:"exportDate"`

	// Statistics is an optional precomputed summary. Readers must not trust
	// it; [Snapshot.CalculateStatistics] recomputes it from the records.
	Statistics *Statistics `json:"statistics,omitempty"`
}

// RoleRecord is the serialised form of a [Role]. Variant fields are present
// only for their variant.
type RoleRecord struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Type      RoleType  `json:"type"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	// WordsPerMinute is set for speakers.
	WordsPerMinute *int `json:"wordsPerMinute,omitempty"`

	// Duration is set for sound effects, in seconds.
	Duration *float64 `json:"duration,omitempty"`

	Color string `json:"color,omitempty"`
}

// ReplicaRecord is the serialised form of a [Replica].
type ReplicaRecord struct {
	ID string `json:"id"`

	// Text is a pointer so that a missing field can be told apart from "".
	Text *string `json:"text"`

	// RoleID is null for an unassigned replica.
	RoleID *string `json:"roleId"`

	WordCount int       `json:"wordCount"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewSnapshot builds a snapshot of roles and replicas, in order, with
// statistics computed from them. Dangling role references are kept.
func NewSnapshot(roles []*Role, replicas []*Replica) *Snapshot {
	s := &Snapshot{
		Roles:      make([]RoleRecord, 0, len(roles)),
		Replicas:   make([]ReplicaRecord, 0, len(replicas)),
		Version:    SnapshotVersion,
		ExportDate: now(),
	}
	for _, r := range roles {
		s.Roles = append(s.Roles, RoleToRecord(r))
	}
	for _, r := range replicas {
		s.Replicas = append(s.Replicas, ReplicaToRecord(r))
	}
	stats := s.CalculateStatistics()
	s.Statistics = &stats
	return s
}

// RoleToRecord serialises r, writing only the fields of its variant.
func RoleToRecord(r *Role) RoleRecord {
	rec := RoleRecord{
		ID:        r.ID,
		Name:      r.Name,
		Type:      r.Type,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	switch r.Type {
	case RoleSpeaker:
		wpm := r.WordsPerMinute
		rec.WordsPerMinute = &wpm
		rec.Color = r.Color
	case RoleSound:
		d := r.Duration
		rec.Duration = &d
	}
	return rec
}

// Role reconstructs the variant named by rec.Type. An unrecognised type
// yields a base role that keeps its type string. Variant fields go through
// the same clamping as the setters; a speaker without a rate gets
// [DefaultWordsPerMinute].
func (rec RoleRecord) Role() *Role {
	r := &Role{
		Base: restoreBase(rec.ID, rec.CreatedAt, rec.UpdatedAt),
		Name: rec.Name,
		Type: rec.Type,
	}
	switch rec.Type {
	case RoleSpeaker:
		wpm := DefaultWordsPerMinute
		if rec.WordsPerMinute != nil {
			wpm = *rec.WordsPerMinute
		}
		r.WordsPerMinute = clampWPM(wpm)
		r.Color = rec.Color
	case RoleSound:
		if rec.Duration != nil {
			r.Duration = clampDuration(*rec.Duration)
		}
	}
	return r
}

// ReplicaToRecord serialises r. An unassigned replica gets a null roleId.
func ReplicaToRecord(r *Replica) ReplicaRecord {
	text := r.Text
	rec := ReplicaRecord{
		ID:        r.ID,
		Text:      &text,
		WordCount: r.WordCount,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if r.RoleID != "" {
		id := r.RoleID
		rec.RoleID = &id
	}
	return rec
}

// Replica reconstructs a [Replica]. WordCount is recomputed from the text
// rather than trusted from the record.
func (rec ReplicaRecord) Replica() *Replica {
	r := &Replica{Base: restoreBase(rec.ID, rec.CreatedAt, rec.UpdatedAt)}
	if rec.Text != nil {
		r.Text = *rec.Text
	}
	if rec.RoleID != nil {
		r.RoleID = *rec.RoleID
	}
	r.WordCount = CountWords(r.Text)
	return r
}

// Validate checks the structure of s. It does not check that replica role
// IDs refer to roles in the snapshot. The returned error wraps
// [ErrInvalidSnapshot] and joins every problem found.
func (s *Snapshot) Validate() error {
	if s == nil {
		return fmt.Errorf("%w: snapshot is nil", ErrInvalidSnapshot)
	}
	var errs []error

	if s.Roles == nil {
		errs = append(errs, errors.New("roles must be an array"))
	}
	if s.Replicas == nil {
		errs = append(errs, errors.New("replicas must be an array"))
	}

	for i, r := range s.Roles {
		if r.ID == "" {
			errs = append(errs, fmt.Errorf("roles[%d].id is required", i))
		}
		if r.Name == "" {
			errs = append(errs, fmt.Errorf("roles[%d].name is required", i))
		}
		if !r.Type.IsValid() {
			errs = append(errs, fmt.Errorf("roles[%d].type %q is invalid; valid values: speaker, sound", i, r.Type))
		}
	}

	for i, r := range s.Replicas {
		if r.ID == "" {
			errs = append(errs, fmt.Errorf("replicas[%d].id is required", i))
		}
		if r.Text == nil {
			errs = append(errs, fmt.Errorf("replicas[%d].text must be a string", i))
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidSnapshot, errors.Join(errs...))
}

// Valid reports whether [Snapshot.Validate] succeeds.
func (s *Snapshot) Valid() bool {
	return s.Validate() == nil
}

// CalculateStatistics computes [Statistics] directly from the records, using
// the same rules as a live [Manager]. Roles are looked up by linear scan.
func (s *Snapshot) CalculateStatistics() Statistics {
	roles := make([]*Role, 0, len(s.Roles))
	for _, rec := range s.Roles {
		roles = append(roles, rec.Role())
	}
	lookup := func(id *string) *Role {
		if id == nil {
			return nil
		}
		for _, r := range roles {
			if r.ID == *id {
				return r
			}
		}
		return nil
	}

	var (
		words   int
		minutes float64
	)
	for _, rec := range s.Replicas {
		role := lookup(rec.RoleID)
		if role == nil {
			continue
		}
		wc := rec.WordCount
		if rec.Text != nil {
			wc = CountWords(*rec.Text)
		}
		if role.IsSpeaker() {
			words += wc
		}
		minutes += role.ReplicaMinutes(wc)
	}

	return Statistics{
		TotalWords:             words,
		TotalDuration:          minutes,
		TotalDurationFormatted: FormatDuration(minutes),
		RoleCount:              len(s.Roles),
		ReplicaCount:           len(s.Replicas),
	}
}

// DecodeSnapshot reads a JSON snapshot from r. It does not validate it.
func DecodeSnapshot(r io.Reader) (*Snapshot, error) {
	var s Snapshot
	if err := json.NewDecoder(r).Decode(&s); err != nil {
		return nil, fmt.Errorf("script: decode snapshot: %w", err)
	}
	return &s, nil
}

// Encode writes s to w as indented JSON.
func (s *Snapshot) Encode(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("script: encode snapshot: %w", err)
	}
	return nil
}

// restoreBase rebuilds identity from serialised fields. Missing timestamps
// become now and UpdatedAt is raised to CreatedAt if it is earlier.
func restoreBase(id string, created, updated time.Time) Base {
	if created.IsZero() {
		created = now()
	}
	if updated.IsZero() || updated.Before(created) {
		updated = created
	}
	return Base{ID: id, CreatedAt: created.UTC(), UpdatedAt: updated.UTC()}
}
