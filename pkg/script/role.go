package script

import "math"

// RoleType is the discriminant of the [Role] tagged union.
type RoleType string

const (
	// RoleSpeaker is a human speaker whose lines are timed by word count.
	RoleSpeaker RoleType = "speaker"

	// RoleSound is a sound-effect cue with a fixed duration.
	RoleSound RoleType = "sound"
)

// IsValid reports whether t is a recognised role type.
func (t RoleType) IsValid() bool {
	switch t {
	case RoleSpeaker, RoleSound:
		return true
	}
	return false
}

// Speaking-rate bounds applied to every words-per-minute assignment.
const (
	MinWordsPerMinute = 50
	MaxWordsPerMinute = 500

	// DefaultWordsPerMinute is the rate given to speakers created without one.
	DefaultWordsPerMinute = 150
)

// Role is either a speaker or a sound effect, selected by Type.
//
// Fields that do not belong to the active variant are ignored: Duration is
// meaningless for a speaker, WordsPerMinute and Color for a sound effect.
// A Role whose Type is not recognised is a plain base role; it is kept (so
// newer snapshot versions still load) but contributes nothing to timing.
type Role struct {
	Base

	// Name is the display name. The model accepts any string, including "".
	Name string

	// Type selects the variant.
	Type RoleType

	// WordsPerMinute is the speaking rate of a speaker, always within
	// [MinWordsPerMinute, MaxWordsPerMinute] after a setter.
	WordsPerMinute int

	// Color is an opaque display hint for a speaker.
	Color string

	// Duration is the length of a sound effect in seconds, never negative
	// after a setter.
	Duration float64
}

// NewSpeaker returns a speaker role with a fresh ID. wpm is clamped to
// [MinWordsPerMinute, MaxWordsPerMinute].
func NewSpeaker(name string, wpm int, color string) *Role {
	return &Role{
		Base:           newBase(),
		Name:           name,
		Type:           RoleSpeaker,
		WordsPerMinute: clampWPM(wpm),
		Color:          color,
	}
}

// NewSoundEffect returns a sound-effect role with a fresh ID. Negative
// durations are stored as 0.
func NewSoundEffect(name string, seconds float64) *Role {
	return &Role{
		Base:     newBase(),
		Name:     name,
		Type:     RoleSound,
		Duration: clampDuration(seconds),
	}
}

// IsSpeaker reports whether r is the speaker variant.
func (r *Role) IsSpeaker() bool { return r.Type == RoleSpeaker }

// IsSoundEffect reports whether r is the sound-effect variant.
func (r *Role) IsSoundEffect() bool { return r.Type == RoleSound }

// SetName replaces the display name.
func (r *Role) SetName(name string) {
	r.Name = name
	r.touch()
}

// SetWordsPerMinute stores wpm clamped to [MinWordsPerMinute,
// MaxWordsPerMinute]. Out-of-range input is not an error.
func (r *Role) SetWordsPerMinute(wpm int) {
	r.WordsPerMinute = clampWPM(wpm)
	r.touch()
}

// SetDuration stores seconds, replacing negative values with 0.
func (r *Role) SetDuration(seconds float64) {
	r.Duration = clampDuration(seconds)
	r.touch()
}

// SetColor replaces the display color hint.
func (r *Role) SetColor(color string) {
	r.Color = color
	r.touch()
}

// CalculateTime returns how many minutes a speaker needs for wordCount words.
// It is 0 for zero words and for any non-speaker role.
func (r *Role) CalculateTime(wordCount int) float64 {
	if r.Type != RoleSpeaker || wordCount == 0 || r.WordsPerMinute <= 0 {
		return 0
	}
	return float64(wordCount) / float64(r.WordsPerMinute)
}

// ReplicaMinutes returns the minutes a replica with wordCount words costs when
// attributed to r: the speaking time for a speaker, the fixed duration for a
// sound effect, and 0 for an unrecognised role.
func (r *Role) ReplicaMinutes(wordCount int) float64 {
	switch r.Type {
	case RoleSpeaker:
		return r.CalculateTime(wordCount)
	case RoleSound:
		return r.Duration / 60
	default:
		return 0
	}
}

// Clone returns a copy of r that shares no state with it.
func (r *Role) Clone() *Role {
	c := *r
	return &c
}

// WithName returns a copy of r with a new name and a refreshed UpdatedAt.
func (r Role) WithName(name string) Role {
	r.SetName(name)
	return r
}

// WithWordsPerMinute returns a copy of r with a new (clamped) speaking rate.
func (r Role) WithWordsPerMinute(wpm int) Role {
	r.SetWordsPerMinute(wpm)
	return r
}

// WithDuration returns a copy of r with a new (non-negative) duration.
func (r Role) WithDuration(seconds float64) Role {
	r.SetDuration(seconds)
	return r
}

// WithColor returns a copy of r with a new color hint.
func (r Role) WithColor(color string) Role {
	r.SetColor(color)
	return r
}

func clampWPM(v int) int {
	return min(max(v, MinWordsPerMinute), MaxWordsPerMinute)
}

func clampDuration(v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	return v
}
