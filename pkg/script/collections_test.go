package script_test

import (
	"errors"
	"math"
	"slices"
	"testing"

	"github.com/MrWong99/podscript/pkg/script"
)

func TestCountWords(t *testing.T) {
	t.Parallel()

	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"   ", 0},
		{"\t\n ", 0},
		{"hello", 1},
		{"  hello   world  ", 2},
		{"one\ttwo\nthree", 3},
		{"Well, that's — interesting!", 4},
	}
	for _, tc := range tests {
		if got := script.CountWords(tc.text); got != tc.want {
			t.Errorf("CountWords(%q) = %d, want %d", tc.text, got, tc.want)
		}
	}
}

func TestReplica_SetTextKeepsWordCount(t *testing.T) {
	t.Parallel()

	r := script.NewReplica("one two", "")
	if r.WordCount != 2 {
		t.Fatalf("NewReplica WordCount = %d, want 2", r.WordCount)
	}
	r.SetText("  ")
	if r.WordCount != 0 {
		t.Errorf("after SetText(blank) WordCount = %d, want 0", r.WordCount)
	}
	r.SetText("a b c d")
	if r.WordCount != 4 {
		t.Errorf("after SetText WordCount = %d, want 4", r.WordCount)
	}
	r.SetRole("does-not-exist")
	if r.RoleID != "does-not-exist" {
		t.Errorf("SetRole did not store dangling id, got %q", r.RoleID)
	}
}

func TestRoles_AddRemoveUpdate(t *testing.T) {
	t.Parallel()

	c := script.NewRoles(nil)
	a := script.NewSpeaker("A", 150, "")
	b := script.NewSoundEffect("B", 2)
	d := script.NewSpeaker("D", 120, "")
	for _, r := range []*script.Role{a, b, d} {
		if err := c.Add(r); err != nil {
			t.Fatalf("Add(%s): %v", r.Name, err)
		}
	}

	if got := names(c.All()); !slices.Equal(got, []string{"A", "B", "D"}) {
		t.Fatalf("order = %v", got)
	}
	if got := names(c.Speakers()); !slices.Equal(got, []string{"A", "D"}) {
		t.Errorf("Speakers = %v", got)
	}
	if got := names(c.SoundEffects()); !slices.Equal(got, []string{"B"}) {
		t.Errorf("SoundEffects = %v", got)
	}

	edited := a.WithWordsPerMinute(200)
	if err := c.Update(a.ID, &edited); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got := c.FindByID(a.ID).WordsPerMinute; got != 200 {
		t.Errorf("after Update wpm = %d, want 200", got)
	}
	if got := names(c.All()); !slices.Equal(got, []string{"A", "B", "D"}) {
		t.Errorf("Update changed order: %v", got)
	}

	ghost := script.NewSpeaker("ghost", 150, "")
	if err := c.Update(ghost.ID, ghost); !errors.Is(err, script.ErrNotFound) {
		t.Errorf("Update missing: got %v, want ErrNotFound", err)
	}

	if !c.Remove(b.ID) {
		t.Error("Remove existing returned false")
	}
	if c.Remove(b.ID) {
		t.Error("Remove missing returned true")
	}
	if got := names(c.All()); !slices.Equal(got, []string{"A", "D"}) {
		t.Errorf("after Remove order = %v", got)
	}
	if c.Size() != 2 || c.IsEmpty() {
		t.Errorf("Size = %d, IsEmpty = %v", c.Size(), c.IsEmpty())
	}
	c.Clear()
	if !c.IsEmpty() || c.FindByID(a.ID) != nil {
		t.Error("Clear left roles behind")
	}
}

func TestRoles_DuplicateIDRejected(t *testing.T) {
	t.Parallel()

	var c script.Roles // zero value is usable
	r := script.NewSpeaker("A", 150, "")
	if err := c.Add(r); err != nil {
		t.Fatalf("Add: %v", err)
	}
	dup := r.Clone()
	dup.Name = "Impostor"
	if err := c.Add(dup); !errors.Is(err, script.ErrDuplicateID) {
		t.Fatalf("Add duplicate: got %v, want ErrDuplicateID", err)
	}
	if c.Size() != 1 {
		t.Errorf("Size = %d, want 1", c.Size())
	}
	if got := c.FindByID(r.ID).Name; got != "A" {
		t.Errorf("FindByID name = %q, want original %q", got, "A")
	}
}

func TestReplicas_Move(t *testing.T) {
	t.Parallel()

	build := func() (*script.Replicas, []*script.Replica) {
		c := script.NewReplicas(nil)
		var rs []*script.Replica
		for _, txt := range []string{"a", "b", "c", "d"} {
			r := script.NewReplica(txt, "")
			rs = append(rs, r)
			if err := c.Add(r); err != nil {
				t.Fatalf("Add: %v", err)
			}
		}
		return c, rs
	}

	tests := []struct {
		name   string
		from   int
		to     int
		wantOK bool
		want   []string
	}{
		{"forward", 0, 2, true, []string{"b", "c", "a", "d"}},
		{"backward", 3, 1, true, []string{"a", "d", "b", "c"}},
		{"to end", 1, 3, true, []string{"a", "c", "d", "b"}},
		{"same place", 2, 2, true, []string{"a", "b", "c", "d"}},
		{"negative index", 0, -1, false, []string{"a", "b", "c", "d"}},
		{"index == length", 0, 4, false, []string{"a", "b", "c", "d"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			c, rs := build()
			if got := c.Move(rs[tc.from].ID, tc.to); got != tc.wantOK {
				t.Fatalf("Move = %v, want %v", got, tc.wantOK)
			}
			if got := texts(c.All()); !slices.Equal(got, tc.want) {
				t.Errorf("order = %v, want %v", got, tc.want)
			}
			if c.Size() != 4 {
				t.Errorf("Size = %d, want 4", c.Size())
			}
		})
	}

	t.Run("unknown id", func(t *testing.T) {
		t.Parallel()
		c, _ := build()
		if c.Move("nope", 0) {
			t.Fatal("Move unknown id returned true")
		}
		if got := texts(c.All()); !slices.Equal(got, []string{"a", "b", "c", "d"}) {
			t.Errorf("order changed: %v", got)
		}
	})
}

func TestReplicas_InsertClamps(t *testing.T) {
	t.Parallel()

	c := script.NewReplicas(nil)
	_ = c.Add(script.NewReplica("b", ""))
	_ = c.Insert(script.NewReplica("a", ""), -10)
	_ = c.Insert(script.NewReplica("c", ""), 99)
	if got := texts(c.All()); !slices.Equal(got, []string{"a", "b", "c"}) {
		t.Errorf("order = %v", got)
	}
}

func TestReplicas_Aggregates(t *testing.T) {
	t.Parallel()

	roles := script.NewRoles(nil)
	host := script.NewSpeaker("Host", 150, "")
	sfx := script.NewSoundEffect("Applause", 90)
	_ = roles.Add(host)
	_ = roles.Add(sfx)

	reps := script.NewReplicas(nil)
	spoken := script.NewReplica(words(300), host.ID)
	cue := script.NewReplica("five words in this cue", sfx.ID)
	orphan := script.NewReplica("no role at all", "")
	dangling := script.NewReplica("role was deleted elsewhere", "gone")
	for _, r := range []*script.Replica{spoken, cue, orphan, dangling} {
		_ = reps.Add(r)
	}

	if got := len(reps.SpeakerReplicas(roles)); got != 1 {
		t.Errorf("SpeakerReplicas = %d, want 1", got)
	}
	if got := reps.TotalWordCount(roles); got != 300 {
		t.Errorf("TotalWordCount = %d, want 300", got)
	}
	if got := reps.TotalDuration(roles); math.Abs(got-3.5) > 1e-9 {
		t.Errorf("TotalDuration = %v, want 3.5", got)
	}
	if got := len(reps.ByRole(sfx.ID)); got != 1 {
		t.Errorf("ByRole(sfx) = %d, want 1", got)
	}
	if got := len(reps.ByRole("")); got != 1 {
		t.Errorf("ByRole(\"\") = %d, want 1", got)
	}
}

func TestFormatDuration(t *testing.T) {
	t.Parallel()

	tests := []struct {
		minutes float64
		want    string
	}{
		{0, "0:00"},
		{0.5, "0:30"},
		{1.0, "1:00"},
		{3.5, "3:30"},
		{59.99, "59:59"},
		{59.995, "60:00"},
		{0.1, "0:06"},
		{0.52, "0:31"},
		{75, "75:00"},
		{-1, "0:00"},
	}
	for _, tc := range tests {
		if got := script.FormatDuration(tc.minutes); got != tc.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", tc.minutes, got, tc.want)
		}
	}
}

// ─── helpers ─────────────────────────────────────────────────────────────────

func names(rs []*script.Role) []string {
	out := make([]string, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.Name)
	}
	return out
}

func texts(rs []*script.Replica) []string {
	out := make([]string, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.Text)
	}
	return out
}

// words returns n space-separated words.
func words(n int) string {
	b := make([]byte, 0, n*2)
	for i := range n {
		if i > 0 {
			b = append(b, ' ')
		}
		b = append(b, 'w')
	}
	return string(b)
}
