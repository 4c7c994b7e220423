// Package phonetic resolves speaker names written by hand, or typed from
// memory, to the roles already present in a script.
//
// Resolution has three steps. An exact case-insensitive name match always
// wins with score 1. Otherwise Double Metaphone codes of the candidate's
// words are compared with each role name's codes, and roles sharing a code
// are ranked by Jaro-Winkler similarity above the phonetic threshold. When no
// role shares a code, pure Jaro-Winkler similarity is tried against every role
// with the stricter fuzzy threshold.
package phonetic

import (
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/MrWong99/podscript/pkg/script"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// Option configures a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score for a role whose
// name sounds like the candidate. Default: 0.70.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.phoneticThreshold = threshold
	}
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score for a role whose
// name does not sound like the candidate. Default: 0.85.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.fuzzyThreshold = threshold
	}
}

// Matcher is read-only after construction and safe for concurrent use.
type Matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New returns a Matcher configured with opts.
func New(opts ...Option) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Match returns the entry of names closest to name, its score in [0, 1] and
// whether any entry cleared a threshold. On no match it returns name, 0,
// false.
func (m *Matcher) Match(name string, names []string) (string, float64, bool) {
	idx, score := m.best(name, names)
	if idx < 0 {
		return name, 0, false
	}
	return names[idx], score, true
}

// Resolve returns the role whose name is closest to name.
func (m *Matcher) Resolve(name string, roles []script.Role) (script.Role, float64, bool) {
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = r.Name
	}
	idx, score := m.best(name, names)
	if idx < 0 {
		return script.Role{}, 0, false
	}
	return roles[idx], score, true
}

// best returns the index of the best entry of names, or -1.
func (m *Matcher) best(name string, names []string) (int, float64) {
	needle := normalize(name)
	if needle == "" || len(names) == 0 {
		return -1, 0
	}
	for i, n := range names {
		if normalize(n) == needle {
			return i, 1
		}
	}

	tokens := strings.Fields(needle)
	codes := metaphones(tokens)

	bestIdx, bestScore, bestPhonetic := -1, 0.0, false
	for i, n := range names {
		cand := normalize(n)
		if cand == "" {
			continue
		}
		candTokens := strings.Fields(cand)
		score := similarity(tokens, candTokens, needle, cand)

		if shareCode(codes, metaphones(candTokens)) {
			if score >= m.phoneticThreshold && (!bestPhonetic || score > bestScore) {
				bestIdx, bestScore, bestPhonetic = i, score, true
			}
			continue
		}
		if !bestPhonetic && score >= m.fuzzyThreshold && score > bestScore {
			bestIdx, bestScore = i, score
		}
	}
	return bestIdx, bestScore
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// metaphones returns every non-empty primary and secondary Double Metaphone
// code of tokens.
func metaphones(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

func shareCode(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for c := range a {
		if _, ok := b[c]; ok {
			return true
		}
	}
	return false
}

// similarity is the best Jaro-Winkler score over the full strings, the
// strings with spaces removed ("mc donald" vs "mcdonald") and every word pair.
func similarity(aTokens, bTokens []string, a, b string) float64 {
	score := matchr.JaroWinkler(a, b, false)
	if len(aTokens) > 1 || len(bTokens) > 1 {
		if s := matchr.JaroWinkler(strings.Join(aTokens, ""), strings.Join(bTokens, ""), false); s > score {
			score = s
		}
	}
	for _, at := range aTokens {
		for _, bt := range bTokens {
			if s := matchr.JaroWinkler(at, bt, false); s > score {
				score = s
			}
		}
	}
	return score
}
