package schema

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// DefaultLevels is the classification ladder used when none is configured.
var DefaultLevels = []string{"UNCLASSIFIED", "CONFIDENTIAL", "SECRET", "TOP SECRET"}

// Portion-mark abbreviations for the default ladder.
var defaultAliases = map[string]string{
	"U":  "UNCLASSIFIED",
	"C":  "CONFIDENTIAL",
	"S":  "SECRET",
	"TS": "TOP SECRET",
}

// Vocabulary is an ordered set of classification levels, lowest first.
type Vocabulary struct {
	levels  []string
	rank    map[string]int
	aliases map[string]string
}

// NewVocabulary builds a vocabulary from levels ordered lowest to highest.
// With no levels the default ladder is used.
func NewVocabulary(levels ...string) *Vocabulary {
	if len(levels) == 0 {
		levels = DefaultLevels
	}
	v := &Vocabulary{
		rank:    make(map[string]int, len(levels)),
		aliases: make(map[string]string),
	}
	for _, l := range levels {
		n := v.normalize(l)
		if n == "" {
			continue
		}
		if _, dup := v.rank[n]; dup {
			continue
		}
		v.rank[n] = len(v.levels)
		v.levels = append(v.levels, n)
	}
	for abbr, level := range defaultAliases {
		if _, ok := v.rank[level]; ok {
			if _, clash := v.rank[abbr]; !clash {
				v.aliases[abbr] = level
			}
		}
	}
	return v
}

// Levels returns the normalized levels, lowest first.
func (v *Vocabulary) Levels() []string {
	out := make([]string, len(v.levels))
	copy(out, v.levels)
	return out
}

// Normalize maps a raw marking such as "(S//NF)" or "top_secret" onto its
// canonical spelling. Unknown markings are returned cleaned up but otherwise
// unchanged.
func (v *Vocabulary) Normalize(raw string) string {
	n := v.normalize(raw)
	if full, ok := v.aliases[n]; ok {
		return full
	}
	return n
}

func (v *Vocabulary) normalize(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "(")
	s = strings.TrimSuffix(s, ")")
	if i := strings.Index(s, "//"); i >= 0 {
		s = s[:i]
	}
	s = strings.NewReplacer("_", " ", "-", " ").Replace(s)
	// Casers keep state, so one is created per call.
	return cases.Upper(language.Und).String(strings.Join(strings.Fields(s), " "))
}

// Rank returns the position of the marking in the ladder.
func (v *Vocabulary) Rank(raw string) (int, bool) {
	r, ok := v.rank[v.Normalize(raw)]
	return r, ok
}

// Highest returns the highest known level among values.
func (v *Vocabulary) Highest(values []string) (string, bool) {
	best := -1
	for _, val := range values {
		if r, ok := v.Rank(val); ok && r > best {
			best = r
		}
	}
	if best < 0 {
		return "", false
	}
	return v.levels[best], true
}
