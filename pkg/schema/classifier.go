package schema

import (
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rubiojr/scout/pkg/mgrs"
)

// Role is the semantic role of a column.
type Role string

const (
	RoleIdentifier     Role = "identifier"
	RoleFreeText       Role = "free-text"
	RoleCoordinate     Role = "coordinate"
	RoleClassification Role = "classification"
	RoleDate           Role = "date"
	RoleNumeric        Role = "numeric"
	RoleCategorical    Role = "categorical"
)

// Affinity is the SQLite type affinity of a column.
type Affinity string

const (
	AffinityText    Affinity = "TEXT"
	AffinityNumeric Affinity = "NUMERIC"
	AffinityInteger Affinity = "INTEGER"
	AffinityReal    Affinity = "REAL"
	AffinityBlob    Affinity = "BLOB"
)

// Numeric reports whether values of this affinity compare as numbers.
func (a Affinity) Numeric() bool {
	return a == AffinityNumeric || a == AffinityInteger || a == AffinityReal
}

// Column is the catalog input for one column.
type Column struct {
	Name         string
	DeclaredType string
	PrimaryKey   int // 1-based position in the primary key, 0 when not part of it
	NotNull      bool
}

// Sample holds non-null values read from a column.
type Sample struct {
	Values []any
}

// FieldDescriptor is the classified view of a column.
type FieldDescriptor struct {
	Name       string   `json:"name" yaml:"name"`
	Type       string   `json:"type" yaml:"type"`
	Affinity   Affinity `json:"affinity" yaml:"affinity"`
	Role       Role     `json:"role" yaml:"role"`
	PrimaryKey bool     `json:"primary_key" yaml:"primary_key"`
	NotNull    bool     `json:"not_null" yaml:"not_null"`
	Searchable bool     `json:"searchable" yaml:"searchable"`
	Sortable   bool     `json:"sortable" yaml:"sortable"`
	Filterable bool     `json:"filterable" yaml:"filterable"`
}

// ClassifierOptions tune the content based rules.
type ClassifierOptions struct {
	FreeTextMinLength int
}

// Rule maps a column to a role. Rules are evaluated in ascending priority and
// the first match wins.
type Rule struct {
	Name     string
	Priority int
	Role     Role
	Match    func(c Column, a Affinity, s Sample, o ClassifierOptions) bool
}

var (
	idNamePattern     = regexp.MustCompile(`(?i)^(id|uuid|guid|rowid|oid)$`)
	idSuffixPattern   = regexp.MustCompile(`(?i)[_\-](id|uuid|guid)$`)
	camelIDPattern    = regexp.MustCompile(`[a-z0-9](Id|ID)$`)
	coordinatePattern = regexp.MustCompile(`(?i)mgrs|grid`)
	classifPattern    = regexp.MustCompile(`(?i)classif`)
	dateNamePattern   = regexp.MustCompile(`(?i)((^|_)(date|time|timestamp|datetime)$|_at$|_on$|^(created|updated|modified)$)`)
	temporalTypes     = []string{"DATE", "TIME"}
)

// DefaultRules is the rule table used by NewClassifier.
var DefaultRules = []Rule{
	{
		Name: "primary-key-or-id-name", Priority: 10, Role: RoleIdentifier,
		Match: func(c Column, _ Affinity, _ Sample, _ ClassifierOptions) bool {
			return c.PrimaryKey > 0 || idNamePattern.MatchString(c.Name) ||
				idSuffixPattern.MatchString(c.Name) || camelIDPattern.MatchString(c.Name)
		},
	},
	{
		Name: "coordinate-name", Priority: 20, Role: RoleCoordinate,
		Match: func(c Column, _ Affinity, _ Sample, _ ClassifierOptions) bool {
			return coordinatePattern.MatchString(c.Name)
		},
	},
	{
		Name: "classification-name", Priority: 30, Role: RoleClassification,
		Match: func(c Column, _ Affinity, _ Sample, _ ClassifierOptions) bool {
			return classifPattern.MatchString(c.Name)
		},
	},
	{
		Name: "temporal", Priority: 40, Role: RoleDate,
		Match: func(c Column, a Affinity, s Sample, _ ClassifierOptions) bool {
			decl := strings.ToUpper(c.DeclaredType)
			for _, t := range temporalTypes {
				if strings.Contains(decl, t) {
					return true
				}
			}
			if a.Numeric() && dateNamePattern.MatchString(c.Name) {
				return true
			}
			return a == AffinityText && s.allStrings(LooksLikeDate)
		},
	},
	{
		Name: "coordinate-values", Priority: 45, Role: RoleCoordinate,
		Match: func(_ Column, a Affinity, s Sample, _ ClassifierOptions) bool {
			return a == AffinityText && s.allStrings(func(v string) bool {
				_, err := mgrs.Parse(v)
				return err == nil
			})
		},
	},
	{
		Name: "long-text", Priority: 50, Role: RoleFreeText,
		Match: func(_ Column, a Affinity, s Sample, o ClassifierOptions) bool {
			return a == AffinityText && s.averageLength() > float64(o.FreeTextMinLength)
		},
	},
	{
		Name: "short-text", Priority: 60, Role: RoleCategorical,
		Match: func(_ Column, a Affinity, _ Sample, _ ClassifierOptions) bool {
			return a == AffinityText
		},
	},
	{
		Name: "numeric", Priority: 70, Role: RoleNumeric,
		Match: func(_ Column, a Affinity, _ Sample, _ ClassifierOptions) bool {
			return a.Numeric()
		},
	},
	{
		Name: "fallback", Priority: 99, Role: RoleCategorical,
		Match: func(Column, Affinity, Sample, ClassifierOptions) bool { return true },
	},
}

// Classifier assigns roles using an ordered rule table.
type Classifier struct {
	rules []Rule
	opts  ClassifierOptions
}

// NewClassifier returns a classifier over rules (DefaultRules when empty).
func NewClassifier(opts ClassifierOptions, rules ...Rule) *Classifier {
	if len(rules) == 0 {
		rules = DefaultRules
	}
	sorted := make([]Rule, len(rules))
	copy(sorted, rules)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Priority < sorted[j].Priority })
	if opts.FreeTextMinLength <= 0 {
		opts.FreeTextMinLength = 50
	}
	return &Classifier{rules: sorted, opts: opts}
}

// Classify returns the descriptor of a column. The result only depends on
// the column definition and the sample.
func (c *Classifier) Classify(col Column, s Sample) FieldDescriptor {
	aff := EffectiveAffinity(col.DeclaredType, s)
	role := RoleCategorical
	for _, r := range c.rules {
		if r.Match(col, aff, s, c.opts) {
			role = r.Role
			break
		}
	}

	return FieldDescriptor{
		Name:       col.Name,
		Type:       col.DeclaredType,
		Affinity:   aff,
		Role:       role,
		PrimaryKey: col.PrimaryKey > 0,
		NotNull:    col.NotNull,
		Searchable: aff == AffinityText && role != RoleDate,
		Sortable:   role != RoleFreeText && aff != AffinityBlob,
		Filterable: aff != AffinityBlob,
	}
}

// AffinityOf applies the SQLite affinity rules to a declared type.
func AffinityOf(declared string) Affinity {
	t := strings.ToUpper(declared)
	switch {
	case strings.Contains(t, "INT"):
		return AffinityInteger
	case strings.Contains(t, "CHAR"), strings.Contains(t, "CLOB"), strings.Contains(t, "TEXT"):
		return AffinityText
	case t == "", strings.Contains(t, "BLOB"):
		return AffinityBlob
	case strings.Contains(t, "REAL"), strings.Contains(t, "FLOA"), strings.Contains(t, "DOUB"):
		return AffinityReal
	default:
		return AffinityNumeric
	}
}

// EffectiveAffinity is AffinityOf, except that untyped columns take the
// affinity of the storage class most of their sampled values use.
func EffectiveAffinity(declared string, s Sample) Affinity {
	if strings.TrimSpace(declared) != "" {
		return AffinityOf(declared)
	}
	var text, num, blob int
	for _, v := range s.Values {
		switch v.(type) {
		case string, time.Time:
			text++
		case int64, float64, int, bool:
			num++
		case []byte:
			blob++
		}
	}
	switch {
	case text == 0 && num == 0:
		return AffinityBlob
	case text >= num && text >= blob:
		return AffinityText
	case num >= blob:
		return AffinityNumeric
	default:
		return AffinityBlob
	}
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseDate parses the ISO-8601 shapes commonly stored in SQLite text
// columns.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// LooksLikeDate reports whether s is an ISO-8601 date or timestamp.
func LooksLikeDate(s string) bool {
	_, ok := ParseDate(s)
	return ok
}

// allStrings reports whether the sample has at least one non-empty string
// and every non-empty value satisfies pred. time.Time values satisfy date
// predicates trivially and fail the others.
func (s Sample) allStrings(pred func(string) bool) bool {
	seen := 0
	for _, v := range s.Values {
		var str string
		switch tv := v.(type) {
		case string:
			str = tv
		case time.Time:
			str = tv.Format(time.RFC3339Nano)
		case []byte:
			if !utf8.Valid(tv) {
				return false
			}
			str = string(tv)
		default:
			return false
		}
		if strings.TrimSpace(str) == "" {
			continue
		}
		if !pred(str) {
			return false
		}
		seen++
	}
	return seen > 0
}

func (s Sample) averageLength() float64 {
	var total, n int
	for _, v := range s.Values {
		switch tv := v.(type) {
		case string:
			total += utf8.RuneCountInString(tv)
			n++
		case []byte:
			total += utf8.RuneCount(tv)
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return float64(total) / float64(n)
}
