package migrator

import (
	"strconv"
	"strings"
)

// noVersionHintTypes lists hint types whose items must carry no version;
// every other type requires one.
var noVersionHintTypes = map[string]bool{
	"block":      true,
	"block-all":  true,
	"block-udeb": true,
}

// Hint is an administrator-supplied override: a type, the items it
// applies to, an optional day count (for `age-days`), the user who
// issued it, and whether it is currently active.
type Hint struct {
	Type     string
	Packages []MigrationItem
	Days     int
	User     string
	Active   bool
}

// BrokenHint is returned when a hint line violates the version-presence
// rule for its type.
type BrokenHint struct {
	Line   string
	Reason string
}

func (e *BrokenHint) Error() string {
	return "broken hint " + strconv.Quote(e.Line) + ": " + e.Reason
}

// ParseHint parses one hint line (`type pkg[/arch][/ver] ...`, or
// `age-days N pkg/ver ...`) issued by user. It returns BrokenHint if the
// line's items violate the version-presence rule for its type.
func ParseHint(line, user string) (Hint, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return Hint{}, &BrokenHint{Line: line, Reason: "no packages listed"}
	}

	h := Hint{Type: fields[0], User: user, Active: true}
	rest := fields[1:]

	if h.Type == "age-days" {
		if len(rest) < 2 {
			return Hint{}, &BrokenHint{Line: line, Reason: "age-days requires a day count and packages"}
		}
		days, err := strconv.Atoi(rest[0])
		if err != nil {
			return Hint{}, &BrokenHint{Line: line, Reason: "age-days day count is not an integer"}
		}
		h.Days = days
		rest = rest[1:]
	}

	requireNoVersion := noVersionHintTypes[h.Type]
	for _, tok := range rest {
		item := ParseMigrationItem(tok, true)
		if requireNoVersion && item.Version != "" {
			return Hint{}, &BrokenHint{Line: line, Reason: h.Type + " items must not carry a version"}
		}
		if !requireNoVersion && item.Version == "" {
			return Hint{}, &BrokenHint{Line: line, Reason: h.Type + " items must carry a version"}
		}
		h.Packages = append(h.Packages, item)
	}

	return h, nil
}

// Equal reports whether h and other are the same hint: same type, same
// day count when the type is `age-days`, and the same (unordered) set of
// packages.
func (h Hint) Equal(other Hint) bool {
	if h.Type != other.Type {
		return false
	}
	if h.Type == "age-days" && h.Days != other.Days {
		return false
	}
	if len(h.Packages) != len(other.Packages) {
		return false
	}
	seen := make(map[string]int, len(h.Packages))
	for _, p := range h.Packages {
		seen[p.Key()]++
	}
	for _, p := range other.Packages {
		if seen[p.Key()] == 0 {
			return false
		}
		seen[p.Key()]--
	}
	return true
}

// HintStore holds every parsed hint and answers queries over them.
type HintStore struct {
	hints []Hint
}

// NewHintStore returns an empty HintStore.
func NewHintStore() *HintStore {
	return &HintStore{}
}

// Add parses and records line as a hint from user. A broken hint is
// logged by the caller (via the returned error) and never added to the
// store.
func (s *HintStore) Add(line, user string) error {
	h, err := ParseHint(line, user)
	if err != nil {
		return err
	}
	s.hints = append(s.hints, h)
	return nil
}

// HintQuery narrows a Search call; zero values mean "don't filter on
// this field". That includes OnlyActive: when it is left false, Search
// returns inactive hints too.
type HintQuery struct {
	Type       string
	Package    string
	Version    string
	Removal    *bool
	OnlyActive bool
}

// Search returns every hint matching q: an optional type, package name,
// version, removal flag, and active-only filter. The match is against
// the hint's *first* package.
func (s *HintStore) Search(q HintQuery) []Hint {
	var out []Hint
	for _, h := range s.hints {
		if q.OnlyActive && !h.Active {
			continue
		}
		if q.Type != "" && q.Type != h.Type {
			continue
		}
		if len(h.Packages) == 0 {
			continue
		}
		first := h.Packages[0]
		if q.Package != "" && q.Package != first.Package {
			continue
		}
		if q.Version != "" && q.Version != first.Version {
			continue
		}
		if q.Removal != nil && *q.Removal != first.IsRemoval() {
			continue
		}
		out = append(out, h)
	}
	return out
}
