package migrator

import "strings"

// MigrationItem is a unit of migration solver input: a package name,
// optional version and architecture, the suite it is scoped to, and
// whether it denotes a removal. String forms are `pkg`, `pkg/ver`,
// `pkg/arch`, `pkg/arch/ver`, with a leading `-` denoting removal and an
// optional `_suite` suffix on the package field.
type MigrationItem struct {
	raw         string
	Package     string
	Suite       string
	Architecture string
	Version     string
	versioned   bool
	uvname      string
}

// ParseMigrationItem parses name. versioned selects how the fields after
// the package are read: true (as used for Hint items) reads `pkg/ver` as
// a source version and `pkg/arch/ver` as architecture and version; false
// (as used for plain removal/addition items) reads `pkg/arch` as a bare
// architecture and carries no version.
func ParseMigrationItem(name string, versioned bool) MigrationItem {
	item := MigrationItem{raw: name, versioned: versioned}

	value := name
	if strings.HasPrefix(value, "-") {
		value = value[1:]
	}

	parts := strings.SplitN(value, "/", 3)
	pkg := parts[0]
	if idx := strings.Index(pkg, "_"); idx >= 0 {
		item.Package = pkg[:idx]
		item.Suite = pkg[idx+1:]
	} else {
		item.Package = pkg
		item.Suite = "unstable"
	}

	if versioned && len(parts) > 1 {
		if len(parts) == 3 {
			item.Architecture = parts[1]
			item.Version = parts[2]
		} else {
			item.Architecture = "source"
			item.Version = parts[1]
		}
	} else {
		if len(parts) == 2 {
			item.Architecture = parts[1]
		} else {
			item.Architecture = "source"
		}
	}

	// A composite `arch_suite` architecture string only ever rebinds the
	// suite half; the architecture field itself is left unchanged.
	if idx := strings.Index(item.Architecture, "_"); idx >= 0 {
		item.Suite = item.Architecture[idx+1:]
	}

	if item.IsRemoval() {
		item.Suite = "testing"
	}

	if versioned {
		vparts := strings.SplitN(name, "/", 3)
		if len(vparts) == 1 || item.Architecture == "source" {
			item.uvname = vparts[0]
		} else {
			item.uvname = vparts[0] + "/" + vparts[1]
		}
	} else {
		item.uvname = name
	}

	return item
}

// IsRemoval reports whether the item denotes a removal from the target
// suite (a leading `-` in its original string form).
func (m MigrationItem) IsRemoval() bool {
	return strings.HasPrefix(m.raw, "-")
}

// String reproduces the canonical form of the item: the full versioned
// name when one was parsed, otherwise the unversioned name.
func (m MigrationItem) String() string {
	if m.versioned && m.Version != "" {
		return m.raw
	}
	return m.uvname
}

// Key returns a stable string suitable for use as a map key identifying
// this item, used as the partial-order table key in the migration solver.
func (m MigrationItem) Key() string {
	return m.String()
}
