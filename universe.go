package migrator

import (
	"sort"

	"github.com/armon/go-radix"
)

// NotInUniverse is returned whenever the tester, the reverse-tree walker,
// or the candidate-set mutators are asked about a Tuple that was never
// loaded into the Universe.
type NotInUniverse struct {
	T Tuple
}

func (e *NotInUniverse) Error() string {
	return "package not in universe: " + e.T.String()
}

// UniverseEntry is the immutable-after-load dependency/conflict record for
// a single Tuple. Deps is a conjunction of disjunction groups; Cons is the
// flat set of tuples that conflict with the owning Tuple.
type UniverseEntry struct {
	Deps []idSet
	Cons idSet

	// RDeps/RCons are populated by Universe.RegisterReverses and form the
	// symmetric reverse relation over the dependency graph.
	RDeps idSet
	RCons idSet
}

// Universe is the load-once, mutate-rarely map from package tuple to its
// dependency/conflict data plus the reverse-relation index. It is built by
// a loader (out of scope for this package: parsing archive control files)
// and then handed to a Tester for the life of a migration run.
type Universe struct {
	in      *interner
	entries map[tupleID]*UniverseEntry

	// binaryIdx is a per-architecture radix index of binary names; it
	// backs SortedBinaryNames and SortedArches. sourceIdx is allocated by
	// NewUniverse, but nothing in this package inserts into it.
	sourceIdx *radix.Tree
	binaryIdx map[Arch]*radix.Tree
}

// NewUniverse returns an empty, ready-to-populate Universe.
func NewUniverse() *Universe {
	return &Universe{
		in:        newInterner(),
		entries:   make(map[tupleID]*UniverseEntry),
		sourceIdx: radix.New(),
		binaryIdx: make(map[Arch]*radix.Tree),
	}
}

// AddBinary inserts (or replaces) the dependency/conflict data for t. depGroups
// is the conjunction-of-disjunctions dependency list; each inner slice must
// already have any virtual-package name resolved to its concrete providers
// by the loader, per the Open Question resolution recorded in DESIGN.md.
func (u *Universe) AddBinary(t Tuple, depGroups [][]Tuple, cons []Tuple) {
	id := u.in.intern(t)

	deps := make([]idSet, 0, len(depGroups))
	for _, group := range depGroups {
		if len(group) == 0 {
			continue
		}
		s := make(idSet, len(group))
		for _, alt := range group {
			s.add(u.in.intern(alt))
		}
		deps = append(deps, s)
	}

	consSet := make(idSet, len(cons))
	for _, c := range cons {
		consSet.add(u.in.intern(c))
	}

	u.entries[id] = &UniverseEntry{
		Deps:  deps,
		Cons:  consSet,
		RDeps: idSet{},
		RCons: idSet{},
	}

	idx := u.binaryIdx[t.Arch]
	if idx == nil {
		idx = radix.New()
		u.binaryIdx[t.Arch] = idx
	}
	idx.Insert(t.Name, t)
}

// Has reports whether t has been loaded into the Universe.
func (u *Universe) Has(t Tuple) bool {
	id, ok := u.in.lookup(t)
	if !ok {
		return false
	}
	_, ok = u.entries[id]
	return ok
}

func (u *Universe) entry(id tupleID) *UniverseEntry {
	return u.entries[id]
}

func (u *Universe) idFor(t Tuple) (tupleID, error) {
	id, ok := u.in.lookup(t)
	if !ok {
		return 0, &NotInUniverse{T: t}
	}
	if _, ok := u.entries[id]; !ok {
		return 0, &NotInUniverse{T: t}
	}
	return id, nil
}

// RemapArchAll expands every entry loaded under ArchAll into one concrete
// entry per architecture in archs. Any reference inside a dep group or
// conflict set that itself points at an ArchAll
// tuple is remapped in lock-step to the same concrete architecture;
// references to a tuple that was loaded under a specific architecture are
// left untouched, since that is an explicit cross-arch relation rather
// than an artifact of the "all" shorthand.
func (u *Universe) RemapArchAll(archs []Arch) {
	var allIDs []tupleID
	for id := range u.entries {
		if u.in.tuple(id).Arch == ArchAll {
			allIDs = append(allIDs, id)
		}
	}
	if len(allIDs) == 0 {
		return
	}

	// remap rewrites every ArchAll reference in group to the tuple with
	// the same name and version on arch; other references are kept.
	remap := func(group idSet, arch Arch) idSet {
		out := make(idSet, len(group))
		for id := range group {
			t := u.in.tuple(id)
			if t.Arch == ArchAll {
				concrete := Tuple{Name: t.Name, Version: t.Version, Arch: arch}
				out.add(u.in.intern(concrete))
				continue
			}
			out.add(id)
		}
		return out
	}

	for _, id := range allIDs {
		old := u.entries[id]
		oldT := u.in.tuple(id)
		for _, arch := range archs {
			concrete := Tuple{Name: oldT.Name, Version: oldT.Version, Arch: arch}
			cid := u.in.intern(concrete)
			deps := make([]idSet, len(old.Deps))
			for i, g := range old.Deps {
				deps[i] = remap(g, arch)
			}
			u.entries[cid] = &UniverseEntry{
				Deps:  deps,
				Cons:  remap(old.Cons, arch),
				RDeps: idSet{},
				RCons: idSet{},
			}
			idx := u.binaryIdx[arch]
			if idx == nil {
				idx = radix.New()
				u.binaryIdx[arch] = idx
			}
			idx.Insert(concrete.Name, concrete)
		}
		delete(u.entries, id)
	}
}

// RegisterReverses updates RDeps/RCons on every target mentioned by the
// packages named in names (or every package in the Universe, if names is
// empty). With checkDoubles, a given (pkg, dep) pair is only ever
// recorded once, making repeated calls idempotent.
func (u *Universe) RegisterReverses(checkDoubles bool, names ...Tuple) error {
	ids := make([]tupleID, 0, len(names))
	if len(names) == 0 {
		for id := range u.entries {
			ids = append(ids, id)
		}
	} else {
		for _, t := range names {
			id, err := u.idFor(t)
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}
	}

	for _, pkg := range ids {
		entry := u.entries[pkg]
		for _, group := range entry.Deps {
			for dep := range group {
				target := u.entries[dep]
				if target == nil {
					continue
				}
				if checkDoubles && target.RDeps.has(pkg) {
					continue
				}
				target.RDeps.add(pkg)
			}
		}
		for dep := range entry.Cons {
			target := u.entries[dep]
			if target == nil {
				continue
			}
			if checkDoubles && target.RCons.has(pkg) {
				continue
			}
			target.RCons.add(pkg)
		}
	}
	return nil
}

// ComputeSafeSet returns the subset of Universe keys that have no
// conflicts and whose dependencies recursively only reach other members
// of the safe set. It is computed once, after the Universe is fully
// loaded and reverse relations are registered.
func (u *Universe) ComputeSafeSet() idSet {
	safe := make(idSet)
	// Fixed-point iteration: start with packages that have no conflicts
	// and no deps, then repeatedly add packages whose conflicts are
	// empty and whose every dep group lies entirely in safe.
	changed := true
	for changed {
		changed = false
		for id, entry := range u.entries {
			if safe.has(id) {
				continue
			}
			if len(entry.Cons) != 0 {
				continue
			}
			ok := true
			for _, group := range entry.Deps {
				if !group.subset(safe) {
					ok = false
					break
				}
			}
			if ok {
				safe.add(id)
				changed = true
			}
		}
	}
	return safe
}

// SortedBinaryNames returns the binary package names known for arch, in
// lexical order, by walking the radix index. Archive reports are emitted
// sorted by arch then name.
func (u *Universe) SortedBinaryNames(arch Arch) []string {
	idx := u.binaryIdx[arch]
	if idx == nil {
		return nil
	}
	var names []string
	idx.Walk(func(name string, _ interface{}) bool {
		names = append(names, name)
		return false
	})
	return names
}

// SortedArches returns every architecture known to the Universe, sorted.
func (u *Universe) SortedArches() []Arch {
	out := make([]Arch, 0, len(u.binaryIdx))
	for a := range u.binaryIdx {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
