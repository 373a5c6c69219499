package migrator

import "fmt"

// Arch is an opaque architecture identifier. The distinguished value
// ArchAll is remapped to each concrete architecture when the Universe is
// loaded, so nothing downstream of loading ever has to special-case it.
type Arch string

// ArchAll is the architecture-independent marker used by the archive.
const ArchAll Arch = "all"

// Tuple is a globally unique package identity: name, version, architecture.
// Equality is structural, so Tuple is safe to use as a map key directly;
// the interned form (tupleID) exists purely as a performance device for the
// hot solver paths and never leaks across the package boundary.
type Tuple struct {
	Name    string
	Version string
	Arch    Arch
}

func (t Tuple) String() string {
	return fmt.Sprintf("%s/%s/%s", t.Name, t.Version, t.Arch)
}

// tupleID is a dense integer handle for a Tuple, assigned by the interner
// at Universe-load time. Tuple comparisons dominate solver runtime, so
// every set the solver touches (musts, never, choices, the caches) is
// keyed by tupleID rather than by the Tuple struct itself.
type tupleID uint32

// interner assigns a stable dense id to every Tuple it has seen. It is
// built once while loading the Universe and is read-only for the rest of
// the run.
type interner struct {
	ids    map[Tuple]tupleID
	tuples []Tuple
}

func newInterner() *interner {
	return &interner{ids: make(map[Tuple]tupleID)}
}

// intern returns the id for t, allocating a new one if t has not been seen.
func (in *interner) intern(t Tuple) tupleID {
	if id, ok := in.ids[t]; ok {
		return id
	}
	id := tupleID(len(in.tuples))
	in.tuples = append(in.tuples, t)
	in.ids[t] = id
	return id
}

// lookup returns the id for t without allocating one, reporting whether t
// has been interned at all.
func (in *interner) lookup(t Tuple) (tupleID, bool) {
	id, ok := in.ids[t]
	return id, ok
}

func (in *interner) tuple(id tupleID) Tuple {
	return in.tuples[id]
}

// idSet is a hash set of interned tuple ids. It is the workhorse
// collection type for musts/never/choices/caches throughout the tester
// and the undo log.
type idSet map[tupleID]struct{}

func newIDSet(ids ...tupleID) idSet {
	s := make(idSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s idSet) clone() idSet {
	out := make(idSet, len(s))
	for id := range s {
		out[id] = struct{}{}
	}
	return out
}

func (s idSet) add(id tupleID) { s[id] = struct{}{} }

func (s idSet) addAll(other idSet) {
	for id := range other {
		s[id] = struct{}{}
	}
}

func (s idSet) remove(id tupleID) { delete(s, id) }

func (s idSet) has(id tupleID) bool {
	_, ok := s[id]
	return ok
}

// disjoint reports whether s and other share no elements.
func (s idSet) disjoint(other idSet) bool {
	small, big := s, other
	if len(big) < len(small) {
		small, big = big, small
	}
	for id := range small {
		if big.has(id) {
			return false
		}
	}
	return true
}

// intersect returns a new set containing only ids present in both sets.
func (s idSet) intersect(other idSet) idSet {
	small, big := s, other
	if len(big) < len(small) {
		small, big = big, small
	}
	out := make(idSet)
	for id := range small {
		if big.has(id) {
			out[id] = struct{}{}
		}
	}
	return out
}

// subtract returns a new set with every id of other removed from s.
func (s idSet) subtract(other idSet) idSet {
	out := make(idSet, len(s))
	for id := range s {
		if !other.has(id) {
			out[id] = struct{}{}
		}
	}
	return out
}

func (s idSet) slice() []tupleID {
	out := make([]tupleID, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	return out
}
