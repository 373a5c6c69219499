package migrator

import "log"

// Tester is the Installability Tester together with the Candidate Set
// and caches it owns: all mutation to the testing/broken sets funnels
// through Add/Remove. A Tester is single-owner, single-threaded state for
// the duration of one migration run.
type Tester struct {
	u   *Universe
	in  *interner

	testing idSet // Candidate Set: tuples believed to be in the target suite
	broken  idSet // intrinsically uninstallable tuples; survives add() sequences

	essentials idSet
	safeSet    idSet

	cacheInst   idSet
	cacheBroken idSet
	cacheEss    map[Arch]essentialSet

	// Trace, if non-nil, receives solver backtracking diagnostics. It is
	// wired up from the -debug flag (default taken from BRITNEY_DEBUG) by
	// the driver.
	Trace *log.Logger
}

type essentialSet struct {
	base  idSet
	never idSet
}

// NewTester constructs a Tester over u. initialTesting is the starting
// Candidate Set; essentials names every Tuple flagged "Essential: yes".
func NewTester(u *Universe, initialTesting []Tuple, essentials []Tuple) (*Tester, error) {
	t := &Tester{
		u:           u,
		in:          u.in,
		testing:     make(idSet),
		broken:      make(idSet),
		essentials:  make(idSet),
		cacheInst:   make(idSet),
		cacheBroken: make(idSet),
		cacheEss:    make(map[Arch]essentialSet),
	}
	for _, tup := range initialTesting {
		id, err := u.idFor(tup)
		if err != nil {
			return nil, err
		}
		t.testing.add(id)
	}
	for _, tup := range essentials {
		id, err := u.idFor(tup)
		if err != nil {
			return nil, err
		}
		t.essentials.add(id)
	}
	t.safeSet = u.ComputeSafeSet()
	return t, nil
}

func (t *Tester) tracef(format string, args ...interface{}) {
	if t.Trace != nil {
		t.Trace.Printf(format, args...)
	}
}

// InTesting reports whether tup is currently in the Candidate Set.
func (t *Tester) InTesting(tup Tuple) bool {
	id, ok := t.in.lookup(tup)
	if !ok {
		return false
	}
	return t.testing.has(id)
}

// IsInstallable answers "is tup installable from the current Candidate
// Set?". It returns NotInUniverse if tup was never loaded.
func (t *Tester) IsInstallable(tup Tuple) (bool, error) {
	id, err := t.u.idFor(tup)
	if err != nil {
		return false, err
	}
	if !t.testing.has(id) || t.broken.has(id) {
		return false, nil
	}
	if t.cacheInst.has(id) {
		return true, nil
	}
	return t.checkInst(id, nil, nil, nil), nil
}

func (t *Tester) isInstallableID(id tupleID) bool {
	if !t.testing.has(id) || t.broken.has(id) {
		return false
	}
	if t.cacheInst.has(id) {
		return true
	}
	return t.checkInst(id, nil, nil, nil)
}

// Add inserts tup into the Candidate Set, invalidating whichever caches
// its presence could change.
func (t *Tester) Add(tup Tuple) error {
	id, err := t.u.idFor(tup)
	if err != nil {
		return err
	}
	if t.broken.has(id) {
		t.testing.add(id)
		return nil
	}
	t.testing.add(id)
	t.cacheInst = make(idSet)
	if len(t.cacheBroken) > 0 {
		t.testing.addAll(t.cacheBroken)
		t.cacheBroken = make(idSet)
	}
	if t.essentials.has(id) {
		delete(t.cacheEss, tup.Arch)
	}
	return nil
}

// Remove drops tup from the Candidate Set, invalidating whichever caches
// its absence could change.
func (t *Tester) Remove(tup Tuple) error {
	id, err := t.u.idFor(tup)
	if err != nil {
		return err
	}
	t.testing.remove(id)
	t.cacheBroken.remove(id)

	if ess, ok := t.cacheEss[tup.Arch]; ok && ess.base.has(id) {
		delete(t.cacheEss, tup.Arch)
	}

	entry := t.u.entry(id)
	if len(entry.RDeps) == 0 && len(entry.RCons) == 0 {
		return nil
	}
	if !t.broken.has(id) && t.cacheInst.has(id) {
		t.cacheInst = make(idSet)
	}
	return nil
}

// checkInst is the core propagation+choice installability search. musts,
// never and choices are pre-populated copies on recursive entry; nil on
// the top-level call means "start fresh".
func (t *Tester) checkInst(id tupleID, musts, never idSet, choices []idSet) bool {
	if t.cacheInst.has(id) && len(never) == 0 {
		cache := true
		for _, choice := range choices {
			if !choice.has(id) {
				cache = false
				break
			}
		}
		if cache {
			return true
		}
	}

	if musts == nil {
		musts = make(idSet)
	}
	musts.add(id)
	if never == nil {
		never = make(idSet)
	}

	check := newIDSet(id)

	if len(musts) == 1 {
		ess := t.essentialSetFor(t.in.tuple(id).Arch)
		if ess.never.has(id) {
			t.cacheBroken.add(id)
			t.testing.remove(id)
			return false
		}
		musts.addAll(ess.base)
		never.addAll(ess.never)
	}

	for {
		if !t.checkLoop(musts, never, &choices, check) {
			return false
		}
		if len(choices) == 0 {
			break
		}
		rebuild, verdict, done := t.pickChoice(musts, never, choices, check)
		if done {
			return verdict
		}
		choices = rebuild
		if len(check) > 0 {
			continue
		}
		break
	}

	t.cacheInst.addAll(musts)
	return true
}

// checkLoop drains check, propagating forced dependencies and conflicts.
// choices accumulates dependency groups that could not be resolved to a
// single forced literal.
func (t *Tester) checkLoop(musts, never idSet, choices *[]idSet, check idSet) bool {
	for len(check) > 0 {
		var cur tupleID
		for id := range check {
			cur = id
			break
		}
		delete(check, cur)

		entry := t.u.entry(cur)

		if len(entry.Cons) != 0 {
			if never.has(cur) {
				return false
			}
			never.addAll(entry.Cons.intersect(t.testing))
		}

		for _, group := range entry.Deps {
			if !musts.disjoint(group) {
				continue
			}
			candidates := group.intersect(t.testing).subtract(never).subtract(t.cacheBroken)
			switch len(candidates) {
			case 0:
				if !t.cacheBroken.has(cur) && group.disjoint(never) {
					t.cacheBroken.add(cur)
					t.testing.remove(cur)
				}
				return false
			case 1:
				for only := range candidates {
					check.add(only)
					musts.add(only)
				}
			default:
				*choices = append(*choices, candidates)
			}
		}
	}
	return true
}

// pickChoice resolves one round of unresolved dependency-group choices.
// It returns the rebuilt choice list to continue propagation with, or
// (verdict, true) if installability was fully determined (by recursion
// or by exhaustion).
func (t *Tester) pickChoice(musts, never idSet, choices []idSet, check idSet) (rebuild []idSet, verdict bool, done bool) {
	for _, choice := range choices {
		if !musts.disjoint(choice) {
			continue
		}
		remain := choice.subtract(never).subtract(t.cacheBroken)
		if len(remain) == 0 {
			return nil, false, true
		}

		if len(remain) > 1 {
			var safeSurvivors []tupleID
			for id := range remain {
				if t.safeSet.has(id) {
					safeSurvivors = append(safeSurvivors, id)
				}
			}
			if len(safeSurvivors) > 0 {
				var first tupleID
				found := false
				for _, r := range safeSurvivors {
					if t.cacheInst.has(r) || t.isInstallableID(r) {
						first = r
						found = true
						break
					}
				}
				if found {
					musts.add(first)
					check.add(first)
					continue
				}
				for _, r := range safeSurvivors {
					remain.remove(r)
				}
			}
		}

		if len(remain) == 1 {
			for only := range remain {
				check.add(only)
				musts.add(only)
			}
			continue
		}

		rebuild = append(rebuild, remain)
	}

	if len(check) > 0 || len(rebuild) == 0 {
		return rebuild, false, false
	}

	// Pick one unresolved group and try every literal but the last via
	// speculative recursion; optimistically commit the last without
	// checking it. This can accept a combination that a full check of
	// the last literal would have rejected; it is the same trade the
	// algorithm it is based on makes, in exchange for not needing one
	// extra recursive call per choice group.
	choice := rebuild[len(rebuild)-1]
	rebuild = rebuild[:len(rebuild)-1]

	lits := choice.slice()
	last := lits[len(lits)-1]
	for _, p := range lits[:len(lits)-1] {
		mustsCopy := musts.clone()
		neverCopy := never.clone()
		choicesCopy := make([]idSet, len(rebuild))
		copy(choicesCopy, rebuild)
		if t.checkInst(p, mustsCopy, neverCopy, choicesCopy) {
			return nil, true, true
		}
		t.tracef("pruning %s: failed to satisfy choice speculatively", t.in.tuple(p))
		never.add(p)
	}

	check.add(last)
	musts.add(last)
	return rebuild, false, false
}

// essentialSetFor returns the cached pseudo-essential set for arch,
// computing it if not already cached.
func (t *Tester) essentialSetFor(arch Arch) essentialSet {
	if ess, ok := t.cacheEss[arch]; ok {
		return ess
	}
	ess := t.computeEssentialSet(arch)
	t.cacheEss[arch] = ess
	return ess
}

// ExportEssentialSet returns the cached pseudo-essential set for arch as
// raw tuple ids, for persistence outside this package (see
// internal/store). It does not compute the set if absent.
func (t *Tester) ExportEssentialSet(arch Arch) (base, never []uint32, ok bool) {
	ess, ok := t.cacheEss[arch]
	if !ok {
		return nil, nil, false
	}
	return idsOf(ess.base), idsOf(ess.never), true
}

// ImportEssentialSet seeds the pseudo-essential cache for arch from raw
// tuple ids previously returned by ExportEssentialSet, skipping the
// recomputation checkInst would otherwise trigger on first use.
func (t *Tester) ImportEssentialSet(arch Arch, base, never []uint32) {
	t.cacheEss[arch] = essentialSet{base: idSetOf(base), never: idSetOf(never)}
}

// ExportSafeSet returns the installability-safe set as raw tuple ids.
func (t *Tester) ExportSafeSet() []uint32 {
	return idsOf(t.safeSet)
}

func idsOf(s idSet) []uint32 {
	out := make([]uint32, 0, len(s))
	for id := range s {
		out = append(out, uint32(id))
	}
	return out
}

func idSetOf(ids []uint32) idSet {
	s := make(idSet, len(ids))
	for _, id := range ids {
		s[tupleID(id)] = struct{}{}
	}
	return s
}
