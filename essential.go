package migrator

// computeEssentialSet computes the pseudo-essential set for arch: the
// closure under forced dependencies of every essential package currently
// in the Candidate Set for that architecture, together with everything
// those packages conflict with.
func (t *Tester) computeEssentialSet(arch Arch) essentialSet {
	base := make(idSet)
	for id := range t.essentials {
		if t.in.tuple(id).Arch == arch && t.testing.has(id) {
			base.add(id)
		}
	}

	start := base.clone()
	never := make(idSet)
	var choices []idSet
	check := base.clone()

	for len(check) > 0 {
		t.checkLoop(start, never, &choices, check)

		if len(choices) == 0 {
			break
		}
		var remaining []idSet
		progressed := false
		for _, choice := range choices {
			if !start.disjoint(choice) {
				continue
			}
			added := false
			for c := range choice {
				entry := t.u.entry(c)
				if !entry.Cons.subset(never) {
					continue
				}
				satisfied := true
				for _, g := range entry.Deps {
					if start.disjoint(g) {
						satisfied = false
						break
					}
				}
				if satisfied {
					check.add(c)
					start.add(c)
					added = true
					progressed = true
					break
				}
			}
			if !added {
				remaining = append(remaining, choice)
			}
		}
		choices = remaining
		if !progressed {
			break
		}
	}

	for id := range start {
		never.addAll(t.u.entry(id).Cons)
	}

	return essentialSet{base: start, never: never}
}

// subset reports whether every member of s is also in other.
func (s idSet) subset(other idSet) bool {
	for id := range s {
		if !other.has(id) {
			return false
		}
	}
	return true
}
