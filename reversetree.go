package migrator

// ComputeReverseTree returns the transitive closure of packages that could
// be affected by removing pkg: a breadth-first traversal over RDeps,
// deduped with a seen set. The result is the least fixed
// point of "include x if x is an rdep of some already-included y". pkg
// itself is not included unless it is also its own (indirect) rdep.
func (t *Tester) ComputeReverseTree(pkg Tuple) ([]Tuple, error) {
	id, err := t.u.idFor(pkg)
	if err != nil {
		return nil, err
	}

	seen := make(idSet)
	frontier := t.u.entry(id).RDeps.clone()

	for len(frontier) > 0 {
		next := make(idSet)
		for id := range frontier {
			if seen.has(id) {
				continue
			}
			seen.add(id)
			for rdep := range t.u.entry(id).RDeps {
				if !seen.has(rdep) {
					next.add(rdep)
				}
			}
		}
		frontier = next
	}

	out := make([]Tuple, 0, len(seen))
	for id := range seen {
		out = append(out, t.u.in.tuple(id))
	}
	return out, nil
}
