package migrator

// sourceUndo/binaryUndo/virtualUndo record what to do to a key on
// rollback: restore Prior (Delete == false), or remove the key outright
// (Delete == true, meaning the key did not exist before the mutation).
type sourceUndo struct {
	Delete bool
	Prior  *SourceRecord
}

type binaryUndo struct {
	Delete bool
	Prior  *BinaryRecord
}

type virtualUndo struct {
	Delete bool
	Prior  []string
}

// UndoEntry is the prior-state snapshot for one speculative migration
// application. Only the first write to a given key within the entry's
// lifetime is recorded, so the entry always holds the state immediately
// before the migration group began.
type UndoEntry struct {
	Item MigrationItem

	sources  map[string]sourceUndo
	binaries map[binKey]binaryUndo
	nvirtual []virtualKey
	virtual  map[virtualKey]virtualUndo
}

// NewUndoEntry returns an entry that will accumulate the prior state
// touched while applying item.
func NewUndoEntry(item MigrationItem) *UndoEntry {
	return &UndoEntry{
		Item:     item,
		sources:  make(map[string]sourceUndo),
		binaries: make(map[binKey]binaryUndo),
		virtual:  make(map[virtualKey]virtualUndo),
	}
}

func (e *UndoEntry) recordSource(name string, prior *SourceRecord) {
	if _, ok := e.sources[name]; ok {
		return
	}
	e.sources[name] = sourceUndo{Delete: prior == nil, Prior: prior}
}

func (e *UndoEntry) recordBinary(key binKey, prior *BinaryRecord) {
	if _, ok := e.binaries[key]; ok {
		return
	}
	e.binaries[key] = binaryUndo{Delete: prior == nil, Prior: prior}
}

func (e *UndoEntry) recordVirtual(key virtualKey, prior []string) {
	if _, ok := e.virtual[key]; ok {
		return
	}
	e.virtual[key] = virtualUndo{Prior: prior}
}

func (e *UndoEntry) recordNewVirtual(key virtualKey) {
	for _, k := range e.nvirtual {
		if k == key {
			return
		}
	}
	e.nvirtual = append(e.nvirtual, key)
}

// UndoLog accumulates one UndoEntry per speculative migration group
// applied during a run. It is write-once per attempt and consumed at
// most once: a committed run simply discards its entries, a rolled-back
// run calls Rollback and then discards them too.
type UndoLog struct {
	entries []*UndoEntry
}

// NewUndoLog returns an empty UndoLog.
func NewUndoLog() *UndoLog {
	return &UndoLog{}
}

// Record appends entry to the log.
func (u *UndoLog) Record(entry *UndoEntry) {
	u.entries = append(u.entries, entry)
}

// Discard clears the log, as happens on commit.
func (u *UndoLog) Discard() {
	u.entries = nil
}

// Rollback replays every recorded entry against state and tester in four
// phases, each completing for every entry before the next phase begins.
// Skipping that discipline lets the same binary be observed twice under
// different provides lists mid-rollback, which is exactly the bug the
// four-phase structure exists to avoid.
func (u *UndoLog) Rollback(state *SuiteState, tester *Tester) error {
	// Phase 1: restore the Source Table.
	for _, e := range u.entries {
		for name, su := range e.sources {
			if su.Delete {
				delete(state.Sources, name)
			} else {
				state.Sources[name] = su.Prior
			}
		}
	}

	// Phase 2: for every non-removal item whose source still exists in
	// the (now-restored) prior suite record, drop every binary that
	// source used to list from the target binary table and the tester.
	for _, e := range u.entries {
		if e.Item.IsRemoval() {
			continue
		}
		src, ok := state.Sources[e.Item.Package]
		if !ok {
			continue
		}
		for _, nameArch := range src.Binaries {
			name, arch, ok := splitNameArch(nameArch)
			if !ok {
				continue
			}
			if e.Item.Architecture != "source" && e.Item.Architecture != string(arch) {
				continue
			}
			bins := state.binaryMap(arch)
			if rec, exists := bins[name]; exists {
				delete(bins, name)
				_ = tester.Remove(Tuple{Name: name, Version: rec.Version, Arch: arch})
			}
		}
	}

	// Phase 3: restore all other binary-package changes, re-registering
	// each restored binary with the tester (remove, then add, to flush
	// any stale cached state).
	for _, e := range u.entries {
		for key, bu := range e.binaries {
			bins := state.binaryMap(key.Arch)
			if bu.Delete {
				if rec, exists := bins[key.Name]; exists {
					_ = tester.Remove(Tuple{Name: key.Name, Version: rec.Version, Arch: key.Arch})
				}
				delete(bins, key.Name)
				continue
			}
			if rec, exists := bins[key.Name]; exists {
				_ = tester.Remove(Tuple{Name: key.Name, Version: rec.Version, Arch: key.Arch})
			}
			bins[key.Name] = bu.Prior
			_ = tester.Add(Tuple{Name: key.Name, Version: bu.Prior.Version, Arch: key.Arch})
		}
	}

	// Phase 4: restore virtual-provider changes: delete brand-new
	// entries first, then restore/delete the rest.
	for _, e := range u.entries {
		for _, key := range e.nvirtual {
			delete(state.virtualMap(key.Arch), key.Name)
		}
		for key, vu := range e.virtual {
			m := state.virtualMap(key.Arch)
			if vu.Delete {
				delete(m, key.Name)
			} else {
				m[key.Name] = vu.Prior
			}
		}
	}

	return nil
}

func splitNameArch(s string) (string, Arch, bool) {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '/' {
			return s[:i], Arch(s[i+1:]), true
		}
	}
	return "", "", false
}
