package migrator

import "testing"

func TestSuiteStateSetSourceRecordsUndo(t *testing.T) {
	state := NewSuiteState()
	entry := NewUndoEntry(ParseMigrationItem("foo", false))

	state.SetSource(entry, "foo", &SourceRecord{Name: "foo", Version: "1.0"})
	if state.Sources["foo"].Version != "1.0" {
		t.Fatal("source record must be installed")
	}

	state.SetSource(entry, "foo", &SourceRecord{Name: "foo", Version: "2.0"})
	if state.Sources["foo"].Version != "2.0" {
		t.Fatal("second set must replace the record")
	}

	su, ok := entry.sources["foo"]
	if !ok {
		t.Fatal("first write must be recorded into the undo entry")
	}
	if !su.Delete {
		t.Fatal("the first write replaced an absent prior state, which must be recorded as Delete=true (rollback should remove the key, not restore a record)")
	}
}

func TestSuiteStateSetSourceOnlyRecordsFirstWrite(t *testing.T) {
	state := NewSuiteState()
	entry := NewUndoEntry(ParseMigrationItem("foo", false))
	state.Sources["foo"] = &SourceRecord{Name: "foo", Version: "1.0"}

	state.SetSource(entry, "foo", &SourceRecord{Name: "foo", Version: "2.0"})
	state.SetSource(entry, "foo", &SourceRecord{Name: "foo", Version: "3.0"})

	su := entry.sources["foo"]
	if su.Prior == nil || su.Prior.Version != "1.0" {
		t.Fatalf("undo entry must retain the state before the group began, got %+v", su.Prior)
	}
}

func TestSuiteStateDeleteBinary(t *testing.T) {
	state := NewSuiteState()
	entry := NewUndoEntry(ParseMigrationItem("foo", false))
	state.SetBinary(entry, "amd64", "foo", &BinaryRecord{Name: "foo", Arch: "amd64", Version: "1.0"})

	entry2 := NewUndoEntry(ParseMigrationItem("-foo", false))
	state.DeleteBinary(entry2, "amd64", "foo")
	if _, ok := state.binaryMap("amd64")["foo"]; ok {
		t.Fatal("binary must be gone after DeleteBinary")
	}
	bu := entry2.binaries[binKey{Name: "foo", Arch: "amd64"}]
	if bu.Delete {
		t.Fatal("deleting an existing record must record Delete=false with its Prior value, not Delete=true")
	}
	if bu.Prior.Version != "1.0" {
		t.Fatalf("expected prior version 1.0, got %+v", bu.Prior)
	}
}

func TestSuiteStateVirtualNewVsExisting(t *testing.T) {
	state := NewSuiteState()
	entry := NewUndoEntry(ParseMigrationItem("foo", false))

	state.SetVirtual(entry, "amd64", "mail-transport-agent", []string{"postfix"})
	if len(entry.nvirtual) != 1 {
		t.Fatal("a brand-new virtual entry must be recorded as new, not as a restorable prior value")
	}

	state.SetVirtual(entry, "amd64", "mail-transport-agent", []string{"exim4"})
	if _, ok := entry.virtual[virtualKey{Name: "mail-transport-agent", Arch: "amd64"}]; !ok {
		t.Fatal("overwriting an existing virtual entry must record its prior providers")
	}
}

func TestUndoLogRollbackRestoresBinary(t *testing.T) {
	state := NewSuiteState()
	u := NewUniverse()
	fooV1 := Tuple{Name: "foo", Version: "1.0", Arch: "amd64"}
	fooV2 := Tuple{Name: "foo", Version: "2.0", Arch: "amd64"}
	u.AddBinary(fooV1, nil, nil)
	u.AddBinary(fooV2, nil, nil)
	tester, err := NewTester(u, []Tuple{fooV1}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Seed the suite state as if "foo" v1.0 was already on record before
	// this migration attempt began, the way a real run would have loaded
	// it from the archive.
	state.binaryMap("amd64")["foo"] = &BinaryRecord{Name: "foo", Arch: "amd64", Version: "1.0"}

	entry := NewUndoEntry(ParseMigrationItem("foo", false))
	state.SetBinary(entry, "amd64", "foo", &BinaryRecord{Name: "foo", Arch: "amd64", Version: "2.0"})
	if err := tester.Remove(fooV1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := tester.Add(fooV2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	log := NewUndoLog()
	log.Record(entry)
	if err := log.Rollback(state, tester); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if state.binaryMap("amd64")["foo"].Version != "1.0" {
		t.Fatalf("rollback must restore the pre-entry binary record, got %+v", state.binaryMap("amd64")["foo"])
	}
	if !tester.InTesting(fooV1) {
		t.Fatal("rollback must restore the tester's candidate-set membership")
	}
	if tester.InTesting(fooV2) {
		t.Fatal("rollback must remove the tester's candidate-set membership for the rolled-back addition")
	}
}

func TestSplitNameArch(t *testing.T) {
	name, arch, ok := splitNameArch("foo/amd64")
	if !ok || name != "foo" || arch != Arch("amd64") {
		t.Fatalf("unexpected split: %q %q %v", name, arch, ok)
	}
	if _, _, ok := splitNameArch("noarch"); ok {
		t.Fatal("a string with no slash must not split")
	}
}
