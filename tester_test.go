package migrator

import "testing"

func simpleUniverse() *Universe {
	u := NewUniverse()
	leaf := Tuple{Name: "leaf", Version: "1.0", Arch: "amd64"}
	needsLeaf := Tuple{Name: "needs-leaf", Version: "1.0", Arch: "amd64"}
	orphan := Tuple{Name: "orphan", Version: "1.0", Arch: "amd64"}
	conflicting := Tuple{Name: "conflicting", Version: "1.0", Arch: "amd64"}

	u.AddBinary(leaf, nil, nil)
	u.AddBinary(needsLeaf, [][]Tuple{{leaf}}, nil)
	u.AddBinary(orphan, [][]Tuple{{{Name: "missing", Version: "1.0", Arch: "amd64"}}}, nil)
	u.AddBinary(conflicting, nil, []Tuple{leaf})

	_ = u.RegisterReverses(true)
	return u
}

func TestTesterIsInstallableLeaf(t *testing.T) {
	u := simpleUniverse()
	leaf := Tuple{Name: "leaf", Version: "1.0", Arch: "amd64"}
	tester, err := NewTester(u, []Tuple{leaf}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ok, err := tester.IsInstallable(leaf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("a dependency-free tuple present in testing must be installable")
	}
}

func TestTesterIsInstallableSatisfiedDep(t *testing.T) {
	u := simpleUniverse()
	leaf := Tuple{Name: "leaf", Version: "1.0", Arch: "amd64"}
	needsLeaf := Tuple{Name: "needs-leaf", Version: "1.0", Arch: "amd64"}
	tester, err := NewTester(u, []Tuple{leaf, needsLeaf}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ok, err := tester.IsInstallable(needsLeaf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("a tuple whose only dep is in testing must be installable")
	}
}

func TestTesterIsInstallableMissingDep(t *testing.T) {
	u := simpleUniverse()
	orphan := Tuple{Name: "orphan", Version: "1.0", Arch: "amd64"}
	tester, err := NewTester(u, []Tuple{orphan}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ok, err := tester.IsInstallable(orphan)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("a tuple whose only dep is absent from testing must not be installable")
	}
}

func TestTesterIsInstallableConflict(t *testing.T) {
	u := simpleUniverse()
	leaf := Tuple{Name: "leaf", Version: "1.0", Arch: "amd64"}
	conflicting := Tuple{Name: "conflicting", Version: "1.0", Arch: "amd64"}
	tester, err := NewTester(u, []Tuple{leaf, conflicting}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ok, err := tester.IsInstallable(conflicting)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("a conflict with a package the tuple does not depend on must not make it uninstallable")
	}
}

func TestTesterIsInstallableNotInUniverse(t *testing.T) {
	u := simpleUniverse()
	tester, err := NewTester(u, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err = tester.IsInstallable(Tuple{Name: "ghost", Version: "1.0", Arch: "amd64"})
	if _, ok := err.(*NotInUniverse); !ok {
		t.Fatalf("expected *NotInUniverse, got %v", err)
	}
}

func TestTesterAddMakesDependentInstallable(t *testing.T) {
	u := simpleUniverse()
	leaf := Tuple{Name: "leaf", Version: "1.0", Arch: "amd64"}
	needsLeaf := Tuple{Name: "needs-leaf", Version: "1.0", Arch: "amd64"}
	tester, err := NewTester(u, []Tuple{needsLeaf}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok, _ := tester.IsInstallable(needsLeaf); ok {
		t.Fatal("needs-leaf must not be installable before leaf is added")
	}
	if err := tester.Add(leaf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ok, err := tester.IsInstallable(needsLeaf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("needs-leaf must become installable once leaf is added")
	}
}

func TestTesterRemoveMakesDependentUninstallable(t *testing.T) {
	u := simpleUniverse()
	leaf := Tuple{Name: "leaf", Version: "1.0", Arch: "amd64"}
	needsLeaf := Tuple{Name: "needs-leaf", Version: "1.0", Arch: "amd64"}
	tester, err := NewTester(u, []Tuple{leaf, needsLeaf}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok, _ := tester.IsInstallable(needsLeaf); !ok {
		t.Fatal("precondition: needs-leaf must start installable")
	}
	if err := tester.Remove(leaf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ok, err := tester.IsInstallable(needsLeaf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("needs-leaf must stop being installable once leaf is removed")
	}
}

func TestTesterInTesting(t *testing.T) {
	u := simpleUniverse()
	leaf := Tuple{Name: "leaf", Version: "1.0", Arch: "amd64"}
	orphan := Tuple{Name: "orphan", Version: "1.0", Arch: "amd64"}
	tester, err := NewTester(u, []Tuple{leaf}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !tester.InTesting(leaf) {
		t.Fatal("leaf must be reported as in testing")
	}
	if tester.InTesting(orphan) {
		t.Fatal("orphan must not be reported as in testing")
	}
}

func TestTesterChoiceResolution(t *testing.T) {
	u := NewUniverse()
	altA := Tuple{Name: "alt-a", Version: "1.0", Arch: "amd64"}
	altB := Tuple{Name: "alt-b", Version: "1.0", Arch: "amd64"}
	needsEither := Tuple{Name: "needs-either", Version: "1.0", Arch: "amd64"}
	u.AddBinary(altA, nil, nil)
	u.AddBinary(altB, [][]Tuple{{{Name: "missing", Version: "1.0", Arch: "amd64"}}}, nil)
	u.AddBinary(needsEither, [][]Tuple{{altA, altB}}, nil)
	_ = u.RegisterReverses(true)

	tester, err := NewTester(u, []Tuple{altA, altB, needsEither}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ok, err := tester.IsInstallable(needsEither)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("a dependency group with one installable alternative must resolve installable")
	}
}

func TestComputeReverseTree(t *testing.T) {
	u := simpleUniverse()
	leaf := Tuple{Name: "leaf", Version: "1.0", Arch: "amd64"}
	needsLeaf := Tuple{Name: "needs-leaf", Version: "1.0", Arch: "amd64"}
	tester, err := NewTester(u, []Tuple{leaf, needsLeaf}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tree, err := tester.ComputeReverseTree(leaf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	found := false
	for _, tup := range tree {
		if tup == needsLeaf {
			found = true
		}
	}
	if !found {
		t.Fatal("removing leaf must reach needs-leaf in its reverse tree")
	}
}

func TestExportImportEssentialSetRoundTrip(t *testing.T) {
	u := simpleUniverse()
	leaf := Tuple{Name: "leaf", Version: "1.0", Arch: "amd64"}
	tester, err := NewTester(u, []Tuple{leaf}, []Tuple{leaf})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := tester.IsInstallable(leaf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	base, never, ok := tester.ExportEssentialSet("amd64")
	if !ok {
		t.Fatal("essential set must be cached after a check touching leaf's arch")
	}

	fresh, err := NewTester(u, []Tuple{leaf}, []Tuple{leaf})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fresh.ImportEssentialSet("amd64", base, never)
	if _, ok := fresh.cacheEss["amd64"]; !ok {
		t.Fatal("ImportEssentialSet must seed the cache without recomputation")
	}
}

func TestExportSafeSet(t *testing.T) {
	u := simpleUniverse()
	tester, err := NewTester(u, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ids := tester.ExportSafeSet()
	leafID, _ := u.idFor(Tuple{Name: "leaf", Version: "1.0", Arch: "amd64"})
	found := false
	for _, id := range ids {
		if tupleID(id) == leafID {
			found = true
		}
	}
	if !found {
		t.Fatal("leaf has no dependencies or conflicts and must be in the safe set")
	}
}
