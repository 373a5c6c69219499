package migrator

import "testing"

func TestParseHintRequiresVersion(t *testing.T) {
	if _, err := ParseHint("easy foo", "ftpmaster"); err == nil {
		t.Fatal("easy hints must require a version per package")
	}
	h, err := ParseHint("easy foo/1.0", "ftpmaster")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(h.Packages) != 1 || h.Packages[0].Version != "1.0" {
		t.Fatalf("unexpected parse: %+v", h)
	}
}

func TestParseHintBlockRejectsVersion(t *testing.T) {
	if _, err := ParseHint("block foo/1.0", "ftpmaster"); err == nil {
		t.Fatal("block hints must reject a version")
	}
	h, err := ParseHint("block foo", "ftpmaster")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(h.Packages) != 1 || h.Packages[0].Version != "" {
		t.Fatalf("unexpected parse: %+v", h)
	}
}

func TestParseHintAgeDays(t *testing.T) {
	h, err := ParseHint("age-days 5 foo/1.0", "ftpmaster")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.Days != 5 || len(h.Packages) != 1 {
		t.Fatalf("unexpected parse: %+v", h)
	}

	if _, err := ParseHint("age-days notanumber foo/1.0", "ftpmaster"); err == nil {
		t.Fatal("non-integer day count must be rejected")
	}
}

func TestParseHintNoPackages(t *testing.T) {
	if _, err := ParseHint("block", "ftpmaster"); err == nil {
		t.Fatal("a hint with no packages must be broken")
	}
}

func TestHintEqual(t *testing.T) {
	a, _ := ParseHint("easy foo/1.0 bar/2.0", "a")
	b, _ := ParseHint("easy bar/2.0 foo/1.0", "b")
	if !a.Equal(b) {
		t.Fatal("hints with the same type and package set (any order) must be equal regardless of user")
	}

	c, _ := ParseHint("easy foo/1.0", "a")
	if a.Equal(c) {
		t.Fatal("hints with different package sets must not be equal")
	}
}

func TestHintStoreAddSkipsBroken(t *testing.T) {
	s := NewHintStore()
	if err := s.Add("block foo/1.0", "u"); err == nil {
		t.Fatal("expected broken hint error")
	}
	if len(s.Search(HintQuery{OnlyActive: true})) != 0 {
		t.Fatal("a broken hint must never be added to the store")
	}
	if err := s.Add("block foo", "u"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(s.Search(HintQuery{OnlyActive: true})) != 1 {
		t.Fatal("expected one stored hint")
	}
}

func TestHintStoreSearchFilters(t *testing.T) {
	s := NewHintStore()
	_ = s.Add("easy foo/1.0", "alice")
	_ = s.Add("easy bar/2.0", "bob")
	_ = s.Add("block baz", "alice")

	got := s.Search(HintQuery{Type: "easy", OnlyActive: true})
	if len(got) != 2 {
		t.Fatalf("expected 2 easy hints, got %d", len(got))
	}

	got = s.Search(HintQuery{Type: "easy", Package: "foo", OnlyActive: true})
	if len(got) != 1 || got[0].User != "alice" {
		t.Fatalf("unexpected filtered result: %+v", got)
	}
}
