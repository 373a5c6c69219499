package config

import "testing"

const goldenTOML = `
architectures = ["amd64", "arm64"]
nobreakarches = ["amd64"]
default_urgency = "low"
unstable_path = "/archive/unstable"
testing_path = "/archive/testing"
state_dir = "/var/lib/migrator"
hints_dir = "/archive/hints"

[min_days]
low = 10
medium = 5
high = 2
critical = 0
`

func TestParseGolden(t *testing.T) {
	cfg, err := Parse([]byte(goldenTOML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Architectures) != 2 || cfg.Architectures[0] != "amd64" {
		t.Fatalf("unexpected architectures: %v", cfg.Architectures)
	}
	if cfg.DefaultUrgency != "low" {
		t.Fatalf("unexpected default urgency: %q", cfg.DefaultUrgency)
	}
	if cfg.MinDays["critical"] != 0 {
		t.Fatalf("unexpected min_days: %+v", cfg.MinDays)
	}
	if cfg.StateDir != "/var/lib/migrator" {
		t.Fatalf("unexpected state dir: %q", cfg.StateDir)
	}
}

func TestParseInvalidTOML(t *testing.T) {
	if _, err := Parse([]byte("this is not [ valid toml")); err == nil {
		t.Fatal("expected a parse error for malformed TOML")
	}
}

func TestValidateRequiresDefaultUrgencyEntry(t *testing.T) {
	cfg := &Config{DefaultUrgency: "low", MinDays: map[string]int{"high": 2}}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error when default_urgency has no min_days entry")
	}
}

func TestValidateAccepts(t *testing.T) {
	cfg := &Config{DefaultUrgency: "low", MinDays: map[string]int{"low": 10}}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/path/migrator.toml"); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}
