package main

import (
	"bufio"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang/migrator"
	"github.com/golang/migrator/internal/config"
	"github.com/pkg/errors"
)

// buildUniverse loads the Universe and the initial Candidate Set from a
// simple per-architecture package-list format under
// cfg.TestingPath/<arch>/Packages:
//
//	name version arch essential deps cons
//
// where essential is `yes` or `-`, and deps/cons are `-` or a
// comma-separated list of dependency groups, each group a
// `|`-separated list of `name/version/arch` alternatives (cons has no
// groups, just a flat comma list of `name/version/arch` entries).
//
// This is intentionally not a full Debian control-file/deb822 parser
// (out of scope): it exists so the driver loop below has something real
// to run against.
func buildUniverse(cfg *config.Config) (*migrator.Universe, []migrator.Tuple, []migrator.Tuple, error) {
	u := migrator.NewUniverse()
	var testing []migrator.Tuple
	var essentials []migrator.Tuple

	for _, arch := range cfg.Architectures {
		path := filepath.Join(cfg.TestingPath, arch, "Packages")
		f, err := os.Open(path)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, nil, nil, errors.Wrapf(err, "opening package list %s", path)
		}

		err = func() error {
			defer f.Close()
			scanner := bufio.NewScanner(f)
			for scanner.Scan() {
				line := strings.TrimSpace(scanner.Text())
				if line == "" || strings.HasPrefix(line, "#") {
					continue
				}
				fields := strings.Fields(line)
				if len(fields) < 6 {
					continue
				}
				tup := migrator.Tuple{Name: fields[0], Version: fields[1], Arch: migrator.Arch(fields[2])}
				deps := parseDepGroups(fields[4])
				cons := parseFlatTuples(fields[5])
				u.AddBinary(tup, deps, cons)
				testing = append(testing, tup)
				if fields[3] == "yes" {
					essentials = append(essentials, tup)
				}
			}
			return scanner.Err()
		}()
		if err != nil {
			return nil, nil, nil, err
		}
	}

	archs := make([]migrator.Arch, len(cfg.Architectures))
	for i, a := range cfg.Architectures {
		archs[i] = migrator.Arch(a)
	}
	u.RemapArchAll(archs)
	if err := u.RegisterReverses(true); err != nil {
		return nil, nil, nil, err
	}

	return u, testing, essentials, nil
}

func parseDepGroups(field string) [][]migrator.Tuple {
	if field == "-" {
		return nil
	}
	var groups [][]migrator.Tuple
	for _, group := range strings.Split(field, ",") {
		var alts []migrator.Tuple
		for _, alt := range strings.Split(group, "|") {
			if t, ok := parseTuple(alt); ok {
				alts = append(alts, t)
			}
		}
		if len(alts) > 0 {
			groups = append(groups, alts)
		}
	}
	return groups
}

func parseFlatTuples(field string) []migrator.Tuple {
	if field == "-" {
		return nil
	}
	var out []migrator.Tuple
	for _, tok := range strings.Split(field, ",") {
		if t, ok := parseTuple(tok); ok {
			out = append(out, t)
		}
	}
	return out
}

func parseTuple(s string) (migrator.Tuple, bool) {
	parts := strings.SplitN(s, "/", 3)
	if len(parts) != 3 {
		return migrator.Tuple{}, false
	}
	return migrator.Tuple{Name: parts[0], Version: parts[1], Arch: migrator.Arch(parts[2])}, true
}

func buildAgePolicy(cfg *config.Config, hints *migrator.HintStore) (*migrator.AgePolicy, error) {
	datesPath := filepath.Join(cfg.StateDir, "age-policy-dates")
	policy, err := migrator.NewAgePolicy(cfg.MinDays, cfg.DefaultUrgency, hints, migrator.ArchiveDay(time.Now().Unix()))
	if err != nil {
		return nil, err
	}

	if f, err := os.Open(datesPath); err == nil {
		dates, err := migrator.ReadDatesFile(f)
		f.Close()
		if err != nil {
			return nil, err
		}
		policy.LoadDates(dates)
	}

	urgencyPath := filepath.Join(cfg.TestingPath, "Urgency")
	if f, err := os.Open(urgencyPath); err == nil {
		records, err := migrator.ReadUrgencyFile(f)
		f.Close()
		if err != nil {
			return nil, err
		}
		for _, r := range records {
			policy.LoadUrgencies(r.Source, r.Version, r.Urgency, "", r.Version)
		}
	}

	return policy, nil
}

func buildRCBugPolicy(cfg *config.Config) (*migrator.RCBugPolicy, error) {
	unstableBugs, err := readBugsFile(filepath.Join(cfg.UnstablePath, "BugsV"))
	if err != nil {
		return nil, err
	}
	testingBugs, err := readBugsFile(filepath.Join(cfg.TestingPath, "BugsV"))
	if err != nil {
		return nil, err
	}
	return migrator.NewRCBugPolicy(unstableBugs, testingBugs), nil
}

func readBugsFile(path string) (map[string]map[string]bool, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return map[string]map[string]bool{}, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	defer f.Close()
	return migrator.ReadBugsFile(f)
}

// proposeMigrationGroups walks every source named in
// cfg.UnstablePath/migration-candidates that isn't already excused by a
// policy gate and turns it into a MigrationGroup the solver can order.
// Each line is `name version tuple...`, where each tuple is
// `name/version/arch`: a tuple already present in the Candidate Set is
// treated as a removal, anything else as an addition. Tuples the
// Universe has never seen are registered with no dependencies of their
// own, since parsing their control data is out of scope here.
func proposeMigrationGroups(cfg *config.Config, universe *migrator.Universe, tester *migrator.Tester, age *migrator.AgePolicy, rc *migrator.RCBugPolicy, logger *log.Logger) ([]migrator.MigrationGroup, error) {
	path := filepath.Join(cfg.UnstablePath, "migration-candidates")
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	defer f.Close()

	var groups []migrator.MigrationGroup
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		name, version := fields[0], fields[1]

		verdict, _ := age.Apply(name, version, true)
		if verdict.IsRejected() {
			logger.Printf("%s/%s held back by age policy: %s", name, version, verdict)
			continue
		}
		verdict, _ = rc.Apply(name, true, nil, nil)
		if verdict.IsRejected() {
			logger.Printf("%s/%s held back by RC-bug policy: %s", name, version, verdict)
			continue
		}

		item := migrator.ParseMigrationItem(name, false)
		var adds, rms []migrator.Tuple
		for _, tok := range fields[2:] {
			t, ok := parseTuple(tok)
			if !ok {
				continue
			}
			if tester.InTesting(t) {
				rms = append(rms, t)
				continue
			}
			if !universe.Has(t) {
				universe.AddBinary(t, nil, nil)
			}
			adds = append(adds, t)
		}
		groups = append(groups, migrator.MigrationGroup{Item: item, Adds: adds, Rms: rms})
	}
	return groups, scanner.Err()
}

// applyRuns commits every solver-ordered run in turn: for each item in a
// run, add its new binaries and remove its superseded ones against a
// fresh SuiteState, recording every change into an UndoEntry. If any
// step in a run fails the whole log accumulated so far is rolled back
// and the failure is returned; a clean pass discards the log, the way a
// committed migration run never needs its recorded prior state again.
func applyRuns(universe *migrator.Universe, tester *migrator.Tester, groups []migrator.MigrationGroup, runs [][]migrator.MigrationItem, logger *log.Logger) error {
	byKey := make(map[string]migrator.MigrationGroup, len(groups))
	for _, g := range groups {
		byKey[g.Item.Key()] = g
	}

	state := migrator.NewSuiteState()
	undo := migrator.NewUndoLog()

	for _, run := range runs {
		entry := migrator.NewUndoEntry(run[0])
		if err := applyRun(state, entry, universe, tester, byKey, run, logger); err != nil {
			undo.Record(entry)
			if rbErr := undo.Rollback(state, tester); rbErr != nil {
				return errors.Wrapf(rbErr, "rolling back after failed run (original error: %v)", err)
			}
			return errors.Wrap(err, "applying migration run")
		}
		undo.Record(entry)
	}

	undo.Discard()
	return nil
}

func applyRun(state *migrator.SuiteState, entry *migrator.UndoEntry, universe *migrator.Universe, tester *migrator.Tester, byKey map[string]migrator.MigrationGroup, run []migrator.MigrationItem, logger *log.Logger) error {
	for _, item := range run {
		group, ok := byKey[item.Key()]
		if !ok {
			continue
		}
		logger.Printf("migrating %s", item)

		for _, t := range group.Rms {
			// Put the removed tuple on record first, so the undo entry
			// holds it as the prior value and a rollback re-adds it.
			if state.Binaries[t.Arch] == nil {
				state.Binaries[t.Arch] = make(map[string]*migrator.BinaryRecord)
			}
			if _, ok := state.Binaries[t.Arch][t.Name]; !ok {
				state.Binaries[t.Arch][t.Name] = &migrator.BinaryRecord{Name: t.Name, Arch: t.Arch, Version: t.Version}
			}
			state.DeleteBinary(entry, t.Arch, t.Name)
			if err := tester.Remove(t); err != nil {
				return err
			}
		}
		for _, t := range group.Adds {
			state.SetBinary(entry, t.Arch, t.Name, &migrator.BinaryRecord{Name: t.Name, Arch: t.Arch, Version: t.Version})
			if err := tester.Add(t); err != nil {
				return err
			}
			if err := universe.RegisterReverses(true, t); err != nil {
				return err
			}
		}
	}
	return nil
}
