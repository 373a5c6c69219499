// Command migrator drives one migration run: load configuration and
// archive state, run the policy gates over every candidate source, feed
// the survivors to the Migration Solver, and apply (or roll back) the
// result against the target suite.
package main

import (
	"bufio"
	"bytes"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"

	"github.com/golang/migrator"
	"github.com/golang/migrator/internal/config"
	"github.com/golang/migrator/internal/fsutil"
	"github.com/golang/migrator/internal/store"
)

// Config is the full configuration for one migrator invocation: working
// directory, arguments, and the streams to report through.
type Config struct {
	Args           []string
	Stdout, Stderr io.Writer
	WorkingDir     string
}

func main() {
	wd, err := os.Getwd()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to get working directory:", err)
		os.Exit(1)
	}
	c := &Config{
		Args:       os.Args,
		Stdout:     os.Stdout,
		Stderr:     os.Stderr,
		WorkingDir: wd,
	}
	os.Exit(c.Run())
}

// Run parses flags, wires the run together, and returns a process exit
// code.
func (c *Config) Run() int {
	fs := flag.NewFlagSet(c.Args[0], flag.ContinueOnError)
	fs.SetOutput(c.Stderr)
	configPath := fs.String("config", "migrator.toml", "path to the TOML configuration file")
	dryRun := fs.Bool("dry-run", false, "compute the migration but do not commit it")
	debugLevel, _ := strconv.Atoi(os.Getenv("BRITNEY_DEBUG"))
	debug := fs.Bool("debug", debugLevel != 0, "enable solver trace logging")
	if err := fs.Parse(c.Args[1:]); err != nil {
		return 2
	}

	logger := log.New(c.Stderr, "migrator: ", log.LstdFlags)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Println(err)
		return 1
	}
	if err := cfg.Validate(); err != nil {
		logger.Println(err)
		return 1
	}

	lock := fsutil.NewStateLock(filepath.Join(cfg.StateDir, "migrator.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		logger.Println(err)
		return 1
	}
	if !locked {
		logger.Println("another migration run already holds the state directory lock")
		return 1
	}
	defer lock.Unlock()

	cache, err := store.Open(filepath.Join(cfg.StateDir, "cache.db"))
	if err != nil {
		logger.Println(err)
		return 1
	}
	defer cache.Close()

	hints, err := loadHints(cfg.HintsDir)
	if err != nil {
		logger.Println(err)
		return 1
	}

	universe, testing, essentials, err := buildUniverse(cfg)
	if err != nil {
		logger.Println(err)
		return 1
	}

	tester, err := migrator.NewTester(universe, testing, essentials)
	if err != nil {
		logger.Println(err)
		return 1
	}
	if *debug {
		tester.Trace = logger
	}

	for _, a := range cfg.Architectures {
		arch := migrator.Arch(a)
		if base, never, ok, err := cache.GetEssentialSet(a); err == nil && ok {
			tester.ImportEssentialSet(arch, base, never)
		}
	}

	agePolicy, err := buildAgePolicy(cfg, hints)
	if err != nil {
		logger.Println(err)
		return 1
	}

	rcPolicy, err := buildRCBugPolicy(cfg)
	if err != nil {
		logger.Println(err)
		return 1
	}

	groups, err := proposeMigrationGroups(cfg, universe, tester, agePolicy, rcPolicy, logger)
	if err != nil {
		logger.Println(err)
		return 1
	}

	runs, err := tester.SolveMigrationGroups(groups)
	if err != nil {
		logger.Println(err)
		return 1
	}

	logger.Printf("solver proposed %d migration run(s)", len(runs))
	if *dryRun {
		for _, run := range runs {
			for _, item := range run {
				logger.Printf("would migrate: %s", item)
			}
		}
		return 0
	}

	if err := applyRuns(universe, tester, groups, runs, logger); err != nil {
		logger.Println(err)
		return 1
	}

	if err := persistCaches(cache, tester, cfg.Architectures); err != nil {
		logger.Println(err)
		return 1
	}

	var buf bytes.Buffer
	if err := migrator.WriteDatesFile(&buf, agePolicy.Dates()); err != nil {
		logger.Println(err)
		return 1
	}
	if err := fsutil.AtomicWriteFile(filepath.Join(cfg.StateDir, "age-policy-dates"), buf.Bytes()); err != nil {
		logger.Println(err)
		return 1
	}

	return 0
}

func loadHints(dir string) (*migrator.HintStore, error) {
	hintStore := migrator.NewHintStore()
	files, err := fsutil.ListSuiteFiles(dir)
	if err != nil {
		return nil, err
	}
	for _, path := range files {
		if err := loadHintFile(hintStore, path); err != nil {
			return nil, err
		}
	}
	return hintStore, nil
}

func loadHintFile(hintStore *migrator.HintStore, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	user := filepath.Base(path)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if err := hintStore.Add(line, user); err != nil {
			if _, ok := err.(*migrator.BrokenHint); ok {
				log.Printf("%s: %v", path, err)
				continue
			}
			return err
		}
	}
	return scanner.Err()
}

func persistCaches(cache *store.Store, tester *migrator.Tester, arches []string) error {
	for _, a := range arches {
		base, never, ok := tester.ExportEssentialSet(migrator.Arch(a))
		if !ok {
			continue
		}
		if err := cache.PutEssentialSet(a, base, never); err != nil {
			return err
		}
	}
	return cache.PutSafeSet(tester.ExportSafeSet())
}
