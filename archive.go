package migrator

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// ReadBugsFile parses a BugsV file: lines of `<package> <bug>[,<bug>...]`
// mapping a package (binary, or `src:<name>` for a source-level bug) to
// the set of open release-critical bugs against it.
func ReadBugsFile(r io.Reader) (map[string]map[string]bool, error) {
	bugs := make(map[string]map[string]bool)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) != 2 {
			continue
		}
		pkg := fields[0]
		set := bugs[pkg]
		if set == nil {
			set = make(map[string]bool)
			bugs[pkg] = set
		}
		for _, b := range strings.Split(fields[1], ",") {
			set[b] = true
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "reading BugsV file")
	}
	return bugs, nil
}

// UrgencyRecord is one row of an Urgency file.
type UrgencyRecord struct {
	Source  string
	Version string
	Urgency string
}

// ReadUrgencyFile parses an Urgency file: lines of
// `<source> <version> <urgency>`.
func ReadUrgencyFile(r io.Reader) ([]UrgencyRecord, error) {
	var out []UrgencyRecord
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) != 3 {
			continue
		}
		out = append(out, UrgencyRecord{Source: fields[0], Version: fields[1], Urgency: fields[2]})
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "reading Urgency file")
	}
	return out, nil
}

// ReadDatesFile parses an age-policy-dates file: lines of
// `<source> <version> <day>`. The returned map is suitable for
// AgePolicy.LoadDates.
func ReadDatesFile(r io.Reader) (map[string][2]string, error) {
	dates := make(map[string][2]string)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) != 3 {
			continue
		}
		if _, err := strconv.Atoi(fields[2]); err != nil {
			continue
		}
		dates[fields[0]] = [2]string{fields[1], fields[2]}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "reading age-policy-dates file")
	}
	return dates, nil
}

// WriteDatesFile serializes dates in the age-policy-dates format, one
// `<source> <version> <day>` line per source, sorted by source name.
func WriteDatesFile(w io.Writer, dates map[string]ageRecord) error {
	names := make([]string, 0, len(dates))
	for name := range dates {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		rec := dates[name]
		if _, err := fmt.Fprintf(w, "%s %s %d\n", name, rec.version, rec.day); err != nil {
			return errors.Wrap(err, "writing age-policy-dates file")
		}
	}
	return nil
}

// WriteNonInstallableReport writes the non-installability report: one
// `<arch>: <pkg> <pkg> ...` line per architecture, sorted by arch, with
// package names sorted within each line, preceded by "Built on"/"Last
// update" timestamp headers. now is injected by the caller since this
// package never calls time.Now itself.
func WriteNonInstallableReport(w io.Writer, nuninst map[Arch][]string, now time.Time) error {
	stamp := now.UTC().Format("2006.01.02 15:04:05 -0700")
	if _, err := fmt.Fprintf(w, "Built on: %s\nLast update: %s\n\n", stamp, stamp); err != nil {
		return errors.Wrap(err, "writing report header")
	}

	arches := make([]string, 0, len(nuninst))
	for a := range nuninst {
		arches = append(arches, string(a))
	}
	sort.Strings(arches)

	for _, a := range arches {
		names := append([]string(nil), nuninst[Arch(a)]...)
		sort.Strings(names)
		if _, err := fmt.Fprintf(w, "%s: %s\n", a, strings.Join(names, " ")); err != nil {
			return errors.Wrap(err, "writing non-installable report")
		}
	}
	return nil
}

// ReadNonInstallableReport parses a report written by
// WriteNonInstallableReport, keeping only the architectures present in
// keep.
func ReadNonInstallableReport(r io.Reader, keep map[Arch]bool) (map[Arch][]string, error) {
	out := make(map[Arch][]string)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		idx := strings.Index(line, ":")
		if idx < 0 {
			continue
		}
		archField := strings.TrimSpace(line[:idx])
		// a "+" suffix (e.g. "amd64+b1") marks a secondary run; only the
		// base architecture name is meaningful here.
		if plus := strings.Index(archField, "+"); plus >= 0 {
			archField = archField[:plus]
		}
		if !keep[Arch(archField)] {
			continue
		}
		names := strings.Fields(line[idx+1:])
		out[Arch(archField)] = names
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "reading non-installable report")
	}
	return out, nil
}

// WriteHeidiResult writes the final migration result: every binary
// package in the target suite (sorted by architecture then name),
// followed by every source package (sorted by name), in the
// `name version arch section` / `name version source section` form the
// downstream archive tooling expects.
func WriteHeidiResult(w io.Writer, u *Universe, binaries map[Arch]map[string]*BinaryRecord, sources map[string]*SourceRecord) error {
	arches := make([]string, 0, len(binaries))
	for a := range binaries {
		arches = append(arches, string(a))
	}
	sort.Strings(arches)

	for _, a := range arches {
		recs := binaries[Arch(a)]
		names := make([]string, 0, len(recs))
		for n := range recs {
			names = append(names, n)
		}
		sort.Strings(names)
		for _, n := range names {
			rec := recs[n]
			arch := string(rec.Arch)
			if arch == "" {
				arch = "all"
			}
			section := rec.Section
			if section == "" {
				section = "faux"
			}
			if _, err := fmt.Fprintf(w, "%s %s %s %s\n", n, rec.Version, arch, section); err != nil {
				return errors.Wrap(err, "writing HeidiResult binaries")
			}
		}
	}

	srcNames := make([]string, 0, len(sources))
	for n := range sources {
		srcNames = append(srcNames, n)
	}
	sort.Strings(srcNames)
	for _, n := range srcNames {
		src := sources[n]
		section := src.Section
		if section == "" {
			section = "unknown"
		}
		if _, err := fmt.Fprintf(w, "%s %s source %s\n", n, src.Version, section); err != nil {
			return errors.Wrap(err, "writing HeidiResult sources")
		}
	}
	return nil
}

// WriteOldLibrariesReport formats the "smart table" of packages kept
// around only to satisfy reverse dependencies: one `  <name>: <arch>
// <arch> ...` line per package, in first-seen order.
func WriteOldLibrariesReport(w io.Writer, items []MigrationItem) error {
	order := make([]string, 0)
	byName := make(map[string][]string)
	for _, it := range items {
		if _, ok := byName[it.Package]; !ok {
			order = append(order, it.Package)
		}
		byName[it.Package] = append(byName[it.Package], it.Architecture)
	}
	for _, name := range order {
		if _, err := fmt.Fprintf(w, "  %s: %s\n", name, strings.Join(byName[name], " ")); err != nil {
			return errors.Wrap(err, "writing old-libraries report")
		}
	}
	return nil
}
