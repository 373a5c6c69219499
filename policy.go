package migrator

import (
	"fmt"
	"sort"
)

// PolicyVerdict is the outcome of running one Policy Gate over one
// migration item.
type PolicyVerdict int

const (
	// PolicyPass means the item cleared the gate outright.
	PolicyPass PolicyVerdict = iota
	// PolicyPassHinted means the gate would have rejected the item, but
	// an administrator hint overruled it.
	PolicyPassHinted
	// PolicyRejectedTemporarily means the item failed the gate in a way
	// that is expected to self-correct with time (e.g. insufficient age).
	PolicyRejectedTemporarily
	// PolicyRejectedPermanently means the item failed the gate in a way
	// that will not self-correct without a hint or a new upload.
	PolicyRejectedPermanently
)

// IsRejected reports whether v is one of the two rejection verdicts.
func (v PolicyVerdict) IsRejected() bool {
	return v == PolicyRejectedTemporarily || v == PolicyRejectedPermanently
}

func (v PolicyVerdict) String() string {
	switch v {
	case PolicyPass:
		return "pass"
	case PolicyPassHinted:
		return "pass (hinted)"
	case PolicyRejectedTemporarily:
		return "rejected (temporary)"
	case PolicyRejectedPermanently:
		return "rejected (permanent)"
	default:
		return "unknown"
	}
}

// MissingDefaultUrgency is returned when an AgePolicy's minimum-days
// table has no entry for its own configured default urgency.
type MissingDefaultUrgency struct {
	Urgency string
}

func (e *MissingDefaultUrgency) Error() string {
	return fmt.Sprintf("missing age requirement for default urgency %q", e.Urgency)
}

// AgeInfo is the structured reasoning an AgePolicy attaches to its
// verdict, for reporting.
type AgeInfo struct {
	UnknownUrgency     string
	UrgencyReducedFrom string
	UrgencyReducedTo   string
	AgeRequirement     int
	CurrentAge         int
	ReducedRequirement int
	ReducedBy          string
	Reduced            bool
}

type ageRecord struct {
	version string
	day     int
}

// AgePolicy holds a source package in the origin suite for a
// configurable number of days, based on its urgency, before it is
// allowed to migrate. Urgencies are sticky: once an urgent upload is
// observed for a source, later lower-urgency uploads of the same source
// do not relax the requirement.
type AgePolicy struct {
	defaultUrgency string
	minDays        map[string]int
	hints          *HintStore

	dates      map[string]ageRecord
	urgencies  map[string]string
	today      int
}

// NewAgePolicy constructs an AgePolicy. minDays maps urgency name to the
// number of days a source must sit before migrating; defaultUrgency must
// be a key of minDays. today is the current archive day (see
// ArchiveDay).
func NewAgePolicy(minDays map[string]int, defaultUrgency string, hints *HintStore, today int) (*AgePolicy, error) {
	if _, ok := minDays[defaultUrgency]; !ok {
		return nil, &MissingDefaultUrgency{Urgency: defaultUrgency}
	}
	return &AgePolicy{
		defaultUrgency: defaultUrgency,
		minDays:        minDays,
		hints:          hints,
		dates:          make(map[string]ageRecord),
		urgencies:      make(map[string]string),
		today:          today,
	}, nil
}

// ArchiveDay converts a Unix timestamp (seconds) into the archive's
// notion of "day", a day boundary fixed at 15:00 UTC rather than midnight.
func ArchiveDay(unixSeconds int64) int {
	hours := float64(unixSeconds) / 3600.0
	return int((hours - 15) / 24)
}

// LoadDates seeds the policy's per-source age records, as read from a
// persisted dates file (see ReadDatesFile).
func (p *AgePolicy) LoadDates(dates map[string][2]string) {
	for name, rec := range dates {
		version := rec[0]
		var day int
		fmt.Sscanf(rec[1], "%d", &day)
		p.dates[name] = ageRecord{version: version, day: day}
	}
}

// LoadUrgencies applies an urgency-file record for name, keeping the
// existing value unless the new urgency strictly lowers the required
// wait (a monotone "most urgent wins" merge), and only when the upload it
// describes is newer than what is in testing and no newer than what is
// in unstable.
func (p *AgePolicy) LoadUrgencies(name, version, urgency string, testingVersion, unstableVersion string) {
	oldUrgency, hadOld := p.urgencies[name]
	oldMinDays := 1000
	if hadOld {
		if d, ok := p.minDays[oldUrgency]; ok {
			oldMinDays = d
		}
	}
	newMinDays, ok := p.minDays[urgency]
	if !ok {
		newMinDays = p.minDays[p.defaultUrgency]
	}
	if oldMinDays <= newMinDays {
		return
	}
	if testingVersion != "" && CompareVersions(testingVersion, version) >= 0 {
		return
	}
	if unstableVersion == "" || CompareVersions(unstableVersion, version) < 0 {
		return
	}
	p.urgencies[name] = urgency
}

// Apply runs the age gate for sourceName/sourceVersion. inTesting
// indicates whether the source currently has any presence in the target
// suite (a brand-new source gets no urgency discount).
func (p *AgePolicy) Apply(sourceName, sourceVersion string, inTesting bool) (PolicyVerdict, AgeInfo) {
	info := AgeInfo{}
	urgency, ok := p.urgencies[sourceName]
	if !ok {
		urgency = p.defaultUrgency
	}

	if _, known := p.minDays[urgency]; !known {
		info.UnknownUrgency = urgency
		urgency = p.defaultUrgency
	}

	if !inTesting {
		if p.minDays[urgency] < p.minDays[p.defaultUrgency] {
			info.UrgencyReducedFrom = urgency
			info.UrgencyReducedTo = p.defaultUrgency
			urgency = p.defaultUrgency
		}
	}

	rec, seen := p.dates[sourceName]
	if !seen || rec.version != sourceVersion {
		rec = ageRecord{version: sourceVersion, day: p.today}
		p.dates[sourceName] = rec
	}

	daysOld := p.today - rec.day
	minDays := p.minDays[urgency]
	info.AgeRequirement = minDays
	info.CurrentAge = daysOld

	for _, h := range p.hints.Search(HintQuery{Type: "age-days", Package: sourceName, OnlyActive: true}) {
		if len(h.Packages) == 0 || h.Packages[0].Version != sourceVersion {
			continue
		}
		minDays = h.Days
		info.Reduced = true
		info.ReducedRequirement = h.Days
		info.ReducedBy = h.User
	}

	if daysOld < minDays {
		for _, h := range p.hints.Search(HintQuery{Type: "urgent", Package: sourceName, OnlyActive: true}) {
			if len(h.Packages) == 0 || h.Packages[0].Version != sourceVersion {
				continue
			}
			info.Reduced = true
			info.ReducedRequirement = 0
			info.ReducedBy = h.User
			return PolicyPassHinted, info
		}
		return PolicyRejectedTemporarily, info
	}

	return PolicyPass, info
}

// Dates returns the current per-source (version, day) records, suitable
// for persisting back via WriteDatesFile.
func (p *AgePolicy) Dates() map[string]ageRecord {
	return p.dates
}

// RCBugsInfo is the structured reasoning an RCBugPolicy attaches to its
// verdict, for reporting. All three sets are sorted for determinism.
type RCBugsInfo struct {
	SharedBugs      []string
	UniqueSourceBugs []string
	UniqueTargetBugs []string
}

// RCBugPolicy blocks a source migration that would introduce, in the
// target suite, a release-critical bug that is not already present
// there.
type RCBugPolicy struct {
	unstableBugs map[string]map[string]bool
	testingBugs  map[string]map[string]bool
}

// NewRCBugPolicy constructs an RCBugPolicy from per-package bug sets
// already read from the origin and target suites' BugsV files (see
// ReadBugsFile).
func NewRCBugPolicy(unstableBugs, testingBugs map[string]map[string]bool) *RCBugPolicy {
	return &RCBugPolicy{unstableBugs: unstableBugs, testingBugs: testingBugs}
}

// Apply runs the RC-bug gate for a source upload. binariesU/binariesT
// are the binary package names the unstable/testing version of the
// source produces (used to pull in bugs filed directly against a binary
// rather than the source). inTesting indicates whether the source has a
// version in the target suite at all.
func (p *RCBugPolicy) Apply(sourceName string, inTesting bool, binariesU, binariesT []string) (PolicyVerdict, RCBugsInfo) {
	bugsT := make(map[string]bool)
	bugsU := make(map[string]bool)

	for _, key := range []string{sourceName, "src:" + sourceName} {
		if inTesting {
			for b := range p.testingBugs[key] {
				bugsT[b] = true
			}
		}
		for b := range p.unstableBugs[key] {
			bugsU[b] = true
		}
	}
	for _, pkg := range binariesU {
		for b := range p.unstableBugs[pkg] {
			bugsU[b] = true
		}
	}
	if inTesting {
		for _, pkg := range binariesT {
			for b := range p.testingBugs[pkg] {
				bugsT[b] = true
			}
		}
	}

	info := RCBugsInfo{
		SharedBugs:       sortedIntersection(bugsU, bugsT),
		UniqueSourceBugs: sortedDifference(bugsU, bugsT),
		UniqueTargetBugs: sortedDifference(bugsT, bugsU),
	}

	if len(bugsU) == 0 || isSubset(bugsU, bugsT) {
		return PolicyPass, info
	}
	return PolicyRejectedPermanently, info
}

func isSubset(a, b map[string]bool) bool {
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}

func sortedIntersection(a, b map[string]bool) []string {
	var out []string
	for k := range a {
		if b[k] {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

func sortedDifference(a, b map[string]bool) []string {
	var out []string
	for k := range a {
		if !b[k] {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
