package migrator

// SourceRecord is one row of the Source Table: a source package's
// current version, archive section, and the list of binaries ("name/arch")
// it produces in a given suite.
type SourceRecord struct {
	Name     string
	Version  string
	Section  string
	Binaries []string
}

// BinaryRecord is one row of the Binary Table, keyed by (architecture,
// name) within a suite: version, section, essential flag, and the
// virtual names it provides.
type BinaryRecord struct {
	Name      string
	Arch      Arch
	Version   string
	Section   string
	Essential bool
	Provides  []string
}

type binKey struct {
	Name string
	Arch Arch
}

type virtualKey struct {
	Name string
	Arch Arch
}

// SuiteState is the mutable table set for one suite (typically the
// target/"testing" suite): sources, binaries per architecture, and the
// virtual-provides index per architecture. It is mutated only through
// the recording helpers below so every change can be captured into an
// UndoEntry before it is applied.
type SuiteState struct {
	Sources  map[string]*SourceRecord
	Binaries map[Arch]map[string]*BinaryRecord
	Virtual  map[Arch]map[string][]string
}

// NewSuiteState returns an empty, ready-to-populate SuiteState.
func NewSuiteState() *SuiteState {
	return &SuiteState{
		Sources:  make(map[string]*SourceRecord),
		Binaries: make(map[Arch]map[string]*BinaryRecord),
		Virtual:  make(map[Arch]map[string][]string),
	}
}

func (s *SuiteState) binaryMap(arch Arch) map[string]*BinaryRecord {
	m := s.Binaries[arch]
	if m == nil {
		m = make(map[string]*BinaryRecord)
		s.Binaries[arch] = m
	}
	return m
}

func (s *SuiteState) virtualMap(arch Arch) map[string][]string {
	m := s.Virtual[arch]
	if m == nil {
		m = make(map[string][]string)
		s.Virtual[arch] = m
	}
	return m
}

// SetSource installs rec as the current record for name, first recording
// whatever was there before (or its absence) into entry.
func (s *SuiteState) SetSource(entry *UndoEntry, name string, rec *SourceRecord) {
	entry.recordSource(name, s.Sources[name])
	s.Sources[name] = rec
}

// DeleteSource removes name's source record, recording its prior value
// into entry.
func (s *SuiteState) DeleteSource(entry *UndoEntry, name string) {
	entry.recordSource(name, s.Sources[name])
	delete(s.Sources, name)
}

// SetBinary installs rec as the current record for (arch, name).
func (s *SuiteState) SetBinary(entry *UndoEntry, arch Arch, name string, rec *BinaryRecord) {
	m := s.binaryMap(arch)
	entry.recordBinary(binKey{Name: name, Arch: arch}, m[name])
	m[name] = rec
}

// DeleteBinary removes (arch, name)'s binary record.
func (s *SuiteState) DeleteBinary(entry *UndoEntry, arch Arch, name string) {
	m := s.binaryMap(arch)
	entry.recordBinary(binKey{Name: name, Arch: arch}, m[name])
	delete(m, name)
}

// SetVirtual installs providers as the current provider list for virtual
// name in arch, recording whether this is a brand-new entry (so rollback
// can delete it outright) or a change to an existing one (so rollback can
// restore the prior providers).
func (s *SuiteState) SetVirtual(entry *UndoEntry, arch Arch, name string, providers []string) {
	m := s.virtualMap(arch)
	key := virtualKey{Name: name, Arch: arch}
	if prior, existed := m[name]; existed {
		entry.recordVirtual(key, prior)
	} else {
		entry.recordNewVirtual(key)
	}
	m[name] = providers
}

// DeleteVirtual removes the provider list for virtual name in arch.
func (s *SuiteState) DeleteVirtual(entry *UndoEntry, arch Arch, name string) {
	m := s.virtualMap(arch)
	key := virtualKey{Name: name, Arch: arch}
	if prior, existed := m[name]; existed {
		entry.recordVirtual(key, prior)
	}
	delete(m, name)
}
