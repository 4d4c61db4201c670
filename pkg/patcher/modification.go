package patcher

import (
	"sort"

	"github.com/glorpus-work/modpatch/pkg/history"
	"github.com/glorpus-work/modpatch/pkg/library"
	"github.com/glorpus-work/modpatch/pkg/model"
	"github.com/glorpus-work/modpatch/pkg/resource"
)

// ModificationType is what happens to a file.
type ModificationType int

// Modification types.
const (
	Add ModificationType = iota + 1
	Remove
)

func (t ModificationType) String() string {
	if t == Remove {
		return "remove"
	}
	return "add"
}

// Source tells whether a modification reverts the previous apply or comes from a mod.
type Source int

// Modification sources.
const (
	SourcePatch Source = iota + 1
	SourceHistory
)

func (s Source) String() string {
	if s == SourceHistory {
		return "history"
	}
	return "patch"
}

// FileModification is one pending change to a file.
type FileModification struct {
	Type   ModificationType
	Source Source
	Path   model.PatchFilePath
	// Resource is the new content of an Add.
	Resource resource.Resource
	// History is the entry of the previous apply for this path. It survives overrides
	// so the original bytes stay known however many mods touch the file.
	History *history.Entry
	// ModID is the mod that declared the change, empty for history reverts.
	ModID string
}

// FileLocationModifications holds the modifications of one location: the game
// directory or one archive.
type FileLocationModifications struct {
	Key        model.LocationKey
	Location   string
	LocationID string
	// Revert marks a pass restoring the original entries of an archive before the
	// archive file itself is replaced or removed in the game directory.
	Revert bool
	files  map[model.PathKey]*FileModification
}

// IsArchive reports whether the location is an archive.
func (l *FileLocationModifications) IsArchive() bool {
	return l.Location != ""
}

// Len returns the number of modifications.
func (l *FileLocationModifications) Len() int {
	return len(l.files)
}

// Modifications returns the modifications ordered by path.
func (l *FileLocationModifications) Modifications() []*FileModification {
	keys := make([]model.PathKey, 0, len(l.files))
	for k := range l.files {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })

	mods := make([]*FileModification, 0, len(keys))
	for _, k := range keys {
		mods = append(mods, l.files[k])
	}
	return mods
}

// modificationSet is the net set of modifications of an apply.
type modificationSet struct {
	files     map[model.PathKey]*FileModification
	owners    map[model.PathKey]*FileLocationModifications
	locations map[model.LocationKey]*FileLocationModifications
	reverts   []*FileLocationModifications
}

func newModificationSet() *modificationSet {
	return &modificationSet{
		files:     make(map[model.PathKey]*FileModification),
		owners:    make(map[model.PathKey]*FileLocationModifications),
		locations: make(map[model.LocationKey]*FileLocationModifications),
	}
}

// put stores m, replacing any modification of the same file. m inherits the history
// entry of the modification it replaces.
func (s *modificationSet) put(m *FileModification) {
	key := m.Path.Key()
	if prev, ok := s.files[key]; ok {
		m.History = prev.History
		delete(s.owners[key].files, key)
	}

	lk := m.Path.LocationKey()
	loc, ok := s.locations[lk]
	if !ok {
		loc = &FileLocationModifications{
			Key:        lk,
			Location:   m.Path.Location,
			LocationID: m.Path.LocationID,
			files:      make(map[model.PathKey]*FileModification),
		}
		s.locations[lk] = loc
	}
	loc.files[key] = m
	s.files[key] = m
	s.owners[key] = loc
}

// Len returns the number of modifications, revert passes included.
func (s *modificationSet) Len() int {
	n := len(s.files)
	for _, r := range s.reverts {
		n += r.Len()
	}
	return n
}

// Locations returns the non-empty locations: archive revert passes first, then the game
// directory, then archives ordered by location.
func (s *modificationSet) Locations() []*FileLocationModifications {
	locs := make([]*FileLocationModifications, 0, len(s.locations))
	for _, l := range s.locations {
		if l.Len() > 0 {
			locs = append(locs, l)
		}
	}
	sortLocations(locs)

	reverts := append([]*FileLocationModifications(nil), s.reverts...)
	sortLocations(reverts)
	return append(reverts, locs...)
}

func sortLocations(locs []*FileLocationModifications) {
	sort.Slice(locs, func(i, j int) bool {
		a, b := locs[i].Key, locs[j].Key
		if a.Location != b.Location {
			return a.Location.String() < b.Location.String()
		}
		return a.ID < b.ID
	})
}

// resolveArchiveFiles handles archives whose file is itself added, replaced or removed in
// the game directory. The game directory change decides the whole file, so the entry
// history of the archive no longer applies: history reverts of its entries are dropped
// and mod changes to its entries record the new file's content. When the archive file
// has no history of its own, its current bytes are about to be saved as the original, so
// a revert pass first restores the original entries.
func (s *modificationSet) resolveArchiveFiles() {
	for lk, loc := range s.locations {
		if lk.Location.IsZero() {
			continue
		}
		file, ok := s.files[lk.Location]
		if !ok || file.Path.IsArchived() {
			continue
		}

		revert := &FileLocationModifications{
			Key:        lk,
			Location:   loc.Location,
			LocationID: loc.LocationID,
			Revert:     true,
			files:      make(map[model.PathKey]*FileModification),
		}
		for key, m := range loc.files {
			if m.History == nil {
				continue
			}
			revert.files[key] = revertModification(m.History)
			if m.Source == SourceHistory {
				delete(loc.files, key)
				delete(s.files, key)
				delete(s.owners, key)
				continue
			}
			m.History = nil
		}

		if file.Source == SourcePatch && file.History == nil && revert.Len() > 0 {
			s.reverts = append(s.reverts, revert)
		}
	}
}

// revertModification restores the state a history entry saved.
func revertModification(e *history.Entry) *FileModification {
	if e.Type == model.HistoryAdded {
		return &FileModification{Type: Remove, Source: SourceHistory, Path: e.Path, History: e}
	}
	return &FileModification{Type: Add, Source: SourceHistory, Path: e.Path, Resource: e.Resource, History: e}
}

// computeModifications reverts the previous history and layers the enabled mods on top,
// lowest priority first, so the highest-priority mod decides each file.
func computeModifications(snap *history.Snapshot, mods []*library.EnabledMod) *modificationSet {
	s := newModificationSet()

	for i := range snap.Entries {
		s.put(revertModification(&snap.Entries[i]))
	}

	for i := len(mods) - 1; i >= 0; i-- {
		m := mods[i]
		for _, p := range m.Mod.RemovedFiles() {
			s.put(&FileModification{Type: Remove, Source: SourcePatch, Path: p, ModID: m.Entry.ID})
		}
		for _, res := range m.AddedFiles {
			s.put(&FileModification{Type: Add, Source: SourcePatch, Path: res.Path(), Resource: res, ModID: m.Entry.ID})
		}
	}
	s.resolveArchiveFiles()
	return s
}
