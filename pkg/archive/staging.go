package archive

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/glorpus-work/modpatch/pkg/errors"
	"github.com/glorpus-work/modpatch/pkg/fsutil"
	"github.com/glorpus-work/modpatch/pkg/model"
)

// entry is one file of a staged archive. staged is empty while the entry still reads
// from the original archive.
type entry struct {
	name   string
	staged string
}

// stagingArea tracks the file table of an archive and the on-disk copies of staged
// entry contents. Format adapters embed it and supply readOriginal.
type stagingArea struct {
	dir          string
	entries      map[model.PathKey]*entry
	next         int
	readOriginal func(name string) (io.ReadCloser, error)
	// separator is the path separator the format uses for new entries.
	separator string
}

func newStagingArea(prefix string, names []string, separator string, readOriginal func(string) (io.ReadCloser, error)) (*stagingArea, error) {
	dir, err := os.MkdirTemp("", prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}
	s := &stagingArea{
		dir:          dir,
		entries:      make(map[model.PathKey]*entry, len(names)),
		readOriginal: readOriginal,
		separator:    separator,
	}
	for _, name := range names {
		s.entries[model.NormalizePath(name)] = &entry{name: name}
	}
	return s, nil
}

// Files lists the current entry names in sorted order.
func (s *stagingArea) Files() []string {
	names := make([]string, 0, len(s.entries))
	for _, e := range s.entries {
		names = append(names, e.name)
	}
	sort.Strings(names)
	return names
}

// Open reads the current content of an entry.
func (s *stagingArea) Open(name string) (io.ReadCloser, error) {
	e, ok := s.entries[model.NormalizePath(name)]
	if !ok {
		return nil, errors.NewResourceNotFoundError(name, os.ErrNotExist)
	}
	if e.staged != "" {
		return os.Open(e.staged)
	}
	return s.readOriginal(e.name)
}

// Put stages new content for name, keeping the existing entry name when one matches.
func (s *stagingArea) Put(name string, r io.Reader) error {
	key := model.NormalizePath(name)
	if key.IsZero() {
		return errors.Wrapf(errors.ErrInvalidPath, "empty archive entry name")
	}

	staged := s.stagePath()
	if err := fsutil.WriteFileAtomic(staged, r, fsutil.FileModeDefault); err != nil {
		return fmt.Errorf("failed to stage %s: %w", name, err)
	}

	e, ok := s.entries[key]
	if !ok {
		e = &entry{name: strings.ReplaceAll(model.CleanPath(name), "/", s.separator)}
		s.entries[key] = e
	} else if e.staged != "" {
		_ = os.Remove(e.staged)
	}
	e.staged = staged
	return nil
}

// Remove drops the entry matching name.
func (s *stagingArea) Remove(name string) error {
	key := model.NormalizePath(name)
	e, ok := s.entries[key]
	if !ok {
		return errors.NewResourceNotFoundError(name, os.ErrNotExist)
	}
	if e.staged != "" {
		_ = os.Remove(e.staged)
	}
	delete(s.entries, key)
	return nil
}

// sorted returns the entries ordered by name.
func (s *stagingArea) sorted() []*entry {
	list := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		list = append(list, e)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].name < list[j].name })
	return list
}

// stageOriginal copies an unmodified entry out of the original archive so the archive
// can be rewritten after the reader is closed.
func (s *stagingArea) stageOriginal(e *entry) error {
	rc, err := s.readOriginal(e.name)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", e.name, err)
	}
	defer func() { _ = rc.Close() }()

	staged := s.stagePath()
	if err := fsutil.WriteFileAtomic(staged, rc, fsutil.FileModeDefault); err != nil {
		return fmt.Errorf("failed to stage %s: %w", e.name, err)
	}
	e.staged = staged
	return nil
}

func (s *stagingArea) stagePath() string {
	s.next++
	return filepath.Join(s.dir, strconv.Itoa(s.next))
}

func (s *stagingArea) cleanup() error {
	if s.dir == "" {
		return nil
	}
	err := os.RemoveAll(s.dir)
	s.dir = ""
	return err
}
