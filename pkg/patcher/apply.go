package patcher

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/glorpus-work/modpatch/internal/logger"
	"github.com/glorpus-work/modpatch/pkg/archive"
	"github.com/glorpus-work/modpatch/pkg/errors"
	"github.com/glorpus-work/modpatch/pkg/fsutil"
	"github.com/glorpus-work/modpatch/pkg/history"
	"github.com/glorpus-work/modpatch/pkg/model"
	"github.com/glorpus-work/modpatch/pkg/resource"
)

// recorder receives the history of applied modifications. It is implemented by the
// history builder and by its batches.
type recorder interface {
	AddAddedFile(path model.PatchFilePath)
	AddReplacedFile(path model.PatchFilePath, res resource.Resource) error
	AddRemovedFile(path model.PatchFilePath, res resource.Resource) error
}

// target is the location modifications are applied to.
type target interface {
	// current returns the present content of the file, or nil if it does not exist.
	current(path model.PatchFilePath) (resource.Resource, error)
	write(path model.PatchFilePath, r io.Reader) error
	remove(path model.PatchFilePath) error
}

// applyRun is the state of one Apply.
type applyRun struct {
	patcher  *Patcher
	lib      Library
	builder  *history.Builder
	result   *Result
	progress ProgressFunc
	done     int
	total    int
	// repacked lists the written archives per manager ID.
	repacked map[string][]string
	// blocked holds archive files whose revert pass did not complete. Neither the file
	// nor its entries are touched.
	blocked map[model.PathKey]bool
}

func (r *applyRun) step() {
	r.done++
	if r.progress != nil {
		r.progress(Progress{Done: r.done, Total: r.total})
	}
}

// applyLocation applies the modifications of one location. It only returns an error
// when ctx is canceled; failures are recorded on the result.
func (r *applyRun) applyLocation(ctx context.Context, loc *FileLocationModifications) error {
	if !loc.IsArchive() {
		return r.applyPhysical(ctx, loc)
	}
	if r.blocked[loc.Key.Location] {
		r.keepHistory(loc.Modifications())
		r.skipSteps(loc.Len() + 1)
		return nil
	}
	written, err := r.applyArchive(ctx, loc)
	if loc.Revert && !written {
		r.blocked[loc.Key.Location] = true
	}
	return err
}

func (r *applyRun) applyPhysical(ctx context.Context, loc *FileLocationModifications) error {
	t := &physicalTarget{root: r.lib.GameDir()}
	mods := loc.Modifications()
	for i, m := range mods {
		if err := ctx.Err(); err != nil {
			r.keepHistory(mods[i:])
			return err
		}
		if r.blocked[m.Path.Key()] {
			logger.Warn("Leaving archive file unchanged", logger.Fields{"path": m.Path.String()})
			r.keepHistory([]*FileModification{m})
			r.step()
			continue
		}
		if err := r.applyModification(r.builder, t, m); err != nil {
			r.fail(loc, err)
			r.keepHistory(mods[i:])
			r.skipSteps(len(mods) - i)
			return nil
		}
		if m.Type == Remove {
			r.builder.DeleteDirectoryIfEmpty(filepath.Dir(m.Path.NativePath(t.root)))
		}
		r.result.Applied++
		r.step()
	}
	return nil
}

// applyArchive applies the modifications of an archive location and reports whether
// the archive was written.
func (r *applyRun) applyArchive(ctx context.Context, loc *FileLocationModifications) (bool, error) {
	mods := loc.Modifications()

	manager, err := r.patcher.resolveArchive(r.lib, loc)
	if err != nil {
		r.skip(loc, err)
		r.keepHistory(mods)
		r.skipSteps(len(mods) + 1)
		return false, nil
	}

	archivePath := filepath.Join(r.lib.GameDir(), filepath.FromSlash(loc.Location))
	a, err := manager.Load(ctx, archivePath)
	if err != nil {
		r.fail(loc, err)
		r.keepHistory(mods)
		r.skipSteps(len(mods) + 1)
		return false, nil
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("Failed to close archive", logger.Fields{"archive": archivePath, "error": err.Error()})
		}
	}()

	t := newArchiveTarget(a)
	batch := r.builder.Begin()
	for i, m := range mods {
		if err := ctx.Err(); err != nil {
			batch.Discard()
			r.keepHistory(mods)
			r.skipSteps(len(mods) - i + 1)
			return false, err
		}
		if err := r.applyModification(batch, t, m); err != nil {
			batch.Discard()
			r.fail(loc, err)
			r.keepHistory(mods)
			r.skipSteps(len(mods) - i + 1)
			return false, nil
		}
		r.step()
	}

	if err := ctx.Err(); err != nil {
		batch.Discard()
		r.keepHistory(mods)
		r.skipSteps(1)
		return false, err
	}
	if err := a.Write(ctx); err != nil {
		batch.Discard()
		r.fail(loc, err)
		r.keepHistory(mods)
		r.skipSteps(1)
		return false, nil
	}
	batch.Commit()
	r.result.Applied += len(mods)
	r.repacked[manager.ID()] = append(r.repacked[manager.ID()], archivePath)
	r.step()

	logger.Debug("Archive location applied", logger.Fields{"archive": loc.Location, "files": len(mods), "revert": loc.Revert})
	return true, nil
}

// applyModification records the history of m and performs it.
func (r *applyRun) applyModification(rec recorder, t target, m *FileModification) error {
	if m.Type == Add {
		rc, err := m.Resource.Open()
		if err != nil {
			return err
		}
		defer func() { _ = rc.Close() }()

		if m.Source == SourcePatch {
			if err := recordAdd(rec, t, m); err != nil {
				return err
			}
		}
		return t.write(m.Path, rc)
	}

	if m.Source == SourcePatch {
		if err := recordRemove(rec, t, m); err != nil {
			return err
		}
	}
	return t.remove(m.Path)
}

// recordAdd classifies a mod adding a file. The original bytes are the carried history
// when there is one, otherwise the current file.
func recordAdd(rec recorder, t target, m *FileModification) error {
	if m.History != nil {
		if m.History.Type == model.HistoryAdded {
			rec.AddAddedFile(m.Path)
			return nil
		}
		return rec.AddReplacedFile(m.Path, m.History.Resource)
	}

	cur, err := t.current(m.Path)
	if err != nil {
		return err
	}
	if cur == nil {
		rec.AddAddedFile(m.Path)
		return nil
	}
	return rec.AddReplacedFile(m.Path, cur)
}

// recordRemove classifies a mod removing a file. Removing a file a mod added leaves
// nothing to restore.
func recordRemove(rec recorder, t target, m *FileModification) error {
	if m.History != nil {
		if m.History.Type == model.HistoryAdded {
			return nil
		}
		return rec.AddRemovedFile(m.Path, m.History.Resource)
	}

	cur, err := t.current(m.Path)
	if err != nil || cur == nil {
		return err
	}
	return rec.AddRemovedFile(m.Path, cur)
}

// keepHistory re-records the carried history of modifications that did not take
// effect, so the next apply can still revert them.
func (r *applyRun) keepHistory(mods []*FileModification) {
	for _, m := range mods {
		h := m.History
		if h == nil {
			continue
		}
		var err error
		switch h.Type {
		case model.HistoryAdded:
			r.builder.AddAddedFile(h.Path)
		case model.HistoryReplaced:
			err = r.builder.AddReplacedFile(h.Path, h.Resource)
		case model.HistoryRemoved:
			err = r.builder.AddRemovedFile(h.Path, h.Resource)
		}
		if err != nil {
			logger.Error("Failed to keep history entry", logger.Fields{"path": h.Path.String(), "error": err.Error()})
		}
	}
}

func (r *applyRun) skipSteps(n int) {
	for i := 0; i < n; i++ {
		r.step()
	}
}

func (r *applyRun) fail(loc *FileLocationModifications, err error) {
	logger.Error("Location failed", logger.Fields{"location": loc.Location, "location_id": loc.LocationID, "error": err.Error()})
	r.result.Failed = append(r.result.Failed, &errors.LocationError{Location: loc.Location, Err: err})
}

func (r *applyRun) skip(loc *FileLocationModifications, err error) {
	locErr := &errors.LocationError{Location: loc.Location, Err: err}
	r.result.Skipped = append(r.result.Skipped, locErr)
	if r.patcher.strictArchives {
		logger.Error("Archive location unavailable", logger.Fields{"location": loc.Location, "error": err.Error()})
		r.result.Failed = append(r.result.Failed, locErr)
		return
	}
	logger.Warn("Skipping unavailable archive location", logger.Fields{"location": loc.Location, "error": err.Error()})
}

// notifyManagers tells every archive manager which of its archives were written.
func (r *applyRun) notifyManagers(ctx context.Context) {
	ids := make([]string, 0, len(r.repacked))
	for id := range r.repacked {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		manager, ok := r.patcher.registry.Get(id)
		if !ok {
			continue
		}
		if err := manager.OnRepackedArchives(context.WithoutCancel(ctx), r.repacked[id]); err != nil {
			logger.Error("Archive manager post-processing failed", logger.Fields{"manager": id, "error": err.Error()})
			r.result.Failed = append(r.result.Failed, &errors.LocationError{Location: id, Err: err})
		}
	}
}

// resolveArchive finds the manager of an archive location and checks the archive exists.
func (p *Patcher) resolveArchive(lib Library, loc *FileLocationModifications) (archive.DataManager, error) {
	if p.registry == nil {
		return nil, errors.NewArchiveUnavailableError(loc.Location, loc.LocationID, "no archive managers")
	}
	manager, ok := p.registry.Get(loc.LocationID)
	if !ok {
		return nil, errors.NewArchiveUnavailableError(loc.Location, loc.LocationID, "no archive manager registered")
	}
	if !fsutil.IsFile(filepath.Join(lib.GameDir(), filepath.FromSlash(loc.Location))) {
		return nil, errors.NewArchiveUnavailableError(loc.Location, loc.LocationID, "archive file not found")
	}
	return manager, nil
}

// physicalTarget applies modifications to the game directory.
type physicalTarget struct {
	root string
}

func (t *physicalTarget) current(path model.PatchFilePath) (resource.Resource, error) {
	native := path.NativePath(t.root)
	info, err := os.Stat(native)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	if info.IsDir() {
		return nil, errors.Wrapf(errors.ErrInvalidPath, "%s is a directory", path)
	}
	return resource.NewFileResource(path, native), nil
}

func (t *physicalTarget) write(path model.PatchFilePath, r io.Reader) error {
	return fsutil.WriteFileAtomic(path.NativePath(t.root), r, fsutil.FileModeDefault)
}

func (t *physicalTarget) remove(path model.PatchFilePath) error {
	err := os.Remove(path.NativePath(t.root))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// archiveTarget stages modifications in an opened archive.
type archiveTarget struct {
	archive archive.Archive
	names   map[model.PathKey]string
}

func newArchiveTarget(a archive.Archive) *archiveTarget {
	t := &archiveTarget{archive: a, names: make(map[model.PathKey]string)}
	for _, name := range a.Files() {
		t.names[model.NormalizePath(name)] = name
	}
	return t
}

// current captures the entry bytes, since the entry is replaced before the history
// is built.
func (t *archiveTarget) current(path model.PatchFilePath) (resource.Resource, error) {
	name, ok := t.names[model.NormalizePath(path.FilePath)]
	if !ok {
		return nil, nil
	}
	rc, err := t.archive.Open(name)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, err
	}
	return resource.NewBytesResource(path, data), nil
}

func (t *archiveTarget) write(path model.PatchFilePath, r io.Reader) error {
	if err := t.archive.Put(path.FilePath, r); err != nil {
		return err
	}
	key := model.NormalizePath(path.FilePath)
	if _, ok := t.names[key]; !ok {
		t.names[key] = path.FilePath
	}
	return nil
}

func (t *archiveTarget) remove(path model.PatchFilePath) error {
	key := model.NormalizePath(path.FilePath)
	name, ok := t.names[key]
	if !ok {
		return nil
	}
	if err := t.archive.Remove(name); err != nil {
		return err
	}
	delete(t.names, key)
	return nil
}
