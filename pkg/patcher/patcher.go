// Package patcher computes the net file changes of the enabled mods of a library and
// applies them to the game directory and its archives, recording a reversible history.
package patcher

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/glorpus-work/modpatch/internal/logger"
	"github.com/glorpus-work/modpatch/pkg/archive"
	"github.com/glorpus-work/modpatch/pkg/errors"
	"github.com/glorpus-work/modpatch/pkg/history"
	"github.com/glorpus-work/modpatch/pkg/hooks"
	"github.com/glorpus-work/modpatch/pkg/library"
	"github.com/glorpus-work/modpatch/pkg/mod"
	"github.com/glorpus-work/modpatch/pkg/model"
)

// Library is the part of a library an apply reads and writes.
type Library interface {
	Dir() string
	GameDir() string
	ModDir(id string) string
	LoadEnabledMods(ctx context.Context) ([]*library.EnabledMod, error)
	ReadHistory() (*history.Snapshot, error)
}

// Progress reports how far an apply is. Total counts every file plus every archive
// repack, archive revert passes included.
type Progress struct {
	Done  int
	Total int
}

// ProgressFunc receives progress updates. It is called from the applying goroutine.
type ProgressFunc func(Progress)

// Result summarizes an apply.
type Result struct {
	// Success is false when any location failed or any hook failed.
	Success bool
	// Applied is the number of file modifications that took effect.
	Applied int
	// Failed lists the locations that could not be processed.
	Failed []*errors.LocationError
	// Skipped lists archive locations that were unavailable.
	Skipped []*errors.LocationError
	// HookErrors lists failed post-apply hooks.
	HookErrors []error
	// History is the history written by the apply.
	History *model.FileHistory
}

// Err returns a PartialApplyError when some location failed, nil otherwise.
func (r *Result) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	return &errors.PartialApplyError{Failures: r.Failed}
}

// Option configures a Patcher.
type Option func(*Patcher)

// WithHistoryMode sets how saved bytes of the previous history are carried over.
func WithHistoryMode(mode history.Mode) Option {
	return func(p *Patcher) {
		p.historyMode = mode
	}
}

// WithStrictArchiveLocations makes unavailable archives count as failed locations.
func WithStrictArchiveLocations(strict bool) Option {
	return func(p *Patcher) {
		p.strictArchives = strict
	}
}

// WithHooks runs post-apply hooks with executor. A nil executor disables hooks.
func WithHooks(executor hooks.Executor) Option {
	return func(p *Patcher) {
		p.hooks = executor
	}
}

// Patcher applies the enabled mods of a library.
type Patcher struct {
	registry       *archive.Registry
	historyMode    history.Mode
	strictArchives bool
	hooks          hooks.Executor
}

// New creates a patcher resolving archive locations through registry.
func New(registry *archive.Registry, opts ...Option) *Patcher {
	p := &Patcher{registry: registry, historyMode: history.ModeMove}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

var libraryLocks sync.Map

// lockLibrary serializes applies on the library at dir within this process.
func lockLibrary(dir string) func() {
	key := dir
	if abs, err := filepath.Abs(dir); err == nil {
		key = abs
	}
	v, _ := libraryLocks.LoadOrStore(key, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// Apply reverts the previous apply and applies the enabled mods of lib. Errors before
// any file is touched are returned with a nil result. Location failures are reported on
// the result. A canceled apply writes the history of what it completed and returns the
// context error alongside the result.
func (p *Patcher) Apply(ctx context.Context, lib Library, progress ProgressFunc) (*Result, error) {
	unlock := lockLibrary(lib.Dir())
	defer unlock()

	mods, set, err := p.prepare(ctx, lib)
	if err != nil {
		return nil, err
	}

	builder, err := history.NewBuilder(lib, p.historyMode)
	if err != nil {
		return nil, err
	}

	run := &applyRun{
		patcher:  p,
		lib:      lib,
		builder:  builder,
		result:   &Result{},
		progress: progress,
		total:    set.Len(),
		repacked: make(map[string][]string),
		blocked:  make(map[model.PathKey]bool),
	}
	locations := set.Locations()
	for _, loc := range locations {
		if loc.IsArchive() {
			run.total++
		}
	}

	logger.Info("Applying mods", logger.Fields{
		"mods":      len(mods),
		"files":     set.Len(),
		"locations": len(locations),
	})

	var canceled error
	for i, loc := range locations {
		if err := ctx.Err(); err != nil {
			canceled = err
			for _, rest := range locations[i:] {
				run.keepHistory(rest.Modifications())
			}
			break
		}
		if err := run.applyLocation(ctx, loc); err != nil {
			canceled = err
			for _, rest := range locations[i+1:] {
				run.keepHistory(rest.Modifications())
			}
			break
		}
	}

	run.notifyManagers(ctx)

	h, err := builder.Build()
	if err != nil {
		return nil, errors.Wrap(err, "failed to write history")
	}
	run.result.History = h

	if canceled != nil {
		logger.Warn("Apply canceled", logger.Fields{"applied": run.result.Applied})
		return run.result, canceled
	}

	run.result.Success = len(run.result.Failed) == 0
	if run.result.Success && p.hooks != nil {
		run.runHooks(ctx, mods)
	}

	logger.Info("Apply finished", logger.Fields{
		"applied": run.result.Applied,
		"failed":  len(run.result.Failed),
		"skipped": len(run.result.Skipped),
		"success": run.result.Success,
	})
	return run.result, nil
}

// prepare loads the history and the enabled mods and computes the modifications.
func (p *Patcher) prepare(ctx context.Context, lib Library) ([]*library.EnabledMod, *modificationSet, error) {
	snap, err := lib.ReadHistory()
	if err != nil {
		return nil, nil, err
	}
	mods, err := lib.LoadEnabledMods(ctx)
	if err != nil {
		return nil, nil, err
	}
	return mods, computeModifications(snap, mods), nil
}

// LocationPlan is the pending work of one location.
type LocationPlan struct {
	Location      string
	LocationID    string
	Modifications []*FileModification
	// Revert is set for a pass restoring original archive entries before the archive
	// file is replaced or removed.
	Revert bool
	// Unavailable is set for archive locations an apply would skip.
	Unavailable error
}

// Plan computes what Apply would do without touching any file.
func (p *Patcher) Plan(ctx context.Context, lib Library) ([]*LocationPlan, error) {
	unlock := lockLibrary(lib.Dir())
	defer unlock()

	_, set, err := p.prepare(ctx, lib)
	if err != nil {
		return nil, err
	}

	var plans []*LocationPlan
	for _, loc := range set.Locations() {
		plan := &LocationPlan{
			Location:      loc.Location,
			LocationID:    loc.LocationID,
			Revert:        loc.Revert,
			Modifications: loc.Modifications(),
		}
		if loc.IsArchive() {
			_, plan.Unavailable = p.resolveArchive(lib, loc)
		}
		plans = append(plans, plan)
	}
	return plans, nil
}

// runHooks runs the post-apply hooks of the enabled mods in priority order.
func (r *applyRun) runHooks(ctx context.Context, mods []*library.EnabledMod) {
	for _, m := range mods {
		script, ok, err := m.Mod.HookScript(mod.HookPostApply)
		if err == nil && !ok {
			continue
		}
		if err == nil {
			hc := &hooks.HookContext{
				ModID:      m.Entry.ID,
				ModVersion: m.Mod.Version().String(),
				Variant:    m.Entry.SelectedVariant(),
				Event:      mod.HookPostApply,
				Operation:  hooks.OperationApply,
				GameDir:    r.lib.GameDir(),
				ModDir:     r.lib.ModDir(m.Entry.ID),
				LibraryDir: r.lib.Dir(),
			}
			err = r.patcher.hooks.Execute(ctx, m.Entry.ID+"/"+mod.HookPostApply, script, hc)
		}
		if err != nil {
			logger.Error("Post-apply hook failed", logger.Fields{"mod": m.Entry.ID, "error": err.Error()})
			r.result.HookErrors = append(r.result.HookErrors, err)
			r.result.Success = false
		}
	}
}
