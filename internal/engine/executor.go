// Package engine applies a sync plan to the destination tree and keeps the
// managed directories and ignore rules consistent with it.
package engine

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/afero"

	"github.com/treefork/treefork/internal/logging"
	"github.com/treefork/treefork/internal/plan"
	"github.com/treefork/treefork/internal/state"
)

// Executor applies a plan: writes and removes destination files and keeps
// the record set current. Failures are isolated per path; the remaining
// entries still run.
type Executor struct {
	fs       afero.Fs
	destRoot string
	snap     *Snapshot
	records  *state.Set
	envHash  string

	// Progress receives a progress bar during copies when non-nil.
	Progress io.Writer
}

// NewExecutor builds an Executor over the given record set. The set is
// mutated in place as entries are written, recached and purged, so a save
// after a partially failed run still reflects what actually happened.
func NewExecutor(fs afero.Fs, destRoot string, snap *Snapshot, records *state.Set, envHash string) *Executor {
	return &Executor{
		fs:       fs,
		destRoot: destRoot,
		snap:     snap,
		records:  records,
		envHash:  envHash,
	}
}

// Result reports what an Apply run did.
type Result struct {
	Copied   int
	Recached int
	Purged   int
	// Errors maps destination paths to their execution errors.
	Errors map[string]error
}

// Failed reports whether any per-path error occurred.
func (r *Result) Failed() bool {
	return len(r.Errors) > 0
}

// Apply executes the plan. Dynamically generated outputs are written only
// after every other copy and purge completes, since their content depends
// on the final state of the destination tree.
func (ex *Executor) Apply(p *plan.Plan, generated func(destPath string) bool) *Result {
	defer logging.Timer("apply")()

	if generated == nil {
		generated = func(string) bool { return false }
	}

	res := &Result{Errors: make(map[string]error)}

	var normal, deferred []plan.Entity
	for _, e := range p.Copy {
		if generated(e.DestPath) {
			deferred = append(deferred, e)
		} else {
			normal = append(normal, e)
		}
	}

	bar := ex.newBar(len(normal) + len(p.Purge) + len(deferred))

	for _, e := range normal {
		ex.copyOne(e, res)
		barAdd(bar)
	}
	for _, e := range p.Recache {
		ex.recacheOne(e, res)
	}
	for _, rec := range p.Purge {
		ex.purgeOne(rec, res)
		barAdd(bar)
	}
	for _, e := range deferred {
		ex.copyOne(e, res)
		barAdd(bar)
	}

	return res
}

func (ex *Executor) newBar(total int) *progressbar.ProgressBar {
	if ex.Progress == nil || total == 0 {
		return nil
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(ex.Progress),
		progressbar.OptionSetDescription("syncing"),
		progressbar.OptionClearOnFinish(),
	)
}

func barAdd(bar *progressbar.ProgressBar) {
	if bar != nil {
		_ = bar.Add(1)
	}
}

func (ex *Executor) destAbs(destPath string) string {
	return filepath.Join(ex.destRoot, filepath.FromSlash(destPath))
}

// copyOne writes one entity and refreshes its record. When a failure
// interrupts a started write, the partial output is deleted so a later
// guard pass does not trip over an untracked-but-present file. A failure
// before the first byte leaves any existing destination copy alone.
func (ex *Executor) copyOne(e plan.Entity, res *Result) {
	abs := ex.destAbs(e.DestPath)

	if wrote, err := ex.writeEntity(e, abs); err != nil {
		if wrote {
			_ = ex.fs.Remove(abs)
		}
		res.Errors[e.DestPath] = &plan.ExecutionError{Path: e.DestPath, Err: err}
		logging.Error("copy failed", logging.Path(e.DestPath), logging.Err(err))
		return
	}

	if err := ex.refreshRecord(e); err != nil {
		res.Errors[e.DestPath] = &plan.ExecutionError{Path: e.DestPath, Err: err}
		return
	}

	res.Copied++
	logging.Debug("copied", logging.Path(e.DestPath), logging.Source(e.SourcePath))
}

// writeEntity writes one entity to abs. wrote reports whether the
// destination was touched before the error, so the caller knows whether
// there is partial output to clean up.
func (ex *Executor) writeEntity(e plan.Entity, abs string) (wrote bool, err error) {
	data, err := ex.snap.FilteredSource(e)
	if err != nil {
		return false, err
	}

	if err := ex.fs.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return false, err
	}

	if e.Symlink {
		linker, ok := ex.fs.(afero.Linker)
		if !ok {
			return false, fmt.Errorf("filesystem does not support symlinks")
		}
		if err := ex.fs.Remove(abs); err != nil && !os.IsNotExist(err) {
			return false, err
		}
		return true, linker.SymlinkIfPossible(string(data), abs)
	}

	if err := afero.WriteFile(ex.fs, abs, data, 0o644); err != nil {
		return true, err
	}

	mode, err := ex.snap.SourceMode(e.SourcePath)
	if err != nil {
		return true, err
	}
	return true, ex.fs.Chmod(abs, mode)
}

// recacheOne refreshes only the stored record; the destination bytes are
// never touched.
func (ex *Executor) recacheOne(e plan.Entity, res *Result) {
	if err := ex.refreshRecord(e); err != nil {
		res.Errors[e.DestPath] = &plan.ExecutionError{Path: e.DestPath, Err: err}
		return
	}
	res.Recached++
	logging.Debug("recached", logging.Path(e.DestPath))
}

// refreshRecord stats both sides and stores a fresh record under the
// current environment hash.
func (ex *Executor) refreshRecord(e plan.Entity) error {
	sstat, err := ex.snap.SourceStat(e.SourcePath)
	if err != nil {
		return err
	}
	dstat, err := ex.snap.DestStat(e.DestPath)
	if err != nil {
		return err
	}
	if !sstat.Exists || !dstat.Exists {
		return fmt.Errorf("stat after write: file missing")
	}

	ex.records.Put(state.Record{
		Path:        e.DestPath,
		Type:        e.Type(),
		EnvHash:     ex.envHash,
		SourcePath:  e.SourcePath,
		SourceMtime: sstat.Mtime,
		SourceSize:  sstat.Size,
		DestMtime:   dstat.Mtime,
		DestSize:    dstat.Size,
	})
	return nil
}

// purgeOne removes one stale destination entry. An already absent target
// just drops its record; anything that is not a plain file or symlink is
// reported, never auto-resolved.
func (ex *Executor) purgeOne(rec state.Record, res *Result) {
	abs := ex.destAbs(rec.Path)

	dstat, err := ex.snap.DestStat(rec.Path)
	if err != nil {
		res.Errors[rec.Path] = &plan.ExecutionError{Path: rec.Path, Err: err}
		return
	}

	switch {
	case !dstat.Exists:
		// Nothing on disk; forget it.
	case dstat.Dir:
		res.Errors[rec.Path] = &plan.ExecutionError{
			Path: rec.Path,
			Err:  fmt.Errorf("expected a %s but found a directory; not removing", rec.Type),
		}
		return
	default:
		if err := ex.fs.Remove(abs); err != nil {
			res.Errors[rec.Path] = &plan.ExecutionError{Path: rec.Path, Err: err}
			return
		}
		ex.pruneEmptyDirs(filepath.Dir(abs))
	}

	ex.records.Delete(rec.Path)
	res.Purged++
	logging.Debug("purged", logging.Path(rec.Path))
}

// pruneEmptyDirs removes now-empty parents up to the destination root.
func (ex *Executor) pruneEmptyDirs(dir string) {
	for dir != ex.destRoot && len(dir) > len(ex.destRoot) {
		entries, err := afero.ReadDir(ex.fs, dir)
		if err != nil || len(entries) > 0 {
			return
		}
		if err := ex.fs.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}
