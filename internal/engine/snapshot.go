package engine

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/treefork/treefork/internal/filter"
	"github.com/treefork/treefork/internal/plan"
)

// Snapshot implements plan.Snapshot over the real source tree and an afero
// destination filesystem. Filtered source content is cached per path so
// the planner and executor share one read.
type Snapshot struct {
	destFs   afero.Fs
	srcRoot  string
	destRoot string
	filter   *filter.Filter

	filtered map[string][]byte
}

// NewSnapshot builds a Snapshot. srcRoot is an absolute OS path; destRoot
// is the absolute destination root inside destFs.
func NewSnapshot(destFs afero.Fs, srcRoot, destRoot string, f *filter.Filter) *Snapshot {
	return &Snapshot{
		destFs:   destFs,
		srcRoot:  srcRoot,
		destRoot: destRoot,
		filter:   f,
		filtered: make(map[string][]byte),
	}
}

func (s *Snapshot) srcAbs(sourcePath string) string {
	return filepath.Join(s.srcRoot, filepath.FromSlash(sourcePath))
}

func (s *Snapshot) destAbs(destPath string) string {
	return filepath.Join(s.destRoot, filepath.FromSlash(destPath))
}

// SourceStat lstats a source-relative path.
func (s *Snapshot) SourceStat(sourcePath string) (plan.FileInfo, error) {
	return toFileInfo(os.Lstat(s.srcAbs(sourcePath)))
}

// DestStat lstats a destination-relative path.
func (s *Snapshot) DestStat(destPath string) (plan.FileInfo, error) {
	abs := s.destAbs(destPath)
	if lstater, ok := s.destFs.(afero.Lstater); ok {
		info, _, err := lstater.LstatIfPossible(abs)
		return toFileInfo(info, err)
	}
	info, err := s.destFs.Stat(abs)
	return toFileInfo(info, err)
}

func toFileInfo(info fs.FileInfo, err error) (plan.FileInfo, error) {
	if err != nil {
		if os.IsNotExist(err) {
			return plan.FileInfo{}, nil
		}
		return plan.FileInfo{}, err
	}
	return plan.FileInfo{
		Exists:  true,
		Dir:     info.IsDir(),
		Symlink: info.Mode()&fs.ModeSymlink != 0,
		Size:    info.Size(),
		Mtime:   info.ModTime().UnixNano(),
	}, nil
}

// FilteredSource returns the bytes the engine would write for an entity:
// the filtered content for files, the link target for symlinks.
func (s *Snapshot) FilteredSource(e plan.Entity) ([]byte, error) {
	if cached, ok := s.filtered[e.SourcePath]; ok {
		return cached, nil
	}

	var (
		out []byte
		err error
	)
	if e.Symlink {
		var target string
		target, err = os.Readlink(s.srcAbs(e.SourcePath))
		out = []byte(target)
	} else {
		var raw []byte
		raw, err = os.ReadFile(s.srcAbs(e.SourcePath))
		if err == nil {
			out, err = s.filter.Apply(e.SourcePath, raw)
		}
	}
	if err != nil {
		return nil, err
	}

	s.filtered[e.SourcePath] = out
	return out, nil
}

// DestContent reads current destination bytes, or the link target for
// symlinks.
func (s *Snapshot) DestContent(destPath string, symlink bool) ([]byte, error) {
	abs := s.destAbs(destPath)
	if symlink {
		reader, ok := s.destFs.(afero.LinkReader)
		if !ok {
			return nil, fmt.Errorf("filesystem does not support symlinks")
		}
		target, err := reader.ReadlinkIfPossible(abs)
		if err != nil {
			return nil, err
		}
		return []byte(target), nil
	}
	return afero.ReadFile(s.destFs, abs)
}

// SourceMode returns the source file's permission bits, copied onto the
// destination after a write.
func (s *Snapshot) SourceMode(sourcePath string) (fs.FileMode, error) {
	info, err := os.Lstat(s.srcAbs(sourcePath))
	if err != nil {
		return 0, err
	}
	return info.Mode().Perm(), nil
}
