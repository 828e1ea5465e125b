// Package backport reconciles destination-only edits back into the source
// tree when the planner reports a conflict.
package backport

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
	"github.com/spf13/afero"

	"github.com/treefork/treefork/internal/filter"
	"github.com/treefork/treefork/internal/logging"
	"github.com/treefork/treefork/internal/ui"
)

// Outcome tells the caller whether to keep handling further conflicts.
// Exactly one conflict is resolved per invocation so that fixing it does
// not mask other errors the same fix might already resolve.
type Outcome int

const (
	// Continue means nothing was resolved; the caller may try another path.
	Continue Outcome = iota
	// StopAfterOne means one conflict was handled; re-run to see the rest.
	StopAfterOne
)

// Conflict describes the single path being reconciled.
type Conflict struct {
	DestPath   string
	SourcePath string
	// Filtered records whether the path goes through the content filter;
	// filtered paths cannot be adopted automatically because reproducing
	// the desired filtered output takes human judgment about the source.
	Filtered bool
	// Double marks a double conflict (both sides changed).
	Double bool
}

// Assistant presents destination content against the source for manual
// reconciliation, or adopts it verbatim for unfiltered paths.
type Assistant struct {
	fs        afero.Fs
	srcRoot   string
	destRoot  string
	filter    *filter.Filter
	mergeTool []string
	out       io.Writer
}

// New builds an Assistant. mergeTool, when non-empty, is invoked as
// `tool <sourceFile> <destFile>` for side-by-side reconciliation.
func New(fs afero.Fs, srcRoot, destRoot string, f *filter.Filter, mergeTool []string, out io.Writer) *Assistant {
	if out == nil {
		out = os.Stdout
	}
	return &Assistant{
		fs:        fs,
		srcRoot:   srcRoot,
		destRoot:  destRoot,
		filter:    f,
		mergeTool: mergeTool,
		out:       out,
	}
}

// Resolve handles one conflict. With auto set, the destination content is
// adopted into the source verbatim; this is only valid for unfiltered
// paths. Otherwise a diff preview is printed and the external merge view
// is launched when configured.
func (a *Assistant) Resolve(c Conflict, auto bool) (Outcome, error) {
	srcAbs := filepath.Join(a.srcRoot, filepath.FromSlash(c.SourcePath))
	destAbs := filepath.Join(a.destRoot, filepath.FromSlash(c.DestPath))

	reference, err := a.referenceContent(c, srcAbs)
	if err != nil {
		return Continue, err
	}
	current, err := afero.ReadFile(a.fs, destAbs)
	if err != nil {
		return Continue, fmt.Errorf("backport: read destination %s: %w", c.DestPath, err)
	}

	if auto {
		if c.Filtered {
			return Continue, fmt.Errorf("backport: %s is filtered; automatic adoption only works for unfiltered paths", c.DestPath)
		}
		if err := a.adopt(srcAbs, current); err != nil {
			return Continue, err
		}
		fmt.Fprintln(a.out, ui.StatusSuccess(fmt.Sprintf("adopted %s into source %s", c.DestPath, c.SourcePath)))
		return StopAfterOne, nil
	}

	a.printPreview(c, string(reference), string(current))

	if len(a.mergeTool) > 0 {
		if err := a.launchMergeView(srcAbs, destAbs); err != nil {
			return Continue, err
		}
	} else {
		fmt.Fprintln(a.out, ui.Dim("no merge tool configured; edit the source manually and re-run update"))
	}
	return StopAfterOne, nil
}

// referenceContent is what the destination is compared against: the raw
// source for unfiltered paths, the filtered source for filtered ones.
func (a *Assistant) referenceContent(c Conflict, srcAbs string) ([]byte, error) {
	raw, err := os.ReadFile(srcAbs)
	if err != nil {
		return nil, fmt.Errorf("backport: read source %s: %w", c.SourcePath, err)
	}
	if !c.Filtered {
		return raw, nil
	}
	return a.filter.Apply(c.SourcePath, raw)
}

// adopt writes the destination bytes back over the source file.
func (a *Assistant) adopt(srcAbs string, content []byte) error {
	info, err := os.Stat(srcAbs)
	if err != nil {
		return fmt.Errorf("backport: stat source: %w", err)
	}
	if err := os.WriteFile(srcAbs, content, info.Mode().Perm()); err != nil {
		return fmt.Errorf("backport: write source: %w", err)
	}
	return nil
}

func (a *Assistant) printPreview(c Conflict, reference, current string) {
	kind := "conflict"
	if c.Double {
		kind = "double conflict"
	}
	side := "raw source"
	if c.Filtered {
		side = "filtered source"
	}
	fmt.Fprintln(a.out, ui.Bold(fmt.Sprintf("%s: %s (destination vs %s)", kind, c.DestPath, side)))
	fmt.Fprint(a.out, RenderDiff(reference, current))
}

// RenderDiff returns a colored line diff of two texts.
func RenderDiff(before, after string) string {
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	var sb strings.Builder
	for _, d := range diffs {
		for _, line := range splitLines(d.Text) {
			switch d.Type {
			case diffmatchpatch.DiffInsert:
				sb.WriteString(ui.Added("+" + line))
			case diffmatchpatch.DiffDelete:
				sb.WriteString(ui.Removed("-" + line))
			default:
				sb.WriteString(ui.Dim(" " + line))
			}
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

func splitLines(text string) []string {
	return strings.Split(strings.TrimRight(text, "\n"), "\n")
}

// launchMergeView runs the configured external merge view on the two
// files, inheriting the terminal.
func (a *Assistant) launchMergeView(srcAbs, destAbs string) error {
	args := append(append([]string{}, a.mergeTool[1:]...), srcAbs, destAbs)
	cmd := exec.Command(a.mergeTool[0], args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	logging.Debug("launching merge view", logging.Op(a.mergeTool[0]))
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("backport: merge view %s: %w", a.mergeTool[0], err)
	}
	return nil
}
