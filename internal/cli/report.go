package cli

import (
	"fmt"
	"sort"

	"github.com/dustin/go-humanize"

	"github.com/treefork/treefork/internal/plan"
	"github.com/treefork/treefork/internal/ui"
)

// reportPlan prints a plan summary and every accumulated error, returning
// the number of problems found.
func reportPlan(s *session, p *plan.Plan, guard []error, verbose bool) int {
	if verbose {
		for _, e := range p.Copy {
			fmt.Println(ui.StatusSuccess("copy " + e.DestPath))
		}
		for _, e := range p.Recache {
			fmt.Println(ui.StatusUnchanged("recache " + e.DestPath))
		}
		for _, rec := range p.Purge {
			fmt.Println(ui.StatusWarning("purge " + rec.Path))
		}
	}

	var copyBytes uint64
	for _, e := range p.Copy {
		if st, err := s.snap.SourceStat(e.SourcePath); err == nil && st.Exists {
			copyBytes += uint64(st.Size)
		}
	}

	fmt.Printf("%d to copy (%s), %d to recache, %d to purge, %d unchanged\n",
		len(p.Copy), humanize.Bytes(copyBytes), len(p.Recache), len(p.Purge), p.Unchanged)

	problems := 0
	for _, err := range p.Errors() {
		fmt.Println(ui.StatusError(err.Error()))
		problems++
	}
	for _, err := range guard {
		fmt.Println(ui.StatusError(err.Error()))
		problems++
	}
	return problems
}

// sortedErrors flattens a per-path error map in path order.
func sortedErrors(m map[string]error) []error {
	paths := make([]string, 0, len(m))
	for p := range m {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	errs := make([]error, 0, len(paths))
	for _, p := range paths {
		errs = append(errs, m[p])
	}
	return errs
}

// problemsError converts a problem count into the command's exit error.
func problemsError(n int) error {
	if n == 0 {
		return nil
	}
	return fmt.Errorf("%d problem(s) found", n)
}
