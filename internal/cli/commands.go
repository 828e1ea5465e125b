// Package cli provides command definitions for treefork.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/urfave/cli/v3"

	"github.com/treefork/treefork/internal/backport"
	"github.com/treefork/treefork/internal/logging"
	"github.com/treefork/treefork/internal/plan"
	"github.com/treefork/treefork/internal/ui"
)

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Report what an update would do, without acting",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "long",
				Aliases: []string{"l"},
				Usage:   "List every planned action, not just counts",
			},
		},
		Action: func(_ context.Context, cmd *cli.Command) error {
			s, err := newSession(cmd, true)
			if err != nil {
				return err
			}
			p := s.buildPlan()
			guard := s.guardErrors()
			return problemsError(reportPlan(s, p, guard, cmd.Bool("long")))
		},
	}
}

func diffCommand() *cli.Command {
	return &cli.Command{
		Name:  "diff",
		Usage: "Show content deltas for pending copies",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "tool",
				Usage: "Use the external diff viewer from tools.diff instead of the built-in renderer",
			},
		},
		Action: func(_ context.Context, cmd *cli.Command) error {
			s, err := newSession(cmd, true)
			if err != nil {
				return err
			}
			p := s.buildPlan()

			for _, e := range p.Copy {
				if err := showDiff(s, e, cmd.Bool("tool")); err != nil {
					return err
				}
			}
			if len(p.Copy) == 0 {
				fmt.Println("nothing to copy")
			}
			return nil
		},
	}
}

// showDiff prints the delta between the filtered source and the current
// destination content for one pending copy.
func showDiff(s *session, e plan.Entity, external bool) error {
	filtered, err := s.snap.FilteredSource(e)
	if err != nil {
		return err
	}

	var current []byte
	if st, err := s.snap.DestStat(e.DestPath); err == nil && st.Exists && !st.Dir {
		current, err = s.snap.DestContent(e.DestPath, e.Symlink)
		if err != nil {
			return err
		}
	}

	if external && len(s.cfg.Tools.Diff) > 0 {
		return externalDiff(s, e, filtered)
	}

	fmt.Println(ui.Bold("--- " + e.DestPath))
	fmt.Print(backport.RenderDiff(string(current), string(filtered)))
	return nil
}

// externalDiff materializes the filtered source in a temp file and hands
// both sides to the configured diff viewer.
func externalDiff(s *session, e plan.Entity, filtered []byte) error {
	tmp, err := os.CreateTemp("", "treefork-diff-*"+filepath.Ext(e.DestPath))
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(filtered); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	tool := s.cfg.Tools.Diff
	args := append(append([]string{}, tool[1:]...), filepath.Join(s.cfg.DestRoot(), filepath.FromSlash(e.DestPath)), tmp.Name())
	c := exec.Command(tool[0], args...)
	c.Stdout = os.Stdout
	c.Stderr = os.Stderr
	// Diff tools conventionally exit 1 when files differ.
	if err := c.Run(); err != nil {
		if exit, ok := err.(*exec.ExitError); ok && exit.ExitCode() == 1 {
			return nil
		}
		return fmt.Errorf("diff viewer %s: %w", tool[0], err)
	}
	return nil
}

func updateCommand() *cli.Command {
	return &cli.Command{
		Name:  "update",
		Usage: "Apply the sync plan to the destination tree",
		Action: func(_ context.Context, cmd *cli.Command) error {
			defer logging.Timer("update")()

			s, err := newSession(cmd, true)
			if err != nil {
				return err
			}

			p := s.buildPlan()

			ex := s.executor()
			if ui.IsTerminal() {
				ex.Progress = os.Stderr
			}
			res := ex.Apply(p, s.cfg.IsGenerated)

			// State is persisted whether or not the run succeeded, so a
			// partial failure still leaves an accurate record of what was
			// actually written.
			if err := s.saveState(); err != nil {
				return err
			}
			if err := s.writeIgnores(); err != nil {
				return err
			}

			guard := s.guardErrors()
			problems := reportPlan(s, p, guard, false)
			for _, err := range sortedErrors(res.Errors) {
				fmt.Println(ui.StatusError(err.Error()))
				problems++
			}

			fmt.Printf("%s\n", ui.StatusSuccess(fmt.Sprintf(
				"copied %d, recached %d, purged %d", res.Copied, res.Recached, res.Purged)))
			return problemsError(problems)
		},
	}
}

func cleanCommand() *cli.Command {
	return &cli.Command{
		Name:  "clean",
		Usage: "Remove everything the engine manages from the destination",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "list",
				Usage: "Only list the paths that would be removed",
			},
			&cli.BoolFlag{
				Name:  "check",
				Usage: "Exit non-zero if anything managed is present; remove nothing",
			},
		},
		Action: func(_ context.Context, cmd *cli.Command) error {
			s, err := newSession(cmd, false)
			if err != nil {
				return err
			}

			recs := s.records.Records()

			switch {
			case cmd.Bool("list"):
				for _, rec := range recs {
					fmt.Println(rec.Path)
				}
				return nil
			case cmd.Bool("check"):
				if len(recs) > 0 {
					return fmt.Errorf("%d managed file(s) present", len(recs))
				}
				fmt.Println(ui.StatusSuccess("destination holds no managed files"))
				return nil
			}

			p := &plan.Plan{
				Purge:        recs,
				SourceErrors: map[string]error{},
				DestErrors:   map[string]error{},
			}
			res := s.executor().Apply(p, nil)

			if err := s.saveState(); err != nil {
				return err
			}
			if err := s.writeIgnores(); err != nil {
				return err
			}

			for _, err := range sortedErrors(res.Errors) {
				fmt.Println(ui.StatusError(err.Error()))
			}
			fmt.Printf("%s\n", ui.StatusSuccess(fmt.Sprintf("purged %d file(s)", res.Purged)))
			if res.Failed() {
				return fmt.Errorf("%d problem(s) found", len(res.Errors))
			}
			return nil
		},
	}
}
