package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/treefork/treefork/internal/backport"
	"github.com/treefork/treefork/internal/plan"
	"github.com/treefork/treefork/internal/ui"
	"github.com/treefork/treefork/internal/ui/tui"
)

func overrideCommand() *cli.Command {
	return &cli.Command{
		Name:      "override",
		Usage:     "Promote a managed file to externally writable, keeping its content",
		UsageText: "treefork override <destination-path>",
		Action: func(_ context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 1 {
				return errors.New("override requires exactly 1 argument: <destination-path>")
			}
			path := cmd.Args().Get(0)

			s, err := newSession(cmd, false)
			if err != nil {
				return err
			}

			if _, ok := s.records.Get(path); !ok {
				return fmt.Errorf("%s is not a managed file", path)
			}
			s.records.Delete(path)
			if err := s.saveState(); err != nil {
				return err
			}
			if err := s.writeIgnores(); err != nil {
				return err
			}

			fmt.Println(ui.StatusSuccess(path + " is no longer managed"))
			fmt.Println(ui.Dim("add it to paths.external in " + cmd.String("config") + " so the next update does not re-claim it"))
			return nil
		},
	}
}

func describeCommand() *cli.Command {
	return &cli.Command{
		Name:      "describe",
		Usage:     "Report one path's managed/unchecked/mirrored status",
		UsageText: "treefork describe <destination-path>",
		Action: func(_ context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 1 {
				return errors.New("describe requires exactly 1 argument: <destination-path>")
			}
			path := cmd.Args().Get(0)

			s, err := newSession(cmd, false)
			if err != nil {
				return err
			}

			fmt.Println(ui.Bold(path))
			if rec, ok := s.records.Get(path); ok {
				fmt.Printf("  managed: yes (%s from %s)\n", rec.Type, rec.SourcePath)
				filterable, ferr := s.filter.Filterable(rec.SourcePath)
				switch {
				case ferr != nil:
					fmt.Printf("  filterable: %s\n", ui.StatusError(ferr.Error()))
				case filterable:
					fmt.Println("  filterable: yes")
				default:
					fmt.Println("  filterable: no (copied verbatim)")
				}
				if rec.EnvHash == s.envHash {
					fmt.Println("  env-hash: current")
				} else {
					fmt.Println("  env-hash: stale (full re-evaluation on next run)")
				}
			} else {
				fmt.Println("  managed: no")
			}
			fmt.Printf("  unchecked: %v\n", s.cfg.IsUnchecked(path))
			fmt.Printf("  mirrored: %v\n", s.cfg.IsMirrored(path))
			fmt.Printf("  external: %v\n", s.cfg.IsExternal(path))
			fmt.Printf("  generated: %v\n", s.cfg.IsGenerated(path))
			return nil
		},
	}
}

func backportCommand() *cli.Command {
	return &cli.Command{
		Name:      "backport",
		Usage:     "Reconcile one conflicting destination edit back into the source",
		UsageText: "treefork backport [options] [destination-path]",
		Description: `Resolves exactly one conflict per invocation, so that fixing it does
   not mask other errors the same fix might already resolve. Re-run to see
   what remains.`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "auto",
				Usage: "Adopt the destination content into the source verbatim (unfiltered paths only)",
			},
		},
		Action: func(_ context.Context, cmd *cli.Command) error {
			s, err := newSession(cmd, true)
			if err != nil {
				return err
			}

			p := s.buildPlan()
			conflicts := p.Conflicts()
			if len(conflicts) == 0 {
				fmt.Println(ui.StatusSuccess("no conflicts to backport"))
				return nil
			}

			chosen, err := chooseConflict(s, conflicts, cmd.Args().Get(0))
			if err != nil {
				return err
			}
			if chosen == nil {
				return nil // picker cancelled
			}

			assistant := backport.New(s.fs, s.cfg.AbsSourceRoot(), s.cfg.DestRoot(), s.filter, s.cfg.Tools.Merge, nil)
			outcome, err := assistant.Resolve(*chosen, cmd.Bool("auto"))
			if err != nil {
				return err
			}
			if outcome == backport.StopAfterOne && len(conflicts) > 1 {
				fmt.Println(ui.Dim(fmt.Sprintf("%d conflict(s) remain; re-run backport after verifying this one", len(conflicts)-1)))
			}
			return nil
		},
	}
}

// chooseConflict picks the single conflict to resolve: the path argument
// when given, the only conflict when there is one, or an interactive pick.
func chooseConflict(s *session, conflicts []plan.ConflictPath, pathArg string) (*backport.Conflict, error) {
	if pathArg != "" {
		for _, c := range conflicts {
			if c.DestPath == pathArg {
				return s.toBackportConflict(c)
			}
		}
		return nil, fmt.Errorf("%s is not in conflict", pathArg)
	}

	if len(conflicts) == 1 || !ui.IsTerminal() {
		return s.toBackportConflict(conflicts[0])
	}

	items := make([]tui.ConflictItem, len(conflicts))
	for i, c := range conflicts {
		kind := "conflict"
		if c.Double {
			kind = "double conflict"
		}
		items[i] = tui.ConflictItem{
			DestPath: c.DestPath,
			Kind:     kind,
			Preview:  s.conflictPreview(c),
		}
	}
	idx, err := tui.RunConflictPicker(items)
	if err != nil {
		return nil, err
	}
	if idx < 0 {
		return nil, nil
	}
	return s.toBackportConflict(conflicts[idx])
}
