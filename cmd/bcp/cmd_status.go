package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/odvcencio/bcp/pkg/filewatch"
	"github.com/odvcencio/bcp/pkg/logging"
	"github.com/odvcencio/bcp/pkg/paths"
	"github.com/odvcencio/bcp/pkg/state"
	"github.com/odvcencio/bcp/pkg/sweep"
)

func newStatusCmd(a *app) *cobra.Command {
	var events int
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show sweep progress and recent journal events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.store().Read()
			found := err == nil
			if err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			}
			if !found {
				fmt.Fprintf(a.out, "Phase: %s (no state at %s)\n", sweep.Fresh, a.store().Path())
				return nil
			}
			printStatus(a, st, sweep.PhaseOf(st, true))

			if events > 0 {
				recent, err := logging.ReadRecentEvents(filepath.Join(a.dataDir, logging.EventsFile), events)
				if err != nil && !errors.Is(err, fs.ErrNotExist) {
					return err
				}
				if len(recent) > 0 {
					fmt.Fprintln(a.out, "\nRecent events:")
				}
				for _, ev := range recent {
					printEvent(a, ev)
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&events, "events", 5, "number of recent journal events to show")
	return cmd
}

func printStatus(a *app, st *state.State, phase sweep.Phase) {
	total := len(st.Plan.Cases)
	fmt.Fprintf(a.out, "Sweep:    %s\n", st.ID)
	fmt.Fprintf(a.out, "Phase:    %s\n", phase)
	fmt.Fprintf(a.out, "Progress: %d/%d\n", st.Next(), total)
	if st.Meta.Revision != "" {
		fmt.Fprintf(a.out, "Revision: %s\n", st.Meta.Revision)
	}
	if !st.Complete() {
		fmt.Fprintf(a.out, "Next:     case %d (%s)\n", st.Next(), st.Plan.Cases[st.Next()].Label())
	}
}

func printEvent(a *app, ev logging.Event) {
	line := fmt.Sprintf("  %s %-5s %s", ev.Timestamp.Local().Format(time.DateTime), ev.Level, ev.EventType)
	if ev.Case != nil {
		line += fmt.Sprintf(" case=%d", *ev.Case)
	}
	if ev.Label != "" {
		line += " " + ev.Label
	}
	if ev.Message != "" {
		line += ": " + ev.Message
	}
	fmt.Fprintln(a.out, line)
}

func newWatchCmd(a *app) *cobra.Command {
	var follow bool
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow the state file and print progress as checkpoints land",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return watchState(cmd.Context(), a, follow)
		},
	}
	cmd.Flags().BoolVar(&follow, "follow", false, "keep watching after the sweep completes")
	return cmd
}

// watchState prints one line per checkpoint until the sweep completes (or,
// with follow, until ctx is cancelled).
func watchState(ctx context.Context, a *app, follow bool) error {
	store := a.store()
	watcher, err := filewatch.WatchDir(a.dataDir, a.logger)
	if err != nil {
		return err
	}
	defer watcher.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	recorded := -1
	report := func() {
		st, err := store.Read()
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				a.logger.Warn("could not read state", "error", err)
			}
			return
		}
		if st.Next() == recorded {
			return
		}
		recorded = st.Next()
		printCheckpoint(a, st)
		if st.Complete() && !follow {
			cancel()
		}
	}

	changes := make(chan struct{}, 1)
	id := watcher.Subscribe(paths.StateFile, func(filewatch.FileChange) {
		select {
		case changes <- struct{}{}:
		default:
		}
	})
	defer watcher.Unsubscribe(id)

	done := make(chan error, 1)
	go func() { done <- watcher.Run(ctx) }()

	report()
	for {
		select {
		case <-changes:
			report()
		case err := <-done:
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
	}
}

func printCheckpoint(a *app, st *state.State) {
	total := len(st.Plan.Cases)
	if st.Next() == 0 {
		fmt.Fprintf(a.out, "[%s] 0/%d recorded\n", time.Now().Format(time.TimeOnly), total)
		return
	}
	last := st.Next() - 1
	res := st.Results[last]
	fmt.Fprintf(a.out, "[%s] %d/%d recorded; last: %s build=%s run=%s\n",
		time.Now().Format(time.TimeOnly), st.Next(), total,
		st.Plan.Cases[last].Label(), res.Build.Round(time.Millisecond), res.Run.Round(time.Millisecond))
	if st.Complete() {
		fmt.Fprintln(a.out, "sweep complete; run `bcp report` to render it")
	}
}
