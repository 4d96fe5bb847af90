/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/friendsincode/airwave/internal/clock"
	"github.com/friendsincode/airwave/internal/schedule"
	"github.com/friendsincode/airwave/internal/scheduler"
	"github.com/friendsincode/airwave/internal/station"
)

var (
	previewDays int
	previewFrom string
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Inspect schedule files",
}

var scheduleValidateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Check a schedule file without starting the server",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := schedule.Load(args[0])
		if err != nil {
			return err
		}
		if err := f.Validate(); err != nil {
			return fmt.Errorf("schedule file is invalid:\n%w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d stations, %d tasks ok\n", args[0], len(f.Stations), len(f.Tasks))
		return nil
	},
}

var schedulePreviewCmd = &cobra.Command{
	Use:   "preview <file>",
	Short: "List the firings a schedule file produces",
	Long: `Compile every task in a schedule file and print its firings.

Examples:
  # Next 7 days from now
  airwave schedule preview schedule.yaml

  # One day starting at a fixed instant
  airwave schedule preview schedule.yaml --from 2026-03-02T00:00:00Z --days 1
`,
	Args: cobra.ExactArgs(1),
	RunE: runSchedulePreview,
}

func init() {
	schedulePreviewCmd.Flags().IntVar(&previewDays, "days", 7, "Number of days to preview")
	schedulePreviewCmd.Flags().StringVar(&previewFrom, "from", "", "Start instant (RFC3339), defaults to now")
	scheduleCmd.AddCommand(scheduleValidateCmd, schedulePreviewCmd)
	rootCmd.AddCommand(scheduleCmd)
}

func runSchedulePreview(cmd *cobra.Command, args []string) error {
	from := time.Now()
	if previewFrom != "" {
		parsed, err := time.Parse(time.RFC3339, previewFrom)
		if err != nil {
			return fmt.Errorf("--from: %w", err)
		}
		from = parsed
	}
	if previewDays <= 0 {
		return fmt.Errorf("--days must be positive")
	}

	f, err := schedule.Load(args[0])
	if err != nil {
		return err
	}
	return preview(cmd.OutOrStdout(), f, from, from.AddDate(0, 0, previewDays))
}

// preview registers f against a throwaway runner whose jobs never run, then prints every
// registration's firings in [from, to).
func preview(out io.Writer, f *schedule.File, from, to time.Time) error {
	clk := clock.NewFake(from)
	runner := scheduler.NewRunner(scheduler.RunnerConfig{}, clk, zerolog.Nop())
	noop := scheduler.JobFunc(func(context.Context, scheduler.JobData) error { return nil })
	for _, name := range []string{scheduler.JobAIControl, scheduler.JobEventTrigger, scheduler.JobContentInjection} {
		runner.Handle(name, noop)
	}
	reg := station.NewRegistry(station.Defaults{}, nil, zerolog.Nop())
	svc := scheduler.NewService(runner, reg, clk, nil, zerolog.Nop())

	res, err := schedule.NewLoader(reg, svc, zerolog.Nop()).Apply(context.Background(), f)
	if err != nil {
		return err
	}
	for id, taskErr := range res.Failed {
		fmt.Fprintf(out, "! %s: %v\n", id, taskErr)
	}
	for _, key := range runner.Keys() {
		firings := runner.Upcoming(key, from, to)
		fmt.Fprintf(out, "%s (%d)\n", key, len(firings))
		for _, t := range firings {
			fmt.Fprintf(out, "  %s\n", t.Format("Mon 2006-01-02 15:04 MST"))
		}
	}
	return nil
}
