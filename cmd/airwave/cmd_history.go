/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/friendsincode/airwave/internal/audit"
	"github.com/friendsincode/airwave/internal/db"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history <station>",
	Short: "Print persisted status transitions for a station",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := loadConfig(); err != nil {
			return err
		}
		database, err := db.Connect(cfg)
		if err != nil {
			return err
		}
		defer db.Close(database)
		if err := db.Migrate(database); err != nil {
			return err
		}

		svc := audit.NewService(database, nil, cfg.InstanceID, logger)
		records, total, err := svc.Query(cmd.Context(), audit.QueryFilters{StationID: args[0], Limit: historyLimit})
		if err != nil {
			return fmt.Errorf("query history: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s: %d of %d transitions\n", args[0], len(records), total)
		for _, rec := range records {
			fmt.Fprintf(out, "%s  %-20s -> %-20s  %s\n", rec.ChangedAt.Format("2006-01-02 15:04:05"), rec.OldStatus, rec.NewStatus, rec.InstanceID)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 50, "Maximum transitions to print")
	rootCmd.AddCommand(historyCmd)
}
