package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history [KEY]",
	Short: "Print audit history, newest first; omit KEY for the whole workspace",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var key string
		if len(args) == 1 {
			key = args[0]
		}

		e, err := newEngine(cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		records, err := e.History(activeWorkspace(cmd), key)
		if err != nil {
			return err
		}
		for _, rec := range records {
			fmt.Printf("%d  %s  %-8s  %s\n", rec.Seq, rec.Timestamp.Format(time.RFC3339), rec.Op, rec.Key)
		}
		return nil
	},
}

var restoreToCmd = &cobra.Command{
	Use:   "restore-to TIMESTAMP",
	Short: "Replay history to restore the whole workspace as of an RFC3339 instant",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		at, err := time.Parse(time.RFC3339, args[0])
		if err != nil {
			return fmt.Errorf("TIMESTAMP must be RFC3339: %w", err)
		}

		e, err := newEngine(cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		if err := e.RestoreTo(activeWorkspace(cmd), at); err != nil {
			return err
		}
		fmt.Printf("workspace restored to %s\n", at.Format(time.RFC3339))
		return nil
	},
}

var compactCmd = &cobra.Command{
	Use:   "compact",
	Short: "Purge history, archive, and replication records past the retention window",
	RunE: func(cmd *cobra.Command, args []string) error {
		days, _ := cmd.Flags().GetInt("retention-days")

		e, err := newEngine(cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		n, err := e.Compact(activeWorkspace(cmd), days)
		if err != nil {
			return err
		}
		fmt.Printf("purged %d records\n", n)
		return nil
	},
}

func init() {
	compactCmd.Flags().Int("retention-days", 0, "Retention window in days; 0 uses the engine default (15)")
}
