package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var searchCmd = &cobra.Command{
	Use:   "search QUERY",
	Short: "Full-text search over every key's indexed value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		keysOnly, _ := cmd.Flags().GetBool("keys-only")

		e, err := newEngine(cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		results, err := e.Search(activeWorkspace(cmd), args[0], limit, keysOnly)
		if err != nil {
			return err
		}
		if len(results) == 0 {
			fmt.Println("no matches")
			return nil
		}
		for _, r := range results {
			if keysOnly {
				fmt.Println(r.Key)
				continue
			}
			fmt.Printf("%s:\n", r.Key)
			printValue(r.Value)
		}
		return nil
	},
}

var optimizeIndexCmd = &cobra.Command{
	Use:   "optimize-index",
	Short: "Rebuild the full-text index for compactness and query speed",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEngine(cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		if err := e.OptimizeIndex(activeWorkspace(cmd)); err != nil {
			return err
		}
		fmt.Println("index optimized")
		return nil
	},
}

func init() {
	searchCmd.Flags().Int("limit", 20, "Maximum number of matches to return")
	searchCmd.Flags().Bool("keys-only", false, "Print matching keys without their values")
}
