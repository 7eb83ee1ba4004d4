package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kvstash/kvstash/pkg/engine"
)

var workspaceCmd = &cobra.Command{
	Use:   "workspace",
	Short: "Manage workspaces",
}

var workspaceUseCmd = &cobra.Command{
	Use:   "use NAME",
	Short: "Select NAME as the active workspace, creating its file on first use",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEngine(cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		if err := e.UseWorkspace(args[0]); err != nil {
			return err
		}
		fmt.Printf("active workspace: %s\n", args[0])
		return nil
	},
}

var workspaceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List workspaces under --data-dir",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEngine(cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		names, err := e.ListWorkspaces()
		if err != nil {
			return err
		}
		for _, n := range names {
			fmt.Println(n)
		}
		return nil
	},
}

var workspaceDropCmd = &cobra.Command{
	Use:   "drop NAME",
	Short: "Remove a workspace's backing file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")

		e, err := newEngine(cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		if err := e.DropWorkspace(args[0], force); err != nil {
			return err
		}
		fmt.Printf("workspace dropped: %s\n", args[0])
		return nil
	},
}

var moveCmd = &cobra.Command{
	Use:   "move SOURCE TARGET KEY",
	Short: "Relocate KEY from workspace SOURCE to workspace TARGET",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		overwrite, _ := cmd.Flags().GetBool("overwrite")

		e, err := newEngine(cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		if err := e.MoveKey(args[0], args[1], args[2], overwrite); err != nil {
			return err
		}
		fmt.Printf("%s moved: %s -> %s\n", args[2], args[0], args[1])
		return nil
	},
}

var rotateKeyCmd = &cobra.Command{
	Use:   "rotate-key",
	Short: "Re-encrypt every encrypted entry under a new passphrase",
	RunE: func(cmd *cobra.Command, args []string) error {
		oldPass, _ := cmd.Flags().GetString("old-passphrase")
		newPass, _ := cmd.Flags().GetString("new-passphrase")
		batch, _ := cmd.Flags().GetInt("batch-size")
		if oldPass == "" || newPass == "" {
			return fmt.Errorf("--old-passphrase and --new-passphrase are both required")
		}

		e, err := newEngine(cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		n, err := e.RotateMasterKey(activeWorkspace(cmd), oldPass, newPass, batch)
		if err != nil {
			return err
		}
		fmt.Printf("rotated %d entries\n", n)
		return nil
	},
}

var exportCmd = &cobra.Command{
	Use:   "export [FILE]",
	Short: "Export every live key's current value; defaults to stdout",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")

		e, err := newEngine(cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		out := os.Stdout
		if len(args) == 1 {
			f, err := os.Create(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			out = f
		}

		n, err := e.ExportData(activeWorkspace(cmd), out, engine.ExportFormat(format))
		if err != nil {
			return err
		}
		if out != os.Stdout {
			fmt.Printf("exported %d keys\n", n)
		}
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Import records previously produced by export",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")

		e, err := newEngine(cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		n, err := e.ImportData(activeWorkspace(cmd), f, engine.ExportFormat(format))
		if err != nil {
			return err
		}
		fmt.Printf("imported %d keys\n", n)
		return nil
	},
}

var replicationCmd = &cobra.Command{
	Use:   "replication",
	Short: "Inspect the replication journal",
}

var replicationStreamCmd = &cobra.Command{
	Use:   "stream",
	Short: "Print every journal entry committed after --since",
	RunE: func(cmd *cobra.Command, args []string) error {
		since, _ := cmd.Flags().GetUint64("since")

		e, err := newEngine(cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		entries, err := e.ReplicationStream(activeWorkspace(cmd), since)
		if err != nil {
			return err
		}
		for _, entry := range entries {
			fmt.Printf("%d  %s  %-8s  %s  %s\n", entry.Seq, entry.Timestamp.Format("2006-01-02T15:04:05Z07:00"), entry.Op, entry.Key, entry.CorrelationID)
		}
		return nil
	},
}

func init() {
	workspaceCmd.AddCommand(workspaceUseCmd, workspaceListCmd, workspaceDropCmd)
	workspaceDropCmd.Flags().Bool("force", false, "Drop even if it is the active workspace")

	moveCmd.Flags().Bool("overwrite", false, "Overwrite TARGET's existing entry instead of aborting")

	rotateKeyCmd.Flags().String("old-passphrase", "", "Current passphrase (required)")
	rotateKeyCmd.Flags().String("new-passphrase", "", "New passphrase (required)")
	rotateKeyCmd.Flags().Int("batch-size", 100, "Entries re-encrypted per transaction")

	exportCmd.Flags().String("format", "json", "Output format: json, csv, or yaml")
	importCmd.Flags().String("format", "json", "Input format: json, csv, or yaml")

	replicationCmd.AddCommand(replicationStreamCmd)
	replicationStreamCmd.Flags().Uint64("since", 0, "Only print entries with seq greater than this")
}
