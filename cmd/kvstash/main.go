package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/kvstash/kvstash/pkg/engine"
	"github.com/kvstash/kvstash/pkg/log"
)

var (
	// Version information (set via ldflags during build)
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "kvstash",
	Short: "kvstash - embeddable single-file key-value and queue store",
	Long: `kvstash is an embeddable key-value store with multi-workspace
layout, optional at-rest encryption, TTL expiry, full-text search, and
audit history with point-in-time recovery.

Each workspace is its own bbolt file under --data-dir; a workspace is
either a plain key-value store or a queue/stack/priority_queue, decided
by whichever operation touches it first.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("kvstash version %s\nCommit: %s\n", Version, Commit))

	rootCmd.PersistentFlags().String("data-dir", defaultDataDir(), "Directory holding workspace files")
	rootCmd.PersistentFlags().String("workspace", "default", "Workspace to operate on")
	rootCmd.PersistentFlags().String("passphrase", os.Getenv("KVSTASH_PASSPHRASE"), "Master passphrase for encrypted values (or $KVSTASH_PASSPHRASE)")
	rootCmd.PersistentFlags().Duration("lock-timeout", 5*time.Second, "How long to wait for a workspace file lock")
	rootCmd.PersistentFlags().Duration("op-timeout", 0, "Per-call deadline; 0 disables it")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(
		saveCmd, getCmd, patchCmd, pushCmd, removeCmd, deleteCmd, restoreCmd, listCmd,
		searchCmd, optimizeIndexCmd,
		historyCmd, restoreToCmd, compactCmd,
		workspaceCmd, moveCmd,
		rotateKeyCmd, exportCmd, importCmd,
		replicationCmd,
		queueCmd, stackCmd, priorityQueueCmd,
	)
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./.kvstash"
	}
	return home + "/.kvstash"
}

func initLogging() {
	level, _ := rootCmd.PersistentFlags().GetString("log-level")
	jsonOutput, _ := rootCmd.PersistentFlags().GetBool("log-json")
	log.Init(log.Config{Level: log.Level(level), JSONOutput: jsonOutput})
}

// newEngine builds an Engine from the root command's persistent flags. Every
// subcommand calls this exactly once; nothing in this CLI keeps an Engine
// alive across invocations.
func newEngine(cmd *cobra.Command) (*engine.Engine, error) {
	dataDir, _ := cmd.Flags().GetString("data-dir")
	passphrase, _ := cmd.Flags().GetString("passphrase")
	lockTimeout, _ := cmd.Flags().GetDuration("lock-timeout")
	opTimeout, _ := cmd.Flags().GetDuration("op-timeout")

	return engine.New(engine.Options{
		DataDir:     dataDir,
		LockTimeout: lockTimeout,
		OpTimeout:   opTimeout,
		Passphrase:  passphrase,
	})
}

func activeWorkspace(cmd *cobra.Command) string {
	ws, _ := cmd.Flags().GetString("workspace")
	return ws
}
