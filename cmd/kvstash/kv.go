package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var saveCmd = &cobra.Command{
	Use:   "save KEY VALUE",
	Short: "Create or overwrite the value at KEY",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ttl, _ := cmd.Flags().GetString("ttl")

		e, err := newEngine(cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		outcome, err := e.Save(activeWorkspace(cmd), args[0], args[1], ttl)
		if err != nil {
			return err
		}
		fmt.Printf("%s: %s\n", args[0], outcome)
		return nil
	},
}

var getCmd = &cobra.Command{
	Use:   "get KEY",
	Short: "Read the value at KEY, optionally traversing a dotted sub-path",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		subpath, _ := cmd.Flags().GetString("subpath")
		raw, _ := cmd.Flags().GetBool("raw")

		e, err := newEngine(cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		res, err := e.GetKey(activeWorkspace(cmd), args[0], subpath, !raw)
		if err != nil {
			return err
		}
		if !res.Found {
			return fmt.Errorf("key not found: %s", args[0])
		}
		if !res.SubpathFound {
			return fmt.Errorf("sub-path not found: %s", subpath)
		}
		printValue(res.Value)
		return nil
	},
}

var patchCmd = &cobra.Command{
	Use:   "patch KEY VALUE",
	Short: "Update a sub-path within the mapping/sequence stored at KEY",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		subpath, _ := cmd.Flags().GetString("subpath")

		e, err := newEngine(cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		if err := e.Patch(activeWorkspace(cmd), args[0], subpath, args[1]); err != nil {
			return err
		}
		fmt.Printf("%s: patched\n", args[0])
		return nil
	},
}

var pushCmd = &cobra.Command{
	Use:   "push KEY VALUE",
	Short: "Append VALUE to the list stored at KEY, creating it if absent",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		unique, _ := cmd.Flags().GetBool("unique")

		e, err := newEngine(cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		changed, err := e.Push(activeWorkspace(cmd), args[0], args[1], unique)
		if err != nil {
			return err
		}
		if changed {
			fmt.Printf("%s: appended\n", args[0])
		} else {
			fmt.Printf("%s: already present, unchanged\n", args[0])
		}
		return nil
	},
}

var removeCmd = &cobra.Command{
	Use:   "remove KEY VALUE",
	Short: "Delete every element equal to VALUE from the list stored at KEY",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEngine(cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		if err := e.Remove(activeWorkspace(cmd), args[0], args[1]); err != nil {
			return err
		}
		fmt.Printf("%s: removed\n", args[0])
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete KEY",
	Short: "Move KEY's entry to the archive",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEngine(cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		if err := e.Delete(activeWorkspace(cmd), args[0]); err != nil {
			return err
		}
		fmt.Printf("%s: deleted\n", args[0])
		return nil
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore KEY",
	Short: "Revive KEY from its archive tombstone or from history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		at, _ := cmd.Flags().GetString("at")

		e, err := newEngine(cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		var when *time.Time
		if at != "" {
			parsed, err := time.Parse(time.RFC3339, at)
			if err != nil {
				return fmt.Errorf("--at must be RFC3339: %w", err)
			}
			when = &parsed
		}

		if err := e.Restore(activeWorkspace(cmd), args[0], when); err != nil {
			return err
		}
		fmt.Printf("%s: restored\n", args[0])
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List live keys, optionally filtered by a regex pattern",
	RunE: func(cmd *cobra.Command, args []string) error {
		pattern, _ := cmd.Flags().GetString("pattern")

		e, err := newEngine(cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		keys, err := e.ListKeys(activeWorkspace(cmd), pattern)
		if err != nil {
			return err
		}
		for _, k := range keys {
			fmt.Println(k)
		}
		return nil
	},
}

func init() {
	saveCmd.Flags().String("ttl", "", "Expiry, e.g. 30s, 5m, 2h, 1d, or bare seconds")

	getCmd.Flags().String("subpath", "", "Dotted sub-path into a map/list value")
	getCmd.Flags().Bool("raw", false, "Return the stored text verbatim instead of a deserialized value")

	patchCmd.Flags().String("subpath", "", "Dotted sub-path to update (required for map/list targets)")

	pushCmd.Flags().Bool("unique", false, "Skip the append if VALUE is already present")

	restoreCmd.Flags().String("at", "", "Restore to the state as of this RFC3339 timestamp instead of the most recent one")

	listCmd.Flags().String("pattern", "", "Regular expression; empty lists every key")
}

func printValue(v any) {
	switch val := v.(type) {
	case string:
		fmt.Println(val)
	default:
		raw, err := json.MarshalIndent(val, "", "  ")
		if err != nil {
			fmt.Printf("%v\n", val)
			return
		}
		fmt.Println(string(raw))
	}
}
