package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kvstash/kvstash/pkg/codec"
	"github.com/kvstash/kvstash/pkg/collection"
	"github.com/kvstash/kvstash/pkg/crypto"
)

// collectionCommands builds the push/pop/peek/count/clear subtree shared by
// queue, stack, and priority_queue — the only thing that differs between
// the three is which collection.Mode gets wired in and whether --priority
// is accepted.
func collectionCommands(use, short string, mode collection.Mode) *cobra.Command {
	group := &cobra.Command{Use: use, Short: short}

	push := &cobra.Command{
		Use:   "push VALUE",
		Short: "Push VALUE onto the collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEngine(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			var priority *int64
			if mode == collection.ModePriorityQueue {
				p, _ := cmd.Flags().GetInt64("priority")
				priority = &p
			}

			item, err := e.CollectionPush(activeWorkspace(cmd), mode, args[0], priority)
			if err != nil {
				return err
			}
			fmt.Printf("pushed item %d\n", item.ItemID)
			return nil
		},
	}
	if mode == collection.ModePriorityQueue {
		push.Flags().Int64("priority", 0, "Priority; higher pops first (required)")
		push.MarkFlagRequired("priority")
	}

	pop := &cobra.Command{
		Use:   "pop",
		Short: "Remove and print the head item",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEngine(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			item, ok, err := e.CollectionPop(activeWorkspace(cmd), mode)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("collection is empty")
			}
			printCollectionItem(item)
			return nil
		},
	}

	peek := &cobra.Command{
		Use:   "peek",
		Short: "Print the head item without removing it",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEngine(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			item, ok, err := e.CollectionPeek(activeWorkspace(cmd), mode)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("collection is empty")
			}
			printCollectionItem(item)
			return nil
		},
	}

	count := &cobra.Command{
		Use:   "count",
		Short: "Print the number of items currently held",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEngine(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			n, err := e.CollectionCount(activeWorkspace(cmd))
			if err != nil {
				return err
			}
			fmt.Println(n)
			return nil
		},
	}

	clear := &cobra.Command{
		Use:   "clear",
		Short: "Remove every item from the collection",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEngine(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			n, err := e.CollectionClear(activeWorkspace(cmd))
			if err != nil {
				return err
			}
			fmt.Printf("cleared %d items\n", n)
			return nil
		},
	}

	group.AddCommand(push, pop, peek, count, clear)
	return group
}

// printCollectionItem prints an item's value. Engine.CollectionPush/Pop/Peek
// return the Stored envelope as committed to bbolt, not a decrypted view —
// an encrypted item prints crypto.Placeholder rather than ciphertext.
func printCollectionItem(item collection.Item) {
	if item.Value.Encrypted {
		fmt.Println(crypto.Placeholder)
		return
	}
	decoded, err := codec.Decode(item.Value.Encoded())
	if err != nil {
		fmt.Println(string(item.Value.Raw))
		return
	}
	printValue(decoded)
}

var (
	queueCmd         = collectionCommands("queue", "FIFO queue operations", collection.ModeQueue)
	stackCmd         = collectionCommands("stack", "LIFO stack operations", collection.ModeStack)
	priorityQueueCmd = collectionCommands("pq", "Priority queue operations", collection.ModePriorityQueue)
)
