package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/evoria/adminsync/internal/auth"
	"github.com/evoria/adminsync/internal/queue"
)

// NewQueueCommand creates the queue inspection/management command.
func NewQueueCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage pending queued requests",
	}

	cmd.AddCommand(newQueueListCommand(opts))
	cmd.AddCommand(newQueueRemoveCommand(opts))
	cmd.AddCommand(newQueueClearCommand(opts))
	cmd.AddCommand(newQueueDrainCommand(opts))

	return cmd
}

func newQueueListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List queued requests in replay order",
		RunE: func(cmd *cobra.Command, args []string) error {
			database, qs, _ := openStores(opts)
			defer database.Close()

			items, err := qs.GetAll()
			if err != nil {
				return err
			}

			if opts.Format == "json" {
				return json.NewEncoder(os.Stdout).Encode(items)
			}
			if len(items) == 0 {
				fmt.Println("queue is empty")
				return nil
			}
			for _, item := range items {
				fmt.Printf("%6d  %-6s  %s  queued %s\n",
					item.ID, item.Method, item.URL,
					item.Time().Format(time.RFC3339))
			}
			return nil
		},
	}
}

func newQueueRemoveCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a single queued request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid id %q", args[0])
			}

			database, qs, _ := openStores(opts)
			defer database.Close()

			if err := qs.Remove(id); err != nil {
				return err
			}
			fmt.Printf("removed item %d\n", id)
			return nil
		},
	}
}

func newQueueClearCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Discard every queued request",
		RunE: func(cmd *cobra.Command, args []string) error {
			database, qs, _ := openStores(opts)
			defer database.Close()

			if err := qs.Clear(); err != nil {
				return err
			}
			fmt.Println("queue cleared")
			return nil
		},
	}
}

func newQueueDrainCommand(opts *RootOptions) *cobra.Command {
	var token string

	cmd := &cobra.Command{
		Use:   "drain",
		Short: "Replay queued requests now, without waiting for an online transition",
		RunE: func(cmd *cobra.Command, args []string) error {
			database, qs, dls := openStores(opts)
			defer database.Close()

			creds := auth.NewStaticProvider(token, nil)
			// Manual trigger: no state gate, no event bus.
			processor := queue.NewProcessor(qs, dls, creds, nil, nil,
				200*time.Millisecond, 15*time.Second)

			result, err := processor.Drain(context.Background())
			if result != nil {
				fmt.Printf("replayed %d, dead-lettered %d, remaining %d\n",
					result.Replayed, result.DeadLettered, result.Remaining)
			}
			return err
		},
	}

	cmd.Flags().StringVar(&token, "token", os.Getenv("ADMINSYNC_TOKEN"), "bearer credential for replay")
	return cmd
}
