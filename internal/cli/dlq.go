package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// NewDLQCommand creates the dead-letter inspection command. Entries
// here are terminal: the core never retries them, so resubmission or
// discard is an explicit operator decision.
func NewDLQCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dlq",
		Short: "Inspect and clear permanently failed requests",
	}

	cmd.AddCommand(newDLQListCommand(opts))
	cmd.AddCommand(newDLQClearCommand(opts))

	return cmd
}

func newDLQListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List dead letters with their provenance",
		RunE: func(cmd *cobra.Command, args []string) error {
			database, _, dls := openStores(opts)
			defer database.Close()

			items, err := dls.GetAll()
			if err != nil {
				return err
			}

			if opts.Format == "json" {
				return json.NewEncoder(os.Stdout).Encode(items)
			}
			if len(items) == 0 {
				fmt.Println("no dead letters")
				return nil
			}
			for _, item := range items {
				fmt.Printf("%6d  %-6s  %s  status=%d  queued %s  failed %s\n",
					item.ID, item.Method, item.URL, item.StatusCode,
					item.QueuedTime().Format(time.RFC3339),
					item.FailedTime().Format(time.RFC3339))
			}
			return nil
		},
	}
}

func newDLQClearCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Discard all dead letters",
		RunE: func(cmd *cobra.Command, args []string) error {
			database, _, dls := openStores(opts)
			defer database.Close()

			if err := dls.Clear(); err != nil {
				return err
			}
			fmt.Println("dead letters cleared")
			return nil
		},
	}
}
