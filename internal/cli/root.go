// Package cli implements the synctl operator commands. The dead-letter
// store is terminal by design, so inspecting and clearing it — and
// manually triggering a drain — are human actions that live here rather
// than in the core.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/evoria/adminsync/internal/db"
	"github.com/evoria/adminsync/internal/store"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	DataDir string
	Format  string // "json" | "text"
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the synctl CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "synctl",
		Short: "Inspect and manage the adminsync durable queue",
		Long:  "Operator tooling for the offline request queue and its dead-letter store.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.DataDir, "data-dir", "./data", "queue database directory")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewQueueCommand(opts))
	cmd.AddCommand(NewDLQCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))

	return cmd
}

// openStores opens the shared database for a one-shot command.
func openStores(opts *RootOptions) (*db.DB, *store.QueueStore, *store.DeadLetterStore) {
	database := db.New(opts.DataDir)
	return database, store.NewQueueStore(database), store.NewDeadLetterStore(database)
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
