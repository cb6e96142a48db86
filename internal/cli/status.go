package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewStatusCommand creates the status command: queue depth and
// dead-letter count at a glance.
func NewStatusCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show queue and dead-letter counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			database, qs, dls := openStores(opts)
			defer database.Close()

			pending, err := qs.Count()
			if err != nil {
				return err
			}
			dead, err := dls.Count()
			if err != nil {
				return err
			}

			if opts.Format == "json" {
				return json.NewEncoder(os.Stdout).Encode(map[string]int{
					"pending":      pending,
					"dead_letters": dead,
				})
			}
			fmt.Printf("pending:      %d\n", pending)
			fmt.Printf("dead letters: %d\n", dead)
			return nil
		},
	}
}
