// Package main provides the synctl operator CLI.
package main

import (
	"os"

	"github.com/evoria/adminsync/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
