// Command unify merges N per-domain event logs into one canonical log,
// or bulk-copies an already-unified store in --copy mode (spec.md §4.8).
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/baechuer/eventstore/internal/logger"
	"github.com/baechuer/eventstore/internal/unify"
	"github.com/spf13/cobra"
)

func newUnifyCommand() *cobra.Command {
	var configPath string
	var opts unify.Options

	cmd := &cobra.Command{
		Use:   "unify",
		Short: "Merge per-domain event logs into one canonical log",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := unify.LoadConfig(configPath)
			if err != nil {
				return err
			}
			conn, err := cfg.Get(opts.Connection)
			if err != nil {
				return err
			}

			log := logger.New()
			return unify.Run(cmd.Context(), conn, opts, log)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "f", "unify.yaml", "path to the connections config file")
	cmd.Flags().StringVarP(&opts.Connection, "connection", "c", "", "alias of the connection block to run (required)")
	cmd.Flags().BoolVar(&opts.TruncateDest, "truncate-dest", false, "truncate the destination events table before inserting")
	cmd.Flags().BoolVar(&opts.Copy, "copy", false, "bulk-copy an already-unified event-store DB instead of merging per domain")
	_ = cmd.MarkFlagRequired("connection")

	return cmd
}

func main() {
	root := newUnifyCommand()
	root.SilenceUsage = true

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "unify:", err)
		os.Exit(1)
	}
}
