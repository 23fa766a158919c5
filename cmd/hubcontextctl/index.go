package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newIndexCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Manage the chunk vector index",
	}

	ensure := &cobra.Command{
		Use:   "ensure",
		Short: "Create the chunk vector index if it does not exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withSession(cmd, func(s *session) error {
				if s.indexer == nil {
					return errNoIndex
				}
				created, err := s.indexer.EnsureIndex(cmd.Context())
				if err != nil {
					return fmt.Errorf("ensure index: %w", err)
				}
				if created {
					fmt.Fprintln(cmd.OutOrStdout(), "index created")
				} else {
					fmt.Fprintln(cmd.OutOrStdout(), "index already exists")
				}
				return nil
			})
		},
	}

	cmd.AddCommand(ensure)
	return cmd
}
