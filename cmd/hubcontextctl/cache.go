package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/hubcontext/internal/domain/hub"
)

func newCacheCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the retrieval result cache",
	}

	var hubArea string
	evict := &cobra.Command{
		Use:   "evict TEXT",
		Short: "Drop the cached result set for a query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			area, err := hub.Parse(hubArea)
			if err != nil {
				return err
			}
			text := strings.TrimSpace(strings.Join(args, " "))
			if text == "" {
				return fmt.Errorf("query text is required")
			}
			return opts.withSession(cmd, func(s *session) error {
				if err := s.retrieval.Evict(cmd.Context(), text, area); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "evicted %q (hub: %s)\n", text, area.KeyPart())
				return nil
			})
		},
	}
	evict.Flags().StringVar(&hubArea, "hub", "", "hub area the result set was cached under")

	cmd.AddCommand(evict)
	return cmd
}
