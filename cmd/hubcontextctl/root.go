package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/hubcontext/internal/app"
	"github.com/kailas-cloud/hubcontext/internal/config"
	"github.com/kailas-cloud/hubcontext/internal/domain/hub"
	"github.com/kailas-cloud/hubcontext/internal/domain/query"
	retrievaluc "github.com/kailas-cloud/hubcontext/internal/usecase/retrieval"
	"github.com/kailas-cloud/hubcontext/internal/version"
)

// errNoIndex is returned by index commands on backends without a managed index.
var errNoIndex = errors.New("backend has no managed vector index (postgres schema is applied by migrations)")

type retrievalService interface {
	Retrieve(ctx context.Context, q query.Query) (retrievaluc.Response, error)
	Evict(ctx context.Context, text string, area hub.Area) error
}

// session is the set of services a command runs against.
type session struct {
	retrieval retrievalService
	indexer   app.Indexer
	limits    query.Limits
	close     func()
}

func (s *session) Close() {
	if s.close != nil {
		s.close()
	}
}

type opener func(ctx context.Context, env string, verbose bool) (*session, error)

type rootOptions struct {
	env     string
	verbose bool
	open    opener
}

// withSession opens a session for the duration of one command.
func (o *rootOptions) withSession(cmd *cobra.Command, fn func(*session) error) error {
	s, err := o.open(cmd.Context(), o.env, o.verbose)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s)
}

func newRootCmd(open opener) *cobra.Command {
	opts := &rootOptions{open: open}

	root := &cobra.Command{
		Use:   "hubcontextctl",
		Short: "Query and maintain the hubcontext retrieval pipeline",
		Long: `hubcontextctl runs the context retrieval pipeline from the command line,
using the same configuration file as the server (config/<env>.yaml).

Example usage:
  hubcontextctl query "pricing strategy" --hub marketing
  hubcontextctl cache evict "pricing strategy" --hub marketing
  hubcontextctl index ensure`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&opts.env, "env", config.GetEnv(), "config environment (config/<env>.yaml)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(newQueryCmd(opts), newCacheCmd(opts), newIndexCmd(opts))
	return root
}
