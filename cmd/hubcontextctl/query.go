package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/hubcontext/internal/domain/query"
	retrievaluc "github.com/kailas-cloud/hubcontext/internal/usecase/retrieval"
)

type queryFlags struct {
	hub        string
	threshold  float64
	matchCount int
	noCache    bool
	json       bool
}

func newQueryCmd(opts *rootOptions) *cobra.Command {
	var f queryFlags

	cmd := &cobra.Command{
		Use:   "query TEXT",
		Short: "Retrieve ranked context for a query",
		Long: `Run the retrieval pipeline for TEXT and print the ranked chunks.

Examples:
  hubcontextctl query "onboarding checklist" --hub hr
  hubcontextctl query "q3 forecast" --match-count 10 --no-cache --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := query.Params{
				Text:    strings.Join(args, " "),
				HubArea: f.hub,
			}
			if cmd.Flags().Changed("threshold") {
				p.Threshold = &f.threshold
			}
			if cmd.Flags().Changed("match-count") {
				p.MatchCount = &f.matchCount
			}
			useCached := !f.noCache
			p.UseCached = &useCached

			return opts.withSession(cmd, func(s *session) error {
				q, err := query.New(p, s.limits)
				if err != nil {
					return fmt.Errorf("invalid query: %w", err)
				}
				resp, err := s.retrieval.Retrieve(cmd.Context(), q)
				if err != nil {
					return fmt.Errorf("retrieve: %w", err)
				}
				if f.json {
					return printJSON(cmd.OutOrStdout(), resp)
				}
				return printTable(cmd.OutOrStdout(), resp)
			})
		},
	}

	cmd.Flags().StringVar(&f.hub, "hub", "", "hub area to boost (e.g. marketing, finance)")
	cmd.Flags().Float64Var(&f.threshold, "threshold", query.DefaultThreshold, "minimum similarity in [0,1]")
	cmd.Flags().IntVarP(&f.matchCount, "match-count", "n", query.DefaultMatchCount, "number of results")
	cmd.Flags().BoolVar(&f.noCache, "no-cache", false, "bypass the result cache")
	cmd.Flags().BoolVar(&f.json, "json", false, "output as JSON")
	return cmd
}

func printJSON(w io.Writer, resp retrievaluc.Response) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{
		"results": resp.Results,
		"source":  resp.Source,
		"performance": map[string]any{
			"durationMs":     resp.Duration.Milliseconds(),
			"cacheHit":       resp.CacheHit,
			"qualityMetrics": resp.Quality,
		},
	})
}

func printTable(w io.Writer, resp retrievaluc.Response) error {
	fmt.Fprintf(w, "source: %s  duration: %s  results: %d  avg relevance: %.3f\n\n",
		resp.Source, resp.Duration.Round(time.Millisecond), len(resp.Results), resp.Quality.AverageRelevance)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tRELEVANCE\tSIMILARITY\tHUB AREAS\tDOCUMENT\tCITATION")
	for i, it := range resp.Results {
		fmt.Fprintf(tw, "%d\t%.3f\t%.3f\t%s\t%s\t%s\n",
			i+1, it.RelevanceScore, it.Similarity, strings.Join(it.HubAreas, ","),
			it.DocumentTitle, oneLine(it.CitationContext))
	}
	return tw.Flush()
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
