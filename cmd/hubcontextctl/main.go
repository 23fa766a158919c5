// Command hubcontextctl runs retrieval operations against a configured backend.
package main

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/kailas-cloud/hubcontext/internal/app"
	"github.com/kailas-cloud/hubcontext/internal/config"
	logpkg "github.com/kailas-cloud/hubcontext/internal/logger"
	"github.com/kailas-cloud/hubcontext/internal/metrics"
)

func main() {
	if err := newRootCmd(openApp).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error: "+err.Error())
		os.Exit(1)
	}
}

// openApp loads config for env and wires the same services the server runs.
func openApp(ctx context.Context, env string, verbose bool) (*session, error) {
	cfg, err := config.Load(env)
	if err != nil {
		return nil, err
	}

	level := "warn"
	if verbose {
		level = "debug"
	}
	logger, err := logpkg.NewLogger(env, logpkg.Options{Level: level})
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterRetrievalMetrics()

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}

	s := &session{
		retrieval: a.Retrieval,
		indexer:   a.Indexer,
		limits:    a.Limits,
		close: func() {
			a.Close()
			_ = logger.Sync()
		},
	}
	logger.Debug("Session opened", zap.String("env", env), zap.String("driver", cfg.Database.Driver))
	return s, nil
}
