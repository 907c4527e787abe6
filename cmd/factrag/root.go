package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"factrag/internal/config"
	"factrag/internal/embedding"
	"factrag/internal/loader"
	"factrag/internal/logging"
	"factrag/internal/retrieval"
	"factrag/internal/service"
	"factrag/internal/summarizer"
	"factrag/internal/vectorstore"
)

// app holds what every subcommand needs once flags and config are resolved.
type app struct {
	lookupEnv func(string) (string, bool)

	cfgFile  string
	verbose  bool
	testMode bool

	cfg    *config.AppConfig
	logger *slog.Logger
}

func newRootCmd(lookupEnv func(string) (string, bool)) *cobra.Command {
	a := &app{lookupEnv: lookupEnv}
	root := &cobra.Command{
		Use:   "factrag",
		Short: "Entity-aware document retrieval for factual questions",
		Long: `factrag chunks documents without splitting numbers, amounts or dates,
tags each passage with the facts it holds, and ranks passages so that
fact-bearing ones come first.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}
	root.PersistentFlags().StringVarP(&a.cfgFile, "config", "c", "", "config file (default ./config.yaml or ~/.config/factrag/config.yaml)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")
	root.PersistentFlags().BoolVar(&a.testMode, "test-mode", false, "use the test collection and test data directory")

	root.AddCommand(
		newIngestCmd(a),
		newQueryCmd(a),
		newSearchCmd(a),
		newStatsCmd(a),
		newClearCmd(a),
		newAnalyzeCmd(a),
		newChunkCmd(a),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	var (
		cfg *config.AppConfig
		err error
	)
	if a.cfgFile == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(a.cfgFile)
	}
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ApplyEnv(a.lookupEnv); err != nil {
		return err
	}
	if a.testMode {
		cfg.TestMode = true
	}
	if a.verbose {
		cfg.Log.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	logger, err := logging.New(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logger
	return nil
}

// options maps the resolved config onto service options.
func (a *app) options() service.Options {
	c := a.cfg
	return service.Options{
		ChunkSize:           c.Chunker.Size,
		Overlap:             c.Chunker.Overlap,
		Locale:              c.Chunker.Locale,
		Workers:             c.Chunker.Workers,
		BatchSize:           c.Ingest.BatchSize,
		TopK:                c.Retrieval.TopK,
		PrioritizeMetadata:  c.Retrieval.PrioritizeMetadata,
		SummaryMaxSentences: c.Summarizer.MaxSentences,
		Collection:          c.CollectionName(),
		TestMode:            c.TestMode,
	}
}

// openService assembles the service over the configured store. The returned
// func closes the store.
func (a *app) openService(ctx context.Context) (*service.RAGService, func(), error) {
	c := a.cfg
	emb, err := embedding.New(c.Embedder)
	if err != nil {
		return nil, nil, err
	}
	store, err := vectorstore.Open(ctx, c.VectorStore, c.CollectionName(), a.logger)
	if err != nil {
		return nil, nil, err
	}
	svc := service.NewRAGService(service.Deps{
		Embedder:   emb,
		Store:      store,
		Summarizer: summarizer.NewFrequencySummarizer(c.Chunker.Locale),
		Retriever: retrieval.New(
			retrieval.WithMetric(retrieval.Metric(c.Retrieval.Distance)),
			retrieval.WithDedup(retrieval.DedupPolicy(c.Retrieval.Dedup), c.Retrieval.DedupPrefix),
		),
		Loader: loader.New(a.logger),
		Logger: a.logger,
	}, a.options())
	closeFn := func() {
		if err := store.Close(); err != nil {
			a.logger.Warn("close store", "error", err)
		}
	}
	return svc, closeFn, nil
}

// dataPaths falls back to the configured data directory when no path is given.
func (a *app) dataPaths(args []string) []string {
	if len(args) > 0 {
		return args
	}
	return []string{a.cfg.DataDir()}
}
