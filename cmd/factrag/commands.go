package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"factrag/internal/domain"
	"factrag/internal/loader"
	"factrag/internal/metadata"
	"factrag/internal/service"
	"factrag/internal/tui"
	"factrag/internal/vectorstore"
	"factrag/internal/vectorstore/memory"
	"factrag/internal/watcher"
)

func newIngestCmd(a *app) *cobra.Command {
	var (
		opts    service.IngestOptions
		overlap int
		watch   bool
	)
	cmd := &cobra.Command{
		Use:   "ingest [paths...]",
		Short: "Load, chunk and store documents (default: the data directory)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, closeStore, err := a.openService(ctx)
			if err != nil {
				return err
			}
			defer closeStore()

			if cmd.Flags().Changed("overlap") {
				opts.Overlap = &overlap
			}
			paths := a.dataPaths(args)
			report, err := svc.Ingest(ctx, paths, opts)
			if err != nil {
				return err
			}
			printIngestReport(cmd.OutOrStdout(), report)
			if !watch {
				return nil
			}
			return watchAndReingest(ctx, a, svc, paths, opts)
		},
	}
	cmd.Flags().IntVar(&opts.ChunkSize, "chunk-size", 0, "maximum passage size in characters (default from config)")
	cmd.Flags().IntVar(&overlap, "overlap", 0, "overlap between passages in characters, 0 disables (default from config)")
	cmd.Flags().BoolVar(&opts.Clear, "clear", false, "empty the collection first")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "keep running and re-ingest files when they change")
	return cmd
}

func watchAndReingest(ctx context.Context, a *app, svc *service.RAGService, paths []string, opts service.IngestOptions) error {
	opts.Clear = false
	w, err := watcher.New(paths, watcher.DefaultDelay, func(ctx context.Context, b watcher.Batch) error {
		if len(b.Removed) > 0 {
			if _, err := svc.Forget(ctx, b.Removed); err != nil {
				return err
			}
		}
		if len(b.Changed) > 0 {
			if _, err := svc.Ingest(ctx, b.Changed, opts); err != nil {
				return err
			}
		}
		return nil
	}, a.logger)
	if err != nil {
		return err
	}
	a.logger.Info("watching for changes", "paths", strings.Join(paths, ","))
	if err := w.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func printIngestReport(out io.Writer, r *service.IngestReport) {
	fmt.Fprintf(out, "Ingested %d documents into %d passages (%d stored, %d total) using %s (%s)\n",
		r.Documents, r.Passages, r.Inserted, r.Total, r.Store, r.Backend)
	if r.Digest != "" {
		fmt.Fprintf(out, "\nKey facts:\n%s\n", r.Digest)
	}
}

func newQueryCmd(a *app) *cobra.Command {
	var (
		k          int
		noMetadata bool
		asJSON     bool
	)
	cmd := &cobra.Command{
		Use:   "query <text>",
		Short: "Print the passages that best answer a question",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, closeStore, err := a.openService(ctx)
			if err != nil {
				return err
			}
			defer closeStore()

			prioritize := a.cfg.Retrieval.PrioritizeMetadata && !noMetadata
			results, err := svc.Search(ctx, strings.Join(args, " "), k, prioritize)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, results)
			}
			if len(results) == 0 {
				fmt.Fprintln(out, "No passages found.")
				return nil
			}
			for i, r := range results {
				fmt.Fprintf(out, "[%d] %s#%d  score=%.3f  %s\n%s\n\n",
					i+1, r.Passage.SourceID, r.Passage.Index, r.Score, flags(r.Passage.Metadata), r.Passage.Content)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&k, "top-k", "k", 0, "number of passages (default from config)")
	cmd.Flags().BoolVar(&noMetadata, "no-metadata", false, "rank by similarity only")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print results as JSON")
	return cmd
}

func newSearchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "search",
		Short: "Interactive search over the stored passages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			svc, closeStore, err := a.openService(ctx)
			if err != nil {
				return err
			}
			defer closeStore()

			st, err := svc.Stats(ctx)
			if err != nil {
				return err
			}
			header := fmt.Sprintf("%d passages from %d sources in %q (%s, %s)", st.Total, st.Sources, st.Collection, st.Store, st.Backend)
			m := tui.New(ctx, svc, header, a.cfg.Retrieval.TopK, a.cfg.Retrieval.PrioritizeMetadata, a.cfg.Chunker.Locale)
			_, err = tea.NewProgram(m, tea.WithContext(ctx), tea.WithAltScreen()).Run()
			return err
		},
	}
}

func newStatsCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show collection statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			svc, closeStore, err := a.openService(ctx)
			if err != nil {
				return err
			}
			defer closeStore()

			st, err := svc.Stats(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, st)
			}
			fmt.Fprintf(out, "Collection: %s (test mode: %t)\n", st.Collection, st.TestMode)
			fmt.Fprintf(out, "Store:      %s (%s)\n", st.Store, st.Backend)
			fmt.Fprintf(out, "Passages:   %d\n", st.Total)
			fmt.Fprintf(out, "Sources:    %d\n", st.Sources)
			for _, ext := range sortedKeys(st.Extensions) {
				fmt.Fprintf(out, "  %-8s %d\n", ext, st.Extensions[ext])
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print statistics as JSON")
	return cmd
}

func newClearCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete every passage of the collection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			svc, closeStore, err := a.openService(ctx)
			if err != nil {
				return err
			}
			defer closeStore()

			if err := svc.Clear(ctx); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared collection %s\n", a.cfg.CollectionName())
			return nil
		},
	}
}

func newAnalyzeCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Report the factual content of the stored passages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			svc, closeStore, err := a.openService(ctx)
			if err != nil {
				return err
			}
			defer closeStore()

			report, err := svc.Analyze(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, report)
			}
			printEntityReport(out, report)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	return cmd
}

func printEntityReport(out io.Writer, r metadata.EntityReport) {
	fmt.Fprintf(out, "Passages:         %d from %d sources\n", r.Passages, len(r.Sources))
	fmt.Fprintf(out, "With numbers:     %d\n", r.WithNumbers)
	fmt.Fprintf(out, "With dates:       %d\n", r.WithDates)
	fmt.Fprintf(out, "With currency:    %d\n", r.WithCurrency)
	fmt.Fprintf(out, "With percentages: %d\n", r.WithPercentages)
	fmt.Fprintf(out, "With key: value:  %d\n", r.WithKeyValue)
	fmt.Fprintf(out, "With key facts:   %d\n", r.WithKeyInfo)
	fmt.Fprintf(out, "Average quality:  %.2f\n", r.AverageQuality)
	for _, band := range []string{"high", "medium", "low"} {
		fmt.Fprintf(out, "  %-7s %d\n", band, r.QualityBands[band])
	}
	types := make([]string, 0, len(r.ContentTypes))
	for ct := range r.ContentTypes {
		types = append(types, string(ct))
	}
	sort.Strings(types)
	for _, ct := range types {
		fmt.Fprintf(out, "  %-12s %d\n", ct, r.ContentTypes[domain.ContentType(ct)])
	}
}

func newChunkCmd(a *app) *cobra.Command {
	var size, overlap int
	cmd := &cobra.Command{
		Use:   "chunk <file>",
		Short: "Print the passages a file would be split into, without storing them",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			doc, err := loader.New(a.logger).Load(ctx, args[0])
			if err != nil {
				return err
			}
			svc := service.NewRAGService(service.Deps{
				Store:  &vectorstore.Selection{Storage: memory.NewStorage(), Backend: vectorstore.Primary},
				Logger: a.logger,
			}, a.options())
			if !cmd.Flags().Changed("overlap") {
				overlap = -1
			}
			passages, err := svc.ChunkDocuments(ctx, []domain.Document{doc}, size, overlap)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), passages)
		},
	}
	cmd.Flags().IntVar(&size, "chunk-size", 0, "maximum passage size in characters (default from config)")
	cmd.Flags().IntVar(&overlap, "overlap", 0, "overlap between passages in characters, 0 disables (default from config)")
	return cmd
}

func flags(md domain.PassageMetadata) string {
	var tags []string
	if md.HasCurrency {
		tags = append(tags, "currency")
	}
	if md.HasDates {
		tags = append(tags, "dates")
	}
	if md.HasNumbers {
		tags = append(tags, "numbers")
	}
	if md.HasPercentages {
		tags = append(tags, "percent")
	}
	if md.HasExplicitKeyValue {
		tags = append(tags, "key:value")
	}
	tags = append(tags, fmt.Sprintf("quality=%.2f", md.QualityScore))
	return "[" + strings.Join(tags, " ") + "]"
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
