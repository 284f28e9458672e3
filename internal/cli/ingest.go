package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/claimcheck/internal/ingest"
	"github.com/ppiankov/claimcheck/internal/pipeline"
	"github.com/ppiankov/claimcheck/internal/store"
)

var ingestLabel string

// ingestCmd represents the ingest command
var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Load evidence into the store",
	Long: `Load evidence chunks into the evidence store.

Chunks whose embedding width differs from the store dimension are skipped
and reported; the rest of the batch is still written. Re-ingesting the same
(document, chunk) pair is a no-op.`,
}

var ingestChunksCmd = &cobra.Command{
	Use:   "chunks <file.ndjson>",
	Short: "Ingest pre-embedded chunks from an interchange file",
	Example: `  claimcheck ingest chunks chunks.ndjson
  claimcheck fetch "garlic blood pressure" --export - | claimcheck ingest chunks -`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := store.Open(ctx, appConfig.Store, appLogger)
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		f := os.Stdin
		if args[0] != "-" {
			if f, err = os.Open(args[0]); err != nil {
				return err
			}
			defer func() { _ = f.Close() }()
		}
		chunks, err := store.ReadChunks(f)
		if err != nil {
			return err
		}

		if width, err := store.DimensionOf(chunks); err == nil && st.Dimension() > 0 && width != st.Dimension() {
			appLogger.Warn("file embeddings do not match the store", "file_dimension", width, "store_dimension", st.Dimension())
		}

		// chunks already carry embeddings, so no embedder is needed
		in := ingest.NewIngestor(nil, st, appConfig.Ingest, appConfig.Embedding, appLogger)
		report, err := in.IngestChunks(ctx, chunks)
		printReport(os.Stderr, fmt.Sprintf("Ingested %d chunks from %s", len(chunks), args[0]), report)
		return err
	},
}

var ingestRawCmd = &cobra.Command{
	Use:   "raw <source> <file>",
	Short: "Parse, embed and ingest a saved source response",
	Long: `Parse a raw response saved by 'claimcheck fetch' (crossref, openalex and
semantic_scholar are JSON, arxiv is Atom XML), then chunk, embed and ingest it.`,
	Example: `  claimcheck ingest raw crossref .claimcheck/raw/crossref/garlic-20261016T101500.json`,
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, path := args[0], args[1]
		raw, err := os.ReadFile(path)
		if err != nil {
			return err
		}

		cfg := *appConfig
		cfg.Sources.Enabled = []string{name}
		comps, err := pipeline.Build(cmd.Context(), &cfg, appLogger)
		if err != nil {
			return err
		}
		defer func() { _ = comps.Close() }()

		src, ok := comps.Sources.Get(name)
		if !ok {
			return fmt.Errorf("unknown source %q", name)
		}
		report, err := comps.Ingestor.IngestRaw(cmd.Context(), src, raw, ingestLabel)
		printReport(os.Stderr, fmt.Sprintf("Ingested %s response %s", name, path), report)
		return err
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)
	ingestCmd.AddCommand(ingestChunksCmd)
	ingestCmd.AddCommand(ingestRawCmd)

	ingestRawCmd.Flags().StringVar(&ingestLabel, "label", "", "source label stored with the chunks (default: the source name)")
}
