package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ppiankov/claimcheck/internal/cache"
	"github.com/ppiankov/claimcheck/internal/ingest"
	"github.com/ppiankov/claimcheck/internal/model"
	"github.com/ppiankov/claimcheck/internal/pipeline"
	"github.com/ppiankov/claimcheck/internal/sources"
	"github.com/ppiankov/claimcheck/internal/store"
)

var (
	fetchLimit   int
	fetchSources []string
	fetchIngest  bool
	fetchExport  string
	fetchRecords string
	fetchLabel   string
)

// fetchCmd represents the fetch command
var fetchCmd = &cobra.Command{
	Use:   "fetch <query>",
	Short: "Query the scholarly sources",
	Long: `Fetch queries every enabled source (Crossref, OpenAlex, Semantic Scholar,
arXiv) in parallel, saves the raw responses and appends to the ingestion log.

With --ingest the parsed documents are chunked, embedded and written to the
evidence store. With --export they are chunked and embedded into a chunk
interchange file (one JSON object per line) instead.

Example:
  claimcheck fetch "garlic blood pressure"
  claimcheck fetch "garlic blood pressure" --sources crossref,arxiv --limit 25 --ingest
  claimcheck fetch "vitamin c common cold" --export chunks.ndjson`,
	Args: cobra.MinimumNArgs(1),
	RunE: runFetch,
}

func init() {
	rootCmd.AddCommand(fetchCmd)

	fetchCmd.Flags().IntVar(&fetchLimit, "limit", 10, "records per source")
	fetchCmd.Flags().StringSliceVar(&fetchSources, "sources", nil, "sources to query (default from config)")
	fetchCmd.Flags().BoolVar(&fetchIngest, "ingest", false, "ingest the fetched documents into the evidence store")
	fetchCmd.Flags().StringVar(&fetchExport, "export", "", "write embedded chunks to this NDJSON file")
	fetchCmd.Flags().StringVar(&fetchRecords, "json", "", "write the parsed records to this JSON file (- for stdout)")
	fetchCmd.Flags().StringVar(&fetchLabel, "label", "", "source label stored with ingested chunks (default: the source name)")
}

func runFetch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	query := strings.Join(args, " ")
	if len(fetchSources) > 0 {
		appConfig.Sources.Enabled = fetchSources
	}

	var (
		registry *sources.Registry
		ingestor *ingest.Ingestor
		st       store.Store
	)
	if fetchIngest || fetchExport != "" {
		comps, err := pipeline.Build(ctx, appConfig, appLogger)
		if err != nil {
			return err
		}
		defer func() { _ = comps.Close() }()
		registry, ingestor, st = comps.Sources, comps.Ingestor, comps.Store
	} else {
		c := cache.New(appConfig.Cache, appLogger)
		defer func() { _ = c.Close() }()
		var err error
		if registry, err = sources.NewRegistry(appConfig, c, appLogger); err != nil {
			return err
		}
	}

	outcomes := registry.FetchAll(ctx, query, fetchLimit)
	fmt.Fprintf(os.Stderr, "\n  Query: %s\n\n", query)
	for _, o := range outcomes {
		switch {
		case o.Raw == nil:
			fmt.Fprintf(os.Stderr, "  ✗ %-18s no results\n", o.Source)
		case o.Raw.Cached:
			fmt.Fprintf(os.Stderr, "  ✓ %-18s %d records (cached)\n", o.Source, len(o.Raw.Records))
		default:
			fmt.Fprintf(os.Stderr, "  ✓ %-18s %d records  %s\n", o.Source, len(o.Raw.Records), o.Raw.File)
		}
		if verbose && o.Raw != nil {
			for _, r := range o.Raw.Records {
				fmt.Fprintf(os.Stderr, "      - %s\n", title(r))
			}
		}
	}
	records := sources.Records(outcomes)

	if fetchRecords != "" {
		if err := writeJSON(fetchRecords, records); err != nil {
			return fmt.Errorf("write records: %w", err)
		}
	}

	if fetchExport != "" {
		if err := exportChunks(cmd, ingestor, records); err != nil {
			return err
		}
	}

	if fetchIngest {
		report, err := ingestor.EmbedAndPersist(ctx, records, fetchLabel)
		printReport(os.Stderr, fmt.Sprintf("Ingested %d records (store dimension %d)", len(records), st.Dimension()), report)
		if err != nil {
			return err
		}
	}
	return nil
}

func exportChunks(cmd *cobra.Command, in *ingest.Ingestor, records []model.RawDocumentRecord) (err error) {
	chunks, report, err := in.Embed(cmd.Context(), records, fetchLabel)
	if err != nil {
		return err
	}
	f, err := os.Create(fetchExport)
	if err != nil {
		return fmt.Errorf("create %s: %w", fetchExport, err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", fetchExport, closeErr)
		}
	}()
	if err := store.WriteChunks(f, chunks); err != nil {
		return fmt.Errorf("write chunks: %w", err)
	}
	fmt.Fprintf(os.Stderr, "\n  ✓ Wrote %d chunks to %s (%d records skipped)\n", len(chunks), fetchExport, report.Skipped)
	return nil
}

func title(r model.RawDocumentRecord) string {
	t := r.Title
	if t == "" {
		t = r.Abstract
	}
	if len([]rune(t)) > 90 {
		t = string([]rune(t)[:90]) + "…"
	}
	if r.Year > 0 {
		return fmt.Sprintf("%s (%d)", t, r.Year)
	}
	return t
}
