package cli

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/ppiankov/claimcheck/internal/store"
)

var (
	purgeSource string
	purgeAll    bool
	initDim     int
	initFrom    string
)

// storeCmd represents the store command
var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Inspect and administer the evidence store",
}

var storeStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show chunk counts per source label",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := store.Open(cmd.Context(), appConfig.Store, appLogger)
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		stats, err := st.Stats(cmd.Context())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Driver:     %s\n", stats.Driver)
		fmt.Fprintf(out, "Table:      %s\n", stats.Table)
		fmt.Fprintf(out, "Dimension:  %d\n", stats.Dimension)
		fmt.Fprintf(out, "Chunks:     %d\n", stats.Total)

		labels := make([]string, 0, len(stats.BySource))
		for l := range stats.BySource {
			labels = append(labels, l)
		}
		sort.Strings(labels)
		for _, l := range labels {
			fmt.Fprintf(out, "  %-24s %d\n", l, stats.BySource[l])
		}
		return nil
	},
}

var storeInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the evidence table",
	Long: `Create the evidence table with a fixed embedding width. The width comes
from --dimension, from the first embedded record of --from, or from the
store.dimension setting. An existing table keeps its width.`,
	Example: `  claimcheck store init --dimension 1536
  claimcheck store init --from chunks.ndjson`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dim := initDim
		if dim <= 0 && initFrom != "" {
			f, err := os.Open(initFrom)
			if err != nil {
				return err
			}
			dim, err = store.DetectDimension(f)
			_ = f.Close()
			if err != nil {
				return fmt.Errorf("detect dimension of %s: %w", initFrom, err)
			}
		}
		if dim <= 0 {
			dim = appConfig.Store.Dimension
		}
		if dim <= 0 {
			return errors.New("no dimension: pass --dimension or --from")
		}

		cfg := appConfig.Store
		cfg.Dimension = 0
		st, err := store.Open(cmd.Context(), cfg, appLogger)
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		if err := st.EnsureSchema(cmd.Context(), dim); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "✓ Evidence table ready (%s, dimension %d)\n", appConfig.Store.Driver, st.Dimension())
		return nil
	},
}

var storePurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete stored chunks",
	Example: `  claimcheck store purge --source dynamic_fetch
  claimcheck store purge --all`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if purgeSource == "" && !purgeAll {
			return errors.New("pass --source <label> or --all")
		}
		if purgeSource != "" && purgeAll {
			return errors.New("--source and --all are mutually exclusive")
		}

		st, err := store.Open(cmd.Context(), appConfig.Store, appLogger)
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		n, err := st.Purge(cmd.Context(), purgeSource)
		if err != nil {
			return err
		}
		what := "all sources"
		if purgeSource != "" {
			what = purgeSource
		}
		fmt.Fprintf(os.Stderr, "✓ Deleted %d chunks (%s)\n", n, what)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(storeCmd)
	storeCmd.AddCommand(storeStatsCmd)
	storeCmd.AddCommand(storeInitCmd)
	storeCmd.AddCommand(storePurgeCmd)

	storeInitCmd.Flags().IntVar(&initDim, "dimension", 0, "embedding width")
	storeInitCmd.Flags().StringVar(&initFrom, "from", "", "chunk interchange file to take the width from")
	storePurgeCmd.Flags().StringVar(&purgeSource, "source", "", "delete only chunks with this source label")
	storePurgeCmd.Flags().BoolVar(&purgeAll, "all", false, "delete every chunk")
}
