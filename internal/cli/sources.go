package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ppiankov/claimcheck/internal/sources"
)

var logTail int

// sourcesCmd represents the sources command
var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "Show configured scholarly sources and the ingestion log",
}

var sourcesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List enabled sources in query order",
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, err := sources.NewRegistry(appConfig, nil, appLogger)
		if err != nil {
			return err
		}
		for i, s := range registry.Sources() {
			fmt.Fprintf(cmd.OutOrStdout(), "%d. %s\n", i+1, s.Name())
		}
		return nil
	},
}

var sourcesLogCmd = &cobra.Command{
	Use:   "log",
	Short: "Show the most recent ingestion log rows",
	RunE: func(cmd *cobra.Command, args []string) error {
		entries, err := sources.ReadLog(appConfig.Sources.LogFile)
		if errors.Is(err, fs.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "No ingestion log at %s\n", appConfig.Sources.LogFile)
			return nil
		}
		if err != nil {
			return err
		}
		if logTail > 0 && len(entries) > logTail {
			entries = entries[len(entries)-logTail:]
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "TIME\tSOURCE\tSTATUS\tQUERY\tFILE\tNOTES")
		for _, e := range entries {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
				e.Timestamp.Local().Format("2006-01-02 15:04:05"), e.Source, e.Status, e.Query, e.File, e.Notes)
		}
		return tw.Flush()
	},
}

func init() {
	rootCmd.AddCommand(sourcesCmd)
	sourcesCmd.AddCommand(sourcesListCmd)
	sourcesCmd.AddCommand(sourcesLogCmd)

	sourcesLogCmd.Flags().IntVar(&logTail, "tail", 20, "rows to show (0 for all)")
}
