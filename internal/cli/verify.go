package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ppiankov/claimcheck/internal/pipeline"
)

var (
	verifyK            int
	verifyMinRelevance float64
	forceFetch         bool
	outJSON            string
	quiet              bool
	noDynamicFetch     bool
)

// verifyCmd represents the verify command
var verifyCmd = &cobra.Command{
	Use:   "verify <claim>",
	Short: "Verify a single claim",
	Long: `Verify retrieves evidence for a claim and adjudicates it:
- Expand the claim into search terms and bilingual query variants
- Retrieve and score the nearest evidence chunks
- Fetch fresh documents from scholarly sources when evidence is weak
- Ask the language model for a verdict grounded in the evidence
- Blend model confidence with retrieval quality

The verdict is written as JSON to stdout (or --json) and summarized on stderr.

Example:
  claimcheck verify "garlic lowers blood pressure"
  claimcheck verify "vitamin C cures the common cold" --k 8 --json verdict.json
  claimcheck verify "bawang putih menurunkan tekanan darah" --force-fetch`,
	Args: cobra.MinimumNArgs(1),
	RunE: runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)

	verifyCmd.Flags().IntVar(&verifyK, "k", 0, "neighbors per query variant (default from config)")
	verifyCmd.Flags().Float64Var(&verifyMinRelevance, "min-relevance", 0, "drop candidates below this relevance (default from config)")
	verifyCmd.Flags().BoolVar(&forceFetch, "force-fetch", false, "fetch fresh documents even when stored evidence is strong")
	verifyCmd.Flags().BoolVar(&noDynamicFetch, "no-fetch", false, "never fetch fresh documents")
	verifyCmd.Flags().StringVar(&outJSON, "json", "-", "output JSON path (- for stdout)")
	verifyCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "do not print the summary")
}

func runVerify(cmd *cobra.Command, args []string) error {
	claim := strings.Join(args, " ")
	if noDynamicFetch {
		appConfig.DynamicFetch.Enabled = false
	}

	comps, err := pipeline.Build(cmd.Context(), appConfig, appLogger)
	if err != nil {
		return err
	}
	defer func() { _ = comps.Close() }()

	verdict := comps.Verifier.Verify(cmd.Context(), claim, pipeline.Options{
		K:            verifyK,
		MinRelevance: verifyMinRelevance,
		ForceFetch:   forceFetch,
	})

	if err := writeJSON(outJSON, verdict); err != nil {
		return fmt.Errorf("write verdict: %w", err)
	}
	if !quiet {
		printVerdict(os.Stderr, verdict)
	}
	return nil
}
