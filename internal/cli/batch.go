package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/claimcheck/internal/extract"
	"github.com/ppiankov/claimcheck/internal/model"
	"github.com/ppiankov/claimcheck/internal/pipeline"
	"github.com/ppiankov/claimcheck/internal/worker"
)

var (
	concurrency  int
	batchOutput  string
	batchTimeout time.Duration
	batchHTML    bool
)

// batchCmd represents the batch command
var batchCmd = &cobra.Command{
	Use:   "batch <file>",
	Short: "Verify many claims from a file in parallel",
	Long: `Batch verifies claims concurrently:
- Read claims from the input file (one per line, # comments, - for stdin)
  or, with --html, harvest claim-like sentences from an article page
- Verify claims in parallel with a bounded worker pool
- Write one JSON verdict per line, in input order

Example:
  claimcheck batch claims.txt
  claimcheck batch claims.txt --concurrency 8 --output verdicts.ndjson
  cat claims.txt | claimcheck batch - --timeout 1h
  curl -s https://example.com/article | claimcheck batch - --html`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().IntVar(&concurrency, "concurrency", 0, "number of concurrent verifications (default from config)")
	batchCmd.Flags().StringVarP(&batchOutput, "output", "o", "-", "output NDJSON path (- for stdout)")
	batchCmd.Flags().DurationVar(&batchTimeout, "timeout", 30*time.Minute, "total timeout for the batch")
	batchCmd.Flags().BoolVar(&batchHTML, "html", false, "treat the input as an HTML article and extract candidate claims")
}

func readBatchInput(file string) ([]string, error) {
	if !batchHTML {
		if file == "-" {
			return worker.ReadClaims(os.Stdin)
		}
		return worker.ReadClaimsFromFile(file)
	}

	var r io.Reader = os.Stdin
	if file != "-" {
		f, err := os.Open(file)
		if err != nil {
			return nil, err
		}
		defer func() { _ = f.Close() }()
		r = f
	}
	candidates, err := extract.NewClaimExtractor().Extract(r)
	if err != nil {
		return nil, err
	}
	for _, c := range candidates {
		appLogger.Debug("Extracted claim", "sentence", c.Sentence, "cue", c.Cue, "text", c.Text)
	}
	return extract.Texts(candidates), nil
}

func runBatch(cmd *cobra.Command, args []string) (err error) {
	file := args[0]
	if concurrency <= 0 {
		concurrency = appConfig.Concurrency.Workers
	}

	claims, err := readBatchInput(file)
	if err != nil {
		return fmt.Errorf("read claims: %w", err)
	}
	if len(claims) == 0 {
		return fmt.Errorf("no claims in %s", file)
	}

	fmt.Fprintf(os.Stderr, "\n%s\n  claimcheck batch\n%s\n\n", rule, rule)
	fmt.Fprintf(os.Stderr, "  Input:     %s (%d claims)\n", file, len(claims))
	fmt.Fprintf(os.Stderr, "  Workers:   %d\n", concurrency)
	fmt.Fprintf(os.Stderr, "  Timeout:   %v\n\n", batchTimeout)

	comps, err := pipeline.Build(cmd.Context(), appConfig, appLogger)
	if err != nil {
		return err
	}
	defer func() { _ = comps.Close() }()

	var out io.Writer = os.Stdout
	if batchOutput != "-" {
		f, err := os.Create(batchOutput)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer func() {
			if closeErr := f.Close(); closeErr != nil && err == nil {
				err = fmt.Errorf("close output: %w", closeErr)
			}
		}()
		out = f
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), batchTimeout)
	defer cancel()

	start := time.Now()
	results := worker.NewBatchProcessor(comps.Verifier, concurrency).ProcessClaims(ctx, claims)

	enc := json.NewEncoder(out)
	counts := make(map[model.Label]int)
	failures := 0
	for _, r := range results {
		if r.Error != nil {
			failures++
			fmt.Fprintf(os.Stderr, "✗ %s: %v\n", r.Claim, r.Error)
			continue
		}
		counts[r.Verdict.Label]++
		if err := enc.Encode(r.Verdict); err != nil {
			return fmt.Errorf("write verdict: %w", err)
		}
	}

	fmt.Fprintf(os.Stderr, "\n%s\n  Batch complete in %s\n%s\n\n", rule, time.Since(start).Round(time.Second), rule)
	for _, l := range []model.Label{model.LabelValid, model.LabelPartiallyValid, model.LabelHoax, model.LabelInconclusive} {
		fmt.Fprintf(os.Stderr, "  %-16s %d\n", labelColor(l)("%s", l), counts[l])
	}
	if failures > 0 {
		fmt.Fprintf(os.Stderr, "  %-16s %d\n", "failed", failures)
	}
	fmt.Fprintln(os.Stderr)
	return nil
}
