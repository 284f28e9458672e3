package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/ppiankov/claimcheck/internal/model"
)

const rule = "═══════════════════════════════════════════════════════════"

// writeJSON writes v as indented JSON to path, or to stdout for "" and "-"
func writeJSON(path string, v any) (err error) {
	var w io.Writer = os.Stdout
	if path != "" && path != "-" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create %s: %w", path, err)
		}
		defer func() {
			if closeErr := f.Close(); closeErr != nil && err == nil {
				err = fmt.Errorf("close %s: %w", path, closeErr)
			}
		}()
		w = f
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func labelColor(l model.Label) func(format string, a ...any) string {
	switch l {
	case model.LabelValid:
		return color.GreenString
	case model.LabelHoax:
		return color.RedString
	case model.LabelPartiallyValid:
		return color.YellowString
	}
	return color.WhiteString
}

// printVerdict writes a human summary of v
func printVerdict(w io.Writer, v *model.Verdict) {
	conf := "n/a"
	if v.Confidence != nil {
		conf = fmt.Sprintf("%.2f", *v.Confidence)
	}
	label := strings.ToUpper(string(v.Label))

	fmt.Fprintln(w)
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "  %s  (confidence %s)\n", labelColor(v.Label)("%s", label), conf)
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "\n  Claim:    %s\n", v.Claim)
	if v.Summary != "" {
		fmt.Fprintf(w, "  Summary:  %s\n", v.Summary)
	}

	m := v.Metadata
	fmt.Fprintf(w, "\n  Evidence: %d items, mean relevance %.2f, mean similarity %.2f\n", m.NeighborCount, m.MeanRelevance, m.MeanSimilarity)
	if m.Decision != "" {
		fmt.Fprintf(w, "  Decision: %s (model %s %.2f, combined %.2f)\n", m.Decision, m.LLMLabel, m.LLMConfidence, m.CombinedConfidence)
	}
	if m.DynamicFetch {
		direct := ""
		if m.DirectEvidence {
			direct = ", used directly"
		}
		fmt.Fprintf(w, "  Fetched:  %d fresh documents%s\n", m.FetchedDocuments, direct)
	}
	for _, warn := range m.Warnings {
		fmt.Fprintf(w, "  %s %s\n", color.YellowString("⚠"), warn)
	}

	if len(v.Evidence) > 0 {
		fmt.Fprintln(w)
	}
	for i, e := range v.Evidence {
		ref := e.URL
		if ref == "" {
			ref = e.ID
		}
		fmt.Fprintf(w, "  [%d] %.2f  %s\n", i+1, e.RelevanceScore, ref)
	}
	fmt.Fprintf(w, "\n  Elapsed: %s\n\n", m.Elapsed.Round(1e6))
}

// printReport writes an ingestion report summary
func printReport(w io.Writer, title string, r model.BatchReport) {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %s\n", title)
	fmt.Fprintf(w, "    %s %d\n", color.GreenString("inserted:"), r.Succeeded)
	fmt.Fprintf(w, "    %s %d\n", color.YellowString("skipped: "), r.Skipped)
	fmt.Fprintf(w, "    %s %d\n", color.RedString("failed:  "), r.Failed)
	for _, rec := range r.Records {
		if rec.Status == model.StatusFailed || (verbose && rec.Status == model.StatusSkipped) {
			fmt.Fprintf(w, "    - %s %s: %s\n", rec.Status, rec.DocID, rec.Reason)
		}
	}
	fmt.Fprintln(w)
}
