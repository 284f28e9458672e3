package cli

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/claimcheck/internal/model"
)

func TestRedact(t *testing.T) {
	cfg := *model.DefaultConfig()
	cfg.LLM.APIKey = "sk-1234567890abcdef"
	cfg.Embedding.APIKey = "short"
	cfg.Sources.SemanticAPIKey = ""

	out := redact(cfg)
	assert.Equal(t, "sk-1****", out.LLM.APIKey)
	assert.Equal(t, "****", out.Embedding.APIKey)
	assert.Empty(t, out.Sources.SemanticAPIKey)
	assert.Equal(t, "sk-1234567890abcdef", cfg.LLM.APIKey, "original config untouched")
}

func TestWriteDefaultConfig(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeDefaultConfig(&buf))

	out := buf.String()
	assert.Contains(t, out, "# claimcheck configuration")
	assert.Contains(t, out, "export.arxiv.org")

	var parsed map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &parsed))
	assert.Contains(t, parsed, "sources")
	assert.Contains(t, parsed, "llm")
}

func TestReadBatchInput(t *testing.T) {
	appLogger = slog.New(slog.NewTextHandler(io.Discard, nil))
	dir := t.TempDir()

	t.Run("plain", func(t *testing.T) {
		batchHTML = false
		path := filepath.Join(dir, "claims.txt")
		require.NoError(t, os.WriteFile(path, []byte("# header\nGarlic cures flu\n\nGarlic cures flu\nHoney soothes coughs\n"), 0o644))

		claims, err := readBatchInput(path)
		require.NoError(t, err)
		assert.Equal(t, []string{"Garlic cures flu", "Honey soothes coughs"}, claims)
	})

	t.Run("html", func(t *testing.T) {
		batchHTML = true
		defer func() { batchHTML = false }()
		path := filepath.Join(dir, "article.html")
		page := `<html><body>
<h1>Daily news</h1>
<p>Vitamin C can cure the common cold within two days. The weather was nice today in Jakarta.</p>
<script>var x = "this proven cure is hidden";</script>
</body></html>`
		require.NoError(t, os.WriteFile(path, []byte(page), 0o644))

		claims, err := readBatchInput(path)
		require.NoError(t, err)
		assert.Equal(t, []string{"Vitamin C can cure the common cold within two days."}, claims)
	})

	t.Run("missing file", func(t *testing.T) {
		batchHTML = true
		defer func() { batchHTML = false }()
		_, err := readBatchInput(filepath.Join(dir, "nope.html"))
		assert.Error(t, err)
	})
}

func TestPrintVerdict(t *testing.T) {
	var buf bytes.Buffer
	printVerdict(&buf, &model.Verdict{
		Claim:   "Garlic cures flu",
		Label:   model.LabelInconclusive,
		Summary: "no evidence",
		Metadata: model.VerdictMetadata{
			DynamicFetch:     true,
			FetchedDocuments: 3,
			Warnings:         []string{"llm unavailable"},
			Elapsed:          1500 * time.Millisecond,
		},
	})

	out := buf.String()
	assert.Contains(t, out, "INCONCLUSIVE")
	assert.Contains(t, out, "confidence n/a")
	assert.Contains(t, out, "Fetched:  3 fresh documents")
	assert.Contains(t, out, "llm unavailable")
	assert.Contains(t, out, "Elapsed: 1.5s")
}

func TestPrintReport(t *testing.T) {
	var r model.BatchReport
	r.Add(model.RecordResult{DocID: "10.1/a", Status: model.StatusInserted})
	r.Add(model.RecordResult{DocID: "10.1/b", Status: model.StatusFailed, Reason: "embed failed"})

	var buf bytes.Buffer
	printReport(&buf, "Ingested", r)
	assert.Contains(t, buf.String(), "failed 10.1/b: embed failed")
}
