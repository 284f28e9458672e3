package store

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/claimcheck/internal/model"
)

func TestReadWriteChunks(t *testing.T) {
	in := []model.EvidenceChunk{
		{DocID: "10.1/abc", SafeID: "10_1_abc", SourceFile: "crossref", ChunkIndex: 0, Text: "one two", NWords: 2, DOI: "10.1/abc", Embedding: []float32{0.1, 0.2}},
		{DocID: "doc-2", SafeID: "doc_2", SourceFile: "arxiv", ChunkIndex: 1, Text: "three", NWords: 1, Embedding: []float32{0.3, 0.4}},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteChunks(&buf, in))
	assert.Equal(t, 2, strings.Count(buf.String(), "\n"), "Expected one line per chunk")

	out, err := ReadChunks(&buf)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestReadChunks_FillsWordCount(t *testing.T) {
	out, err := ReadChunks(strings.NewReader(`{"doc_id":"a","chunk_index":0,"text":"a b c","embedding":[1]}` + "\n\n"))
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, 3, out[0].NWords)
}

func TestReadChunks_BadLine(t *testing.T) {
	_, err := ReadChunks(strings.NewReader("{\"doc_id\":\"a\"}\n{oops\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestDetectDimension(t *testing.T) {
	input := strings.Join([]string{
		`not json`,
		`{"doc_id":"a","embedding":[]}`,
		`{"doc_id":"b","embedding":[1,2,3]}`,
		`{"doc_id":"c","embedding":[1,2]}`,
	}, "\n")

	dim, err := DetectDimension(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, 3, dim, "Expected first valid embedding to win")
}

func TestDetectDimension_None(t *testing.T) {
	_, err := DetectDimension(strings.NewReader(`{"doc_id":"a"}`))
	assert.ErrorIs(t, err, ErrNoValidEmbedding)

	_, err = DimensionOf([]model.EvidenceChunk{{DocID: "a"}})
	assert.ErrorIs(t, err, ErrNoValidEmbedding)
}
