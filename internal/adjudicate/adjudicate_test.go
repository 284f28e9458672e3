package adjudicate

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/claimcheck/internal/llm"
	"github.com/ppiankov/claimcheck/internal/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type cannedLLM struct {
	text    string
	err     error
	prompts []string
}

func (c *cannedLLM) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	c.prompts = append(c.prompts, req.Prompt)
	if c.err != nil {
		return nil, c.err
	}
	return &llm.CompletionResponse{Text: c.text, Model: "test"}, nil
}

type upperTranslator struct{ calls int }

func (u *upperTranslator) Translate(_ context.Context, text, _ string) string {
	u.calls++
	return strings.ToUpper(text)
}

func candidate(doc string, idx int, text string, rel float64) model.RetrievalCandidate {
	return model.RetrievalCandidate{
		Chunk:     model.EvidenceChunk{DocID: doc, SafeID: doc, ChunkIndex: idx, Text: text, DOI: "10.1/" + doc, SourceFile: "crossref"},
		Relevance: rel,
	}
}

func TestNormalizeLabel(t *testing.T) {
	tests := []struct {
		raw  string
		want Label
	}{
		{"VALID", Valid},
		{"valid", Valid},
		{" True ", Valid},
		{"supported", Valid},
		{"benar", Valid},
		{"HOAX", Hoax},
		{"false", Hoax},
		{"hoaks", Hoax},
		{"salah", Hoax},
		{"not true", Hoax},
		{"untrue", Hoax},
		{"unvalidated", Hoax},
		{"Invalidated claim", Hoax},
		{"not valid at all", Hoax},
		{"bukan fakta", Hoax},
		{"not hoax", Valid},
		{"bukan hoaks", Valid},
		{"tidak salah", Valid},
		{"likely true", Valid},
		{"mostly false", Hoax},
		{"PARTIALLY_VALID", PartiallyValid},
		{"partially valid", PartiallyValid},
		{"Partially-True", PartiallyValid},
		{"sebagian benar", PartiallyValid},
		{"mixed", PartiallyValid},
		{"banana", Hoax},
		{"", Hoax},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeLabel(tt.raw, Hoax))
		})
	}
}

func TestParseLabelNegation(t *testing.T) {
	l, ok := ParseLabel("untrue")
	assert.True(t, ok)
	assert.Equal(t, Hoax, l)

	r, _ := ParseResponse(`{"label":"untrue","confidence":0.9}`)
	assert.Equal(t, Hoax, NormalizeLabel(r.Label, Valid))
}

func TestNormalizeLabelFallback(t *testing.T) {
	assert.Equal(t, PartiallyValid, NormalizeLabel("banana", PartiallyValid))
	assert.Equal(t, Hoax, NormalizeLabel("banana", Label("nonsense")))
}

func TestParseResponse(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		label    string
		conf     float64
		strategy string
	}{
		{"direct", `{"label":"VALID","confidence":0.9,"reasoning":"r"}`, "VALID", 0.9, StrategyDirect},
		{"prose around", "Sure! Here you go:\n{\"label\": \"HOAX\", \"confidence\": 0.7}\nThanks.", "HOAX", 0.7, StrategyBraces},
		{"fenced", "```json\n{\"verdict\": \"PARTIALLY_VALID\", \"score\": \"0.6\"}\n```", "PARTIALLY_VALID", 0.6, StrategyBraces},
		{"trailing comma", `Answer: {"label": "VALID", "confidence": 0.8,}`, "VALID", 0.8, StrategyCleaned},
		{"percent", `{"label":"VALID","confidence":"85%"}`, "VALID", 0.85, StrategyDirect},
		{"braces in string", `x {"label":"HOAX","reasoning":"uses {braces}","confidence":0.4} y`, "HOAX", 0.4, StrategyBraces},
		{"garbage", "I cannot decide.", "HOAX", 0, StrategyFallback},
		{"empty", "", "HOAX", 0, StrategyFallback},
		{"no label", `{"confidence":0.9}`, "HOAX", 0, StrategyFallback},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, strategy := ParseResponse(tt.text)
			assert.Equal(t, tt.strategy, strategy)
			assert.Equal(t, tt.label, r.Label)
			assert.InDelta(t, tt.conf, r.Confidence, 1e-9)
		})
	}
}

func TestBuildPromptBudget(t *testing.T) {
	long := strings.Repeat("word ", 200)
	evidence := []Evidence{
		{ID: "a#0", Snippet: long, Relevance: 0.9},
		{ID: "b#0", Snippet: long, Relevance: 0.8},
		{ID: "c#0", Snippet: long, Relevance: 0.7},
	}

	prompt, n := BuildPrompt("claim", evidence, 1500, 600)
	assert.Equal(t, 2, n)
	assert.Contains(t, prompt, "id=a#0")
	assert.Contains(t, prompt, "id=b#0")
	assert.NotContains(t, prompt, "id=c#0")
	assert.Contains(t, prompt, `"label"`)

	// the first item survives even when it alone exceeds the budget
	prompt, n = BuildPrompt("claim", evidence, 100, 600)
	assert.Equal(t, 1, n)
	assert.Contains(t, prompt, "id=a#0")

	prompt, n = BuildPrompt("claim", nil, 0, 0)
	assert.Equal(t, 0, n)
	assert.Contains(t, prompt, "(none)")
}

func TestBuildPromptSnippetCap(t *testing.T) {
	prompt, _ := BuildPrompt("claim", []Evidence{{ID: "a#0", Snippet: strings.Repeat("x", 1000)}}, 0, 50)
	assert.NotContains(t, prompt, strings.Repeat("x", 51))
	assert.Contains(t, prompt, strings.Repeat("x", 50))
}

func TestPolicyLLMLed(t *testing.T) {
	p := NewPolicy(model.DecisionConfig{})
	d := p.Decide(Judgement{Label: Valid, Confidence: 0.9}, 0.7, 0.6)

	assert.Equal(t, model.LabelValid, d.Label)
	assert.InDelta(t, 0.9, d.Confidence, 1e-9)
	assert.Equal(t, DecisionLLMLed, d.Branch)
	assert.InDelta(t, 0.5*0.9+0.3*0.7+0.2*0.6, d.Combined, 1e-9)
}

func TestPolicyBlended(t *testing.T) {
	p := NewPolicy(model.DecisionConfig{})

	d := p.Decide(Judgement{Label: PartiallyValid, Confidence: 0.5}, 0.6, 0.5)
	assert.Equal(t, model.LabelPartiallyValid, d.Label)
	assert.InDelta(t, 0.53, d.Confidence, 1e-9)
	assert.Equal(t, DecisionBlended, d.Branch)

	// a confident VALID below the threshold is blended too
	d = p.Decide(Judgement{Label: Valid, Confidence: 0.74}, 0.9, 0.9)
	assert.Equal(t, DecisionBlended, d.Branch)
	assert.Equal(t, model.LabelValid, d.Label)

	d = p.Decide(Judgement{Label: Hoax, Confidence: 0.1}, 0.3, 0.3)
	assert.Equal(t, model.LabelHoax, d.Label)
}

func TestPolicyTiers(t *testing.T) {
	p := Policy{LLMLedThreshold: 0.75, ValidTier: 0.7, PartialTier: 0.4, LLMWeight: 1}
	assert.Equal(t, model.LabelValid, p.Decide(Judgement{Label: Hoax, Confidence: 0.7}, 0, 0).Label)
	assert.Equal(t, model.LabelPartiallyValid, p.Decide(Judgement{Label: Hoax, Confidence: 0.4}, 0, 0).Label)
	assert.Equal(t, model.LabelHoax, p.Decide(Judgement{Label: Hoax, Confidence: 0.39}, 0, 0).Label)
}

func TestJudge(t *testing.T) {
	l := &cannedLLM{text: `{"label": "benar", "confidence": 0.9, "reasoning": "see [1]"}`}
	a := NewAdjudicator(l, nil, "en", model.DefaultConfig().Adjudicator, testLogger())

	j := a.Judge(context.Background(), "garlic lowers blood pressure", []model.RetrievalCandidate{
		candidate("doc1", 0, "Garlic supplementation reduced systolic pressure.", 0.8),
	})

	assert.Equal(t, Valid, j.Label)
	assert.InDelta(t, 0.9, j.Confidence, 1e-9)
	assert.Equal(t, "see [1]", j.Reasoning)
	assert.Equal(t, StrategyDirect, j.Strategy)
	assert.Equal(t, 1, j.Included)
	require.Len(t, l.prompts, 1)
	assert.Contains(t, l.prompts[0], "id=doc1#0")
	assert.Contains(t, l.prompts[0], "doi=10.1/doc1")
}

func TestJudgeFailures(t *testing.T) {
	cfg := model.DefaultConfig().Adjudicator
	cands := []model.RetrievalCandidate{candidate("doc1", 0, "text", 0.5)}

	a := NewAdjudicator(&cannedLLM{err: errors.New("boom")}, nil, "en", cfg, testLogger())
	j := a.Judge(context.Background(), "claim", cands)
	assert.Equal(t, Hoax, j.Label)
	assert.Zero(t, j.Confidence)
	assert.Error(t, j.Err)

	a = NewAdjudicator(&cannedLLM{text: "no idea"}, nil, "en", cfg, testLogger())
	j = a.Judge(context.Background(), "claim", cands)
	assert.Equal(t, Hoax, j.Label)
	assert.Equal(t, StrategyFallback, j.Strategy)

	a = NewAdjudicator(nil, nil, "en", cfg, testLogger())
	j = a.Judge(context.Background(), "claim", cands)
	assert.ErrorIs(t, j.Err, llm.ErrDisabled)

	cfg.UnknownLabel = "partially valid"
	a = NewAdjudicator(&cannedLLM{text: `{"label":"maybe","confidence":1.5}`}, nil, "en", cfg, testLogger())
	j = a.Judge(context.Background(), "claim", cands)
	assert.Equal(t, PartiallyValid, j.Label)
	assert.InDelta(t, 0.015, j.Confidence, 1e-9)
}

func TestJudgeTranslatesSnippets(t *testing.T) {
	cfg := model.DefaultConfig().Adjudicator
	cfg.TranslateSnippets = true
	l := &cannedLLM{text: `{"label":"VALID","confidence":0.8}`}
	tr := &upperTranslator{}

	a := NewAdjudicator(l, tr, "en", cfg, testLogger())
	a.Judge(context.Background(), "claim", []model.RetrievalCandidate{
		candidate("doc1", 0, "bawang putih", 0.8),
		candidate("doc2", 1, "tekanan darah", 0.7),
	})

	assert.Equal(t, 2, tr.calls)
	assert.Contains(t, l.prompts[0], "BAWANG PUTIH")
	assert.Contains(t, l.prompts[0], "id=doc2#1")
}

func TestJudgeTranslatesOnlyWhatFits(t *testing.T) {
	cfg := model.DefaultConfig().Adjudicator
	cfg.TranslateSnippets = true
	cfg.SnippetChars = 100
	cfg.PromptBudget = 200
	l := &cannedLLM{text: `{"label":"VALID","confidence":0.8}`}
	tr := &upperTranslator{}
	long := strings.Repeat("bawang putih ", 20)

	a := NewAdjudicator(l, tr, "en", cfg, testLogger())
	j := a.Judge(context.Background(), "claim", []model.RetrievalCandidate{
		candidate("doc1", 0, long, 0.9),
		candidate("doc2", 0, long, 0.8),
		candidate("doc3", 0, long, 0.7),
	})

	assert.Equal(t, 1, j.Included)
	assert.Equal(t, 1, tr.calls, "Expected snippets cut by the budget to skip translation")
	assert.Contains(t, l.prompts[0], "BAWANG PUTIH")
	assert.NotContains(t, l.prompts[0], "id=doc2#0")
}
