package expand

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ppiankov/claimcheck/internal/cache"
	"github.com/ppiankov/claimcheck/internal/llm"
	"github.com/ppiankov/claimcheck/internal/model"
)

// fakeLLM answers by matching a substring of the prompt
type fakeLLM struct {
	mu      sync.Mutex
	answers map[string]string
	calls   int
	err     error
}

func (f *fakeLLM) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	for needle, answer := range f.answers {
		if strings.Contains(req.Prompt, needle) {
			return &llm.CompletionResponse{Text: answer}, nil
		}
	}
	return &llm.CompletionResponse{Text: ""}, nil
}

func enabledConfig() model.ExpansionConfig {
	return model.ExpansionConfig{Enabled: true, TargetLanguage: "en", MaxTerms: 12, MaxVariants: 6}
}

func TestParseList(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"json array", `["Vitamin C", "common cold", "vitamin c"]`, []string{"vitamin c", "common cold"}},
		{"fenced json", "```json\n[\"zinc\", \"immunity\"]\n```", []string{"zinc", "immunity"}},
		{"wrapped object", `{"terms": ["Garlic", "Hypertension"]}`, []string{"garlic", "hypertension"}},
		{"prose around array", `Sure! Here you go: ["a b", "c"] hope it helps`, []string{"a b", "c"}},
		{"bullet lines", "Terms:\n- Sleep deprivation\n* memory consolidation\n3. recall", []string{"sleep deprivation", "memory consolidation", "recall"}},
		{"comma line", "coffee, longevity, all-cause mortality", []string{"coffee", "longevity", "all-cause mortality"}},
		{"empty", "   ", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseList(tt.in, 12, MaxTermLength)
			if strings.Join(got, "|") != strings.Join(tt.want, "|") {
				t.Errorf("ParseList() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseList_Caps(t *testing.T) {
	long := strings.Repeat("x", MaxTermLength+1)
	got := ParseList(`["`+long+`", "a", "b", "c"]`, 2, MaxTermLength)
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("Expected long term dropped and limit applied, got %v", got)
	}
}

func TestExpandTerms_FromModel(t *testing.T) {
	mem := cache.NewMemoryCache(time.Hour, time.Hour)
	defer func() { _ = mem.Close() }()

	f := &fakeLLM{answers: map[string]string{"search terms": `["Ascorbic Acid", "Upper Respiratory Infection"]`}}
	e := NewExpander(f, nil, mem, enabledConfig(), time.Hour, nil)

	terms := e.ExpandTerms(context.Background(), "Vitamin C cures colds")
	if len(terms) != 2 || terms[0] != "ascorbic acid" {
		t.Fatalf("Unexpected terms: %v", terms)
	}

	_ = e.ExpandTerms(context.Background(), "Vitamin C cures colds")
	if f.calls != 1 {
		t.Errorf("Expected cached expansion, got %d model calls", f.calls)
	}
}

func TestExpandTerms_Fallback(t *testing.T) {
	f := &fakeLLM{err: errors.New("model down")}
	e := NewExpander(f, nil, nil, enabledConfig(), time.Hour, nil)

	terms := e.ExpandTerms(context.Background(), "claim")
	if len(terms) != 12 || terms[0] != DomainTerms[0] {
		t.Errorf("Expected domain fallback terms, got %v", terms)
	}
	if len(terms) > 12 {
		t.Error("Expected at most 12 terms")
	}

	if got := e.ExpandTerms(context.Background(), "  "); got != nil {
		t.Errorf("Expected nil for empty claim, got %v", got)
	}
}

func TestBilingualQueries(t *testing.T) {
	f := &fakeLLM{answers: map[string]string{
		"Translate":          "Vitamin C cures the common cold",
		"alternative search": `["ascorbic acid common cold treatment", "vitamin c cures the common cold", "vitamin c cold duration", "ascorbic acid supplementation rhinovirus"]`,
	}}
	tr := NewTranslator(f, nil, time.Hour, nil)
	e := NewExpander(f, tr, nil, enabledConfig(), time.Hour, nil)

	variants := e.BilingualQueries(context.Background(), "Vitamin C menyembuhkan flu biasa")
	if len(variants) != 5 {
		t.Fatalf("Expected original + translation + 3 distinct paraphrases, got %d: %+v", len(variants), variants)
	}
	if variants[0].Kind != model.VariantOriginal || variants[0].Lang != "orig" {
		t.Errorf("Expected original first, got %+v", variants[0])
	}
	if variants[1].Kind != model.VariantTranslated || variants[1].Lang != "en" {
		t.Errorf("Expected translation second, got %+v", variants[1])
	}
	for _, v := range variants[2:] {
		if v.Kind != model.VariantParaphrase {
			t.Errorf("Expected paraphrase, got %+v", v)
		}
		if v.ClaimHash != variants[0].ClaimHash {
			t.Error("Expected shared claim hash")
		}
	}
}

func TestBilingualQueries_Disabled(t *testing.T) {
	e := NewExpander(&fakeLLM{}, nil, nil, model.ExpansionConfig{Enabled: false}, time.Hour, nil)
	variants := e.BilingualQueries(context.Background(), "claim")
	if len(variants) != 1 || variants[0].Text != "claim" {
		t.Errorf("Expected only the original claim, got %+v", variants)
	}
}

func TestTranslate_FailureKeepsInput(t *testing.T) {
	tr := NewTranslator(&fakeLLM{err: llm.ErrAllModelsFailed}, nil, time.Hour, nil)
	if got := tr.Translate(context.Background(), "kopi", "en"); got != "kopi" {
		t.Errorf("Expected input back, got %q", got)
	}

	var nilTr *Translator
	if got := nilTr.Translate(context.Background(), "kopi", "en"); got != "kopi" {
		t.Errorf("Expected input back from nil translator, got %q", got)
	}
}
