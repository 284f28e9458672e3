package adjudicate

import (
	"fmt"
	"strings"
)

// DefaultPromptBudget caps the evidence section of the prompt, in characters
const DefaultPromptBudget = 6000

// DefaultSnippetChars caps a single evidence snippet
const DefaultSnippetChars = 600

const systemPrompt = "You are a careful fact-checking assistant. You judge claims strictly against the evidence you are given and answer in JSON."

const instructions = `Decide whether the claim is supported by the evidence.

Answer with a single JSON object and nothing else:
{"label": "VALID" | "HOAX" | "PARTIALLY_VALID", "confidence": <number between 0 and 1>, "reasoning": "<one or two sentences citing evidence ids>"}

Use VALID when the evidence supports the claim, HOAX when it contradicts it or the claim has no support, PARTIALLY_VALID when only part of the claim holds.`

// Evidence is one numbered item shown to the model
type Evidence struct {
	ID        string
	DOI       string
	Source    string
	Relevance float64
	Snippet   string
}

// BuildPrompt renders the adjudication prompt. Evidence items keep their
// order and are added while the evidence section stays within budget
// characters. The first item is always included, truncated if needed.
// It returns the prompt and the number of items included.
func BuildPrompt(claim string, evidence []Evidence, budget, snippetChars int) (string, int) {
	if budget <= 0 {
		budget = DefaultPromptBudget
	}
	if snippetChars <= 0 {
		snippetChars = DefaultSnippetChars
	}

	var section strings.Builder
	included := 0
	for i, e := range evidence {
		block := evidenceBlock(i+1, e, snippetChars)
		if section.Len()+len(block) > budget {
			if included > 0 {
				break
			}
			block = truncate(block, budget)
		}
		section.WriteString(block)
		included++
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Claim:\n%s\n\n", strings.TrimSpace(claim))
	if included == 0 {
		b.WriteString("Evidence:\n(none)\n\n")
	} else {
		b.WriteString("Evidence:\n")
		b.WriteString(section.String())
		b.WriteString("\n")
	}
	b.WriteString(instructions)
	return b.String(), included
}

func evidenceBlock(n int, e Evidence, snippetChars int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%d] id=%s", n, e.ID)
	if e.DOI != "" {
		fmt.Fprintf(&b, " doi=%s", e.DOI)
	}
	if e.Source != "" {
		fmt.Fprintf(&b, " source=%s", e.Source)
	}
	fmt.Fprintf(&b, " relevance=%.2f\n", e.Relevance)
	b.WriteString(truncate(strings.Join(strings.Fields(e.Snippet), " "), snippetChars))
	b.WriteString("\n\n")
	return b.String()
}

// truncate cuts s to at most n bytes on a rune boundary
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !isRuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
