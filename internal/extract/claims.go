// Package extract harvests check-worthy sentences from article HTML so a
// whole page can be fed to batch verification.
package extract

import (
	"fmt"
	"io"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
)

const (
	minSentenceRunes = 20
	maxSentenceRunes = 500
)

// DefaultCues are the words that mark a sentence as a factual health or
// science assertion, in English and Indonesian
var DefaultCues = []string{
	"according to", "studies show", "research shows", "scientists", "proven",
	"cure", "prevent", "cause", "kill", "boost", "reduce", "increase",
	"lower", "protect", "treat", "vaccine",
	"menurut", "penelitian", "terbukti", "menyembuhkan", "mencegah",
	"menyebabkan", "membunuh", "meningkatkan", "menurunkan", "obat", "vaksin",
}

// Candidate is a sentence that reads like a verifiable claim
type Candidate struct {
	Text     string `json:"text"`
	Cue      string `json:"cue"`
	Sentence int    `json:"sentence"`
}

// ClaimExtractor extracts candidate claims from HTML
type ClaimExtractor struct {
	cues *regexp.Regexp
}

// NewClaimExtractor creates an extractor matching DefaultCues plus extra.
// A cue matches at the start of a word, so "cure" also matches "cures".
func NewClaimExtractor(extra ...string) *ClaimExtractor {
	all := append(append([]string{}, DefaultCues...), extra...)
	quoted := make([]string, 0, len(all))
	for _, c := range all {
		if c = strings.TrimSpace(c); c != "" {
			quoted = append(quoted, regexp.QuoteMeta(strings.ToLower(c)))
		}
	}
	return &ClaimExtractor{
		cues: regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)`),
	}
}

// Extract parses an HTML document and returns its candidate claims in
// page order, without duplicates
func (e *ClaimExtractor) Extract(r io.Reader) ([]Candidate, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return e.ExtractText(visibleText(doc)), nil
}

// ExtractText returns the candidate claims of plain text
func (e *ClaimExtractor) ExtractText(text string) []Candidate {
	var out []Candidate
	seen := make(map[string]bool)
	for i, s := range splitSentences(text) {
		cue := e.cues.FindString(s)
		if cue == "" {
			continue
		}
		key := strings.ToLower(s)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, Candidate{Text: s, Cue: strings.ToLower(cue), Sentence: i})
	}
	return out
}

// Texts returns the sentence text of each candidate
func Texts(candidates []Candidate) []string {
	out := make([]string, len(candidates))
	for i, c := range candidates {
		out[i] = c.Text
	}
	return out
}

var blockElements = map[string]bool{
	"p": true, "div": true, "li": true, "br": true, "tr": true, "td": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"blockquote": true, "article": true, "section": true, "title": true,
}

// visibleText collects text nodes, skipping scripts and styles. Block
// elements end with a newline so headings never run into the next sentence.
func visibleText(n *html.Node) string {
	var buf strings.Builder

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "iframe", "template":
				return
			}
		}
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				buf.WriteString(t)
				buf.WriteByte(' ')
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && blockElements[n.Data] {
			buf.WriteByte('\n')
		}
	}

	walk(n)
	return buf.String()
}

// splitSentences breaks on newlines and on . ! ? followed by whitespace,
// keeping sentences within the length window
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	flush := func() {
		s := strings.Join(strings.Fields(current.String()), " ")
		current.Reset()
		if n := utf8.RuneCountInString(s); n >= minSentenceRunes && n <= maxSentenceRunes {
			sentences = append(sentences, s)
		}
	}

	runes := []rune(text)
	for i, r := range runes {
		if r == '\n' {
			flush()
			continue
		}
		current.WriteRune(r)
		if (r == '.' || r == '!' || r == '?') && i+1 < len(runes) && (runes[i+1] == ' ' || runes[i+1] == '\t' || runes[i+1] == '\n') {
			flush()
		}
	}
	flush()

	return sentences
}
