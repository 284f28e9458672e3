package sources

import (
	"strings"

	"golang.org/x/net/html"
)

// StripMarkup removes HTML/JATS tags and collapses whitespace
func StripMarkup(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return collapse(s)
	}

	var sb strings.Builder
	z := html.NewTokenizer(strings.NewReader(s))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return collapse(sb.String())
		case html.TextToken:
			sb.Write(z.Text())
		case html.StartTagToken, html.EndTagToken, html.SelfClosingTagToken:
			// keep words on both sides of a tag apart
			sb.WriteByte(' ')
		}
	}
}

// cleanAbstract strips markup and a leading "Abstract" heading
func cleanAbstract(s string) string {
	s = StripMarkup(s)
	for _, prefix := range []string{"Abstract ", "ABSTRACT ", "Abstract: "} {
		s = strings.TrimPrefix(s, prefix)
	}
	return s
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// NormalizeDOI strips resolver prefixes and lower-cases a DOI
func NormalizeDOI(doi string) string {
	doi = strings.TrimSpace(doi)
	for _, prefix := range []string{"https://doi.org/", "http://doi.org/", "https://dx.doi.org/", "http://dx.doi.org/", "doi:"} {
		if len(doi) >= len(prefix) && strings.EqualFold(doi[:len(prefix)], prefix) {
			doi = doi[len(prefix):]
			break
		}
	}
	return strings.ToLower(doi)
}
