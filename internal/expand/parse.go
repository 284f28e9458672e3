package expand

import (
	"encoding/json"
	"regexp"
	"strings"
)

// MaxTermLength is the longest search term kept
const MaxTermLength = 60

// DomainTerms is used when the model yields no usable terms
var DomainTerms = []string{
	"systematic review",
	"meta-analysis",
	"randomized controlled trial",
	"clinical trial",
	"cohort study",
	"case-control study",
	"efficacy",
	"safety",
	"adverse effects",
	"risk factor",
	"mechanism",
	"epidemiology",
}

var (
	bullet   = regexp.MustCompile(`^\s*(?:[-*•]+|\d+[.)]|[a-z][.)])\s*`)
	jsonList = regexp.MustCompile(`(?s)\[.*\]`)
)

// ParseList extracts a list of strings from model output: a JSON array
// (bare, fenced or wrapped in an object) first, then one item per line.
// Items are lower-cased, deduplicated and dropped when longer than maxLen.
func ParseList(text string, limit, maxLen int) []string {
	items := parseJSONList(text)
	if len(items) == 0 {
		items = parseLines(text)
	}
	return normalize(items, limit, maxLen)
}

func parseJSONList(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var list []string
	if err := json.Unmarshal([]byte(text), &list); err == nil {
		return list
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &obj); err == nil {
		for _, raw := range obj {
			if err := json.Unmarshal(raw, &list); err == nil && len(list) > 0 {
				return list
			}
		}
	}

	if m := jsonList.FindString(text); m != "" {
		if err := json.Unmarshal([]byte(m), &list); err == nil {
			return list
		}
	}
	return nil
}

func parseLines(text string) []string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "```") || strings.HasSuffix(line, ":") {
			continue
		}
		lines = append(lines, bullet.ReplaceAllString(line, ""))
	}
	// a single line is read as a comma separated list
	if len(lines) == 1 {
		return strings.Split(lines[0], ",")
	}
	return lines
}

func normalize(items []string, limit, maxLen int) []string {
	seen := make(map[string]bool)
	var out []string
	for _, item := range items {
		item = strings.ToLower(strings.Join(strings.Fields(item), " "))
		item = strings.Trim(item, "\"'`.;[]")
		item = strings.TrimSpace(item)
		if item == "" || len([]rune(item)) > maxLen || seen[item] {
			continue
		}
		seen[item] = true
		out = append(out, item)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}
