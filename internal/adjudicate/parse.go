package adjudicate

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// Parse strategies, in the order they are tried
const (
	StrategyDirect   = "direct"
	StrategyBraces   = "braces"
	StrategyCleaned  = "cleaned"
	StrategyFallback = "fallback"
)

// Response is the structured answer extracted from model output
type Response struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

var trailingComma = regexp.MustCompile(`,\s*([}\]])`)

// ParseResponse extracts a Response from model output: as JSON, then as
// the first balanced {...} block, then as that block with trailing commas
// and control characters removed. Nothing usable yields HOAX with zero
// confidence and the fallback strategy.
func ParseResponse(text string) (Response, string) {
	text = strings.TrimSpace(text)

	if r, ok := decode(text); ok {
		return r, StrategyDirect
	}

	block := balancedObject(text)
	if block != "" {
		if r, ok := decode(block); ok {
			return r, StrategyBraces
		}
		if r, ok := decode(clean(block)); ok {
			return r, StrategyCleaned
		}
	}

	return Response{Label: string(Hoax), Confidence: 0}, StrategyFallback
}

func decode(s string) (Response, bool) {
	if s == "" {
		return Response{}, false
	}
	var fields map[string]any
	if err := json.Unmarshal([]byte(s), &fields); err != nil {
		return Response{}, false
	}

	var r Response
	for _, k := range []string{"label", "verdict", "classification", "status"} {
		if v, ok := lookup(fields, k).(string); ok && v != "" {
			r.Label = v
			break
		}
	}
	for _, k := range []string{"confidence", "score", "probability"} {
		if c, ok := number(lookup(fields, k)); ok {
			r.Confidence = c
			break
		}
	}
	for _, k := range []string{"reasoning", "explanation", "summary", "reason", "rationale"} {
		if v, ok := lookup(fields, k).(string); ok && v != "" {
			r.Reasoning = v
			break
		}
	}
	if r.Label == "" {
		return Response{}, false
	}
	return r, true
}

// lookup finds key case-insensitively
func lookup(fields map[string]any, key string) any {
	if v, ok := fields[key]; ok {
		return v
	}
	for k, v := range fields {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return nil
}

// number reads a confidence given as a number, a numeric string or a
// percentage
func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		if n > 1 && n <= 100 {
			n /= 100
		}
		return n, true
	case string:
		s := strings.TrimSpace(n)
		percent := strings.HasSuffix(s, "%")
		f, err := strconv.ParseFloat(strings.TrimSuffix(s, "%"), 64)
		if err != nil {
			return 0, false
		}
		if percent || (f > 1 && f <= 100) {
			f /= 100
		}
		return f, true
	}
	return 0, false
}

// balancedObject returns the first {...} block with matching braces,
// ignoring braces inside strings
func balancedObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

func clean(s string) string {
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' || r == ' ' {
			return ' '
		}
		if !unicode.IsPrint(r) {
			return -1
		}
		return r
	}, s)
	s = strings.NewReplacer("“", `"`, "”", `"`).Replace(s)
	return trailingComma.ReplaceAllString(s, "$1")
}
