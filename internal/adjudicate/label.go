package adjudicate

import (
	"strings"
)

// Label is the model-facing verdict label
type Label string

const (
	Valid          Label = "VALID"
	Hoax           Label = "HOAX"
	PartiallyValid Label = "PARTIALLY_VALID"
)

var synonyms = map[string]Label{
	"VALID":           Valid,
	"TRUE":            Valid,
	"SUPPORTED":       Valid,
	"CORRECT":         Valid,
	"ACCURATE":        Valid,
	"CONFIRMED":       Valid,
	"FACT":            Valid,
	"FACTUAL":         Valid,
	"VERIFIED":        Valid,
	"BENAR":           Valid,
	"FAKTA":           Valid,
	"SAHIH":           Valid,
	"VALIDATED":       Valid,
	"HOAX":            Hoax,
	"HOAKS":           Hoax,
	"FALSE":           Hoax,
	"FAKE":            Hoax,
	"REFUTED":         Hoax,
	"INCORRECT":       Hoax,
	"DEBUNKED":        Hoax,
	"MYTH":            Hoax,
	"MISINFORMATION":  Hoax,
	"DISINFORMATION":  Hoax,
	"UNSUPPORTED":     Hoax,
	"NOT_TRUE":        Hoax,
	"NOT_VALID":       Hoax,
	"INVALID":         Hoax,
	"UNTRUE":          Hoax,
	"INACCURATE":      Hoax,
	"SALAH":           Hoax,
	"BOHONG":          Hoax,
	"PALSU":           Hoax,
	"TIDAK_BENAR":     Hoax,
	"PARTIALLY_VALID": PartiallyValid,
	"PARTIALLY_TRUE":  PartiallyValid,
	"PARTIAL":         PartiallyValid,
	"PARTLY_TRUE":     PartiallyValid,
	"PARTLY_VALID":    PartiallyValid,
	"HALF_TRUE":       PartiallyValid,
	"MIXED":           PartiallyValid,
	"MOSTLY_TRUE":     PartiallyValid,
	"MISLEADING":      PartiallyValid,
	"SEBAGIAN":        PartiallyValid,
	"SEBAGIAN_BENAR":  PartiallyValid,
	"SEBAGIAN_VALID":  PartiallyValid,
}

// ParseLabel maps raw onto a label. ok is false when raw is not recognized.
func ParseLabel(raw string) (Label, bool) {
	key := strings.ToUpper(strings.TrimSpace(raw))
	key = strings.Trim(key, "\"'.!*` ")
	key = strings.NewReplacer("-", "_", " ", "_").Replace(key)
	for strings.Contains(key, "__") {
		key = strings.ReplaceAll(key, "__", "_")
	}
	if l, ok := synonyms[key]; ok {
		return l, true
	}

	switch {
	case key == "":
		return "", false
	case strings.Contains(key, "PARTIAL") || strings.Contains(key, "SEBAGIAN"):
		return PartiallyValid, true
	}

	// "not hoax" reads as valid, any other negation as hoax
	for _, neg := range []string{"NOT_", "TIDAK_", "BUKAN_"} {
		if rest, ok := strings.CutPrefix(key, neg); ok {
			if falsehood(rest) {
				return Valid, true
			}
			return Hoax, true
		}
	}
	if falsehood(key) {
		return Hoax, true
	}

	for _, word := range strings.Split(key, "_") {
		if !strings.Contains(word, "VALID") && !strings.Contains(word, "TRUE") {
			continue
		}
		// untrue, unvalidated, invalidated
		if strings.HasPrefix(word, "UN") || strings.HasPrefix(word, "IN") {
			return Hoax, true
		}
		return Valid, true
	}
	return "", false
}

func falsehood(key string) bool {
	for _, w := range []string{"HOAX", "HOAKS", "FALSE", "FAKE", "SALAH"} {
		if strings.Contains(key, w) {
			return true
		}
	}
	return false
}

// NormalizeLabel maps any string onto exactly one label. Unrecognized
// input takes fallback, which itself falls back to HOAX.
func NormalizeLabel(raw string, fallback Label) Label {
	if l, ok := ParseLabel(raw); ok {
		return l
	}
	if l, ok := ParseLabel(string(fallback)); ok {
		return l
	}
	return Hoax
}
