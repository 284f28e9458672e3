package expand

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ppiankov/claimcheck/internal/cache"
	"github.com/ppiankov/claimcheck/internal/llm"
)

// Completer is the language model used for expansion and translation
type Completer interface {
	Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)
}

var errNoOutput = errors.New("no usable model output")

// Translator translates text through the language model
type Translator struct {
	llm    Completer
	cache  cache.Cache
	ttl    time.Duration
	logger *slog.Logger
}

// NewTranslator creates a translator
func NewTranslator(l Completer, c cache.Cache, ttl time.Duration, logger *slog.Logger) *Translator {
	if c == nil {
		c = cache.Noop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Translator{llm: l, cache: c, ttl: ttl, logger: logger}
}

// Translate returns text in the target language, or text unchanged when
// translation fails
func (t *Translator) Translate(ctx context.Context, text, target string) string {
	text = strings.TrimSpace(text)
	if text == "" || target == "" || t == nil || t.llm == nil {
		return text
	}

	out, err := cache.Remember(t.cache, cache.TypeTranslation, cache.Key(target, text), t.ttl, func() (string, error) {
		resp, err := t.llm.Complete(ctx, llm.CompletionRequest{
			System:      "You are a precise translator for scientific text.",
			Prompt:      fmt.Sprintf("Translate the following text to %s. Reply with the translation only, no notes.\n\n%s", languageName(target), text),
			Temperature: 0,
			MaxTokens:   400,
		})
		if err != nil {
			return "", err
		}
		translated := strings.Trim(strings.TrimSpace(resp.Text), "\"“”")
		if translated == "" {
			return "", errNoOutput
		}
		return translated, nil
	})
	if err != nil {
		if !errors.Is(err, llm.ErrDisabled) {
			t.logger.Warn("translation failed, keeping original text", "target", target, "error", err)
		}
		return text
	}
	return out
}

var languages = map[string]string{
	"en": "English",
	"id": "Indonesian",
	"es": "Spanish",
	"fr": "French",
	"de": "German",
	"pt": "Portuguese",
}

func languageName(code string) string {
	if name, ok := languages[strings.ToLower(code)]; ok {
		return name
	}
	return code
}
