package llm

import (
	"fmt"
	"slices"
	"strings"

	"github.com/ppiankov/claimcheck/internal/model"
)

type constructor func(Config) (Provider, error)

func wrap[P Provider](fn func(Config) (P, error)) constructor {
	return func(c Config) (Provider, error) {
		p, err := fn(c)
		if err != nil {
			return nil, err
		}
		return p, nil
	}
}

var constructors = map[string]constructor{
	"openai":    wrap(NewOpenAIProvider),
	"anthropic": wrap(NewAnthropicProvider),
	"ollama":    wrap(NewOllamaProvider),
}

var aliases = map[string]string{
	"claude": "anthropic",
	"gpt":    "openai",
	"local":  "ollama",
}

// Providers lists the supported provider names
func Providers() []string {
	names := make([]string, 0, len(constructors))
	for n := range constructors {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// NewProvider builds the provider named by config.Provider. An empty name
// or "none" disables the LLM and returns nil, nil.
func NewProvider(config Config) (Provider, error) {
	name := strings.ToLower(strings.TrimSpace(config.Provider))
	if name == "" || name == "none" {
		return nil, nil
	}
	if canonical, ok := aliases[name]; ok {
		name = canonical
	}
	build, ok := constructors[name]
	if !ok {
		return nil, fmt.Errorf("unknown LLM provider %q (supported: %s)", config.Provider, strings.Join(Providers(), ", "))
	}
	return build(config)
}

// ConfigFromModel maps the llm section of the config file onto Config
func ConfigFromModel(llmCfg model.LLMConfig, httpCfg model.HTTPConfig) Config {
	return Config{
		Provider:  llmCfg.Provider,
		Model:     llmCfg.Model,
		APIKey:    llmCfg.APIKey,
		BaseURL:   llmCfg.BaseURL,
		Timeout:   llmCfg.Timeout,
		MaxTokens: llmCfg.MaxTokens,
		HTTP:      httpCfg,
	}
}
