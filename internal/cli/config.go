package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/claimcheck/internal/cache"
	"github.com/ppiankov/claimcheck/internal/embed"
	"github.com/ppiankov/claimcheck/internal/llm"
	"github.com/ppiankov/claimcheck/internal/model"
	"github.com/ppiankov/claimcheck/internal/store"
	"github.com/ppiankov/claimcheck/internal/util"
)

var initPath string

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage claimcheck configuration",
	Long: `Manage claimcheck configuration files and settings.

Configuration hierarchy (highest to lowest priority):
1. CLI flags
2. Environment variables (CLAIMCHECK_*, with . replaced by _)
3. .env file in the working directory
4. Config file (~/.claimcheck/config.yaml)
5. Defaults`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		if used := viper.ConfigFileUsed(); used != "" {
			fmt.Fprintf(os.Stderr, "Configuration file: %s\n\n", used)
		} else {
			fmt.Fprintf(os.Stderr, "No configuration file found (defaults and environment only)\n\n")
		}
		return writeYAML(cmd.OutOrStdout(), redact(*appConfig))
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	Long:  `Create a default configuration file (default ~/.claimcheck/config.yaml) with every option set to its default.`,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		path := initPath
		if path == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return fmt.Errorf("error finding home directory: %w", err)
			}
			path = filepath.Join(home, ".claimcheck", "config.yaml")
		}

		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists: %s\nUse 'claimcheck config show' to view it, or delete it first to recreate", path)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("error creating config directory: %w", err)
		}

		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("error creating config file: %w", err)
		}
		defer func() {
			if closeErr := f.Close(); closeErr != nil && err == nil {
				err = fmt.Errorf("close config file: %w", closeErr)
			}
		}()

		if err := writeDefaultConfig(f); err != nil {
			return err
		}

		fmt.Fprintf(os.Stderr, "✓ Created default configuration: %s\n", path)
		fmt.Fprintf(os.Stderr, "\nTo view the effective configuration:\n  claimcheck config show\n\n")
		return nil
	},
}

var configCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Check that the store and providers are reachable",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
		defer cancel()

		failed := 0
		report := func(name string, detail string, err error) {
			if err != nil {
				failed++
				fmt.Fprintf(os.Stderr, "%s %-10s %v\n", color.RedString("✗"), name, err)
				return
			}
			fmt.Fprintf(os.Stderr, "%s %-10s %s\n", color.GreenString("✓"), name, detail)
		}

		report(checkStore(ctx, appConfig))
		report(checkEmbedding(ctx, appConfig))
		report(checkLLM(ctx, appConfig))

		if failed > 0 {
			return fmt.Errorf("%d checks failed", failed)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configCheckCmd)

	configInitCmd.Flags().StringVar(&initPath, "path", "", "where to write the file (default: $HOME/.claimcheck/config.yaml)")
}

// writeDefaultConfig writes the commented default configuration
func writeDefaultConfig(w io.Writer) error {
	header := `# claimcheck configuration
#
# Configuration hierarchy (highest to lowest priority):
#   1. CLI flags
#   2. Environment variables (CLAIMCHECK_*, e.g. CLAIMCHECK_LLM_MODEL)
#   3. .env file in the working directory
#   4. This config file
#   5. Built-in defaults

`
	if _, err := io.WriteString(w, header); err != nil {
		return fmt.Errorf("error writing config: %w", err)
	}
	if err := writeYAML(w, *model.DefaultConfig()); err != nil {
		return err
	}
	footer := `
# API keys (recommended to use environment variables instead):
#   export OPENAI_API_KEY=sk-...
#   export ANTHROPIC_API_KEY=sk-ant-...
#   export OLLAMA_BASE_URL=http://localhost:11434
#   export SEMANTIC_SCHOLAR_API_KEY=...
`
	if _, err := io.WriteString(w, footer); err != nil {
		return fmt.Errorf("error writing config: %w", err)
	}
	return nil
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}
	return enc.Close()
}

// redact masks credentials for display
func redact(cfg model.Config) model.Config {
	mask := func(s string) string {
		if len(s) <= 8 {
			if s == "" {
				return ""
			}
			return "****"
		}
		return s[:4] + "****"
	}
	cfg.LLM.APIKey = mask(cfg.LLM.APIKey)
	cfg.Embedding.APIKey = mask(cfg.Embedding.APIKey)
	cfg.Sources.SemanticAPIKey = mask(cfg.Sources.SemanticAPIKey)
	return cfg
}

func checkStore(ctx context.Context, cfg *model.Config) (string, string, error) {
	st, err := store.Open(ctx, cfg.Store, appLogger)
	if err != nil {
		return "store", "", err
	}
	defer func() { _ = st.Close() }()
	n, err := st.Count(ctx)
	if err != nil && st.Dimension() == 0 {
		return "store", fmt.Sprintf("%s reachable, schema not created yet", cfg.Store.Driver), nil
	}
	if err != nil {
		return "store", "", err
	}
	return "store", fmt.Sprintf("%s, %d chunks, dimension %d", cfg.Store.Driver, n, st.Dimension()), nil
}

func checkEmbedding(ctx context.Context, cfg *model.Config) (string, string, error) {
	provider, err := embed.NewProvider(cfg.Embedding, util.NewHTTPClient(cfg.HTTP, cfg.Embedding.Timeout), appLogger)
	if err != nil {
		return "embedding", "", err
	}
	client := embed.NewClient(provider, cache.Noop{}, cfg.Embedding, 0, appLogger)
	vec, err := client.EmbedOne(ctx, "claimcheck connectivity check", cfg.Embedding.Dimensions)
	if err != nil {
		return "embedding", "", err
	}
	return "embedding", fmt.Sprintf("%s/%s, width %d", client.Provider().Name(), client.Provider().Model(), len(vec)), nil
}

func checkLLM(ctx context.Context, cfg *model.Config) (string, string, error) {
	provider, err := llm.NewProvider(llm.ConfigFromModel(cfg.LLM, cfg.HTTP))
	if err != nil {
		return "llm", "", err
	}
	if provider == nil {
		return "llm", "disabled", nil
	}
	client := llm.NewClient(provider, cfg.LLM, cache.Noop{}, 0, appLogger)
	if err := client.Check(ctx); err != nil {
		return "llm", "", err
	}
	return "llm", fmt.Sprintf("%s (%s)", provider.Name(), strings.Join(client.Models(), ", ")), nil
}
