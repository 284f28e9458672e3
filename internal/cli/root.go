package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/claimcheck/internal/logging"
	"github.com/ppiankov/claimcheck/internal/metrics"
	"github.com/ppiankov/claimcheck/internal/model"
)

// Version is set at build time with -ldflags
var Version = "v0.1.0"

var (
	cfgFile     string
	envFile     string
	verbose     bool
	logLevel    string
	logFormat   string
	metricsAddr string

	configErr error
	appConfig *model.Config
	appLogger *slog.Logger
)

// keys without a default value that viper must still read from the environment
var secretKeys = []string{
	"llm.api_key",
	"embedding.api_key",
	"sources.semantic_scholar_api_key",
}

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "claimcheck",
	Short: "claimcheck - evidence-grounded claim verification",
	Long: `claimcheck verifies free-text claims against a vector index of scholarly
evidence.

It retrieves the closest evidence chunks for a claim, pulls fresh documents
from Crossref, OpenAlex, Semantic Scholar and arXiv when stored evidence is
weak, asks a language model to judge the claim against that evidence, and
blends the model's confidence with retrieval quality into a verdict:
valid, hoax, partially_valid or inconclusive.`,
	SilenceErrors:     true,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

// Execute runs the root command until ctx is cancelled
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "claimcheck %s\n", Version)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.claimcheck/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (debug logging)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (pretty, json, text)")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9090)")

	// Bind flags to viper
	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))
	_ = viper.BindPFlag("metrics.addr", rootCmd.PersistentFlags().Lookup("metrics-addr"))

	rootCmd.AddCommand(versionCmd)
}

// initConfig layers defaults, the config file, .env and CLAIMCHECK_* variables
func initConfig() {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			configErr = fmt.Errorf("load %s: %w", envFile, err)
			return
		}
	}

	// Defaults go in as a base config so every key is known to viper
	viper.SetConfigType("yaml")
	defaults, err := yaml.Marshal(model.DefaultConfig())
	if err != nil {
		configErr = fmt.Errorf("encode defaults: %w", err)
		return
	}
	if err := viper.ReadConfig(bytes.NewReader(defaults)); err != nil {
		configErr = fmt.Errorf("load defaults: %w", err)
		return
	}
	for _, k := range secretKeys {
		viper.SetDefault(k, "")
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if home, err := os.UserHomeDir(); err == nil {
		viper.AddConfigPath(filepath.Join(home, ".claimcheck"))
		viper.SetConfigName("config")
	}

	// Read in environment variables that match CLAIMCHECK_*
	viper.SetEnvPrefix("CLAIMCHECK")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.MergeInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			configErr = fmt.Errorf("read config: %w", err)
		}
	}
}

// loadConfig decodes the merged viper state and applies provider key variables
func loadConfig() (*model.Config, error) {
	if configErr != nil {
		return nil, configErr
	}
	cfg := model.DefaultConfig()
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	applyProviderEnv(cfg)
	if verbose {
		cfg.Logging.Level = "debug"
	}
	return cfg, nil
}

// applyProviderEnv fills provider credentials from their conventional variables
func applyProviderEnv(cfg *model.Config) {
	if cfg.LLM.APIKey == "" {
		switch cfg.LLM.Provider {
		case "openai":
			cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
		case "anthropic", "claude":
			cfg.LLM.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		}
	}
	if cfg.LLM.Provider == "ollama" && cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = os.Getenv("OLLAMA_BASE_URL")
	}
	if cfg.Embedding.APIKey == "" && cfg.Embedding.Provider == "openai" {
		cfg.Embedding.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.Sources.SemanticAPIKey == "" {
		cfg.Sources.SemanticAPIKey = os.Getenv("SEMANTIC_SCHOLAR_API_KEY")
	}
}

// setup loads configuration, installs the logger and starts the metrics endpoint
func setup(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := logging.New(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	appConfig, appLogger = cfg, logger

	if verbose {
		if used := viper.ConfigFileUsed(); used != "" {
			logger.Debug("using config file", "path", used)
		}
	}

	if cfg.Metrics.Addr != "" {
		go func() {
			if err := metrics.Serve(cmd.Context(), cfg.Metrics.Addr, logger); err != nil {
				logger.Error("metrics endpoint failed", "addr", cfg.Metrics.Addr, "error", err)
			}
		}()
	}
	return nil
}
