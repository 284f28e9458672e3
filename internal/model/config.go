package model

import "time"

// Config holds every tunable of the verification engine
type Config struct {
	Cache        CacheConfig        `yaml:"cache" mapstructure:"cache"`
	Embedding    EmbeddingConfig    `yaml:"embedding" mapstructure:"embedding"`
	Store        StoreConfig        `yaml:"store" mapstructure:"store"`
	Sources      SourcesConfig      `yaml:"sources" mapstructure:"sources"`
	Ingest       IngestConfig       `yaml:"ingest" mapstructure:"ingest"`
	Expansion    ExpansionConfig    `yaml:"expansion" mapstructure:"expansion"`
	Retrieval    RetrievalConfig    `yaml:"retrieval" mapstructure:"retrieval"`
	Gate         GateConfig         `yaml:"gate" mapstructure:"gate"`
	DynamicFetch DynamicFetchConfig `yaml:"dynamic_fetch" mapstructure:"dynamic_fetch"`
	Adjudicator  AdjudicatorConfig  `yaml:"adjudicator" mapstructure:"adjudicator"`
	Decision     DecisionConfig     `yaml:"decision" mapstructure:"decision"`
	LLM          LLMConfig          `yaml:"llm" mapstructure:"llm"`
	HTTP         HTTPConfig         `yaml:"http" mapstructure:"http"`
	Concurrency  ConcurrencyConfig  `yaml:"concurrency" mapstructure:"concurrency"`
	Verify       VerifyConfig       `yaml:"verify" mapstructure:"verify"`
	Logging      LoggingConfig      `yaml:"logging" mapstructure:"logging"`
	Metrics      MetricsConfig      `yaml:"metrics" mapstructure:"metrics"`
}

// CacheConfig controls the memory + file cache
type CacheConfig struct {
	Enabled         bool          `yaml:"enabled" mapstructure:"enabled"`
	Dir             string        `yaml:"dir" mapstructure:"dir"`
	MemoryTTL       time.Duration `yaml:"memory_ttl" mapstructure:"memory_ttl"`
	CleanupInterval time.Duration `yaml:"cleanup_interval" mapstructure:"cleanup_interval"`
	EmbeddingTTL    time.Duration `yaml:"embedding_ttl" mapstructure:"embedding_ttl"`
	LLMTTL          time.Duration `yaml:"llm_ttl" mapstructure:"llm_ttl"`
	FetchTTL        time.Duration `yaml:"fetch_ttl" mapstructure:"fetch_ttl"`
	TranslationTTL  time.Duration `yaml:"translation_ttl" mapstructure:"translation_ttl"`
	ExpansionTTL    time.Duration `yaml:"expansion_ttl" mapstructure:"expansion_ttl"`
}

// EmbeddingConfig selects and tunes the embedding provider
type EmbeddingConfig struct {
	Provider    string        `yaml:"provider" mapstructure:"provider"` // openai, http
	Model       string        `yaml:"model" mapstructure:"model"`
	BaseURL     string        `yaml:"base_url" mapstructure:"base_url"`
	APIKey      string        `yaml:"api_key,omitempty" mapstructure:"api_key"`
	Dimensions  int           `yaml:"dimensions" mapstructure:"dimensions"` // 0 = provider default
	BatchSize   int           `yaml:"batch_size" mapstructure:"batch_size"`
	MaxRetries  int           `yaml:"max_retries" mapstructure:"max_retries"`
	BaseBackoff time.Duration `yaml:"base_backoff" mapstructure:"base_backoff"`
	Concurrency int           `yaml:"concurrency" mapstructure:"concurrency"`
	Timeout     time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// StoreConfig selects the evidence store backend
type StoreConfig struct {
	Driver    string `yaml:"driver" mapstructure:"driver"` // postgres, sqlite
	DSN       string `yaml:"dsn" mapstructure:"dsn"`
	Table     string `yaml:"table" mapstructure:"table"`
	Dimension int    `yaml:"dimension" mapstructure:"dimension"` // 0 = auto-detect
	PageSize  int    `yaml:"page_size" mapstructure:"page_size"`
}

// SourcesConfig configures the bibliographic fetchers
type SourcesConfig struct {
	Enabled        []string           `yaml:"enabled" mapstructure:"enabled"`
	Timeout        time.Duration      `yaml:"timeout" mapstructure:"timeout"`
	MaxAttempts    int                `yaml:"max_attempts" mapstructure:"max_attempts"`
	BaseBackoff    time.Duration      `yaml:"base_backoff" mapstructure:"base_backoff"`
	RequestsPerSec float64            `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst          int                `yaml:"burst" mapstructure:"burst"`
	HostRates      map[string]float64 `yaml:"host_rates,omitempty" mapstructure:"host_rates"` // per-host requests/second overrides
	PolitenessWait time.Duration      `yaml:"politeness_delay" mapstructure:"politeness_delay"`
	RespectRobots  bool               `yaml:"respect_robots" mapstructure:"respect_robots"`
	RawDir         string             `yaml:"raw_dir" mapstructure:"raw_dir"`
	LogFile        string             `yaml:"log_file" mapstructure:"log_file"`
	Mailto         string             `yaml:"mailto" mapstructure:"mailto"`
	CrossrefURL    string             `yaml:"crossref_url" mapstructure:"crossref_url"`
	OpenAlexURL    string             `yaml:"openalex_url" mapstructure:"openalex_url"`
	ArxivURL       string             `yaml:"arxiv_url" mapstructure:"arxiv_url"`
	SemanticURL    string             `yaml:"semantic_scholar_url" mapstructure:"semantic_scholar_url"`
	SemanticAPIKey string             `yaml:"semantic_scholar_api_key,omitempty" mapstructure:"semantic_scholar_api_key"`
}

// IngestConfig controls chunking
type IngestConfig struct {
	WindowWords  int `yaml:"window_words" mapstructure:"window_words"`
	OverlapWords int `yaml:"overlap_words" mapstructure:"overlap_words"`
}

// ExpansionConfig controls query expansion and translation
type ExpansionConfig struct {
	Enabled        bool   `yaml:"enabled" mapstructure:"enabled"`
	TargetLanguage string `yaml:"target_language" mapstructure:"target_language"`
	MaxTerms       int    `yaml:"max_terms" mapstructure:"max_terms"`
	MaxVariants    int    `yaml:"max_variants" mapstructure:"max_variants"`
}

// RetrievalConfig controls nearest-neighbor retrieval and scoring
type RetrievalConfig struct {
	K            int     `yaml:"k" mapstructure:"k"`
	MinRelevance float64 `yaml:"min_relevance" mapstructure:"min_relevance"`
}

// GateConfig holds the quality gate thresholds
type GateConfig struct {
	MinMeanRelevance  float64 `yaml:"min_mean_relevance" mapstructure:"min_mean_relevance"`
	MinMeanSimilarity float64 `yaml:"min_mean_similarity" mapstructure:"min_mean_similarity"`
	MinMaxRelevance   float64 `yaml:"min_max_relevance" mapstructure:"min_max_relevance"`
}

// DynamicFetchConfig controls on-demand fetching
type DynamicFetchConfig struct {
	Enabled         bool    `yaml:"enabled" mapstructure:"enabled"`
	PerSourceLimit  int     `yaml:"per_source_limit" mapstructure:"per_source_limit"`
	TopN            int     `yaml:"top_n" mapstructure:"top_n"`
	DirectRelevance float64 `yaml:"direct_relevance" mapstructure:"direct_relevance"`
	SourceFileLabel string  `yaml:"source_file_label" mapstructure:"source_file_label"`
}

// AdjudicatorConfig controls prompt construction and response parsing
type AdjudicatorConfig struct {
	PromptBudget      int     `yaml:"prompt_budget" mapstructure:"prompt_budget"`
	SnippetChars      int     `yaml:"snippet_chars" mapstructure:"snippet_chars"`
	TranslateSnippets bool    `yaml:"translate_snippets" mapstructure:"translate_snippets"`
	UnknownLabel      string  `yaml:"unknown_label" mapstructure:"unknown_label"`
	Temperature       float32 `yaml:"temperature" mapstructure:"temperature"`
	MaxTokens         int     `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// DecisionConfig holds the confidence blending policy
type DecisionConfig struct {
	LLMLedThreshold  float64 `yaml:"llm_led_threshold" mapstructure:"llm_led_threshold"`
	ValidTier        float64 `yaml:"valid_tier" mapstructure:"valid_tier"`
	PartialTier      float64 `yaml:"partial_tier" mapstructure:"partial_tier"`
	LLMWeight        float64 `yaml:"llm_weight" mapstructure:"llm_weight"`
	RelevanceWeight  float64 `yaml:"relevance_weight" mapstructure:"relevance_weight"`
	SimilarityWeight float64 `yaml:"similarity_weight" mapstructure:"similarity_weight"`
}

// LLMConfig selects the language model provider
type LLMConfig struct {
	Provider       string   `yaml:"provider" mapstructure:"provider"` // openai, anthropic, ollama
	Model          string   `yaml:"model" mapstructure:"model"`
	FallbackModels []string `yaml:"fallback_models" mapstructure:"fallback_models"`
	APIKey         string   `yaml:"api_key,omitempty" mapstructure:"api_key"`
	BaseURL        string   `yaml:"base_url" mapstructure:"base_url"`
	Timeout        int      `yaml:"timeout" mapstructure:"timeout"` // seconds
	MaxTokens      int      `yaml:"max_tokens" mapstructure:"max_tokens"`
	MaxAttempts    int      `yaml:"max_attempts" mapstructure:"max_attempts"`
}

// HTTPConfig holds outbound HTTP settings shared by fetchers and providers
type HTTPConfig struct {
	UserAgent    string `yaml:"user_agent" mapstructure:"user_agent"`
	MaxBodyBytes int64  `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	HTTPProxy    string `yaml:"http_proxy" mapstructure:"http_proxy"`
	HTTPSProxy   string `yaml:"https_proxy" mapstructure:"https_proxy"`
	NoProxy      string `yaml:"no_proxy" mapstructure:"no_proxy"`
}

// ConcurrencyConfig bounds the worker pools
type ConcurrencyConfig struct {
	Workers        int `yaml:"workers" mapstructure:"workers"`
	SourceWorkers  int `yaml:"source_workers" mapstructure:"source_workers"`
	VariantWorkers int `yaml:"variant_workers" mapstructure:"variant_workers"`
}

// VerifyConfig holds the end-to-end verification budget
type VerifyConfig struct {
	Timeout      time.Duration `yaml:"timeout" mapstructure:"timeout"`
	StageTimeout time.Duration `yaml:"stage_timeout" mapstructure:"stage_timeout"`
}

// LoggingConfig controls the slog handler
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"` // pretty, json
}

// MetricsConfig controls the prometheus endpoint
type MetricsConfig struct {
	Addr string `yaml:"addr" mapstructure:"addr"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Cache: CacheConfig{
			Enabled:         true,
			Dir:             ".claimcheck/cache",
			MemoryTTL:       30 * time.Minute,
			CleanupInterval: 10 * time.Minute,
			EmbeddingTTL:    7 * 24 * time.Hour,
			LLMTTL:          24 * time.Hour,
			FetchTTL:        6 * time.Hour,
			TranslationTTL:  7 * 24 * time.Hour,
			ExpansionTTL:    6 * time.Hour,
		},
		Embedding: EmbeddingConfig{
			Provider:    "openai",
			Model:       "text-embedding-3-small",
			BatchSize:   32,
			MaxRetries:  3,
			BaseBackoff: time.Second,
			Concurrency: 4,
			Timeout:     60 * time.Second,
		},
		Store: StoreConfig{
			Driver:   "sqlite",
			DSN:      ".claimcheck/evidence.db",
			Table:    "evidence_chunks",
			PageSize: 200,
		},
		Sources: SourcesConfig{
			Enabled:        []string{"crossref", "openalex", "semantic_scholar", "arxiv"},
			Timeout:        30 * time.Second,
			MaxAttempts:    5,
			BaseBackoff:    time.Second,
			RequestsPerSec: 2,
			Burst:          2,
			HostRates:      map[string]float64{"export.arxiv.org": 0.34},
			PolitenessWait: 500 * time.Millisecond,
			RawDir:         ".claimcheck/raw",
			LogFile:        ".claimcheck/ingestion_log.csv",
			CrossrefURL:    "https://api.crossref.org",
			OpenAlexURL:    "https://api.openalex.org",
			ArxivURL:       "https://export.arxiv.org",
			SemanticURL:    "https://api.semanticscholar.org",
		},
		Ingest: IngestConfig{
			WindowWords:  300,
			OverlapWords: 30,
		},
		Expansion: ExpansionConfig{
			Enabled:        true,
			TargetLanguage: "en",
			MaxTerms:       12,
			MaxVariants:    6,
		},
		Retrieval: RetrievalConfig{
			K:            5,
			MinRelevance: 0.25,
		},
		Gate: GateConfig{
			MinMeanRelevance:  0.30,
			MinMeanSimilarity: 0.30,
			MinMaxRelevance:   0.45,
		},
		DynamicFetch: DynamicFetchConfig{
			Enabled:         true,
			PerSourceLimit:  10,
			TopN:            10,
			DirectRelevance: 0.8,
			SourceFileLabel: "dynamic_fetch",
		},
		Adjudicator: AdjudicatorConfig{
			PromptBudget:      6000,
			SnippetChars:      600,
			TranslateSnippets: false,
			UnknownLabel:      "HOAX",
			Temperature:       0.1,
			MaxTokens:         600,
		},
		Decision: DecisionConfig{
			LLMLedThreshold:  0.75,
			ValidTier:        0.70,
			PartialTier:      0.40,
			LLMWeight:        0.5,
			RelevanceWeight:  0.3,
			SimilarityWeight: 0.2,
		},
		LLM: LLMConfig{
			Provider:       "openai",
			Model:          "gpt-4o-mini",
			FallbackModels: []string{"gpt-4o", "gpt-4.1-mini"},
			Timeout:        60,
			MaxTokens:      800,
			MaxAttempts:    2,
		},
		HTTP: HTTPConfig{
			UserAgent:    "claimcheck/0.3 (+https://github.com/ppiankov/claimcheck)",
			MaxBodyBytes: 10_000_000,
		},
		Concurrency: ConcurrencyConfig{
			Workers:        4,
			SourceWorkers:  4,
			VariantWorkers: 4,
		},
		Verify: VerifyConfig{
			Timeout:      90 * time.Second,
			StageTimeout: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "pretty",
		},
	}
}
