package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the application configuration loaded from files and environment variables.
type Config struct {
	AppName        string `mapstructure:"app_name"`
	Env            string `mapstructure:"app_env"`
	LogLevel       string `mapstructure:"log_level"`
	ProvidersFile  string `mapstructure:"providers_file"`
	PublishersFile string `mapstructure:"publishers_file"`

	ResultsPath    string `mapstructure:"results_path"`
	FlashcardsPath string `mapstructure:"flashcards_path"`

	IndexType            string        `mapstructure:"index_type"`
	IndexDir             string        `mapstructure:"index_dir"`
	IndexCollection      string        `mapstructure:"index_collection"`
	IndexTTLSeconds      int64         `mapstructure:"index_ttl_seconds"`
	IndexCleanupSeconds  int64         `mapstructure:"index_cleanup_interval_seconds"`
	IndexTTL             time.Duration `mapstructure:"-"`
	IndexCleanupInterval time.Duration `mapstructure:"-"`
	DedupThreshold       float64       `mapstructure:"dedup_threshold"`
	DedupTopK            int           `mapstructure:"dedup_top_k"`
	MinRelevance         float64       `mapstructure:"min_relevance"`
	EnrichMetadata       bool          `mapstructure:"enrich_metadata"`
	HTTPTimeoutSeconds   int64         `mapstructure:"http_timeout_seconds"`
	HTTPTimeout          time.Duration `mapstructure:"-"`
	OllamaHost           string        `mapstructure:"ollama_host"`
	LLMModel             string        `mapstructure:"llm_model"`
	EmbeddingModel       string        `mapstructure:"embedding_model"`
	LLMTimeoutSeconds    int64         `mapstructure:"llm_timeout_seconds"`
	LLMTimeout           time.Duration `mapstructure:"-"`
	WebAddr              string        `mapstructure:"web_addr"`
}

// Load reads configuration from environment variables and, when path is not
// empty, from the given config file.
func Load(path string) (*Config, error) {
	_ = godotenv.Load("configs/.env")

	v := viper.New()

	v.SetDefault("app_name", "samvad-flashcards")
	v.SetDefault("app_env", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("providers_file", "./configs/providers.yaml")
	v.SetDefault("publishers_file", "")
	v.SetDefault("results_path", "resultsgen.json")
	v.SetDefault("flashcards_path", "flashcards.json")
	v.SetDefault("index_type", "bbolt")
	v.SetDefault("index_dir", "vectordb")
	v.SetDefault("index_collection", "news")
	v.SetDefault("index_ttl_seconds", int64((30*24*time.Hour)/time.Second))
	v.SetDefault("index_cleanup_interval_seconds", int64((12*time.Hour)/time.Second))
	v.SetDefault("dedup_threshold", 0.92)
	v.SetDefault("dedup_top_k", 2)
	v.SetDefault("min_relevance", 0.0)
	v.SetDefault("enrich_metadata", false)
	v.SetDefault("http_timeout_seconds", 15)
	v.SetDefault("ollama_host", "")
	v.SetDefault("llm_model", "mistral")
	v.SetDefault("embedding_model", "all-minilm")
	v.SetDefault("llm_timeout_seconds", 300)
	v.SetDefault("web_addr", ":8501")

	if strings.TrimSpace(path) != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) normalize() error {
	if strings.TrimSpace(cfg.ResultsPath) == "" {
		return fmt.Errorf("results_path is required")
	}
	if strings.TrimSpace(cfg.FlashcardsPath) == "" {
		return fmt.Errorf("flashcards_path is required")
	}
	if strings.TrimSpace(cfg.IndexDir) == "" {
		return fmt.Errorf("index_dir is required")
	}
	if cfg.DedupThreshold <= 0 || cfg.DedupThreshold > 1 {
		return fmt.Errorf("invalid dedup_threshold %v (must be in (0, 1])", cfg.DedupThreshold)
	}
	if cfg.DedupTopK <= 0 {
		return fmt.Errorf("invalid dedup_top_k (must be positive)")
	}
	if cfg.MinRelevance < -1 || cfg.MinRelevance > 1 {
		return fmt.Errorf("invalid min_relevance %v (must be in [-1, 1])", cfg.MinRelevance)
	}
	if cfg.IndexTTLSeconds <= 0 {
		return fmt.Errorf("invalid index_ttl_seconds (must be positive seconds)")
	}
	if cfg.IndexCleanupSeconds <= 0 {
		return fmt.Errorf("invalid index_cleanup_interval_seconds (must be positive seconds)")
	}
	if cfg.HTTPTimeoutSeconds <= 0 {
		return fmt.Errorf("invalid http_timeout_seconds (must be positive seconds)")
	}
	if cfg.LLMTimeoutSeconds <= 0 {
		return fmt.Errorf("invalid llm_timeout_seconds (must be positive seconds)")
	}
	if strings.TrimSpace(cfg.LLMModel) == "" || strings.TrimSpace(cfg.EmbeddingModel) == "" {
		return fmt.Errorf("llm_model and embedding_model are required")
	}

	cfg.IndexTTL = time.Duration(cfg.IndexTTLSeconds) * time.Second
	cfg.IndexCleanupInterval = time.Duration(cfg.IndexCleanupSeconds) * time.Second
	cfg.HTTPTimeout = time.Duration(cfg.HTTPTimeoutSeconds) * time.Second
	cfg.LLMTimeout = time.Duration(cfg.LLMTimeoutSeconds) * time.Second
	return nil
}
