package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/searchterm-cli/internal/cost"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	GoogleAds GoogleAdsConfig `yaml:"google_ads" mapstructure:"google_ads"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Accounts  AccountsConfig  `yaml:"accounts" mapstructure:"accounts"`
	Output    OutputConfig    `yaml:"output" mapstructure:"output"`
	Classify  ClassifyConfig  `yaml:"classify" mapstructure:"classify"`
	Pricing   PricingConfig   `yaml:"pricing" mapstructure:"pricing"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the classification cache / run log backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// GoogleAdsConfig holds Google Ads API settings. Credentials (client id,
// client secret, refresh token, developer token) live in a separate YAML
// file compatible with the standard google-ads.yaml layout.
type GoogleAdsConfig struct {
	CredentialsPath string `yaml:"credentials_path" mapstructure:"credentials_path"`
	BaseURL         string `yaml:"base_url" mapstructure:"base_url"`
	APIVersion      string `yaml:"api_version" mapstructure:"api_version"`
}

// AnthropicConfig holds Anthropic API settings for the LLM fallback.
type AnthropicConfig struct {
	Key                 string `yaml:"key" mapstructure:"key"`
	Model               string `yaml:"model" mapstructure:"model"`
	MaxBatchSize        int    `yaml:"max_batch_size" mapstructure:"max_batch_size"`
	NoBatch             bool   `yaml:"no_batch" mapstructure:"no_batch"`
	SmallBatchThreshold int    `yaml:"small_batch_threshold" mapstructure:"small_batch_threshold"`
	MaxConcurrency      int    `yaml:"max_concurrency" mapstructure:"max_concurrency"`
}

// AccountsConfig locates the account registry file.
type AccountsConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// OutputConfig configures where run artifacts are written.
type OutputConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// ClassifyConfig holds classifier thresholds.
type ClassifyConfig struct {
	BrandConfidence      float64 `yaml:"brand_confidence" mapstructure:"brand_confidence"`
	CompetitorConfidence float64 `yaml:"competitor_confidence" mapstructure:"competitor_confidence"`
	SoldBrandConfidence  float64 `yaml:"sold_brand_confidence" mapstructure:"sold_brand_confidence"`
	LLMConfidence        float64 `yaml:"llm_confidence" mapstructure:"llm_confidence"`
	SimilarityMin        float64 `yaml:"similarity_min" mapstructure:"similarity_min"`
	NgramMinFrequency    int     `yaml:"ngram_min_frequency" mapstructure:"ngram_min_frequency"`
	NgramMaxGeneric      float64 `yaml:"ngram_max_generic" mapstructure:"ngram_max_generic"`
	NgramTopN            int     `yaml:"ngram_top_n" mapstructure:"ngram_top_n"`
}

// PricingConfig holds per-provider pricing rates. Entries override the
// built-in defaults per model.
type PricingConfig struct {
	Anthropic map[string]cost.ModelRate `yaml:"anthropic" mapstructure:"anthropic"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("SEARCHTERM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "data/searchterm.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("accounts.path", "accounts.yaml")
	v.SetDefault("output.dir", "data/google-ads")
	v.SetDefault("google_ads.credentials_path", "google-ads.yaml")
	v.SetDefault("google_ads.base_url", "https://googleads.googleapis.com")
	v.SetDefault("google_ads.api_version", "v18")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_batch_size", 100)
	v.SetDefault("anthropic.small_batch_threshold", 3)
	v.SetDefault("anthropic.max_concurrency", 4)
	v.SetDefault("classify.brand_confidence", 0.95)
	v.SetDefault("classify.competitor_confidence", 0.95)
	v.SetDefault("classify.sold_brand_confidence", 0.90)
	v.SetDefault("classify.llm_confidence", 0.85)
	v.SetDefault("classify.similarity_min", 0.80)
	v.SetDefault("classify.ngram_min_frequency", 10)
	v.SetDefault("classify.ngram_max_generic", 0.30)
	v.SetDefault("classify.ngram_top_n", 30)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
