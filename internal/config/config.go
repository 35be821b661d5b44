// Package config loads the service configuration: YAML file, .env
// files, and environment variable overrides, in that order of
// increasing priority.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	ragerrors "github.com/gardenhotel/reviewrag/internal/errors"
	"github.com/gardenhotel/reviewrag/internal/llm"
)

// Config is the complete service configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Logging    LoggingConfig    `yaml:"logging"`
	Data       DataConfig       `yaml:"data"`
	Models     ModelsConfig     `yaml:"models"`
	DashScope  DashScopeConfig  `yaml:"dashscope"`
	DashVector DashVectorConfig `yaml:"dashvector"`
	Insforge   InsforgeConfig   `yaml:"insforge"`

	// Today is the reference date (YYYY-MM-DD) for recency scoring.
	// Empty keeps the corpus snapshot date.
	Today string `yaml:"today"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// LoggingConfig configures slog output.
type LoggingConfig struct {
	Level    string `yaml:"level"`
	FilePath string `yaml:"file_path"`
}

// DataConfig locates the on-disk artifacts. Empty per-file paths
// default to well-known names under Dir.
type DataConfig struct {
	Dir           string `yaml:"dir"`
	IndexPath     string `yaml:"index_path"`
	SummaryPath   string `yaml:"summary_path"`
	CommentsPath  string `yaml:"comments_path"`
	ReversePath   string `yaml:"reverse_path"`
	ReviewsSQLite string `yaml:"reviews_sqlite"`
	StopwordsPath string `yaml:"stopwords_path"`
}

// ModelsConfig names the models per pipeline stage.
type ModelsConfig struct {
	Recognition         string `yaml:"recognition"`
	Detection           string `yaml:"detection"`
	ExpansionHyde       string `yaml:"expansion_hyde"`
	Generation          string `yaml:"generation"`
	Embedding           string `yaml:"embedding"`
	EmbeddingDimensions int    `yaml:"embedding_dimensions"`
	Rerank              string `yaml:"rerank"`
}

// DashScopeConfig configures the model service endpoints.
type DashScopeConfig struct {
	APIKey    string `yaml:"api_key"`
	BaseURL   string `yaml:"base_url"`
	RerankURL string `yaml:"rerank_url"`
}

// DashVectorConfig configures the remote vector collections. With
// Local set, the service uses the embedded HNSW stores under
// Data.Dir instead.
type DashVectorConfig struct {
	Local              bool   `yaml:"local"`
	APIKey             string `yaml:"api_key"`
	Endpoint           string `yaml:"endpoint"`
	CommentsCollection string `yaml:"comments_collection"`
	ReverseCollection  string `yaml:"reverse_collection"`
}

// InsforgeConfig configures the REST review loader. Unset means the
// review table loads from the sqlite file instead.
type InsforgeConfig struct {
	BaseURL string `yaml:"base_url"`
	AnonKey string `yaml:"anon_key"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server:  ServerConfig{Addr: ":8000"},
		Logging: LoggingConfig{Level: "info"},
		Data:    DataConfig{Dir: "data"},
		Models: ModelsConfig{
			Recognition:         "tongyi-intent-detect-v3",
			Detection:           "qwen-plus",
			ExpansionHyde:       "qwen-flash",
			Generation:          "deepseek-v3.2",
			Embedding:           "text-embedding-v4",
			EmbeddingDimensions: llm.DefaultEmbeddingDimensions,
			Rerank:              "qwen3-rerank",
		},
		DashScope: DashScopeConfig{
			BaseURL:   llm.DefaultBaseURL,
			RerankURL: llm.DefaultRerankURL,
		},
		DashVector: DashVectorConfig{
			CommentsCollection: "comment_database",
			ReverseCollection:  "reverse_query_database",
		},
	}
}

// Load reads the configuration. A missing path uses the defaults; an
// existing file overlays them; environment variables win last. .env
// files in the working directory are loaded first so local setups can
// keep keys out of the shell.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, ragerrors.New(ragerrors.ErrCodeConfigNotFound,
					fmt.Sprintf("config file not found: %s", path), err)
			}
			return nil, ragerrors.Wrap(ragerrors.ErrCodeConfigInvalid, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, ragerrors.New(ragerrors.ErrCodeConfigInvalid,
				fmt.Sprintf("parse %s: %v", path, err), err)
		}
	}

	cfg.applyEnv()
	cfg.applyDataDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	setIfSet := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setIfSet(&c.DashScope.APIKey, "DASHSCOPE_API_KEY")
	setIfSet(&c.DashVector.APIKey, "DASHVECTOR_API_KEY")
	setIfSet(&c.DashVector.Endpoint, "DASHVECTOR_ENDPOINT")
	setIfSet(&c.Insforge.BaseURL, "INSFORGE_BASE_URL")
	setIfSet(&c.Insforge.AnonKey, "INSFORGE_ANON_KEY")
	setIfSet(&c.Server.Addr, "REVIEWRAG_ADDR")
	setIfSet(&c.Logging.Level, "REVIEWRAG_LOG_LEVEL")
	setIfSet(&c.Data.Dir, "REVIEWRAG_DATA_DIR")
}

func (c *Config) applyDataDefaults() {
	def := func(dst *string, name string) {
		if *dst == "" {
			*dst = filepath.Join(c.Data.Dir, name)
		}
	}
	def(&c.Data.IndexPath, "inverted_index.gob")
	def(&c.Data.SummaryPath, "summary_store.gob")
	def(&c.Data.CommentsPath, "comments_store.gob")
	def(&c.Data.ReversePath, "reverse_store.gob")
	def(&c.Data.ReviewsSQLite, "comments.db")
}

// Validate checks the loaded configuration.
func (c *Config) Validate() error {
	if c.DashScope.APIKey == "" {
		return ragerrors.ConfigError("dashscope api key is required (DASHSCOPE_API_KEY)", nil)
	}
	if !c.DashVector.Local {
		if c.DashVector.APIKey == "" || c.DashVector.Endpoint == "" {
			return ragerrors.ConfigError(
				"dashvector api key and endpoint are required unless dashvector.local is set", nil)
		}
	}
	if c.Models.EmbeddingDimensions <= 0 {
		return ragerrors.ConfigError("embedding_dimensions must be positive", nil)
	}
	if _, err := c.ReferenceDate(); err != nil {
		return err
	}
	return nil
}

// ReferenceDate parses Today; a zero time means "use the default".
func (c *Config) ReferenceDate() (time.Time, error) {
	if c.Today == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", c.Today)
	if err != nil {
		return time.Time{}, ragerrors.ConfigError(
			fmt.Sprintf("today must be YYYY-MM-DD, got %q", c.Today), err)
	}
	return t, nil
}
