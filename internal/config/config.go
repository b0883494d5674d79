// Package config loads and validates configuration at startup.
// Fail-fast: if a required value is missing, Load returns an error and the
// process exits.
//
// Values come from environment variables prefixed with RECOMMENDER_ (for
// example RECOMMENDER_REFRESH_INTERVAL=5m) and, optionally, from a config
// file whose keys are the same names in lower case. DATABASE_URL and
// REDIS_URL are also read without the prefix, as in the other jobmate
// services.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "RECOMMENDER"

// Config holds all runtime configuration for the recommender service.
type Config struct {
	Port        string `mapstructure:"port"`
	GRPCPort    string `mapstructure:"grpc_port"`
	DatabaseURL string `mapstructure:"database_url"`
	RedisURL    string `mapstructure:"redis_url"`

	DataDir         string        `mapstructure:"data_dir"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
	RemoteTimeout   time.Duration `mapstructure:"remote_timeout"`
	FetchTimeout    time.Duration `mapstructure:"fetch_timeout"`
	CatalogTimeout  time.Duration `mapstructure:"catalog_timeout"`
	MaxShrinkRatio  float64       `mapstructure:"max_shrink_ratio"`

	TopN               int `mapstructure:"top_n"`
	SearchK            int `mapstructure:"search_k"`
	HNSWM              int `mapstructure:"hnsw_m"`
	HNSWEfConstruction int `mapstructure:"hnsw_ef_construction"`
	HNSWEfSearch       int `mapstructure:"hnsw_ef_search"`

	MinioEndpoint  string `mapstructure:"minio_endpoint"`
	MinioAccessKey string `mapstructure:"minio_access_key"`
	MinioSecretKey string `mapstructure:"minio_secret_key"`
	MinioUseSSL    bool   `mapstructure:"minio_use_ssl"`
	IndexBucket    string `mapstructure:"index_bucket"`
	IndexKey       string `mapstructure:"index_key"`

	EmbeddingsProvider string `mapstructure:"embeddings_provider"`
	EmbeddingsModel    string `mapstructure:"embeddings_model"`
	EmbeddingsAPIKey   string `mapstructure:"embeddings_api_key"`
	EmbeddingsBaseURL  string `mapstructure:"embeddings_base_url"`
	EmbedCacheSize     int    `mapstructure:"embed_cache_size"`

	SkillsFile string `mapstructure:"skills_file"`
	LogJSON    bool   `mapstructure:"log_json"`
	LogDebug   bool   `mapstructure:"log_debug"`
}

var defaults = map[string]any{
	"port":         "8083",
	"grpc_port":    "9083",
	"database_url": "",
	"redis_url":    "",

	"data_dir":         "./data",
	"refresh_interval": "15m",
	"remote_timeout":   "10s",
	"fetch_timeout":    "5m",
	"catalog_timeout":  "1m",
	"max_shrink_ratio": 0.5,

	"top_n":                20,
	"search_k":             20,
	"hnsw_m":               32,
	"hnsw_ef_construction": 200,
	"hnsw_ef_search":       64,

	"minio_endpoint":   "localhost:9000",
	"minio_access_key": "",
	"minio_secret_key": "",
	"minio_use_ssl":    false,
	"index_bucket":     "",
	"index_key":        "faiss/jobs.index",

	"embeddings_provider": "openai",
	"embeddings_model":    "text-embedding-3-small",
	"embeddings_api_key":  "",
	"embeddings_base_url": "",
	"embed_cache_size":    512,

	"skills_file": "",
	"log_json":    false,
	"log_debug":   false,
}

// New returns a viper instance wired for the recommender's keys. Callers may
// bind command-line flags to it before calling Load.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	_ = v.BindEnv("database_url", envPrefix+"_DATABASE_URL", "DATABASE_URL")
	_ = v.BindEnv("redis_url", envPrefix+"_REDIS_URL", "REDIS_URL")
	return v
}

// Load reads the optional config file and the environment from v and returns
// a validated Config.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, fmt.Errorf("DATABASE_URL is required"))
	}
	if c.IndexBucket == "" {
		errs = append(errs, fmt.Errorf("%s_INDEX_BUCKET is required", envPrefix))
	}
	if c.MinioEndpoint == "" {
		errs = append(errs, fmt.Errorf("%s_MINIO_ENDPOINT is required", envPrefix))
	}
	if c.RefreshInterval <= 0 {
		errs = append(errs, fmt.Errorf("refresh interval must be positive, got %s", c.RefreshInterval))
	}
	if c.MaxShrinkRatio < 0 || c.MaxShrinkRatio > 1 {
		errs = append(errs, fmt.Errorf("max shrink ratio must be within [0, 1], got %v", c.MaxShrinkRatio))
	}
	if c.TopN <= 0 {
		errs = append(errs, fmt.Errorf("top_n must be positive, got %d", c.TopN))
	}
	if c.HNSWM < 2 || c.HNSWEfConstruction <= 0 || c.HNSWEfSearch <= 0 {
		errs = append(errs, fmt.Errorf("invalid HNSW parameters m=%d efConstruction=%d efSearch=%d",
			c.HNSWM, c.HNSWEfConstruction, c.HNSWEfSearch))
	}
	switch strings.ToLower(c.EmbeddingsProvider) {
	case "openai", "gemini":
	default:
		errs = append(errs, fmt.Errorf("unsupported embeddings provider %q", c.EmbeddingsProvider))
	}
	if c.EmbedCacheSize < 0 {
		errs = append(errs, fmt.Errorf("embed cache size must not be negative"))
	}
	return errors.Join(errs...)
}
