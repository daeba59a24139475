// Package config loads and validates shardidx configuration from YAML files
// with environment-variable overrides. A .env file in the working directory
// is loaded first, so overrides can live next to the corpus.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	apperrors "github.com/Adithya-Monish-Kumar-K/shardidx/pkg/errors"
)

// Config is the top-level configuration.
type Config struct {
	Index    IndexConfig    `yaml:"index"`
	Query    QueryConfig    `yaml:"query"`
	Postgres PostgresConfig `yaml:"postgres"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// IndexConfig controls shard building and merging.
type IndexConfig struct {
	OutputDir        string   `yaml:"outputDir"`
	Includes         []string `yaml:"includes"`
	Excludes         []string `yaml:"excludes"`
	HTML             string   `yaml:"html"`
	AnalyzeWorkers   int      `yaml:"analyzeWorkers"`
	MergeParallelism int      `yaml:"mergeParallelism"`
	KeepShards       bool     `yaml:"keepShards"`
	BoltMetadata     bool     `yaml:"boltMetadata"`
}

// QueryConfig controls retrieval.
type QueryConfig struct {
	// MetadataBackend is "json" (docs_meta_data.txt) or "bolt".
	MetadataBackend string `yaml:"metadataBackend"`
	SortResults     bool   `yaml:"sortResults"`
}

// PostgresConfig holds PostgreSQL connection parameters for the optional
// metadata export.
type PostgresConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds the broker list and topic for index-complete events.
type KafkaConfig struct {
	Enabled       bool     `yaml:"enabled"`
	Brokers       []string `yaml:"brokers"`
	IndexComplete string   `yaml:"indexCompleteTopic"`
}

// RedisConfig holds Redis connection and query-cache parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls Prometheus exposition. Port starts a scrape
// endpoint for the life of the process; Textfile writes the final values
// for a node-exporter textfile collector.
type MetricsConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Port     int    `yaml:"port"`
	Textfile string `yaml:"textfile"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides on top of the defaults.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Index: IndexConfig{
			OutputDir:        "index",
			Includes:         []string{"**/*"},
			Excludes:         []string{"**/.*", "**/.*/**"},
			HTML:             "auto",
			AnalyzeWorkers:   4,
			MergeParallelism: 1,
			KeepShards:       true,
		},
		Query: QueryConfig{
			MetadataBackend: "json",
			SortResults:     true,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "shardidx",
			User:            "shardidx",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    5,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			IndexComplete: "index.complete",
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 4,
			CacheTTL: 10 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Port: 9090,
		},
	}
}

// Validate rejects values the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Index.OutputDir == "" {
		return apperrors.New(apperrors.ErrInvalidConfig, "config", "index.outputDir is empty")
	}
	switch c.Index.HTML {
	case "auto", "always", "never":
	default:
		return apperrors.Newf(apperrors.ErrInvalidConfig, "config", "index.html must be auto, always or never, got %q", c.Index.HTML)
	}
	if c.Index.AnalyzeWorkers < 1 {
		return apperrors.Newf(apperrors.ErrInvalidConfig, "config", "index.analyzeWorkers must be positive, got %d", c.Index.AnalyzeWorkers)
	}
	switch c.Query.MetadataBackend {
	case "json":
	case "bolt":
		if !c.Index.BoltMetadata {
			return apperrors.New(apperrors.ErrInvalidConfig, "config", "query.metadataBackend bolt requires index.boltMetadata")
		}
	default:
		return apperrors.Newf(apperrors.ErrInvalidConfig, "config", "unknown query.metadataBackend %q", c.Query.MetadataBackend)
	}
	if c.Kafka.Enabled && (len(c.Kafka.Brokers) == 0 || c.Kafka.IndexComplete == "") {
		return apperrors.New(apperrors.ErrInvalidConfig, "config", "kafka enabled without brokers or topic")
	}
	return nil
}

// applyEnvOverrides reads SHARDIDX_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SHARDIDX_OUTPUT_DIR"); v != "" {
		cfg.Index.OutputDir = v
	}
	if v := os.Getenv("SHARDIDX_HTML"); v != "" {
		cfg.Index.HTML = v
	}
	if v := os.Getenv("SHARDIDX_ANALYZE_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Index.AnalyzeWorkers = n
		}
	}
	if v := os.Getenv("SHARDIDX_MERGE_PARALLELISM"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Index.MergeParallelism = n
		}
	}
	if v := os.Getenv("SHARDIDX_METADATA_BACKEND"); v != "" {
		cfg.Query.MetadataBackend = v
	}
	if v := os.Getenv("SHARDIDX_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("SHARDIDX_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("SHARDIDX_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("SHARDIDX_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("SHARDIDX_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("SHARDIDX_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("SHARDIDX_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("SHARDIDX_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SHARDIDX_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
