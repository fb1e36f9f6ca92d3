package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string           `yaml:"environment" default:"development" validate:"required,oneof=development test staging production"`
	Log         LogConfig        `yaml:"log"`
	Server      ServerConfig     `yaml:"server"`
	Metrics     MetricsConfig    `yaml:"metrics"`
	Resolver    ResolverConfig   `yaml:"resolver"`
	Cache       CacheConfig      `yaml:"cache"`
	Retry       RetryConfig      `yaml:"retry"`
	Sources     SourcesConfig    `yaml:"sources"`
	Redis       RedisConfig      `yaml:"redis"`
	ClickHouse  ClickHouseConfig `yaml:"clickhouse"`
	Kafka       KafkaConfig      `yaml:"kafka"`
}

type LogConfig struct {
	Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" default:"json" validate:"oneof=json console"`
	Output string `yaml:"output" default:"stdout"`
	Digest struct {
		Enabled   bool          `yaml:"enabled"`
		Interval  time.Duration `yaml:"interval" default:"1m" validate:"gt=0"`
		Threshold int           `yaml:"threshold" default:"50" validate:"gte=1"`
		Topic     string        `yaml:"topic" default:"finresolve.logs"`
	} `yaml:"digest"`
}

type ServerConfig struct {
	Host            string        `yaml:"host" default:"0.0.0.0"`
	Port            int           `yaml:"port" default:"8080" validate:"gte=1,lte=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
	SlowRequest     time.Duration `yaml:"slow_request" default:"2s"`
	CORS            bool          `yaml:"cors" default:"true"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" default:"true"`
	Path    string `yaml:"path" default:"/metrics"`
}

type ResolverConfig struct {
	MinConfidence            float64       `yaml:"min_confidence" default:"0.7" validate:"gte=0,lte=1"`
	MaxAttempts              int           `yaml:"max_attempts" default:"3" validate:"gte=1,lte=10"`
	SourcePriority           []string      `yaml:"source_priority" default:"[\"local_factsheet\",\"local_index\",\"web_search\",\"text_oracle\",\"fallback\"]" validate:"min=1,dive,oneof=local_factsheet local_index web_search text_oracle fallback"`
	AllowPartial             bool          `yaml:"allow_partial" default:"true"`
	EnableConflictResolution bool          `yaml:"enable_conflict_resolution" default:"true"`
	PerInstrumentTimeout     time.Duration `yaml:"per_instrument_timeout" default:"10s" validate:"gt=0"`
	BatchSize                int           `yaml:"batch_size" default:"5" validate:"gte=1"`
	BatchDelay               time.Duration `yaml:"batch_delay" default:"100ms"`
}

type CacheLimits struct {
	MaxEntries int           `yaml:"max_entries" validate:"gte=1"`
	TTL        time.Duration `yaml:"ttl" validate:"gt=0"`
}

type CacheConfig struct {
	Factsheet       CacheLimits   `yaml:"factsheet"`
	Fund            CacheLimits   `yaml:"fund"`
	Portfolio       CacheLimits   `yaml:"portfolio"`
	Resolution      CacheLimits   `yaml:"resolution"`
	JanitorInterval time.Duration `yaml:"janitor_interval" default:"10m"`
}

// SetDefaults fills per-kind limits. Called by defaults.Set.
func (c *CacheConfig) SetDefaults() {
	fill := func(l *CacheLimits, n int, ttl time.Duration) {
		if l.MaxEntries == 0 {
			l.MaxEntries = n
		}
		if l.TTL == 0 {
			l.TTL = ttl
		}
	}
	fill(&c.Factsheet, 500, 24*time.Hour)
	fill(&c.Fund, 1000, 12*time.Hour)
	fill(&c.Portfolio, 100, 6*time.Hour)
	fill(&c.Resolution, 5000, 24*time.Hour)
}

type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts" default:"3" validate:"gte=1"`
	BaseDelay   time.Duration `yaml:"base_delay" default:"1s"`
	MaxDelay    time.Duration `yaml:"max_delay" default:"10s"`
}

type SourcesConfig struct {
	FactsheetIndex string `yaml:"factsheet_index"`
	FileIndexDir   string `yaml:"file_index_dir"`
	WebSearch      struct {
		URL          string        `yaml:"url" validate:"omitempty,url"`
		APIKey       string        `yaml:"api_key"`
		Timeout      time.Duration `yaml:"timeout" default:"5s"`
		RateCapacity float64       `yaml:"rate_capacity" default:"5" validate:"gte=1"`
		RatePerSec   float64       `yaml:"rate_per_sec" default:"1" validate:"gte=0"`
	} `yaml:"web_search"`
	Oracle struct {
		APIKey    string `yaml:"api_key"`
		Model     string `yaml:"model" default:"gemini-2.5-flash"`
		BaseURL   string `yaml:"base_url" validate:"omitempty,url"`
		MaxTokens int    `yaml:"max_tokens" default:"512" validate:"gte=1"`
	} `yaml:"oracle"`
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host" default:"localhost"`
	Port     int    `yaml:"port" default:"6379"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size" default:"10"`
	Prefix   string `yaml:"prefix" default:"finresolve"`
}

type ClickHouseConfig struct {
	Enabled          bool          `yaml:"enabled"`
	Host             string        `yaml:"host" default:"localhost"`
	Port             int           `yaml:"port" default:"9000"`
	Database         string        `yaml:"database" default:"finresolve"`
	User             string        `yaml:"user" default:"default"`
	Password         string        `yaml:"password"`
	Table            string        `yaml:"table" default:"instrument_resolutions"`
	UseHTTP          bool          `yaml:"use_http"`
	AsyncInsert      bool          `yaml:"async_insert" default:"true"`
	WaitForAsync     bool          `yaml:"wait_for_async_insert"`
	DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
	ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
	MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"30s"`
}

type KafkaConfig struct {
	Enabled      bool     `yaml:"enabled"`
	Brokers      []string `yaml:"brokers" default:"[\"localhost:9092\"]"`
	Topic        string   `yaml:"topic" default:"instrument.resolutions"`
	RequiredAcks int      `yaml:"required_acks" default:"-1" validate:"oneof=-1 0 1"`
	Compression  string   `yaml:"compression" default:"snappy" validate:"oneof=gzip snappy lz4 zstd"`
	Producer     struct {
		MaxAttempts  int           `yaml:"max_attempts" default:"3"`
		Linger       time.Duration `yaml:"linger" default:"500ms"`
		BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
		BatchSize    int           `yaml:"batch_size" default:"100"`
		WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
		ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
		Async        bool          `yaml:"async"`
		// AutoCreateTopics lets the writer create the event, result and DLQ
		// topics on first write. Meant for local brokers.
		AutoCreateTopics bool `yaml:"auto_create_topics"`
	} `yaml:"producer"`
	Jobs KafkaJobsConfig `yaml:"jobs"`
}

// KafkaJobsConfig drives the consumer of asynchronous bulk resolution jobs.
type KafkaJobsConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Topic       string        `yaml:"topic" default:"instrument.resolve.jobs"`
	GroupID     string        `yaml:"group_id" default:"finresolve"`
	Workers     int           `yaml:"workers" default:"4" validate:"gte=1,lte=64"`
	RetryMax    int           `yaml:"retry_max" default:"3" validate:"gte=0"`
	BackoffMin  time.Duration `yaml:"backoff_min" default:"200ms"`
	BackoffMax  time.Duration `yaml:"backoff_max" default:"5s"`
	DLQTopic    string        `yaml:"dlq_topic" default:"instrument.resolve.jobs.dlq"`
	ResultTopic string        `yaml:"result_topic" default:"instrument.resolve.results"`
}

// Default returns a configuration holding only defaults.
func Default() (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("set defaults: %w", err)
	}
	return &c, nil
}

// Load reads and parses a YAML configuration file. Fields absent from the
// file keep their defaults.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	c, err := Default()
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment
// variables. An empty path loads defaults only.
func LoadWithEnv(path string) (*Config, error) {
	var (
		c   *Config
		err error
	)
	if path == "" {
		c, err = Default()
	} else {
		c, err = Load(path)
	}
	if err != nil {
		return nil, err
	}

	// Override with environment variables
	if v := os.Getenv("FINRESOLVE_ENV"); v != "" {
		c.Environment = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Server.Port = p
		}
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		c.Sources.Oracle.APIKey = v
	}
	if v := os.Getenv("WEB_SEARCH_URL"); v != "" {
		c.Sources.WebSearch.URL = v
	}
	if v := os.Getenv("WEB_SEARCH_API_KEY"); v != "" {
		c.Sources.WebSearch.APIKey = v
	}
	if v := os.Getenv("REDIS_HOST"); v != "" {
		c.Redis.Host = v
		c.Redis.Enabled = true
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
		c.ClickHouse.Enabled = true
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
		c.Kafka.Enabled = true
	}
	if v := os.Getenv("KAFKA_TOPIC"); v != "" {
		c.Kafka.Topic = v
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

var validate = validator.New()

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%s failed %q (%s)", fe.Namespace(), fe.Tag(), fe.Param())
		}
		return err
	}
	if c.Retry.MaxDelay < c.Retry.BaseDelay {
		return fmt.Errorf("retry.max_delay must be >= retry.base_delay")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.Kafka.Jobs.Enabled && !c.Kafka.Enabled {
		return fmt.Errorf("kafka.jobs requires kafka to be enabled")
	}
	return nil
}
