package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"CoinPulse/pkg/util"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" default:"development"`
	Server      struct {
		Port            int           `yaml:"port" default:"8080"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"15s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"20s"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level" default:"info"`
		Format string `yaml:"format" default:"console"`
		Output string `yaml:"output" default:"stdout"`
	} `yaml:"log"`
	ClickHouse struct {
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"coinpulse"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"30s"`
	} `yaml:"clickhouse"`
	Redis struct {
		Addr      string `yaml:"addr" default:"localhost:6379"`
		Password  string `yaml:"password"`
		DB        int    `yaml:"db"`
		PoolSize  int    `yaml:"pool_size" default:"10"`
		KeyPrefix string `yaml:"key_prefix" default:"coinpulse"`
	} `yaml:"redis"`
	Cache struct {
		Backend          string        `yaml:"backend" default:"redis"` // redis, memory, layered
		LatestTTL        time.Duration `yaml:"latest_ttl" default:"20s"`
		SymbolTTL        time.Duration `yaml:"symbol_ttl" default:"30s"`
		ChartTTL         time.Duration `yaml:"chart_ttl" default:"2m"`
		ReportTTL        time.Duration `yaml:"report_ttl" default:"10m"`
		ProbeCooldown    time.Duration `yaml:"probe_cooldown" default:"30s"`
		MemoryMaxEntries int           `yaml:"memory_max_entries" default:"4096"`
		L1TTL            time.Duration `yaml:"l1_ttl" default:"15s"`
	} `yaml:"cache"`
	Source struct {
		BaseURL       string        `yaml:"base_url"`
		APIKey        string        `yaml:"api_key"`
		QuoteCurrency string        `yaml:"quote_currency" default:"usd"`
		Symbols       []string      `yaml:"symbols" default:"[\"BTC\",\"ETH\",\"BNB\",\"SOL\",\"XRP\"]"`
		Timeout       time.Duration `yaml:"timeout" default:"10s"`
		HistoryLimit  int           `yaml:"history_limit" default:"500"`
		RateLimit     struct {
			Capacity     float64 `yaml:"capacity" default:"30"`
			RefillPerSec float64 `yaml:"refill_per_sec" default:"0.5"`
		} `yaml:"rate_limit"`
	} `yaml:"source"`
	Stream struct {
		Enabled        bool          `yaml:"enabled"`
		URL            string        `yaml:"url"`
		APIKey         string        `yaml:"api_key"`
		ReconnectDelay time.Duration `yaml:"reconnect_delay" default:"5s"`
		PingInterval   time.Duration `yaml:"ping_interval" default:"30s"`
	} `yaml:"stream"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Consume      bool     `yaml:"consume"`
		Brokers      []string `yaml:"brokers"`
		Topic        string   `yaml:"topic" default:"coinpulse.samples"`
		LogTopic     string   `yaml:"log_topic" default:"coinpulse.logs"`
		RequiredAcks int      `yaml:"required_acks" default:"-1"`
		Compression  string   `yaml:"compression" default:"gzip"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"1s"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id" default:"coinpulse"`
			Workers    int           `yaml:"workers" default:"2"`
			BufferSize int           `yaml:"buffer_size" default:"64"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"50ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"2s"`
			DLQTopic   string        `yaml:"dlq_topic" default:"coinpulse.samples.dlq"`
			MinBytes   int           `yaml:"min_bytes" default:"10240"`
			MaxBytes   int           `yaml:"max_bytes" default:"10485760"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	Queue struct {
		Enabled    bool          `yaml:"enabled"`
		Workers    int           `yaml:"workers" default:"2"`
		QueueSize  int           `yaml:"queue_size" default:"64"`
		RetryLimit int           `yaml:"retry_limit" default:"3"`
		RetryDelay time.Duration `yaml:"retry_delay" default:"30s"`
	} `yaml:"queue"`
	Scheduler struct {
		Tick              time.Duration `yaml:"tick" default:"10s"`
		RealtimeInterval  time.Duration `yaml:"realtime_interval" default:"30s"`
		CollectInterval   time.Duration `yaml:"collect_interval" default:"5m"`
		AnalyticsInterval time.Duration `yaml:"analytics_interval" default:"1h"`
		DailyAt           string        `yaml:"daily_at" default:"02:00"`
		StopTimeout       time.Duration `yaml:"stop_timeout" default:"30s"`
	} `yaml:"scheduler"`
	Quality struct {
		Threshold      float64 `yaml:"threshold" default:"0.5"`
		RejectMultiple float64 `yaml:"reject_multiple" default:"2"`
	} `yaml:"quality"`
	Freshness struct {
		ChangeWindow time.Duration `yaml:"change_window" default:"24h"`
	} `yaml:"freshness"`
	Chart struct {
		DefaultLimit     int `yaml:"default_limit" default:"200"`
		MaxPoints        int `yaml:"max_points" default:"2000"`
		VolatilityWindow int `yaml:"volatility_window" default:"10"`
	} `yaml:"chart"`
}

// Load reads and parses a YAML configuration file. Zero-value fields are
// filled from the struct default tags before validation.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply config defaults: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	// Override with environment variables
	if v := os.Getenv("SERVER_PORT"); v != "" {
		c.Server.Port = util.ParseIntDefault(v, c.Server.Port)
	}
	if v := os.Getenv("SOURCE_BASE_URL"); v != "" {
		c.Source.BaseURL = v
	}
	if v := os.Getenv("SOURCE_API_KEY"); v != "" {
		c.Source.APIKey = v
	}
	if v := os.Getenv("SYMBOLS"); v != "" {
		c.Source.Symbols = strings.Split(v, ",")
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		c.Redis.DB = util.ParseIntDefault(v, c.Redis.DB)
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("KAFKA_TOPIC"); v != "" {
		c.Kafka.Topic = v
	}

	return c, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Source.BaseURL == "" {
		return fmt.Errorf("source.base_url is required")
	}
	if len(c.Source.Symbols) == 0 {
		return fmt.Errorf("source.symbols cannot be empty")
	}
	switch c.Cache.Backend {
	case "redis", "memory", "layered":
	default:
		return fmt.Errorf("cache.backend must be 'redis', 'memory' or 'layered', got '%s'", c.Cache.Backend)
	}
	if c.Scheduler.Tick <= 0 {
		return fmt.Errorf("scheduler.tick must be positive")
	}
	if c.Scheduler.Tick > c.Scheduler.RealtimeInterval {
		return fmt.Errorf("scheduler.tick must not exceed scheduler.realtime_interval")
	}
	if _, _, err := ParseDailyAt(c.Scheduler.DailyAt); err != nil {
		return fmt.Errorf("scheduler.daily_at: %w", err)
	}
	if c.Quality.Threshold <= 0 || c.Quality.Threshold > 1 {
		return fmt.Errorf("quality.threshold must be in (0, 1]")
	}
	if c.Quality.RejectMultiple < 1 {
		return fmt.Errorf("quality.reject_multiple must be >= 1")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.Stream.Enabled && c.Stream.URL == "" {
		return fmt.Errorf("stream.url is required when stream is enabled")
	}
	return nil
}

// ParseDailyAt parses an "HH:MM" wall-clock spec.
func ParseDailyAt(s string) (hour, minute int, err error) {
	if _, err := fmt.Sscanf(s, "%d:%d", &hour, &minute); err != nil {
		return 0, 0, fmt.Errorf("want HH:MM, got '%s'", s)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("out of range: '%s'", s)
	}
	return hour, minute, nil
}
