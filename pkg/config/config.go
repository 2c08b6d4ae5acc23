package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"SignalHub/internal/domain/models"
)

type Config struct {
	Environment string `yaml:"environment"`
	Server      struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		Output string `yaml:"output"`
	} `yaml:"logging"`
	Redis struct {
		Host         string        `yaml:"host"`
		Port         int           `yaml:"port"`
		Password     string        `yaml:"password"`
		DB           int           `yaml:"db"`
		PoolSize     int           `yaml:"pool_size"`
		MinIdleConns int           `yaml:"min_idle_conns"`
		PoolTimeout  time.Duration `yaml:"pool_timeout"`
		Prefix       string        `yaml:"prefix"`
	} `yaml:"redis"`
	Upstream struct {
		BaseURL        string        `yaml:"base_url"`
		APIKey         string        `yaml:"api_key"`
		ClientCode     string        `yaml:"client_code"`
		Password       string        `yaml:"password"`
		TOTPSecret     string        `yaml:"totp_secret"`
		RequestTimeout time.Duration `yaml:"request_timeout"`
		QuoteAttempts  int           `yaml:"quote_attempts"`
		CandleAttempts int           `yaml:"candle_attempts"`
		BackoffBase    time.Duration `yaml:"backoff_base"`
		BackoffCap     time.Duration `yaml:"backoff_cap"`
	} `yaml:"upstream"`
	Leader struct {
		Key             string        `yaml:"key"`
		TTL             time.Duration `yaml:"ttl"`
		AcquireInterval time.Duration `yaml:"acquire_interval"`
		RenewInterval   time.Duration `yaml:"renew_interval"`
	} `yaml:"leader"`
	Producer struct {
		FastInterval   time.Duration `yaml:"fast_interval"`
		HeavyInterval  time.Duration `yaml:"heavy_interval"`
		ChunkSize      int           `yaml:"chunk_size"`
		ChunkDelay     time.Duration `yaml:"chunk_delay"`
		ChunkRPS       float64       `yaml:"chunk_rps"`
		CandleLookback int           `yaml:"candle_lookback_days"`
		MinBars        int           `yaml:"min_bars"`
	} `yaml:"producer"`
	Stream struct {
		DefaultPingSec int `yaml:"default_ping_sec"`
		MinPingSec     int `yaml:"min_ping_sec"`
		MaxPingSec     int `yaml:"max_ping_sec"`
	} `yaml:"stream"`
	Kafka struct {
		Enabled      bool          `yaml:"enabled"`
		Brokers      []string      `yaml:"brokers"`
		Topic        string        `yaml:"topic"`
		RequiredAcks int           `yaml:"required_acks"`
		Compression  string        `yaml:"compression"`
		MaxAttempts  int           `yaml:"max_attempts"`
		Linger       time.Duration `yaml:"linger"`
		WriteTimeout time.Duration `yaml:"write_timeout"`
		Async        bool          `yaml:"async"`
	} `yaml:"kafka"`
	Instruments []models.Instrument `yaml:"instruments"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	c.applyDefaults()

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

	if v := os.Getenv("UPSTREAM_API_KEY"); v != "" {
		c.Upstream.APIKey = v
	}
	if v := os.Getenv("UPSTREAM_CLIENT_CODE"); v != "" {
		c.Upstream.ClientCode = v
	}
	if v := os.Getenv("UPSTREAM_PASSWORD"); v != "" {
		c.Upstream.Password = v
	}
	if v := os.Getenv("UPSTREAM_TOTP_SECRET"); v != "" {
		c.Upstream.TOTPSecret = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		host, port := splitHostPort(v, c.Redis.Port)
		c.Redis.Host = host
		c.Redis.Port = port
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
		c.Kafka.Enabled = true
	}

	return c, nil
}

func splitHostPort(addr string, defPort int) (string, int) {
	host := addr
	port := defPort
	if i := strings.LastIndex(addr, ":"); i > 0 {
		host = addr[:i]
		if p, err := parsePort(addr[i+1:]); err == nil {
			port = p
		}
	}
	return host, port
}

func parsePort(s string) (int, error) {
	var p int
	_, err := fmt.Sscanf(s, "%d", &p)
	return p, err
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
	if c.Logging.Output == "" {
		c.Logging.Output = "stdout"
	}
	if c.Redis.Host == "" {
		c.Redis.Host = "localhost"
	}
	if c.Redis.Port == 0 {
		c.Redis.Port = 6379
	}
	if c.Redis.Prefix == "" {
		c.Redis.Prefix = "signalhub"
	}
	if c.Upstream.RequestTimeout == 0 {
		c.Upstream.RequestTimeout = 10 * time.Second
	}
	if c.Upstream.QuoteAttempts == 0 {
		c.Upstream.QuoteAttempts = 3
	}
	if c.Upstream.CandleAttempts == 0 {
		c.Upstream.CandleAttempts = 5
	}
	if c.Upstream.BackoffBase == 0 {
		c.Upstream.BackoffBase = 500 * time.Millisecond
	}
	if c.Upstream.BackoffCap == 0 {
		c.Upstream.BackoffCap = 5 * time.Second
	}
	if c.Leader.Key == "" {
		c.Leader.Key = "leader:signal-producer"
	}
	if c.Leader.TTL == 0 {
		c.Leader.TTL = 30 * time.Second
	}
	if c.Leader.AcquireInterval == 0 {
		c.Leader.AcquireInterval = time.Second
	}
	if c.Leader.RenewInterval == 0 {
		c.Leader.RenewInterval = 5 * time.Second
	}
	if c.Producer.FastInterval == 0 {
		c.Producer.FastInterval = 3 * time.Second
	}
	if c.Producer.HeavyInterval == 0 {
		c.Producer.HeavyInterval = 60 * time.Second
	}
	if c.Producer.ChunkSize == 0 {
		c.Producer.ChunkSize = 50
	}
	if c.Producer.ChunkDelay == 0 {
		c.Producer.ChunkDelay = 200 * time.Millisecond
	}
	if c.Producer.ChunkRPS == 0 {
		c.Producer.ChunkRPS = 5
	}
	if c.Producer.CandleLookback == 0 {
		c.Producer.CandleLookback = 120
	}
	if c.Producer.MinBars == 0 {
		c.Producer.MinBars = 60
	}
	if c.Stream.DefaultPingSec == 0 {
		c.Stream.DefaultPingSec = 15
	}
	if c.Stream.MinPingSec == 0 {
		c.Stream.MinPingSec = 5
	}
	if c.Stream.MaxPingSec == 0 {
		c.Stream.MaxPingSec = 60
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Upstream.BaseURL == "" {
		return fmt.Errorf("upstream.base_url is required")
	}
	if c.Upstream.APIKey == "" {
		return fmt.Errorf("upstream.api_key is required")
	}
	if len(c.Instruments) == 0 {
		return fmt.Errorf("instruments cannot be empty")
	}
	for i, in := range c.Instruments {
		if in.Exchange == "" || in.Token == "" {
			return fmt.Errorf("instruments[%d]: exchange and token are required", i)
		}
	}
	if c.Producer.FastInterval >= c.Producer.HeavyInterval {
		return fmt.Errorf("producer.fast_interval must be shorter than heavy_interval")
	}
	if c.Leader.RenewInterval >= c.Leader.TTL {
		return fmt.Errorf("leader.renew_interval must be shorter than ttl")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers required when kafka.enabled")
	}
	return nil
}
