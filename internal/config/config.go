package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the root configuration for vectorgate.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Pinecone  PineconeConfig  `mapstructure:"pinecone"`
	Bootstrap BootstrapConfig `mapstructure:"bootstrap"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Debug           bool          `mapstructure:"debug"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type TelemetryConfig struct {
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	OTLPInsecure bool   `mapstructure:"otlp_insecure"`
	ServiceName  string `mapstructure:"service_name"`
	LogLevel     string `mapstructure:"log_level"`
	// SampleRatio is the fraction of root traces kept, 0 to 1.
	SampleRatio    float64       `mapstructure:"sample_ratio"`
	MetricInterval time.Duration `mapstructure:"metric_interval"`
}

type PineconeConfig struct {
	APIKey       string        `mapstructure:"api_key"`
	IndexName    string        `mapstructure:"index_name"`
	Host         string        `mapstructure:"host"`
	Index        IndexSpec     `mapstructure:"index"`
	WaitReady    bool          `mapstructure:"wait_ready"`
	ReadyTimeout time.Duration `mapstructure:"ready_timeout"`
	StrictSpec   bool          `mapstructure:"strict_spec"`
}

// IndexSpec holds the parameters used when the index has to be created.
type IndexSpec struct {
	Dimension int32  `mapstructure:"dimension"`
	Metric    string `mapstructure:"metric"`
	Cloud     string `mapstructure:"cloud"`
	Region    string `mapstructure:"region"`
}

type BootstrapConfig struct {
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	Timeout      time.Duration `mapstructure:"timeout"`
	LockKey      string        `mapstructure:"lock_key"`
	LockTTL      time.Duration `mapstructure:"lock_ttl"`
	Redis        RedisConfig   `mapstructure:"redis"`
	NATS         NATSConfig    `mapstructure:"nats"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Enabled reports whether a Redis host is configured for the bootstrap lock.
func (c RedisConfig) Enabled() bool { return c.Host != "" }

type NATSConfig struct {
	URL     string `mapstructure:"url"`
	Subject string `mapstructure:"subject"`
}

// Enabled reports whether index-ready announcements should be published.
func (c NATSConfig) Enabled() bool { return c.URL != "" }

var (
	validMetrics = map[string]bool{"cosine": true, "dotproduct": true, "euclidean": true}
	validClouds  = map[string]bool{"aws": true, "gcp": true, "azure": true}
)

// LoadDotEnv loads variables from a .env file into the process environment.
// Variables that are already set are left alone. A missing file is not an
// error.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("reading env file %s: %w", path, err)
	}
	return nil
}

// Load reads config from the optional YAML file at path, then overlays
// environment variables. PINECONE_API_KEY, PINECONE_INDEX_NAME and PORT are
// bound by name; every other key uses the VECTORGATE_ prefix (e.g.
// VECTORGATE_BOOTSTRAP_REDIS_HOST). The result is validated.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("VECTORGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, env := range map[string]string{
		"pinecone.api_key":    "PINECONE_API_KEY",
		"pinecone.index_name": "PINECONE_INDEX_NAME",
		"server.port":         "PORT",
	} {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("binding %s: %w", env, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if cfg.Bootstrap.LockKey == "" {
		cfg.Bootstrap.LockKey = "vectorgate:bootstrap:" + cfg.Pinecone.IndexName
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks required values and the index creation parameters.
func (c *Config) Validate() error {
	var errs []error

	if c.Pinecone.APIKey == "" {
		errs = append(errs, errors.New("PINECONE_API_KEY is required"))
	}
	if c.Pinecone.IndexName == "" {
		errs = append(errs, errors.New("PINECONE_INDEX_NAME is required"))
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Server.Port))
	}
	if c.Pinecone.Index.Dimension <= 0 {
		errs = append(errs, fmt.Errorf("index dimension must be positive, got %d", c.Pinecone.Index.Dimension))
	}
	if !validMetrics[c.Pinecone.Index.Metric] {
		errs = append(errs, fmt.Errorf("unsupported index metric %q", c.Pinecone.Index.Metric))
	}
	if !validClouds[c.Pinecone.Index.Cloud] {
		errs = append(errs, fmt.Errorf("unsupported cloud %q", c.Pinecone.Index.Cloud))
	}
	if c.Pinecone.Index.Region == "" {
		errs = append(errs, errors.New("index region is required"))
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		errs = append(errs, fmt.Errorf("trace sample ratio must be within [0, 1], got %g", c.Telemetry.SampleRatio))
	}
	// The lock is never extended, so it must outlive the longest run.
	if c.Bootstrap.Redis.Enabled() && c.Bootstrap.Timeout > 0 && c.Bootstrap.LockTTL < c.Bootstrap.Timeout {
		errs = append(errs, fmt.Errorf("bootstrap lock_ttl %s is shorter than bootstrap timeout %s",
			c.Bootstrap.LockTTL, c.Bootstrap.Timeout))
	}

	return errors.Join(errs...)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.debug", true)
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.otlp_insecure", true)
	v.SetDefault("telemetry.service_name", "vectorgate")
	v.SetDefault("telemetry.log_level", "info")
	v.SetDefault("telemetry.sample_ratio", 1.0)
	v.SetDefault("telemetry.metric_interval", 30*time.Second)

	v.SetDefault("pinecone.api_key", "")
	v.SetDefault("pinecone.index_name", "")
	v.SetDefault("pinecone.host", "")
	v.SetDefault("pinecone.index.dimension", 768)
	v.SetDefault("pinecone.index.metric", "cosine")
	v.SetDefault("pinecone.index.cloud", "aws")
	v.SetDefault("pinecone.index.region", "us-east-1")
	v.SetDefault("pinecone.wait_ready", true)
	v.SetDefault("pinecone.ready_timeout", 2*time.Minute)
	v.SetDefault("pinecone.strict_spec", false)

	v.SetDefault("bootstrap.retry_backoff", 2*time.Second)
	v.SetDefault("bootstrap.timeout", 5*time.Minute)
	v.SetDefault("bootstrap.lock_key", "")
	v.SetDefault("bootstrap.lock_ttl", 5*time.Minute)

	v.SetDefault("bootstrap.redis.host", "")
	v.SetDefault("bootstrap.redis.port", 6379)
	v.SetDefault("bootstrap.redis.password", "")
	v.SetDefault("bootstrap.redis.db", 0)

	v.SetDefault("bootstrap.nats.url", "")
	v.SetDefault("bootstrap.nats.subject", "vectorgate.index.ready")
}
