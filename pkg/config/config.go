package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	// API settings
	APIHost string `mapstructure:"api_host"`
	APIPort int    `mapstructure:"api_port"`

	// Optional SSL settings
	SSLCert string `mapstructure:"ssl_cert"`
	SSLKey  string `mapstructure:"ssl_key"`

	// Optional CORS settings, also applied to WebSocket origins
	CORSOrigins []string `mapstructure:"cors_origins"`

	// Logging settings
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	// Job store
	StoreDriver string `mapstructure:"store_driver"`
	StoreDSN    string `mapstructure:"store_dsn"`

	// Optional JWT settings; an empty secret disables authentication
	JWTSecretKey string `mapstructure:"jwt_secret_key"`
	JWTAlgorithm string `mapstructure:"jwt_algorithm"`

	// Per-client rate limiting in requests per second; 0 disables it
	RateLimit      float64 `mapstructure:"rate_limit"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`

	// Execution settings
	SSHConfigPath     string `mapstructure:"ssh_config_path"`
	SSHBinary         string `mapstructure:"ssh_binary"`
	SSHConnectTimeout int    `mapstructure:"ssh_connect_timeout"`
	TerminalShell     string `mapstructure:"terminal_shell"`
	DefaultWorkingDir string `mapstructure:"default_working_dir"`
	PresetsFile       string `mapstructure:"presets_file"`

	EventBuffer     int           `mapstructure:"event_buffer"`
	LogQueryLimit   int           `mapstructure:"log_query_limit"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// Optional OTLP/gRPC collector for traces
	OTelEndpoint string `mapstructure:"otel_endpoint"`

	// Optional transcript archive
	ArchiveEndpoint  string `mapstructure:"archive_endpoint"`
	ArchiveBucket    string `mapstructure:"archive_bucket"`
	ArchiveAccessKey string `mapstructure:"archive_access_key"`
	ArchiveSecretKey string `mapstructure:"archive_secret_key"`
	ArchiveUseSSL    bool   `mapstructure:"archive_use_ssl"`

	// Static paths
	ConfigPath string
}

const (
	DefaultConfigPath      = "/etc/vmorch/config.yml"
	DefaultStoreDSN        = "/var/lib/vmorch/vmorch.db"
	DefaultAPIHost         = "0.0.0.0"
	DefaultAPIPort         = 3000
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "json"
	DefaultStoreDriver     = "sqlite"
	DefaultJWTAlgorithm    = "HS256"
	DefaultRateLimitBurst  = 20
	DefaultSSHBinary       = "ssh"
	DefaultConnectTimeout  = 10
	DefaultEventBuffer     = 256
	DefaultLogQueryLimit   = 1000
	MaxLogQueryLimit       = 10000
	DefaultShutdownTimeout = 10 * time.Second

	EnvPrefix = "VMORCH"
)

var keys = []string{
	"api_host", "api_port", "ssl_cert", "ssl_key", "cors_origins",
	"log_level", "log_format", "store_driver", "store_dsn",
	"jwt_secret_key", "jwt_algorithm", "rate_limit", "rate_limit_burst",
	"ssh_config_path", "ssh_binary", "ssh_connect_timeout", "terminal_shell",
	"default_working_dir", "presets_file", "event_buffer", "log_query_limit",
	"shutdown_timeout", "otel_endpoint", "archive_endpoint", "archive_bucket",
	"archive_access_key", "archive_secret_key", "archive_use_ssl",
}

// Load reads configPath, applies defaults and VMORCH_* environment
// overrides, and validates the result. When configPath is empty the default
// path is used and may be absent.
func Load(configPath string) (*Config, error) {
	optional := false
	if configPath == "" {
		configPath = DefaultConfigPath
		optional = true
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	// Set defaults
	v.SetDefault("api_host", DefaultAPIHost)
	v.SetDefault("api_port", DefaultAPIPort)
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("log_format", DefaultLogFormat)
	v.SetDefault("store_driver", DefaultStoreDriver)
	v.SetDefault("store_dsn", DefaultStoreDSN)
	v.SetDefault("jwt_algorithm", DefaultJWTAlgorithm)
	v.SetDefault("rate_limit_burst", DefaultRateLimitBurst)
	v.SetDefault("ssh_binary", DefaultSSHBinary)
	v.SetDefault("ssh_connect_timeout", DefaultConnectTimeout)
	v.SetDefault("event_buffer", DefaultEventBuffer)
	v.SetDefault("log_query_limit", DefaultLogQueryLimit)
	v.SetDefault("shutdown_timeout", DefaultShutdownTimeout)

	// Allow environment variable overrides
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	for _, k := range keys {
		if err := v.BindEnv(k); err != nil {
			return nil, fmt.Errorf("failed to bind env for %s: %w", k, err)
		}
	}

	_, statErr := os.Stat(configPath)
	if !optional || !errors.Is(statErr, fs.ErrNotExist) {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.ConfigPath = configPath

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.APIPort < 1 || c.APIPort > 65535 {
		return fmt.Errorf("api_port must be between 1 and 65535")
	}

	if c.StoreDriver != "sqlite" && c.StoreDriver != "postgres" {
		return fmt.Errorf("store_driver must be 'sqlite' or 'postgres'")
	}

	if c.StoreDSN == "" {
		return fmt.Errorf("store_dsn is required")
	}

	switch c.JWTAlgorithm {
	case "HS256", "HS384", "HS512":
	default:
		return fmt.Errorf("jwt_algorithm must be HS256, HS384 or HS512")
	}

	if c.RateLimit < 0 {
		return fmt.Errorf("rate_limit must not be negative")
	}
	if c.RateLimit > 0 && c.RateLimitBurst < 1 {
		return fmt.Errorf("rate_limit_burst must be positive when rate_limit is set")
	}

	if c.EventBuffer <= 0 {
		return fmt.Errorf("event_buffer must be positive")
	}

	if c.LogQueryLimit <= 0 || c.LogQueryLimit > MaxLogQueryLimit {
		return fmt.Errorf("log_query_limit must be between 1 and %d", MaxLogQueryLimit)
	}

	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown_timeout must be positive")
	}

	if c.ArchiveEndpoint != "" && c.ArchiveBucket == "" {
		return fmt.Errorf("archive_bucket is required when archive_endpoint is set")
	}

	// Validate SSL config if provided
	if c.SSLCert != "" || c.SSLKey != "" {
		if c.SSLCert == "" || c.SSLKey == "" {
			return fmt.Errorf("both ssl_cert and ssl_key must be provided")
		}
		if _, err := os.Stat(c.SSLCert); os.IsNotExist(err) {
			return fmt.Errorf("ssl_cert file does not exist: %s", c.SSLCert)
		}
		if _, err := os.Stat(c.SSLKey); os.IsNotExist(err) {
			return fmt.Errorf("ssl_key file does not exist: %s", c.SSLKey)
		}
	}

	return nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.APIHost, c.APIPort)
}

func (c *Config) AuthEnabled() bool {
	return c.JWTSecretKey != ""
}

func (c *Config) ArchiveEnabled() bool {
	return c.ArchiveEndpoint != ""
}

func (c *Config) IsDevMode() bool {
	return os.Getenv("VMORCH_DEV_MODE") == "1"
}
