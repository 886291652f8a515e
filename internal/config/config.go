package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// MaxReconnectAttempts is the fixed reconnect budget of the realtime client.
const MaxReconnectAttempts = 5

type Config struct {
	Realtime RealtimeConfig `mapstructure:"realtime"`
	API      APIConfig      `mapstructure:"api"`
	Logger   LoggerConfig   `mapstructure:"logger"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Mock     MockConfig     `mapstructure:"mock"`
}

// RealtimeConfig configures the push connection to the inference service.
type RealtimeConfig struct {
	URL                  string        `mapstructure:"url"`
	ReconnectInterval    time.Duration `mapstructure:"reconnect_interval"`
	MaxReconnectAttempts int           `mapstructure:"max_reconnect_attempts"`
	AutoReconnect        bool          `mapstructure:"auto_reconnect"`
}

// APIConfig holds base URLs of the three REST collaborators.
type APIConfig struct {
	URL       string        `mapstructure:"url"`
	RTSPURL   string        `mapstructure:"rtsp_url"`
	ModelURL  string        `mapstructure:"model_url"`
	Token     string        `mapstructure:"token"`
	Timeout   time.Duration `mapstructure:"timeout"`
	Retries   int           `mapstructure:"retries"`
	RateLimit float64       `mapstructure:"rate_limit"`
}

type LoggerConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
	File   string `mapstructure:"file"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// MockConfig configures cmd/vsense-mock.
type MockConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Scenario     string        `mapstructure:"scenario"`
	PingInterval time.Duration `mapstructure:"ping_interval"`
}

// Load reads configuration from path (or vsense.yaml in . and ./configs when
// path is empty), then applies VSENSE_* environment overrides.
// VSENSE_REALTIME_URL overrides realtime.url, and so on.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("vsense")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
	}

	v.SetEnvPrefix("VSENSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// No file: env and defaults only.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no file or env is present.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	// Defaults are static; decoding them cannot fail.
	_ = v.Unmarshal(&cfg)
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("realtime.url", "ws://localhost:8000/ws")
	v.SetDefault("realtime.reconnect_interval", 3*time.Second)
	v.SetDefault("realtime.max_reconnect_attempts", MaxReconnectAttempts)
	v.SetDefault("realtime.auto_reconnect", true)

	v.SetDefault("api.url", "http://localhost:5000")
	v.SetDefault("api.rtsp_url", "http://localhost:8000")
	v.SetDefault("api.model_url", "http://localhost:8001")
	v.SetDefault("api.token", "")
	v.SetDefault("api.timeout", 10*time.Second)
	v.SetDefault("api.retries", 3)
	v.SetDefault("api.rate_limit", 20.0)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
	v.SetDefault("logger.file", "")

	v.SetDefault("metrics.addr", "")

	v.SetDefault("mock.host", "127.0.0.1")
	v.SetDefault("mock.port", 8000)
	v.SetDefault("mock.scenario", "")
	v.SetDefault("mock.ping_interval", 25*time.Second)
}

// Validate checks the realtime settings the client depends on.
func (c *Config) Validate() error {
	if c.Realtime.URL == "" {
		return errors.New("config: realtime.url is required")
	}
	u, err := url.Parse(c.Realtime.URL)
	if err != nil {
		return fmt.Errorf("config: realtime.url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("config: realtime.url must use ws or wss, got %q", u.Scheme)
	}
	if c.Realtime.ReconnectInterval <= 0 {
		return fmt.Errorf("config: realtime.reconnect_interval must be positive, got %v", c.Realtime.ReconnectInterval)
	}
	if c.Realtime.MaxReconnectAttempts != MaxReconnectAttempts {
		return fmt.Errorf("config: realtime.max_reconnect_attempts is fixed at %d, got %d",
			MaxReconnectAttempts, c.Realtime.MaxReconnectAttempts)
	}
	return nil
}

// HTTPBase derives the REST base URL from the realtime endpoint:
// ws://host:port/ws becomes http://host:port.
func HTTPBase(wsURL string) string {
	u, err := url.Parse(wsURL)
	if err != nil || u.Host == "" {
		return "http://localhost:8000"
	}
	scheme := "http"
	if u.Scheme == "wss" {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s", scheme, u.Host)
}
