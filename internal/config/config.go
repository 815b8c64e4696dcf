// File: internal/config/config.go
package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Server() ServerConfig
	Browser() BrowserConfig
	Intercept() InterceptConfig
	E2EMode() bool

	// Browser Setters
	SetBrowserHeadless(bool)

	// Intercept Setters
	SetInterceptFixtures(path string)
	SetInterceptExternalPolicy(policy string)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	ServerCfg    ServerConfig    `mapstructure:"server" yaml:"server"`
	BrowserCfg   BrowserConfig   `mapstructure:"browser" yaml:"browser"`
	InterceptCfg InterceptConfig `mapstructure:"intercept" yaml:"intercept"`
	// E2EModeEnabled runs the page against real services with interception switched off.
	E2EModeEnabled bool `mapstructure:"e2e_mode" yaml:"e2e_mode"`
}

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig       { return c.LoggerCfg }
func (c *Config) Server() ServerConfig       { return c.ServerCfg }
func (c *Config) Browser() BrowserConfig     { return c.BrowserCfg }
func (c *Config) Intercept() InterceptConfig { return c.InterceptCfg }
func (c *Config) E2EMode() bool              { return c.E2EModeEnabled }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetBrowserHeadless(b bool)            { c.BrowserCfg.Headless = b }
func (c *Config) SetInterceptFixtures(path string)     { c.InterceptCfg.Fixtures = path }
func (c *Config) SetInterceptExternalPolicy(p string) { c.InterceptCfg.ExternalPolicy = p }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// ServerConfig locates the application server under test. Requests whose
// origin matches it are answered by the interceptor.
type ServerConfig struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`
}

// Origin returns the server host string in the form http://HOST:PORT.
func (s ServerConfig) Origin() string {
	return fmt.Sprintf("http://%s:%d", s.Host, s.Port)
}

// ViewportConfig is the emulated device metrics applied to every page.
type ViewportConfig struct {
	Width  int64   `mapstructure:"width" yaml:"width"`
	Height int64   `mapstructure:"height" yaml:"height"`
	Scale  float64 `mapstructure:"scale" yaml:"scale"`
}

// BrowserConfig holds settings for the headless browser instance.
type BrowserConfig struct {
	Headless          bool           `mapstructure:"headless" yaml:"headless"`
	IgnoreTLSErrors   bool           `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	ExecPath          string         `mapstructure:"exec_path" yaml:"exec_path"`
	Args              []string       `mapstructure:"args" yaml:"args"`
	Viewport          ViewportConfig `mapstructure:"viewport" yaml:"viewport"`
	Locale            string         `mapstructure:"locale" yaml:"locale"`
	NavigationTimeout time.Duration  `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	// EchoConsole forwards console.log output from the page to the logger.
	EchoConsole bool `mapstructure:"echo_console" yaml:"echo_console"`
}

// External request policies.
const (
	PolicyNoContent   = "no_content"
	PolicyPassthrough = "passthrough"
	PolicyBlock       = "block"
)

// InterceptConfig tunes the request interceptor.
type InterceptConfig struct {
	WaitTimeout    time.Duration `mapstructure:"wait_timeout" yaml:"wait_timeout"`
	PollInterval   time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	ResolveTimeout time.Duration `mapstructure:"resolve_timeout" yaml:"resolve_timeout"`
	ExternalPolicy string        `mapstructure:"external_policy" yaml:"external_policy"`
	Fixtures       string        `mapstructure:"fixtures" yaml:"fixtures"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "netstub")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Server --
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 3000)

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.viewport.width", 1280)
	v.SetDefault("browser.viewport.height", 720)
	v.SetDefault("browser.viewport.scale", 1.0)
	v.SetDefault("browser.locale", "en-US")
	v.SetDefault("browser.navigation_timeout", "30s")
	v.SetDefault("browser.echo_console", true)

	// -- Intercept --
	v.SetDefault("intercept.wait_timeout", "3s")
	v.SetDefault("intercept.poll_interval", "20ms")
	v.SetDefault("intercept.resolve_timeout", "0s")
	v.SetDefault("intercept.external_policy", PolicyNoContent)
	v.SetDefault("intercept.fixtures", "")

	v.SetDefault("e2e_mode", false)
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// The test runner exports these without a prefix.
	_ = v.BindEnv("server.host", "HOST")
	_ = v.BindEnv("server.port", "PORT")
	_ = v.BindEnv("e2e_mode", "E2EMODE")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.ServerCfg.Validate(); err != nil {
		return fmt.Errorf("server configuration invalid: %w", err)
	}
	if err := c.BrowserCfg.Validate(); err != nil {
		return fmt.Errorf("browser configuration invalid: %w", err)
	}
	if err := c.InterceptCfg.Validate(); err != nil {
		return fmt.Errorf("intercept configuration invalid: %w", err)
	}
	return nil
}

// Validate checks the server address.
func (s *ServerConfig) Validate() error {
	if s.Host == "" {
		return fmt.Errorf("host is required")
	}
	if s.Port <= 0 || s.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", s.Port)
	}
	if _, err := url.Parse(s.Origin()); err != nil {
		return fmt.Errorf("host %q does not form a valid origin: %w", s.Host, err)
	}
	return nil
}

// Validate checks the browser settings.
func (b *BrowserConfig) Validate() error {
	if b.Viewport.Width <= 0 || b.Viewport.Height <= 0 {
		return fmt.Errorf("viewport dimensions must be positive")
	}
	if b.Viewport.Scale <= 0 {
		return fmt.Errorf("viewport.scale must be positive")
	}
	return nil
}

// Validate checks the interceptor settings.
func (i *InterceptConfig) Validate() error {
	if i.WaitTimeout <= 0 {
		return fmt.Errorf("wait_timeout must be a positive duration")
	}
	if i.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be a positive duration")
	}
	if i.ResolveTimeout < 0 {
		return fmt.Errorf("resolve_timeout must not be negative")
	}
	switch i.ExternalPolicy {
	case PolicyNoContent, PolicyPassthrough, PolicyBlock:
	default:
		return fmt.Errorf("unknown external_policy %q", i.ExternalPolicy)
	}
	return nil
}
