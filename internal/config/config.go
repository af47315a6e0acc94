// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Security   SecurityConfig   `mapstructure:"security"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Display    DisplayConfig    `mapstructure:"display"`
	Connection ConnectionConfig `mapstructure:"connection"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	App        AppConfig        `mapstructure:"app"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host" validate:"required"`
	Port         string        `mapstructure:"port" validate:"required"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	TLS          TLSConfig     `mapstructure:"tls"`
}

// TLSConfig represents TLS configuration
type TLSConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
}

// SecurityConfig represents security configuration
type SecurityConfig struct {
	AllowedOrigins    []string `mapstructure:"allowed_origins"`
	RateLimitEnabled  bool     `mapstructure:"rate_limit_enabled"`
	RateLimitRequests float64  `mapstructure:"rate_limit_requests"` // per second
	RateLimitBurst    int      `mapstructure:"rate_limit_burst"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level" validate:"required"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// DisplayConfig describes the attached HMI display and protocol timing
type DisplayConfig struct {
	DeviceID            string        `mapstructure:"device_id"`
	Model               string        `mapstructure:"model"`
	HeaderHigh          int           `mapstructure:"header_high"` // -1 keeps the model's header
	HeaderLow           int           `mapstructure:"header_low"`
	Timeout             time.Duration `mapstructure:"timeout"`
	PollInterval        time.Duration `mapstructure:"poll_interval"`
	EventPollInterval   time.Duration `mapstructure:"event_poll_interval"`
	MaxEventWords       int           `mapstructure:"max_event_words"`
	HealthCheckInterval time.Duration `mapstructure:"health_check_interval"`
	SyncRTCOnStart      bool          `mapstructure:"sync_rtc_on_start"`
	ConnectOnStart      bool          `mapstructure:"connect_on_start"`
}

// ConnectionConfig selects and configures the display link
type ConnectionConfig struct {
	Type   string           `mapstructure:"type"`
	Serial SerialPortConfig `mapstructure:"serial"`
	TCP    TCPPortConfig    `mapstructure:"tcp"`
	USB    USBPortConfig    `mapstructure:"usb"`
}

// SerialPortConfig represents serial port configuration
type SerialPortConfig struct {
	Port        string        `mapstructure:"port"`
	BaudRate    int           `mapstructure:"baud_rate"`
	DataBits    int           `mapstructure:"data_bits"`
	StopBits    int           `mapstructure:"stop_bits"`
	Parity      string        `mapstructure:"parity"`
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
}

// TCPPortConfig represents a serial-to-Ethernet bridge
type TCPPortConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	SSL            bool          `mapstructure:"ssl"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	KeepAlive      bool          `mapstructure:"keep_alive"`
}

// USBPortConfig represents USB bulk interface configuration
type USBPortConfig struct {
	VendorID     string        `mapstructure:"vendor_id"`
	ProductID    string        `mapstructure:"product_id"`
	Interface    int           `mapstructure:"interface"`
	InEndpoint   int           `mapstructure:"in_endpoint"`
	OutEndpoint  int           `mapstructure:"out_endpoint"`
	SerialNumber string        `mapstructure:"serial_number"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// MetricsConfig represents Prometheus exposition settings
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Path      string `mapstructure:"path"`
	Namespace string `mapstructure:"namespace"`
}

// AppConfig represents application metadata
type AppConfig struct {
	Name        string `mapstructure:"name" validate:"required"`
	Version     string `mapstructure:"version" validate:"required"`
	Environment string `mapstructure:"environment" validate:"required"`
	Debug       bool   `mapstructure:"debug"`
}

// Load loads configuration from a file and STONE_HMI_* environment
// variables. An empty path searches for config.yaml in the working directory
// and ./configs; a missing file is only an error when path is explicit.
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
	}

	// Environment variable support
	v.SetEnvPrefix("STONE_HMI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set defaults
	setDefaults(v)

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// Validate configuration
	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8085")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.tls.enabled", false)

	// Security defaults
	v.SetDefault("security.allowed_origins", []string{"*"})
	v.SetDefault("security.rate_limit_enabled", true)
	v.SetDefault("security.rate_limit_requests", 20)
	v.SetDefault("security.rate_limit_burst", 40)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.max_size", 100)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age", 28)
	v.SetDefault("logging.compress", true)

	// Display defaults
	v.SetDefault("display.device_id", "stone-hmi-0")
	v.SetDefault("display.model", "STONE_STVI")
	v.SetDefault("display.header_high", -1)
	v.SetDefault("display.header_low", -1)
	v.SetDefault("display.timeout", "200ms")
	v.SetDefault("display.poll_interval", "1ms")
	v.SetDefault("display.event_poll_interval", "20ms")
	v.SetDefault("display.max_event_words", 32)
	v.SetDefault("display.health_check_interval", "30s")
	v.SetDefault("display.sync_rtc_on_start", false)
	v.SetDefault("display.connect_on_start", true)

	// Connection defaults
	v.SetDefault("connection.type", "serial")
	v.SetDefault("connection.serial.port", "/dev/ttyUSB0")
	v.SetDefault("connection.serial.baud_rate", 115200)
	v.SetDefault("connection.serial.data_bits", 8)
	v.SetDefault("connection.serial.stop_bits", 1)
	v.SetDefault("connection.serial.parity", "none")
	v.SetDefault("connection.serial.read_timeout", "50ms")

	v.SetDefault("connection.tcp.port", 8899)
	v.SetDefault("connection.tcp.connect_timeout", "10s")
	v.SetDefault("connection.tcp.write_timeout", "2s")
	v.SetDefault("connection.tcp.keep_alive", true)

	v.SetDefault("connection.usb.interface", 0)
	v.SetDefault("connection.usb.in_endpoint", 1)
	v.SetDefault("connection.usb.out_endpoint", 1)
	v.SetDefault("connection.usb.timeout", "2s")

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("metrics.namespace", "stone_hmi")

	// App defaults
	v.SetDefault("app.name", "stone-hmi-service")
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.debug", false)
}

// validate validates the configuration
func validate(config *Config) error {
	// Basic validation
	if config.Server.Host == "" {
		return fmt.Errorf("server.host is required")
	}
	if config.Server.Port == "" {
		return fmt.Errorf("server.port is required")
	}
	if config.Display.DeviceID == "" {
		return fmt.Errorf("display.device_id is required")
	}

	// Header bytes travel as single bytes on the wire; -1 defers to the model
	if config.Display.HeaderHigh < -1 || config.Display.HeaderHigh > 0xFF {
		return fmt.Errorf("display.header_high must be a byte or -1, got %d", config.Display.HeaderHigh)
	}
	if config.Display.HeaderLow < -1 || config.Display.HeaderLow > 0xFF {
		return fmt.Errorf("display.header_low must be a byte or -1, got %d", config.Display.HeaderLow)
	}
	if config.Display.Timeout <= 0 {
		return fmt.Errorf("display.timeout must be positive")
	}
	if config.Display.MaxEventWords < 0 || config.Display.MaxEventWords > 0xFF {
		return fmt.Errorf("display.max_event_words must be between 0 and 255")
	}

	// Validate connection type
	validTypes := []string{"serial", "tcp", "usb"}
	isValidType := false
	for _, t := range validTypes {
		if strings.ToLower(config.Connection.Type) == t {
			isValidType = true
			break
		}
	}
	if !isValidType {
		return fmt.Errorf("connection.type must be one of: %v", validTypes)
	}

	// Validate environment
	validEnvs := []string{"development", "staging", "production", "test"}
	isValidEnv := false
	for _, env := range validEnvs {
		if config.App.Environment == env {
			isValidEnv = true
			break
		}
	}
	if !isValidEnv {
		return fmt.Errorf("app.environment must be one of: %v", validEnvs)
	}

	// Validate logging level
	validLevels := []string{"debug", "info", "warn", "error", "fatal"}
	isValidLevel := false
	for _, level := range validLevels {
		if config.Logging.Level == level {
			isValidLevel = true
			break
		}
	}
	if !isValidLevel {
		return fmt.Errorf("logging.level must be one of: %v", validLevels)
	}

	return nil
}

// GetServerAddr returns the server address
func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%s", c.Server.Host, c.Server.Port)
}

// IsProduction checks if the environment is production
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// IsDevelopment checks if the environment is development
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// IsDebugEnabled checks if debug mode is enabled
func (c *Config) IsDebugEnabled() bool {
	return c.App.Debug || c.IsDevelopment()
}
