package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// Set confirmation policies
const (
	ConfirmReadback = "readback"
	ConfirmEcho     = "echo"
	ConfirmNone     = "none"
)

// Config represents the ftxd configuration
type Config struct {
	Radio struct {
		// CAT link
		Device   string `yaml:"device"` // serial path, tcp://host:port or sim://
		BaudRate int    `yaml:"baud_rate"`

		// Transactions
		TimeoutMs  int    `yaml:"timeout_ms"`
		MaxRetries *int   `yaml:"max_retries"` // nil means the default
		Confirm    string `yaml:"confirm"`
		Echo       bool   `yaml:"echo"`

		// State polling, 0 disables
		PollInterval int `yaml:"poll_interval"`
	} `yaml:"radio"`

	Web struct {
		Port        int    `yaml:"port"`
		BindAddress string `yaml:"bind_address"`
	} `yaml:"web"`

	API struct {
		UnixSocket string `yaml:"unix_socket"`
	} `yaml:"api"`

	Storage struct {
		DatabasePath string `yaml:"database_path"`
		MaxSnapshots int    `yaml:"max_snapshots"`
	} `yaml:"storage"`

	Logging struct {
		Level      string `yaml:"level"`
		File       string `yaml:"file"`
		Console    bool   `yaml:"console"`
		Structured bool   `yaml:"structured"`
		MaxSize    int    `yaml:"max_size"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAge     int    `yaml:"max_age"`
		Compress   bool   `yaml:"compress"`
	} `yaml:"logging"`
}

// LoadConfig loads configuration from a YAML file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig parses YAML configuration and applies defaults
func ParseConfig(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	config.ApplyDefaults()
	return &config, nil
}

// Default returns a configuration with every default applied
func Default() *Config {
	var config Config
	config.ApplyDefaults()
	return &config
}

// ApplyDefaults fills in unset values
func (c *Config) ApplyDefaults() {
	if c.Radio.BaudRate == 0 {
		c.Radio.BaudRate = 38400
	}
	if c.Radio.TimeoutMs == 0 {
		c.Radio.TimeoutMs = 500
	}
	if c.Radio.MaxRetries == nil {
		retries := 2
		c.Radio.MaxRetries = &retries
	}
	if c.Radio.Confirm == "" {
		c.Radio.Confirm = ConfirmReadback
	}
	c.Radio.Confirm = strings.ToLower(c.Radio.Confirm)
	if c.Web.Port == 0 {
		c.Web.Port = 8080
	}
	if c.Web.BindAddress == "" {
		c.Web.BindAddress = "0.0.0.0"
	}
	if c.API.UnixSocket == "" {
		c.API.UnixSocket = "/tmp/ftxd.sock"
	}
	if c.Storage.MaxSnapshots == 0 {
		c.Storage.MaxSnapshots = 10000
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.MaxSize == 0 {
		c.Logging.MaxSize = 10
	}
	if c.Logging.MaxBackups == 0 {
		c.Logging.MaxBackups = 3
	}
	if c.Logging.MaxAge == 0 {
		c.Logging.MaxAge = 28
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Radio.Device == "" {
		return fmt.Errorf("radio device is required")
	}
	if c.Radio.BaudRate < 0 {
		return fmt.Errorf("invalid baud rate %d", c.Radio.BaudRate)
	}
	if c.Radio.TimeoutMs <= 0 {
		return fmt.Errorf("radio timeout must be positive, got %dms", c.Radio.TimeoutMs)
	}
	if c.Retries() < 0 {
		return fmt.Errorf("max retries must not be negative, got %d", c.Retries())
	}
	switch c.Radio.Confirm {
	case ConfirmReadback, ConfirmEcho, ConfirmNone:
	default:
		return fmt.Errorf("unknown confirm mode %q", c.Radio.Confirm)
	}
	if c.Radio.PollInterval < 0 {
		return fmt.Errorf("poll interval must not be negative, got %d", c.Radio.PollInterval)
	}
	if c.Web.Port < 0 || c.Web.Port > 65535 {
		return fmt.Errorf("invalid web port %d", c.Web.Port)
	}
	if c.Storage.MaxSnapshots < 0 {
		return fmt.Errorf("max snapshots must not be negative, got %d", c.Storage.MaxSnapshots)
	}
	return nil
}

// Timeout returns the per-attempt response timeout
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Radio.TimeoutMs) * time.Millisecond
}

// Retries returns the number of extra attempts after a timeout
func (c *Config) Retries() int {
	if c.Radio.MaxRetries == nil {
		return 0
	}
	return *c.Radio.MaxRetries
}

// PollEvery returns the state poll period, 0 when polling is off
func (c *Config) PollEvery() time.Duration {
	return time.Duration(c.Radio.PollInterval) * time.Millisecond
}

// GetRadioName returns a display name for the configured device
func (c *Config) GetRadioName() string {
	switch {
	case c.Radio.Device == "":
		return "No Radio"
	case strings.HasPrefix(c.Radio.Device, "sim://"):
		return "Yaesu FTX-1 (simulated)"
	case strings.HasPrefix(c.Radio.Device, "tcp://"):
		return fmt.Sprintf("Yaesu FTX-1 via %s", strings.TrimPrefix(c.Radio.Device, "tcp://"))
	default:
		return fmt.Sprintf("Yaesu FTX-1 on %s", c.Radio.Device)
	}
}
