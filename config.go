package thunder

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/zero-day-ai/thunder/transport"
	"gopkg.in/yaml.v3"
)

// DefaultVersionKey is the Versions key that applies to plugins without
// their own entry.
const DefaultVersionKey = "default"

// Config describes the device to talk to.
//
// A YAML file for LoadConfig looks like:
//
//	host: 192.168.1.10
//	port: 9998
//	versions:
//	  default: 1
//	  Controller: 2
//	request_timeout: 15s
type Config struct {
	// Host is the device address. Required.
	Host string `yaml:"host"`

	// Port of the JSON-RPC endpoint. Default: 80
	Port int `yaml:"port,omitempty"`

	// Endpoint path. Default: "/jsonrpc"
	Endpoint string `yaml:"endpoint,omitempty"`

	// Protocol is the URL scheme. Default: "ws://"
	Protocol string `yaml:"protocol,omitempty"`

	// Versions maps plugin names to the API version used in method names.
	// The DefaultVersionKey entry applies to all other plugins. Default: 1
	Versions map[string]int `yaml:"versions,omitempty"`

	// Debug lowers the default logger's level to Debug.
	Debug bool `yaml:"debug,omitempty"`

	DialTimeout    time.Duration `yaml:"dial_timeout,omitempty"`
	RequestTimeout time.Duration `yaml:"request_timeout,omitempty"`
}

// LoadConfig reads a YAML configuration file and applies defaults. The
// result is not validated.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, NewConfigurationError("LoadConfig", fmt.Errorf("failed to read config file: %w", err))
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, NewConfigurationError("LoadConfig", fmt.Errorf("failed to parse config file: %w", err))
	}

	cfg.ApplyDefaults()
	return cfg, nil
}

// ApplyDefaults fills unset fields with their defaults.
func (c *Config) ApplyDefaults() {
	if c.Port == 0 {
		c.Port = 80
	}
	if c.Endpoint == "" {
		c.Endpoint = "/jsonrpc"
	}
	if c.Protocol == "" {
		c.Protocol = "ws://"
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 10 * time.Second
	}
}

// Validate reports whether the configuration can be used to connect.
func (c Config) Validate() error {
	if c.Host == "" {
		return NewConfigurationError("Config.Validate", fmt.Errorf("%w: host is required", ErrInvalidConfig))
	}
	if c.Port < 0 || c.Port > 65535 {
		return NewConfigurationError("Config.Validate", fmt.Errorf("%w: port %d out of range", ErrInvalidConfig, c.Port))
	}
	for name, v := range c.Versions {
		if v < 1 {
			return NewConfigurationError("Config.Validate",
				fmt.Errorf("%w: version for %q must be at least 1", ErrInvalidConfig, name))
		}
	}
	return nil
}

// Version returns the API version for plugin.
func (c Config) Version(plugin string) int {
	if v, ok := c.Versions[plugin]; ok && v > 0 {
		return v
	}
	if v, ok := c.Versions[DefaultVersionKey]; ok && v > 0 {
		return v
	}
	return 1
}

// MethodName returns the JSON-RPC method for a plugin method, e.g.
// "DeviceInfo.1.systeminfo".
func (c Config) MethodName(plugin, method string) string {
	return plugin + "." + strconv.Itoa(c.Version(plugin)) + "." + method
}

func (c Config) transportConfig() transport.Config {
	return transport.Config{
		Host:           c.Host,
		Port:           c.Port,
		Endpoint:       c.Endpoint,
		Protocol:       c.Protocol,
		DialTimeout:    c.DialTimeout,
		RequestTimeout: c.RequestTimeout,
	}
}
