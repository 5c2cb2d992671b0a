package internal

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultPrefix = "!"

	DefaultBucketCapacity = int32(5)
	DefaultBucketWindow   = 5 * time.Second

	DefaultGlobalCapacity = int32(50)
	DefaultGlobalWindow   = time.Second

	DefaultAutodeleteDelay = 10 * time.Second
)

// Configuration represents the client configuration file. It is read once
// at construction and immutable afterwards.
type Configuration struct {
	Token string `json:"token" yaml:"token"`

	Bot BotConfiguration `json:"bot" yaml:"bot"`

	RateLimits RateLimitConfiguration `json:"rate_limits" yaml:"rate_limits"`

	HTTP HTTPConfiguration `json:"http" yaml:"http"`
}

type BotConfiguration struct {
	Prefix string `json:"prefix" yaml:"prefix"`

	// IgnoreSelf skips dispatch for messages authored by the bot itself.
	IgnoreSelf bool `json:"ignore_self" yaml:"ignore_self"`

	Intents int64 `json:"intents" yaml:"intents"`

	// DefaultCommands registers the builtin ping/help/uptime commands.
	DefaultCommands bool `json:"default_commands" yaml:"default_commands"`

	// CooldownNotice replies with a notice when an invocation is dropped
	// by a cooldown. When false the invocation is dropped silently.
	CooldownNotice bool `json:"cooldown_notice" yaml:"cooldown_notice"`

	// Autodelete removes the invoking command message after AutodeleteDelay.
	Autodelete      bool          `json:"autodelete" yaml:"autodelete"`
	AutodeleteDelay time.Duration `json:"autodelete_delay" yaml:"autodelete_delay"`
}

type RateLimitConfiguration struct {
	// Buckets start at these limits until the service returns
	// authoritative ones for a route.
	DefaultCapacity int32         `json:"default_capacity" yaml:"default_capacity"`
	DefaultWindow   time.Duration `json:"default_window" yaml:"default_window"`

	GlobalCapacity int32         `json:"global_capacity" yaml:"global_capacity"`
	GlobalWindow   time.Duration `json:"global_window" yaml:"global_window"`
}

type HTTPConfiguration struct {
	// Host serves the status endpoints when Enabled.
	Host    string `json:"host" yaml:"host"`
	Enabled bool   `json:"enabled" yaml:"enabled"`

	PrometheusAddress string `json:"prometheus_address" yaml:"prometheus_address"`
}

// LoadConfiguration reads the configuration file and fills in defaults.
func LoadConfiguration(path string) (configuration Configuration, err error) {
	file, err := os.ReadFile(path)
	if err != nil {
		return configuration, ErrReadConfigurationFailure
	}

	err = yaml.Unmarshal(file, &configuration)
	if err != nil {
		return configuration, ErrLoadConfigurationFailure
	}

	configuration.applyDefaults()

	return configuration, nil
}

// DefaultConfiguration returns a configuration with every default filled
// in and no token.
func DefaultConfiguration() Configuration {
	configuration := Configuration{}
	configuration.Bot.IgnoreSelf = true
	configuration.Bot.DefaultCommands = true
	configuration.applyDefaults()

	return configuration
}

func (configuration *Configuration) applyDefaults() {
	if configuration.Bot.Prefix == "" {
		configuration.Bot.Prefix = DefaultPrefix
	}

	if configuration.Bot.AutodeleteDelay <= 0 {
		configuration.Bot.AutodeleteDelay = DefaultAutodeleteDelay
	}

	if configuration.RateLimits.DefaultCapacity <= 0 {
		configuration.RateLimits.DefaultCapacity = DefaultBucketCapacity
	}

	if configuration.RateLimits.DefaultWindow <= 0 {
		configuration.RateLimits.DefaultWindow = DefaultBucketWindow
	}

	if configuration.RateLimits.GlobalCapacity <= 0 {
		configuration.RateLimits.GlobalCapacity = DefaultGlobalCapacity
	}

	if configuration.RateLimits.GlobalWindow <= 0 {
		configuration.RateLimits.GlobalWindow = DefaultGlobalWindow
	}
}
