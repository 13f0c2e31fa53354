package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. HEADLESSCTL_CONSOLE_HISTORY_SIZE.
const EnvPrefix = "HEADLESSCTL"

// Supported runtimes
const (
	RuntimeDocker = "docker"
	RuntimeLocal  = "local"
	RuntimeStub   = "stub"
)

// Config represents the headlessctl configuration
type Config struct {
	Runtime    string    `mapstructure:"runtime"`
	Containers []string  `mapstructure:"containers"`
	Local      Local     `mapstructure:"local"`
	Console    Console   `mapstructure:"console"`
	Monitor    Monitor   `mapstructure:"monitor"`
	Inspector  Inspector `mapstructure:"inspector"`
	Server     Server    `mapstructure:"server"`
	History    History   `mapstructure:"history"`
}

// Local configures the PTY runtime
type Local struct {
	Command []string `mapstructure:"command"`
	Dir     string   `mapstructure:"dir"`
}

// Console configures command sessions
type Console struct {
	LineTerminator string        `mapstructure:"line_terminator"`
	CommandTimeout time.Duration `mapstructure:"command_timeout"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	IdlePolls      int           `mapstructure:"idle_polls"`
	HistorySize    int           `mapstructure:"history_size"`
	IncludeHistory bool          `mapstructure:"include_history"`
}

// Monitor configures the background console reader
type Monitor struct {
	Enabled          bool `mapstructure:"enabled"`
	Wake             bool `mapstructure:"wake"`
	IncludeHistory   bool `mapstructure:"include_history"`
	MaxPartial       int  `mapstructure:"max_partial"`
	KeepPartial      int  `mapstructure:"keep_partial"`
	SubscriberBuffer int  `mapstructure:"subscriber_buffer"`
}

// Inspector configures world focus cycles
type Inspector struct {
	SettleDelay     time.Duration `mapstructure:"settle_delay"`
	ConfirmAttempts int           `mapstructure:"confirm_attempts"`
}

// Server configures the HTTP and websocket transport
type Server struct {
	Listen         string   `mapstructure:"listen"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	HeadlessConfig string   `mapstructure:"headless_config"`
}

// History configures persistence of console history across restarts
type History struct {
	Persist bool   `mapstructure:"persist"`
	Dir     string `mapstructure:"dir"`
}

// ConfigurationError reports a missing or unusable configuration value
type ConfigurationError struct {
	Key    string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration %s: %s", e.Key, e.Reason)
}

// IsConfigurationError reports whether err is a *ConfigurationError
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// Loader reads the configuration and can watch it for changes
type Loader struct {
	v *viper.Viper
}

// NewLoader reads path, or ~/.headlessctl/config.yaml when path is empty.
// A missing default file is not an error.
func NewLoader(path string) (*Loader, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		expanded, err := homedir.Expand(path)
		if err != nil {
			return nil, fmt.Errorf("failed to expand config path: %w", err)
		}
		v.SetConfigFile(expanded)
	} else {
		configDir, err := ConfigDir()
		if err != nil {
			return nil, err
		}
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(configDir)
	}

	// Try to read config file, but don't fail if it doesn't exist
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	return &Loader{v: v}, nil
}

// Load reads and validates the configuration at path (see NewLoader)
func Load(path string) (*Config, error) {
	l, err := NewLoader(path)
	if err != nil {
		return nil, err
	}
	return l.Config()
}

// ConfigFile returns the file the configuration was read from, if any
func (l *Loader) ConfigFile() string {
	return l.v.ConfigFileUsed()
}

// Config decodes and validates the current configuration
func (l *Loader) Config() (*Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	cfg.Local.Dir = expandPath(cfg.Local.Dir)
	cfg.Server.HeadlessConfig = expandPath(cfg.Server.HeadlessConfig)
	cfg.History.Dir = expandPath(cfg.History.Dir)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Watch calls fn with the new configuration every time the config file
// changes. Invalid edits are passed as errors and leave nothing applied.
func (l *Loader) Watch(fn func(*Config, error)) {
	if l.v.ConfigFileUsed() == "" {
		return
	}
	l.v.OnConfigChange(func(fsnotify.Event) {
		fn(l.Config())
	})
	l.v.WatchConfig()
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("runtime", RuntimeDocker)
	v.SetDefault("containers", []string{"resonite-headless"})

	v.SetDefault("local.command", []string{})
	v.SetDefault("local.dir", "")

	v.SetDefault("console.line_terminator", "\r\n")
	v.SetDefault("console.command_timeout", "1s")
	v.SetDefault("console.poll_interval", "100ms")
	v.SetDefault("console.idle_polls", 3)
	v.SetDefault("console.history_size", 25)
	v.SetDefault("console.include_history", false)

	v.SetDefault("monitor.enabled", true)
	v.SetDefault("monitor.wake", true)
	v.SetDefault("monitor.include_history", true)
	v.SetDefault("monitor.max_partial", 8192)
	v.SetDefault("monitor.keep_partial", 4096)
	v.SetDefault("monitor.subscriber_buffer", 256)

	v.SetDefault("inspector.settle_delay", "1s")
	v.SetDefault("inspector.confirm_attempts", 3)

	v.SetDefault("server.listen", ":8000")
	v.SetDefault("server.allowed_origins", []string{"same", "local"})
	v.SetDefault("server.headless_config", "")

	v.SetDefault("history.persist", true)
	v.SetDefault("history.dir", "")
}

// Validate reports the first unusable value as a *ConfigurationError
func (c *Config) Validate() error {
	switch c.Runtime {
	case RuntimeDocker, RuntimeLocal, RuntimeStub:
	default:
		return &ConfigurationError{Key: "runtime", Reason: fmt.Sprintf("unknown runtime %q", c.Runtime)}
	}

	if len(c.Containers) == 0 {
		return &ConfigurationError{Key: "containers", Reason: "at least one container is required"}
	}
	for _, name := range c.Containers {
		if strings.TrimSpace(name) == "" {
			return &ConfigurationError{Key: "containers", Reason: "container names must not be empty"}
		}
	}
	if c.Runtime == RuntimeLocal && len(c.Local.Command) == 0 {
		return &ConfigurationError{Key: "local.command", Reason: "required by the local runtime"}
	}

	if c.Console.LineTerminator != "\r\n" && c.Console.LineTerminator != "\r" {
		return &ConfigurationError{Key: "console.line_terminator", Reason: `must be "\r\n" or "\r"`}
	}
	if c.Console.CommandTimeout <= 0 {
		return &ConfigurationError{Key: "console.command_timeout", Reason: "must be positive"}
	}
	if c.Console.PollInterval <= 0 {
		return &ConfigurationError{Key: "console.poll_interval", Reason: "must be positive"}
	}
	if c.Console.IdlePolls < 1 {
		return &ConfigurationError{Key: "console.idle_polls", Reason: "must be at least 1"}
	}
	if c.Console.HistorySize < 1 {
		return &ConfigurationError{Key: "console.history_size", Reason: "must be at least 1"}
	}

	if c.Monitor.MaxPartial < 1 {
		return &ConfigurationError{Key: "monitor.max_partial", Reason: "must be at least 1"}
	}
	if c.Monitor.KeepPartial < 1 || c.Monitor.KeepPartial > c.Monitor.MaxPartial {
		return &ConfigurationError{Key: "monitor.keep_partial", Reason: "must be between 1 and monitor.max_partial"}
	}
	if c.Monitor.SubscriberBuffer < 1 {
		return &ConfigurationError{Key: "monitor.subscriber_buffer", Reason: "must be at least 1"}
	}

	if c.Inspector.SettleDelay < 0 {
		return &ConfigurationError{Key: "inspector.settle_delay", Reason: "must not be negative"}
	}
	if c.Inspector.ConfirmAttempts < 1 {
		return &ConfigurationError{Key: "inspector.confirm_attempts", Reason: "must be at least 1"}
	}

	if c.Server.Listen == "" {
		return &ConfigurationError{Key: "server.listen", Reason: "required"}
	}

	return nil
}

// HistoryDir returns the directory for persisted console history
func (c *Config) HistoryDir() (string, error) {
	if c.History.Dir != "" {
		return c.History.Dir, nil
	}
	configDir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "history"), nil
}

// expandPath expands ~ in path, keeping the original on failure
func expandPath(path string) string {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return path
	}
	return expanded
}

// ConfigDir returns the headlessctl configuration directory path
func ConfigDir() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".headlessctl"), nil
}

// EnsureConfigDir creates the config directory if it doesn't exist
func EnsureConfigDir() error {
	configDir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(configDir, 0755)
}
