// Package config handles configuration management using Viper
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	IPC       IPCConfig       `mapstructure:"ipc"`
	Keyboard  KeyboardConfig  `mapstructure:"keyboard"`
	Pointer   PointerConfig   `mapstructure:"pointer"`
	Input     InputConfig     `mapstructure:"input"`
	Output    OutputConfig    `mapstructure:"output"`
	Protocols ProtocolsConfig `mapstructure:"protocols"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig contains Wayland socket settings
type ServerConfig struct {
	SocketName   string `mapstructure:"socket_name"`    // Name of the socket inside XDG_RUNTIME_DIR
	MaxClients   int    `mapstructure:"max_clients"`    // 0 means unlimited
	FlushDelayMs int    `mapstructure:"flush_delay_ms"` // Upper bound on how long events sit in a client buffer
}

// IPCConfig contains the status socket settings
type IPCConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	SocketPath string `mapstructure:"socket_path"` // Empty means $XDG_RUNTIME_DIR/waycore.sock
}

// KeyboardConfig contains key repeat and keymap settings
type KeyboardConfig struct {
	RepeatRate  int    `mapstructure:"repeat_rate"`  // Repeats per second, 0 disables repeat
	RepeatDelay int    `mapstructure:"repeat_delay"` // Milliseconds before the first repeat
	KeymapFile  string `mapstructure:"keymap_file"`  // XKB keymap sent to clients, empty sends no_keymap
	Layout      string `mapstructure:"layout"`
}

// PointerConfig contains pointer acceleration settings
type PointerConfig struct {
	AccelProfile string  `mapstructure:"accel_profile"` // "flat" or "adaptive"
	Sensitivity  float64 `mapstructure:"sensitivity"`   // -1.0 .. 1.0
}

// InputConfig selects the evdev devices feeding the seat
type InputConfig struct {
	Devices    []string `mapstructure:"devices"`    // Explicit /dev/input/event* paths
	Autodetect bool     `mapstructure:"autodetect"` // Scan /dev/input when no devices are listed
}

// OutputConfig describes the single advertised wl_output
type OutputConfig struct {
	Name       string `mapstructure:"name"`
	Width      int    `mapstructure:"width"`
	Height     int    `mapstructure:"height"`
	RefreshMHz int    `mapstructure:"refresh_mhz"`
	Scale      int    `mapstructure:"scale"`
}

// ProtocolsConfig lists directories with extra protocol XML files
type ProtocolsConfig struct {
	ExtraDirs []string `mapstructure:"extra_dirs"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	LogLevel string `mapstructure:"log_level"` // Override LOG_LEVEL env var
}

// maxRepeatRate is the highest key repeat rate in Hz
const maxRepeatRate = 1000

var (
	// DefaultConfig provides sensible defaults
	DefaultConfig = Config{
		Server: ServerConfig{
			SocketName:   "wayland-1",
			MaxClients:   64,
			FlushDelayMs: 2,
		},
		IPC: IPCConfig{
			Enabled:    true,
			SocketPath: "",
		},
		Keyboard: KeyboardConfig{
			RepeatRate:  25,
			RepeatDelay: 600,
			KeymapFile:  "",
			Layout:      "us",
		},
		Pointer: PointerConfig{
			AccelProfile: "adaptive",
			Sensitivity:  0.0,
		},
		Input: InputConfig{
			Devices:    []string{},
			Autodetect: true,
		},
		Output: OutputConfig{
			Name:       "WL-1",
			Width:      1920,
			Height:     1080,
			RefreshMHz: 60000,
			Scale:      1,
		},
		Protocols: ProtocolsConfig{
			ExtraDirs: []string{},
		},
		Logging: LoggingConfig{
			LogLevel: "", // Empty means use LOG_LEVEL env var
		},
	}

	// Global config instance
	cfg *Config

	// Override config path if set
	configPathOverride string
)

// SetConfigPath allows overriding the config path
func SetConfigPath(path string) {
	configPathOverride = path
}

// Init initializes the configuration system
func Init() error {
	viper.SetConfigName("waycore")
	viper.SetConfigType("toml")

	if configPathOverride != "" {
		viper.SetConfigFile(configPathOverride)
	} else {
		viper.AddConfigPath("/etc/waycore")
		if home := os.Getenv("HOME"); home != "" {
			viper.AddConfigPath(filepath.Join(home, ".config", "waycore"))
		}
		viper.AddConfigPath(".")
	}

	// Set defaults - need to set individual fields for proper merging
	viper.SetDefault("server.socket_name", DefaultConfig.Server.SocketName)
	viper.SetDefault("server.max_clients", DefaultConfig.Server.MaxClients)
	viper.SetDefault("server.flush_delay_ms", DefaultConfig.Server.FlushDelayMs)

	viper.SetDefault("ipc.enabled", DefaultConfig.IPC.Enabled)
	viper.SetDefault("ipc.socket_path", DefaultConfig.IPC.SocketPath)

	viper.SetDefault("keyboard.repeat_rate", DefaultConfig.Keyboard.RepeatRate)
	viper.SetDefault("keyboard.repeat_delay", DefaultConfig.Keyboard.RepeatDelay)
	viper.SetDefault("keyboard.keymap_file", DefaultConfig.Keyboard.KeymapFile)
	viper.SetDefault("keyboard.layout", DefaultConfig.Keyboard.Layout)

	viper.SetDefault("pointer.accel_profile", DefaultConfig.Pointer.AccelProfile)
	viper.SetDefault("pointer.sensitivity", DefaultConfig.Pointer.Sensitivity)

	viper.SetDefault("input.devices", DefaultConfig.Input.Devices)
	viper.SetDefault("input.autodetect", DefaultConfig.Input.Autodetect)

	viper.SetDefault("output.name", DefaultConfig.Output.Name)
	viper.SetDefault("output.width", DefaultConfig.Output.Width)
	viper.SetDefault("output.height", DefaultConfig.Output.Height)
	viper.SetDefault("output.refresh_mhz", DefaultConfig.Output.RefreshMHz)
	viper.SetDefault("output.scale", DefaultConfig.Output.Scale)

	viper.SetDefault("protocols.extra_dirs", DefaultConfig.Protocols.ExtraDirs)

	viper.SetDefault("logging.log_level", DefaultConfig.Logging.LogLevel)

	// Read config file if it exists
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found, use defaults
	}

	loaded, err := unmarshal()
	if err != nil {
		return err
	}
	cfg = loaded

	return nil
}

func unmarshal() (*Config, error) {
	c := &Config{}
	if err := viper.Unmarshal(c); err != nil {
		return nil, fmt.Errorf("unable to unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate rejects values the compositor cannot run with
func (c *Config) Validate() error {
	if c.Server.SocketName == "" {
		return fmt.Errorf("server.socket_name must not be empty")
	}
	if strings.ContainsRune(c.Server.SocketName, '/') && !filepath.IsAbs(c.Server.SocketName) {
		return fmt.Errorf("server.socket_name %q must be a bare name or an absolute path", c.Server.SocketName)
	}
	if c.Keyboard.RepeatRate < 0 || c.Keyboard.RepeatRate > maxRepeatRate {
		return fmt.Errorf("keyboard.repeat_rate must be between 0 and %d, got %d", maxRepeatRate, c.Keyboard.RepeatRate)
	}
	if c.Keyboard.RepeatDelay < 0 {
		return fmt.Errorf("keyboard.repeat_delay must be >= 0, got %d", c.Keyboard.RepeatDelay)
	}
	switch c.Pointer.AccelProfile {
	case "flat", "adaptive":
	default:
		return fmt.Errorf("pointer.accel_profile must be \"flat\" or \"adaptive\", got %q", c.Pointer.AccelProfile)
	}
	if c.Pointer.Sensitivity < -1 || c.Pointer.Sensitivity > 1 {
		return fmt.Errorf("pointer.sensitivity must be within [-1, 1], got %v", c.Pointer.Sensitivity)
	}
	if c.Output.Width <= 0 || c.Output.Height <= 0 {
		return fmt.Errorf("output size must be positive, got %dx%d", c.Output.Width, c.Output.Height)
	}
	if c.Output.Scale < 1 {
		return fmt.Errorf("output.scale must be >= 1, got %d", c.Output.Scale)
	}
	return nil
}

// Get returns the current configuration
func Get() *Config {
	if cfg == nil {
		// Return defaults if not initialized
		return &DefaultConfig
	}
	return cfg
}

// Set sets the current configuration (for testing)
func Set(c *Config) {
	cfg = c
}

// Watch re-reads the config file whenever it changes and hands the new
// configuration to fn. Invalid edits are reported through onError and the
// previous configuration stays active. fn runs on viper's watcher goroutine.
// Without a config file there is nothing to watch.
func Watch(fn func(*Config), onError func(error)) {
	if viper.ConfigFileUsed() == "" {
		return
	}
	viper.OnConfigChange(func(e fsnotify.Event) {
		loaded, err := unmarshal()
		if err != nil {
			if onError != nil {
				onError(fmt.Errorf("reloading %s: %w", e.Name, err))
			}
			return
		}
		cfg = loaded
		fn(loaded)
	})
	viper.WatchConfig()
}

// GetConfigPath returns the path to the config file
func GetConfigPath() string {
	if configPathOverride != "" {
		return configPathOverride
	}

	if viper.ConfigFileUsed() != "" {
		return viper.ConfigFileUsed()
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "/etc/waycore/waycore.toml"
	}

	return filepath.Join(home, ".config", "waycore", "waycore.toml")
}

// Save writes the current settings, defaults included, to the config path
func Save() error {
	path := GetConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := viper.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// RuntimeDir returns XDG_RUNTIME_DIR, which holds every socket the server binds
func RuntimeDir() (string, error) {
	dir := os.Getenv("XDG_RUNTIME_DIR")
	if dir == "" {
		return "", fmt.Errorf("XDG_RUNTIME_DIR is not set")
	}
	return dir, nil
}

// SocketPath resolves the Wayland socket path for the configured name
func (c *Config) SocketPath() (string, error) {
	if filepath.IsAbs(c.Server.SocketName) {
		return c.Server.SocketName, nil
	}
	dir, err := RuntimeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, c.Server.SocketName), nil
}

// IPCSocketPath resolves the status socket path
func (c *Config) IPCSocketPath() (string, error) {
	if c.IPC.SocketPath != "" {
		return c.IPC.SocketPath, nil
	}
	dir, err := RuntimeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "waycore.sock"), nil
}
