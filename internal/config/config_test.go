package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit(t *testing.T) {
	t.Run("initializes with defaults when no config exists", func(t *testing.T) {
		viper.Reset()
		SetConfigPath("")
		t.Setenv("HOME", t.TempDir())

		oldWd, _ := os.Getwd()
		require.NoError(t, os.Chdir(t.TempDir()))
		defer os.Chdir(oldWd)

		require.NoError(t, Init())

		c := Get()
		require.NotNil(t, c)
		assert.Equal(t, "wayland-1", c.Server.SocketName)
		assert.Equal(t, 25, c.Keyboard.RepeatRate)
		assert.Equal(t, 600, c.Keyboard.RepeatDelay)
		assert.Equal(t, "adaptive", c.Pointer.AccelProfile)
	})

	t.Run("reads overrides from an explicit file", func(t *testing.T) {
		viper.Reset()
		path := filepath.Join(t.TempDir(), "waycore.toml")
		contents := `[keyboard]
repeat_rate = 40
repeat_delay = 250

[pointer]
accel_profile = "flat"
sensitivity = -0.5
`
		require.NoError(t, os.WriteFile(path, []byte(contents), 0644))
		SetConfigPath(path)
		defer SetConfigPath("")

		require.NoError(t, Init())

		c := Get()
		assert.Equal(t, 40, c.Keyboard.RepeatRate)
		assert.Equal(t, 250, c.Keyboard.RepeatDelay)
		assert.Equal(t, "flat", c.Pointer.AccelProfile)
		assert.InDelta(t, -0.5, c.Pointer.Sensitivity, 1e-9)
		// Untouched sections keep their defaults
		assert.Equal(t, "wayland-1", c.Server.SocketName)
		assert.Equal(t, path, GetConfigPath())
	})

	t.Run("handles invalid TOML gracefully", func(t *testing.T) {
		viper.Reset()
		path := filepath.Join(t.TempDir(), "waycore.toml")
		require.NoError(t, os.WriteFile(path, []byte("[server\nsocket_name = 1"), 0644))
		SetConfigPath(path)
		defer SetConfigPath("")

		assert.Error(t, Init())
	})

	t.Run("rejects invalid values", func(t *testing.T) {
		viper.Reset()
		path := filepath.Join(t.TempDir(), "waycore.toml")
		require.NoError(t, os.WriteFile(path, []byte("[pointer]\naccel_profile = \"turbo\"\n"), 0644))
		SetConfigPath(path)
		defer SetConfigPath("")

		err := Init()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "accel_profile")
	})
}

func TestSave(t *testing.T) {
	viper.Reset()
	path := filepath.Join(t.TempDir(), "nested", "waycore.toml")
	SetConfigPath(path)
	defer SetConfigPath("")

	_, err := os.Stat(path)
	require.True(t, os.IsNotExist(err))
	require.Error(t, Init(), "an explicit config path must exist")

	viper.Set("keyboard.repeat_rate", 33)
	require.NoError(t, Save())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "accel_profile", "defaults are written too")

	viper.Reset()
	require.NoError(t, Init())
	assert.Equal(t, 33, Get().Keyboard.RepeatRate)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "defaults are valid", mutate: func(c *Config) {}},
		{name: "empty socket name", mutate: func(c *Config) { c.Server.SocketName = "" }, wantErr: true},
		{name: "relative socket path", mutate: func(c *Config) { c.Server.SocketName = "run/wayland-0" }, wantErr: true},
		{name: "absolute socket path", mutate: func(c *Config) { c.Server.SocketName = "/tmp/wayland-9" }},
		{name: "negative repeat rate", mutate: func(c *Config) { c.Keyboard.RepeatRate = -1 }, wantErr: true},
		{name: "zero repeat rate disables repeat", mutate: func(c *Config) { c.Keyboard.RepeatRate = 0 }},
		{name: "repeat rate at the cap", mutate: func(c *Config) { c.Keyboard.RepeatRate = 1000 }},
		{name: "repeat rate above the cap", mutate: func(c *Config) { c.Keyboard.RepeatRate = 1001 }, wantErr: true},
		{name: "sensitivity out of range", mutate: func(c *Config) { c.Pointer.Sensitivity = 1.5 }, wantErr: true},
		{name: "zero output width", mutate: func(c *Config) { c.Output.Width = 0 }, wantErr: true},
		{name: "zero output scale", mutate: func(c *Config) { c.Output.Scale = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSocketPaths(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", "/run/user/1000")

	c := DefaultConfig
	path, err := c.SocketPath()
	require.NoError(t, err)
	assert.Equal(t, "/run/user/1000/wayland-1", path)

	ipcPath, err := c.IPCSocketPath()
	require.NoError(t, err)
	assert.Equal(t, "/run/user/1000/waycore.sock", ipcPath)

	c.IPC.SocketPath = "/tmp/custom.sock"
	ipcPath, err = c.IPCSocketPath()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/custom.sock", ipcPath)

	t.Setenv("XDG_RUNTIME_DIR", "")
	c.Server.SocketName = "wayland-2"
	_, err = c.SocketPath()
	assert.Error(t, err)
}
