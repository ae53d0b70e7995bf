package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/bnema/waycore/internal/config"
	"github.com/bnema/waycore/internal/logger"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage waycore configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Get()

		logger.Info("Current Configuration:")
		logger.Infof("Config file: %s\n", config.GetConfigPath())

		logger.Info("[Server]")
		if path, err := cfg.SocketPath(); err == nil {
			logger.Infof("  Socket: %s", path)
		} else {
			logger.Infof("  Socket Name: %s (%v)", cfg.Server.SocketName, err)
		}
		logger.Infof("  Max Clients: %d", cfg.Server.MaxClients)
		logger.Infof("  Flush Delay: %d ms", cfg.Server.FlushDelayMs)

		logger.Info("\n[IPC]")
		logger.Infof("  Enabled: %v", cfg.IPC.Enabled)
		if path, err := cfg.IPCSocketPath(); err == nil {
			logger.Infof("  Socket: %s", path)
		}

		logger.Info("\n[Keyboard]")
		logger.Infof("  Layout: %s", cfg.Keyboard.Layout)
		if cfg.Keyboard.KeymapFile != "" {
			logger.Infof("  Keymap File: %s", cfg.Keyboard.KeymapFile)
		}
		logger.Infof("  Repeat: %d/s after %d ms", cfg.Keyboard.RepeatRate, cfg.Keyboard.RepeatDelay)

		logger.Info("\n[Pointer]")
		logger.Infof("  Acceleration: %s", cfg.Pointer.AccelProfile)
		logger.Infof("  Sensitivity: %.2f", cfg.Pointer.Sensitivity)

		logger.Info("\n[Input]")
		logger.Infof("  Autodetect: %v", cfg.Input.Autodetect)
		if len(cfg.Input.Devices) > 0 {
			logger.Infof("  Devices: %s", strings.Join(cfg.Input.Devices, ", "))
		}

		logger.Info("\n[Output]")
		logger.Infof("  %s: %dx%d, %d mHz, scale %d", cfg.Output.Name, cfg.Output.Width, cfg.Output.Height, cfg.Output.RefreshMHz, cfg.Output.Scale)

		if len(cfg.Protocols.ExtraDirs) > 0 {
			logger.Info("\n[Protocols]")
			for _, dir := range cfg.Protocols.ExtraDirs {
				logger.Infof("  - %s", dir)
			}
		}
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration file with defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := config.GetConfigPath()
		if _, err := os.Stat(configPath); err == nil {
			force, _ := cmd.Flags().GetBool("force")
			if !force {
				logger.Infof("Configuration file already exists at: %s", configPath)
				logger.Info("Use --force to overwrite")
				return nil
			}
		}

		if err := config.Save(); err != nil {
			return err
		}
		logger.Infof("Configuration initialized at: %s", configPath)
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file path",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), config.GetConfigPath())
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)

	configInitCmd.Flags().Bool("force", false, "Force overwrite existing configuration")
}
