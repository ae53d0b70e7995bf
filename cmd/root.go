package cmd

import (
	"fmt"

	"github.com/bnema/waycore/internal/config"
	"github.com/bnema/waycore/internal/logger"
	"github.com/spf13/cobra"
)

var (
	cfgFile  string
	logLevel string

	rootCmd = &cobra.Command{
		Use:   "waycore",
		Short: "waycore - Wayland compositor core",
		Long: `waycore is the protocol core of a Wayland compositor. It serves the
Wayland socket, tracks client objects and surfaces and routes evdev input to
the focused clients.`,
		SilenceUsage:      true,
		PersistentPreRunE: initConfig,
	}
)

// Execute runs the root command
func Execute() error {
	rootCmd.Version = Version
	return rootCmd.Execute()
}

func init() {
	rootCmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s\n" .Version}}`)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Config file (default searches /etc/waycore, ~/.config/waycore, .)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(protocolsCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

// initConfig loads the configuration and applies the log level. The flag
// wins over logging.log_level, which wins over LOG_LEVEL.
func initConfig(cmd *cobra.Command, args []string) error {
	if cfgFile != "" {
		config.SetConfigPath(cfgFile)
	}
	// config init creates the file an explicit --config points to
	if err := config.Init(); err != nil && cmd != configInitCmd {
		return fmt.Errorf("failed to load config: %w", err)
	}

	level := config.Get().Logging.LogLevel
	if logLevel != "" {
		level = logLevel
	}
	if level != "" && !logger.SetLevel(level) {
		return fmt.Errorf("unknown log level %q", level)
	}
	return nil
}
