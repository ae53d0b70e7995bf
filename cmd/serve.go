package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bnema/waycore/internal/config"
	"github.com/bnema/waycore/internal/logger"
	"github.com/bnema/waycore/internal/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the compositor core",
	Long: `Bind the Wayland socket in $XDG_RUNTIME_DIR and serve clients until
interrupted. Input devices are read through evdev and the status socket
answers 'waycore status'.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringP("socket", "s", "", "Wayland socket name or absolute path")
	serveCmd.Flags().Int("max-clients", 0, "Maximum number of connected clients")
	serveCmd.Flags().StringSlice("device", nil, "evdev device to read (repeatable)")
	serveCmd.Flags().Bool("no-autodetect", false, "Do not scan /dev/input for devices")
	serveCmd.Flags().Bool("no-ipc", false, "Disable the status socket")

	// Bind flags to viper
	viper.BindPFlag("server.socket_name", serveCmd.Flags().Lookup("socket"))
	viper.BindPFlag("server.max_clients", serveCmd.Flags().Lookup("max-clients"))
	viper.BindPFlag("input.devices", serveCmd.Flags().Lookup("device"))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Get()

	if noAuto, _ := cmd.Flags().GetBool("no-autodetect"); noAuto {
		cfg.Input.Autodetect = false
	}
	if noIPC, _ := cmd.Flags().GetBool("no-ipc"); noIPC {
		cfg.IPC.Enabled = false
	}

	srv, err := server.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Infof("Starting waycore %s", Version)
	logger.Infof("Output %s: %dx%d@%d.%03dHz scale %d", cfg.Output.Name,
		cfg.Output.Width, cfg.Output.Height,
		cfg.Output.RefreshMHz/1000, cfg.Output.RefreshMHz%1000, cfg.Output.Scale)
	if path := config.GetConfigPath(); path != "" {
		logger.Debugf("Config file: %s", path)
	}

	err = srv.Serve(ctx)
	if errors.Is(err, context.Canceled) || ctx.Err() != nil {
		return nil
	}
	return err
}
