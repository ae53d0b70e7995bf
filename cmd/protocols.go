package cmd

import (
	"fmt"

	"github.com/bnema/waycore/internal/config"
	"github.com/bnema/waycore/internal/logger"
	"github.com/bnema/waycore/internal/protocol"
	"github.com/bnema/waycore/internal/ui"
	"github.com/spf13/cobra"
)

var protocolsCmd = &cobra.Command{
	Use:   "protocols [dir...]",
	Short: "List the protocol interfaces the server understands",
	Long: `List the core Wayland interfaces together with the extension protocols
loaded from protocols.extra_dirs and any directory given as argument.`,
	RunE: runProtocols,
}

func init() {
	protocolsCmd.Flags().BoolP("verbose", "v", false, "Show requests and events with their signatures")
}

func runProtocols(cmd *cobra.Command, args []string) error {
	store, err := protocol.NewCoreStore()
	if err != nil {
		return err
	}

	dirs := append([]string{}, config.Get().Protocols.ExtraDirs...)
	dirs = append(dirs, args...)
	for _, dir := range dirs {
		specs, err := protocol.LoadDir(dir)
		if err != nil {
			return fmt.Errorf("failed to load protocols from %s: %w", dir, err)
		}
		for _, spec := range specs {
			if err := store.Register(spec); err != nil {
				logger.Warnf("Skipping %s from %s: %v", spec.Name, dir, err)
			}
		}
	}

	verbose, _ := cmd.Flags().GetBool("verbose")
	fmt.Fprintln(cmd.OutOrStdout(), ui.RenderProtocols(store.Interfaces(), verbose))
	return nil
}
