package cmd

import (
	"errors"
	"fmt"

	"github.com/bnema/waycore/internal/config"
	"github.com/bnema/waycore/internal/ipc"
	"github.com/bnema/waycore/internal/ui"
	"github.com/spf13/cobra"
	"google.golang.org/protobuf/encoding/protojson"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the state of the running server",
	Long:  `Query the running server over its status socket and show connected clients, surfaces and input focus.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := config.Get().IPCSocketPath()
		if err != nil {
			return err
		}

		status, err := ipc.NewClient(path).Status()
		if errors.Is(err, ipc.ErrNotRunning) {
			fmt.Fprintln(cmd.OutOrStdout(), "waycore is not running")
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to get server status: %w", err)
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			data, err := protojson.MarshalOptions{Multiline: true}.Marshal(status)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		}

		fmt.Fprintln(cmd.OutOrStdout(), ui.RenderStatus(status))
		return nil
	},
}

func init() {
	statusCmd.Flags().Bool("json", false, "Print the raw report as JSON")
}
