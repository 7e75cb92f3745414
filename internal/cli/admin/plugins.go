package admin

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// PluginsCmd returns the plugins command
func PluginsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plugins",
		Short: "List available ingestion plugins",
		Long:  "List the ingestion plugins the server registers, with their parameter schemas",
		RunE: func(cmd *cobra.Command, args []string) error {
			info := BuildPluginRegistry().Discover()
			out, err := json.MarshalIndent(info, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to encode plugin info: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
}
