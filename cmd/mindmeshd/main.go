package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mindmesh-ai/mindmesh/internal/cli"
	"github.com/mindmesh-ai/mindmesh/internal/cli/admin"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:     "mindmeshd",
		Short:   "Mindmesh daemon and CLI",
		Long:    "Mindmesh daemon for running the knowledge-grounded completion API server",
		Version: version,
	}

	cli.AddHelpJSONFlag(rootCmd)
	rootCmd.AddCommand(admin.ServeCmd())
	rootCmd.AddCommand(admin.PluginsCmd())

	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	cli.CheckHelpJSON(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
