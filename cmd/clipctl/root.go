package main

import (
	"os"

	"github.com/spf13/cobra"
)

const defaultAddr = "http://127.0.0.1:8971"

// commandContext carries the persistent flags; the client is built lazily
// so flag values are resolved after cobra parses them.
type commandContext struct {
	addr  *string
	token *string
}

func (c *commandContext) client() *client {
	return newClient(*c.addr, *c.token)
}

func newRootCommand() *cobra.Command {
	var addrFlag string
	var tokenFlag string

	ctx := &commandContext{addr: &addrFlag, token: &tokenFlag}

	rootCmd := &cobra.Command{
		Use:           "clipctl",
		Short:         "ClipForge agent CLI",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&addrFlag, "addr", defaultAddr, "Agent API address")
	rootCmd.PersistentFlags().StringVar(&tokenFlag, "token", os.Getenv("CLIPFORGE_TOKEN"),
		"API auth token (defaults to $CLIPFORGE_TOKEN)")

	rootCmd.AddCommand(newStatusCommand(ctx))
	rootCmd.AddCommand(newImportCommand(ctx))
	rootCmd.AddCommand(newClipsCommand(ctx))
	rootCmd.AddCommand(newRemoveCommand(ctx))
	rootCmd.AddCommand(newProbeCommand(ctx))
	rootCmd.AddCommand(newExportCommand(ctx))
	rootCmd.AddCommand(newJobsCommand(ctx))
	rootCmd.AddCommand(newShowCommand(ctx))
	rootCmd.AddCommand(newCancelCommand(ctx))

	return rootCmd
}
