package cmd

import (
	"github.com/spf13/cobra"
)

// version is the build version reported by `slotkeeper version` and the
// MCP server handshake.
var version = "dev"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "slotkeeper",
		Short: "Calendar scheduling and conflict resolution for AI agents",
		Long: `slotkeeper keeps per-agent calendars of prioritized appointments and
resolves scheduling conflicts by rescheduling or cancelling lower-priority
appointments according to configurable strategies.

Run it as an MCP server for AI assistants (serve) or as a periodic
utilization digest (digest).`,
		Version:      version,
		SilenceUsage: true,
	}
	root.SetVersionTemplate("slotkeeper version {{.Version}}\n")

	root.AddCommand(
		newServeCmd(),
		newDigestCmd(),
		newMigrateCmd(),
		newGenerateDocsCmd(),
		newVersionCmd(),
	)
	return root
}

// Execute runs the CLI as build version v.
func Execute(v string) error {
	version = v
	return newRootCmd().Execute()
}
