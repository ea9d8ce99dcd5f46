package cli

import (
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the monitoring service",
	Long: `Run the scheduled price cycle together with the HTTP surface (/ping, /price, /get, /set)
and, when metrics.addr is set, the Prometheus listener. Stops on SIGINT or SIGTERM.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Run(cmd.Context())
	},
}
