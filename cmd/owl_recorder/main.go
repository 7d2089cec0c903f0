// Command owl_recorder records tracking sessions from an OWL server into
// one of the storage backends.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/OCAP2/owl/internal/config"
)

// ProgramName names log files, telemetry and the default recording prefix.
const ProgramName = "owl_recorder"

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   ProgramName,
		Short: "Record OWL motion capture sessions",
		Long: `owl_recorder connects to an OWL tracking server, streams its frames
and writes them to the configured storage backend (memory export,
SQLite, Postgres, WebSocket, optionally mirrored to InfluxDB).`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.shutdown()
		},
	}

	rootCmd.PersistentFlags().StringVar(&a.configDir, "config", ".", "directory containing "+config.FileName)
	rootCmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override the configured log level")

	rootCmd.AddCommand(
		scanCmd(a),
		recordCmd(a),
		propsCmd(a),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
