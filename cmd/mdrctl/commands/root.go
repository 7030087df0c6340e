package commands

import (
	"fmt"
	"os"

	"github.com/godbus/dbus/v5"
	"github.com/spf13/cobra"
)

var (
	// conn is the D-Bus connection, initialized in PersistentPreRunE.
	conn *dbus.Conn

	// systemBus selects the system bus instead of the session bus.
	systemBus bool

	// busName is the well-known name mdrd registers.
	busName string

	// outputFormat controls the output format for all commands (table or json).
	outputFormat string
)

// rootCmd is the top-level cobra command for mdrctl.
var rootCmd = &cobra.Command{
	Use:   "mdrctl",
	Short: "CLI client for the mdrd daemon",
	Long:  "mdrctl talks to the mdrd daemon over D-Bus to inspect and control connected MDR devices.",
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		var err error
		if systemBus {
			conn, err = dbus.ConnectSystemBus()
		} else {
			conn, err = dbus.ConnectSessionBus()
		}
		if err != nil {
			return fmt.Errorf("connect to D-Bus: %w", err)
		}
		return nil
	},
	// Silence cobra's built-in usage/error printing so we control it.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&systemBus, "system", true, "use the system bus instead of the session bus")
	rootCmd.PersistentFlags().StringVar(&busName, "bus-name", "org.mdr", "mdrd's registered D-Bus name")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "table", "output format: table, json")

	rootCmd.AddCommand(sessionCmd())
	rootCmd.AddCommand(propertyCmd())
	rootCmd.AddCommand(monitorCmd())
	rootCmd.AddCommand(versionCmd())
}

// Execute runs the root command and exits with code 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
