// =============================================================================
// ERP to CoreTax Converter - Version Command
// =============================================================================
//
// COMMAND USAGE:
//   converter version
//
// OUTPUT:
//   ERP to CoreTax Converter
//   Version:    1.0.0
//   Build Date: 2025-01-01
//   Go Version: go1.24.0
//
// =============================================================================

package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// Version and BuildDate are set at build time:
//
//	go build -ldflags "-X .../cmd.Version=1.2.0 -X .../cmd.BuildDate=2025-01-01"
var (
	Version   = "1.0.0"
	BuildDate = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Display the application version",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "ERP to CoreTax Converter")
		fmt.Fprintf(out, "Version:    %s\n", Version)
		fmt.Fprintf(out, "Build Date: %s\n", BuildDate)
		fmt.Fprintf(out, "Go Version: %s\n", runtime.Version())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
