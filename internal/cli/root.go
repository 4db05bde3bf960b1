package cli

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	// version can be overridden at build time via:
	// go build -ldflags "-X github.com/airblackbox/runtime-aibom-emitter/internal/cli.version=1.2.3"
	version = "0.1.0"
	logo    = "\n" +
		"  ___ ___ ___  ___  __  __\n" +
		" / _ \\_ _| _ )/ _ \\|  \\/  |\n" +
		"| (_| | || _ \\ (_) | |\\/| |\n" +
		" \\__,_|___|___/\\___/|_|  |_|  emitter\n"
)

var (
	serverURL  string
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:           "aibom-emitter",
	Short:         "Runtime AIBOM Emitter - observe agents, publish what they use",
	Long:          color.CyanString(logo) + "\nObserves agent episodes and publishes the models, tools and data sources they use to an AIBOM engine.",
	SilenceUsage:  true,
	SilenceErrors: false,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		printHeader(cmd.OutOrStdout(), "🏷️ Runtime AIBOM Emitter Version")
		fmt.Fprintf(cmd.OutOrStdout(), "Version: %s\n", version)
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "Emitter base URL (default http://localhost:<server.port>)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output machine-readable JSON")
	rootCmd.AddCommand(versionCmd)
}

func printHeader(w io.Writer, title string) {
	fmt.Fprintln(w, color.CyanString(logo))
	if title != "" {
		fmt.Fprintln(w, title)
		fmt.Fprintln(w, "─────────────────────")
	}
}

func printOK(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "%s %s\n", color.GreenString("✓"), fmt.Sprintf(format, args...))
}

func printFail(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "%s %s\n", color.RedString("✗"), fmt.Sprintf(format, args...))
}
