package cli

import (
	"github.com/spf13/cobra"

	"github.com/airblackbox/runtime-aibom-emitter/internal/collector"
)

var traceCmd = &cobra.Command{
	Use:   "trace",
	Short: "Build an AIBOM from an OTLP JSON trace export",
	Long:  "Reads an OTLP JSON trace export and lists the models, tools, frameworks and endpoints its spans name. Runs locally; no server needed.",
	RunE:  runTrace,
}

func init() {
	traceCmd.Flags().String("trace", "", "Path to OTLP JSON trace export")
	traceCmd.Flags().String("app", "unknown", "Application or agent name")
	traceCmd.Flags().StringP("output", "o", "", "Output file (default stdout)")
	_ = traceCmd.MarkFlagRequired("trace")
	rootCmd.AddCommand(traceCmd)
}

func runTrace(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("trace")
	app, _ := cmd.Flags().GetString("app")
	output, _ := cmd.Flags().GetString("output")

	cfg := collector.DefaultConfig()
	cfg.ToolVersion = version
	doc, err := collector.CollectFromFile(path, app, cfg)
	if err != nil {
		return err
	}
	if output == "" {
		return printJSON(cmd.OutOrStdout(), doc)
	}
	if err := doc.SaveFile(output); err != nil {
		return err
	}
	printOK(cmd.OutOrStdout(), "AIBOM written to %s (%d components, %d services)", output, len(doc.Components), len(doc.Services))
	return nil
}
