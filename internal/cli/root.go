package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func NewRootCommand(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "codescape",
		Short: "Ingest a codebase into symbols, entities and a token index",
		Long: `Codescape reads a source tree, asks a language server for the
symbols of every file, and builds the per-file entities and token
index a renderer consumes.

The annotated tree is saved to .codescape/state.json.`,
		Version:      version,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug|info|warn|error (default from config)")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("codescape %s\n", version)
		},
	}

	rootCmd.AddCommand(
		newInitCommand(),
		newIngestCommand(),
		newShowCommand(),
		newStatusCommand(),
		newDoctorCommand(),
		versionCmd,
	)

	return rootCmd
}

func newInitCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "init [path]",
		Short: "Write a starter .codescape.yaml for the codebase",
		Args:  cobra.MaximumNArgs(1),
		RunE:  RunInit,
	}
}

func newIngestCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest [path]",
		Short: "Read, annotate and process a codebase, then save the snapshot",
		Args:  cobra.MaximumNArgs(1),
		RunE:  RunIngest,
	}
	addConfigFlags(cmd)
	cmd.Flags().Bool("no-lsp", false, "Skip the language server and ingest without symbols")
	cmd.Flags().Bool("json", false, "Print machine-readable run summary")
	cmd.Flags().Bool("telemetry", false, "Write language server spans and metrics to stderr")
	return cmd
}

func newShowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show [path]",
		Short: "Print the saved snapshot",
		Args:  cobra.MaximumNArgs(1),
		RunE:  RunShow,
	}
	cmd.Flags().Bool("json", false, "Print the snapshot as JSON")
	cmd.Flags().Bool("jsonl", false, "Print one JSON record per file")
	cmd.Flags().Bool("symbols", false, "Include symbols in the tree output")
	return cmd
}

func newStatusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status [path]",
		Short: "Show which files changed since the last ingest",
		Args:  cobra.MaximumNArgs(1),
		RunE:  RunStatus,
	}
	cmd.Flags().Bool("json", false, "Print machine-readable status output")
	return cmd
}

func newDoctorCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor [path]",
		Short: "Check language servers and snapshot freshness",
		Args:  cobra.MaximumNArgs(1),
		RunE:  RunDoctor,
	}
	cmd.Flags().Bool("json", false, "Print machine-readable doctor output")
	return cmd
}
