// Package cmd provides the CLI commands for reviewrag.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/gardenhotel/reviewrag/pkg/version"
)

var (
	configPath string
	logLevel   string
)

// NewRootCmd creates the root command for the reviewrag CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reviewrag",
		Short: "Hotel review RAG question-answering service",
		Long: `reviewrag answers guest questions over a hotel review corpus using
hybrid retrieval (BM25, dense vectors, reverse queries, HyDE, category
summaries), reciprocal-rank fusion, multi-factor ranking, and a
streaming answer generator.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.SetVersionTemplate("reviewrag version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level override (debug, info, warn, error)")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newQueryCmd())
	cmd.AddCommand(newVersionCmd())
	return cmd
}

// Execute runs the CLI.
func Execute() error {
	return NewRootCmd().Execute()
}
