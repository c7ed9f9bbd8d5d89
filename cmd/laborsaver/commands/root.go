// Package commands defines all Cobra CLI commands for the laborsaver binary.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/Gskdl78/Labor-saver/internal/audit"
	"github.com/Gskdl78/Labor-saver/internal/config"
	"github.com/Gskdl78/Labor-saver/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "laborsaver",
		Short: "Laborsaver — 勞工保險 AI 諮詢助手",
		Long: `Laborsaver is a question-answering service for Taiwan's labor insurance
regulations: disability benefit standards, occupational injury review rules,
medical benefits, and where to find labor insurance offices and accredited
hospitals.

Questions are answered through a tiered pipeline: a curated Q&A table first,
then retrieval-augmented generation over the ingested regulation datasets,
with graceful degraded answers when the model or knowledge base is down.

Model provider is selected via the MODEL_PROVIDER environment variable
or a YAML config file (~/.laborsaver/config.yaml).
See 'laborsaver --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()

			// Load YAML config (env vars always override YAML values).
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}
			loadedConfigPath = path

			// Emit structured audit log for every command invocation.
			audit.LogCommandStart(log, cmd.Name(), loadedConfigPath)

			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.laborsaver/config.yaml)")

	root.AddCommand(
		NewAskCmd(),
		NewServeCmd(),
		NewIngestCmd(),
		NewVersionCmd(),
	)

	return root
}
