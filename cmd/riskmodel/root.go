package main

import (
	"github.com/spf13/cobra"
)

var version = "dev"

func newRootCommand() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "riskmodel",
		Short: "Train, rank and justify insurance risk models",
		Long: `riskmodel trains the algorithm catalogue against a policy extract, ranks
the candidates on a hold-out split and writes one auditable decision summary
per modelling task.`,
		Version:      version,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to configuration file (default $RISKMODEL_CONFIG)")

	cmd.AddCommand(newRunCommand(&configPath))
	cmd.AddCommand(newHistoryCommand(&configPath))
	cmd.AddCommand(newSummaryCommand(&configPath))
	cmd.AddCommand(newGenerateCommand())

	return cmd
}

func execute() error {
	return newRootCommand().Execute()
}
