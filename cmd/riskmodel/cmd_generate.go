package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/riskstack/riskmodel/internal/dataset"
	"github.com/riskstack/riskmodel/internal/utils"
)

func newGenerateCommand() *cobra.Command {
	var (
		rows int
		seed uint64
		out  string
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write a synthetic policy extract for local runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			if rows <= 0 {
				return utils.InvalidInput("generate", "rows must be positive, got %d", rows)
			}
			f, err := os.Create(out)
			if err != nil {
				return utils.NewAppError("generate", utils.ErrIO, "create "+out, err)
			}
			if err := dataset.Generate(f, rows, seed); err != nil {
				f.Close()
				return utils.NewAppError("generate", utils.ErrIO, "write "+out, err)
			}
			if err := f.Close(); err != nil {
				return utils.NewAppError("generate", utils.ErrIO, "close "+out, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d rows to %s\n", rows, out)
			return nil
		},
	}
	cmd.Flags().IntVar(&rows, "rows", 1000, "Number of policies to generate")
	cmd.Flags().Uint64Var(&seed, "seed", dataset.DefaultSeed, "Random seed")
	cmd.Flags().StringVar(&out, "out", "policies.txt", "Output file")
	return cmd
}
