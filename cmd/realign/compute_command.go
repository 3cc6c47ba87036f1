package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"realign/internal/alignment"
	"realign/internal/config"
	"realign/internal/normalize"
)

func newComputeCommand(ctx *commandContext) *cobra.Command {
	var (
		trainDir       string
		subsetDir      string
		trainTestEvery int
		evalTestEvery  int
		output         string
	)

	cmd := &cobra.Command{
		Use:   "compute",
		Short: "Compute the alignment between a train dataset and a subset dataset",
		Long: `Normalize the train dataset and the subset dataset independently and write
the transform mapping subset-normalized coordinates into train-normalized
coordinates, together with both normalizations, as an .npz artifact.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, cadence := range []int{trainTestEvery, evalTestEvery} {
				if err := normalize.ValidateCadence(cadence); err != nil {
					return err
				}
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			cfg := ctx.configValue()
			if err := checkNormalizer(newPrinter(cmd), cfg); err != nil {
				return err
			}
			provider, err := ctx.provider(logger)
			if err != nil {
				return err
			}

			train, err := config.ExpandPath(trainDir)
			if err != nil {
				return err
			}
			subset, err := config.ExpandPath(subsetDir)
			if err != nil {
				return err
			}

			computer := alignment.NewComputer(provider, logger)
			_, written, err := computer.ComputeAndWrite(cmd.Context(), alignment.Request{
				BaseDir:        train,
				SupportDir:     subset,
				BaseCadence:    trainTestEvery,
				SupportCadence: evalTestEvery,
			}, output)
			if err != nil {
				return fmt.Errorf("compute alignment: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote alignment transform to %s\n", written)
			return nil
		},
	}

	cmd.Flags().StringVar(&trainDir, "train-dir", "", "Dataset directory whose normalization is the target frame")
	cmd.Flags().StringVar(&subsetDir, "subset-dir", "", "Dataset directory to align onto the train frame")
	cmd.Flags().IntVar(&trainTestEvery, "train-test-every", 0, "Held-out cadence used when normalizing the train dataset")
	cmd.Flags().IntVar(&evalTestEvery, "eval-test-every", 0, "Held-out cadence used when normalizing the subset dataset")
	cmd.Flags().StringVar(&output, "output", "", "Destination .npz artifact")
	for _, name := range []string{"train-dir", "subset-dir", "train-test-every", "eval-test-every", "output"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}
