package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"realign/internal/config"
	"realign/internal/deps"
	"realign/internal/preflight"
)

func newDepsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "deps",
		Short: "Report external programs required by the configured normalizer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.configValue()
			p := newPrinter(cmd)
			p.Info("Normalizer backend: %s", cfg.Normalizer.Backend)

			requirements := preflight.NormalizerRequirements(cfg)
			if len(requirements) == 0 {
				p.Success("In-process %s normalizer; no external programs required", config.BackendColmap)
				return nil
			}

			statuses := deps.CheckBinaries(requirements)
			rows := make([][]string, 0, len(statuses))
			for _, s := range statuses {
				location := s.Path
				if !s.Available {
					location = s.Detail
				}
				rows = append(rows, []string{s.Name, s.Command, yesNo(s.Available), yesNo(!s.Optional), location})
			}
			p.Info("%s", renderTable(
				[]string{"Dependency", "Command", "Available", "Required", "Location"},
				rows,
				nil,
			))
			if missing := deps.MissingRequired(statuses); len(missing) > 0 {
				return fmt.Errorf("%d required dependency(ies) missing", len(missing))
			}
			return nil
		},
	}
}
