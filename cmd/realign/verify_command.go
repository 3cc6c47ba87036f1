package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"realign/internal/artifact"
)

func newVerifyCommand() *cobra.Command {
	var (
		tolerance float64
		show      bool
	)

	cmd := &cobra.Command{
		Use:         "verify <artifact>...",
		Short:       "Check that alignment artifacts are readable and self-consistent",
		Long:        "Read each .npz artifact and confirm that align_transform · support_transform reproduces base_transform within the tolerance.",
		Args:        cobra.MinimumNArgs(1),
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			p := newPrinter(cmd)
			rows := make([][]string, 0, len(args))
			failed := 0
			for _, path := range args {
				a, err := artifact.Read(path)
				if err != nil {
					failed++
					p.Failure("%s: %v", path, err)
					rows = append(rows, []string{path, "-", "unreadable"})
					continue
				}
				residual := strconv.FormatFloat(a.Residual(), 'e', 2, 64)
				if err := a.Check(tolerance); err != nil {
					failed++
					p.Failure("%s: %v", path, err)
					rows = append(rows, []string{path, residual, "invalid"})
					continue
				}
				p.Success("%s", path)
				rows = append(rows, []string{path, residual, "ok"})
				if show {
					p.Detail("align:\n%s", a.Align)
					p.Detail("base:\n%s", a.Base)
					p.Detail("support:\n%s", a.Support)
				}
			}
			p.Blank()
			p.Info("%s", renderTable(
				[]string{"Artifact", "Residual", "Status"},
				rows,
				[]columnAlignment{alignLeft, alignRight, alignLeft},
			))
			if failed > 0 {
				return fmt.Errorf("%d of %d artifacts failed verification", failed, len(args))
			}
			return nil
		},
	}

	cmd.Flags().Float64Var(&tolerance, "tolerance", artifact.DefaultTolerance, "Maximum element-wise residual of align·support against base")
	cmd.Flags().BoolVar(&show, "show", false, "Print the stored matrices")
	return cmd
}
