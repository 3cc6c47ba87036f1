package main

import (
	"strconv"

	"github.com/spf13/cobra"

	"realign/internal/config"
	"realign/internal/discovery"
)

type scanRecord struct {
	Scene            string `json:"scene" yaml:"scene"`
	Modality         string `json:"modality" yaml:"modality"`
	Variant          string `json:"variant" yaml:"variant"`
	TestEvery        int    `json:"test_every" yaml:"test_every"`
	TestEveryDefault bool   `json:"test_every_defaulted" yaml:"test_every_defaulted"`
	Artifact         string `json:"artifact" yaml:"artifact"`
}

type scanSkip struct {
	Record string `json:"record" yaml:"record"`
	Path   string `json:"path" yaml:"path"`
	Reason string `json:"reason" yaml:"reason"`
}

type scanReport struct {
	ResultsDir string       `json:"results_dir" yaml:"results_dir"`
	Records    []scanRecord `json:"records" yaml:"records"`
	Skipped    []scanSkip   `json:"skipped,omitempty" yaml:"skipped,omitempty"`
}

func newScanCommand(ctx *commandContext) *cobra.Command {
	var (
		resultsDir string
		modalities []string
		scenes     []string
		format     string
	)

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "List the alignment artifacts regenerate would process",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			outputFormat, err := parseFormat(format)
			if err != nil {
				return err
			}
			cfg := ctx.configValue()
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			root, err := pathOverride(resultsDir, cfg.Paths.ResultsDir)
			if err != nil {
				return err
			}
			mods := cfg.Regenerate.Modalities
			if cmd.Flags().Changed("modalities") {
				mods = config.NormalizeList(modalities)
			}

			found, err := discovery.Discover(root, mods, discovery.WithLogger(logger))
			if err != nil {
				return err
			}
			report := scanReport{ResultsDir: root, Records: []scanRecord{}}
			for _, rec := range discovery.FilterScenes(found.Records, config.NormalizeList(scenes)) {
				report.Records = append(report.Records, scanRecord{
					Scene:            rec.Scene,
					Modality:         rec.Modality,
					Variant:          rec.Variant,
					TestEvery:        rec.Cadence,
					TestEveryDefault: rec.CadenceDefaulted,
					Artifact:         rec.ArtifactPath,
				})
			}
			for _, w := range found.Warnings {
				report.Skipped = append(report.Skipped, scanSkip{
					Record: w.Scene + "/" + w.Modality + "/" + w.Variant,
					Path:   w.Path,
					Reason: w.Reason,
				})
			}

			switch outputFormat {
			case formatJSON:
				return writeJSON(cmd, report)
			case formatYAML:
				return writeYAML(cmd, report)
			}
			printScanTable(cmd, report)
			return nil
		},
	}

	cmd.Flags().StringVar(&resultsDir, "results-dir", "", "Results directory (default: paths.results_dir)")
	cmd.Flags().StringSliceVar(&modalities, "modalities", nil, "Modalities to scan (default: regenerate.modalities)")
	cmd.Flags().StringSliceVar(&scenes, "scenes", nil, "Only list these scenes")
	cmd.Flags().StringVarP(&format, "format", "f", formatTable, "Output format: table, json or yaml")
	return cmd
}

func printScanTable(cmd *cobra.Command, report scanReport) {
	p := newPrinter(cmd)
	if len(report.Records) == 0 {
		p.Info("No alignments found under %s", report.ResultsDir)
	} else {
		rows := make([][]string, 0, len(report.Records))
		for _, r := range report.Records {
			cadence := strconv.Itoa(r.TestEvery)
			if r.TestEveryDefault {
				cadence += " (default)"
			}
			rows = append(rows, []string{r.Scene, r.Modality, r.Variant, cadence, r.Artifact})
		}
		p.Info("%s", renderTable(
			[]string{"Scene", "Modality", "Variant", "test_every", "Artifact"},
			rows,
			[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
		))
		p.Info("%d alignment(s) found", len(report.Records))
	}
	for _, s := range report.Skipped {
		p.Warning("Skipped %s: %s", s.Record, s.Reason)
	}
	if len(report.Skipped) > 0 {
		p.Info("%d variant(s) skipped", len(report.Skipped))
	}
}
