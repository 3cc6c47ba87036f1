package preflight

import (
	"realign/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// Plan names the directories a command is about to use.
type Plan struct {
	ResultsDir string
	DatasetDir string
	// Write is false for dry runs, which only need read access.
	Write bool
}

// RunAll executes the checks that apply to plan under cfg.
func RunAll(cfg *config.Config, plan Plan) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result
	resultsAccess := ReadOnly
	if plan.Write {
		resultsAccess = ReadWrite
	}
	results = append(results, CheckDirectoryAccess("Results directory", plan.ResultsDir, resultsAccess))
	results = append(results, CheckDirectoryAccess("Dataset directory", plan.DatasetDir, ReadOnly))
	if plan.Write {
		results = append(results, CheckDirectoryAccess("State directory", cfg.Paths.StateDir, ReadWrite))
	}
	results = append(results, CheckNormalizer(cfg))
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
