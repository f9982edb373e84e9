package preflight

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"stemforge/internal/config"
	"stemforge/internal/services"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// EncodePlan describes the inputs and destination of an encode for preflight.
type EncodePlan struct {
	Inputs []string
	Output string
}

// RunEncode checks tools, input readability, output directory access and free
// space (twice the input size, covering normalized copies plus the container).
func RunEncode(cfg *config.Config, plan EncodePlan) []Result {
	var results []Result
	for _, status := range CheckSystemDeps(cfg) {
		r := Result{Name: status.Name, Passed: status.Available, Detail: status.Command}
		if !status.Available {
			r.Detail = status.Detail
		}
		results = append(results, r)
	}

	var total int64
	for _, input := range plan.Inputs {
		info, err := os.Stat(input)
		if err != nil {
			results = append(results, Result{Name: "Input", Detail: fmt.Sprintf("%s (error: %v)", input, err)})
			continue
		}
		total += info.Size()
	}

	outDir := filepath.Dir(plan.Output)
	results = append(results, CheckDirectoryAccess("Output directory", outDir))
	results = append(results, CheckFreeSpace("Free space", outDir, total*2))
	return results
}

// Err folds failed results into a single validation error, or nil when all passed.
func Err(results []Result) error {
	var failed []string
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r.Name+": "+r.Detail)
		}
	}
	if len(failed) == 0 {
		return nil
	}
	return services.Wrap(services.ErrValidation, "preflight", "check", strings.Join(failed, "; "), errors.New("preflight failed"))
}
