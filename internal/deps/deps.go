package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"stemforge/internal/config"
)

// Requirement defines an external dependency stemforge relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// Requirements lists the external tools named by cfg.
func Requirements(cfg *config.Config) []Requirement {
	tools := config.Default().Tools
	if cfg != nil {
		tools = cfg.Tools
	}
	return []Requirement{
		{Name: "FFmpeg", Command: tools.FFmpeg, Description: "Normalizes inputs and decodes streams to PCM"},
		{Name: "FFprobe", Command: tools.FFprobe, Description: "Reads the stream table of stem containers"},
		{Name: "MP4Box", Command: tools.MP4Box, Description: "Multiplexes tracks and embeds the stem box"},
	}
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		if _, err := exec.LookPath(cmd); err != nil {
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Available = true
		results = append(results, status)
	}
	return results
}

// Missing returns the required entries that are unavailable.
func Missing(statuses []Status) []Status {
	var missing []Status
	for _, s := range statuses {
		if !s.Available && !s.Optional {
			missing = append(missing, s)
		}
	}
	return missing
}
