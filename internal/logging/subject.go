package logging

import "strings"

// FormatSubject builds the job/stage subject string used in console output.
// Job identifiers are shortened to their first segment.
func FormatSubject(jobID, stage string) string {
	jobID = strings.TrimSpace(jobID)
	stage = strings.TrimSpace(stage)
	if short, _, ok := strings.Cut(jobID, "-"); ok {
		jobID = short
	}
	switch {
	case jobID != "" && stage != "":
		return "Job " + jobID + " (" + stage + ")"
	case jobID != "":
		return "Job " + jobID
	case stage != "":
		return "(" + stage + ")"
	default:
		return ""
	}
}
