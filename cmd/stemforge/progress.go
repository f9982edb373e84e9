package main

import (
	"io"

	"github.com/k0kubun/go-ansi"
	"github.com/schollz/progressbar/v3"
)

// newProgressBar draws on stdout when it is a terminal and stays silent
// otherwise, so piped output and tests see no bar.
func newProgressBar(out io.Writer, total int, description string) *progressbar.ProgressBar {
	visible := isTerminal(out)
	var writer io.Writer = io.Discard
	if visible {
		writer = ansi.NewAnsiStdout()
	}
	return progressbar.NewOptions(
		total,
		progressbar.OptionSetWriter(writer),
		progressbar.OptionSetVisibility(visible),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetTheme(progressbar.ThemeASCII),
		progressbar.OptionFullWidth(),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetDescription(description),
	)
}
