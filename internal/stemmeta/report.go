package stemmeta

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// Report renders one fixed-width line per stem entry.
func Report(m Metadata) string {
	var b strings.Builder
	for i, e := range m.Stems {
		fmt.Fprintf(&b, "Track %3d      name: %15s     color: %8s\n", i+1, e.Name, e.Color)
	}
	return b.String()
}

// WriteReport writes Report(m) to w.
func WriteReport(w io.Writer, m Metadata) error {
	_, err := io.WriteString(w, Report(m))
	return err
}

// WriteReportFile writes Report(m) to path.
func WriteReportFile(path string, m Metadata) error {
	return os.WriteFile(path, []byte(Report(m)), 0o644)
}
