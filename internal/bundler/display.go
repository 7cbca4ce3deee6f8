package bundler

import (
	"fmt"
	"io"
	"strings"
)

// DisplayAnalysis prints the bundle analysis in a formatted way
func DisplayAnalysis(w io.Writer, result *AnalysisResult, showDetails bool) {
	_, _ = fmt.Fprintf(w, "\n=== Bundle Analysis: %s ===\n", result.Name)
	_, _ = fmt.Fprintf(w, "Total bundle size: %s in %d chunk(s)\n", formatBytesHuman(result.TotalBytes), len(result.Chunks))

	if len(result.Chunks) > 0 {
		_, _ = fmt.Fprintln(w, "\nChunks:")
		for _, c := range result.Chunks {
			kind := "chunk"
			switch {
			case c.IsEntryPoint:
				kind = "entry"
			case c.IsDynamicEntry:
				kind = "dynamic"
			}
			_, _ = fmt.Fprintf(w, "  %-7s %s  %s\n", kind, truncatePath(c.Path, 50), formatBytesHuman(c.Bytes))
		}
	}

	if len(result.ExternalImports) > 0 {
		_, _ = fmt.Fprintln(w, "\nExternal imports (left unresolved):")
		for _, imp := range result.ExternalImports {
			_, _ = fmt.Fprintf(w, "  - %s\n", imp)
		}
	}

	if len(result.InputFiles) > 0 {
		_, _ = fmt.Fprintln(w, "\nBundle breakdown:")

		maxFiles := 10
		if showDetails {
			maxFiles = len(result.InputFiles)
		}

		maxPathLen := 0
		for i, file := range result.InputFiles {
			if i >= maxFiles {
				break
			}
			maxPathLen = max(maxPathLen, len(truncatePath(file.Path, 50)))
		}

		for i, file := range result.InputFiles {
			if i >= maxFiles {
				_, _ = fmt.Fprintf(w, "  ... and %d more modules\n", len(result.InputFiles)-maxFiles)
				break
			}

			p := truncatePath(file.Path, 50)
			_, _ = fmt.Fprintf(w, "  %s%s  %8s  %5.1f%%\n",
				p,
				strings.Repeat(" ", maxPathLen-len(p)),
				formatBytesHuman(file.BytesInOutput),
				file.Percentage,
			)
		}
	}

	if len(result.Warnings) > 0 {
		_, _ = fmt.Fprintln(w, "\nWarnings:")
		for _, warn := range result.Warnings {
			_, _ = fmt.Fprintf(w, "  - %s\n", warn)
		}
	}

	_, _ = fmt.Fprintln(w)
}

// formatBytesHuman formats bytes in human-readable format
func formatBytesHuman(bytes int) string {
	const (
		KB = 1024
		MB = 1024 * KB
	)
	switch {
	case bytes >= MB:
		return fmt.Sprintf("%.2f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.2f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

func truncatePath(path string, maxLen int) string {
	if len(path) <= maxLen {
		return path
	}
	return "..." + path[len(path)-maxLen+3:]
}
