package bundler

import (
	"sort"
	"strings"
)

// Analyze turns a bundle's metafile into per-chunk sizes and per-module
// contributions. Modules contributing to several chunks are summed.
func Analyze(name string, result *BundleResult) *AnalysisResult {
	analysis := &AnalysisResult{
		Name:            name,
		Chunks:          []ChunkAnalysis{},
		InputFiles:      []FileAnalysis{},
		ExternalImports: []string{},
	}
	if result == nil || result.Metafile == nil {
		return analysis
	}
	analysis.Warnings = append(analysis.Warnings, result.Warnings...)

	meta := result.Metafile
	byChunkPath := make(map[string]Chunk, len(result.Chunks))
	for _, c := range result.Chunks {
		byChunkPath[c.Path] = c
	}

	contrib := make(map[string]int)
	externals := make(map[string]struct{})

	for key, out := range meta.Outputs {
		analysis.TotalBytes += out.Bytes

		rel := strings.TrimPrefix(key, outDir+"/")
		chunk := byChunkPath[rel]
		analysis.Chunks = append(analysis.Chunks, ChunkAnalysis{
			Path:           rel,
			Bytes:          out.Bytes,
			IsEntryPoint:   chunk.IsEntryPoint,
			IsDynamicEntry: chunk.IsDynamicEntry,
			Inputs:         len(out.Inputs),
		})

		for _, imp := range out.Imports {
			if imp.External {
				externals[imp.Path] = struct{}{}
			}
		}
		for input, c := range out.Inputs {
			contrib[input] += c.BytesInOutput
		}
	}

	for input, bytesInOutput := range contrib {
		info := meta.Inputs[input]
		percentage := 0.0
		if analysis.TotalBytes > 0 {
			percentage = float64(bytesInOutput) / float64(analysis.TotalBytes) * 100
		}
		analysis.InputFiles = append(analysis.InputFiles, FileAnalysis{
			Path:          displayPath(input),
			Bytes:         info.Bytes,
			BytesInOutput: bytesInOutput,
			Percentage:    percentage,
			ImportCount:   len(info.Imports),
		})
	}

	for ext := range externals {
		analysis.ExternalImports = append(analysis.ExternalImports, ext)
	}

	sort.Slice(analysis.Chunks, func(i, j int) bool {
		if analysis.Chunks[i].IsEntryPoint != analysis.Chunks[j].IsEntryPoint {
			return analysis.Chunks[i].IsEntryPoint
		}
		return analysis.Chunks[i].Path < analysis.Chunks[j].Path
	})
	sort.Slice(analysis.InputFiles, func(i, j int) bool {
		if analysis.InputFiles[i].BytesInOutput != analysis.InputFiles[j].BytesInOutput {
			return analysis.InputFiles[i].BytesInOutput > analysis.InputFiles[j].BytesInOutput
		}
		return analysis.InputFiles[i].Path < analysis.InputFiles[j].Path
	})
	sort.Strings(analysis.ExternalImports)

	return analysis
}

// displayPath strips the virtual namespace from a metafile input key
func displayPath(input string) string {
	return strings.TrimPrefix(input, virtualNamespace+":")
}
