// Package bundler links the compiler's module set into chunks with esbuild,
// serving every import from memory.
package bundler

// Metafile represents the esbuild metafile JSON structure
type Metafile struct {
	Inputs  map[string]MetafileInput  `json:"inputs"`
	Outputs map[string]MetafileOutput `json:"outputs"`
}

// MetafileInput represents an input file in the metafile
type MetafileInput struct {
	Bytes   int              `json:"bytes"`
	Imports []MetafileImport `json:"imports"`
	Format  string           `json:"format,omitempty"`
}

// MetafileImport represents an import in the metafile
type MetafileImport struct {
	Path     string `json:"path"`
	Kind     string `json:"kind"`
	External bool   `json:"external,omitempty"`
	Original string `json:"original,omitempty"`
}

// MetafileOutput represents an output file in the metafile
type MetafileOutput struct {
	Bytes      int                     `json:"bytes"`
	Inputs     map[string]InputContrib `json:"inputs"`
	Imports    []MetafileImport        `json:"imports"`
	Exports    []string                `json:"exports"`
	EntryPoint string                  `json:"entryPoint,omitempty"`
}

// InputContrib is the contribution of an input to an output
type InputContrib struct {
	BytesInOutput int `json:"bytesInOutput"`
}

// AnalysisResult contains the analyzed bundle information
type AnalysisResult struct {
	Name            string          `json:"name"`
	TotalBytes      int             `json:"total_bytes"`
	Chunks          []ChunkAnalysis `json:"chunks"`
	InputFiles      []FileAnalysis  `json:"input_files"`
	ExternalImports []string        `json:"external_imports"`
	Warnings        []string        `json:"warnings,omitempty"`
}

// ChunkAnalysis summarizes one output chunk
type ChunkAnalysis struct {
	Path           string `json:"path"`
	Bytes          int    `json:"bytes"`
	IsEntryPoint   bool   `json:"is_entry_point"`
	IsDynamicEntry bool   `json:"is_dynamic_entry"`
	Inputs         int    `json:"inputs"`
}

// FileAnalysis contains analysis for a single module
type FileAnalysis struct {
	Path          string  `json:"path"`
	Bytes         int     `json:"bytes"`
	BytesInOutput int     `json:"bytes_in_output"`
	Percentage    float64 `json:"percentage"`
	ImportCount   int     `json:"import_count"`
}
