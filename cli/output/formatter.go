// Package output renders playground CLI results: whole documents as JSON or
// YAML, and compact tables plus raw code sections for terminals.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/olekukonko/tablewriter"
	"gopkg.in/yaml.v3"
)

// Format is the value of the -o flag
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

var formatAliases = map[string]Format{
	"":      FormatTable,
	"table": FormatTable,
	"json":  FormatJSON,
	"yaml":  FormatYAML,
	"yml":   FormatYAML,
}

// ParseFormat parses a format string
func ParseFormat(s string) (Format, error) {
	format, ok := formatAliases[strings.ToLower(s)]
	if !ok {
		return "", fmt.Errorf("invalid output format: %s (valid: table, json, yaml)", s)
	}
	return format, nil
}

// Formatter writes command results in the selected format. In JSON and YAML
// only Print produces output on Writer, so a structured result is always a
// single parseable document.
type Formatter struct {
	Format    Format
	NoHeaders bool
	Quiet     bool
	Writer    io.Writer
	ErrWriter io.Writer
}

// NewFormatter creates a new formatter writing to stdout and stderr
func NewFormatter(format Format, noHeaders, quiet bool) *Formatter {
	return &Formatter{
		Format:    format,
		NoHeaders: noHeaders,
		Quiet:     quiet,
		Writer:    os.Stdout,
		ErrWriter: os.Stderr,
	}
}

// Structured reports whether output is machine readable
func (f *Formatter) Structured() bool {
	return f.Format == FormatJSON || f.Format == FormatYAML
}

// terminal reports whether human-oriented output should be written
func (f *Formatter) terminal() bool {
	return !f.Quiet && !f.Structured()
}

// Print writes data as one document. Table mode falls back to JSON.
func (f *Formatter) Print(data interface{}) error {
	if f.Quiet {
		return nil
	}

	if f.Format == FormatYAML {
		enc := yaml.NewEncoder(f.Writer)
		enc.SetIndent(2)
		if err := enc.Encode(data); err != nil {
			return err
		}
		return enc.Close()
	}

	enc := json.NewEncoder(f.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

// TableData represents tabular data for table output
type TableData struct {
	Headers []string
	Rows    [][]string
}

// PrintTable draws rows as tab-padded columns with no borders
func (f *Formatter) PrintTable(data TableData) {
	if !f.terminal() {
		return
	}

	table := tablewriter.NewWriter(f.Writer)
	if !f.NoHeaders && len(data.Headers) > 0 {
		table.SetHeader(data.Headers)
		table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
		table.SetHeaderLine(false)
	}
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoWrapText(false)
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetTablePadding("\t")
	table.SetNoWhiteSpace(true)
	table.AppendBulk(data.Rows)
	table.Render()
}

// PrintSection prints a titled block of raw text, such as emitted code
func (f *Formatter) PrintSection(title, body string) {
	if !f.terminal() {
		return
	}
	if !strings.HasSuffix(body, "\n") {
		body += "\n"
	}
	_, _ = fmt.Fprintf(f.Writer, "--- %s ---\n%s", title, body)
}

// PrintKeyValue prints a "key: value" line
func (f *Formatter) PrintKeyValue(key, value string) {
	if !f.terminal() {
		return
	}
	_, _ = fmt.Fprintf(f.Writer, "%s: %s\n", key, value)
}

// PrintSuccess prints a plain result line
func (f *Formatter) PrintSuccess(message string) {
	if !f.terminal() {
		return
	}
	_, _ = fmt.Fprintln(f.Writer, message)
}

// PrintWarning writes to ErrWriter so it never corrupts structured output
func (f *Formatter) PrintWarning(message string) {
	if f.Quiet {
		return
	}
	_, _ = fmt.Fprintln(f.ErrWriter, "Warning:", message)
}
