package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fluxbase-eu/playground/internal/bundler"
	"github.com/fluxbase-eu/playground/internal/compiler"
)

var (
	analyzeFlags   stateFlags
	analyzeDetails bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [file|-]",
	Short: "Report bundle chunk sizes for a source document",
	Long: `Compile a source document with transpile enabled, bundle the emitted
modules and report chunk sizes, per-module contributions and the imports
left external.

Examples:
  playground analyze app.tsx
  playground analyze app.tsx --entry-strategy hook --details
  playground analyze --fragment '#eyJjb2RlIjo...' -o json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAnalyze,
}

func init() {
	analyzeFlags.register(analyzeCmd)
	analyzeCmd.Flags().BoolVar(&analyzeDetails, "details", false, "list every contributing module")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	state, err := analyzeFlags.resolve(cmd, args)
	if err != nil {
		return err
	}
	state.Transpile = true

	inv, err := loadInvoker()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	result, err := inv.Invoke(ctx, state, state.Source)
	if err != nil {
		return fmt.Errorf("compile: %w", err)
	}

	f := GetFormatter()
	if n := len(result.Diagnostics); n > 0 {
		f.PrintWarning(fmt.Sprintf("%d diagnostic(s) reported: %s", n, result.Diagnostics[0].Message))
	}

	bundle, err := bundler.NewPipeline().Bundle(ctx, result.Modules)
	if err != nil {
		return fmt.Errorf("bundle: %w", err)
	}

	return printAnalysis(f, bundler.Analyze(analysisName(args, inv), bundle), analyzeDetails)
}

func analysisName(args []string, inv *compiler.Invoker) string {
	if len(args) == 0 || args[0] == "-" {
		return inv.InputPath()
	}
	return strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
}
