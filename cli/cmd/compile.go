package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fluxbase-eu/playground/internal/bundler"
	"github.com/fluxbase-eu/playground/internal/pipeline"
)

var (
	compileFlags    stateFlags
	compileShowCode bool
	compileStrict   bool
)

var compileCmd = &cobra.Command{
	Use:   "compile [file|-]",
	Short: "Compile a source document",
	Long: `Run the optimizer once over a source document and print the emitted
modules, or the bundle chunks when --view bundles is used with --transpile.

Examples:
  playground compile app.tsx
  playground compile app.tsx --transpile --view bundles --code
  cat app.tsx | playground compile - -o json
  playground compile --fragment 'https://play.example/#eyJjb2RlIjo...'`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCompile,
}

func init() {
	compileFlags.register(compileCmd)
	compileCmd.Flags().BoolVar(&compileShowCode, "code", false, "print the emitted code")
	compileCmd.Flags().BoolVar(&compileStrict, "strict", false, "exit with an error when diagnostics are reported")
}

func runCompile(cmd *cobra.Command, args []string) error {
	state, err := compileFlags.resolve(cmd, args)
	if err != nil {
		return err
	}
	inv, err := loadInvoker()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	snap, err := pipeline.RunOnce(ctx, inv, bundler.NewPipeline(), state)
	if err != nil {
		return err
	}

	if err := printSnapshot(GetFormatter(), snap, compileShowCode); err != nil {
		return err
	}

	if compileStrict && len(snap.Diagnostics) > 0 {
		return fmt.Errorf("%d diagnostic(s) reported", len(snap.Diagnostics))
	}
	return nil
}
