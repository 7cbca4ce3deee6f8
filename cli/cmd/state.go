package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/fluxbase-eu/playground/cli/output"
	"github.com/fluxbase-eu/playground/cli/util"
	"github.com/fluxbase-eu/playground/internal/pipeline"
	"github.com/fluxbase-eu/playground/internal/session"
)

// stateFlags describe a session on the command line: a source file or a
// fragment, with optional overrides of its options
type stateFlags struct {
	fragment      string
	minify        string
	entryStrategy string
	transpile     bool
	view          string
}

func (f *stateFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.fragment, "fragment", "", "start from a fragment or link instead of a source file")
	cmd.Flags().StringVar(&f.minify, "minify", string(session.MinifySimplify), "minify mode: none, minify, simplify")
	cmd.Flags().StringVar(&f.entryStrategy, "entry-strategy", string(session.EntrySmart), "entry strategy: smart, single, hook, component")
	cmd.Flags().BoolVar(&f.transpile, "transpile", false, "emit plain JavaScript and bundle it")
	cmd.Flags().StringVar(&f.view, "view", string(session.ViewModules), "output view: modules, bundles")
}

// resolve builds the session. Without a file or --fragment the seed
// document is used. Explicitly set flags override the fragment's options.
func (f *stateFlags) resolve(cmd *cobra.Command, args []string) (session.State, error) {
	state := session.Default()

	switch {
	case f.fragment != "" && len(args) > 0:
		return session.State{}, fmt.Errorf("pass either a source file or --fragment, not both")
	case f.fragment != "":
		s, err := util.DecodeInput(f.fragment)
		if err != nil {
			return session.State{}, err
		}
		state = s
	case len(args) > 0:
		source, err := util.ReadSource(args[0], cmd.InOrStdin())
		if err != nil {
			return session.State{}, err
		}
		state = state.WithSource(source)
	}

	flags := cmd.Flags()
	var err error
	if flags.Changed("minify") {
		if state.Minify, err = session.ParseMinifyMode(f.minify); err != nil {
			return session.State{}, err
		}
	}
	if flags.Changed("entry-strategy") {
		if state.EntryStrategy, err = session.ParseEntryStrategy(f.entryStrategy); err != nil {
			return session.State{}, err
		}
	}
	if flags.Changed("transpile") {
		state.Transpile = f.transpile
	}
	if flags.Changed("view") {
		if state.View, err = session.ParseView(f.view); err != nil {
			return session.State{}, err
		}
	}
	return state, state.Validate()
}

func artifactKind(a pipeline.Artifact, view session.View) string {
	switch {
	case view == session.ViewModules:
		return "module"
	case a.IsEntryPoint:
		return "entry"
	case a.IsDynamicEntry:
		return "dynamic"
	default:
		return "chunk"
	}
}

func printState(f *output.Formatter, state session.State) {
	f.PrintTable(output.TableData{
		Headers: []string{"OPTION", "VALUE"},
		Rows: [][]string{
			{"minify", string(state.Minify)},
			{"entry_strategy", string(state.EntryStrategy)},
			{"transpile", strconv.FormatBool(state.Transpile)},
			{"view", string(state.View)},
			{"source", fmt.Sprintf("%d bytes", len(state.Source))},
		},
	})
}

func printArtifacts(f *output.Formatter, snap *pipeline.Snapshot, view session.View, showCode bool) {
	artifacts := snap.Visible(view)
	if len(artifacts) == 0 {
		f.PrintSuccess(fmt.Sprintf("No %s.", view))
		return
	}

	rows := make([][]string, 0, len(artifacts))
	for _, a := range artifacts {
		rows = append(rows, []string{a.Path, artifactKind(a, view), strconv.Itoa(len(a.Code))})
	}
	f.PrintTable(output.TableData{
		Headers: []string{"PATH", "KIND", "BYTES"},
		Rows:    rows,
	})

	if showCode {
		for _, a := range artifacts {
			f.PrintSection(a.Path, a.Code)
		}
	}
}

func printDiagnostics(f *output.Formatter, snap *pipeline.Snapshot) {
	if len(snap.Markers) == 0 {
		return
	}
	rows := make([][]string, 0, len(snap.Markers))
	for _, m := range snap.Markers {
		rows = append(rows, []string{
			m.Severity,
			fmt.Sprintf("%d:%d", m.StartLineNumber, m.StartColumn),
			m.Message,
		})
	}
	f.PrintTable(output.TableData{
		Headers: []string{"SEVERITY", "POSITION", "MESSAGE"},
		Rows:    rows,
	})
}

// printSnapshot renders a snapshot: the whole document in structured
// formats, tables otherwise
func printSnapshot(f *output.Formatter, snap *pipeline.Snapshot, showCode bool) error {
	if f.Structured() {
		return f.Print(snap)
	}

	printArtifacts(f, snap, snap.State.View, showCode)
	printDiagnostics(f, snap)
	if snap.Error != "" {
		f.PrintWarning("bundle failed: " + snap.Error)
	}
	return nil
}
