package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/fluxbase-eu/playground/cli/util"
)

var decodeSourceOnly bool

var decodeCmd = &cobra.Command{
	Use:   "decode <fragment|link|->",
	Short: "Show the session stored in a fragment",
	Long: `Decode a playground fragment, a bare token or a full link and print the
session it carries. Malformed input is an error.

Examples:
  playground decode 'https://play.example/#eyJjb2RlIjo...'
  playground decode '#eyJjb2RlIjo...' --source > app.tsx
  pbpaste | playground decode - -o yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runDecode,
}

func init() {
	decodeCmd.Flags().BoolVar(&decodeSourceOnly, "source", false, "print only the source document")
}

func runDecode(cmd *cobra.Command, args []string) error {
	input := args[0]
	if input == util.StdinPath {
		raw, err := util.ReadSource(util.StdinPath, cmd.InOrStdin())
		if err != nil {
			return err
		}
		input = strings.TrimSpace(raw)
	}

	state, err := util.DecodeInput(input)
	if err != nil {
		return err
	}

	f := GetFormatter()
	switch {
	case decodeSourceOnly:
		_, err := cmd.OutOrStdout().Write([]byte(state.Source))
		return err
	case f.Structured():
		return f.Print(state)
	default:
		printState(f, state)
		f.PrintSection("source", state.Source)
		return nil
	}
}
