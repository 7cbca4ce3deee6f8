package cmd

import (
	"context"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/fluxbase-eu/playground/cli/client"
	"github.com/fluxbase-eu/playground/cli/output"
	"github.com/fluxbase-eu/playground/cli/util"
	"github.com/fluxbase-eu/playground/internal/bundler"
	"github.com/fluxbase-eu/playground/internal/pipeline"
	"github.com/fluxbase-eu/playground/internal/session"
)

const defaultServer = "http://localhost:8080"

var (
	serverURL      string
	remoteTimeout  time.Duration
	remoteShowCode bool
	remoteDetails  bool

	remoteMinify        string
	remoteEntryStrategy string
	remoteTranspile     bool

	// apiClient is set by requireServer
	apiClient *client.Client
)

var remoteCmd = &cobra.Command{
	Use:   "remote",
	Short: "Drive a running playground server",
	Long: `Read and change the session of a running playground server. Every change
waits for the server's pipeline to settle and prints the resulting output.

The server defaults to ` + defaultServer + ` and can be set with --server or
PLAYGROUND_SERVER.`,
	PersistentPreRunE: requireServer,
}

var remoteStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the server's current output and diagnostics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRemote(cmd, func(ctx context.Context) (*pipeline.Snapshot, error) {
			return apiClient.Snapshot(ctx)
		})
	},
}

var remotePushCmd = &cobra.Command{
	Use:   "push <file|->",
	Short: "Replace the server's source document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		source, err := util.ReadSource(args[0], cmd.InOrStdin())
		if err != nil {
			return err
		}
		return withRemote(cmd, func(ctx context.Context) (*pipeline.Snapshot, error) {
			return apiClient.SetSource(ctx, source)
		})
	},
}

var remoteOptionsCmd = &cobra.Command{
	Use:   "options",
	Short: "Change the server's compile options",
	Long: `Change compile options. Only the flags given are sent; the rest keep
their current value.

Examples:
  playground remote options --transpile
  playground remote options --minify none --entry-strategy single`,
	Args: cobra.NoArgs,
	RunE: runRemoteOptions,
}

var remoteViewCmd = &cobra.Command{
	Use:       "view <modules|bundles>",
	Short:     "Switch the server's output view",
	ValidArgs: []string{string(session.ViewModules), string(session.ViewBundles)},
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRemote(cmd, func(ctx context.Context) (*pipeline.Snapshot, error) {
			return apiClient.SetView(ctx, args[0])
		})
	},
}

var remoteFragmentCmd = &cobra.Command{
	Use:   "fragment",
	Short: "Print the server's shareable link",
	Args:  cobra.NoArgs,
	RunE:  runRemoteFragment,
}

var remoteAnalyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Report bundle chunk sizes of the server's current output",
	Args:  cobra.NoArgs,
	RunE:  runRemoteAnalyze,
}

func init() {
	remoteCmd.PersistentFlags().StringVar(&serverURL, "server", "", "playground server URL (default "+defaultServer+")")
	remoteCmd.PersistentFlags().DurationVar(&remoteTimeout, "timeout", 30*time.Second, "request timeout")
	remoteCmd.PersistentFlags().BoolVar(&remoteShowCode, "code", false, "print the emitted code")

	remoteOptionsCmd.Flags().StringVar(&remoteMinify, "minify", "", "minify mode: none, minify, simplify")
	remoteOptionsCmd.Flags().StringVar(&remoteEntryStrategy, "entry-strategy", "", "entry strategy: smart, single, hook, component")
	remoteOptionsCmd.Flags().BoolVar(&remoteTranspile, "transpile", false, "emit plain JavaScript and bundle it")

	remoteAnalyzeCmd.Flags().BoolVar(&remoteDetails, "details", false, "list every contributing module")

	remoteCmd.AddCommand(remoteStatusCmd)
	remoteCmd.AddCommand(remotePushCmd)
	remoteCmd.AddCommand(remoteOptionsCmd)
	remoteCmd.AddCommand(remoteViewCmd)
	remoteCmd.AddCommand(remoteFragmentCmd)
	remoteCmd.AddCommand(remoteAnalyzeCmd)
}

// requireServer sets up the API client for remote commands
func requireServer(cmd *cobra.Command, args []string) error {
	// cobra runs only the nearest PersistentPreRunE
	if err := rootCmd.PersistentPreRunE(cmd, args); err != nil {
		return err
	}

	server := firstNonEmpty(serverURL, viper.GetString("server"), defaultServer)
	apiClient = client.NewClient(server,
		client.WithTimeout(remoteTimeout),
		client.WithDebug(debug, cmd.ErrOrStderr()),
	)
	return nil
}

func remoteContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, remoteTimeout)
}

func withRemote(cmd *cobra.Command, call func(ctx context.Context) (*pipeline.Snapshot, error)) error {
	ctx, cancel := remoteContext(cmd)
	defer cancel()

	snap, err := call(ctx)
	if err != nil {
		return err
	}

	f := GetFormatter()
	if !f.Structured() {
		f.PrintKeyValue("generation", strconv.FormatUint(snap.Generation, 10))
	}
	return printSnapshot(f, snap, remoteShowCode)
}

func runRemoteOptions(cmd *cobra.Command, args []string) error {
	var update client.OptionsUpdate
	flags := cmd.Flags()
	if flags.Changed("minify") {
		update.Minify = &remoteMinify
	}
	if flags.Changed("entry-strategy") {
		update.EntryStrategy = &remoteEntryStrategy
	}
	if flags.Changed("transpile") {
		update.Transpile = &remoteTranspile
	}

	return withRemote(cmd, func(ctx context.Context) (*pipeline.Snapshot, error) {
		return apiClient.SetOptions(ctx, update)
	})
}

func runRemoteFragment(cmd *cobra.Command, args []string) error {
	ctx, cancel := remoteContext(cmd)
	defer cancel()

	frag, err := apiClient.Fragment(ctx)
	if err != nil {
		return err
	}

	f := GetFormatter()
	if f.Structured() {
		return f.Print(frag)
	}
	f.PrintSuccess(firstNonEmpty(frag.URL, frag.Fragment))
	return nil
}

func runRemoteAnalyze(cmd *cobra.Command, args []string) error {
	ctx, cancel := remoteContext(cmd)
	defer cancel()

	analysis, err := apiClient.Analysis(ctx)
	if err != nil {
		return err
	}
	return printAnalysis(GetFormatter(), analysis, remoteDetails)
}

func printAnalysis(f *output.Formatter, analysis *bundler.AnalysisResult, details bool) error {
	if f.Structured() {
		return f.Print(analysis)
	}
	if !f.Quiet {
		bundler.DisplayAnalysis(f.Writer, analysis, details)
	}
	return nil
}
