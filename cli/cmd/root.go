// Package cmd provides the Cobra commands for the playground CLI.
package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/fluxbase-eu/playground/cli/output"
	"github.com/fluxbase-eu/playground/internal/compiler"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"

	// Global flags
	outputFmt     string
	noHeaders     bool
	quiet         bool
	debug         bool
	compilerName  string
	optimizerPath string

	// Shared across commands
	formatter *output.Formatter
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "playground",
	Short: "Playground CLI - compile, share and inspect optimizer sessions",
	Long: `Playground CLI runs the optimizer pipeline from the command line and works
with the shareable fragments the playground puts in its address bar.

Get started:
  playground compile app.tsx          Compile a file and print the modules
  playground share app.tsx            Print a shareable fragment for a file
  playground decode '#eyJjb2RlIjo...'  Show the session inside a fragment
  playground --help                   Show available commands`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Silence errors only when --quiet is used
		cmd.SilenceErrors = quiet

		level := zerolog.WarnLevel
		if debug || viper.GetBool("debug") {
			level = zerolog.DebugLevel
		}
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr(), TimeFormat: time.Kitchen}).
			Level(level).
			With().Timestamp().Logger()

		format, err := output.ParseFormat(outputFmt)
		if err != nil {
			return err
		}
		formatter = output.NewFormatter(format, noHeaders, quiet)
		formatter.Writer = cmd.OutOrStdout()
		formatter.ErrWriter = cmd.ErrOrStderr()
		return nil
	},
}

// Execute runs the CLI
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&outputFmt, "output", "o", "table",
		"output format: table, json, yaml")
	rootCmd.PersistentFlags().BoolVar(&noHeaders, "no-headers", false,
		"hide table headers")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false,
		"minimal output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false,
		"enable debug output")
	rootCmd.PersistentFlags().StringVar(&compilerName, "compiler", "",
		"optimizer to use: esbuild or process (default esbuild)")
	rootCmd.PersistentFlags().StringVar(&optimizerPath, "optimizer", "",
		"external optimizer binary, used with --compiler process")

	viper.SetEnvPrefix("PLAYGROUND")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	_ = viper.BindEnv("compiler")  // PLAYGROUND_COMPILER
	_ = viper.BindEnv("optimizer") // PLAYGROUND_OPTIMIZER
	_ = viper.BindEnv("server")    // PLAYGROUND_SERVER
	_ = viper.BindEnv("base_url")  // PLAYGROUND_BASE_URL
	_ = viper.BindEnv("debug")     // PLAYGROUND_DEBUG

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(completionCmd)
	rootCmd.AddCommand(compileCmd)
	rootCmd.AddCommand(shareCmd)
	rootCmd.AddCommand(decodeCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(remoteCmd)
}

func initConfig() {
	viper.AutomaticEnv()
}

// GetFormatter returns the formatter configured for the running command
func GetFormatter() *output.Formatter {
	if formatter == nil {
		formatter = output.NewFormatter(output.FormatTable, false, false)
	}
	return formatter
}

// loadInvoker builds the compile stage from --compiler and --optimizer, or
// their PLAYGROUND_ environment equivalents
func loadInvoker() (*compiler.Invoker, error) {
	name := firstNonEmpty(compilerName, viper.GetString("compiler"), "esbuild")
	switch name {
	case "esbuild":
		return compiler.NewInvoker(compiler.NewEsbuildCompiler()), nil
	case "process":
		pc, err := compiler.NewProcessCompiler(firstNonEmpty(optimizerPath, viper.GetString("optimizer")), 0)
		if err != nil {
			return nil, err
		}
		return compiler.NewInvoker(pc), nil
	default:
		return nil, fmt.Errorf("invalid compiler: %s (valid: esbuild, process)", name)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
