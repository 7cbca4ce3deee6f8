package cmd

import (
	"fmt"
	"strings"

	"github.com/skip2/go-qrcode"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/fluxbase-eu/playground/internal/session"
)

var (
	shareFlags   stateFlags
	shareBaseURL string
	shareQR      bool
)

var shareCmd = &cobra.Command{
	Use:   "share [file|-]",
	Short: "Print a shareable fragment for a source document",
	Long: `Encode a source document and its options into the fragment the playground
reads at startup. With --base-url (or PLAYGROUND_BASE_URL) a full link is printed.
--qr also draws the link as a terminal QR code (table output only).

Examples:
  playground share app.tsx --transpile
  playground share app.tsx --base-url https://play.example
  playground share app.tsx --base-url https://play.example --qr`,
	Args: cobra.MaximumNArgs(1),
	RunE: runShare,
}

func init() {
	shareFlags.register(shareCmd)
	shareCmd.Flags().StringVar(&shareBaseURL, "base-url", "", "playground URL to prefix the fragment with")
	shareCmd.Flags().BoolVar(&shareQR, "qr", false, "also print the link as a QR code")
}

// ShareOutput is the structured result of share
type ShareOutput struct {
	Fragment string `json:"fragment" yaml:"fragment"`
	URL      string `json:"url,omitempty" yaml:"url,omitempty"`
}

func runShare(cmd *cobra.Command, args []string) error {
	state, err := shareFlags.resolve(cmd, args)
	if err != nil {
		return err
	}

	fragment, err := session.ToFragment(state)
	if err != nil {
		return err
	}

	out := ShareOutput{Fragment: fragment}
	if base := firstNonEmpty(shareBaseURL, viper.GetString("base_url")); base != "" {
		out.URL = strings.TrimRight(base, "/") + "/" + fragment
	}

	f := GetFormatter()
	if f.Structured() {
		return f.Print(out)
	}
	link := firstNonEmpty(out.URL, out.Fragment)
	f.PrintSuccess(link)
	if !shareQR {
		return nil
	}

	code, err := qrcode.New(link, qrcode.Medium)
	if err != nil {
		return fmt.Errorf("failed to render QR code: %w", err)
	}
	f.PrintSection("qr", code.ToSmallString(false))
	return nil
}
