package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/zsprackett/agent-pulse/internal/config"
	"github.com/zsprackett/agent-pulse/internal/pairing"
)

var (
	pairHost string
	pairQR   bool
)

var pairCmd = &cobra.Command{
	Use:   "pair",
	Short: "Print the URL (and QR code) a display opens to connect",
	Long: `Prints the pairing URL for a display. The relay does not serve the display
app itself and answers 404 on "/"; the display app is hosted separately and
reads the ?token= query parameter from this URL, then connects back to the
relay's /ws endpoint on the same host and port with that token.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		host := pairHost
		if host == "" {
			host = pairing.AdvertiseHost(cfg.Host)
		}
		url := pairing.URL(cfg.TLS.Mode != "", host, cfg.Port, cfg.Token)

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, url)
		if pairQR || term.IsTerminal(int(os.Stdout.Fd())) {
			fmt.Fprintln(out)
			if err := pairing.WriteQR(out, url); err != nil {
				return err
			}
			fmt.Fprintln(out, "Scan to connect from your phone")
		}
		return nil
	},
}

var tokenRotate bool

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Print the shared display token",
	Long: `Prints the shared token displays must present. With --rotate a new token
is generated and saved; restart the server and re-pair displays afterwards.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, path, err := loadConfig()
		if err != nil {
			return err
		}
		if tokenRotate {
			if err := config.RotateToken(path, &cfg); err != nil {
				return fmt.Errorf("rotate token: %w", err)
			}
		}
		fmt.Fprintln(cmd.OutOrStdout(), cfg.Token)
		return nil
	},
}

func init() {
	pairCmd.Flags().StringVar(&pairHost, "host", "", "host to advertise (default: LAN address)")
	pairCmd.Flags().BoolVar(&pairQR, "qr", false, "always print the QR code, even when stdout is not a terminal")
	tokenCmd.Flags().BoolVar(&tokenRotate, "rotate", false, "generate and save a new token")
}
