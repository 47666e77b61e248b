// agent-pulse relays a coding agent's tool activity to live displays.
//
// Register the hook command for the agent's hook events, e.g. in
// ~/.claude/settings.json:
//
//	"hooks": {
//	  "PreToolUse": [{"hooks": [{"type": "command", "command": "agent-pulse hook"}]}],
//	  "PostToolUse": [{"hooks": [{"type": "command", "command": "agent-pulse hook"}]}],
//	  "Stop": [{"hooks": [{"type": "command", "command": "agent-pulse hook"}]}]
//	}
//
// then run `agent-pulse serve` and open the URL printed by `agent-pulse pair`
// on the display.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zsprackett/agent-pulse/internal/config"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:           "agent-pulse",
	Short:         "Relay coding agent activity to live displays",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default $AGENT_PULSE_CONFIG or ~/.agent-pulse/config.json)")
	rootCmd.AddCommand(serveCmd, hookCmd, stateCmd, pairCmd, tokenCmd)
}

// loadConfig reads the config file and makes sure a shared token exists.
func loadConfig() (config.Config, string, error) {
	path := configPath
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, path, fmt.Errorf("load config: %w", err)
	}
	if err := config.EnsureToken(path, &cfg); err != nil {
		return cfg, path, fmt.Errorf("persist token: %w", err)
	}
	return cfg, path, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
